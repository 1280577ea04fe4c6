package nodes

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"pipelined.dev/rtgraph"
	"pipelined.dev/rtgraph/backend"
	"pipelined.dev/rtgraph/collector"
	"pipelined.dev/rtgraph/config"
	"pipelined.dev/rtgraph/node"
	"pipelined.dev/rtgraph/param"
)

var (
	// ErrUnknownType is returned for node types without a factory.
	ErrUnknownType = errors.New("unknown node type")
	// ErrNotBuilt is returned when params are synced for a node that
	// was not built.
	ErrNotBuilt = errors.New("node was not built")

	errDuplicateType = errors.New("duplicate node type")
)

type (
	// Env is the environment node params are decoded in.
	Env struct {
		Collector  *collector.Collector
		SampleRate int
	}

	// Factory adds the described node to the graph.
	Factory func(cx *rtgraph.Context, env Env, n config.Node) (Instance, error)

	// Instance is a node added by a factory.
	Instance interface {
		ID() rtgraph.NodeID
		// Sync decodes params and queues the changes for the node.
		Sync(params *yaml.Node) error
		// Release drops shared handles held by the params.
		Release()
	}

	// Type describes a registered node type.
	Type struct {
		Name        string
		Description string
	}

	// Registry maps node type names to their factories.
	Registry struct {
		factories map[string]Factory
		types     map[string]Type
	}

	// Set is a graph built from the config.
	Set struct {
		cx        *rtgraph.Context
		env       Env
		types     map[string]string
		instances map[string]Instance
	}

	// decoder decodes yaml params into p. Handles in p are replaced only
	// after the params are validated.
	decoder[C, P any] func(env Env, c C, n *yaml.Node, p *P) error

	instance[C any, P param.Differ[P]] struct {
		cx      *rtgraph.Context
		env     Env
		id      rtgraph.NodeID
		config  C
		memo    *param.Memo[P]
		decode  decoder[C, P]
		release func(*P)
	}
)

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		types:     make(map[string]Type),
	}
}

// DefaultRegistry returns a registry with all node types of the package.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(Type{Name: "tone", Description: "sine generator"},
		factory(func(p ToneParams) node.AudioNode[ToneConfig] { return Tone{Params: p} }, decodePlain[ToneConfig, ToneParams], nil))
	r.MustRegister(Type{Name: "gain", Description: "linear gain"},
		factory(func(p GainParams) node.AudioNode[GainConfig] { return Gain{Params: p} }, decodePlain[GainConfig, GainParams], nil))
	r.MustRegister(Type{Name: "sample", Description: "mono sample player"},
		factory(func(p SampleParams) node.AudioNode[SampleConfig] { return Sample{Params: p} }, decodeSample, releaseSample))
	r.MustRegister(Type{Name: "filter", Description: "butterworth lowpass or highpass filter"},
		factory(func(p FilterParams) node.AudioNode[FilterConfig] { return Filter{Params: p} }, decodeFilter, releaseFilter))
	return r
}

// Register adds a factory for the node type.
func (r *Registry) Register(t Type, f Factory) error {
	if t.Name == "" {
		return errors.New("empty node type")
	}
	if f == nil {
		return errors.New("nil factory")
	}
	if _, ok := r.factories[t.Name]; ok {
		return fmt.Errorf("%w: %s", errDuplicateType, t.Name)
	}
	r.factories[t.Name] = f
	r.types[t.Name] = t
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(t Type, f Factory) {
	if err := r.Register(t, f); err != nil {
		panic("nodes registry: " + err.Error())
	}
}

// Lookup returns the factory for the node type, or nil.
func (r *Registry) Lookup(name string) Factory {
	return r.factories[name]
}

// Types returns registered types sorted by name.
func (r *Registry) Types() []Type {
	types := make([]Type, 0, len(r.types))
	for _, t := range r.types {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		return types[i].Name < types[j].Name
	})
	return types
}

// Build adds nodes and connections of the config to the graph. If Build
// fails, nodes that were added stay in the graph and their handles are
// released.
func (r *Registry) Build(cx *rtgraph.Context, c *config.Config) (*Set, error) {
	s := &Set{
		cx: cx,
		env: Env{
			Collector:  cx.Collector(),
			SampleRate: c.Stream.WithDefaults().SampleRate,
		},
		types:     make(map[string]string, len(c.Nodes)),
		instances: make(map[string]Instance, len(c.Nodes)),
	}
	for _, n := range c.Nodes {
		f := r.Lookup(n.Type)
		if f == nil {
			s.Release()
			return nil, fmt.Errorf("node %s: %w: %s", n.Name, ErrUnknownType, n.Type)
		}
		inst, err := f(cx, s.env, n)
		if err != nil {
			s.Release()
			return nil, fmt.Errorf("node %s: %w", n.Name, err)
		}
		s.types[n.Name] = n.Type
		s.instances[n.Name] = inst
	}
	for _, conn := range c.Connections {
		if err := s.connect(conn); err != nil {
			s.Release()
			return nil, err
		}
	}
	return s, nil
}

func (s *Set) connect(conn config.Connection) error {
	src, _ := s.ID(conn.From)
	dst, _ := s.ID(conn.To)
	n := 0
	if len(conn.Channels) == 0 {
		srcInfo, ok := s.cx.NodeInfo(src)
		if !ok {
			return fmt.Errorf("connection %s -> %s: %w", conn.From, conn.To, rtgraph.ErrNodeNotFound)
		}
		dstInfo, ok := s.cx.NodeInfo(dst)
		if !ok {
			return fmt.Errorf("connection %s -> %s: %w", conn.From, conn.To, rtgraph.ErrNodeNotFound)
		}
		n = min(int(srcInfo.Channels.NumOutputs), int(dstInfo.Channels.NumInputs))
	}
	if err := s.cx.Connect(src, dst, conn.Pairs(n), conn.Feedback); err != nil {
		return fmt.Errorf("connection %s -> %s: %w", conn.From, conn.To, err)
	}
	return nil
}

// ID returns the id of the named node. Names input and output refer to
// the graph nodes.
func (s *Set) ID(name string) (rtgraph.NodeID, bool) {
	switch name {
	case config.Input:
		return s.cx.GraphInputNodeID(), true
	case config.Output:
		return s.cx.GraphOutputNodeID(), true
	}
	inst, ok := s.instances[name]
	if !ok {
		return rtgraph.NodeID{}, false
	}
	return inst.ID(), true
}

// Sync queues params of the config for the built nodes. Nodes that were
// added to the config or changed their type are reported with
// ErrNotBuilt, the rest are still synced.
func (s *Set) Sync(c *config.Config) error {
	var errs []error
	for _, n := range c.Nodes {
		inst, ok := s.instances[n.Name]
		if !ok || s.types[n.Name] != n.Type {
			errs = append(errs, fmt.Errorf("node %s: %w", n.Name, ErrNotBuilt))
			continue
		}
		if err := inst.Sync(&n.Params); err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", n.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Release drops shared handles held by all instances.
func (s *Set) Release() {
	for _, inst := range s.instances {
		inst.Release()
	}
}

func factory[C any, P param.Differ[P]](newNode func(P) node.AudioNode[C], decode decoder[C, P], release func(*P)) Factory {
	if release == nil {
		release = func(*P) {}
	}
	return func(cx *rtgraph.Context, env Env, n config.Node) (Instance, error) {
		var c C
		if d, ok := any(c).(interface{ Default() C }); ok {
			c = d.Default()
		}
		if err := decodeNode(&n.Config, &c); err != nil {
			return nil, fmt.Errorf("error decoding config: %w", err)
		}
		var p P
		if err := decode(env, c, &n.Params, &p); err != nil {
			release(&p)
			return nil, fmt.Errorf("error decoding params: %w", err)
		}
		id, err := rtgraph.AddNode(cx, newNode(p), &c)
		if err != nil {
			release(&p)
			return nil, err
		}
		return &instance[C, P]{
			cx:      cx,
			env:     env,
			id:      id,
			config:  c,
			memo:    param.NewMemo(p),
			decode:  decode,
			release: release,
		}, nil
	}
}

func (i *instance[C, P]) ID() rtgraph.NodeID {
	return i.id
}

func (i *instance[C, P]) Sync(params *yaml.Node) error {
	next := i.memo.Value
	if err := i.decode(i.env, i.config, params, &next); err != nil {
		return err
	}
	i.memo.Value = next
	return rtgraph.SyncParams(i.cx, i.id, i.memo)
}

func (i *instance[C, P]) Release() {
	i.release(&i.memo.Value)
}

// decodeNode decodes n into v. Missing node leaves v unchanged.
func decodeNode(n *yaml.Node, v any) error {
	if n == nil || n.Kind == 0 {
		return nil
	}
	return n.Decode(v)
}

func decodePlain[C, P any](_ Env, _ C, n *yaml.Node, p *P) error {
	return decodeNode(n, p)
}

type sampleSpec struct {
	Samples []float64 `yaml:"samples" validate:"excluded_with=File"`
	File    string    `yaml:"file" validate:"excluded_with=Samples"`
	Loop    *bool     `yaml:"loop"`
}

func decodeSample(env Env, _ SampleConfig, n *yaml.Node, p *SampleParams) error {
	var spec sampleSpec
	if err := decodeNode(n, &spec); err != nil {
		return err
	}
	if err := validate.Struct(spec); err != nil {
		return err
	}
	samples := spec.Samples
	if spec.File != "" {
		var err error
		if samples, err = ReadTable(spec.File, env.SampleRate); err != nil {
			return err
		}
	}
	if spec.Loop != nil {
		p.Loop = *spec.Loop
	}
	if samples == nil {
		return nil
	}
	if t, ok := p.Table.Get(); ok && slices.Equal(*t.Get(), samples) {
		return nil
	}
	p.Table.Replace(NewTable(env.Collector, samples))
	return nil
}

func releaseSample(p *SampleParams) {
	p.Table.Release()
}

type filterSpec struct {
	Type   string  `yaml:"type" validate:"omitempty,oneof=lowpass highpass"`
	Cutoff float64 `yaml:"cutoff" validate:"required_with=Type,gte=0"`
}

func decodeFilter(env Env, c FilterConfig, n *yaml.Node, p *FilterParams) error {
	var spec filterSpec
	if err := decodeNode(n, &spec); err != nil {
		return err
	}
	if err := validate.Struct(spec); err != nil {
		return err
	}
	sampleRate := env.SampleRate
	if sampleRate == 0 {
		sampleRate = backend.DefaultSampleRate
	}
	if spec.Cutoff >= float64(sampleRate)/2 {
		return fmt.Errorf("cutoff %v is above nyquist", spec.Cutoff)
	}

	var next param.Option[Coefficients]
	switch spec.Type {
	case "":
		p.Coefficients.Replace(param.None[Coefficients]())
		return nil
	case "lowpass":
		next = Lowpass(env.Collector, spec.Cutoff, c.Order, sampleRate)
	case "highpass":
		next = Highpass(env.Collector, spec.Cutoff, c.Order, sampleRate)
	}
	if cur, ok := p.Coefficients.Get(); ok {
		if h, _ := next.Get(); slices.Equal(*cur.Get(), *h.Get()) {
			next.Release()
			return nil
		}
	}
	p.Coefficients.Replace(next)
	return nil
}

func releaseFilter(p *FilterParams) {
	p.Coefficients.Release()
}
