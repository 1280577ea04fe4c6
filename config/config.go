// Package config loads graph descriptions from YAML files.
//
// A description has stream, graph, log and metrics sections followed by
// the list of nodes and connections between them:
//
//	stream:
//	  sample_rate: 48000
//	  block_frames: 256
//	graph:
//	  queue_policy: drop-oldest
//	nodes:
//	  - name: osc
//	    type: tone
//	    params: {frequency: 440, gain: 0.2, enabled: true}
//	connections:
//	  - from: osc
//	    to: output
//
// Names input and output refer to the graph input and output nodes.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"pipelined.dev/rtgraph"
	"pipelined.dev/rtgraph/backend"
	"pipelined.dev/rtgraph/event"
)

// Reserved node names.
const (
	Input  = "input"
	Output = "output"
)

var (
	// ErrDuplicateNode is returned when two nodes share a name.
	ErrDuplicateNode = errors.New("duplicate node name")
	// ErrUnknownNode is returned when a connection refers to a node that
	// is not described.
	ErrUnknownNode = errors.New("unknown node")
	// ErrReservedName is returned when a node uses the name of a graph
	// node.
	ErrReservedName = errors.New("reserved node name")
)

type (
	// Config describes the graph and the stream it runs with.
	Config struct {
		Name        string         `yaml:"name"`
		Stream      backend.Config `yaml:"stream"`
		Graph       Graph          `yaml:"graph"`
		Log         Log            `yaml:"log"`
		Metrics     Metrics        `yaml:"metrics"`
		Nodes       []Node         `yaml:"nodes" validate:"dive"`
		Connections []Connection   `yaml:"connections" validate:"dive"`
	}

	// Graph defines graph channels and node event queues.
	Graph struct {
		Inputs        int    `yaml:"inputs" validate:"gte=0,lte=64"`
		Outputs       int    `yaml:"outputs" validate:"gte=0,lte=64"`
		QueueCapacity int    `yaml:"queue_capacity" validate:"gte=0,lte=65536"`
		QueuePolicy   string `yaml:"queue_policy" validate:"omitempty,oneof=backpressure drop-newest drop-oldest fail"`
	}

	// Log defines the control side logger.
	Log struct {
		Level string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
		JSON  bool   `yaml:"json"`
	}

	// Metrics enables node metrics. Prometheus handler is served on
	// Addr if it's not empty.
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr" validate:"omitempty,hostname_port"`
	}

	// Node describes a single node. Config and Params are decoded by the
	// node type.
	Node struct {
		Name   string    `yaml:"name" validate:"required"`
		Type   string    `yaml:"type" validate:"required"`
		Config yaml.Node `yaml:"config"`
		Params yaml.Node `yaml:"params"`
	}

	// Connection connects output channels of From to input channels of
	// To. All common channels are connected if Channels is empty.
	Connection struct {
		From     string `yaml:"from" validate:"required"`
		To       string `yaml:"to" validate:"required"`
		Channels []Pair `yaml:"channels" validate:"dive"`
		Feedback bool   `yaml:"feedback"`
	}

	// Pair maps output channel Src to input channel Dst.
	Pair struct {
		Src int `yaml:"src" validate:"gte=0"`
		Dst int `yaml:"dst" validate:"gte=0"`
	}
)

var validate = validator.New()

// Load reads and validates the config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates the config. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	var c Config
	d := yaml.NewDecoder(bytes.NewReader(data))
	d.KnownFields(true)
	if err := d.Decode(&c); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks field values and node references.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	names := map[string]struct{}{Input: {}, Output: {}}
	for _, n := range c.Nodes {
		if n.Name == Input || n.Name == Output {
			return fmt.Errorf("%w: %s", ErrReservedName, n.Name)
		}
		if _, ok := names[n.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateNode, n.Name)
		}
		names[n.Name] = struct{}{}
	}
	for _, conn := range c.Connections {
		for _, name := range []string{conn.From, conn.To} {
			if _, ok := names[name]; !ok {
				return fmt.Errorf("connection %s -> %s: %w: %s", conn.From, conn.To, ErrUnknownNode, name)
			}
		}
	}
	return nil
}

// Options returns graph options for the config.
func (c *Config) Options() ([]rtgraph.Option, error) {
	var options []rtgraph.Option
	if c.Name != "" {
		options = append(options, rtgraph.WithName(c.Name))
	}
	if c.Graph.Inputs > 0 {
		options = append(options, rtgraph.WithGraphInputs(c.Graph.Inputs))
	}
	if c.Graph.Outputs > 0 {
		options = append(options, rtgraph.WithGraphOutputs(c.Graph.Outputs))
	}
	if c.Graph.QueueCapacity > 0 {
		options = append(options, rtgraph.WithQueueCapacity(c.Graph.QueueCapacity))
	}
	if c.Graph.QueuePolicy != "" {
		p, err := event.ParsePolicy(c.Graph.QueuePolicy)
		if err != nil {
			return nil, err
		}
		options = append(options, rtgraph.WithQueuePolicy(p))
	}
	if c.Metrics.Enabled {
		options = append(options, rtgraph.WithMetrics())
	}
	return options, nil
}

// Node returns the node with the name.
func (c *Config) Node(name string) (Node, bool) {
	for _, n := range c.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// Pairs returns channel pairs of the connection. If no channels are
// listed, the first n channels are connected.
func (c Connection) Pairs(n int) []rtgraph.ChannelPair {
	if len(c.Channels) == 0 {
		pairs := make([]rtgraph.ChannelPair, n)
		for i := range pairs {
			pairs[i] = rtgraph.ChannelPair{Src: i, Dst: i}
		}
		return pairs
	}
	pairs := make([]rtgraph.ChannelPair, 0, len(c.Channels))
	for _, p := range c.Channels {
		pairs = append(pairs, rtgraph.ChannelPair{Src: p.Src, Dst: p.Dst})
	}
	return pairs
}
