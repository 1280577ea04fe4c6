// Package metric measures processing of graph nodes. Counters are
// published with expvar and keyed by node type, so all nodes of the same
// type share them. Meters are updated from the audio callback and use
// only atomic operations.
package metric

import (
	"expvar"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const componentsLabel = "rtgraph.nodes"

const (
	// BlockCounter measures number of processed blocks.
	BlockCounter = "Blocks"
	// FrameCounter measures number of processed frames.
	FrameCounter = "Frames"
	// EventCounter measures number of events delivered to processors.
	EventCounter = "Events"
	// BypassCounter measures number of bypassed blocks.
	BypassCounter = "Bypassed"
	// FaultCounter measures number of blocks that faulted.
	FaultCounter = "Faults"
	// LatencyCounter measures latency between processing calls.
	LatencyCounter = "Latency"
	// ProcessCounter measures duration of the last processing call.
	ProcessCounter = "Process"
	// DurationCounter counts what's the duration of processed signal.
	DurationCounter = "Duration"
	// NodeCounter counts number of metered nodes.
	NodeCounter = "Nodes"
)

var (
	components = metrics{
		m: make(map[string]*metric),
	}

	counters = []string{
		BlockCounter,
		FrameCounter,
		EventCounter,
		BypassCounter,
		FaultCounter,
		LatencyCounter,
		ProcessCounter,
		DurationCounter,
		NodeCounter,
	}
)

// Get metrics values for provided node type.
func Get(nodeType string) map[string]string {
	return getCounters(nodeType)
}

// GetAll returns counters for all measured node types.
func GetAll() map[string]map[string]string {
	m := make(map[string]map[string]string)
	for _, nodeType := range components.types() {
		m[nodeType] = getCounters(nodeType)
	}
	return m
}

func getCounters(nodeType string) map[string]string {
	m := make(map[string]string)
	for _, counter := range counters {
		v := expvar.Get(key(nodeType, counter))
		if v != nil {
			m[counter] = v.String()
		}
	}
	return m
}

// Meter captures counters of a single node. It must not be shared
// between goroutines that process concurrently.
type Meter struct {
	m          *metric
	sampleRate int64
	calledAt   time.Time
	frames     int64
	frameTime  time.Duration
}

// NewMeter returns a meter for a node of provided type. It's called on
// the control side when the node is added.
func NewMeter(nodeType string) *Meter {
	m := components.get(nodeType)
	m.nodes.Add(1)
	return &Meter{m: m}
}

// Reset prepares the meter for a new stream.
func (m *Meter) Reset(sampleRate int) {
	if m == nil {
		return
	}
	m.sampleRate = int64(sampleRate)
	m.calledAt = time.Time{}
	m.frames = 0
	m.frameTime = 0
}

// Begin is called before the processor is called. It returns the start
// time to pass to End.
func (m *Meter) Begin() time.Time {
	if m == nil {
		return time.Time{}
	}
	now := time.Now()
	if !m.calledAt.IsZero() {
		m.m.latency.set(now.Sub(m.calledAt))
	}
	m.calledAt = now
	return now
}

// End captures the block counters.
func (m *Meter) End(start time.Time, frames, events int) {
	if m == nil {
		return
	}
	m.m.process.set(time.Since(start))
	m.m.blocks.Add(1)
	m.m.frames.Add(int64(frames))
	m.m.events.Add(int64(events))
	// recalculate block duration only when block size has changed
	if m.frames != int64(frames) && m.sampleRate > 0 {
		m.frames = int64(frames)
		m.frameTime = time.Duration(m.frames) * time.Second / time.Duration(m.sampleRate)
	}
	m.m.duration.add(m.frameTime)
}

// Bypass counts a bypassed block.
func (m *Meter) Bypass() {
	if m == nil {
		return
	}
	m.m.bypassed.Add(1)
}

// Fault counts a faulted block.
func (m *Meter) Fault() {
	if m == nil {
		return
	}
	m.m.faults.Add(1)
}

// Close decrements the number of metered nodes.
func (m *Meter) Close() {
	if m == nil {
		return
	}
	m.m.nodes.Add(-1)
}

type metrics struct {
	sync.Mutex
	m map[string]*metric
}

func (m *metrics) get(nodeType string) *metric {
	m.Lock()
	defer m.Unlock()
	if metric, ok := m.m[nodeType]; ok {
		// return existing metric if available
		return metric
	}
	// create new metric
	metric := newMetric(nodeType)
	m.m[nodeType] = metric
	return metric
}

func (m *metrics) types() []string {
	m.Lock()
	defer m.Unlock()
	types := make([]string, 0, len(m.m))
	for t := range m.m {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (m *metrics) snapshot() []*metric {
	m.Lock()
	defer m.Unlock()
	s := make([]*metric, 0, len(m.m))
	for _, metric := range m.m {
		s = append(s, metric)
	}
	sort.Slice(s, func(i, j int) bool {
		return s[i].key < s[j].key
	})
	return s
}

type metric struct {
	key      string
	nodes    *expvar.Int
	blocks   *expvar.Int
	frames   *expvar.Int
	events   *expvar.Int
	bypassed *expvar.Int
	faults   *expvar.Int
	latency  *duration
	process  *duration
	duration *duration
}

func newMetric(nodeType string) *metric {
	m := metric{
		key:      nodeType,
		nodes:    expvar.NewInt(key(nodeType, NodeCounter)),
		blocks:   expvar.NewInt(key(nodeType, BlockCounter)),
		frames:   expvar.NewInt(key(nodeType, FrameCounter)),
		events:   expvar.NewInt(key(nodeType, EventCounter)),
		bypassed: expvar.NewInt(key(nodeType, BypassCounter)),
		faults:   expvar.NewInt(key(nodeType, FaultCounter)),
		latency:  &duration{},
		process:  &duration{},
		duration: &duration{},
	}
	expvar.Publish(key(nodeType, LatencyCounter), m.latency)
	expvar.Publish(key(nodeType, ProcessCounter), m.process)
	expvar.Publish(key(nodeType, DurationCounter), m.duration)
	return &m
}

func key(nodeType, counter string) string {
	return fmt.Sprintf("%s.%s.%s", componentsLabel, nodeType, counter)
}

// duration allows to format time.Duration metric values.
type duration struct {
	d int64
}

func (v *duration) String() string {
	return fmt.Sprintf("%q", time.Duration(atomic.LoadInt64(&v.d)))
}

func (v *duration) add(delta time.Duration) {
	atomic.AddInt64(&v.d, int64(delta))
}

func (v *duration) set(value time.Duration) {
	atomic.StoreInt64(&v.d, int64(value))
}

func (v *duration) value() time.Duration {
	return time.Duration(atomic.LoadInt64(&v.d))
}
