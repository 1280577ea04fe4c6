// Package node defines the contract between the graph and the nodes it
// hosts.
//
// A node type implements AudioNode. When a node is added to the graph, its
// Info is queried once and its Processor is constructed on the control
// goroutine. The processor is then moved to the audio callback and never
// touched by the control side again, except for Close after the node is
// destroyed. Parameter changes reach the processor as patches through its
// ProcEvents.
//
// Process is called from the realtime domain: it must not allocate, lock,
// block or do I/O. Everything a processor needs must be allocated in
// ConstructProcessor or in NewStream.
package node

import (
	"pipelined.dev/rtgraph/collector"
	"pipelined.dev/rtgraph/event"
)

type (
	// AudioNode describes a node type. C is the construction config of
	// the node, nil config passed to the graph means default config.
	AudioNode[C any] interface {
		// Info returns the static description of the node. It's called
		// once when the node is added.
		Info(config C) Info
		// ConstructProcessor returns a new processor for the node. It's
		// called once on the control goroutine.
		ConstructProcessor(config C, cx ConstructContext) (Processor, error)
	}

	// Processor is the realtime part of a node.
	Processor interface {
		Process(info *ProcInfo, buffers ProcBuffers, events *event.ProcEvents, extra *ProcExtra) ProcessStatus
	}

	// StreamStarter is implemented by processors that need to prepare for
	// the stream parameters. NewStream is called on the control goroutine
	// before the stream is started, so it may allocate.
	StreamStarter interface {
		NewStream(info StreamInfo) error
	}

	// StreamStopper is implemented by processors that want to be notified
	// when the stream stops. StreamStopped is called from the realtime
	// domain.
	StreamStopper interface {
		StreamStopped()
	}
)

type (
	// Info is the static description of a node instance.
	Info struct {
		// DebugName is used in logs and metrics.
		DebugName string
		Channels  ChannelConfig
		// CustomState is shared between the node and its processor. It's
		// available to the processor through ConstructContext.
		CustomState any
	}

	// StreamInfo describes the running stream. Zero values mean the
	// stream was not started yet.
	StreamInfo struct {
		SampleRate       int
		MaxBlockFrames   int
		NumStreamInputs  int
		NumStreamOutputs int
	}

	// ConstructContext is passed to ConstructProcessor.
	ConstructContext struct {
		Stream StreamInfo
		// Collector receives handles released by the processor. Handles
		// allocated for the processor should use it.
		Collector   *collector.Collector
		customState any
	}
)

// NewConstructContext returns a construct context.
func NewConstructContext(stream StreamInfo, c *collector.Collector, customState any) ConstructContext {
	return ConstructContext{
		Stream:      stream,
		Collector:   c,
		customState: customState,
	}
}

// CustomState returns the custom state from the node info.
func (cx ConstructContext) CustomState() any {
	return cx.customState
}

// CustomStateAs returns the custom state of type T. False is returned if
// the state is not set or has a different type.
func CustomStateAs[T any](cx ConstructContext) (T, bool) {
	v, ok := cx.customState.(T)
	return v, ok
}
