package rtgraph

import (
	"github.com/sirupsen/logrus"

	"pipelined.dev/rtgraph/collector"
	"pipelined.dev/rtgraph/event"
)

// Option provides a way to set functional parameters to the graph.
type Option func(*Context)

// WithName sets the name of the graph used in logs.
func WithName(name string) Option {
	return func(cx *Context) {
		cx.name = name
	}
}

// WithLogger sets the logger of the graph.
func WithLogger(l logrus.FieldLogger) Option {
	return func(cx *Context) {
		cx.logger = l
	}
}

// WithGraphInputs sets the number of input channels of the graph.
func WithGraphInputs(n int) Option {
	return func(cx *Context) {
		cx.numInputs = clampChannels(n)
	}
}

// WithGraphOutputs sets the number of output channels of the graph.
func WithGraphOutputs(n int) Option {
	return func(cx *Context) {
		cx.numOutputs = clampChannels(n)
	}
}

// WithQueueCapacity sets the capacity of every node event queue.
func WithQueueCapacity(n int) Option {
	return func(cx *Context) {
		if n > 0 {
			cx.queueCapacity = n
		}
	}
}

// WithQueuePolicy sets what happens when the node event queue is full.
func WithQueuePolicy(p event.Policy) Option {
	return func(cx *Context) {
		cx.queuePolicy = p
	}
}

// WithCollector sets the collector for released handles. Update drains
// it.
func WithCollector(c *collector.Collector) Option {
	return func(cx *Context) {
		cx.collector = c
	}
}

// WithMetrics enables node metrics.
func WithMetrics() Option {
	return func(cx *Context) {
		cx.metrics = true
	}
}
