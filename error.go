package rtgraph

import (
	"errors"
	"fmt"
	"strings"

	"pipelined.dev/rtgraph/internal/schedule"
)

var (
	// ErrNodeNotFound is returned when the node id is unknown or the node
	// was destroyed.
	ErrNodeNotFound = errors.New("node not found")
	// ErrChannelOutOfRange is returned when the channel index exceeds the
	// node's channel count.
	ErrChannelOutOfRange = errors.New("channel out of range")
	// ErrCycle is returned when the connection creates a cycle and
	// feedback was not allowed.
	ErrCycle = schedule.ErrCycle
	// ErrDuplicateEdge is returned when the connection already exists.
	ErrDuplicateEdge = errors.New("duplicate edge")
	// ErrEdgeNotFound is returned when the connection to remove doesn't
	// exist.
	ErrEdgeNotFound = errors.New("edge not found")
	// ErrInvalidState is returned if the method cannot be executed for
	// the node or the graph at this moment.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidConfig is returned when the node config is not valid.
	ErrInvalidConfig = errors.New("invalid node config")
	// ErrQueueFull is returned when the node event queue is full and the
	// stream is not running to drain it.
	ErrQueueFull = errors.New("event queue is full")
	// ErrAlreadyRunning is returned when the stream is started twice.
	ErrAlreadyRunning = errors.New("stream is already running")
	// ErrNotRunning is returned when the stream is stopped but not
	// running.
	ErrNotRunning = errors.New("stream is not running")
	// ErrStreamStoppedUnexpectedly is matched by the error returned from
	// Update after the stream terminated by itself.
	ErrStreamStoppedUnexpectedly = errors.New("stream stopped unexpectedly")
)

// ConnectError is returned if the connection is rejected. The graph is not
// modified in that case.
type ConnectError struct {
	Src  NodeID
	Dst  NodeID
	Pair ChannelPair
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %v:%d -> %v:%d: %v", e.Src, e.Pair.Src, e.Dst, e.Pair.Dst, e.Err)
}

// Unwrap returns the reason of the rejection.
func (e *ConnectError) Unwrap() error {
	return e.Err
}

// StreamStartError is returned if the stream failed to start.
type StreamStartError struct {
	Err error
}

func (e *StreamStartError) Error() string {
	return fmt.Sprintf("error starting stream: %v", e.Err)
}

// Unwrap returns the cause.
func (e *StreamStartError) Unwrap() error {
	return e.Err
}

// StreamStoppedError is returned by Update after the stream terminated
// without being stopped. It matches ErrStreamStoppedUnexpectedly.
type StreamStoppedError struct {
	Err error
}

func (e *StreamStoppedError) Error() string {
	return fmt.Sprintf("stream stopped: %v", e.Err)
}

// Is checks if the target is ErrStreamStoppedUnexpectedly.
func (e *StreamStoppedError) Is(target error) bool {
	return target == ErrStreamStoppedUnexpectedly
}

// Unwrap returns the backend error.
func (e *StreamStoppedError) Unwrap() error {
	return e.Err
}

// ProcessorFaultError is returned by Update when a processor reported a
// fault. The node keeps running, its outputs are silenced while it
// faults.
type ProcessorFaultError struct {
	Node NodeID
	Name string
	Err  error
}

func (e *ProcessorFaultError) Error() string {
	return fmt.Sprintf("processor %s (%v) fault: %v", e.Name, e.Node, e.Err)
}

// Unwrap returns the processor error.
func (e *ProcessorFaultError) Unwrap() error {
	return e.Err
}

// updateErrors wraps errors that might occur during a single update.
type updateErrors []error

func (e updateErrors) Error() string {
	s := []string{}
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// Unwrap allows to match any of the errors.
func (e updateErrors) Unwrap() []error {
	return e
}

// ret returns untyped nil if error is list is empty and the error itself
// if it's the only one.
func (e updateErrors) ret() error {
	switch len(e) {
	case 0:
		return nil
	case 1:
		return e[0]
	}
	return e
}
