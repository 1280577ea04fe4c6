package node

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"pipelined.dev/rtgraph/internal/ring"
)

// LogEntry is a message logged from the realtime domain.
type LogEntry struct {
	Level   logrus.Level
	Message string
	Err     error
}

// RealtimeLogger lets processors log without blocking. Entries are kept in
// a fixed ring and written by the control side. Messages should be
// constants: formatting a message allocates. Entries that don't fit are
// counted and dropped.
type RealtimeLogger struct {
	entries *ring.Ring[LogEntry]
	dropped atomic.Uint64
}

// NewRealtimeLogger returns a logger that holds up to capacity entries.
func NewRealtimeLogger(capacity int) *RealtimeLogger {
	return &RealtimeLogger{
		entries: ring.New[LogEntry](capacity),
	}
}

func (l *RealtimeLogger) log(level logrus.Level, msg string, err error) {
	if l == nil {
		return
	}
	if !l.entries.Push(LogEntry{Level: level, Message: msg, Err: err}) {
		l.dropped.Add(1)
	}
}

// Debug logs a debug message.
func (l *RealtimeLogger) Debug(msg string) {
	l.log(logrus.DebugLevel, msg, nil)
}

// Info logs an info message.
func (l *RealtimeLogger) Info(msg string) {
	l.log(logrus.InfoLevel, msg, nil)
}

// Warn logs a warning.
func (l *RealtimeLogger) Warn(msg string) {
	l.log(logrus.WarnLevel, msg, nil)
}

// Error logs an error with a message.
func (l *RealtimeLogger) Error(msg string, err error) {
	l.log(logrus.ErrorLevel, msg, err)
}

// Drain calls fn for every logged entry. Called from the control side.
func (l *RealtimeLogger) Drain(fn func(LogEntry)) int {
	n := 0
	for {
		e, ok := l.entries.Pop()
		if !ok {
			return n
		}
		fn(e)
		n++
	}
}

// Dropped returns the number of entries that didn't fit.
func (l *RealtimeLogger) Dropped() uint64 {
	return l.dropped.Load()
}
