// Package log provides loggers for the control side of the graph. The
// audio callback never logs directly, see node.RealtimeLogger.
package log

import (
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// DebugEnv enables debug level for all loggers when set to true.
const DebugEnv = "RTGRAPH_DEBUG"

var debug bool

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv(DebugEnv))
	if err != nil {
		debug = false
	}
}

// GetLogger returns a new logger instance.
func GetLogger() *logrus.Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// NewLogger returns a logger with the level parsed from the string. Debug
// level is used if RTGRAPH_DEBUG is set regardless of the provided level.
func NewLogger(level string, json bool) (*logrus.Logger, error) {
	l := GetLogger()
	if json {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	if debug || level == "" {
		return l, nil
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	l.SetLevel(lvl)
	return l, nil
}

// Discard returns a logger that writes nothing.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
