package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"pipelined.dev/rtgraph"
	"pipelined.dev/rtgraph/backend"
	"pipelined.dev/rtgraph/config"
	"pipelined.dev/rtgraph/log"
	"pipelined.dev/rtgraph/nodes"
)

const (
	defaultUpdateInterval = 10 * time.Millisecond
	configDebounce        = 100 * time.Millisecond
)

type (
	runOptions struct {
		logLevel string
		logJSON  bool
		watch    bool
		interval time.Duration
	}

	// backendFunc returns the backend for the loaded config. It may
	// change the stream config.
	backendFunc func(c *config.Config) (backend.Backend, error)

	session struct {
		path   string
		cx     *rtgraph.Context
		set    *nodes.Set
		logger logrus.FieldLogger
		// errors are logged at most once per second.
		errLimit *rate.Limiter
	}
)

// runGraph builds the graph described in path and runs it until the
// stream ends or ctx is done.
func runGraph(ctx context.Context, opts *runOptions, path string, stderr io.Writer, newBackend backendFunc) error {
	c, err := config.Load(path)
	if err != nil {
		return err
	}
	logger, err := newLogger(c, opts, stderr)
	if err != nil {
		return err
	}
	options, err := c.Options()
	if err != nil {
		return err
	}
	b, err := newBackend(c)
	if err != nil {
		return err
	}

	cx := rtgraph.New(append(options, rtgraph.WithLogger(logger))...)
	defer func() {
		if err := cx.Close(); err != nil {
			logger.WithError(err).Error("error closing graph")
		}
	}()
	set, err := registry.Build(cx, c)
	if err != nil {
		return err
	}
	defer set.Release()

	if err := cx.StartStream(b, c.Stream); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	s := &session{
		path:     path,
		cx:       cx,
		set:      set,
		logger:   logger,
		errLimit: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	var reload chan *config.Config
	if opts.watch {
		w, err := newWatcher(path, configDebounce, logger)
		if err != nil {
			return err
		}
		reload = make(chan *config.Config, 1)
		g.Go(func() error {
			return w.run(ctx, func() {
				s.load(reload)
			})
		})
	}
	if c.Metrics.Addr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, c.Metrics.Addr, logger)
		})
	}
	g.Go(func() error {
		defer cancel()
		return s.update(ctx, opts.interval, reload)
	})
	return g.Wait()
}

func newLogger(c *config.Config, opts *runOptions, out io.Writer) (*logrus.Logger, error) {
	level := c.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	l, err := log.NewLogger(level, c.Log.JSON || opts.logJSON)
	if err != nil {
		return nil, err
	}
	l.SetOutput(out)
	return l, nil
}

// update calls Update until the stream is stopped or ctx is done.
func (s *session) update(ctx context.Context, interval time.Duration, reload <-chan *config.Config) error {
	if interval <= 0 {
		interval = defaultUpdateInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-reload:
			if err := s.set.Sync(c); err != nil {
				s.logger.WithError(err).Warn("params were partially reloaded")
			} else {
				s.logger.Info("params reloaded")
			}
		case <-ticker.C:
		}

		err := s.cx.Update()
		if errors.Is(err, rtgraph.ErrStreamStoppedUnexpectedly) {
			return err
		}
		if err != nil && s.errLimit.Allow() {
			s.logger.WithError(err).Error("graph update failed")
		}
		if s.cx.StreamState() != rtgraph.StreamRunning {
			return nil
		}
	}
}

// load reads the changed config. The latest config replaces the one that
// wasn't consumed yet.
func (s *session) load(reload chan *config.Config) {
	c, err := config.Load(s.path)
	if err != nil {
		s.logger.WithError(err).Warn("config was not reloaded")
		return
	}
	for {
		select {
		case reload <- c:
			return
		default:
		}
		select {
		case <-reload:
		default:
		}
	}
}
