package main

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// controller owns the store and every task that reads or writes it.
type controller struct {
	cfg      Config
	log      *slog.Logger
	params   *Params
	inbox    *Inbox
	listener *Listener
	sched    *Scheduler
	engine   EngineCloser
	status   *statusServer
}

func newController(cfg Config, log *slog.Logger) (*controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	params := NewParams()

	engine, err := newEngine(cfg, log)
	if err != nil {
		return nil, err
	}

	inbox, err := ListenInbox(cfg.Listen, log)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}

	c := &controller{
		cfg:      cfg,
		log:      log,
		params:   params,
		inbox:    inbox,
		listener: NewListener(params, inbox, cfg.Wait, log),
		sched:    NewScheduler(params, engine, beatDuration(cfg.BPM), log),
		engine:   engine,
	}
	if cfg.HTTP != "" {
		c.status = newStatusServer(params, c.sched, log)
	}
	return c, nil
}

// Run starts the inbox, listener, scheduler and optional status server and
// blocks until ctx is cancelled or one of them fails.
func (c *controller) Run(ctx context.Context) error {
	defer func() {
		if err := c.engine.Close(); err != nil {
			c.log.Warn("closing engine", "err", err)
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(c.inbox.Serve(ctx)) })
	g.Go(func() error { return ignoreCanceled(c.listener.Run(ctx)) })
	g.Go(func() error { return ignoreCanceled(c.sched.Run(ctx)) })
	if c.status != nil {
		g.Go(func() error { return c.status.Run(ctx, c.cfg.HTTP) })
	}

	c.log.Info("controller running",
		"listen", c.cfg.Listen, "engine", c.cfg.Engine, "bpm", c.cfg.BPM, "http", c.cfg.HTTP)
	err := g.Wait()
	c.log.Info("controller stopped", "stats", c.sched.Stats())
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
