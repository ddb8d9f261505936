package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"carousel/internal/logging"
)

// Daemon is the singleton worker channel: one worker lives for the process
// lifetime and serializes requests from all devices. Used by the rename
// stage, whose sequence numbering must be globally ordered.
type Daemon struct {
	stage  string
	grace  time.Duration
	sink   func(Envelope)
	logger *slog.Logger

	mu sync.Mutex
	r  *runner
}

// NewDaemon returns a singleton channel for one stage.
func NewDaemon(stage string, grace time.Duration, sink func(Envelope), logger *slog.Logger) *Daemon {
	return &Daemon{
		stage:  stage,
		grace:  grace,
		sink:   sink,
		logger: logging.NewComponentLogger(logger, stage+"-daemon"),
	}
}

// Start spawns the singleton worker. Idempotent while the worker lives.
func (d *Daemon) Start(ctx context.Context, factory Factory) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.r != nil {
		return nil
	}

	transport := factory()
	if err := transport.Start(ctx); err != nil {
		return fmt.Errorf("start %s daemon worker: %w", d.stage, err)
	}
	r := newRunner(d.stage, 0, transport, d.sink, d.logger)
	d.r = r
	go func() {
		r.pump()
		d.mu.Lock()
		if d.r == r {
			d.r = nil
		}
		d.mu.Unlock()
	}()
	return nil
}

// Send enqueues a request to the singleton worker.
func (d *Daemon) Send(env Envelope) error {
	d.mu.Lock()
	r := d.r
	d.mu.Unlock()
	if r == nil {
		return errors.New(d.stage + " daemon worker not running")
	}
	return r.transport.Send(env)
}

// Stop shuts the singleton worker down, blocking until it exits or the
// grace period forces a kill.
func (d *Daemon) Stop() {
	d.mu.Lock()
	r := d.r
	d.mu.Unlock()
	if r == nil {
		return
	}
	r.stop(d.grace)
}
