package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"carousel/internal/logging"
)

// Pool is the per-device worker channel: one worker is spawned per device
// on demand and stopped when that device's stage work completes. Used by
// the scan, copy, and backup stages.
type Pool struct {
	stage   string
	factory Factory
	grace   time.Duration
	sink    func(Envelope)
	logger  *slog.Logger

	mu      sync.Mutex
	workers map[int]*runner
}

// NewPool returns a pooled channel for one stage. Results from every
// worker are delivered through the single sink; the pool neither reorders
// nor buffers them.
func NewPool(stage string, factory Factory, grace time.Duration, sink func(Envelope), logger *slog.Logger) *Pool {
	return &Pool{
		stage:   stage,
		factory: factory,
		grace:   grace,
		sink:    sink,
		logger:  logging.NewComponentLogger(logger, stage+"-pool"),
		workers: make(map[int]*runner),
	}
}

// Start spawns a worker for the device and enqueues its initial request.
func (p *Pool) Start(ctx context.Context, deviceID int, env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.workers[deviceID]; exists {
		return fmt.Errorf("%s worker already running for device %d", p.stage, deviceID)
	}

	transport := p.factory()
	if err := transport.Start(ctx); err != nil {
		return fmt.Errorf("start %s worker for device %d: %w", p.stage, deviceID, err)
	}
	r := newRunner(p.stage, deviceID, transport, p.sink, p.logger)
	p.workers[deviceID] = r
	go func() {
		r.pump()
		p.mu.Lock()
		delete(p.workers, deviceID)
		p.mu.Unlock()
	}()

	return transport.Send(env)
}

// Send enqueues a follow-up request to the device's running worker.
func (p *Pool) Send(deviceID int, env Envelope) error {
	p.mu.Lock()
	r := p.workers[deviceID]
	p.mu.Unlock()
	if r == nil {
		return fmt.Errorf("no %s worker for device %d", p.stage, deviceID)
	}
	return r.transport.Send(env)
}

// Running reports whether a worker is active for the device.
func (p *Pool) Running(deviceID int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.workers[deviceID]
	return ok
}

// Stop requests graceful shutdown of one device's worker without blocking
// the caller; the worker is killed if it outlives the grace period.
func (p *Pool) Stop(deviceID int) {
	p.mu.Lock()
	r := p.workers[deviceID]
	p.mu.Unlock()
	if r == nil {
		return
	}
	go r.stop(p.grace)
}

// StopAll stops every running worker and blocks until all have exited.
// Used at shutdown so worker processes never outlive the daemon.
func (p *Pool) StopAll() {
	p.mu.Lock()
	running := make([]*runner, 0, len(p.workers))
	for _, r := range p.workers {
		running = append(running, r)
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, r := range running {
		wg.Add(1)
		go func(r *runner) {
			defer wg.Done()
			r.stop(p.grace)
		}(r)
	}
	wg.Wait()
}
