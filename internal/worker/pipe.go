package worker

import (
	"context"
	"errors"
	"sync"
)

// RunFunc is a worker body run in-process: it consumes request envelopes
// from in and writes results to out. Used by tests and by the worker
// subcommand's run loops.
type RunFunc func(ctx context.Context, in <-chan Envelope, out chan<- Envelope) error

// pipeTransport runs a worker body in a goroutine instead of a child
// process, preserving the envelope protocol end to end.
type pipeTransport struct {
	run RunFunc

	in     chan Envelope
	out    chan Envelope
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	err    error
}

// NewPipeTransport returns an in-process transport around the run body.
func NewPipeTransport(run RunFunc) Transport {
	return &pipeTransport{
		run:  run,
		in:   make(chan Envelope, 16),
		out:  make(chan Envelope, 16),
		done: make(chan struct{}),
	}
}

func (t *pipeTransport) Start(ctx context.Context) error {
	ctx, t.cancel = context.WithCancel(ctx)
	go func() {
		defer close(t.done)
		defer close(t.out)
		t.err = t.run(ctx, t.in, t.out)
	}()
	return nil
}

func (t *pipeTransport) Send(env Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("transport closed")
	}
	select {
	case t.in <- env:
		return nil
	case <-t.done:
		return errors.New("worker exited")
	}
}

func (t *pipeTransport) Messages() <-chan Envelope { return t.out }

func (t *pipeTransport) Wait() error {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.in)
	}
	t.mu.Unlock()
	<-t.done
	return t.err
}

func (t *pipeTransport) Kill() error {
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}
