package worker

import "context"

// Transport is the message conduit to one out-of-process worker. Messages
// yields the worker's envelopes and is closed when its output ends; Wait
// blocks until the process has exited.
type Transport interface {
	Start(ctx context.Context) error
	Send(env Envelope) error
	Messages() <-chan Envelope
	Wait() error
	Kill() error
}

// Factory builds a fresh transport per worker. Pooled channels call it once
// per device; singleton channels call it once per process lifetime.
type Factory func() Transport
