package worker

import (
	"log/slog"
	"sync/atomic"
	"time"

	"carousel/internal/logging"
)

// runner pumps one transport's messages into the sink and reports the
// worker's exit exactly once. A worker that exits without sending its own
// finished envelope gets a synthesized one, flagged unexpected unless a
// stop was requested.
type runner struct {
	stage     string
	deviceID  int
	transport Transport
	sink      func(Envelope)
	logger    *slog.Logger

	stopping atomic.Bool
	done     chan struct{}
}

func newRunner(stage string, deviceID int, transport Transport, sink func(Envelope), logger *slog.Logger) *runner {
	return &runner{
		stage:     stage,
		deviceID:  deviceID,
		transport: transport,
		sink:      sink,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

func (r *runner) pump() {
	defer close(r.done)

	sawFinished := false
	for env := range r.transport.Messages() {
		if env.Kind == KindFinished {
			sawFinished = true
		}
		r.sink(env)
	}
	err := r.transport.Wait()

	if sawFinished {
		return
	}
	unexpected := !r.stopping.Load()
	payload := FinishedPayload{Unexpected: unexpected}
	if err != nil {
		payload.Error = err.Error()
	}
	if unexpected {
		r.logger.Warn("worker exited unexpectedly",
			logging.String(logging.FieldStage, r.stage),
			logging.Int(logging.FieldDeviceID, r.deviceID),
			logging.Error(err))
	}
	env, envErr := NewEnvelope(r.deviceID, KindFinished, payload)
	if envErr != nil {
		return
	}
	r.sink(env)
}

// stop requests graceful shutdown and kills the worker if it has not
// exited within the grace period.
func (r *runner) stop(grace time.Duration) {
	r.stopping.Store(true)
	stopEnv, err := NewEnvelope(r.deviceID, KindControlStop, nil)
	if err == nil {
		_ = r.transport.Send(stopEnv)
	}
	select {
	case <-r.done:
	case <-time.After(grace):
		r.logger.Warn("worker did not stop within grace period, killing",
			logging.String(logging.FieldStage, r.stage),
			logging.Int(logging.FieldDeviceID, r.deviceID),
			logging.Duration("grace", grace))
		_ = r.transport.Kill()
		<-r.done
	}
}
