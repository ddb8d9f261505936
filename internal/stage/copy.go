package stage

import (
	"context"
	"log/slog"
	"time"

	"carousel/internal/logging"
	"carousel/internal/worker"
)

// CopyManager drives the pooled copy workers: one per downloading device.
type CopyManager struct {
	pool   *worker.Pool
	events chan<- Event
	logger *slog.Logger
}

// NewCopyManager builds the copy stage over a pooled worker channel.
func NewCopyManager(factory worker.Factory, grace time.Duration, events chan<- Event, logger *slog.Logger) *CopyManager {
	m := &CopyManager{events: events, logger: logging.NewComponentLogger(logger, "copy-stage")}
	m.pool = worker.NewPool(Copy, factory, grace, m.sink, logger)
	return m
}

// Start spawns a copy worker for the device's marked files.
func (m *CopyManager) Start(ctx context.Context, deviceID int, req CopyRequest) error {
	env, err := worker.NewEnvelope(deviceID, KindCopyStart, req)
	if err != nil {
		return err
	}
	return m.pool.Start(ctx, deviceID, env)
}

// Pause suspends a device's copy worker between files.
func (m *CopyManager) Pause(deviceID int) error {
	env, err := worker.NewEnvelope(deviceID, worker.KindControlPause, nil)
	if err != nil {
		return err
	}
	return m.pool.Send(deviceID, env)
}

// Resume releases a paused copy worker.
func (m *CopyManager) Resume(deviceID int) error {
	env, err := worker.NewEnvelope(deviceID, worker.KindControlResume, nil)
	if err != nil {
		return err
	}
	return m.pool.Send(deviceID, env)
}

// Stop requests graceful shutdown of one device's copy worker.
func (m *CopyManager) Stop(deviceID int) { m.pool.Stop(deviceID) }

// StopAll stops every copy worker, blocking until they exit.
func (m *CopyManager) StopAll() { m.pool.StopAll() }

func (m *CopyManager) sink(env worker.Envelope) {
	switch env.Kind {
	case KindCopyBytes:
		var cb CopyBytes
		if err := env.Decode(&cb); err != nil {
			m.logger.Warn("dropping undecodable copy progress", logging.Error(err))
			return
		}
		m.events <- CopyProgressEvent{DeviceID: env.DeviceID, TotalCopied: cb.TotalCopied, Chunk: cb.Chunk}
	case KindCopyFile:
		var res CopyFileResult
		if err := env.Decode(&res); err != nil {
			m.logger.Warn("dropping undecodable copy result", logging.Error(err))
			return
		}
		m.events <- CopyFileEvent{File: res.File}
	case worker.KindFinished:
		m.events <- finishedEvent(Copy, env, m.logger)
	default:
		m.logger.Warn("unknown copy envelope kind", logging.String(logging.FieldEventType, env.Kind))
	}
}
