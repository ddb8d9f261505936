package stage

import (
	"context"
	"log/slog"
	"time"

	"carousel/internal/logging"
	"carousel/internal/worker"
)

// RenameManager drives the singleton rename worker. A single worker
// serializes every device's renames so sequence numbers advance in one
// global order.
type RenameManager struct {
	daemon  *worker.Daemon
	factory worker.Factory
	events  chan<- Event
	logger  *slog.Logger
}

// NewRenameManager builds the rename stage over the singleton channel.
func NewRenameManager(factory worker.Factory, grace time.Duration, events chan<- Event, logger *slog.Logger) *RenameManager {
	m := &RenameManager{factory: factory, events: events, logger: logging.NewComponentLogger(logger, "rename-stage")}
	m.daemon = worker.NewDaemon(Rename, grace, m.sink, logger)
	return m
}

// Start spawns the singleton worker; it lives until Stop.
func (m *RenameManager) Start(ctx context.Context) error {
	return m.daemon.Start(ctx, m.factory)
}

// Rename enqueues one copied file for naming and final placement.
func (m *RenameManager) Rename(req RenameRequest) error {
	env, err := worker.NewEnvelope(req.File.DeviceID, KindRenameFile, req)
	if err != nil {
		return err
	}
	return m.daemon.Send(env)
}

// Stop shuts the singleton worker down, blocking until it exits.
func (m *RenameManager) Stop() { m.daemon.Stop() }

func (m *RenameManager) sink(env worker.Envelope) {
	switch env.Kind {
	case KindRenameFile:
		var res RenameResult
		if err := env.Decode(&res); err != nil {
			m.logger.Warn("dropping undecodable rename result", logging.Error(err))
			return
		}
		m.events <- RenameFileEvent{File: res.File, Sequences: res.Sequences}
	case worker.KindFinished:
		m.events <- finishedEvent(Rename, env, m.logger)
	default:
		m.logger.Warn("unknown rename envelope kind", logging.String(logging.FieldEventType, env.Kind))
	}
}
