package stage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"carousel/internal/logging"
	"carousel/internal/worker"
)

// BackupManager drives the pooled backup workers: one per destination,
// spawned lazily on the first file routed to it. The pool is keyed by
// destination identifier, not source device.
type BackupManager struct {
	pool   *worker.Pool
	events chan<- Event
	logger *slog.Logger

	mu    sync.Mutex
	paths map[int]string // destination id -> path, for event attribution
}

// NewBackupManager builds the backup stage over a pooled worker channel.
func NewBackupManager(factory worker.Factory, grace time.Duration, events chan<- Event, logger *slog.Logger) *BackupManager {
	m := &BackupManager{
		events: events,
		logger: logging.NewComponentLogger(logger, "backup-stage"),
		paths:  make(map[int]string),
	}
	m.pool = worker.NewPool(Backup, factory, grace, m.sink, logger)
	return m
}

// Backup routes one file to a destination's worker, spawning it on first
// use.
func (m *BackupManager) Backup(ctx context.Context, destinationID int, req BackupRequest) error {
	m.mu.Lock()
	m.paths[destinationID] = req.DestinationPath
	m.mu.Unlock()

	env, err := worker.NewEnvelope(destinationID, KindBackupFile, req)
	if err != nil {
		return err
	}
	if m.pool.Running(destinationID) {
		return m.pool.Send(destinationID, env)
	}
	return m.pool.Start(ctx, destinationID, env)
}

// StopDestination shuts down one destination's worker, for a destination
// that disappeared mid-session.
func (m *BackupManager) StopDestination(destinationID int) {
	m.pool.Stop(destinationID)
	m.mu.Lock()
	delete(m.paths, destinationID)
	m.mu.Unlock()
}

// StopAll stops every backup worker, blocking until they exit.
func (m *BackupManager) StopAll() { m.pool.StopAll() }

func (m *BackupManager) sink(env worker.Envelope) {
	switch env.Kind {
	case KindBackupBytes:
		var bb BackupBytes
		if err := env.Decode(&bb); err != nil {
			m.logger.Warn("dropping undecodable backup progress", logging.Error(err))
			return
		}
		m.events <- BackupProgressEvent{SourceDeviceID: bb.SourceDeviceID, Chunk: bb.Chunk}
	case KindBackupFile:
		var res BackupResult
		if err := env.Decode(&res); err != nil {
			m.logger.Warn("dropping undecodable backup result", logging.Error(err))
			return
		}
		m.events <- BackupFileEvent{
			DestinationID:   env.DeviceID,
			DestinationPath: res.DestinationPath,
			File:            res.File,
			OK:              res.OK,
			Error:           res.Error,
		}
	case worker.KindFinished:
		m.events <- finishedEvent(Backup, env, m.logger)
	default:
		m.logger.Warn("unknown backup envelope kind", logging.String(logging.FieldEventType, env.Kind))
	}
}
