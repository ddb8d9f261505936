package stage

import (
	"context"
	"log/slog"
	"time"

	"carousel/internal/logging"
	"carousel/internal/worker"
)

// ScanManager drives the pooled scan workers: one per device being
// scanned. Results arrive on the shared event channel.
type ScanManager struct {
	pool   *worker.Pool
	events chan<- Event
	logger *slog.Logger
}

// NewScanManager builds the scan stage over a pooled worker channel.
func NewScanManager(factory worker.Factory, grace time.Duration, events chan<- Event, logger *slog.Logger) *ScanManager {
	m := &ScanManager{events: events, logger: logging.NewComponentLogger(logger, "scan-stage")}
	m.pool = worker.NewPool(Scan, factory, grace, m.sink, logger)
	return m
}

// Start spawns a scan worker for the device.
func (m *ScanManager) Start(ctx context.Context, deviceID int, req ScanRequest) error {
	env, err := worker.NewEnvelope(deviceID, KindScanStart, req)
	if err != nil {
		return err
	}
	return m.pool.Start(ctx, deviceID, env)
}

// Resume releases a worker paused on a recoverable error, retrying the
// failed operation.
func (m *ScanManager) Resume(deviceID int) error {
	env, err := worker.NewEnvelope(deviceID, worker.KindControlResume, nil)
	if err != nil {
		return err
	}
	return m.pool.Send(deviceID, env)
}

// Stop requests graceful shutdown of one device's scan worker.
func (m *ScanManager) Stop(deviceID int) { m.pool.Stop(deviceID) }

// StopAll stops every scan worker, blocking until they exit.
func (m *ScanManager) StopAll() { m.pool.StopAll() }

func (m *ScanManager) sink(env worker.Envelope) {
	switch env.Kind {
	case KindScanBatch:
		var batch ScanBatch
		if err := env.Decode(&batch); err != nil {
			m.logger.Warn("dropping undecodable scan batch", logging.Error(err))
			return
		}
		m.events <- ScanBatchEvent{DeviceID: env.DeviceID, Files: batch.Files}
	case KindScanError:
		var se ScanError
		if err := env.Decode(&se); err != nil {
			m.logger.Warn("dropping undecodable scan error", logging.Error(err))
			return
		}
		m.events <- ScanErrorEvent{DeviceID: env.DeviceID, Path: se.Path, Error: se.Error, Recoverable: se.Recoverable}
	case worker.KindFinished:
		m.events <- finishedEvent(Scan, env, m.logger)
	default:
		m.logger.Warn("unknown scan envelope kind", logging.String(logging.FieldEventType, env.Kind))
	}
}

// finishedEvent decodes a worker.finished envelope into its event. An
// undecodable payload is treated as an unexpected exit.
func finishedEvent(stage string, env worker.Envelope, logger *slog.Logger) WorkerFinishedEvent {
	var fin worker.FinishedPayload
	if err := env.Decode(&fin); err != nil {
		logger.Warn("undecodable finished payload", logging.Error(err))
		fin = worker.FinishedPayload{Unexpected: true, Error: err.Error()}
	}
	return WorkerFinishedEvent{Stage: stage, DeviceID: env.DeviceID, Unexpected: fin.Unexpected, Error: fin.Error}
}
