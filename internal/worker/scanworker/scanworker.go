// Package scanworker implements the scan stage's worker body: it walks a
// device's mounted filesystem, classifies photos and videos by extension,
// and reports discoveries in batches.
package scanworker

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"carousel/internal/media"
	"carousel/internal/stage"
	"carousel/internal/worker"
)

const defaultBatchSize = 25

// errStopped aborts the walk when a stop request arrives mid-scan.
var errStopped = errors.New("scan stopped")

// Run is the scan worker body, driven over the envelope protocol.
func Run(ctx context.Context, in <-chan worker.Envelope, out chan<- worker.Envelope) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-in:
			if !ok {
				return nil
			}
			switch env.Kind {
			case stage.KindScanStart:
				var req stage.ScanRequest
				if err := env.Decode(&req); err != nil {
					return err
				}
				if err := scan(ctx, env.DeviceID, req, in, out); err != nil {
					if errors.Is(err, errStopped) {
						return finish(out, env.DeviceID, nil)
					}
					return finish(out, env.DeviceID, err)
				}
				return finish(out, env.DeviceID, nil)
			case worker.KindControlStop:
				return nil
			}
		}
	}
}

func finish(out chan<- worker.Envelope, deviceID int, scanErr error) error {
	payload := worker.FinishedPayload{}
	if scanErr != nil {
		payload.Error = scanErr.Error()
	}
	env, err := worker.NewEnvelope(deviceID, worker.KindFinished, payload)
	if err != nil {
		return err
	}
	out <- env
	return nil
}

func scan(ctx context.Context, deviceID int, req stage.ScanRequest, in <-chan worker.Envelope, out chan<- worker.Envelope) error {
	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	var batch []media.File
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		env, err := worker.NewEnvelope(deviceID, stage.KindScanBatch, stage.ScanBatch{Files: batch})
		if err != nil {
			return err
		}
		out <- env
		batch = nil
		return nil
	}

	walk := func() error {
		return filepath.WalkDir(req.Path, func(path string, d fs.DirEntry, err error) error {
			if stopRequested(in) {
				return errStopped
			}
			if err != nil {
				if recoverable(err) {
					return err
				}
				return nil // unreadable entry, skip it
			}
			if d.IsDir() {
				if ignored(path, req.IgnoredPaths) {
					return fs.SkipDir
				}
				return nil
			}
			ft, ok := media.Classify(path)
			if !ok {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			batch = append(batch, media.File{
				ID:         uuid.NewString(),
				DeviceID:   deviceID,
				Type:       ft,
				Status:     media.StatusDiscovered,
				Name:       d.Name(),
				SourcePath: path,
				Size:       info.Size(),
				ModTime:    info.ModTime().Unix(),
			})
			if len(batch) >= batchSize {
				return flush()
			}
			return nil
		})
	}

	for {
		err := walk()
		switch {
		case err == nil:
			return flush()
		case errors.Is(err, errStopped):
			return errStopped
		case recoverable(err):
			// Report and pause until the retry-or-ignore decision arrives.
			se, envErr := worker.NewEnvelope(deviceID, stage.KindScanError, stage.ScanError{
				Path: req.Path, Error: err.Error(), Recoverable: true,
			})
			if envErr != nil {
				return envErr
			}
			out <- se
			if !awaitResume(ctx, in) {
				return errStopped
			}
			batch = nil // retry rediscovers from the start
		default:
			return err
		}
	}
}

// awaitResume blocks on the control channel after a recoverable error.
// Reports false when the decision is to stop instead of retry.
func awaitResume(ctx context.Context, in <-chan worker.Envelope) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case env, ok := <-in:
			if !ok {
				return false
			}
			switch env.Kind {
			case worker.KindControlResume:
				return true
			case worker.KindControlStop:
				return false
			}
		}
	}
}

func stopRequested(in <-chan worker.Envelope) bool {
	select {
	case env, ok := <-in:
		if !ok {
			return true
		}
		return env.Kind == worker.KindControlStop
	default:
		return false
	}
}

func recoverable(err error) bool {
	return errors.Is(err, fs.ErrPermission)
}

func ignored(path string, suffixes []string) bool {
	base := filepath.Base(path)
	for _, suffix := range suffixes {
		if suffix != "" && strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}
