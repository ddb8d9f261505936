// Package backupworker implements the backup stage's worker body: one
// instance per destination copies downloaded files into that destination,
// streaming progress attributed to each file's source device.
package backupworker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"carousel/internal/stage"
	"carousel/internal/worker"
)

const defaultChunkKiB = 1024

// Run is the backup worker body, driven over the envelope protocol.
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
			case stage.KindBackupFile:
				var req stage.BackupRequest
				if err := env.Decode(&req); err != nil {
					return err
				}
				if err := backupOne(env.DeviceID, req, out); err != nil {
					return err
				}
			case worker.KindControlStop:
				fin, envErr := worker.NewEnvelope(env.DeviceID, worker.KindFinished, worker.FinishedPayload{})
				if envErr != nil {
					return envErr
				}
				out <- fin
				return nil
			}
		}
	}
}

func backupOne(destinationID int, req stage.BackupRequest, out chan<- worker.Envelope) error {
	result := stage.BackupResult{File: req.File, DestinationPath: req.DestinationPath}

	if err := writeBackup(destinationID, req, out); err != nil {
		result.Error = err.Error()
	} else {
		result.OK = true
	}

	res, envErr := worker.NewEnvelope(destinationID, stage.KindBackupFile, result)
	if envErr != nil {
		return envErr
	}
	out <- res
	return nil
}

func writeBackup(destinationID int, req stage.BackupRequest, out chan<- worker.Envelope) error {
	src, err := os.Open(req.File.FinalPath)
	if err != nil {
		return fmt.Errorf("open downloaded file: %w", err)
	}
	defer src.Close()

	destDir := filepath.Join(req.DestinationPath, req.Subfolder)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	destPath := filepath.Join(destDir, filepath.Base(req.File.FinalPath))
	if _, err := os.Stat(destPath); err == nil && !req.Overwrite {
		destPath = collisionPath(destPath)
	}

	dst, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}

	chunkSize := req.ChunkKiB
	if chunkSize <= 0 {
		chunkSize = defaultChunkKiB
	}
	buf := make([]byte, chunkSize*1024)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				dst.Close()
				os.Remove(destPath)
				return fmt.Errorf("write backup file: %w", err)
			}
			prog, envErr := worker.NewEnvelope(destinationID, stage.KindBackupBytes, stage.BackupBytes{
				SourceDeviceID: req.File.DeviceID, Chunk: int64(n),
			})
			if envErr == nil {
				out <- prog
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			dst.Close()
			os.Remove(destPath)
			return fmt.Errorf("read downloaded file: %w", readErr)
		}
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close backup file: %w", err)
	}
	if info, err := os.Stat(req.File.FinalPath); err == nil {
		_ = os.Chtimes(destPath, info.ModTime(), info.ModTime())
	}
	return nil
}

func collisionPath(path string) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
	}
}
