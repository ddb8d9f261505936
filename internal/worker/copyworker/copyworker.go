// Package copyworker implements the copy stage's worker body: it copies a
// device's marked files into temporary download directories, streaming
// bytes-transferred progress and per-file results.
package copyworker

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"carousel/internal/media"
	"carousel/internal/stage"
	"carousel/internal/worker"
)

const defaultChunkKiB = 1024

var errStopped = errors.New("copy stopped")

// Run is the copy worker body, driven over the envelope protocol.
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
			case stage.KindCopyStart:
				var req stage.CopyRequest
				if err := env.Decode(&req); err != nil {
					return err
				}
				err := copyFiles(ctx, env.DeviceID, req, in, out)
				if err != nil && !errors.Is(err, errStopped) {
					return err
				}
				fin, envErr := worker.NewEnvelope(env.DeviceID, worker.KindFinished, worker.FinishedPayload{})
				if envErr != nil {
					return envErr
				}
				out <- fin
				return nil
			case worker.KindControlStop:
				return nil
			}
		}
	}
}

func copyFiles(ctx context.Context, deviceID int, req stage.CopyRequest, in <-chan worker.Envelope, out chan<- worker.Envelope) error {
	chunkSize := req.ChunkKiB
	if chunkSize <= 0 {
		chunkSize = defaultChunkKiB
	}
	buf := make([]byte, chunkSize*1024)

	var totalCopied int64
	for _, f := range req.Files {
		if err := checkControl(ctx, in); err != nil {
			return err
		}

		tempDir := req.PhotoTempDir
		if f.Type == media.Video {
			tempDir = req.VideoTempDir
		}

		err := copyOne(ctx, &f, tempDir, req.Verify, buf, in, func(chunk int64) error {
			totalCopied += chunk
			prog, envErr := worker.NewEnvelope(deviceID, stage.KindCopyBytes, stage.CopyBytes{
				TotalCopied: totalCopied, Chunk: chunk,
			})
			if envErr != nil {
				return envErr
			}
			out <- prog
			return nil
		})
		if errors.Is(err, errStopped) {
			return err
		}
		if err != nil {
			f.Status = media.StatusFailed
			f.Error = err.Error()
		} else {
			f.Status = media.StatusCopied
		}

		res, envErr := worker.NewEnvelope(deviceID, stage.KindCopyFile, stage.CopyFileResult{File: f})
		if envErr != nil {
			return envErr
		}
		out <- res
	}
	return nil
}

func copyOne(ctx context.Context, f *media.File, tempDir string, verify bool, buf []byte, in <-chan worker.Envelope, progress func(int64) error) error {
	src, err := os.Open(f.SourcePath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	tempPath := filepath.Join(tempDir, f.ID+filepath.Ext(f.Name))
	dst, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	hash := md5.New()
	for {
		if err := checkControl(ctx, in); err != nil {
			dst.Close()
			os.Remove(tempPath)
			return err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				dst.Close()
				return fmt.Errorf("write temp file: %w", err)
			}
			hash.Write(buf[:n])
			if err := progress(int64(n)); err != nil {
				dst.Close()
				return err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			dst.Close()
			return fmt.Errorf("read source: %w", readErr)
		}
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if verify {
		if err := verifyCopy(tempPath, hex.EncodeToString(hash.Sum(nil)), buf); err != nil {
			return err
		}
	}

	// Keep the source's timestamp so naming templates see the capture date.
	mod := time.Unix(f.ModTime, 0)
	_ = os.Chtimes(tempPath, mod, mod)

	f.TempPath = tempPath
	return nil
}

// verifyCopy re-reads the written file and compares checksums.
func verifyCopy(path, wantSum string, buf []byte) error {
	r, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reopen for verification: %w", err)
	}
	defer r.Close()
	hash := md5.New()
	if _, err := io.CopyBuffer(hash, r, buf); err != nil {
		return fmt.Errorf("verify read: %w", err)
	}
	if got := hex.EncodeToString(hash.Sum(nil)); got != wantSum {
		return fmt.Errorf("verification failed: checksum %s, want %s", got, wantSum)
	}
	return nil
}

// checkControl handles pause and stop requests between chunks. Pause
// blocks until a resume or stop arrives.
func checkControl(ctx context.Context, in <-chan worker.Envelope) error {
	select {
	case <-ctx.Done():
		return errStopped
	case env, ok := <-in:
		if !ok {
			return errStopped
		}
		switch env.Kind {
		case worker.KindControlStop:
			return errStopped
		case worker.KindControlPause:
			return awaitResume(ctx, in)
		}
		return nil
	default:
		return nil
	}
}

func awaitResume(ctx context.Context, in <-chan worker.Envelope) error {
	for {
		select {
		case <-ctx.Done():
			return errStopped
		case env, ok := <-in:
			if !ok {
				return errStopped
			}
			switch env.Kind {
			case worker.KindControlResume:
				return nil
			case worker.KindControlStop:
				return errStopped
			}
		}
	}
}
