// Package renameworker implements the rename stage's worker body. A single
// instance serves every device, so generated sequence numbers advance in
// one global order. Each request names a copied file from its template,
// creates the destination subfolders, and moves the file into place.
package renameworker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"carousel/internal/media"
	"carousel/internal/stage"
	"carousel/internal/worker"
)

// incompatibleChars are stripped from generated names when configured,
// keeping destinations portable to Windows filesystems.
const incompatibleChars = `<>:"/\|?*`

// Run is the rename worker body, driven over the envelope protocol.
func Run(ctx context.Context, in <-chan worker.Envelope, out chan<- worker.Envelope) error {
	var (
		seq    stage.SequenceState
		seeded bool
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-in:
			if !ok {
				return nil
			}
			switch env.Kind {
			case stage.KindRenameFile:
				var req stage.RenameRequest
				if err := env.Decode(&req); err != nil {
					return err
				}
				if !seeded {
					seq = req.Sequences
					seeded = true
				}
				seq.StoredNumber++
				seq.DownloadsToday++

				f := renameOne(req, seq)
				res, envErr := worker.NewEnvelope(env.DeviceID, stage.KindRenameFile, stage.RenameResult{
					File: f, Sequences: seq,
				})
				if envErr != nil {
					return envErr
				}
				out <- res
			case worker.KindControlStop:
				fin, envErr := worker.NewEnvelope(0, worker.KindFinished, worker.FinishedPayload{})
				if envErr != nil {
					return envErr
				}
				out <- fin
				return nil
			}
		}
	}
}

func renameOne(req stage.RenameRequest, seq stage.SequenceState) media.File {
	f := req.File

	folder, template, subfolders := req.PhotoFolder, req.PhotoTemplate, req.PhotoSubfolders
	if f.Type == media.Video {
		folder, template, subfolders = req.VideoFolder, req.VideoTemplate, req.VideoSubfolders
	}

	name := expand(template, f, req.JobCode, seq, req.SequenceDigits)
	subdir := expand(subfolders, f, req.JobCode, seq, req.SequenceDigits)
	if req.StripIncompatible {
		name = stripIncompatible(name)
		subdir = stripIncompatibleDirs(subdir)
	}

	destDir := filepath.Join(folder, subdir)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		f.Status = media.StatusFailed
		f.Error = fmt.Sprintf("create destination %s: %v", destDir, err)
		return f
	}

	finalPath, collided := resolveCollision(filepath.Join(destDir, name))
	if err := moveFile(f.TempPath, finalPath); err != nil {
		f.Status = media.StatusFailed
		f.Error = err.Error()
		return f
	}

	f.Status = media.StatusRenamed
	f.FinalPath = finalPath
	f.JobCode = req.JobCode
	f.Warning = collided
	return f
}

// expand substitutes naming tokens. The capture time comes from the
// file's source modification time.
func expand(template string, f media.File, jobCode string, seq stage.SequenceState, digits int) string {
	if digits <= 0 {
		digits = 4
	}
	mod := time.Unix(f.ModTime, 0)
	base := strings.TrimSuffix(f.Name, filepath.Ext(f.Name))

	r := strings.NewReplacer(
		"{year}", mod.Format("2006"),
		"{month}", mod.Format("01"),
		"{day}", mod.Format("02"),
		"{date}", mod.Format("20060102"),
		"{time}", mod.Format("150405"),
		"{name}", base,
		"{ext}", strings.ToLower(filepath.Ext(f.Name)),
		"{jobcode}", jobCode,
		"{seq}", fmt.Sprintf("%0*d", digits, seq.StoredNumber),
		"{seqtoday}", fmt.Sprintf("%0*d", digits, seq.DownloadsToday),
	)
	return r.Replace(template)
}

func stripIncompatible(name string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(incompatibleChars, r) {
			return -1
		}
		return r
	}, name)
}

// stripIncompatibleDirs cleans each path element but keeps separators.
func stripIncompatibleDirs(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		parts[i] = stripIncompatible(p)
	}
	return strings.Join(parts, "/")
}

// resolveCollision finds an unused path, suffixing _1, _2, ... before the
// extension. Reports whether a suffix was needed.
func resolveCollision(path string) (string, bool) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return path, false
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, true
		}
	}
}

// moveFile renames when possible and falls back to copy-and-delete across
// filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	if info, err := os.Stat(src); err == nil {
		_ = os.Chtimes(dst, info.ModTime(), info.ModTime())
	}
	return os.Remove(src)
}
