package copyworker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"carousel/internal/media"
	"carousel/internal/stage"
	"carousel/internal/worker"
)

func runCopy(t *testing.T, req stage.CopyRequest) []worker.Envelope {
	t.Helper()
	in := make(chan worker.Envelope, 4)
	out := make(chan worker.Envelope, 256)
	env, err := worker.NewEnvelope(1, stage.KindCopyStart, req)
	if err != nil {
		t.Fatal(err)
	}
	in <- env

	done := make(chan error, 1)
	go func() { done <- Run(context.Background(), in, out) }()

	var envs []worker.Envelope
	for {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			close(out)
			for env := range out {
				envs = append(envs, env)
			}
			return envs
		case env := <-out:
			envs = append(envs, env)
		case <-time.After(2 * time.Second):
			t.Fatal("copy did not finish")
		}
	}
}

func TestCopyToTempWithProgress(t *testing.T) {
	srcDir := t.TempDir()
	tempDir := t.TempDir()
	content := make([]byte, 3000)
	for i := range content {
		content[i] = byte(i)
	}
	srcPath := filepath.Join(srcDir, "IMG_0001.JPG")
	if err := os.WriteFile(srcPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	file := media.File{
		ID: "f1", DeviceID: 1, Type: media.Photo, Status: media.StatusDownloadPending,
		Name: "IMG_0001.JPG", SourcePath: srcPath, Size: int64(len(content)),
		ModTime: time.Now().Add(-time.Hour).Unix(),
	}
	envs := runCopy(t, stage.CopyRequest{
		Files:        []media.File{file},
		PhotoTempDir: tempDir,
		ChunkKiB:     1, // force several chunks
		Verify:       true,
	})

	var result *stage.CopyFileResult
	var lastTotal int64
	progressSeen := 0
	for _, env := range envs {
		switch env.Kind {
		case stage.KindCopyBytes:
			var cb stage.CopyBytes
			if err := env.Decode(&cb); err != nil {
				t.Fatal(err)
			}
			if cb.TotalCopied < lastTotal {
				t.Fatalf("cumulative total went backward: %d -> %d", lastTotal, cb.TotalCopied)
			}
			lastTotal = cb.TotalCopied
			progressSeen++
		case stage.KindCopyFile:
			var res stage.CopyFileResult
			if err := env.Decode(&res); err != nil {
				t.Fatal(err)
			}
			result = &res
		}
	}

	if progressSeen < 2 {
		t.Fatalf("progress messages = %d, want several with 1 KiB chunks", progressSeen)
	}
	if lastTotal != int64(len(content)) {
		t.Fatalf("final total = %d, want %d", lastTotal, len(content))
	}
	if result == nil {
		t.Fatal("no per-file result")
	}
	if result.File.Status != media.StatusCopied {
		t.Fatalf("status = %s, error = %q", result.File.Status, result.File.Error)
	}

	copied, err := os.ReadFile(result.File.TempPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(copied) != string(content) {
		t.Fatal("temp file content differs from source")
	}
	info, err := os.Stat(result.File.TempPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.ModTime().Unix() != file.ModTime {
		t.Fatalf("temp mod time = %d, want %d", info.ModTime().Unix(), file.ModTime)
	}
}

func TestCopyMissingSourceFailsFileNotWorker(t *testing.T) {
	tempDir := t.TempDir()
	good := filepath.Join(t.TempDir(), "IMG_0002.JPG")
	if err := os.WriteFile(good, []byte("ok"), 0o644); err != nil {
		t.Fatal(err)
	}

	files := []media.File{
		{ID: "f1", DeviceID: 1, Type: media.Photo, Name: "gone.jpg", SourcePath: "/nonexistent/gone.jpg"},
		{ID: "f2", DeviceID: 1, Type: media.Photo, Name: "IMG_0002.JPG", SourcePath: good, Size: 2},
	}
	envs := runCopy(t, stage.CopyRequest{Files: files, PhotoTempDir: tempDir})

	var results []stage.CopyFileResult
	for _, env := range envs {
		if env.Kind != stage.KindCopyFile {
			continue
		}
		var res stage.CopyFileResult
		if err := env.Decode(&res); err != nil {
			t.Fatal(err)
		}
		results = append(results, res)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].File.Status != media.StatusFailed || results[0].File.Error == "" {
		t.Fatalf("first file should fail with detail, got %+v", results[0].File)
	}
	if results[1].File.Status != media.StatusCopied {
		t.Fatalf("second file should still copy, got %+v", results[1].File)
	}
}
