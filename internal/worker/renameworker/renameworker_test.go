package renameworker

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

func startWorker(t *testing.T) (chan worker.Envelope, chan worker.Envelope) {
	t.Helper()
	in := make(chan worker.Envelope, 8)
	out := make(chan worker.Envelope, 8)
	go func() {
		if err := Run(context.Background(), in, out); err != nil {
			t.Errorf("Run: %v", err)
		}
	}()
	t.Cleanup(func() { close(in) })
	return in, out
}

func tempPhoto(t *testing.T, name string, mod time.Time) media.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("img"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
	return media.File{
		ID: "f-" + name, DeviceID: 1, Type: media.Photo, Status: media.StatusCopied,
		Name: name, Size: 3, ModTime: mod.Unix(), TempPath: path,
	}
}

func rename(t *testing.T, in chan worker.Envelope, out chan worker.Envelope, req stage.RenameRequest) stage.RenameResult {
	t.Helper()
	env, err := worker.NewEnvelope(req.File.DeviceID, stage.KindRenameFile, req)
	if err != nil {
		t.Fatal(err)
	}
	in <- env
	select {
	case res := <-out:
		if res.Kind != stage.KindRenameFile {
			t.Fatalf("result kind = %s", res.Kind)
		}
		var rr stage.RenameResult
		if err := res.Decode(&rr); err != nil {
			t.Fatal(err)
		}
		return rr
	case <-time.After(2 * time.Second):
		t.Fatal("no rename result")
		return stage.RenameResult{}
	}
}

func TestRenameTemplateAndSequences(t *testing.T) {
	in, out := startWorker(t)
	destRoot := t.TempDir()
	mod := time.Date(2026, 8, 30, 14, 5, 9, 0, time.Local)

	req := stage.RenameRequest{
		File:            tempPhoto(t, "IMG_0001.JPG", mod),
		PhotoFolder:     destRoot,
		PhotoTemplate:   "{date}-{time}-{seq}{ext}",
		PhotoSubfolders: "{year}/{date}",
		SequenceDigits:  4,
		Sequences:       stage.SequenceState{StoredNumber: 41, DownloadsToday: 2},
	}
	res := rename(t, in, out, req)

	if res.File.Status != media.StatusRenamed {
		t.Fatalf("status = %s, error = %q", res.File.Status, res.File.Error)
	}
	want := filepath.Join(destRoot, "2026", "20260830", "20260830-140509-0042.jpg")
	if res.File.FinalPath != want {
		t.Fatalf("FinalPath = %s, want %s", res.File.FinalPath, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("renamed file missing: %v", err)
	}
	if res.Sequences.StoredNumber != 42 || res.Sequences.DownloadsToday != 3 {
		t.Fatalf("sequences = %+v, want 42/3", res.Sequences)
	}

	// Second request advances the worker's own state; the request's stale
	// sequence snapshot is ignored after seeding.
	req2 := req
	req2.File = tempPhoto(t, "IMG_0002.JPG", mod)
	res2 := rename(t, in, out, req2)
	if res2.Sequences.StoredNumber != 43 {
		t.Fatalf("second StoredNumber = %d, want 43", res2.Sequences.StoredNumber)
	}
}

func TestRenameCollisionSuffixWarns(t *testing.T) {
	in, out := startWorker(t)
	destRoot := t.TempDir()
	mod := time.Date(2026, 8, 30, 14, 5, 9, 0, time.Local)

	req := stage.RenameRequest{
		File:          tempPhoto(t, "IMG_0001.JPG", mod),
		PhotoFolder:   destRoot,
		PhotoTemplate: "{date}{ext}",
	}
	first := rename(t, in, out, req)
	if first.File.Warning {
		t.Fatal("first placement should not warn")
	}

	req.File = tempPhoto(t, "IMG_0002.JPG", mod)
	second := rename(t, in, out, req)
	if second.File.Status != media.StatusRenamed {
		t.Fatalf("second rename failed: %q", second.File.Error)
	}
	if !second.File.Warning {
		t.Fatal("collision should be marked as a warning")
	}
	if second.File.FinalPath == first.File.FinalPath {
		t.Fatal("collision must not overwrite the first file")
	}
}

func TestRenameJobCodeToken(t *testing.T) {
	in, out := startWorker(t)
	destRoot := t.TempDir()
	mod := time.Date(2026, 8, 30, 14, 5, 9, 0, time.Local)

	req := stage.RenameRequest{
		File:          tempPhoto(t, "IMG_0001.JPG", mod),
		PhotoFolder:   destRoot,
		PhotoTemplate: "{jobcode}-{name}{ext}",
		JobCode:       "wedding",
	}
	res := rename(t, in, out, req)
	if filepath.Base(res.File.FinalPath) != "wedding-IMG_0001.jpg" {
		t.Fatalf("FinalPath = %s", res.File.FinalPath)
	}
	if res.File.JobCode != "wedding" {
		t.Fatalf("JobCode = %q", res.File.JobCode)
	}
}

func TestStripIncompatible(t *testing.T) {
	if got := stripIncompatible(`a:b?c*d`); got != "abcd" {
		t.Fatalf("stripIncompatible = %q", got)
	}
	if got := stripIncompatibleDirs(`20:26/08?30`); got != "2026/0830" {
		t.Fatalf("stripIncompatibleDirs = %q", got)
	}
}
