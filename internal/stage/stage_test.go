package stage

import (
	"context"
	"testing"
	"time"

	"carousel/internal/logging"
	"carousel/internal/media"
	"carousel/internal/worker"
)

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
		return nil
	}
}

func TestScanManagerDeliversBatchesAndFinish(t *testing.T) {
	body := func(ctx context.Context, in <-chan worker.Envelope, out chan<- worker.Envelope) error {
		req := <-in
		var sr ScanRequest
		if err := req.Decode(&sr); err != nil {
			return err
		}
		batch, _ := worker.NewEnvelope(req.DeviceID, KindScanBatch, ScanBatch{Files: []media.File{
			{ID: "f1", DeviceID: req.DeviceID, Type: media.Photo, Name: "IMG_0001.JPG", Size: 100},
		}})
		out <- batch
		done, _ := worker.NewEnvelope(req.DeviceID, worker.KindFinished, worker.FinishedPayload{})
		out <- done
		return nil
	}

	events := make(chan Event, 8)
	m := NewScanManager(func() worker.Transport { return worker.NewPipeTransport(body) },
		time.Second, events, logging.NewNop())

	if err := m.Start(context.Background(), 4, ScanRequest{Path: "/media/card", BatchSize: 25}); err != nil {
		t.Fatal(err)
	}

	ev := nextEvent(t, events)
	batch, ok := ev.(ScanBatchEvent)
	if !ok {
		t.Fatalf("first event = %T, want ScanBatchEvent", ev)
	}
	if batch.DeviceID != 4 || len(batch.Files) != 1 || batch.Files[0].ID != "f1" {
		t.Fatalf("unexpected batch: %+v", batch)
	}

	ev = nextEvent(t, events)
	fin, ok := ev.(WorkerFinishedEvent)
	if !ok {
		t.Fatalf("second event = %T, want WorkerFinishedEvent", ev)
	}
	if fin.Stage != Scan || fin.DeviceID != 4 || fin.Unexpected {
		t.Fatalf("unexpected finish: %+v", fin)
	}
}

func TestScanManagerRecoverableErrorThenResume(t *testing.T) {
	body := func(ctx context.Context, in <-chan worker.Envelope, out chan<- worker.Envelope) error {
		req := <-in
		errEnv, _ := worker.NewEnvelope(req.DeviceID, KindScanError, ScanError{
			Path: "/media/card", Error: "device is locked", Recoverable: true,
		})
		out <- errEnv
		// Paused: wait for the retry decision.
		ctrl := <-in
		if ctrl.Kind != worker.KindControlResume {
			return nil
		}
		done, _ := worker.NewEnvelope(req.DeviceID, worker.KindFinished, worker.FinishedPayload{})
		out <- done
		return nil
	}

	events := make(chan Event, 8)
	m := NewScanManager(func() worker.Transport { return worker.NewPipeTransport(body) },
		time.Second, events, logging.NewNop())

	if err := m.Start(context.Background(), 9, ScanRequest{Path: "/media/card"}); err != nil {
		t.Fatal(err)
	}

	ev := nextEvent(t, events)
	se, ok := ev.(ScanErrorEvent)
	if !ok || !se.Recoverable {
		t.Fatalf("want recoverable ScanErrorEvent, got %#v", ev)
	}

	if err := m.Resume(9); err != nil {
		t.Fatal(err)
	}
	fin, ok := nextEvent(t, events).(WorkerFinishedEvent)
	if !ok || fin.Unexpected {
		t.Fatalf("want clean finish after resume, got %#v", fin)
	}
}

func TestCopyManagerProgressAndResults(t *testing.T) {
	body := func(ctx context.Context, in <-chan worker.Envelope, out chan<- worker.Envelope) error {
		req := <-in
		var cr CopyRequest
		if err := req.Decode(&cr); err != nil {
			return err
		}
		prog, _ := worker.NewEnvelope(req.DeviceID, KindCopyBytes, CopyBytes{TotalCopied: 512, Chunk: 512})
		out <- prog
		f := cr.Files[0]
		f.Status = media.StatusCopied
		f.TempPath = "/tmp/carousel/f1"
		res, _ := worker.NewEnvelope(req.DeviceID, KindCopyFile, CopyFileResult{File: f})
		out <- res
		done, _ := worker.NewEnvelope(req.DeviceID, worker.KindFinished, worker.FinishedPayload{})
		out <- done
		return nil
	}

	events := make(chan Event, 8)
	m := NewCopyManager(func() worker.Transport { return worker.NewPipeTransport(body) },
		time.Second, events, logging.NewNop())

	files := []media.File{{ID: "f1", DeviceID: 2, Type: media.Photo, Size: 512}}
	if err := m.Start(context.Background(), 2, CopyRequest{Files: files, ChunkKiB: 128}); err != nil {
		t.Fatal(err)
	}

	prog, ok := nextEvent(t, events).(CopyProgressEvent)
	if !ok || prog.TotalCopied != 512 {
		t.Fatalf("want progress event with 512 bytes, got %#v", prog)
	}
	res, ok := nextEvent(t, events).(CopyFileEvent)
	if !ok || res.File.Status != media.StatusCopied || res.File.TempPath == "" {
		t.Fatalf("want copied file event, got %#v", res)
	}
	if _, ok := nextEvent(t, events).(WorkerFinishedEvent); !ok {
		t.Fatal("want finish event")
	}
}

func TestBackupManagerRoutesPerDestination(t *testing.T) {
	body := func(ctx context.Context, in <-chan worker.Envelope, out chan<- worker.Envelope) error {
		for env := range in {
			if env.Kind == worker.KindControlStop {
				done, _ := worker.NewEnvelope(env.DeviceID, worker.KindFinished, worker.FinishedPayload{})
				out <- done
				return nil
			}
			var br BackupRequest
			if err := env.Decode(&br); err != nil {
				return err
			}
			res, _ := worker.NewEnvelope(env.DeviceID, KindBackupFile, BackupResult{
				File: br.File, DestinationPath: br.DestinationPath, OK: true,
			})
			out <- res
		}
		return nil
	}

	events := make(chan Event, 8)
	m := NewBackupManager(func() worker.Transport { return worker.NewPipeTransport(body) },
		time.Second, events, logging.NewNop())

	file := media.File{ID: "f1", DeviceID: 3, Type: media.Video, FinalPath: "/photos/2026/clip.mov"}
	if err := m.Backup(context.Background(), 11, BackupRequest{File: file, DestinationPath: "/backup/a"}); err != nil {
		t.Fatal(err)
	}

	res, ok := nextEvent(t, events).(BackupFileEvent)
	if !ok {
		t.Fatal("want BackupFileEvent")
	}
	if res.DestinationID != 11 || res.File.DeviceID != 3 || !res.OK {
		t.Fatalf("unexpected backup event: %+v", res)
	}

	// Second file reuses the running worker.
	if err := m.Backup(context.Background(), 11, BackupRequest{File: file, DestinationPath: "/backup/a"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := nextEvent(t, events).(BackupFileEvent); !ok {
		t.Fatal("want second BackupFileEvent")
	}
	m.StopAll()
}
