package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"carousel/internal/config"
	"carousel/internal/media"
	"carousel/internal/mounts"
	"carousel/internal/stage"
	"carousel/internal/worker"
)

type fakeStore struct {
	mu        sync.Mutex
	seq       stage.SequenceState
	codes     []string
	seqSaves  int
	codeSaves int
}

func (s *fakeStore) Sequences(context.Context) (stage.SequenceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq, nil
}

func (s *fakeStore) SaveSequences(_ context.Context, state stage.SequenceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = state
	s.seqSaves++
	return nil
}

func (s *fakeStore) JobCodes(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.codes...), nil
}

func (s *fakeStore) SaveJobCodes(_ context.Context, codes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = append([]string(nil), codes...)
	s.codeSaves++
	return nil
}

func (s *fakeStore) savedSequences() (stage.SequenceState, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq, s.seqSaves
}

// scanBody emits one batch of files stamped with the worker's device and
// finishes cleanly.
func scanBody(files []media.File) worker.RunFunc {
	return func(ctx context.Context, in <-chan Envelope, out chan<- Envelope) error {
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
					batch := make([]media.File, len(files))
					for i, f := range files {
						f.DeviceID = env.DeviceID
						f.ID = fmt.Sprintf("dev%d-%s", env.DeviceID, f.Name)
						batch[i] = f
					}
					reply, err := worker.NewEnvelope(env.DeviceID, stage.KindScanBatch, stage.ScanBatch{Files: batch})
					if err != nil {
						return err
					}
					out <- reply
					fin, _ := worker.NewEnvelope(env.DeviceID, worker.KindFinished, worker.FinishedPayload{})
					out <- fin
					return nil
				case worker.KindControlStop:
					return nil
				}
			}
		}
	}
}

// copyBody reports full progress and a successful copy for each file.
func copyBody() worker.RunFunc {
	return func(ctx context.Context, in <-chan Envelope, out chan<- Envelope) error {
		for env := range in {
			switch env.Kind {
			case stage.KindCopyStart:
				var req stage.CopyRequest
				if err := env.Decode(&req); err != nil {
					return err
				}
				var total int64
				for _, f := range req.Files {
					total += f.Size
					prog, _ := worker.NewEnvelope(env.DeviceID, stage.KindCopyBytes,
						stage.CopyBytes{TotalCopied: total, Chunk: f.Size})
					out <- prog
					f.Status = media.StatusCopied
					f.TempPath = filepath.Join(req.PhotoTempDir, f.ID)
					res, _ := worker.NewEnvelope(env.DeviceID, stage.KindCopyFile, stage.CopyFileResult{File: f})
					out <- res
				}
				fin, _ := worker.NewEnvelope(env.DeviceID, worker.KindFinished, worker.FinishedPayload{})
				out <- fin
				return nil
			case worker.KindControlStop:
				return nil
			}
		}
		return nil
	}
}

// crashingCopyBody exits without a finished message, simulating a crash.
func crashingCopyBody() worker.RunFunc {
	return func(ctx context.Context, in <-chan Envelope, out chan<- Envelope) error {
		<-in
		return errors.New("copy worker blew up")
	}
}

// renameBody advances sequence state per file and reports success.
func renameBody() worker.RunFunc {
	return func(ctx context.Context, in <-chan Envelope, out chan<- Envelope) error {
		var seq stage.SequenceState
		seeded := false
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
					f := req.File
					f.Status = media.StatusRenamed
					f.FinalPath = filepath.Join(req.PhotoFolder, f.Name)
					f.JobCode = req.JobCode
					res, _ := worker.NewEnvelope(env.DeviceID, stage.KindRenameFile,
						stage.RenameResult{File: f, Sequences: seq})
					out <- res
				case worker.KindControlStop:
					return nil
				}
			}
		}
	}
}

// backupBody records each file it is asked to back up and reports success.
func backupBody(record *backupRecorder) worker.RunFunc {
	return func(ctx context.Context, in <-chan Envelope, out chan<- Envelope) error {
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
					record.add(req.File.ID, req.DestinationPath)
					res, _ := worker.NewEnvelope(env.DeviceID, stage.KindBackupFile,
						stage.BackupResult{File: req.File, DestinationPath: req.DestinationPath, OK: true})
					out <- res
				case worker.KindControlStop:
					return nil
				}
			}
		}
	}
}

type backupRecorder struct {
	mu    sync.Mutex
	items map[string][]string
}

func newBackupRecorder() *backupRecorder {
	return &backupRecorder{items: make(map[string][]string)}
}

func (r *backupRecorder) add(fileID, dest string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[fileID] = append(r.items[fileID], dest)
}

func (r *backupRecorder) destinations(fileID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.items[fileID]...)
}

type Envelope = worker.Envelope

func pipeFactory(run worker.RunFunc) worker.Factory {
	return func() worker.Transport { return worker.NewPipeTransport(run) }
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Download.PhotoFolder = t.TempDir()
	cfg.Download.VideoFolder = t.TempDir()
	cfg.Download.OnlyExternalMounts = false
	cfg.Backup.Enabled = false
	return &cfg
}

func startOrchestrator(t *testing.T, cfg *config.Config, factories Factories, store SessionStore) *Orchestrator {
	t.Helper()
	o := New(cfg, factories, nil, store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = o.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("orchestrator did not shut down")
		}
	})
	return o
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func deviceState(o *Orchestrator, id int) string {
	for _, d := range o.Devices() {
		if d.ID == id {
			return d.State
		}
	}
	return ""
}

func sampleFiles() []media.File {
	return []media.File{
		{Type: media.Photo, Name: "IMG_0001.jpg", SourcePath: "/src/IMG_0001.jpg", Size: 1000},
		{Type: media.Photo, Name: "IMG_0002.jpg", SourcePath: "/src/IMG_0002.jpg", Size: 2000},
	}
}

func TestDownloadPipelineEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	store := &fakeStore{seq: stage.SequenceState{StoredNumber: 10}}
	factories := Factories{
		Scan:   pipeFactory(scanBody(sampleFiles())),
		Copy:   pipeFactory(copyBody()),
		Rename: pipeFactory(renameBody()),
		Backup: pipeFactory(backupBody(newBackupRecorder())),
	}
	o := startOrchestrator(t, cfg, factories, store)

	id, err := o.AddPath("/src")
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "device scanned", func() bool { return deviceState(o, id) == "scanned" })

	started, err := o.StartDownload(id)
	if err != nil {
		t.Fatal(err)
	}
	if started != 1 {
		t.Fatalf("started = %d", started)
	}
	waitFor(t, "device completed", func() bool { return deviceState(o, id) == "completed" })
	waitFor(t, "cycle finished", func() bool { return !o.Status().Downloading })

	seq, saves := store.savedSequences()
	if saves == 0 {
		t.Fatal("sequences never persisted")
	}
	if seq.StoredNumber != 12 || seq.DownloadsToday != 2 {
		t.Fatalf("sequences = %+v", seq)
	}
}

func TestJobCodeSinglePromptReleasesAllDevices(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rename.PhotoTemplate = "{jobcode}-{date}-{seq}{ext}"
	store := &fakeStore{}
	factories := Factories{
		Scan:   pipeFactory(scanBody(sampleFiles())),
		Copy:   pipeFactory(copyBody()),
		Rename: pipeFactory(renameBody()),
		Backup: pipeFactory(backupBody(newBackupRecorder())),
	}
	o := startOrchestrator(t, cfg, factories, store)

	first, err := o.AddPath("/src/one")
	if err != nil {
		t.Fatal(err)
	}
	second, err := o.AddPath("/src/two")
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "both devices scanned", func() bool {
		return deviceState(o, first) == "scanned" && deviceState(o, second) == "scanned"
	})

	if _, err := o.StartDownload(0); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "job code prompt", func() bool { return o.Status().JobCodeNeeded })
	if deviceState(o, first) != "download-pending" {
		t.Fatalf("device gated on job code should be pending, got %s", deviceState(o, first))
	}

	released, err := o.SubmitJobCode("Wedding")
	if err != nil {
		t.Fatal(err)
	}
	if released != 2 {
		t.Fatalf("released = %d, want both deferred devices", released)
	}
	waitFor(t, "both devices completed", func() bool {
		return deviceState(o, first) == "completed" && deviceState(o, second) == "completed"
	})

	store.mu.Lock()
	codes := append([]string(nil), store.codes...)
	store.mu.Unlock()
	if len(codes) == 0 || codes[0] != "Wedding" {
		t.Fatalf("job code history = %v", codes)
	}
}

func TestBackupFanoutToDetectedDestination(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup.Enabled = true

	dest := t.TempDir()
	for _, sub := range []string{"Photos", "Videos"} {
		if err := os.Mkdir(filepath.Join(dest, sub), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	recorder := newBackupRecorder()
	store := &fakeStore{}
	factories := Factories{
		Scan:   pipeFactory(scanBody(sampleFiles())),
		Copy:   pipeFactory(copyBody()),
		Rename: pipeFactory(renameBody()),
		Backup: pipeFactory(backupBody(recorder)),
	}
	o := startOrchestrator(t, cfg, factories, store)

	o.HandleMountEvent(mounts.Event{Added: true, Device: "/dev/sdb1", Path: dest, Label: "BACKUP"})

	id, err := o.AddPath("/src")
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "device scanned", func() bool { return deviceState(o, id) == "scanned" })
	if _, err := o.StartDownload(id); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "device completed", func() bool { return deviceState(o, id) == "completed" })

	for _, name := range []string{"IMG_0001.jpg", "IMG_0002.jpg"} {
		fileID := fmt.Sprintf("dev%d-%s", id, name)
		dests := recorder.destinations(fileID)
		if len(dests) != 1 || dests[0] != dest {
			t.Fatalf("file %s backed up to %v, want [%s]", fileID, dests, dest)
		}
	}
}

func TestCopyWorkerCrashFailsRemainingFiles(t *testing.T) {
	cfg := testConfig(t)
	store := &fakeStore{}
	factories := Factories{
		Scan:   pipeFactory(scanBody(sampleFiles())),
		Copy:   pipeFactory(crashingCopyBody()),
		Rename: pipeFactory(renameBody()),
		Backup: pipeFactory(backupBody(newBackupRecorder())),
	}
	o := startOrchestrator(t, cfg, factories, store)

	id, err := o.AddPath("/src")
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "device scanned", func() bool { return deviceState(o, id) == "scanned" })
	if _, err := o.StartDownload(id); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "device completed despite crash", func() bool { return deviceState(o, id) == "completed" })
	waitFor(t, "cycle finished", func() bool { return !o.Status().Downloading })

	if _, saves := store.savedSequences(); saves == 0 {
		t.Fatal("interrupted cycle should still persist sequences")
	}
}

// lockedScanBody reports a recoverable lock error, then delivers the files
// only if the worker is resumed.
func lockedScanBody(files []media.File) worker.RunFunc {
	return func(ctx context.Context, in <-chan Envelope, out chan<- Envelope) error {
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
					errEnv, err := worker.NewEnvelope(env.DeviceID, stage.KindScanError,
						stage.ScanError{Path: "/media/card", Error: "device is locked", Recoverable: true})
					if err != nil {
						return err
					}
					out <- errEnv
				case worker.KindControlResume:
					batch := make([]media.File, len(files))
					for i, f := range files {
						f.DeviceID = env.DeviceID
						f.ID = fmt.Sprintf("dev%d-%s", env.DeviceID, f.Name)
						batch[i] = f
					}
					reply, _ := worker.NewEnvelope(env.DeviceID, stage.KindScanBatch, stage.ScanBatch{Files: batch})
					out <- reply
					fin, _ := worker.NewEnvelope(env.DeviceID, worker.KindFinished, worker.FinishedPayload{})
					out <- fin
					return nil
				case worker.KindControlStop:
					return nil
				}
			}
		}
	}
}

func TestScanErrorIgnoreRemovesDevice(t *testing.T) {
	cfg := testConfig(t)
	cfg.Download.ScanErrorPolicy = "prompt"
	cfg.Download.AutoDownloadOnInsert = true
	factories := Factories{
		Scan:   pipeFactory(lockedScanBody(sampleFiles())),
		Copy:   pipeFactory(copyBody()),
		Rename: pipeFactory(renameBody()),
		Backup: pipeFactory(backupBody(newBackupRecorder())),
	}
	o := startOrchestrator(t, cfg, factories, &fakeStore{})

	id, err := o.AddPath("/src")
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "scan error prompt", func() bool { return deviceState(o, id) == "error" })

	if err := o.ResolveScanError(id, false); err != nil {
		t.Fatal(err)
	}
	if state := deviceState(o, id); state != "" {
		t.Fatalf("after ignore, device %d should be removed; registry reports state %q", id, state)
	}
	if n := o.Status().Devices; n != 0 {
		t.Fatalf("device count = %d, want 0", n)
	}
	if o.Status().Downloading {
		t.Fatal("ignored device must not be downloaded")
	}
}

func TestScanErrorRetryResumesSameDevice(t *testing.T) {
	cfg := testConfig(t)
	cfg.Download.ScanErrorPolicy = "prompt"
	factories := Factories{
		Scan:   pipeFactory(lockedScanBody(sampleFiles())),
		Copy:   pipeFactory(copyBody()),
		Rename: pipeFactory(renameBody()),
		Backup: pipeFactory(backupBody(newBackupRecorder())),
	}
	o := startOrchestrator(t, cfg, factories, &fakeStore{})

	id, err := o.AddPath("/src")
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "scan error prompt", func() bool { return deviceState(o, id) == "error" })

	if err := o.ResolveScanError(id, true); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "device scanned after retry", func() bool { return deviceState(o, id) == "scanned" })

	for _, d := range o.Devices() {
		if d.ID == id && d.Photos != 2 {
			t.Fatalf("retried device reports %d photos, want 2", d.Photos)
		}
	}
}

func TestControlCallsReturnAfterRunExit(t *testing.T) {
	cfg := testConfig(t)
	factories := Factories{
		Scan:   pipeFactory(scanBody(sampleFiles())),
		Copy:   pipeFactory(copyBody()),
		Rename: pipeFactory(renameBody()),
		Backup: pipeFactory(backupBody(newBackupRecorder())),
	}
	o := New(cfg, factories, nil, &fakeStore{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = o.Run(ctx)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("run loop did not exit on cancellation")
	}

	returned := make(chan struct{})
	go func() {
		defer close(returned)
		o.Status()
		o.Devices()
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("control call blocked after the run loop exited")
	}
}

func TestGlobalCompletionWaitsForEveryDevice(t *testing.T) {
	cfg := testConfig(t)
	cfg.Download.ScanNonMediaVolumes = true
	factories := Factories{
		Scan:   pipeFactory(scanBody(sampleFiles())),
		Copy:   pipeFactory(copyBody()),
		Rename: pipeFactory(renameBody()),
		Backup: pipeFactory(backupBody(newBackupRecorder())),
	}
	o := startOrchestrator(t, cfg, factories, &fakeStore{})

	vol := t.TempDir()
	o.HandleMountEvent(mounts.Event{Added: true, Device: "/dev/sdb1", Path: vol, Label: "CARD"})
	waitFor(t, "volume scanned", func() bool { return deviceState(o, 1) == "scanned" })

	id, err := o.AddPath("/src")
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "path device scanned", func() bool { return deviceState(o, id) == "scanned" })

	if _, err := o.StartDownload(id); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "path device completed", func() bool { return deviceState(o, id) == "completed" })

	// The volume never downloaded, so the cycle is not over yet.
	if !o.Status().Downloading {
		t.Fatal("cycle reported complete while a scanned device is still registered")
	}

	o.HandleMountEvent(mounts.Event{Added: false, Path: vol})
	waitFor(t, "cycle finished once volume removed", func() bool { return !o.Status().Downloading })
}

func TestPauseAndResume(t *testing.T) {
	cfg := testConfig(t)
	store := &fakeStore{}

	release := make(chan struct{})
	slowCopy := func(ctx context.Context, in <-chan Envelope, out chan<- Envelope) error {
		for env := range in {
			switch env.Kind {
			case stage.KindCopyStart:
				var req stage.CopyRequest
				if err := env.Decode(&req); err != nil {
					return err
				}
				select {
				case <-release:
				case <-ctx.Done():
					return ctx.Err()
				}
				for _, f := range req.Files {
					f.Status = media.StatusCopied
					res, _ := worker.NewEnvelope(env.DeviceID, stage.KindCopyFile, stage.CopyFileResult{File: f})
					out <- res
				}
				fin, _ := worker.NewEnvelope(env.DeviceID, worker.KindFinished, worker.FinishedPayload{})
				out <- fin
				return nil
			case worker.KindControlPause, worker.KindControlResume:
				// Scripted worker ignores flow control; the test only
				// exercises the orchestrator's bookkeeping.
			case worker.KindControlStop:
				return nil
			}
		}
		return nil
	}

	factories := Factories{
		Scan:   pipeFactory(scanBody(sampleFiles())),
		Copy:   pipeFactory(slowCopy),
		Rename: pipeFactory(renameBody()),
		Backup: pipeFactory(backupBody(newBackupRecorder())),
	}
	o := startOrchestrator(t, cfg, factories, store)

	id, err := o.AddPath("/src")
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "device scanned", func() bool { return deviceState(o, id) == "scanned" })
	if _, err := o.StartDownload(id); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "downloading", func() bool { return o.Status().Downloading })

	if !o.Pause() {
		t.Fatal("pause should succeed during a download")
	}
	if o.Pause() {
		t.Fatal("second pause should report false")
	}
	if !o.Status().Paused {
		t.Fatal("status should show paused")
	}
	if !o.Resume() {
		t.Fatal("resume should succeed")
	}
	if o.Resume() {
		t.Fatal("second resume should report false")
	}

	close(release)
	waitFor(t, "device completed", func() bool { return deviceState(o, id) == "completed" })
}
