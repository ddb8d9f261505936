package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"carousel/internal/backup"
	"carousel/internal/config"
	"carousel/internal/device"
	"carousel/internal/jobcode"
	"carousel/internal/logging"
	"carousel/internal/media"
	"carousel/internal/notifications"
	"carousel/internal/progress"
	"carousel/internal/stage"
	"carousel/internal/worker"
)

// SessionStore is the persistence surface the orchestrator needs. Satisfied
// by *session.Store; swapped in tests.
type SessionStore interface {
	Sequences(ctx context.Context) (stage.SequenceState, error)
	SaveSequences(ctx context.Context, state stage.SequenceState) error
	JobCodes(ctx context.Context) ([]string, error)
	SaveJobCodes(ctx context.Context, codes []string) error
}

// Factories supplies the worker transport for each stage. Production wiring
// uses the exec transport; tests substitute in-process pipes.
type Factories struct {
	Scan   worker.Factory
	Copy   worker.Factory
	Rename worker.Factory
	Backup worker.Factory
}

// cycle is one device's bookkeeping for the download in flight.
type cycle struct {
	remaining     int
	copyDone      bool
	photoTempDir  string
	videoTempDir  string
	removeSources []string
}

// backupFanout tracks one file's outstanding backup destinations.
type backupFanout struct {
	file   media.File
	dests  map[int]struct{}
	failed bool
}

// Orchestrator is the supervising event loop. All mutable state below the
// sync primitives is owned by the single goroutine running Run; collaborators
// reach it through the stage event channel or the command channel.
type Orchestrator struct {
	cfg      *config.Config
	logger   *slog.Logger
	notifier notifications.Service
	store    SessionStore

	registry      *device.Registry
	resolver      *backup.Resolver
	tracker       *progress.Tracker
	jobCodes      *jobcode.Coordinator
	timeCheck     *progress.TimeCheck
	timeRemaining *progress.TimeRemaining

	scan      *stage.ScanManager
	copier    *stage.CopyManager
	renamer   *stage.RenameManager
	backupMgr *stage.BackupManager

	events   chan stage.Event
	commands chan func()
	shutdown chan struct{}
	stopOnce sync.Once

	ctx context.Context

	// Download-cycle state.
	downloading   bool
	paused        bool
	cycleStart    time.Time
	discovered    map[int][]media.File
	cycles        map[int]*cycle
	awaitingName  map[string]media.File
	backupPending map[string]*backupFanout
	sequences     stage.SequenceState
	renamerUp     bool

	// Prompt state.
	scanPrompts  map[int]struct{}
	scanRetries  map[int]int
	pendingUnmts map[string]struct{}
}

// New assembles the orchestrator and its stage managers.
func New(cfg *config.Config, factories Factories, notifier notifications.Service, store SessionStore, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		cfg:           cfg,
		logger:        logging.NewComponentLogger(logger, "orchestrator"),
		notifier:      notifier,
		store:         store,
		registry:      device.NewRegistry(),
		resolver:      backup.NewResolver(cfg.Backup),
		tracker:       progress.NewTracker(),
		jobCodes:      jobcode.NewCoordinator(nil),
		timeCheck:     progress.NewTimeCheck(),
		timeRemaining: progress.NewTimeRemaining(),
		events:        make(chan stage.Event, 256),
		commands:      make(chan func(), 64),
		shutdown:      make(chan struct{}),
		discovered:    make(map[int][]media.File),
		cycles:        make(map[int]*cycle),
		awaitingName:  make(map[string]media.File),
		backupPending: make(map[string]*backupFanout),
		scanPrompts:   make(map[int]struct{}),
		scanRetries:   make(map[int]int),
		pendingUnmts:  make(map[string]struct{}),
	}
	o.scan = stage.NewScanManager(factories.Scan, cfg.StopGrace(stage.Scan), o.events, logger)
	o.copier = stage.NewCopyManager(factories.Copy, cfg.StopGrace(stage.Copy), o.events, logger)
	o.renamer = stage.NewRenameManager(factories.Rename, cfg.StopGrace(stage.Rename), o.events, logger)
	o.backupMgr = stage.NewBackupManager(factories.Backup, cfg.StopGrace(stage.Backup), o.events, logger)
	return o
}

// Run drives the supervising loop until the context is canceled or Shutdown
// is requested. It owns every piece of pipeline state; nothing else mutates
// the registry, resolver, or tracker.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.ctx = ctx

	if o.store != nil {
		if seq, err := o.store.Sequences(ctx); err != nil {
			o.logger.Warn("failed to load sequence state, starting fresh", logging.Error(err))
		} else {
			o.sequences = seq
		}
		if codes, err := o.store.JobCodes(ctx); err != nil {
			o.logger.Warn("failed to load job code history", logging.Error(err))
		} else {
			o.jobCodes = jobcode.NewCoordinator(codes)
		}
	}

	o.logger.Info("orchestrator started",
		logging.String(logging.FieldEventType, "orchestrator_started"))

	for {
		select {
		case <-ctx.Done():
			o.teardown()
			return ctx.Err()
		case <-o.shutdown:
			o.teardown()
			return nil
		case ev := <-o.events:
			o.handleEvent(ev)
		case cmd := <-o.commands:
			cmd()
		}
	}
}

// Done reports shutdown having been requested over IPC.
func (o *Orchestrator) Done() <-chan struct{} { return o.shutdown }

// post marshals a function onto the supervising goroutine and waits for it.
func (o *Orchestrator) post(fn func()) {
	done := make(chan struct{})
	select {
	case o.commands <- func() { fn(); close(done) }:
	case <-o.shutdown:
		return
	}
	select {
	case <-done:
	case <-o.shutdown:
	}
}

func (o *Orchestrator) handleEvent(ev stage.Event) {
	switch e := ev.(type) {
	case stage.ScanBatchEvent:
		o.handleScanBatch(e)
	case stage.ScanErrorEvent:
		o.handleScanError(e)
	case stage.CopyProgressEvent:
		o.handleCopyProgress(e)
	case stage.CopyFileEvent:
		o.handleCopyFile(e)
	case stage.RenameFileEvent:
		o.handleRenameFile(e)
	case stage.BackupProgressEvent:
		o.handleBackupProgress(e)
	case stage.BackupFileEvent:
		o.handleBackupFile(e)
	case stage.WorkerFinishedEvent:
		o.handleWorkerFinished(e)
	}
}

func (o *Orchestrator) handleWorkerFinished(e stage.WorkerFinishedEvent) {
	switch e.Stage {
	case stage.Scan:
		o.handleScanFinished(e)
	case stage.Copy:
		o.handleCopyFinished(e)
	case stage.Rename:
		o.handleRenameFinished(e)
	case stage.Backup:
		o.handleBackupFinished(e)
	}
}

// teardown stops every stage and persists interrupted-cycle state.
func (o *Orchestrator) teardown() {
	// The loop no longer drains commands; release any posters.
	o.requestShutdown()

	o.scan.StopAll()
	o.copier.StopAll()
	o.backupMgr.StopAll()
	if o.renamerUp {
		o.renamer.Stop()
		o.renamerUp = false
	}

	if o.downloading {
		o.persistSession()
	}
	for _, c := range o.cycles {
		c.purgeTempDirs()
	}

	o.logger.Info("orchestrator stopped",
		logging.String(logging.FieldEventType, "orchestrator_stopped"))
}

func (o *Orchestrator) persistSession() {
	if o.store == nil {
		return
	}
	// Persistence must survive a canceled run context.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.store.SaveSequences(ctx, o.sequences); err != nil {
		o.logger.Warn("failed to persist sequence state",
			logging.Error(err),
			logging.String(logging.FieldEventType, "sequence_persist_failed"),
			logging.String(logging.FieldImpact, "sequence numbers may repeat next session"))
	}
	if err := o.store.SaveJobCodes(ctx, o.jobCodes.History()); err != nil {
		o.logger.Warn("failed to persist job code history", logging.Error(err))
	}
}

func (c *cycle) purgeTempDirs() {
	for _, dir := range []string{c.photoTempDir, c.videoTempDir} {
		if dir != "" {
			_ = os.RemoveAll(dir)
		}
	}
	c.photoTempDir = ""
	c.videoTempDir = ""
}
