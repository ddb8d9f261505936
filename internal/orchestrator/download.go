package orchestrator

import (
	"fmt"
	"os"
	"strings"
	"time"

	"carousel/internal/device"
	"carousel/internal/logging"
	"carousel/internal/media"
	"carousel/internal/mounts"
	"carousel/internal/stage"
)

// startDownload gates and begins a download for one scanned device, or for
// every scanned device when deviceID is zero. It returns the number of
// devices that began downloading.
func (o *Orchestrator) startDownload(deviceID int) (int, error) {
	var targets []*device.Device
	if deviceID == 0 {
		for _, d := range o.registry.Devices() {
			if d.State == device.StateScanned {
				targets = append(targets, d)
			}
		}
		if len(targets) == 0 {
			return 0, fmt.Errorf("no scanned devices ready to download")
		}
	} else {
		d := o.registry.Get(deviceID)
		if d == nil {
			return 0, fmt.Errorf("unknown device %d", deviceID)
		}
		if d.State != device.StateScanned {
			return 0, fmt.Errorf("device %d is %s, not ready to download", deviceID, d.State)
		}
		targets = append(targets, d)
	}

	var photos, videos bool
	for _, d := range targets {
		photos = photos || d.Counter.HasPhotos()
		videos = videos || d.Counter.HasVideos()
	}
	if problems := o.cfg.InvalidDownloadFolders(photos, videos); len(problems) > 0 {
		return 0, fmt.Errorf("download folders not usable: %s", strings.Join(problems, "; "))
	}

	started := 0
	for _, d := range targets {
		if err := o.startDeviceDownload(d); err != nil {
			o.logger.Warn("download not started", logging.Error(err),
				logging.Int(logging.FieldDeviceID, d.ID))
			continue
		}
		started++
	}
	if started == 0 {
		return 0, fmt.Errorf("no downloads started")
	}
	return started, nil
}

func (o *Orchestrator) startDeviceDownload(d *device.Device) error {
	files := o.discovered[d.ID]
	if len(files) == 0 {
		return fmt.Errorf("device %d has no files to download", d.ID)
	}

	if err := o.registry.Transition(d.ID, device.StateDownloadPending); err != nil {
		return err
	}

	// Gate on the job code: the first deferred device issues the single
	// prompt, later ones just wait for its resolution.
	if o.jobCodes.NeedToPrompt(o.cfg.UsesJobCode()) {
		if prompt := o.jobCodes.Defer(d.ID); prompt {
			o.logger.Info("waiting for job code",
				logging.Int(logging.FieldDeviceID, d.ID),
				logging.String(logging.FieldEventType, "job_code_needed"))
		}
		return nil
	}

	return o.beginDownload(d)
}

func (o *Orchestrator) beginDownload(d *device.Device) error {
	if err := o.registry.Transition(d.ID, device.StateDownloading); err != nil {
		return err
	}

	files := o.discovered[d.ID]
	if missing := o.resolver.MissingFor(d.Counter); len(missing) > 0 && o.cfg.Backup.Enabled {
		for _, ft := range missing {
			o.logger.Warn("no backup destination for file type",
				logging.String("type", ft.String()),
				logging.Int(logging.FieldDeviceID, d.ID),
				logging.String(logging.FieldEventType, "backup_destination_missing"),
				logging.String(logging.FieldImpact, "files of this type will not be backed up"))
		}
		if o.notifier != nil {
			_ = o.notifier.NotifyBackupProblem(o.ctx, d.DisplayName,
				fmt.Sprintf("no destination accepts %s", typeList(missing)))
		}
	}

	c := &cycle{remaining: len(files)}
	photoTemp, videoTemp, err := o.makeTempDirs(d.Counter)
	if err != nil {
		_ = o.registry.Transition(d.ID, device.StateError)
		return err
	}
	c.photoTempDir = photoTemp
	c.videoTempDir = videoTemp
	o.cycles[d.ID] = c

	o.refreshBackupCounts()
	o.tracker.InitStats(d.ID, d.Counter)
	o.timeRemaining.Set(d.ID, d.Counter.TotalBytes())
	if !o.downloading {
		o.downloading = true
		o.cycleStart = time.Now()
		o.timeCheck.SetDownloadMark()
	}

	if !o.renamerUp {
		if err := o.renamer.Start(o.ctx); err != nil {
			return fmt.Errorf("start rename worker: %w", err)
		}
		o.renamerUp = true
	}

	req := stage.CopyRequest{
		Files:        files,
		PhotoTempDir: photoTemp,
		VideoTempDir: videoTemp,
		ChunkKiB:     o.cfg.Workers.CopyChunkKiB,
		Verify:       o.cfg.Download.VerifyFiles,
	}
	if err := o.copier.Start(o.ctx, d.ID, req); err != nil {
		return fmt.Errorf("start copy worker: %w", err)
	}

	o.logger.Info("download started",
		logging.Int(logging.FieldDeviceID, d.ID),
		logging.String("name", d.DisplayName),
		logging.Int("files", len(files)),
		logging.Int64("bytes", d.Counter.TotalBytes()),
		logging.String(logging.FieldEventType, "download_started"))
	return nil
}

// makeTempDirs creates hidden per-cycle staging directories inside the
// configured download folders, so the final move is a same-filesystem rename.
func (o *Orchestrator) makeTempDirs(c media.TypeCounter) (photoTemp, videoTemp string, err error) {
	if c.HasPhotos() {
		photoTemp, err = os.MkdirTemp(o.cfg.Download.PhotoFolder, ".carousel-tmp-")
		if err != nil {
			return "", "", fmt.Errorf("create photo staging dir: %w", err)
		}
	}
	if c.HasVideos() {
		videoTemp, err = os.MkdirTemp(o.cfg.Download.VideoFolder, ".carousel-tmp-")
		if err != nil {
			if photoTemp != "" {
				_ = os.RemoveAll(photoTemp)
			}
			return "", "", fmt.Errorf("create video staging dir: %w", err)
		}
	}
	return photoTemp, videoTemp, nil
}

// submitJobCode resolves the outstanding prompt and releases every deferred
// device at once.
func (o *Orchestrator) submitJobCode(code string) (int, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return 0, fmt.Errorf("job code must not be empty")
	}
	waiters := o.jobCodes.Resolve(code)
	released := 0
	for _, id := range waiters {
		d := o.registry.Get(id)
		if d == nil {
			continue
		}
		if err := o.beginDownload(d); err != nil {
			o.logger.Warn("deferred download failed to start", logging.Error(err),
				logging.Int(logging.FieldDeviceID, id))
			continue
		}
		released++
	}
	return released, nil
}

func (o *Orchestrator) pause() bool {
	if !o.downloading || o.paused {
		return false
	}
	o.paused = true
	o.timeCheck.Pause()
	for id := range o.cycles {
		if err := o.copier.Pause(id); err != nil {
			o.logger.Warn("failed to pause copy", logging.Error(err),
				logging.Int(logging.FieldDeviceID, id))
		}
	}
	o.logger.Info("download paused", logging.String(logging.FieldEventType, "download_paused"))
	return true
}

func (o *Orchestrator) resume() bool {
	if !o.paused {
		return false
	}
	o.paused = false
	o.timeCheck.SetDownloadMark()
	for id := range o.cycles {
		o.timeRemaining.SetTimeMark(id)
		if err := o.copier.Resume(id); err != nil {
			o.logger.Warn("failed to resume copy", logging.Error(err),
				logging.Int(logging.FieldDeviceID, id))
		}
	}
	o.logger.Info("download resumed", logging.String(logging.FieldEventType, "download_resumed"))
	return true
}

func (o *Orchestrator) handleCopyProgress(e stage.CopyProgressEvent) {
	o.tracker.SetTotalBytesCopied(e.DeviceID, e.TotalCopied)
	o.timeCheck.Increment(e.Chunk)
	o.timeRemaining.Update(e.DeviceID, e.Chunk)
	if updated, rate := o.timeCheck.CheckForUpdate(); updated {
		o.logger.Debug("transfer rate",
			logging.Float64("bytes_per_second", rate),
			logging.Float64("overall_percent", o.tracker.OverallPercentComplete()))
	}
}

func (o *Orchestrator) handleCopyFile(e stage.CopyFileEvent) {
	f := e.File
	if f.Status == media.StatusFailed {
		o.fileTerminal(f, true, false, f.Error)
		return
	}

	req := stage.RenameRequest{
		File:              f,
		PhotoFolder:       o.cfg.Download.PhotoFolder,
		VideoFolder:       o.cfg.Download.VideoFolder,
		PhotoTemplate:     o.cfg.Rename.PhotoTemplate,
		VideoTemplate:     o.cfg.Rename.VideoTemplate,
		PhotoSubfolders:   o.cfg.Rename.PhotoSubfolders,
		VideoSubfolders:   o.cfg.Rename.VideoSubfolders,
		JobCode:           o.jobCodes.Active(),
		SequenceDigits:    o.cfg.Rename.SequenceDigits,
		StripIncompatible: o.cfg.Rename.StripIncompatble,
		Sequences:         o.sequences,
	}
	o.awaitingName[f.ID] = f
	if err := o.renamer.Rename(req); err != nil {
		delete(o.awaitingName, f.ID)
		o.fileTerminal(f, true, false, err.Error())
	}
}

func (o *Orchestrator) handleRenameFile(e stage.RenameFileEvent) {
	f := e.File
	delete(o.awaitingName, f.ID)
	o.sequences = e.Sequences

	if f.Status == media.StatusFailed {
		o.fileTerminal(f, true, false, f.Error)
		return
	}

	dests := o.resolver.MatchingFor(f.Type)
	if len(dests) == 0 {
		o.fileTerminal(f, false, f.Warning, "")
		return
	}

	fan := &backupFanout{file: f, dests: make(map[int]struct{}, len(dests))}
	o.backupPending[f.ID] = fan
	o.tracker.AddPendingBackup(f.DeviceID, f.ID, f.Type)
	for _, dest := range dests {
		req := stage.BackupRequest{
			File:            f,
			DestinationPath: dest.Path,
			Subfolder:       o.resolver.SubfolderFor(f.Type),
			Overwrite:       o.cfg.Backup.DuplicateOverwrite,
			ChunkKiB:        o.cfg.Workers.CopyChunkKiB,
		}
		if err := o.backupMgr.Backup(o.ctx, dest.DeviceID, req); err != nil {
			o.logger.Warn("backup dispatch failed", logging.Error(err),
				logging.String("destination", dest.Path),
				logging.String(logging.FieldFileID, f.ID))
			fan.failed = true
			continue
		}
		fan.dests[dest.DeviceID] = struct{}{}
	}
	o.settleIfBackedUp(f.ID, fan)
}

func (o *Orchestrator) handleBackupProgress(e stage.BackupProgressEvent) {
	o.tracker.IncrementBytesBackedUp(e.SourceDeviceID, e.Chunk)
	o.timeCheck.Increment(e.Chunk)
	o.timeRemaining.Update(e.SourceDeviceID, e.Chunk)
}

func (o *Orchestrator) handleBackupFile(e stage.BackupFileEvent) {
	fan := o.backupPending[e.File.ID]
	if fan == nil {
		return
	}
	delete(fan.dests, e.DestinationID)
	if e.OK {
		o.tracker.FileBackedUp(e.File.ID)
	} else {
		fan.failed = true
		o.logger.Warn("backup failed",
			logging.String(logging.FieldFileID, e.File.ID),
			logging.String("destination", e.DestinationPath),
			logging.String("error", e.Error),
			logging.String(logging.FieldEventType, "backup_failed"),
			logging.String(logging.FieldImpact, "file downloaded but not backed up there"))
		if o.notifier != nil {
			_ = o.notifier.NotifyBackupProblem(o.ctx, e.DestinationPath, e.Error)
		}
	}
	o.settleIfBackedUp(e.File.ID, fan)
}

// settleIfBackedUp finishes a file once no destinations remain outstanding.
// A failed backup leaves the download counted as a warning, not a failure:
// the file itself arrived.
func (o *Orchestrator) settleIfBackedUp(fileID string, fan *backupFanout) {
	if len(fan.dests) > 0 {
		return
	}
	delete(o.backupPending, fileID)
	o.tracker.SettlePendingBackup(fan.file.DeviceID, fileID)
	o.fileTerminal(fan.file, false, fan.file.Warning || fan.failed, "")
}

// fileTerminal records one file reaching its end state and completes the
// device when it was the last one.
func (o *Orchestrator) fileTerminal(f media.File, failed, warned bool, reason string) {
	o.tracker.FileDownloadedIncrement(f.DeviceID, f.Type, failed, warned)
	if failed && reason != "" {
		o.logger.Warn("file failed",
			logging.String(logging.FieldFileID, f.ID),
			logging.String("name", f.Name),
			logging.Int(logging.FieldDeviceID, f.DeviceID),
			logging.String("error", reason),
			logging.String(logging.FieldEventType, "file_failed"))
	}

	c := o.cycles[f.DeviceID]
	if c == nil {
		return
	}
	if !failed && o.cfg.Download.Move {
		c.removeSources = append(c.removeSources, f.SourcePath)
	}
	if c.remaining > 0 {
		c.remaining--
	}
	o.maybeDeviceComplete(f.DeviceID)
}

func (o *Orchestrator) handleCopyFinished(e stage.WorkerFinishedEvent) {
	c := o.cycles[e.DeviceID]
	if c == nil {
		return
	}
	c.copyDone = true
	if e.Unexpected {
		o.logger.Error("copy worker exited unexpectedly",
			logging.Int(logging.FieldDeviceID, e.DeviceID),
			logging.String("error", e.Error),
			logging.String(logging.FieldEventType, "copy_worker_crashed"),
			logging.String(logging.FieldImpact, "remaining files for this device fail"))
		// Files never copied have no per-file failure events coming.
		for c.remaining > o.inFlightFor(e.DeviceID) {
			c.remaining--
			o.tracker.FileDownloadedIncrement(e.DeviceID, media.Photo, true, false)
		}
	}
	o.maybeDeviceComplete(e.DeviceID)
}

// inFlightFor counts a device's files currently awaiting rename or backup.
func (o *Orchestrator) inFlightFor(deviceID int) int {
	n := 0
	for _, f := range o.awaitingName {
		if f.DeviceID == deviceID {
			n++
		}
	}
	for _, fan := range o.backupPending {
		if fan.file.DeviceID == deviceID {
			n++
		}
	}
	return n
}

func (o *Orchestrator) handleRenameFinished(e stage.WorkerFinishedEvent) {
	o.renamerUp = false
	if !e.Unexpected {
		return
	}
	o.logger.Error("rename worker exited unexpectedly",
		logging.String("error", e.Error),
		logging.String(logging.FieldEventType, "rename_worker_crashed"),
		logging.String(logging.FieldImpact, "files awaiting rename fail; no new renames this cycle"))
	for fileID, f := range o.awaitingName {
		delete(o.awaitingName, fileID)
		o.fileTerminal(f, true, false, "rename worker crashed")
	}
}

func (o *Orchestrator) handleBackupFinished(e stage.WorkerFinishedEvent) {
	if !e.Unexpected {
		return
	}
	// e.DeviceID is the destination identifier for the backup pool.
	var path string
	for _, dest := range o.resolver.Destinations() {
		if dest.DeviceID == e.DeviceID {
			path = dest.Path
			break
		}
	}
	o.logger.Error("backup worker exited unexpectedly",
		logging.String("destination", path),
		logging.String("error", e.Error),
		logging.String(logging.FieldEventType, "backup_worker_crashed"),
		logging.String(logging.FieldImpact, "destination dropped for the rest of the session"))
	if path != "" {
		if dest, ok := o.resolver.Remove(path); ok {
			o.refreshBackupCounts()
			for fileID, fan := range o.backupPending {
				if _, pending := fan.dests[dest.DeviceID]; pending {
					delete(fan.dests, dest.DeviceID)
					fan.failed = true
					o.settleIfBackedUp(fileID, fan)
				}
			}
		}
	}
}

func (o *Orchestrator) maybeDeviceComplete(deviceID int) {
	c := o.cycles[deviceID]
	if c == nil || !c.copyDone || c.remaining > 0 {
		return
	}
	delete(o.cycles, deviceID)
	delete(o.discovered, deviceID)

	d := o.registry.Get(deviceID)
	if d == nil {
		o.maybeCycleComplete()
		return
	}
	if err := o.registry.Transition(deviceID, device.StateCompleted); err != nil {
		o.logger.Warn("completion in unexpected state", logging.Error(err))
	}

	c.purgeTempDirs()
	if o.cfg.Download.Move {
		for _, src := range c.removeSources {
			if err := os.Remove(src); err != nil {
				o.logger.Warn("failed to remove downloaded source", logging.Error(err),
					logging.String("path", src))
			}
		}
	}

	downloaded := o.tracker.FilesDownloaded(deviceID)
	failures := o.tracker.Failures(deviceID)
	warnings := o.tracker.Warnings(deviceID)
	o.timeRemaining.Remove(deviceID)

	o.logger.Info("device download complete",
		logging.Int(logging.FieldDeviceID, deviceID),
		logging.String("name", d.DisplayName),
		logging.Int("downloaded", downloaded.Total()),
		logging.Int("failures", failures),
		logging.Int("warnings", warnings),
		logging.String(logging.FieldEventType, "device_download_complete"))
	if o.notifier != nil {
		_ = o.notifier.NotifyDeviceDownloaded(o.ctx, d.DisplayName, downloaded, failures, warnings)
	}

	if o.cfg.Download.AutoUnmount && d.Ejectable && d.Kind == device.KindVolume && d.Path != "" {
		path := d.Path
		mounts.UnmountAsync(path, func(err error) {
			o.post(func() {
				if err != nil {
					o.logger.Warn("auto-unmount failed", logging.Error(err),
						logging.String("path", path))
					return
				}
				o.logger.Info("volume unmounted", logging.String("path", path))
			})
		})
	}

	o.maybeCycleComplete()
}

// maybeCycleComplete concludes the whole download cycle once every
// registered device settled: the summary goes out, sequences persist, and
// the job code resets.
func (o *Orchestrator) maybeCycleComplete() {
	if !o.downloading || len(o.cycles) > 0 || !o.registry.AllSettled() {
		return
	}
	o.downloading = false
	o.paused = false

	downloaded, failures, warnings := o.tracker.Totals()
	clean := o.tracker.NoErrorsOrWarnings()
	elapsed := time.Since(o.cycleStart)

	o.logger.Info("download cycle complete",
		logging.Int("downloaded", downloaded.Total()),
		logging.Int("failures", failures),
		logging.Int("warnings", warnings),
		logging.Duration("elapsed", elapsed),
		logging.String(logging.FieldEventType, "download_cycle_complete"))
	if o.notifier != nil {
		_ = o.notifier.NotifyDownloadComplete(o.ctx, downloaded, failures, warnings, elapsed)
	}

	o.persistSession()
	o.jobCodes.Reset()
	o.tracker.PurgeAll()

	if o.cfg.Download.AutoExit && (clean || o.cfg.Download.AutoExitForce) {
		o.logger.Info("auto-exit after download cycle",
			logging.String(logging.FieldEventType, "auto_exit"))
		o.requestShutdown()
	}
}

func (o *Orchestrator) requestShutdown() {
	o.stopOnce.Do(func() { close(o.shutdown) })
}

func typeList(types []media.FileType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String() + "s"
	}
	return strings.Join(names, " or ")
}
