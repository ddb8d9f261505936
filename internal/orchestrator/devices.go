package orchestrator

import (
	"fmt"
	"strings"

	"carousel/internal/backup"
	"carousel/internal/device"
	"carousel/internal/logging"
	"carousel/internal/media"
	"carousel/internal/mounts"
	"carousel/internal/stage"
)

// maxScanRetries bounds automatic retries under the "retry" scan error
// policy before the error is treated as ignored.
const maxScanRetries = 3

// HandleMountEvent is installed as the mount monitor's handler. It runs on
// the monitor's goroutine and marshals onto the supervising loop.
func (o *Orchestrator) HandleMountEvent(ev mounts.Event) {
	o.post(func() {
		if ev.Added {
			o.volumeAdded(ev)
		} else {
			o.volumeRemoved(ev)
		}
	})
}

func (o *Orchestrator) volumeAdded(ev mounts.Event) {
	if o.blacklisted(ev) {
		o.logger.Debug("ignoring blacklisted volume", logging.String("path", ev.Path))
		return
	}
	if o.cfg.Download.OnlyExternalMounts && !mounts.IsExternal(ev.Path) {
		return
	}

	// A volume can be a backup destination, a download source, or both.
	if cap := o.resolver.Probe(ev.Path); cap != backup.CapabilityNone {
		o.addDestination(ev.Path, cap)
	}

	if !o.cfg.Download.DeviceAutodetection {
		return
	}
	if !mounts.HasDCIM(ev.Path) && !o.cfg.Download.ScanNonMediaVolumes {
		return
	}
	if o.registry.KnownPath(ev.Path, device.KindVolume) {
		return
	}

	name := ev.Label
	if name == "" {
		name = mounts.DisplayName(ev.Path)
	}
	d := o.registry.Register(device.Descriptor{
		Kind:        device.KindVolume,
		DisplayName: name,
		Path:        ev.Path,
		Ejectable:   true,
	})
	o.logger.Info("volume registered",
		logging.Int(logging.FieldDeviceID, d.ID),
		logging.String("path", ev.Path),
		logging.String(logging.FieldEventType, "device_registered"))
	o.startScan(d)
}

func (o *Orchestrator) volumeRemoved(ev mounts.Event) {
	if dest, ok := o.resolver.Remove(ev.Path); ok {
		o.destinationGone(dest.DeviceID, dest.Path)
	}
	if id, ok := o.registry.IDFromPath(ev.Path, device.KindVolume); ok {
		o.deviceGone(id)
	}
}

func (o *Orchestrator) blacklisted(ev mounts.Event) bool {
	for _, entry := range o.cfg.Download.DeviceBlacklist {
		if entry == "" {
			continue
		}
		if entry == ev.Device || entry == ev.Path || strings.EqualFold(entry, ev.Label) {
			return true
		}
	}
	return false
}

// deviceGone handles a source device vanishing mid-session: its workers are
// stopped, any in-flight files fail, and its statistics are dropped.
func (o *Orchestrator) deviceGone(id int) {
	d := o.registry.Get(id)
	if d == nil {
		return
	}
	o.logger.Info("device removed",
		logging.Int(logging.FieldDeviceID, id),
		logging.String("name", d.DisplayName),
		logging.String(logging.FieldEventType, "device_removed"))

	o.scan.Stop(id)
	o.copier.Stop(id)

	if c := o.cycles[id]; c != nil {
		o.failInFlight(id, "device removed")
		c.purgeTempDirs()
		delete(o.cycles, id)
	}
	delete(o.discovered, id)
	delete(o.scanPrompts, id)
	delete(o.scanRetries, id)
	o.tracker.Purge(id)
	o.timeRemaining.Remove(id)
	o.registry.Remove(id)
	o.maybeCycleComplete()
}

// failInFlight marks every non-terminal file of a device failed, covering
// files awaiting rename or backup.
func (o *Orchestrator) failInFlight(id int, reason string) {
	for fileID, f := range o.awaitingName {
		if f.DeviceID == id {
			delete(o.awaitingName, fileID)
			o.fileTerminal(f, true, false, reason)
		}
	}
	for fileID, fan := range o.backupPending {
		if fan.file.DeviceID == id {
			delete(o.backupPending, fileID)
			o.tracker.SettlePendingBackup(id, fileID)
			o.fileTerminal(fan.file, true, false, reason)
		}
	}
}

// AddPath registers a local directory as a download source.
func (o *Orchestrator) addPath(path string) (int, error) {
	if path == "" {
		return 0, fmt.Errorf("path required")
	}
	if o.registry.KnownPath(path, device.KindPath) {
		return 0, fmt.Errorf("path %s is already registered", path)
	}
	d := o.registry.Register(device.Descriptor{
		Kind:        device.KindPath,
		DisplayName: mounts.DisplayName(path),
		Path:        path,
	})
	o.startScan(d)
	return d.ID, nil
}

// addCamera negotiates camera access. A camera auto-mounted by the desktop
// must be unmounted before its storage can be scanned; at most one
// negotiation per (model, port) pair is in flight.
func (o *Orchestrator) addCamera(model, port, mountPath string) (int, error) {
	if o.registry.KnownCamera(model, port) {
		return 0, fmt.Errorf("camera %s at %s is already registered", model, port)
	}
	key := model + "\x00" + port
	if _, pending := o.pendingUnmts[key]; pending {
		return 0, fmt.Errorf("camera %s at %s is already being negotiated", model, port)
	}

	if mountPath == "" {
		d := o.registerCamera(model, port)
		return d.ID, nil
	}

	o.pendingUnmts[key] = struct{}{}
	mounts.UnmountAsync(mountPath, func(err error) {
		o.post(func() {
			delete(o.pendingUnmts, key)
			if err != nil {
				o.logger.Warn("camera unmount failed",
					logging.Error(err),
					logging.String("model", model),
					logging.String(logging.FieldEventType, "camera_unmount_failed"),
					logging.String(logging.FieldErrorHint, "close applications using the camera and retry"),
					logging.String(logging.FieldImpact, "camera cannot be scanned"))
				return
			}
			o.registerCamera(model, port)
		})
	})
	return 0, nil
}

func (o *Orchestrator) registerCamera(model, port string) *device.Device {
	d := o.registry.Register(device.Descriptor{
		Kind:        device.KindCamera,
		DisplayName: model,
		CameraModel: model,
		CameraPort:  port,
	})
	o.logger.Info("camera registered",
		logging.Int(logging.FieldDeviceID, d.ID),
		logging.String("model", model),
		logging.String("port", port),
		logging.String(logging.FieldEventType, "device_registered"))
	o.startScan(d)
	return d
}

func (o *Orchestrator) startScan(d *device.Device) {
	if err := o.registry.Transition(d.ID, device.StateScanning); err != nil {
		o.logger.Warn("cannot start scan", logging.Error(err))
		return
	}
	req := stage.ScanRequest{
		Path:               d.Path,
		IgnoredPaths:       o.cfg.Download.IgnoredPaths,
		BatchSize:          o.cfg.Workers.ScanBatchSize,
		GenerateThumbnails: o.cfg.Download.GenerateThumbnails,
	}
	if err := o.scan.Start(o.ctx, d.ID, req); err != nil {
		o.logger.Error("scan worker failed to start",
			logging.Error(err),
			logging.Int(logging.FieldDeviceID, d.ID),
			logging.String(logging.FieldEventType, "scan_start_failed"))
		_ = o.registry.Transition(d.ID, device.StateError)
	}
}

func (o *Orchestrator) handleScanBatch(e stage.ScanBatchEvent) {
	d := o.registry.Get(e.DeviceID)
	if d == nil {
		return
	}
	o.discovered[e.DeviceID] = append(o.discovered[e.DeviceID], e.Files...)
	for _, f := range e.Files {
		d.Counter.Add(f.Type, f.Size)
	}
}

func (o *Orchestrator) handleScanError(e stage.ScanErrorEvent) {
	if !e.Recoverable {
		o.logger.Warn("scan error",
			logging.Int(logging.FieldDeviceID, e.DeviceID),
			logging.String("path", e.Path),
			logging.String("error", e.Error),
			logging.String(logging.FieldEventType, "scan_error"))
		return
	}

	switch o.cfg.Download.ScanErrorPolicy {
	case "retry":
		if o.scanRetries[e.DeviceID] < maxScanRetries {
			o.scanRetries[e.DeviceID]++
			o.retryScan(e.DeviceID)
			return
		}
		o.ignoreScanError(e.DeviceID)
	case "ignore":
		o.ignoreScanError(e.DeviceID)
	default: // prompt
		_ = o.registry.Transition(e.DeviceID, device.StateError)
		o.scanPrompts[e.DeviceID] = struct{}{}
		o.logger.Info("scan paused awaiting retry-or-ignore decision",
			logging.Int(logging.FieldDeviceID, e.DeviceID),
			logging.String("path", e.Path),
			logging.String("error", e.Error),
			logging.String(logging.FieldEventType, "scan_decision_needed"))
		if o.notifier != nil {
			_ = o.notifier.NotifyError(o.ctx, fmt.Errorf("%s: %s", e.Path, e.Error), "device scan")
		}
	}
}

// retryScan clears the partial results and resumes the paused worker, which
// rescans from the beginning.
func (o *Orchestrator) retryScan(deviceID int) {
	delete(o.discovered, deviceID)
	if d := o.registry.Get(deviceID); d != nil {
		d.Counter = media.TypeCounter{}
	}
	_ = o.registry.Transition(deviceID, device.StateScanning)
	if err := o.scan.Resume(deviceID); err != nil {
		o.logger.Warn("failed to resume scan", logging.Error(err),
			logging.Int(logging.FieldDeviceID, deviceID))
	}
}

// ignoreScanError abandons the failed scan and removes the device,
// releasing its identifier. Partial scan results are discarded with it.
func (o *Orchestrator) ignoreScanError(deviceID int) {
	o.deviceGone(deviceID)
}

// resolveScanError applies an IPC retry-or-ignore decision.
func (o *Orchestrator) resolveScanError(deviceID int, retry bool) error {
	if _, ok := o.scanPrompts[deviceID]; !ok {
		return fmt.Errorf("device %d has no pending scan decision", deviceID)
	}
	delete(o.scanPrompts, deviceID)
	if retry {
		o.retryScan(deviceID)
	} else {
		o.ignoreScanError(deviceID)
	}
	return nil
}

func (o *Orchestrator) handleScanFinished(e stage.WorkerFinishedEvent) {
	d := o.registry.Get(e.DeviceID)
	if d == nil {
		return
	}
	delete(o.scanPrompts, e.DeviceID)
	delete(o.scanRetries, e.DeviceID)

	if e.Unexpected {
		o.logger.Error("scan worker exited unexpectedly",
			logging.Int(logging.FieldDeviceID, e.DeviceID),
			logging.String("error", e.Error),
			logging.String(logging.FieldEventType, "scan_worker_crashed"),
			logging.String(logging.FieldImpact, "device cannot be downloaded"))
		_ = o.registry.Transition(e.DeviceID, device.StateError)
		return
	}

	if err := o.registry.Transition(e.DeviceID, device.StateScanned); err != nil {
		o.logger.Warn("scan finished in unexpected state", logging.Error(err))
		return
	}
	o.logger.Info("device scanned",
		logging.Int(logging.FieldDeviceID, d.ID),
		logging.String("name", d.DisplayName),
		logging.Int("files", d.Counter.Total()),
		logging.Int64("bytes", d.Counter.TotalBytes()),
		logging.String(logging.FieldEventType, "device_scanned"))
	if o.notifier != nil && d.Counter.Total() > 0 {
		_ = o.notifier.NotifyDeviceDetected(o.ctx, d.DisplayName, d.Counter)
	}

	if o.cfg.Download.AutoDownloadOnInsert {
		if _, err := o.startDownload(d.ID); err != nil {
			o.logger.Warn("auto download not started", logging.Error(err),
				logging.Int(logging.FieldDeviceID, d.ID))
		}
	}
}

// addDestination registers a backup destination and refreshes the live
// requirement counts used by backup completion checks.
func (o *Orchestrator) addDestination(path string, cap backup.Capability) {
	dest, changed := o.resolver.Add(path, cap)
	if dest == nil {
		return
	}
	if changed {
		o.logger.Info("backup destination available",
			logging.String("path", dest.Path),
			logging.String("capability", dest.Capability.String()),
			logging.String(logging.FieldEventType, "backup_destination_added"))
	}
	o.refreshBackupCounts()
}

// destinationGone handles a backup destination vanishing mid-session. The
// requirement counts drop, so files that were waiting only on the vanished
// destination complete instead of hanging.
func (o *Orchestrator) destinationGone(destinationID int, path string) {
	o.logger.Warn("backup destination removed",
		logging.String("path", path),
		logging.String(logging.FieldEventType, "backup_destination_removed"),
		logging.String(logging.FieldImpact, "files pending backup there will complete without it"))
	o.backupMgr.StopDestination(destinationID)
	o.refreshBackupCounts()

	for fileID, fan := range o.backupPending {
		if _, ok := fan.dests[destinationID]; ok {
			delete(fan.dests, destinationID)
			o.settleIfBackedUp(fileID, fan)
		}
	}
}

func (o *Orchestrator) refreshBackupCounts() {
	o.tracker.SetBackupDeviceCounts(
		o.resolver.ExpectedFor(media.Photo),
		o.resolver.ExpectedFor(media.Video))
}
