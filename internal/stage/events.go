package stage

import "carousel/internal/media"

// Event is one stage result delivered to the orchestrator's event loop.
// Every variant carries enough routing information to be dispatched at a
// single point; the loop matches them exhaustively.
type Event interface {
	event()
}

// ScanBatchEvent delivers newly discovered files for a device.
type ScanBatchEvent struct {
	DeviceID int
	Files    []media.File
}

// ScanErrorEvent reports a scan problem; recoverable ones leave the worker
// paused awaiting a retry-or-ignore decision.
type ScanErrorEvent struct {
	DeviceID    int
	Path        string
	Error       string
	Recoverable bool
}

// CopyProgressEvent is a bytes-transferred delta for a device's copy.
type CopyProgressEvent struct {
	DeviceID    int
	TotalCopied int64
	Chunk       int64
}

// CopyFileEvent reports one file copied to its temporary path, or failed.
type CopyFileEvent struct {
	File media.File
}

// RenameFileEvent reports one file renamed into its final location.
type RenameFileEvent struct {
	File      media.File
	Sequences SequenceState
}

// BackupProgressEvent is a bytes-transferred delta for one file's backup,
// attributed to the source device.
type BackupProgressEvent struct {
	SourceDeviceID int
	Chunk          int64
}

// BackupFileEvent reports one file's backup outcome at one destination.
type BackupFileEvent struct {
	DestinationID   int
	DestinationPath string
	File            media.File
	OK              bool
	Error           string
}

// WorkerFinishedEvent reports a worker's exit. Unexpected marks a crash;
// the orchestrator must not re-dispatch work to that worker.
type WorkerFinishedEvent struct {
	Stage      string
	DeviceID   int
	Unexpected bool
	Error      string
}

func (ScanBatchEvent) event()      {}
func (ScanErrorEvent) event()      {}
func (CopyProgressEvent) event()   {}
func (CopyFileEvent) event()       {}
func (RenameFileEvent) event()     {}
func (BackupProgressEvent) event() {}
func (BackupFileEvent) event()     {}
func (WorkerFinishedEvent) event() {}
