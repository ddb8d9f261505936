package stage

import "carousel/internal/media"

// Stage names, used for worker subcommand dispatch and log attributes.
const (
	Scan   = "scan"
	Copy   = "copy"
	Rename = "rename"
	Backup = "backup"
)

// Envelope kinds exchanged with stage workers, beyond the shared control
// and finished kinds.
const (
	KindScanStart   = "scan.start"
	KindScanBatch   = "scan.batch"
	KindScanError   = "scan.error"
	KindCopyStart   = "copy.start"
	KindCopyBytes   = "copy.bytes"
	KindCopyFile    = "copy.file"
	KindRenameFile  = "rename.file"
	KindSequences   = "rename.sequences"
	KindBackupFile  = "backup.file"
	KindBackupBytes = "backup.bytes"
)

// ScanRequest starts a device scan rooted at a mounted path.
type ScanRequest struct {
	Path               string   `json:"path"`
	IgnoredPaths       []string `json:"ignored_paths,omitempty"`
	BatchSize          int      `json:"batch_size"`
	GenerateThumbnails bool     `json:"generate_thumbnails"`
}

// ScanBatch carries a batch of newly discovered files.
type ScanBatch struct {
	Files []media.File `json:"files"`
}

// ScanError reports a scan problem. Recoverable errors (a locked or
// permission-denied source) pause the worker until a control.resume or
// control.stop arrives.
type ScanError struct {
	Path        string `json:"path"`
	Error       string `json:"error"`
	Recoverable bool   `json:"recoverable"`
}

// CopyRequest starts copying a device's marked files into its temporary
// download directories.
type CopyRequest struct {
	Files        []media.File `json:"files"`
	PhotoTempDir string       `json:"photo_temp_dir"`
	VideoTempDir string       `json:"video_temp_dir"`
	ChunkKiB     int          `json:"chunk_kib"`
	Verify       bool         `json:"verify"`
}

// CopyBytes is an untagged progress chunk: cumulative bytes copied for the
// device plus the delta since the previous message.
type CopyBytes struct {
	TotalCopied int64 `json:"total_copied"`
	Chunk       int64 `json:"chunk"`
}

// CopyFileResult reports one file copied to its temporary path, or failed.
type CopyFileResult struct {
	File media.File `json:"file"`
}

// SequenceState is the rename worker's sequence bookkeeping, reported back
// after each rename so it can be persisted at cycle end.
type SequenceState struct {
	StoredNumber   int `json:"stored_number"`
	DownloadsToday int `json:"downloads_today"`
}

// RenameRequest asks the singleton rename worker to name and move one
// copied file to its final destination.
type RenameRequest struct {
	File              media.File    `json:"file"`
	PhotoFolder       string        `json:"photo_folder"`
	VideoFolder       string        `json:"video_folder"`
	PhotoTemplate     string        `json:"photo_template"`
	VideoTemplate     string        `json:"video_template"`
	PhotoSubfolders   string        `json:"photo_subfolders"`
	VideoSubfolders   string        `json:"video_subfolders"`
	JobCode           string        `json:"job_code,omitempty"`
	SequenceDigits    int           `json:"sequence_digits"`
	StripIncompatible bool          `json:"strip_incompatible"`
	Sequences         SequenceState `json:"sequences"`
}

// RenameResult reports one file renamed into place, or failed, along with
// the advanced sequence state.
type RenameResult struct {
	File      media.File    `json:"file"`
	Sequences SequenceState `json:"sequences"`
}

// BackupRequest asks a destination's backup worker to copy one downloaded
// file. The file retains its source device identifier; the envelope is
// tagged with the destination's identifier.
type BackupRequest struct {
	File            media.File `json:"file"`
	DestinationPath string     `json:"destination_path"`
	Subfolder       string     `json:"subfolder,omitempty"`
	Overwrite       bool       `json:"overwrite"`
	ChunkKiB        int        `json:"chunk_kib"`
}

// BackupBytes is a backup progress chunk, tagged with the source device.
type BackupBytes struct {
	SourceDeviceID int   `json:"source_device_id"`
	Chunk          int64 `json:"chunk"`
}

// BackupResult reports one file's backup outcome at one destination.
type BackupResult struct {
	File            media.File `json:"file"`
	DestinationPath string     `json:"destination_path"`
	OK              bool       `json:"ok"`
	Error           string     `json:"error,omitempty"`
}
