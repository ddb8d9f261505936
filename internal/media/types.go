package media

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FileType distinguishes the two media classes the pipeline handles.
type FileType int

const (
	Photo FileType = iota
	Video
)

// FileTypes lists every file type, in display order.
var FileTypes = []FileType{Photo, Video}

func (t FileType) String() string {
	switch t {
	case Photo:
		return "photo"
	case Video:
		return "video"
	default:
		return fmt.Sprintf("filetype(%d)", int(t))
	}
}

// Status tracks a file through the download pipeline.
type Status int

const (
	StatusDiscovered Status = iota
	StatusThumbnailPending
	StatusDownloadPending
	StatusCopied
	StatusRenamed
	StatusBackedUp
	StatusFinished
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDiscovered:
		return "discovered"
	case StatusThumbnailPending:
		return "thumbnail-pending"
	case StatusDownloadPending:
		return "download-pending"
	case StatusCopied:
		return "copied"
	case StatusRenamed:
		return "renamed"
	case StatusBackedUp:
		return "backed-up"
	case StatusFinished:
		return "finished"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether the status is an end state for the pipeline.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// File is one discovered photo or video tracked through the pipeline.
// Instances cross the worker process boundary and must stay JSON-encodable.
type File struct {
	ID         string   `json:"id"`
	DeviceID   int      `json:"device_id"`
	Type       FileType `json:"type"`
	Status     Status   `json:"status"`
	Name       string   `json:"name"`
	SourcePath string   `json:"source_path"`
	Size       int64    `json:"size"`
	ModTime    int64    `json:"mod_time"`

	// Set as the file moves through the pipeline.
	TempPath  string `json:"temp_path,omitempty"`
	FinalPath string `json:"final_path,omitempty"`
	JobCode   string `json:"job_code,omitempty"`
	Error     string `json:"error,omitempty"`
	Warning   bool   `json:"warning,omitempty"`
}

var photoExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".tif": {}, ".tiff": {},
	".dng": {}, ".cr2": {}, ".cr3": {}, ".nef": {}, ".nrw": {},
	".arw": {}, ".orf": {}, ".raf": {}, ".rw2": {}, ".pef": {},
	".srw": {}, ".heic": {}, ".heif": {}, ".webp": {}, ".gif": {},
}

var videoExtensions = map[string]struct{}{
	".mov": {}, ".mp4": {}, ".m4v": {}, ".avi": {}, ".mts": {},
	".m2ts": {}, ".mpg": {}, ".mpeg": {}, ".mkv": {}, ".3gp": {},
	".wmv": {}, ".mod": {}, ".tod": {},
}

// Classify reports the file type for a path, or ok=false when the
// extension is neither a known photo nor video format.
func Classify(path string) (FileType, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := photoExtensions[ext]; ok {
		return Photo, true
	}
	if _, ok := videoExtensions[ext]; ok {
		return Video, true
	}
	return Photo, false
}
