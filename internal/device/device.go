package device

import (
	"fmt"

	"carousel/internal/media"
)

// Kind classifies the source a device represents.
type Kind int

const (
	KindCamera Kind = iota
	KindVolume
	KindPath
)

func (k Kind) String() string {
	switch k {
	case KindCamera:
		return "camera"
	case KindVolume:
		return "volume"
	case KindPath:
		return "path"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// State is a device's position in the download pipeline.
type State int

const (
	StateRegistered State = iota
	StateScanning
	StateScanned
	StateDownloadPending
	StateDownloading
	StateCompleted
	StateError
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateScanning:
		return "scanning"
	case StateScanned:
		return "scanned"
	case StateDownloadPending:
		return "download-pending"
	case StateDownloading:
		return "downloading"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	case StateRemoved:
		return "removed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Descriptor carries the attributes a discovery collaborator reports
// when a device appears.
type Descriptor struct {
	Kind        Kind
	DisplayName string
	Path        string
	CameraModel string
	CameraPort  string
	Icon        string
	Ejectable   bool
}

// Device is one attached source of media files. Owned exclusively by the
// Registry; other components hold only its identifier.
type Device struct {
	ID          int
	Kind        Kind
	DisplayName string
	Path        string
	CameraModel string
	CameraPort  string
	Icon        string
	Ejectable   bool

	Counter media.TypeCounter
	State   State
}

// Camera devices are addressed by (model, port) during unmount negotiation.
func (d *Device) CameraKey() (string, string) {
	return d.CameraModel, d.CameraPort
}
