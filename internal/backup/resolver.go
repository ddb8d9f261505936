package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sys/unix"

	"carousel/internal/config"
	"carousel/internal/media"
)

// Capability describes which file types a destination accepts.
type Capability int

const (
	CapabilityNone Capability = iota
	CapabilityPhotos
	CapabilityVideos
	CapabilityBoth
)

func (c Capability) String() string {
	switch c {
	case CapabilityNone:
		return "none"
	case CapabilityPhotos:
		return "photos"
	case CapabilityVideos:
		return "videos"
	case CapabilityBoth:
		return "photos-and-videos"
	default:
		return fmt.Sprintf("capability(%d)", int(c))
	}
}

// Handles reports whether the capability covers the given file type.
func (c Capability) Handles(t media.FileType) bool {
	switch t {
	case media.Photo:
		return c == CapabilityPhotos || c == CapabilityBoth
	case media.Video:
		return c == CapabilityVideos || c == CapabilityBoth
	default:
		return false
	}
}

// Destination is one backup-capable location, keyed by path. The DeviceID
// identifies the backup worker serving this path.
type Destination struct {
	Path       string
	Capability Capability
	DeviceID   int
}

// SubfolderFor returns the marker subfolder files of the given type are
// written beneath, or "" when destinations are configured manually and files
// land directly in the configured location.
func (r *Resolver) SubfolderFor(t media.FileType) string {
	if !r.cfg.AutoDetect {
		return ""
	}
	if t == media.Photo {
		return r.cfg.PhotoIdentifier
	}
	return r.cfg.VideoIdentifier
}

// Resolver owns the table of backup destinations and the running counts of
// photo-capable and video-capable destinations. Like the device registry it
// is mutated only by the supervising goroutine.
type Resolver struct {
	cfg    config.Backup
	nextID int
	dests  map[string]*Destination

	photoCapable int
	videoCapable int

	// writable is the probe used for marker subfolders. Swapped in tests.
	writable func(path string) bool
}

// NewResolver returns a resolver for the given backup configuration.
func NewResolver(cfg config.Backup) *Resolver {
	return &Resolver{
		cfg:      cfg,
		nextID:   1,
		dests:    make(map[string]*Destination),
		writable: isWritableDir,
	}
}

// Probe determines the capability of a prospective backup path.
//
// With auto-detection, capability comes from the presence of writable marker
// subfolders named by the configured photo/video identifiers. Without it, the
// path must literally match one of the configured backup locations.
func (r *Resolver) Probe(path string) Capability {
	if !r.cfg.Enabled {
		return CapabilityNone
	}
	if r.cfg.AutoDetect {
		photos := r.writable(filepath.Join(path, r.cfg.PhotoIdentifier))
		videos := r.writable(filepath.Join(path, r.cfg.VideoIdentifier))
		return capabilityFrom(photos, videos)
	}
	photos := r.cfg.PhotoLocation != "" && path == r.cfg.PhotoLocation
	videos := r.cfg.VideoLocation != "" && path == r.cfg.VideoLocation
	return capabilityFrom(photos, videos)
}

func capabilityFrom(photos, videos bool) Capability {
	switch {
	case photos && videos:
		return CapabilityBoth
	case photos:
		return CapabilityPhotos
	case videos:
		return CapabilityVideos
	default:
		return CapabilityNone
	}
}

// Add records a destination for the path. Adding a path already resolved to
// the same capability is a no-op and reports false; a changed capability
// adjusts the running counts in place.
func (r *Resolver) Add(path string, cap Capability) (*Destination, bool) {
	if cap == CapabilityNone {
		return nil, false
	}
	if d, ok := r.dests[path]; ok {
		if d.Capability == cap {
			return d, false
		}
		r.adjustCounts(d.Capability, -1)
		d.Capability = cap
		r.adjustCounts(cap, 1)
		return d, true
	}
	d := &Destination{Path: path, Capability: cap, DeviceID: r.nextID}
	r.nextID++
	r.dests[path] = d
	r.adjustCounts(cap, 1)
	return d, true
}

// Remove drops the destination for the path, returning it if one was
// registered. Removing an unknown path is a no-op.
func (r *Resolver) Remove(path string) (*Destination, bool) {
	d, ok := r.dests[path]
	if !ok {
		return nil, false
	}
	delete(r.dests, path)
	r.adjustCounts(d.Capability, -1)
	return d, true
}

func (r *Resolver) adjustCounts(cap Capability, delta int) {
	if cap.Handles(media.Photo) {
		r.photoCapable += delta
	}
	if cap.Handles(media.Video) {
		r.videoCapable += delta
	}
}

// Get returns the destination registered for a path, or nil.
func (r *Resolver) Get(path string) *Destination {
	return r.dests[path]
}

// Destinations returns all registered destinations ordered by path.
func (r *Resolver) Destinations() []*Destination {
	out := make([]*Destination, 0, len(r.dests))
	for _, d := range r.dests {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// MatchingFor returns the destinations whose capability covers the file type.
func (r *Resolver) MatchingFor(t media.FileType) []*Destination {
	var out []*Destination
	for _, d := range r.Destinations() {
		if d.Capability.Handles(t) {
			out = append(out, d)
		}
	}
	return out
}

// ExpectedFor returns the current number of destinations a file of the given
// type must reach to be fully backed up. Consulted live, never cached, since
// destinations can appear and disappear during a session.
func (r *Resolver) ExpectedFor(t media.FileType) int {
	if t == media.Photo {
		return r.photoCapable
	}
	return r.videoCapable
}

// MissingFor returns the file types in the counter that would be downloaded
// with zero matching backup destinations.
func (r *Resolver) MissingFor(c media.TypeCounter) []media.FileType {
	var missing []media.FileType
	if c.HasPhotos() && r.photoCapable == 0 {
		missing = append(missing, media.Photo)
	}
	if c.HasVideos() && r.videoCapable == 0 {
		missing = append(missing, media.Video)
	}
	return missing
}

// Len returns the number of registered destinations.
func (r *Resolver) Len() int { return len(r.dests) }

func isWritableDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	return unix.Access(path, unix.W_OK) == nil
}
