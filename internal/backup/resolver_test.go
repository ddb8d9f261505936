package backup

import (
	"os"
	"path/filepath"
	"testing"

	"carousel/internal/config"
	"carousel/internal/media"
)

func autoResolver() *Resolver {
	return NewResolver(config.Backup{
		Enabled:         true,
		AutoDetect:      true,
		PhotoIdentifier: "Photos",
		VideoIdentifier: "Videos",
	})
}

func TestProbeMarkerSubfolders(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "Photos"), 0o755); err != nil {
		t.Fatal(err)
	}

	r := autoResolver()
	if got := r.Probe(dir); got != CapabilityPhotos {
		t.Fatalf("Probe with photo marker = %s, want photos", got)
	}

	if err := os.Mkdir(filepath.Join(dir, "Videos"), 0o755); err != nil {
		t.Fatal(err)
	}
	if got := r.Probe(dir); got != CapabilityBoth {
		t.Fatalf("Probe with both markers = %s, want photos-and-videos", got)
	}

	if got := r.Probe(t.TempDir()); got != CapabilityNone {
		t.Fatalf("Probe without markers = %s, want none", got)
	}
}

func TestProbeManualLocations(t *testing.T) {
	r := NewResolver(config.Backup{
		Enabled:       true,
		PhotoLocation: "/backup/photos",
		VideoLocation: "/backup/videos",
	})
	if got := r.Probe("/backup/photos"); got != CapabilityPhotos {
		t.Fatalf("Probe(photo location) = %s", got)
	}
	if got := r.Probe("/backup/videos"); got != CapabilityVideos {
		t.Fatalf("Probe(video location) = %s", got)
	}
	if got := r.Probe("/somewhere/else"); got != CapabilityNone {
		t.Fatalf("Probe(unrelated) = %s", got)
	}
}

func TestProbeDisabled(t *testing.T) {
	r := NewResolver(config.Backup{Enabled: false, PhotoLocation: "/backup"})
	if got := r.Probe("/backup"); got != CapabilityNone {
		t.Fatalf("Probe with backup disabled = %s, want none", got)
	}
}

func TestAddIdempotent(t *testing.T) {
	r := autoResolver()

	d, added := r.Add("/media/disk", CapabilityBoth)
	if !added || d == nil {
		t.Fatal("first add should register the destination")
	}
	if r.ExpectedFor(media.Photo) != 1 || r.ExpectedFor(media.Video) != 1 {
		t.Fatalf("counts after add = (%d, %d), want (1, 1)", r.ExpectedFor(media.Photo), r.ExpectedFor(media.Video))
	}

	same, added := r.Add("/media/disk", CapabilityBoth)
	if added {
		t.Fatal("re-adding the same path and capability should be a no-op")
	}
	if same != d {
		t.Fatal("re-add should return the existing destination")
	}
	if r.ExpectedFor(media.Photo) != 1 || r.ExpectedFor(media.Video) != 1 {
		t.Fatal("counts must not change on duplicate add")
	}
}

func TestAddCapabilityChange(t *testing.T) {
	r := autoResolver()
	r.Add("/media/disk", CapabilityPhotos)

	_, changed := r.Add("/media/disk", CapabilityBoth)
	if !changed {
		t.Fatal("capability change should report true")
	}
	if r.ExpectedFor(media.Photo) != 1 || r.ExpectedFor(media.Video) != 1 {
		t.Fatalf("counts after change = (%d, %d), want (1, 1)", r.ExpectedFor(media.Photo), r.ExpectedFor(media.Video))
	}
}

func TestRemoveAdjustsCounts(t *testing.T) {
	r := autoResolver()
	r.Add("/a", CapabilityPhotos)
	r.Add("/b", CapabilityBoth)

	if _, ok := r.Remove("/a"); !ok {
		t.Fatal("remove of known path should succeed")
	}
	if r.ExpectedFor(media.Photo) != 1 || r.ExpectedFor(media.Video) != 1 {
		t.Fatalf("counts after remove = (%d, %d), want (1, 1)", r.ExpectedFor(media.Photo), r.ExpectedFor(media.Video))
	}
	if _, ok := r.Remove("/a"); ok {
		t.Fatal("remove of unknown path should be a no-op")
	}
}

func TestMatchingFor(t *testing.T) {
	r := autoResolver()
	r.Add("/photos-only", CapabilityPhotos)
	r.Add("/everything", CapabilityBoth)

	videos := r.MatchingFor(media.Video)
	if len(videos) != 1 || videos[0].Path != "/everything" {
		t.Fatalf("MatchingFor(Video) = %+v, want only /everything", videos)
	}
	if got := len(r.MatchingFor(media.Photo)); got != 2 {
		t.Fatalf("MatchingFor(Photo) count = %d, want 2", got)
	}
}

func TestMissingFor(t *testing.T) {
	r := autoResolver()
	r.Add("/photos-only", CapabilityPhotos)

	var c media.TypeCounter
	c.Add(media.Photo, 100)
	c.Add(media.Video, 100)

	missing := r.MissingFor(c)
	if len(missing) != 1 || missing[0] != media.Video {
		t.Fatalf("MissingFor = %v, want [video]", missing)
	}
}
