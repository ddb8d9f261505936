package media

import "fmt"

// TypeCounter accumulates file counts and byte totals split by file type.
type TypeCounter struct {
	PhotoCount int   `json:"photo_count"`
	VideoCount int   `json:"video_count"`
	PhotoBytes int64 `json:"photo_bytes"`
	VideoBytes int64 `json:"video_bytes"`
}

// Add records one file of the given type and size.
func (c *TypeCounter) Add(t FileType, size int64) {
	switch t {
	case Photo:
		c.PhotoCount++
		c.PhotoBytes += size
	case Video:
		c.VideoCount++
		c.VideoBytes += size
	}
}

// Merge folds another counter into this one.
func (c *TypeCounter) Merge(other TypeCounter) {
	c.PhotoCount += other.PhotoCount
	c.VideoCount += other.VideoCount
	c.PhotoBytes += other.PhotoBytes
	c.VideoBytes += other.VideoBytes
}

// Count returns the file count for one type.
func (c TypeCounter) Count(t FileType) int {
	if t == Video {
		return c.VideoCount
	}
	return c.PhotoCount
}

// Bytes returns the byte total for one type.
func (c TypeCounter) Bytes(t FileType) int64 {
	if t == Video {
		return c.VideoBytes
	}
	return c.PhotoBytes
}

// Total returns the combined file count.
func (c TypeCounter) Total() int {
	return c.PhotoCount + c.VideoCount
}

// TotalBytes returns the combined byte total.
func (c TypeCounter) TotalBytes() int64 {
	return c.PhotoBytes + c.VideoBytes
}

// HasPhotos reports whether any photos were counted.
func (c TypeCounter) HasPhotos() bool { return c.PhotoCount > 0 }

// HasVideos reports whether any videos were counted.
func (c TypeCounter) HasVideos() bool { return c.VideoCount > 0 }

// Summary renders a short human-readable count, e.g. "3 photos and 1 video".
func (c TypeCounter) Summary() string {
	switch {
	case c.PhotoCount > 0 && c.VideoCount > 0:
		return fmt.Sprintf("%s and %s", plural(c.PhotoCount, "photo"), plural(c.VideoCount, "video"))
	case c.VideoCount > 0:
		return plural(c.VideoCount, "video")
	default:
		return plural(c.PhotoCount, "photo")
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
