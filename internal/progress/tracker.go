package progress

import (
	"carousel/internal/media"
)

// deviceStats accumulates one device's download cycle.
type deviceStats struct {
	counter       media.TypeCounter
	bytesToCopy   int64
	bytesToBackUp int64
	bytesCopied   int64
	bytesBackedUp int64

	downloaded media.TypeCounter
	failures   int
	warnings   int
}

// Tracker accumulates per-device and global download statistics. Percent
// complete is byte-based: (bytes copied + bytes backed up) over (bytes to
// copy + bytes to back up). Mutated only by the supervising goroutine.
type Tracker struct {
	devices map[int]*deviceStats

	// backedUp counts successful backup results per file. A file is fully
	// backed up when its count reaches the number of destinations whose
	// capability matches its type, consulted live so that destinations
	// appearing or vanishing mid-session adjust the requirement.
	backedUp map[string]int
	pending  map[int]map[string]media.FileType

	photoBackupDevices int
	videoBackupDevices int
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		devices:  make(map[int]*deviceStats),
		backedUp: make(map[string]int),
		pending:  make(map[int]map[string]media.FileType),
	}
}

// SetBackupDeviceCounts records how many destinations currently accept each
// file type. Called before each download cycle and again whenever a
// destination appears or disappears.
func (t *Tracker) SetBackupDeviceCounts(photos, videos int) {
	t.photoBackupDevices = photos
	t.videoBackupDevices = videos
}

func (t *Tracker) expectedFor(ft media.FileType) int {
	if ft == media.Photo {
		return t.photoBackupDevices
	}
	return t.videoBackupDevices
}

// InitStats begins tracking a device's download cycle. The counter holds the
// files and bytes marked for download; bytes to back up are derived from the
// destination counts at cycle start.
func (t *Tracker) InitStats(deviceID int, c media.TypeCounter) {
	t.devices[deviceID] = &deviceStats{
		counter:     c,
		bytesToCopy: c.TotalBytes(),
		bytesToBackUp: c.Bytes(media.Photo)*int64(t.photoBackupDevices) +
			c.Bytes(media.Video)*int64(t.videoBackupDevices),
	}
	t.pending[deviceID] = make(map[string]media.FileType)
}

// AddPendingBackup registers a file awaiting backup completion.
func (t *Tracker) AddPendingBackup(deviceID int, fileID string, ft media.FileType) {
	if m := t.pending[deviceID]; m != nil {
		m[fileID] = ft
	}
}

// FileBackedUp records one successful backup result for a file.
func (t *Tracker) FileBackedUp(fileID string) {
	t.backedUp[fileID]++
}

// FileBackedUpToAllLocations reports whether the file has reached every
// destination its type currently requires. A file whose type has zero
// matching destinations is trivially complete.
func (t *Tracker) FileBackedUpToAllLocations(fileID string, ft media.FileType) bool {
	return t.backedUp[fileID] >= t.expectedFor(ft)
}

// SettlePendingBackup drops a fully backed up file from the pending set.
func (t *Tracker) SettlePendingBackup(deviceID int, fileID string) {
	if m := t.pending[deviceID]; m != nil {
		delete(m, fileID)
	}
	delete(t.backedUp, fileID)
}

// AllFilesBackedUp reports whether every pending file across all devices has
// reached all of its currently required destinations.
func (t *Tracker) AllFilesBackedUp() bool {
	for _, files := range t.pending {
		for fileID, ft := range files {
			if !t.FileBackedUpToAllLocations(fileID, ft) {
				return false
			}
		}
	}
	return true
}

// SetTotalBytesCopied records the cumulative bytes copied for a device. The
// copy stage reports absolute totals, not deltas.
func (t *Tracker) SetTotalBytesCopied(deviceID int, total int64) {
	if d := t.devices[deviceID]; d != nil {
		d.bytesCopied = total
	}
}

// IncrementBytesBackedUp adds to a device's cumulative backed-up byte count.
func (t *Tracker) IncrementBytesBackedUp(deviceID int, chunk int64) {
	if d := t.devices[deviceID]; d != nil {
		d.bytesBackedUp += chunk
	}
}

// FileDownloadedIncrement records one file reaching a terminal per-file
// state: downloaded successfully, failed, or downloaded with a warning.
func (t *Tracker) FileDownloadedIncrement(deviceID int, ft media.FileType, failed, warned bool) {
	d := t.devices[deviceID]
	if d == nil {
		return
	}
	switch {
	case failed:
		d.failures++
	case warned:
		d.warnings++
		d.downloaded.Add(ft, 0)
	default:
		d.downloaded.Add(ft, 0)
	}
}

// PercentComplete returns a device's byte-based completion in [0, 100].
func (t *Tracker) PercentComplete(deviceID int) float64 {
	d := t.devices[deviceID]
	if d == nil {
		return 0
	}
	return percent(d.bytesCopied+d.bytesBackedUp, d.bytesToCopy+d.bytesToBackUp)
}

// OverallPercentComplete returns global completion, weighting each device's
// percent by its share of the total bytes in flight.
func (t *Tracker) OverallPercentComplete() float64 {
	var done, total int64
	for _, d := range t.devices {
		done += d.bytesCopied + d.bytesBackedUp
		total += d.bytesToCopy + d.bytesToBackUp
	}
	return percent(done, total)
}

func percent(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(done) / float64(total) * 100
	if p > 100 {
		p = 100
	}
	return p
}

// FilesDownloaded returns a device's downloaded-file counter.
func (t *Tracker) FilesDownloaded(deviceID int) media.TypeCounter {
	if d := t.devices[deviceID]; d != nil {
		return d.downloaded
	}
	return media.TypeCounter{}
}

// FilesToDownload returns the number of files marked for a device's cycle.
func (t *Tracker) FilesToDownload(deviceID int) int {
	if d := t.devices[deviceID]; d != nil {
		return d.counter.Total()
	}
	return 0
}

// Failures returns a device's failed-file count.
func (t *Tracker) Failures(deviceID int) int {
	if d := t.devices[deviceID]; d != nil {
		return d.failures
	}
	return 0
}

// Warnings returns a device's warned-file count.
func (t *Tracker) Warnings(deviceID int) int {
	if d := t.devices[deviceID]; d != nil {
		return d.warnings
	}
	return 0
}

// Totals sums downloaded, failed, and warned counts across all tracked
// devices, for the end-of-cycle summary.
func (t *Tracker) Totals() (downloaded media.TypeCounter, failures, warnings int) {
	for _, d := range t.devices {
		downloaded.Merge(d.downloaded)
		failures += d.failures
		warnings += d.warnings
	}
	return downloaded, failures, warnings
}

// NoErrorsOrWarnings reports whether the whole cycle completed cleanly.
func (t *Tracker) NoErrorsOrWarnings() bool {
	for _, d := range t.devices {
		if d.failures > 0 || d.warnings > 0 {
			return false
		}
	}
	return true
}

// Purge forgets one device's statistics and pending backups.
func (t *Tracker) Purge(deviceID int) {
	for fileID := range t.pending[deviceID] {
		delete(t.backedUp, fileID)
	}
	delete(t.pending, deviceID)
	delete(t.devices, deviceID)
}

// PurgeAll resets the tracker at the end of a download cycle.
func (t *Tracker) PurgeAll() {
	t.devices = make(map[int]*deviceStats)
	t.backedUp = make(map[string]int)
	t.pending = make(map[int]map[string]media.FileType)
}
