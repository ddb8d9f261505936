package progress

import (
	"fmt"
	"math"
	"time"
)

// minSampleInterval is the shortest elapsed time between accepted rate
// samples. Shorter bursts are accumulated rather than sampled, smoothing
// the reported speed.
const minSampleInterval = time.Second

// TimeCheck gates download-speed sampling across all devices. Bytes are
// accumulated as chunks arrive; CheckForUpdate accepts a sample only when
// the minimum interval has elapsed since the previous one.
type TimeCheck struct {
	mark  time.Time
	bytes int64
	rate  float64 // bytes per second, most recent accepted sample

	now func() time.Time
}

// NewTimeCheck returns a TimeCheck using the wall clock.
func NewTimeCheck() *TimeCheck {
	return &TimeCheck{now: time.Now}
}

// SetDownloadMark resets the sampling window. Called when a download cycle
// starts or resumes.
func (tc *TimeCheck) SetDownloadMark() {
	tc.mark = tc.now()
	tc.bytes = 0
}

// Increment accumulates transferred bytes toward the next sample.
func (tc *TimeCheck) Increment(bytes int64) {
	tc.bytes += bytes
}

// Pause re-marks the sampling window so elapsed paused time does not
// inflate the next computed rate.
func (tc *TimeCheck) Pause() {
	tc.SetDownloadMark()
}

// CheckForUpdate reports whether enough time has elapsed to accept a new
// sample, and if so returns the freshly computed transfer rate in bytes
// per second.
func (tc *TimeCheck) CheckForUpdate() (bool, float64) {
	elapsed := tc.now().Sub(tc.mark)
	if elapsed < minSampleInterval {
		return false, tc.rate
	}
	tc.rate = float64(tc.bytes) / elapsed.Seconds()
	tc.mark = tc.now()
	tc.bytes = 0
	return true, tc.rate
}

type deviceRemaining struct {
	outstanding int64
	bytes       int64 // accumulated since mark, toward the next sample
	mark        time.Time
	rate        float64
}

// TimeRemaining estimates outstanding download time per device. Each device
// tracks its own smoothed rate; the overall estimate is governed by the
// slowest device.
type TimeRemaining struct {
	devices map[int]*deviceRemaining

	now func() time.Time
}

// NewTimeRemaining returns a TimeRemaining using the wall clock.
func NewTimeRemaining() *TimeRemaining {
	return &TimeRemaining{devices: make(map[int]*deviceRemaining), now: time.Now}
}

// Set registers the outstanding byte total for a device's cycle.
func (tr *TimeRemaining) Set(deviceID int, bytes int64) {
	tr.devices[deviceID] = &deviceRemaining{outstanding: bytes, mark: tr.now()}
}

// Update records transferred bytes for a device, refreshing its rate when
// the minimum sample interval has elapsed.
func (tr *TimeRemaining) Update(deviceID int, bytes int64) {
	d := tr.devices[deviceID]
	if d == nil {
		return
	}
	d.outstanding -= bytes
	if d.outstanding < 0 {
		d.outstanding = 0
	}
	d.bytes += bytes
	elapsed := tr.now().Sub(d.mark)
	if elapsed < minSampleInterval {
		return
	}
	d.rate = float64(d.bytes) / elapsed.Seconds()
	d.bytes = 0
	d.mark = tr.now()
}

// SetTimeMark re-marks a device's sample time. Called on resume so paused
// time is excluded from the next rate computation.
func (tr *TimeRemaining) SetTimeMark(deviceID int) {
	if d := tr.devices[deviceID]; d != nil {
		d.mark = tr.now()
		d.bytes = 0
	}
}

// Remove forgets a device once its download completes.
func (tr *TimeRemaining) Remove(deviceID int) {
	delete(tr.devices, deviceID)
}

// Remaining returns the estimated time left, taken as the longest estimate
// across devices. Devices without an accepted rate sample yet contribute
// nothing.
func (tr *TimeRemaining) Remaining() time.Duration {
	var longest time.Duration
	for _, d := range tr.devices {
		if d.rate <= 0 || d.outstanding == 0 {
			continue
		}
		est := time.Duration(float64(d.outstanding) / d.rate * float64(time.Second))
		if est > longest {
			longest = est
		}
	}
	return longest
}

// RemainingText renders a remaining-time estimate as a natural-language
// bucket, rounding to the nearest second. A zero duration yields an empty
// string.
func RemainingText(remaining time.Duration) string {
	secs := int(math.Round(remaining.Seconds()))
	switch {
	case secs <= 0:
		return ""
	case secs == 1:
		return "About 1 second remaining"
	case secs < 60:
		return fmt.Sprintf("About %d seconds remaining", secs)
	case secs == 60:
		return "About 1 minute remaining"
	default:
		return fmt.Sprintf("About %d:%02d minutes remaining", secs/60, secs%60)
	}
}
