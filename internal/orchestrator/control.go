package orchestrator

import (
	"context"
	"os"

	"carousel/internal/ipc"
	"carousel/internal/progress"
)

// The methods below implement ipc.Controller. Each one marshals onto the
// supervising goroutine, so RPC handlers never touch loop-owned state
// directly.

func (o *Orchestrator) Status() ipc.StatusResponse {
	var resp ipc.StatusResponse
	o.post(func() {
		resp = ipc.StatusResponse{
			Running:        true,
			Paused:         o.paused,
			Downloading:    o.downloading,
			Devices:        o.registry.Len(),
			OverallPercent: o.tracker.OverallPercentComplete(),
			TimeRemaining:  progress.RemainingText(o.timeRemaining.Remaining()),
			JobCodeNeeded:  o.jobCodes.Prompting(),
			SocketPath:     o.cfg.SocketPath(),
			SessionDBPath:  o.cfg.SessionDBPath(),
			PID:            os.Getpid(),
		}
	})
	return resp
}

func (o *Orchestrator) Devices() []ipc.DeviceInfo {
	var out []ipc.DeviceInfo
	o.post(func() {
		for _, d := range o.registry.Devices() {
			out = append(out, ipc.DeviceInfo{
				ID:         d.ID,
				Kind:       d.Kind.String(),
				Name:       d.DisplayName,
				Path:       d.Path,
				State:      d.State.String(),
				Photos:     d.Counter.PhotoCount,
				Videos:     d.Counter.VideoCount,
				TotalBytes: d.Counter.TotalBytes(),
				Percent:    o.tracker.PercentComplete(d.ID),
			})
		}
	})
	return out
}

func (o *Orchestrator) Pause() bool {
	var ok bool
	o.post(func() { ok = o.pause() })
	return ok
}

func (o *Orchestrator) Resume() bool {
	var ok bool
	o.post(func() { ok = o.resume() })
	return ok
}

func (o *Orchestrator) StartDownload(deviceID int) (int, error) {
	var (
		started int
		err     error
	)
	o.post(func() { started, err = o.startDownload(deviceID) })
	return started, err
}

func (o *Orchestrator) AddPath(path string) (int, error) {
	var (
		id  int
		err error
	)
	o.post(func() { id, err = o.addPath(path) })
	return id, err
}

func (o *Orchestrator) AddCamera(model, port, path string) (int, error) {
	var (
		id  int
		err error
	)
	o.post(func() { id, err = o.addCamera(model, port, path) })
	return id, err
}

func (o *Orchestrator) SubmitJobCode(code string) (int, error) {
	var (
		released int
		err      error
	)
	o.post(func() { released, err = o.submitJobCode(code) })
	return released, err
}

func (o *Orchestrator) ResolveScanError(deviceID int, retry bool) error {
	var err error
	o.post(func() { err = o.resolveScanError(deviceID, retry) })
	return err
}

func (o *Orchestrator) TestNotification(ctx context.Context) error {
	if o.notifier == nil {
		return nil
	}
	return o.notifier.TestNotification(ctx)
}

func (o *Orchestrator) Shutdown() {
	o.requestShutdown()
}
