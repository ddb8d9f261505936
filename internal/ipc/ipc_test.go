package ipc_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"carousel/internal/ipc"
)

type fakeController struct {
	paused      bool
	started     int
	shutdowns   int
	jobCode     string
	scanRetries map[int]bool
}

func (f *fakeController) Status() ipc.StatusResponse {
	return ipc.StatusResponse{Running: true, Paused: f.paused, Devices: 2, OverallPercent: 42.5, PID: 123}
}

func (f *fakeController) Devices() []ipc.DeviceInfo {
	return []ipc.DeviceInfo{
		{ID: 1, Kind: "volume", Name: "SD Card", State: "scanned", Photos: 10, Videos: 2},
		{ID: 2, Kind: "camera", Name: "Canon EOS", State: "scanning"},
	}
}

func (f *fakeController) Pause() bool  { f.paused = true; return true }
func (f *fakeController) Resume() bool { f.paused = false; return true }

func (f *fakeController) StartDownload(deviceID int) (int, error) {
	if deviceID == 99 {
		return 0, errors.New("no such device")
	}
	f.started++
	return 1, nil
}

func (f *fakeController) AddPath(path string) (int, error) {
	if path == "" {
		return 0, errors.New("path required")
	}
	return 7, nil
}

func (f *fakeController) AddCamera(model, port, path string) (int, error) {
	return 8, nil
}

func (f *fakeController) SubmitJobCode(code string) (int, error) {
	f.jobCode = code
	return 2, nil
}

func (f *fakeController) ResolveScanError(deviceID int, retry bool) error {
	if f.scanRetries == nil {
		f.scanRetries = make(map[int]bool)
	}
	f.scanRetries[deviceID] = retry
	return nil
}

func (f *fakeController) TestNotification(ctx context.Context) error { return nil }
func (f *fakeController) Shutdown()                                  { f.shutdowns++ }

func startServer(t *testing.T, controller ipc.Controller) string {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "carousel.sock")
	server, err := ipc.NewServer(context.Background(), socketPath, controller, nil)
	if err != nil {
		t.Fatal(err)
	}
	server.Serve()
	t.Cleanup(server.Close)
	return socketPath
}

func TestStatusRoundtrip(t *testing.T) {
	controller := &fakeController{}
	client, err := ipc.Dial(startServer(t, controller))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		t.Fatal(err)
	}
	if !status.Running || status.Devices != 2 || status.OverallPercent != 42.5 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestDevicesAndDownloadControl(t *testing.T) {
	controller := &fakeController{}
	client, err := ipc.Dial(startServer(t, controller))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	devices, err := client.Devices()
	if err != nil {
		t.Fatal(err)
	}
	if len(devices.Devices) != 2 || devices.Devices[0].Name != "SD Card" {
		t.Fatalf("unexpected devices: %+v", devices.Devices)
	}

	if resp, err := client.Pause(); err != nil || !resp.Paused {
		t.Fatalf("pause: resp=%+v err=%v", resp, err)
	}
	if !controller.paused {
		t.Fatal("controller not paused")
	}
	if resp, err := client.Resume(); err != nil || !resp.Resumed {
		t.Fatalf("resume: resp=%+v err=%v", resp, err)
	}

	start, err := client.StartDownload(1)
	if err != nil {
		t.Fatal(err)
	}
	if start.Started != 1 {
		t.Fatalf("started = %d", start.Started)
	}

	start, err = client.StartDownload(99)
	if err != nil {
		t.Fatal(err)
	}
	if start.Started != 0 || start.Message == "" {
		t.Fatalf("expected failure message, got %+v", start)
	}
}

func TestAddDevicesAndJobCode(t *testing.T) {
	controller := &fakeController{}
	client, err := ipc.Dial(startServer(t, controller))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	added, err := client.AddPath("/media/user/card")
	if err != nil {
		t.Fatal(err)
	}
	if added.DeviceID != 7 {
		t.Fatalf("device id = %d", added.DeviceID)
	}

	if _, err := client.AddPath(""); err == nil {
		t.Fatal("expected error for empty path")
	}

	camera, err := client.AddCamera("Canon EOS", "usb:001,004", "")
	if err != nil {
		t.Fatal(err)
	}
	if camera.DeviceID != 8 {
		t.Fatalf("camera id = %d", camera.DeviceID)
	}

	code, err := client.SubmitJobCode("Wedding")
	if err != nil {
		t.Fatal(err)
	}
	if code.Released != 2 || controller.jobCode != "Wedding" {
		t.Fatalf("job code result %+v, controller code %q", code, controller.jobCode)
	}

	decision, err := client.ResolveScanError(4, true)
	if err != nil {
		t.Fatal(err)
	}
	if !decision.Applied || !controller.scanRetries[4] {
		t.Fatalf("scan decision not applied: %+v", decision)
	}
}

func TestShutdown(t *testing.T) {
	controller := &fakeController{}
	client, err := ipc.Dial(startServer(t, controller))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	resp, err := client.Shutdown()
	if err != nil {
		t.Fatal(err)
	}
	if !resp.ShuttingDown || controller.shutdowns != 1 {
		t.Fatalf("shutdown not delivered: %+v", resp)
	}
}
