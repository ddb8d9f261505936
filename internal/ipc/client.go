package ipc

import (
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

const dialTimeout = 2 * time.Second

// Client talks to a running daemon over its Unix socket.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to the daemon socket at path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon socket %s: %w", path, err)
	}
	return &Client{rpc: jsonrpc.NewClient(conn)}, nil
}

// Close releases the socket connection.
func (c *Client) Close() error {
	if c == nil || c.rpc == nil {
		return nil
	}
	return c.rpc.Close()
}

// Status fetches daemon status.
func (c *Client) Status() (StatusResponse, error) {
	var resp StatusResponse
	err := c.rpc.Call("Carousel.Status", StatusRequest{}, &resp)
	return resp, err
}

// Devices lists attached devices.
func (c *Client) Devices() (DevicesResponse, error) {
	var resp DevicesResponse
	err := c.rpc.Call("Carousel.Devices", DevicesRequest{}, &resp)
	return resp, err
}

// Pause pauses an active download.
func (c *Client) Pause() (PauseResponse, error) {
	var resp PauseResponse
	err := c.rpc.Call("Carousel.Pause", PauseRequest{}, &resp)
	return resp, err
}

// Resume resumes a paused download.
func (c *Client) Resume() (ResumeResponse, error) {
	var resp ResumeResponse
	err := c.rpc.Call("Carousel.Resume", ResumeRequest{}, &resp)
	return resp, err
}

// StartDownload starts downloading one scanned device, or all ready devices
// when deviceID is zero.
func (c *Client) StartDownload(deviceID int) (StartDownloadResponse, error) {
	var resp StartDownloadResponse
	err := c.rpc.Call("Carousel.StartDownload", StartDownloadRequest{DeviceID: deviceID}, &resp)
	return resp, err
}

// AddPath registers a local path as a download source.
func (c *Client) AddPath(path string) (AddDeviceResponse, error) {
	var resp AddDeviceResponse
	err := c.rpc.Call("Carousel.AddPath", AddPathRequest{Path: path}, &resp)
	return resp, err
}

// AddCamera registers a camera by model and port.
func (c *Client) AddCamera(model, port, path string) (AddDeviceResponse, error) {
	var resp AddDeviceResponse
	err := c.rpc.Call("Carousel.AddCamera", AddCameraRequest{Model: model, Port: port, Path: path}, &resp)
	return resp, err
}

// SubmitJobCode answers an outstanding job code prompt.
func (c *Client) SubmitJobCode(code string) (JobCodeResponse, error) {
	var resp JobCodeResponse
	err := c.rpc.Call("Carousel.SubmitJobCode", JobCodeRequest{Code: code}, &resp)
	return resp, err
}

// ResolveScanError answers a retry-or-ignore prompt for a device scan error.
func (c *Client) ResolveScanError(deviceID int, retry bool) (ScanDecisionResponse, error) {
	var resp ScanDecisionResponse
	err := c.rpc.Call("Carousel.ResolveScanError", ScanDecisionRequest{DeviceID: deviceID, Retry: retry}, &resp)
	return resp, err
}

// TestNotification triggers a notification test.
func (c *Client) TestNotification() (TestNotificationResponse, error) {
	var resp TestNotificationResponse
	err := c.rpc.Call("Carousel.TestNotification", TestNotificationRequest{}, &resp)
	return resp, err
}

// Shutdown asks the daemon to exit cleanly.
func (c *Client) Shutdown() (ShutdownResponse, error) {
	var resp ShutdownResponse
	err := c.rpc.Call("Carousel.Shutdown", ShutdownRequest{}, &resp)
	return resp, err
}
