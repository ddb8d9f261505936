package ipc

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse summarizes the daemon and any download in flight.
type StatusResponse struct {
	Running        bool    `json:"running"`
	Paused         bool    `json:"paused"`
	Downloading    bool    `json:"downloading"`
	Devices        int     `json:"devices"`
	OverallPercent float64 `json:"overall_percent"`
	TimeRemaining  string  `json:"time_remaining"`
	JobCodeNeeded  bool    `json:"job_code_needed"`
	SocketPath     string  `json:"socket_path"`
	SessionDBPath  string  `json:"session_db_path"`
	PID            int     `json:"pid"`
}

// DevicesRequest lists attached devices.
type DevicesRequest struct{}

// DeviceInfo is one attached device's externally visible state.
type DeviceInfo struct {
	ID         int     `json:"id"`
	Kind       string  `json:"kind"`
	Name       string  `json:"name"`
	Path       string  `json:"path,omitempty"`
	State      string  `json:"state"`
	Photos     int     `json:"photos"`
	Videos     int     `json:"videos"`
	TotalBytes int64   `json:"total_bytes"`
	Percent    float64 `json:"percent"`
}

// DevicesResponse contains all registered devices.
type DevicesResponse struct {
	Devices []DeviceInfo `json:"devices"`
}

// PauseRequest pauses an active download.
type PauseRequest struct{}

// PauseResponse reports whether the download was paused.
type PauseResponse struct {
	Paused bool `json:"paused"`
}

// ResumeRequest resumes a paused download.
type ResumeRequest struct{}

// ResumeResponse reports whether the download resumed.
type ResumeResponse struct {
	Resumed bool `json:"resumed"`
}

// StartDownloadRequest starts downloading scanned devices. A zero DeviceID
// starts every device that is ready.
type StartDownloadRequest struct {
	DeviceID int `json:"device_id"`
}

// StartDownloadResponse reports how many devices began downloading.
type StartDownloadResponse struct {
	Started int    `json:"started"`
	Message string `json:"message,omitempty"`
}

// AddPathRequest registers a local path as a download source.
type AddPathRequest struct {
	Path string `json:"path"`
}

// AddCameraRequest registers a camera by model and port.
type AddCameraRequest struct {
	Model string `json:"model"`
	Port  string `json:"port"`
	Path  string `json:"path"`
}

// AddDeviceResponse reports the assigned device identifier.
type AddDeviceResponse struct {
	DeviceID int `json:"device_id"`
}

// JobCodeRequest submits the job code an outstanding prompt is waiting on.
type JobCodeRequest struct {
	Code string `json:"code"`
}

// JobCodeResponse reports how many deferred devices were released.
type JobCodeResponse struct {
	Released int `json:"released"`
}

// ScanDecisionRequest answers a retry-or-ignore prompt for a device whose
// scan hit a recoverable error.
type ScanDecisionRequest struct {
	DeviceID int  `json:"device_id"`
	Retry    bool `json:"retry"`
}

// ScanDecisionResponse acknowledges the decision.
type ScanDecisionResponse struct {
	Applied bool `json:"applied"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// ShutdownRequest asks the daemon to exit cleanly.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges the shutdown request.
type ShutdownResponse struct {
	ShuttingDown bool `json:"shutting_down"`
}
