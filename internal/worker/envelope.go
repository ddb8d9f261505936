package worker

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Message kinds shared by every stage. Stage-specific kinds are defined
// next to their payloads in the stage package.
const (
	KindControlStop   = "control.stop"
	KindControlPause  = "control.pause"
	KindControlResume = "control.resume"
	KindFinished      = "worker.finished"
)

// Envelope is one message on a worker conduit, serialized as a single JSON
// line. DeviceID tags results so the orchestrator can route them; control
// messages leave it zero.
type Envelope struct {
	ID       string          `json:"id"`
	DeviceID int             `json:"device_id,omitempty"`
	Kind     string          `json:"kind"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// FinishedPayload accompanies a worker.finished envelope. Unexpected marks
// a worker that exited without completing or being stopped.
type FinishedPayload struct {
	Unexpected bool   `json:"unexpected"`
	Error      string `json:"error,omitempty"`
}

// NewEnvelope builds an envelope with a fresh identifier, marshaling the
// payload. A nil payload yields an empty envelope body.
func NewEnvelope(deviceID int, kind string, payload any) (Envelope, error) {
	env := Envelope{ID: uuid.NewString(), DeviceID: deviceID, Kind: kind}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// Decode unmarshals the envelope payload into dst.
func (e Envelope) Decode(dst any) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return nil
}
