package device

import (
	"fmt"
	"sort"
)

// transitions is the authoritative pipeline state machine. A device can only
// move along these edges; Removed is reachable from anywhere and terminal.
var transitions = map[State][]State{
	StateRegistered:      {StateScanning},
	StateScanning:        {StateScanned, StateError},
	StateScanned:         {StateDownloadPending},
	StateDownloadPending: {StateDownloading},
	StateDownloading:     {StateCompleted},
	StateCompleted:       {},
	StateError:           {StateScanning},
	StateRemoved:         {},
}

// Registry is the authoritative table of attached devices. It is owned by
// the orchestrator's supervising goroutine and is not safe for concurrent
// mutation.
type Registry struct {
	nextID  int
	devices map[int]*Device
}

// NewRegistry returns an empty device registry.
func NewRegistry() *Registry {
	return &Registry{nextID: 1, devices: make(map[int]*Device)}
}

// Register adds a device and assigns it a session-stable identifier.
func (r *Registry) Register(desc Descriptor) *Device {
	d := &Device{
		ID:          r.nextID,
		Kind:        desc.Kind,
		DisplayName: desc.DisplayName,
		Path:        desc.Path,
		CameraModel: desc.CameraModel,
		CameraPort:  desc.CameraPort,
		Icon:        desc.Icon,
		Ejectable:   desc.Ejectable,
		State:       StateRegistered,
	}
	r.nextID++
	r.devices[d.ID] = d
	return d
}

// Get returns the device with the given identifier, or nil.
func (r *Registry) Get(id int) *Device {
	return r.devices[id]
}

// Transition moves a device to the target state, enforcing the pipeline
// edges. Transitioning to Removed always succeeds; removing an already
// removed or unknown device is a no-op.
func (r *Registry) Transition(id int, target State) error {
	d := r.devices[id]
	if d == nil {
		if target == StateRemoved {
			return nil
		}
		return fmt.Errorf("unknown device %d", id)
	}
	if target == StateRemoved {
		d.State = StateRemoved
		return nil
	}
	if d.State == target {
		return nil
	}
	for _, allowed := range transitions[d.State] {
		if allowed == target {
			d.State = target
			return nil
		}
	}
	return fmt.Errorf("device %d: invalid transition %s -> %s", id, d.State, target)
}

// Remove marks a device removed and releases its identifier for lookup
// purposes. Idempotent.
func (r *Registry) Remove(id int) {
	if d := r.devices[id]; d != nil {
		d.State = StateRemoved
		delete(r.devices, id)
	}
}

// Devices returns all registered devices ordered by identifier.
func (r *Registry) Devices() []*Device {
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered devices.
func (r *Registry) Len() int { return len(r.devices) }

// KnownCamera reports whether a camera with the model/port pair is registered.
func (r *Registry) KnownCamera(model, port string) bool {
	for _, d := range r.devices {
		if d.Kind == KindCamera && d.CameraModel == model && d.CameraPort == port {
			return true
		}
	}
	return false
}

// IDFromPath returns the identifier of the device registered for a path,
// filtered by kind.
func (r *Registry) IDFromPath(path string, kind Kind) (int, bool) {
	for _, d := range r.devices {
		if d.Kind == kind && d.Path == path {
			return d.ID, true
		}
	}
	return 0, false
}

// KnownPath reports whether any device of the given kind covers the path.
func (r *Registry) KnownPath(path string, kind Kind) bool {
	_, ok := r.IDFromPath(path, kind)
	return ok
}

// AllSettled reports whether every registered device has reached Completed.
// Devices that were removed are no longer in the table and do not count.
func (r *Registry) AllSettled() bool {
	for _, d := range r.devices {
		switch d.State {
		case StateCompleted, StateRemoved:
		default:
			return false
		}
	}
	return true
}
