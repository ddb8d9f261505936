package mounts

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"carousel/internal/logging"
)

// Event reports a removable volume appearing or disappearing.
type Event struct {
	Added  bool
	Device string
	Path   string
	Label  string
}

// mountPollInterval paces the wait for an auto-mounter to publish the
// mount point after a partition add event.
const (
	mountPollInterval = 250 * time.Millisecond
	mountPollAttempts = 20
)

// Monitor listens for udev netlink block-partition events and resolves
// them to mount points before handing them to the handler.
type Monitor struct {
	logger  *slog.Logger
	handler func(Event)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool

	known map[string]string // device -> mount path
}

// NewMonitor creates a volume hotplug monitor.
func NewMonitor(logger *slog.Logger, handler func(Event)) *Monitor {
	return &Monitor{
		logger:  logging.NewComponentLogger(logger, "mount-monitor"),
		handler: handler,
		known:   make(map[string]string),
	}
}

// Start begins listening for udev netlink events. A connection failure is
// non-fatal: devices can still be added manually over IPC.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; volume detection will rely on manual adds",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "automatic volume detection unavailable"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("mount monitor started",
		logging.String(logging.FieldEventType, "mount_monitor_started"))
	return nil
}

// Stop shuts down the monitor.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("mount monitor stopped",
		logging.String(logging.FieldEventType, "mount_monitor_stopped"))
}

// Running reports whether the monitor is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, m.buildMatcher())
	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			m.logger.Warn("mount monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "mount_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "volume detection may be affected"),
			)
		}
	}
}

// buildMatcher selects block partition add/remove events.
func (m *Monitor) buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "block",
			"DEVTYPE":   "partition",
		},
	})
	return rules
}

func (m *Monitor) handleEvent(uevent netlink.UEvent) {
	device := "/dev/" + uevent.Env["DEVNAME"]
	switch uevent.Action {
	case netlink.ADD:
		go m.resolveAdd(device, uevent.Env["ID_FS_LABEL"])
	case netlink.REMOVE:
		m.mu.Lock()
		path, ok := m.known[device]
		delete(m.known, device)
		m.mu.Unlock()
		if ok {
			m.handler(Event{Added: false, Device: device, Path: path})
		}
	}
}

// resolveAdd waits for the desktop auto-mounter to mount the new
// partition, then reports it. Partitions that never get mounted are
// dropped silently.
func (m *Monitor) resolveAdd(device, label string) {
	for i := 0; i < mountPollAttempts; i++ {
		if path, ok := PathForDevice(device); ok {
			m.mu.Lock()
			m.known[device] = path
			m.mu.Unlock()
			m.handler(Event{Added: true, Device: device, Path: path, Label: label})
			return
		}
		time.Sleep(mountPollInterval)
	}
	m.logger.Info("partition never mounted, ignoring",
		logging.String("device", device),
		logging.String(logging.FieldEventType, "partition_unmounted"))
}
