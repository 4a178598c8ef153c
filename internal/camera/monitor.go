package camera

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pilebones/go-udev/netlink"
)

// Invalidator drops cached device lists
type Invalidator interface {
	Invalidate()
}

// Monitor listens for video4linux hotplug events so a camera plugged in
// after startup is found on the next Open.
type Monitor struct {
	target Invalidator
	logger *slog.Logger

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewMonitor creates a Monitor that invalidates target on every camera event
func NewMonitor(target Invalidator, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{target: target, logger: logger.With("component", "camera-monitor")}
}

// Start begins listening for udev netlink events. Failing to connect is not
// fatal: cameras are still discovered at startup.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("Failed to connect to netlink socket; camera hotplug disabled", "error", err)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	// Pass quit channel to goroutine to avoid reading m.quit without lock
	go m.loop(ctx, conn, m.quit)

	m.logger.Info("Camera monitor started")
	return nil
}

// Stop shuts down the monitor
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	_ = m.conn.Close()
	m.conn = nil
	m.running = false

	m.logger.Info("Camera monitor stopped")
}

// Running reports whether the monitor is active
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, videoMatcher("add|remove"))

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
			m.logger.Warn("Camera monitor error", "error", err)
		}
	}
}

func (m *Monitor) handleEvent(uevent netlink.UEvent) {
	m.logger.Info("Camera hotplug event",
		"action", string(uevent.Action),
		"device", uevent.Env["DEVNAME"],
	)
	m.target.Invalidate()
}
