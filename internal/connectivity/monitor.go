// Package connectivity observes raw network reachability. It distinguishes
// "no network" from "network present but unvalidated" and pushes state
// changes to subscribers; it never issues application-level requests.
package connectivity

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"docdrop/internal/config"
	"docdrop/internal/logging"
)

// State is the observed network reachability level.
type State int

const (
	// StateNoNetwork means no usable interface is up.
	StateNoNetwork State = iota
	// StateUnvalidated means a link exists but the validation probe failed.
	StateUnvalidated
	// StateValidated means the network path passed the validation probe.
	StateValidated
)

// String returns the state's wire/log representation.
func (s State) String() string {
	switch s {
	case StateValidated:
		return "validated"
	case StateUnvalidated:
		return "unvalidated"
	default:
		return "no_network"
	}
}

// Monitor tracks network state via interface enumeration, a dial probe, and
// udev net-subsystem events that trigger immediate re-evaluation when an
// interface appears or disappears.
type Monitor struct {
	logger        *slog.Logger
	probeAddress  string
	probeTimeout  time.Duration
	probeInterval time.Duration

	// Injectable for tests.
	linkProbe func() bool
	dial      func(ctx context.Context, address string, timeout time.Duration) error

	mu          sync.Mutex
	current     State
	subscribers map[int]chan State
	nextSubID   int
	conn        *netlink.UEventConn
	quit        chan struct{}
	running     bool
	wg          sync.WaitGroup
}

// NewMonitor builds a monitor from configuration.
func NewMonitor(cfg *config.Config, logger *slog.Logger) *Monitor {
	return &Monitor{
		logger:        logging.NewComponentLogger(logger, "connectivity"),
		probeAddress:  cfg.Connectivity.ProbeAddress,
		probeTimeout:  time.Duration(cfg.Connectivity.ProbeTimeoutSeconds) * time.Second,
		probeInterval: time.Duration(cfg.Connectivity.ProbeIntervalSeconds) * time.Second,
		linkProbe:     linkPresent,
		dial:          dialProbe,
		subscribers:   make(map[int]chan State),
		current:       StateNoNetwork,
	}
}

// Start begins monitoring. It never blocks; state changes are pushed to
// subscribers from a background goroutine.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.quit = make(chan struct{})
	quit := m.quit

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		// Non-fatal: the periodic probe still detects changes, just slower.
		m.logger.Warn("failed to connect to netlink socket; relying on periodic probes",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldImpact, "connectivity changes detected with up to one probe interval of delay"),
		)
	} else {
		m.conn = conn
	}
	m.mu.Unlock()

	m.refresh(ctx)

	m.wg.Add(1)
	go m.probeLoop(ctx, quit)

	if m.conn != nil {
		m.wg.Add(1)
		go m.ueventLoop(ctx, quit)
	}

	m.logger.Info("connectivity monitor started",
		logging.String(logging.FieldEventType, "connectivity_monitor_started"),
		logging.String("probe_address", m.probeAddress),
	)
	return nil
}

// Stop shuts the monitor down and closes subscriber channels.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.quit)
	m.quit = nil
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	m.mu.Unlock()
}

// Current returns the last observed state.
func (m *Monitor) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Online reports whether a validated network path exists.
func (m *Monitor) Online() bool {
	return m.Current() == StateValidated
}

// EvaluateNow performs a one-shot evaluation outside the monitoring loop.
// One-off commands use it instead of Start to get a current reading.
func (m *Monitor) EvaluateNow(ctx context.Context) State {
	m.refresh(ctx)
	return m.Current()
}

// Subscribe registers a push channel for state changes. The returned cancel
// function must be called when the subscriber is done.
func (m *Monitor) Subscribe() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	ch := make(chan State, 4)
	m.subscribers[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if existing, ok := m.subscribers[id]; ok {
			close(existing)
			delete(m.subscribers, id)
		}
	}
	return ch, cancel
}

// refresh re-evaluates network state and broadcasts on change.
func (m *Monitor) refresh(ctx context.Context) {
	state := m.evaluate(ctx)

	m.mu.Lock()
	changed := state != m.current
	m.current = state
	var targets []chan State
	if changed {
		for _, ch := range m.subscribers {
			targets = append(targets, ch)
		}
	}
	m.mu.Unlock()

	if !changed {
		return
	}
	m.logger.Info("network state changed",
		logging.String(logging.FieldEventType, "connectivity_changed"),
		logging.String("state", state.String()),
	)
	for _, ch := range targets {
		select {
		case ch <- state:
		default:
			// Slow subscribers miss intermediate states, never block the monitor.
		}
	}
}

func (m *Monitor) evaluate(ctx context.Context) State {
	if !m.linkProbe() {
		return StateNoNetwork
	}
	if err := m.dial(ctx, m.probeAddress, m.probeTimeout); err != nil {
		return StateUnvalidated
	}
	return StateValidated
}

func (m *Monitor) probeLoop(ctx context.Context, quit <-chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case <-ticker.C:
			m.refresh(ctx)
		}
	}
}

// ueventLoop reacts to kernel net-subsystem events so interface changes are
// observed immediately instead of at the next probe tick.
func (m *Monitor) ueventLoop(ctx context.Context, quit <-chan struct{}) {
	defer m.wg.Done()

	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, netSubsystemMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case <-queue:
			m.refresh(ctx)
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
			)
		}
	}
}

// netSubsystemMatcher matches add/remove/change/move events for network interfaces.
func netSubsystemMatcher() netlink.Matcher {
	action := "add|remove|change|move"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "net",
		},
	})
	return rules
}

// linkPresent reports whether any non-loopback interface is up with an address.
func linkPresent() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if strings.HasPrefix(iface.Name, "docker") || strings.HasPrefix(iface.Name, "veth") {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}
		return true
	}
	return false
}

func dialProbe(ctx context.Context, address string, timeout time.Duration) error {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return err
	}
	return conn.Close()
}
