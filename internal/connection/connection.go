// Package connection tracks the broker link and decides when to retry it.
package connection

import (
	"time"

	"github.com/helioz2000/1820bridge/internal/logger"
)

// DefaultReconnectInterval delay between a failure and the next attempt.
const DefaultReconnectInterval = 10 * time.Second

// State of the broker link.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Connector starts a connection attempt without waiting for its outcome. The
// outcome is reported back through OnConnectSuccess or OnConnectFailure.
type Connector interface {
	Connect()
}

// Manager is the connection state machine. It is owned by the main loop and
// is not safe for concurrent use.
type Manager struct {
	log       *logger.Log
	transport Connector
	interval  time.Duration
	now       func() time.Time

	state    State
	next     time.Time
	armed    bool
	started  time.Time
	shutdown bool

	onConnected func()
}

// NewManager конструктор. A non-positive interval selects
// DefaultReconnectInterval.
func NewManager(log logger.Logger, transport Connector, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = DefaultReconnectInterval
	}
	return &Manager{
		log:       log.With(logger.Fields{"module": "connection"}),
		transport: transport,
		interval:  interval,
		now:       time.Now,
	}
}

// SetClock replaces the time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// OnConnected registers a hook run after every successful connect, used to
// restore subscriptions.
func (m *Manager) OnConnected(fn func()) {
	m.onConnected = fn
}

// State returns the current link state.
func (m *Manager) State() State {
	return m.state
}

// NextAttempt returns the armed reconnect time, ok is false when no retry is
// scheduled.
func (m *Manager) NextAttempt() (time.Time, bool) {
	return m.next, m.armed
}

// Connect starts an attempt. It is a no-op unless the link is Disconnected.
func (m *Manager) Connect() {
	if m.shutdown || m.state != Disconnected {
		return
	}
	m.state = Connecting
	m.armed = false
	m.started = m.now()
	m.log.Debug("connecting to broker")
	m.transport.Connect()
}

// OnConnectSuccess handles a completed attempt.
func (m *Manager) OnConnectSuccess() {
	if m.shutdown || m.state != Connecting {
		return
	}
	m.state = Connected
	m.armed = false
	m.log.Infof("connected to broker after %v", m.now().Sub(m.started).Round(time.Millisecond))
	if m.onConnected != nil {
		m.onConnected()
	}
}

// OnConnectFailure handles a failed attempt and arms the retry timer.
func (m *Manager) OnConnectFailure(err error) {
	if m.shutdown || m.state != Connecting {
		return
	}
	now := m.now()
	m.state = Disconnected
	m.arm(now)
	m.log.Warnf("connect failed after %v: %v, retry in %v", now.Sub(m.started).Round(time.Millisecond), err, m.interval)
}

// OnLinkDrop handles loss of an established connection.
func (m *Manager) OnLinkDrop(err error) {
	if m.shutdown || m.state != Connected {
		return
	}
	m.state = Disconnected
	m.arm(m.now())
	m.log.Warnf("connection lost: %v, retry in %v", err, m.interval)
}

func (m *Manager) arm(now time.Time) {
	m.next = now.Add(m.interval)
	m.armed = true
}

// Tick starts the armed reconnect once now has reached it.
func (m *Manager) Tick(now time.Time) {
	if m.shutdown || !m.armed || m.state != Disconnected {
		return
	}
	if now.Before(m.next) {
		return
	}
	m.Connect()
}

// Shutdown freezes the state machine. No transition fires afterwards.
func (m *Manager) Shutdown() {
	m.shutdown = true
	m.armed = false
}
