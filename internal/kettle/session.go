package kettle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultConnectTimeout bounds discovery plus connect when none is configured.
const DefaultConnectTimeout = 30 * time.Second

// SessionOptions configures a SessionManager.
type SessionOptions struct {
	// MACAddress identifies the kettle. Required.
	MACAddress string

	// ConnectTimeout bounds one discover+connect attempt.
	ConnectTimeout time.Duration

	// Logger receives session lifecycle logs. Optional.
	Logger Logger
}

// Stats describes the session for diagnostics.
type Stats struct {
	Connected       bool
	Connects        uint64
	Failures        uint64
	LastConnectedAt time.Time
	LastError       string
}

// SessionManager owns the single kettle session shared by the publish loop
// and the command loop.
//
// The session is created lazily on first use and re-established whenever the
// held handle reports it is no longer connected. Only that check-and-connect
// step is serialised; operations run outside the lock, so a caller that
// finds a live session never waits for another caller's operation.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type SessionManager struct {
	discoverer     Discoverer
	mac            string
	connectTimeout time.Duration
	logger         Logger

	mu      sync.Mutex
	session Appliance
	closed  bool

	statsMu sync.RWMutex
	stats   Stats
}

// NewSessionManager creates a manager for the kettle at opts.MACAddress.
func NewSessionManager(discoverer Discoverer, opts SessionOptions) *SessionManager {
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return &SessionManager{
		discoverer:     discoverer,
		mac:            opts.MACAddress,
		connectTimeout: timeout,
		logger:         opts.Logger,
	}
}

// WithSession runs op against a connected kettle, connecting first if needed.
//
// Parameters:
//   - ctx: Bounds the connect attempt and is handed to op
//   - op: The operation to run; its error is returned unchanged
//
// Returns:
//   - error: ErrConnectionFailed (wrapped) if no session could be
//     established, otherwise whatever op returned
func (m *SessionManager) WithSession(ctx context.Context, op func(ctx context.Context, app Appliance) error) error {
	app, err := m.ensureConnected(ctx)
	if err != nil {
		return err
	}
	return op(ctx, app)
}

// ensureConnected returns the live session, replacing a stale one.
func (m *SessionManager) ensureConnected(ctx context.Context) (Appliance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrSessionClosed
	}

	if m.session != nil && m.session.IsConnected() {
		return m.session, nil
	}

	if m.session != nil {
		m.logInfo("kettle session lost, reconnecting", "mac", m.mac)
		if err := m.session.Disconnect(); err != nil {
			m.logDebug("stale kettle session disconnect failed", "error", err)
		}
		m.session = nil
		m.setConnected(false)
	}

	connectCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	app, err := m.discoverer.DiscoverByAddress(connectCtx, m.mac)
	if err != nil {
		return nil, m.recordFailure(fmt.Errorf("%w: discover %s: %w", ErrConnectionFailed, m.mac, err))
	}

	if err := app.Connect(connectCtx); err != nil {
		return nil, m.recordFailure(fmt.Errorf("%w: connect %s: %w", ErrConnectionFailed, m.mac, err))
	}

	m.session = app
	m.statsMu.Lock()
	m.stats.Connected = true
	m.stats.Connects++
	m.stats.LastConnectedAt = time.Now()
	m.stats.LastError = ""
	m.statsMu.Unlock()

	m.logInfo("kettle connected", "mac", m.mac)
	return app, nil
}

func (m *SessionManager) recordFailure(err error) error {
	m.statsMu.Lock()
	m.stats.Failures++
	m.stats.LastError = err.Error()
	m.statsMu.Unlock()
	return err
}

func (m *SessionManager) setConnected(connected bool) {
	m.statsMu.Lock()
	m.stats.Connected = connected
	m.statsMu.Unlock()
}

// Connected reports whether a live session is currently held.
func (m *SessionManager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil && m.session.IsConnected()
}

// Stats returns a copy of the session counters.
func (m *SessionManager) Stats() Stats {
	connected := m.Connected()

	m.statsMu.RLock()
	defer m.statsMu.RUnlock()
	s := m.stats
	s.Connected = connected
	return s
}

// Close disconnects the current session. Later WithSession calls fail with
// ErrSessionClosed.
func (m *SessionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.session == nil {
		return nil
	}

	err := m.session.Disconnect()
	m.session = nil
	m.setConnected(false)
	if err != nil {
		return fmt.Errorf("disconnect kettle: %w", err)
	}
	m.logInfo("kettle disconnected", "mac", m.mac)
	return nil
}

func (m *SessionManager) logDebug(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}

func (m *SessionManager) logInfo(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Info(msg, args...)
	}
}
