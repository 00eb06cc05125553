package kettle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Mock Appliance / Discoverer
// =============================================================================

// MockAppliance is a mutex-guarded in-memory kettle.
type MockAppliance struct {
	mu          sync.Mutex
	connected   bool
	connects    int
	disconnects int
	connectErr  error
	state       State
}

func (m *MockAppliance) Connect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

func (m *MockAppliance) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockAppliance) TurnOn(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.IsOn = true
	return nil
}

func (m *MockAppliance) TurnOff(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.IsOn = false
	return nil
}

func (m *MockAppliance) SetTargetTemperature(_ context.Context, temp int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.TargetTemperature = temp
	return nil
}

func (m *MockAppliance) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *MockAppliance) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
	m.connected = false
	return nil
}

// drop simulates the kettle going out of range.
func (m *MockAppliance) drop() {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
}

func (m *MockAppliance) counts() (connects, disconnects int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects, m.disconnects
}

// MockDiscoverer hands out a fresh MockAppliance per discovery.
type MockDiscoverer struct {
	mu         sync.Mutex
	discovered []*MockAppliance
	macs       []string
	err        error
	connectErr error
	delay      time.Duration
}

func (d *MockDiscoverer) DiscoverByAddress(ctx context.Context, mac string) (Appliance, error) {
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.macs = append(d.macs, mac)
	if d.err != nil {
		return nil, d.err
	}
	app := &MockAppliance{connectErr: d.connectErr}
	d.discovered = append(d.discovered, app)
	return app, nil
}

func (d *MockDiscoverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.macs)
}

func (d *MockDiscoverer) last() *MockAppliance {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.discovered) == 0 {
		return nil
	}
	return d.discovered[len(d.discovered)-1]
}

const testMAC = "00:1C:97:19:49:4D"

func newTestManager(d *MockDiscoverer) *SessionManager {
	return NewSessionManager(d, SessionOptions{MACAddress: testMAC, ConnectTimeout: time.Second})
}

// =============================================================================
// Tests
// =============================================================================

func TestWithSessionConnectsLazily(t *testing.T) {
	d := &MockDiscoverer{}
	m := newTestManager(d)

	if d.count() != 0 {
		t.Fatal("discovery ran before first use")
	}

	var got Appliance
	err := m.WithSession(context.Background(), func(_ context.Context, app Appliance) error {
		got = app
		return nil
	})
	if err != nil {
		t.Fatalf("WithSession() error = %v", err)
	}
	if got == nil || !got.IsConnected() {
		t.Fatal("operation did not receive a connected appliance")
	}
	if d.count() != 1 {
		t.Errorf("discoveries = %d, want 1", d.count())
	}
	if d.macs[0] != testMAC {
		t.Errorf("discovered mac = %q, want %q", d.macs[0], testMAC)
	}
}

func TestWithSessionConcurrentCallersShareSession(t *testing.T) {
	d := &MockDiscoverer{delay: 20 * time.Millisecond}
	m := newTestManager(d)

	const callers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		handles = make(map[Appliance]int)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithSession(context.Background(), func(_ context.Context, app Appliance) error {
				mu.Lock()
				handles[app]++
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("WithSession() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if d.count() != 1 {
		t.Errorf("discoveries = %d, want 1", d.count())
	}
	if connects, _ := d.last().counts(); connects != 1 {
		t.Errorf("connects = %d, want 1", connects)
	}
	if len(handles) != 1 {
		t.Errorf("distinct handles = %d, want 1", len(handles))
	}
}

func TestWithSessionReconnectsWhenDropped(t *testing.T) {
	d := &MockDiscoverer{}
	m := newTestManager(d)
	noop := func(context.Context, Appliance) error { return nil }

	if err := m.WithSession(context.Background(), noop); err != nil {
		t.Fatalf("WithSession() error = %v", err)
	}
	first := d.last()
	first.drop()

	if err := m.WithSession(context.Background(), noop); err != nil {
		t.Fatalf("WithSession() after drop error = %v", err)
	}

	if d.count() != 2 {
		t.Errorf("discoveries = %d, want 2", d.count())
	}
	if _, disconnects := first.counts(); disconnects != 1 {
		t.Errorf("stale session disconnects = %d, want 1", disconnects)
	}
	if d.last() == first {
		t.Error("session handle was not replaced")
	}
	if s := m.Stats(); s.Connects != 2 || !s.Connected {
		t.Errorf("Stats() = %+v, want 2 connects and connected", s)
	}
}

func TestWithSessionReusesLiveSession(t *testing.T) {
	d := &MockDiscoverer{}
	m := newTestManager(d)
	noop := func(context.Context, Appliance) error { return nil }

	for i := 0; i < 3; i++ {
		if err := m.WithSession(context.Background(), noop); err != nil {
			t.Fatalf("WithSession() error = %v", err)
		}
	}
	if d.count() != 1 {
		t.Errorf("discoveries = %d, want 1", d.count())
	}
}

func TestWithSessionConnectionFailures(t *testing.T) {
	cause := errors.New("adapter unavailable")

	tests := []struct {
		name string
		d    *MockDiscoverer
	}{
		{"discovery fails", &MockDiscoverer{err: cause}},
		{"connect fails", &MockDiscoverer{connectErr: cause}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(tt.d)
			called := false
			err := m.WithSession(context.Background(), func(context.Context, Appliance) error {
				called = true
				return nil
			})

			if !errors.Is(err, ErrConnectionFailed) {
				t.Errorf("error = %v, want ErrConnectionFailed", err)
			}
			if !errors.Is(err, cause) {
				t.Errorf("error = %v, want cause wrapped", err)
			}
			if called {
				t.Error("operation ran without a session")
			}
			if s := m.Stats(); s.Failures != 1 || s.LastError == "" {
				t.Errorf("Stats() = %+v, want one recorded failure", s)
			}
		})
	}
}

func TestWithSessionOperationErrorUnchanged(t *testing.T) {
	m := newTestManager(&MockDiscoverer{})
	opErr := errors.New("write failed")

	err := m.WithSession(context.Background(), func(context.Context, Appliance) error {
		return opErr
	})
	if !errors.Is(err, opErr) {
		t.Errorf("error = %v, want %v", err, opErr)
	}
	if errors.Is(err, ErrConnectionFailed) {
		t.Error("operation error was wrapped as a connection failure")
	}
}

func TestWithSessionDiscoveryTimeout(t *testing.T) {
	d := &MockDiscoverer{delay: time.Second}
	m := NewSessionManager(d, SessionOptions{MACAddress: testMAC, ConnectTimeout: 20 * time.Millisecond})

	err := m.WithSession(context.Background(), func(context.Context, Appliance) error { return nil })
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("error = %v, want ErrConnectionFailed", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded wrapped", err)
	}
}

func TestClose(t *testing.T) {
	d := &MockDiscoverer{}
	m := newTestManager(d)
	noop := func(context.Context, Appliance) error { return nil }

	if err := m.Close(); err != nil {
		t.Fatalf("Close() with no session error = %v", err)
	}

	m = newTestManager(d)
	if err := m.WithSession(context.Background(), noop); err != nil {
		t.Fatalf("WithSession() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, disconnects := d.last().counts(); disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", disconnects)
	}
	if m.Connected() {
		t.Error("Connected() = true after Close")
	}
	if err := m.WithSession(context.Background(), noop); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("WithSession() after Close error = %v, want ErrSessionClosed", err)
	}
}

func TestWithSessionOperationsRunConcurrently(t *testing.T) {
	d := &MockDiscoverer{}
	m := newTestManager(d)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan error, 1)

	// The first operation holds the session until released.
	go func() {
		firstDone <- m.WithSession(ctx, func(_ context.Context, _ Appliance) error {
			close(started)
			<-release
			return nil
		})
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first operation never started")
	}

	// A second operation must complete while the first is still blocked.
	secondDone := make(chan error, 1)
	go func() {
		secondDone <- m.WithSession(ctx, func(ctx context.Context, app Appliance) error {
			return app.TurnOn(ctx)
		})
	}()

	select {
	case err := <-secondDone:
		if err != nil {
			t.Fatalf("second WithSession() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("second operation waited for the first")
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Errorf("first WithSession() error = %v", err)
	}

	if got := d.count(); got != 1 {
		t.Errorf("discoveries = %d, want 1", got)
	}
	app := d.last()
	if connects, _ := app.counts(); connects != 1 {
		t.Errorf("connects = %d, want 1", connects)
	}
	if !app.State().IsOn {
		t.Error("second operation did not reach the shared session")
	}
}
