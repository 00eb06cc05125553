package fsr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSettleDelay is how long the line is held low to drain the capacitor.
const DefaultSettleDelay = 100 * time.Millisecond

// State is the sampler lifecycle state.
type State int

const (
	StateUnarmed State = iota
	StateArmed
	StateEdgeReceived
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnarmed:
		return "UNARMED"
	case StateArmed:
		return "ARMED"
	case StateEdgeReceived:
		return "EDGE_RECEIVED"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SamplerOptions configures a Sampler.
type SamplerOptions struct {
	// SettleDelay is the discharge time per cycle. Zero uses DefaultSettleDelay.
	SettleDelay time.Duration

	// Logger receives diagnostics. Optional.
	Logger Logger
}

// Snapshot is a point-in-time copy of the sampler for diagnostics.
type Snapshot struct {
	State State
	Ticks []Tick

	// Average is nil until the window is full.
	Average *float64

	// Edges counts every rising edge seen since start.
	Edges uint64

	// PendingRearms counts edges whose re-arm has not run yet.
	PendingRearms uint64
}

// Sampler measures the charge time of an RC circuit with a
// force-sensitive resistor in it.
//
// Each cycle drives the line low for the settle delay, then releases it as an
// input; the capacitor charges through the FSR and the line rises. The
// rising edge is timestamped, pushed into a four-slot window and the next
// cycle starts. The mean interval between edges tracks the FSR resistance,
// and so the weight on it.
//
// Thread Safety:
//   - OnRisingEdge runs on the GPIO event goroutine; AverageTickDiff and
//     Snapshot may be called from any goroutine.
//   - The window is guarded by mu.
type Sampler struct {
	gpio   GPIO
	settle time.Duration
	logger Logger

	mu      sync.Mutex
	window  Window
	state   State
	edges   uint64
	pending uint64 // edges still owed a re-arm

	// wake tells Run that pending went up. One buffered slot is enough: Run
	// drains pending completely on every wake.
	wake chan struct{}

	watchMu sync.Mutex
	watch   Watch

	cancelled  atomic.Bool
	cancelOnce sync.Once
	cancelErr  error
}

// NewSampler creates a sampler on the given line. It does nothing until Run.
func NewSampler(gpio GPIO, opts SamplerOptions) *Sampler {
	settle := opts.SettleDelay
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	return &Sampler{
		gpio:   gpio,
		settle: settle,
		logger: opts.Logger,
		state:  StateUnarmed,
		wake:   make(chan struct{}, 1),
	}
}

// TriggerCircuit discharges the capacitor and releases the line so the next
// rising edge can be timed.
//
// Parameters:
//   - ctx: Cancels the settle wait
//
// Returns:
//   - error: ErrTriggerFailed (wrapped) on a GPIO failure, or ctx.Err()
func (s *Sampler) TriggerCircuit(ctx context.Context) error {
	if err := s.gpio.SetMode(Output); err != nil {
		return fmt.Errorf("%w: %w", ErrTriggerFailed, err)
	}
	if err := s.gpio.Write(0); err != nil {
		return fmt.Errorf("%w: %w", ErrTriggerFailed, err)
	}

	timer := time.NewTimer(s.settle)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	}

	if err := s.gpio.SetMode(Input); err != nil {
		return fmt.Errorf("%w: %w", ErrTriggerFailed, err)
	}

	s.mu.Lock()
	if s.state != StateStopped {
		s.state = StateArmed
	}
	s.mu.Unlock()
	return nil
}

// OnRisingEdge records an edge timestamp and owes Run one re-arm for it.
// It never blocks. Edges arriving after Cancel are ignored.
func (s *Sampler) OnRisingEdge(tick Tick) {
	if s.cancelled.Load() {
		return
	}

	s.mu.Lock()
	s.window.Push(tick)
	s.edges++
	s.pending++
	s.state = StateEdgeReceived
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// takeRearm claims one owed re-arm, reporting false when none are left.
func (s *Sampler) takeRearm() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == 0 {
		return false
	}
	s.pending--
	return true
}

// handleEdge is the GPIO watch callback.
func (s *Sampler) handleEdge(_ int, level int, tick Tick) {
	if level != 1 {
		return
	}
	s.OnRisingEdge(tick)
}

// AverageTickDiff returns the mean interval between the last four edges in
// microseconds, or ErrNotReady until four edges have been seen.
func (s *Sampler) AverageTickDiff() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.Average()
}

// State returns the current lifecycle state.
func (s *Sampler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the window and counters.
func (s *Sampler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:         s.state,
		Ticks:         s.window.Ticks(),
		Edges:         s.edges,
		PendingRearms: s.pending,
	}
	if avg, err := s.window.Average(); err == nil {
		snap.Average = &avg
	}
	return snap
}

// Cancel deregisters the edge callback. After it returns no further edges
// are recorded. Calling it again is a no-op that returns nil.
func (s *Sampler) Cancel() error {
	first := false
	s.cancelOnce.Do(func() {
		first = true
		s.cancelled.Store(true)

		s.watchMu.Lock()
		if s.watch != nil {
			if err := s.watch.Cancel(); err != nil {
				s.cancelErr = fmt.Errorf("cancel edge watch: %w", err)
			}
			s.watch = nil
		}
		s.watchMu.Unlock()

		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
	})
	if !first {
		return nil
	}
	return s.cancelErr
}

// Run arms the circuit, registers for rising edges and re-arms after every
// edge until ctx is cancelled. On cancellation it calls Cancel and returns
// nil; a GPIO failure cancels the watch and is returned.
func (s *Sampler) Run(ctx context.Context) error {
	if s.cancelled.Load() {
		return nil
	}

	if err := s.TriggerCircuit(ctx); err != nil {
		return s.stop(ctx, err)
	}

	watch, err := s.gpio.Watch(s.handleEdge)
	if err != nil {
		return s.stop(ctx, fmt.Errorf("%w: %w", ErrWatchFailed, err))
	}
	s.watchMu.Lock()
	s.watch = watch
	s.watchMu.Unlock()

	s.logInfo("fsr sampler armed", "settle_delay", s.settle)

	for {
		select {
		case <-ctx.Done():
			return s.stop(ctx, ctx.Err())
		case <-s.wake:
			for s.takeRearm() {
				if err := s.TriggerCircuit(ctx); err != nil {
					return s.stop(ctx, err)
				}
			}
		}
	}
}

// stop cancels the watch and maps cancellation to a clean return.
func (s *Sampler) stop(ctx context.Context, cause error) error {
	if err := s.Cancel(); err != nil {
		s.logWarn("fsr sampler cancel failed", "error", err)
	}
	if ctx.Err() != nil && errors.Is(cause, ctx.Err()) {
		s.logInfo("fsr sampler stopped")
		return nil
	}
	return cause
}

func (s *Sampler) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Sampler) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Sampler) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
