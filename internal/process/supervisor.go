package process

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status represents the current state of a supervised task.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusRunning  Status = "running"
	StatusBackoff  Status = "backoff"
	StatusFailed   Status = "failed"
	StatusFinished Status = "finished"
)

// ErrRestartLimit is returned when a task keeps failing past MaxRestartAttempts.
var ErrRestartLimit = errors.New("restart limit reached")

// Task is a long-running function. It should return ctx.Err() when ctx is
// cancelled and nil when it has nothing left to do.
type Task func(ctx context.Context) error

// Config holds configuration for a supervised task.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// RestartOnFailure enables automatic restart when the task fails.
	RestartOnFailure bool

	// RestartDelay is the wait before the first restart. It doubles after
	// every consecutive failure up to MaxRestartDelay.
	RestartDelay time.Duration

	// MaxRestartDelay caps the backoff.
	MaxRestartDelay time.Duration

	// StableThreshold is how long a run must last for the backoff and the
	// consecutive failure count to reset.
	StableThreshold time.Duration

	// MaxRestartAttempts limits consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int

	// OnRestart is called before each restart attempt.
	OnRestart func(attempt int, delay time.Duration)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		RestartOnFailure: true,
		RestartDelay:     time.Second,
		MaxRestartDelay:  time.Minute,
		StableThreshold:  2 * time.Minute,
	}
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Supervisor runs one task and restarts it with exponential backoff when it
// fails.
//
// Thread Safety: Run is called once; the accessors are safe for concurrent
// use while it runs.
type Supervisor struct {
	config Config
	logger Logger

	mu           sync.RWMutex
	status       Status
	restartCount int
	lastError    error
	startTime    time.Time
}

// NewSupervisor creates a supervisor with the given configuration.
func NewSupervisor(cfg Config) *Supervisor {
	// Apply defaults for zero values
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = time.Second
	}
	if cfg.MaxRestartDelay < cfg.RestartDelay {
		cfg.MaxRestartDelay = cfg.RestartDelay
	}
	if cfg.StableThreshold <= 0 {
		cfg.StableThreshold = 2 * time.Minute
	}

	return &Supervisor{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Run executes task until it returns nil, ctx is cancelled, or it fails and
// may not be restarted.
//
// Returns:
//   - nil: task finished on its own
//   - ctx.Err(): ctx was cancelled (while running or during backoff)
//   - error: the task's error when restarts are disabled, or ErrRestartLimit
//     wrapping the last error
func (s *Supervisor) Run(ctx context.Context, task Task) error {
	delay := s.config.RestartDelay
	consecutive := 0

	for {
		started := time.Now()
		s.setRunning(started)

		err := task(ctx)

		if ctx.Err() != nil {
			s.setStatus(StatusStopped)
			s.logger.Info("task stopped", "name", s.config.Name)
			return ctx.Err()
		}
		if err == nil {
			s.setStatus(StatusFinished)
			s.logger.Info("task finished", "name", s.config.Name)
			return nil
		}

		s.mu.Lock()
		s.lastError = err
		s.status = StatusFailed
		s.mu.Unlock()

		s.logger.Warn("task failed", "name", s.config.Name, "error", err)

		if !s.config.RestartOnFailure {
			return err
		}

		if time.Since(started) >= s.config.StableThreshold {
			delay = s.config.RestartDelay
			consecutive = 0
		}

		consecutive++
		if s.config.MaxRestartAttempts > 0 && consecutive > s.config.MaxRestartAttempts {
			s.logger.Error("max restart attempts reached",
				"name", s.config.Name,
				"attempts", consecutive-1,
			)
			return fmt.Errorf("%w: %s after %d attempts: %w", ErrRestartLimit, s.config.Name, consecutive-1, err)
		}

		s.mu.Lock()
		s.restartCount++
		s.status = StatusBackoff
		s.mu.Unlock()

		s.logger.Info("restarting task",
			"name", s.config.Name,
			"attempt", consecutive,
			"delay", delay,
		)
		if s.config.OnRestart != nil {
			s.config.OnRestart(consecutive, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setStatus(StatusStopped)
			return ctx.Err()
		case <-timer.C:
		}

		delay = min(delay*2, s.config.MaxRestartDelay)
	}
}

func (s *Supervisor) setRunning(at time.Time) {
	s.mu.Lock()
	s.status = StatusRunning
	s.startTime = at
	s.mu.Unlock()
}

func (s *Supervisor) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Name returns the configured task name.
func (s *Supervisor) Name() string {
	return s.config.Name
}

// Status returns the current status of the task.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LastError returns the last error the task failed with.
func (s *Supervisor) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// RestartCount returns the total number of restarts.
func (s *Supervisor) RestartCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restartCount
}

// Stats returns statistics about the supervised task.
type Stats struct {
	Name         string  `json:"name"`
	Status       Status  `json:"status"`
	UptimeSec    float64 `json:"uptime_seconds,omitempty"`
	RestartCount int     `json:"restart_count"`
	LastError    string  `json:"last_error,omitempty"`
}

// Stats returns current statistics for the task.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Name:         s.config.Name,
		Status:       s.status,
		RestartCount: s.restartCount,
	}
	if s.status == StatusRunning {
		stats.UptimeSec = time.Since(s.startTime).Seconds()
	}
	if s.lastError != nil {
		stats.LastError = s.lastError.Error()
	}
	return stats
}
