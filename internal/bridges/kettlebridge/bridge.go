package kettlebridge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/kettle-bridge/internal/fsr"
	"github.com/nerrad567/kettle-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/kettle-bridge/internal/kettle"
)

// DefaultPollInterval is the telemetry publish interval.
const DefaultPollInterval = 5 * time.Second

// Publisher sends one message. *mqtt.Transport satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Subscriber delivers messages matching pattern to handler until ctx is
// cancelled. *mqtt.Transport satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, pattern string, handler mqtt.MessageHandler) error
}

// Sessions runs operations against a connected kettle.
// *kettle.SessionManager satisfies it.
type Sessions interface {
	WithSession(ctx context.Context, op func(ctx context.Context, app kettle.Appliance) error) error
}

// FillLevelSource estimates the fill level. *kettle.Classifier satisfies it.
type FillLevelSource interface {
	Current() (kettle.FillLevel, error)
}

// StateObserver is notified after every successful publish iteration.
type StateObserver interface {
	OnTelemetry(t Telemetry)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Telemetry is one published set of status values, as sent on the wire.
type Telemetry struct {
	Power              string    `json:"power"`
	CurrentTemperature int       `json:"current_temperature"`
	TargetTemperature  int       `json:"target_temperature"`
	WarmingRate        float64   `json:"warming_rate"`
	Units              string    `json:"units,omitempty"`
	FillLevel          string    `json:"fill_level,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Stats counts bridge activity for diagnostics.
type Stats struct {
	Publishes       uint64    `json:"publishes"`
	PublishFailures uint64    `json:"publish_failures"`
	Commands        uint64    `json:"commands"`
	CommandFailures uint64    `json:"command_failures"`
	LastPublishAt   time.Time `json:"last_publish_at"`
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Sessions is the shared kettle session. Required.
	Sessions Sessions

	// Publisher sends status messages. Required.
	Publisher Publisher

	// Subscriber receives action messages. Required for RunCommandLoop.
	Subscriber Subscriber

	// FillLevel estimates the fill level. Required.
	FillLevel FillLevelSource

	// PollInterval between publish iterations. Default: 5 seconds.
	PollInterval time.Duration

	// Observer is optional; it sees every published Telemetry.
	Observer StateObserver

	// Logger is optional structured logger.
	Logger Logger
}

// Bridge moves kettle telemetry to MQTT and MQTT commands to the kettle.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	sessions     Sessions
	pub          Publisher
	sub          Subscriber
	fill         FillLevelSource
	pollInterval time.Duration
	observer     StateObserver
	logger       Logger

	lastMu sync.RWMutex
	last   *Telemetry

	statsMu sync.Mutex
	stats   Stats

	now func() time.Time
}

// NewBridge creates a bridge. Call RunPublishLoop and RunCommandLoop to
// start it.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("kettle sessions are required")
	}
	if opts.Publisher == nil {
		return nil, fmt.Errorf("MQTT publisher is required")
	}
	if opts.FillLevel == nil {
		return nil, fmt.Errorf("fill level source is required")
	}

	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Bridge{
		sessions:     opts.Sessions,
		pub:          opts.Publisher,
		sub:          opts.Subscriber,
		fill:         opts.FillLevel,
		pollInterval: interval,
		observer:     opts.Observer,
		logger:       opts.Logger,
		now:          time.Now,
	}, nil
}

// statusMessage is one pending publish.
type statusMessage struct {
	topic   string
	payload string
}

// PublishState reads the kettle and publishes the status topics.
//
// The five publishes run concurrently; the first failure cancels the rest
// and is returned. When the fill level is not yet known the other four
// topics are still published.
//
// Returns:
//   - error: kettle.ErrConnectionFailed (wrapped) if the kettle is
//     unreachable, or the first publish error
func (b *Bridge) PublishState(ctx context.Context) error {
	return b.sessions.WithSession(ctx, func(ctx context.Context, app kettle.Appliance) error {
		state := app.State()

		t := Telemetry{
			Power:              powerPayload(state.IsOn),
			CurrentTemperature: state.CurrentTemperature,
			TargetTemperature:  state.TargetTemperature,
			WarmingRate:        state.AverageWarmingRate,
			Units:              state.Units,
		}

		msgs := []statusMessage{
			{mqtt.TopicStatusPower, t.Power},
			{mqtt.TopicStatusCurrentTemperature, strconv.Itoa(t.CurrentTemperature)},
			{mqtt.TopicStatusTargetTemperature, strconv.Itoa(t.TargetTemperature)},
			{mqtt.TopicStatusWarmingRate, formatWarmingRate(t.WarmingRate)},
		}

		level, err := b.fill.Current()
		switch {
		case err == nil:
			t.FillLevel = level.String()
			msgs = append(msgs, statusMessage{mqtt.TopicStatusFillLevel, t.FillLevel})
		case errors.Is(err, fsr.ErrNotReady):
			b.logDebug("fill level not ready, skipping", "topic", mqtt.TopicStatusFillLevel)
		default:
			b.logWarn("fill level unavailable", "error", err)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, m := range msgs {
			m := m
			g.Go(func() error {
				if err := b.pub.Publish(gctx, m.topic, []byte(m.payload)); err != nil {
					return fmt.Errorf("publish %s: %w", m.topic, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		t.UpdatedAt = b.now()
		b.recordTelemetry(t)
		return nil
	})
}

func (b *Bridge) recordTelemetry(t Telemetry) {
	b.lastMu.Lock()
	b.last = &t
	b.lastMu.Unlock()

	b.statsMu.Lock()
	b.stats.Publishes++
	b.stats.LastPublishAt = t.UpdatedAt
	b.statsMu.Unlock()

	if b.observer != nil {
		b.observer.OnTelemetry(t)
	}
}

// RunPublishLoop publishes immediately and then every poll interval until
// ctx is cancelled, returning ctx.Err(). Iteration failures are logged and
// retried on the next tick.
func (b *Bridge) RunPublishLoop(ctx context.Context) error {
	b.logInfo("publish loop started", "interval", b.pollInterval)

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		if err := b.PublishState(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.statsMu.Lock()
			b.stats.PublishFailures++
			b.statsMu.Unlock()
			b.logError("failed to publish kettle state", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCommandLoop subscribes to the action topics and handles each command
// in arrival order until ctx is cancelled. Command failures are logged at
// warn level and the loop continues.
func (b *Bridge) RunCommandLoop(ctx context.Context) error {
	if b.sub == nil {
		return fmt.Errorf("MQTT subscriber is required")
	}

	b.logInfo("command loop started", "topic", mqtt.TopicActionWildcard)
	return b.sub.Subscribe(ctx, mqtt.TopicActionWildcard, func(topic string, payload []byte) error {
		b.statsMu.Lock()
		b.stats.Commands++
		b.statsMu.Unlock()

		if err := b.HandleCommand(ctx, topic, payload); err != nil {
			b.statsMu.Lock()
			b.stats.CommandFailures++
			b.statsMu.Unlock()
			b.logWarn("command failed", "topic", topic, "error", err)
		}
		return nil
	})
}

// LastTelemetry returns the most recently published telemetry, if any.
func (b *Bridge) LastTelemetry() (Telemetry, bool) {
	b.lastMu.RLock()
	defer b.lastMu.RUnlock()
	if b.last == nil {
		return Telemetry{}, false
	}
	return *b.last, true
}

// Stats returns a copy of the activity counters.
func (b *Bridge) Stats() Stats {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return b.stats
}

func powerPayload(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// formatWarmingRate renders a float that always carries a fractional part,
// so 1 is published as "1.0" rather than "1".
func formatWarmingRate(rate float64) string {
	s := strconv.FormatFloat(rate, 'f', -1, 64)
	if math.IsNaN(rate) || math.IsInf(rate, 0) || strings.Contains(s, ".") {
		return s
	}
	return s + ".0"
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	if b.logger != nil {
		b.logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, keysAndValues...)
	}
}
