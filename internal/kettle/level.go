package kettle

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/nerrad567/kettle-bridge/internal/fsr"
	"github.com/nerrad567/kettle-bridge/internal/infrastructure/config"
)

// FillLevel is a coarse estimate of how much water is in the kettle.
type FillLevel int

const (
	FillLevelLow    FillLevel = 1
	FillLevelMedium FillLevel = 2
	FillLevelFull   FillLevel = 3
)

// String returns the wire name published to MQTT.
func (l FillLevel) String() string {
	switch l {
	case FillLevelLow:
		return "LOW"
	case FillLevelMedium:
		return "MEDIUM"
	case FillLevelFull:
		return "FULL"
	default:
		return fmt.Sprintf("FillLevel(%d)", int(l))
	}
}

// ParseFillLevel parses LOW, MEDIUM or FULL, ignoring case.
func ParseFillLevel(s string) (FillLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return FillLevelLow, nil
	case "MEDIUM":
		return FillLevelMedium, nil
	case "FULL":
		return FillLevelFull, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFillLevel, s)
	}
}

// Threshold maps average intervals up to and including MaxInterval
// (microseconds) to Level.
type Threshold struct {
	MaxInterval float64
	Level       FillLevel
}

// ThresholdsFromConfig converts the configured fill-level table.
func ThresholdsFromConfig(rows []config.FillLevelThreshold) ([]Threshold, error) {
	out := make([]Threshold, 0, len(rows))
	for i, row := range rows {
		level, err := ParseFillLevel(row.Level)
		if err != nil {
			return nil, fmt.Errorf("fill level %d: %w", i, err)
		}
		out = append(out, Threshold{MaxInterval: row.MaxInterval, Level: level})
	}
	return out, nil
}

// IntervalSource supplies the FSR interval metric. *fsr.Sampler satisfies it.
type IntervalSource interface {
	AverageTickDiff() (float64, error)
}

// Classifier turns the FSR interval metric into a FillLevel.
//
// With no thresholds configured every reading is FULL and the interval
// source is never consulted.
type Classifier struct {
	source     IntervalSource
	thresholds []Threshold
}

// NewClassifier creates a classifier over source. The thresholds are copied
// and sorted by MaxInterval. source may be nil when thresholds is empty.
func NewClassifier(source IntervalSource, thresholds []Threshold) *Classifier {
	sorted := slices.Clone(thresholds)
	slices.SortFunc(sorted, func(a, b Threshold) int {
		return cmp.Compare(a.MaxInterval, b.MaxInterval)
	})
	return &Classifier{source: source, thresholds: sorted}
}

// GuessFillLevel classifies a metric. Values above the largest threshold take
// the level of that last row.
func (c *Classifier) GuessFillLevel(metric float64) FillLevel {
	if len(c.thresholds) == 0 {
		return FillLevelFull
	}
	for _, th := range c.thresholds {
		if metric <= th.MaxInterval {
			return th.Level
		}
	}
	return c.thresholds[len(c.thresholds)-1].Level
}

// Current classifies the latest interval from the source.
//
// Returns:
//   - FillLevel: the estimate
//   - error: fsr.ErrNotReady (possibly wrapped) until the sampler has a full window
func (c *Classifier) Current() (FillLevel, error) {
	if len(c.thresholds) == 0 {
		return FillLevelFull, nil
	}
	if c.source == nil {
		return 0, fmt.Errorf("%w: no interval source", fsr.ErrNotReady)
	}

	metric, err := c.source.AverageTickDiff()
	if err != nil {
		return 0, err
	}
	return c.GuessFillLevel(metric), nil
}
