package kettle

import (
	"errors"
	"testing"

	"github.com/nerrad567/kettle-bridge/internal/fsr"
	"github.com/nerrad567/kettle-bridge/internal/infrastructure/config"
)

type stubSource struct {
	metric float64
	err    error
	calls  int
}

func (s *stubSource) AverageTickDiff() (float64, error) {
	s.calls++
	return s.metric, s.err
}

func TestFillLevelString(t *testing.T) {
	tests := []struct {
		level FillLevel
		want  string
	}{
		{FillLevelLow, "LOW"},
		{FillLevelMedium, "MEDIUM"},
		{FillLevelFull, "FULL"},
		{FillLevel(9), "FillLevel(9)"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
	if !(FillLevelLow < FillLevelMedium && FillLevelMedium < FillLevelFull) {
		t.Error("fill levels are not ordered LOW < MEDIUM < FULL")
	}
}

func TestParseFillLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    FillLevel
		wantErr bool
	}{
		{"LOW", FillLevelLow, false},
		{"medium", FillLevelMedium, false},
		{" Full ", FillLevelFull, false},
		{"EMPTY", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseFillLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFillLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if tt.wantErr && !errors.Is(err, ErrUnknownFillLevel) {
			t.Errorf("ParseFillLevel(%q) error = %v, want ErrUnknownFillLevel", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFillLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestClassifierDefaultIsFull(t *testing.T) {
	src := &stubSource{err: fsr.ErrNotReady}
	c := NewClassifier(src, nil)

	for _, metric := range []float64{0, 1, 1e9} {
		if got := c.GuessFillLevel(metric); got != FillLevelFull {
			t.Errorf("GuessFillLevel(%v) = %v, want FULL", metric, got)
		}
	}

	got, err := c.Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if got != FillLevelFull {
		t.Errorf("Current() = %v, want FULL", got)
	}
	if src.calls != 0 {
		t.Errorf("source consulted %d times, want 0", src.calls)
	}
}

func TestClassifierThresholds(t *testing.T) {
	// Deliberately unsorted; NewClassifier orders them.
	c := NewClassifier(nil, []Threshold{
		{MaxInterval: 3000, Level: FillLevelLow},
		{MaxInterval: 1000, Level: FillLevelFull},
		{MaxInterval: 2000, Level: FillLevelMedium},
	})

	tests := []struct {
		metric float64
		want   FillLevel
	}{
		{500, FillLevelFull},
		{1000, FillLevelFull},
		{1000.5, FillLevelMedium},
		{2000, FillLevelMedium},
		{2500, FillLevelLow},
		{99999, FillLevelLow},
	}
	for _, tt := range tests {
		if got := c.GuessFillLevel(tt.metric); got != tt.want {
			t.Errorf("GuessFillLevel(%v) = %v, want %v", tt.metric, got, tt.want)
		}
	}
}

func TestClassifierCurrent(t *testing.T) {
	table := []Threshold{{MaxInterval: 1000, Level: FillLevelFull}, {MaxInterval: 5000, Level: FillLevelLow}}

	t.Run("not ready propagates", func(t *testing.T) {
		c := NewClassifier(&stubSource{err: fsr.ErrNotReady}, table)
		if _, err := c.Current(); !errors.Is(err, fsr.ErrNotReady) {
			t.Errorf("Current() error = %v, want ErrNotReady", err)
		}
	})

	t.Run("no source", func(t *testing.T) {
		c := NewClassifier(nil, table)
		if _, err := c.Current(); !errors.Is(err, fsr.ErrNotReady) {
			t.Errorf("Current() error = %v, want ErrNotReady", err)
		}
	})

	t.Run("classifies metric", func(t *testing.T) {
		c := NewClassifier(&stubSource{metric: 4000}, table)
		got, err := c.Current()
		if err != nil {
			t.Fatalf("Current() error = %v", err)
		}
		if got != FillLevelLow {
			t.Errorf("Current() = %v, want LOW", got)
		}
	})
}

func TestThresholdsFromConfig(t *testing.T) {
	got, err := ThresholdsFromConfig([]config.FillLevelThreshold{
		{MaxInterval: 100, Level: "full"},
		{MaxInterval: 200, Level: "LOW"},
	})
	if err != nil {
		t.Fatalf("ThresholdsFromConfig() error = %v", err)
	}
	want := []Threshold{{100, FillLevelFull}, {200, FillLevelLow}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("ThresholdsFromConfig() = %v, want %v", got, want)
	}

	if _, err := ThresholdsFromConfig([]config.FillLevelThreshold{{Level: "half"}}); !errors.Is(err, ErrUnknownFillLevel) {
		t.Errorf("ThresholdsFromConfig(bad) error = %v, want ErrUnknownFillLevel", err)
	}
}
