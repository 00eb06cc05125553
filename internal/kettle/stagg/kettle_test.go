package stagg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/kettle-bridge/internal/kettle"
)

// fakeClock advances by step on every call.
type fakeClock struct {
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func newOfflineKettle(clock *fakeClock) *Kettle {
	return &Kettle{now: clock.Now}
}

func TestHandleNotificationUpdatesState(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0), step: time.Second}
	k := newOfflineKettle(clock)

	k.handleNotification([]byte{0xef, 0xdd, 0x00, 0x01})
	k.handleNotification([]byte{0xef, 0xdd, 0x02, 212, 0x01, 0xef, 0xdd, 0x03, 120, 0x01})
	k.handleNotification([]byte{0xef, 0xdd, 0x03, 122})

	got := k.State()
	want := kettle.State{
		IsOn:               true,
		CurrentTemperature: 122,
		TargetTemperature:  212,
		AverageWarmingRate: 2,
		Units:              "F",
	}
	if got != want {
		t.Errorf("State() = %+v, want %+v", got, want)
	}
}

func TestHandleNotificationPowerOffResetsRate(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0), step: time.Second}
	k := newOfflineKettle(clock)

	k.handleNotification([]byte{0xef, 0xdd, 0x00, 0x01})
	k.handleNotification([]byte{0xef, 0xdd, 0x03, 100})
	k.handleNotification([]byte{0xef, 0xdd, 0x03, 110})
	if k.State().AverageWarmingRate == 0 {
		t.Fatal("expected a warming rate while heating")
	}

	k.handleNotification([]byte{0xef, 0xdd, 0x00, 0x00})
	if got := k.State(); got.IsOn || got.AverageWarmingRate != 0 {
		t.Errorf("State() after power off = %+v, want off with zero rate", got)
	}
}

func TestAwaitFirstStateNeedsEveryField(t *testing.T) {
	k := newOfflineKettle(&fakeClock{now: time.Unix(0, 0), step: time.Second})

	// Power alone must not count as a known state.
	k.handleNotification([]byte{0xef, 0xdd, 0x00, 0x01})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := k.awaitFirstState(ctx)
	if !errors.Is(err, ErrNoTelemetry) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("awaitFirstState() error = %v, want ErrNoTelemetry wrapping DeadlineExceeded", err)
	}
}

func TestAwaitFirstStateReturnsOnceStateKnown(t *testing.T) {
	k := newOfflineKettle(&fakeClock{now: time.Unix(0, 0), step: time.Second})

	done := make(chan error, 1)
	go func() { done <- k.awaitFirstState(context.Background()) }()

	k.handleNotification([]byte{0xef, 0xdd, 0x00, 0x01})
	k.handleNotification([]byte{0xef, 0xdd, 0x02, 96, 0x00, 0xef, 0xdd, 0x03, 40, 0x00})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("awaitFirstState() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("awaitFirstState() did not return after full state")
	}

	want := kettle.State{IsOn: true, CurrentTemperature: 40, TargetTemperature: 96, Units: "C"}
	if got := k.State(); got != want {
		t.Errorf("State() = %+v, want %+v", got, want)
	}

	// Later waits return at once.
	if err := k.awaitFirstState(context.Background()); err != nil {
		t.Errorf("second awaitFirstState() error = %v", err)
	}
}

func TestCommandsRequireConnection(t *testing.T) {
	k := newOfflineKettle(&fakeClock{})
	ctx := context.Background()

	if err := k.TurnOn(ctx); !errors.Is(err, kettle.ErrNotConnected) {
		t.Errorf("TurnOn() error = %v, want ErrNotConnected", err)
	}
	if err := k.TurnOff(ctx); !errors.Is(err, kettle.ErrNotConnected) {
		t.Errorf("TurnOff() error = %v, want ErrNotConnected", err)
	}
	if err := k.SetTargetTemperature(ctx, 200); !errors.Is(err, kettle.ErrNotConnected) {
		t.Errorf("SetTargetTemperature() error = %v, want ErrNotConnected", err)
	}
	if err := k.SetTargetTemperature(ctx, 20); !errors.Is(err, ErrTemperatureOutOfRange) {
		t.Errorf("SetTargetTemperature(20) error = %v, want ErrTemperatureOutOfRange", err)
	}
}

func TestDisconnectWhenNotConnected(t *testing.T) {
	k := newOfflineKettle(&fakeClock{})
	if err := k.Disconnect(); err != nil {
		t.Errorf("Disconnect() error = %v", err)
	}
	if k.IsConnected() {
		t.Error("IsConnected() = true")
	}
}

func TestRateTracker(t *testing.T) {
	start := time.Unix(1000, 0)

	t.Run("needs two samples", func(t *testing.T) {
		var r rateTracker
		r.add(start, 90)
		if got := r.average(); got != 0 {
			t.Errorf("average() = %v, want 0", got)
		}
	})

	t.Run("degrees per second", func(t *testing.T) {
		var r rateTracker
		r.add(start, 100)
		r.add(start.Add(2*time.Second), 101)
		r.add(start.Add(4*time.Second), 102)
		if got := r.average(); got != 0.5 {
			t.Errorf("average() = %v, want 0.5", got)
		}
	})

	t.Run("old samples expire", func(t *testing.T) {
		var r rateTracker
		r.add(start, 50)
		r.add(start.Add(90*time.Second), 150)
		r.add(start.Add(100*time.Second), 160)
		if got := r.average(); got != 1 {
			t.Errorf("average() = %v, want 1", got)
		}
	})

	t.Run("capped history", func(t *testing.T) {
		var r rateTracker
		for i := 0; i < rateMaxSamples*2; i++ {
			r.add(start.Add(time.Duration(i)*time.Millisecond), i)
		}
		if len(r.samples) != rateMaxSamples {
			t.Errorf("len(samples) = %d, want %d", len(r.samples), rateMaxSamples)
		}
	})
}
