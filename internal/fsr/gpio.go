package fsr

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/warthog618/go-gpiocdev"
)

// Mode is the direction of a GPIO line.
type Mode int

const (
	// Input leaves the line floating so the RC circuit can charge.
	Input Mode = iota
	// Output drives the line, used to discharge the capacitor.
	Output
)

// String returns the mode name for logging.
func (m Mode) String() string {
	switch m {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// EdgeHandler receives a rising edge: the line offset, the level after the
// edge (1) and the edge timestamp.
type EdgeHandler func(offset int, level int, tick Tick)

// Watch is a registered edge notification.
type Watch interface {
	// Cancel deregisters the handler. No callbacks are delivered after it
	// returns.
	Cancel() error
}

// GPIO is the single line the sampler drives and watches.
type GPIO interface {
	SetMode(mode Mode) error
	Write(value int) error
	Watch(handler EdgeHandler) (Watch, error)
}

// consumer labels the line in the kernel's GPIO accounting.
const consumer = "kettlebridge-fsr"

// ChipGPIO drives one line of a GPIO character device through gpiocdev.
//
// The line is re-requested on every mode change: edge detection is only
// valid on inputs and gpiocdev binds the event handler at request time.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - The handler is invoked from gpiocdev's event goroutine.
type ChipGPIO struct {
	mu      sync.Mutex
	chip    *gpiocdev.Chip
	offset  int
	line    *gpiocdev.Line
	mode    Mode
	handler atomic.Pointer[EdgeHandler]
}

// NewChipGPIO opens the named chip (e.g. "gpiochip0") for one line offset.
// No line is requested until the first SetMode.
func NewChipGPIO(chipName string, offset int) (*ChipGPIO, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open chip %s: %w", chipName, err)
	}
	return &ChipGPIO{chip: chip, offset: offset}, nil
}

// SetMode switches the line direction. Output lines start driven low.
func (g *ChipGPIO) SetMode(mode Mode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.request(mode)
}

// request releases the current line and requests it again in mode.
// Caller must hold g.mu.
func (g *ChipGPIO) request(mode Mode) error {
	if g.line != nil {
		if err := g.line.Close(); err != nil {
			return fmt.Errorf("release pin %d: %w", g.offset, err)
		}
		g.line = nil
	}

	var opts []gpiocdev.LineReqOption
	switch mode {
	case Output:
		opts = append(opts, gpiocdev.AsOutput(0))
	case Input:
		opts = append(opts, gpiocdev.AsInput)
		if g.handler.Load() != nil {
			opts = append(opts, gpiocdev.WithRisingEdge, gpiocdev.WithEventHandler(g.dispatch))
		}
	default:
		return fmt.Errorf("request pin %d: unknown %s", g.offset, mode)
	}

	line, err := g.chip.RequestLine(g.offset, opts...)
	if err != nil {
		return fmt.Errorf("request pin %d as %s: %w", g.offset, mode, err)
	}
	g.line = line
	g.mode = mode
	return nil
}

// Write sets the output value of the line.
func (g *ChipGPIO) Write(value int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.line == nil {
		return ErrLineUnavailable
	}
	if err := g.line.SetValue(value); err != nil {
		return fmt.Errorf("set pin %d: %w", g.offset, err)
	}
	return nil
}

// Watch registers handler for rising edges. If the line is currently an
// input it is re-requested with edge detection straight away; otherwise
// detection starts on the next switch to Input.
func (g *ChipGPIO) Watch(handler EdgeHandler) (Watch, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.handler.Store(&handler)
	if g.line != nil && g.mode == Input {
		if err := g.request(Input); err != nil {
			g.handler.Store(nil)
			return nil, err
		}
	}
	return chipWatch{g: g}, nil
}

// dispatch adapts a gpiocdev event to the registered handler. It must not
// take g.mu: closing a line waits for this goroutine to return.
func (g *ChipGPIO) dispatch(evt gpiocdev.LineEvent) {
	if evt.Type != gpiocdev.LineEventRisingEdge {
		return
	}

	if h := g.handler.Load(); h != nil {
		handler := *h
		// The kernel timestamp is monotonic nanoseconds; keep the low 32 bits
		// of the microsecond count so it wraps like a hardware tick counter.
		handler(evt.Offset, 1, Tick(uint32(evt.Timestamp.Microseconds()))) //nolint:gosec // wrap intended
	}
}

// Close releases the line and the chip.
func (g *ChipGPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.handler.Store(nil)
	var lineErr error
	if g.line != nil {
		lineErr = g.line.Close()
		g.line = nil
	}
	if err := g.chip.Close(); err != nil {
		return fmt.Errorf("close chip: %w", err)
	}
	if lineErr != nil {
		return fmt.Errorf("release pin %d: %w", g.offset, lineErr)
	}
	return nil
}

type chipWatch struct {
	g *ChipGPIO
}

// Cancel stops edge delivery and drops edge detection from the line.
func (w chipWatch) Cancel() error {
	w.g.mu.Lock()
	defer w.g.mu.Unlock()

	w.g.handler.Store(nil)
	if w.g.line != nil && w.g.mode == Input {
		return w.g.request(Input)
	}
	return nil
}
