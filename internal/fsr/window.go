package fsr

// WindowSize is the number of rising-edge ticks kept by the sampler.
const WindowSize = 4

// Tick is a microsecond timestamp from a free-running 32-bit counter.
// It wraps to zero after roughly 71.6 minutes.
type Tick uint32

// TickDiff returns the number of ticks from one timestamp to a later one.
// Unsigned subtraction keeps the result correct across a single wrap.
func TickDiff(from, to Tick) uint32 {
	return uint32(to - from)
}

// Window is a FIFO of the most recent rising-edge ticks, oldest first.
// Once full, each Push evicts the oldest tick.
//
// The zero value is an empty window ready for use. Window is not safe for
// concurrent use; Sampler guards it.
type Window struct {
	ticks [WindowSize]Tick
	n     int
}

// Push appends a tick, evicting the oldest when the window is full.
func (w *Window) Push(t Tick) {
	if w.n < WindowSize {
		w.ticks[w.n] = t
		w.n++
		return
	}
	copy(w.ticks[:], w.ticks[1:])
	w.ticks[WindowSize-1] = t
}

// Len returns how many ticks the window holds (0 to WindowSize).
func (w *Window) Len() int {
	return w.n
}

// Ticks returns a copy of the held ticks, oldest first.
func (w *Window) Ticks() []Tick {
	out := make([]Tick, w.n)
	copy(out, w.ticks[:w.n])
	return out
}

// Average returns the mean of the differences between consecutive ticks.
//
// Returns:
//   - float64: mean interval in microseconds
//   - error: ErrNotReady until the window is full
func (w *Window) Average() (float64, error) {
	if w.n < WindowSize {
		return 0, ErrNotReady
	}

	var sum uint64
	for i := 1; i < WindowSize; i++ {
		sum += uint64(TickDiff(w.ticks[i-1], w.ticks[i]))
	}
	return float64(sum) / float64(WindowSize-1), nil
}
