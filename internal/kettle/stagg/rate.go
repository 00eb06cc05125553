package stagg

import "time"

const (
	// rateWindow is how far back warming-rate samples are kept.
	rateWindow = 60 * time.Second

	// rateMaxSamples caps the history regardless of age.
	rateMaxSamples = 64
)

type tempSample struct {
	at   time.Time
	temp int
}

// rateTracker computes the average warming rate in degrees per second over
// the recent temperature history. Not safe for concurrent use.
type rateTracker struct {
	samples []tempSample
}

// add records a reading and drops samples older than rateWindow.
func (r *rateTracker) add(at time.Time, temp int) {
	r.samples = append(r.samples, tempSample{at: at, temp: temp})

	cutoff := at.Add(-rateWindow)
	drop := 0
	for drop < len(r.samples)-1 && r.samples[drop].at.Before(cutoff) {
		drop++
	}
	if over := len(r.samples) - drop - rateMaxSamples; over > 0 {
		drop += over
	}
	if drop > 0 {
		r.samples = append(r.samples[:0], r.samples[drop:]...)
	}
}

// average returns the temperature change per second between the oldest and
// newest samples, or 0 with fewer than two samples.
func (r *rateTracker) average() float64 {
	if len(r.samples) < 2 {
		return 0
	}
	first, last := r.samples[0], r.samples[len(r.samples)-1]
	elapsed := last.at.Sub(first.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(last.temp-first.temp) / elapsed
}

// reset clears the history, used when the kettle switches off.
func (r *rateTracker) reset() {
	r.samples = r.samples[:0]
}
