package fusion

import "sync"

// maxHistoryLength bounds the in-memory update and track-point history kept
// for the monitoring endpoints.
const maxHistoryLength = 512

// TrackPoint is one estimated position, retained for trajectory
// visualisation.
type TrackPoint struct {
	X               float64
	Y               float64
	TimestampMicros int64
}

// Estimator is the stateful service-facing wrapper around a Filter: it owns
// the current belief, serialises measurement processing, and keeps a
// bounded history of updates for monitoring. The core Filter itself is
// pure; all locking lives here.
type Estimator struct {
	mu      sync.RWMutex
	filter  *Filter
	belief  Belief
	updates []Update
	history []TrackPoint
	count   int
}

// NewEstimator creates an estimator with the given filter tuning.
func NewEstimator(cfg Config) *Estimator {
	return &Estimator{filter: NewFilter(cfg)}
}

// Process folds one measurement into the estimate. On error the previous
// belief is preserved.
func (e *Estimator) Process(m Measurement) (Update, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, up, err := e.filter.Step(e.belief, m)
	if err != nil {
		return Update{}, err
	}
	e.belief = next
	e.count++

	x, y := next.Position()
	e.history = append(e.history, TrackPoint{X: x, Y: y, TimestampMicros: next.TimestampMicros()})
	if len(e.history) > maxHistoryLength {
		e.history = e.history[1:]
	}
	if !up.Seeded {
		e.updates = append(e.updates, up)
		if len(e.updates) > maxHistoryLength {
			e.updates = e.updates[1:]
		}
	}
	return up, nil
}

// Snapshot returns the current belief and whether it has been initialised.
func (e *Estimator) Snapshot() (Belief, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.belief, e.belief.Initialized()
}

// RecentUpdates returns a copy of the retained correction history, oldest
// first.
func (e *Estimator) RecentUpdates() []Update {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Update, len(e.updates))
	copy(out, e.updates)
	return out
}

// History returns a copy of the retained trajectory.
func (e *Estimator) History() []TrackPoint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]TrackPoint, len(e.history))
	copy(out, e.history)
	return out
}

// ProcessedCount returns the number of successfully processed measurements,
// including the seeding one.
func (e *Estimator) ProcessedCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.count
}
