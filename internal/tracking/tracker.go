// Package tracking accumulates observed premium differentials: a bounded
// recent history, a same-day extremum, and an all-time extremum.
package tracking

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/tianyi-liu/premiumdiff/internal/models"
)

// DefaultCapacity bounds the recent-history ring.
const DefaultCapacity = 50

// HistoryStats summarizes the retained differential history.
type HistoryStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// State is the persistable portion of a tracker.
type State struct {
	History   []models.PremiumSnapshot `json:"history"`
	Today     *models.ExtremumRecord   `json:"today,omitempty"`
	AllTime   *models.ExtremumRecord   `json:"all_time,omitempty"`
	TodayDate string                   `json:"today_date,omitempty"`
}

// Tracker is not safe for concurrent use; the engine serializes access.
type Tracker struct {
	capacity  int
	loc       *time.Location
	history   []models.PremiumSnapshot
	today     *models.ExtremumRecord
	allTime   *models.ExtremumRecord
	todayDate string
}

// New creates a tracker. capacity <= 0 selects DefaultCapacity.
func New(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tracker{
		capacity: capacity,
		loc:      models.BeijingZone(),
	}
}

// Rollover clears the same-day extremum and the history when the local date
// has changed since the last call. The all-time extremum survives. It is a
// no-op within a single date.
func (t *Tracker) Rollover(now time.Time) {
	date := now.In(t.loc).Format("2006-01-02")
	if date == t.todayDate {
		return
	}
	t.todayDate = date
	t.today = nil
	t.history = nil
}

// Observe records one differential. The oldest snapshot is evicted once the
// ring is full. Extrema are replaced only on a strictly larger absolute
// value, so ties keep the earlier record.
func (t *Tracker) Observe(now time.Time, differential, group1, group2 float64) {
	at := now.In(t.loc)
	t.history = append(t.history, models.PremiumSnapshot{
		At:           at,
		Differential: differential,
		Group1:       group1,
		Group2:       group2,
	})
	if len(t.history) > t.capacity {
		t.history = t.history[len(t.history)-t.capacity:]
	}

	rec := &models.ExtremumRecord{Value: differential, At: at}
	if t.today == nil || math.Abs(differential) > math.Abs(t.today.Value) {
		t.today = rec
	}
	if t.allTime == nil || math.Abs(differential) > math.Abs(t.allTime.Value) {
		t.allTime = rec
	}
}

// History returns the retained snapshots, oldest first.
func (t *Tracker) History() []models.PremiumSnapshot {
	out := make([]models.PremiumSnapshot, len(t.history))
	copy(out, t.history)
	return out
}

// TodayBest returns the same-day extremum, nil before the first observation
// of the day.
func (t *Tracker) TodayBest() *models.ExtremumRecord {
	return copyRecord(t.today)
}

// AllTimeBest returns the all-time extremum, nil before any observation.
func (t *Tracker) AllTimeBest() *models.ExtremumRecord {
	return copyRecord(t.allTime)
}

// Stats summarizes the retained history, nil when it is empty.
func (t *Tracker) Stats() *HistoryStats {
	if len(t.history) == 0 {
		return nil
	}
	values := make([]float64, len(t.history))
	for i, s := range t.history {
		values[i] = s.Differential
	}

	mean, _ := stats.Mean(values)
	min, _ := stats.Min(values)
	max, _ := stats.Max(values)
	stddev, err := stats.StandardDeviation(values)
	if err != nil {
		stddev = 0
	}
	return &HistoryStats{
		Count:  len(values),
		Mean:   mean,
		StdDev: stddev,
		Min:    min,
		Max:    max,
	}
}

// Snapshot exports the tracker state for persistence.
func (t *Tracker) Snapshot() State {
	return State{
		History:   t.History(),
		Today:     copyRecord(t.today),
		AllTime:   copyRecord(t.allTime),
		TodayDate: t.todayDate,
	}
}

// Restore replaces the tracker state from a persisted snapshot. History
// beyond the configured capacity is trimmed from the oldest end.
func (t *Tracker) Restore(s State) {
	t.history = append([]models.PremiumSnapshot(nil), s.History...)
	if len(t.history) > t.capacity {
		t.history = t.history[len(t.history)-t.capacity:]
	}
	t.today = copyRecord(s.Today)
	t.allTime = copyRecord(s.AllTime)
	t.todayDate = s.TodayDate
}

func copyRecord(r *models.ExtremumRecord) *models.ExtremumRecord {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}
