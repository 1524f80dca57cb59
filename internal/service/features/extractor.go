// Package features derives fixed-width numeric feature vectors from a
// user's raw behavioral events. Extraction is deterministic: events are
// stable-sorted by client timestamp, so the same input multiset always
// produces bit-for-bit identical vectors.
package features

import (
	"math"
	"sort"

	"behaviorguard/internal/domain/event"
)

// Dimensions is the width of every feature vector.
const Dimensions = 6

// DefaultWindowSize is the number of consecutive events summarized by
// one vector.
const DefaultWindowSize = 10

// FeatureVector summarizes one fixed-size window of a user's
// chronologically sorted events.
type FeatureVector struct {
	AvgSpeed      float64 `json:"avg_speed"`
	StdSpeed      float64 `json:"std_speed"`
	MaxSpeed      float64 `json:"max_speed"`
	AvgTimeDelta  float64 `json:"avg_time_delta"`
	StdTimeDelta  float64 `json:"std_time_delta"`
	TotalDistance float64 `json:"total_distance"`
}

// Values returns the vector in fixed dimension order.
func (v FeatureVector) Values() []float64 {
	return []float64{v.AvgSpeed, v.StdSpeed, v.MaxSpeed, v.AvgTimeDelta, v.StdTimeDelta, v.TotalDistance}
}

// Extractor converts event sequences into feature vectors.
type Extractor struct {
	windowSize int
}

// NewExtractor creates an extractor with the given window size; sizes
// below 1 fall back to the default.
func NewExtractor(windowSize int) *Extractor {
	if windowSize < 1 {
		windowSize = DefaultWindowSize
	}
	return &Extractor{windowSize: windowSize}
}

// delta holds the inter-event measurements for one event relative to
// its predecessor in the sorted stream.
type delta struct {
	timeDelta float64 // seconds
	distance  float64 // pixels
	speed     float64 // pixels per second, 0 when timeDelta <= 0
	defined   bool    // false only for the first event of the stream
}

// Extract partitions the sorted events into consecutive windows of the
// configured size and computes per-window statistics. The trailing
// partial window is kept and aggregated like any other. A window with
// no defined inter-event deltas produces an all-zero vector.
func (x *Extractor) Extract(events []event.BehavioralEvent) []FeatureVector {
	if len(events) == 0 {
		return nil
	}

	sorted := make([]event.BehavioralEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	deltas := computeDeltas(sorted)

	var vectors []FeatureVector
	for start := 0; start < len(sorted); start += x.windowSize {
		end := start + x.windowSize
		if end > len(sorted) {
			end = len(sorted)
		}
		vectors = append(vectors, aggregateWindow(deltas[start:end]))
	}
	return vectors
}

func computeDeltas(sorted []event.BehavioralEvent) []delta {
	deltas := make([]delta, len(sorted))
	for i := 1; i < len(sorted); i++ {
		prev, cur := &sorted[i-1], &sorted[i]

		d := delta{defined: true}
		d.timeDelta = float64(cur.Timestamp-prev.Timestamp) / 1000.0

		// Coordinate deltas are zero when either endpoint lacks
		// coordinates.
		if prev.HasCoordinates() && cur.HasCoordinates() {
			px, py := prev.Coordinates()
			cx, cy := cur.Coordinates()
			dx, dy := cx-px, cy-py
			d.distance = math.Sqrt(dx*dx + dy*dy)
		}

		if d.timeDelta > 0 {
			d.speed = d.distance / d.timeDelta
		}
		deltas[i] = d
	}
	return deltas
}

func aggregateWindow(window []delta) FeatureVector {
	var speeds, timeDeltas []float64
	var totalDistance float64
	for _, d := range window {
		if !d.defined {
			continue
		}
		speeds = append(speeds, d.speed)
		timeDeltas = append(timeDeltas, d.timeDelta)
		totalDistance += d.distance
	}

	v := FeatureVector{
		AvgSpeed:      sanitize(mean(speeds)),
		StdSpeed:      sanitize(stddev(speeds)),
		MaxSpeed:      sanitize(maxVal(speeds)),
		AvgTimeDelta:  sanitize(mean(timeDeltas)),
		StdTimeDelta:  sanitize(stddev(timeDeltas)),
		TotalDistance: sanitize(totalDistance),
	}
	return v
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation; fewer than 2 samples yields 0.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

func maxVal(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

// sanitize substitutes 0 for any non-finite statistic.
func sanitize(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
