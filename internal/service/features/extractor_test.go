package features

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"behaviorguard/internal/domain/event"
)

func mouseEvent(ts int64, x, y int) event.BehavioralEvent {
	return event.BehavioralEvent{
		UserID:    "user-1",
		EventType: string(event.TypeMouseMove),
		X:         &x,
		Y:         &y,
		Timestamp: ts,
	}
}

func TestExtractor_Extract(t *testing.T) {
	t.Run("empty input yields no vectors", func(t *testing.T) {
		x := NewExtractor(DefaultWindowSize)
		assert.Nil(t, x.Extract(nil))
		assert.Nil(t, x.Extract([]event.BehavioralEvent{}))
	})

	t.Run("single event yields one all-zero vector", func(t *testing.T) {
		x := NewExtractor(DefaultWindowSize)
		vectors := x.Extract([]event.BehavioralEvent{mouseEvent(1000, 5, 5)})
		require.Len(t, vectors, 1)
		assert.Equal(t, FeatureVector{}, vectors[0])
	})

	t.Run("two-event window computes exact statistics", func(t *testing.T) {
		// 2000ms apart, (0,0) -> (30,40) is a 3-4-5 triangle scaled by
		// 10, so distance 50px over 2.0s gives speed 25px/s.
		events := []event.BehavioralEvent{
			mouseEvent(1000, 0, 0),
			mouseEvent(3000, 30, 40),
		}

		x := NewExtractor(DefaultWindowSize)
		vectors := x.Extract(events)
		require.Len(t, vectors, 1)

		v := vectors[0]
		assert.InDelta(t, 25.0, v.AvgSpeed, 1e-9)
		assert.InDelta(t, 0.0, v.StdSpeed, 1e-9)
		assert.InDelta(t, 25.0, v.MaxSpeed, 1e-9)
		assert.InDelta(t, 2.0, v.AvgTimeDelta, 1e-9)
		assert.InDelta(t, 0.0, v.StdTimeDelta, 1e-9)
		assert.InDelta(t, 50.0, v.TotalDistance, 1e-9)
	})

	t.Run("trailing partial window is kept", func(t *testing.T) {
		var events []event.BehavioralEvent
		for i := 0; i < 13; i++ {
			events = append(events, mouseEvent(int64(i)*100, i, i))
		}

		x := NewExtractor(10)
		vectors := x.Extract(events)
		assert.Len(t, vectors, 2)
	})

	t.Run("identical timestamps produce zero speed", func(t *testing.T) {
		events := []event.BehavioralEvent{
			mouseEvent(1000, 0, 0),
			mouseEvent(1000, 100, 0),
		}

		x := NewExtractor(DefaultWindowSize)
		vectors := x.Extract(events)
		require.Len(t, vectors, 1)
		assert.Zero(t, vectors[0].AvgSpeed)
		assert.Zero(t, vectors[0].AvgTimeDelta)
		assert.InDelta(t, 100.0, vectors[0].TotalDistance, 1e-9)
	})

	t.Run("events without coordinates contribute zero distance", func(t *testing.T) {
		keyPress := event.BehavioralEvent{
			UserID:    "user-1",
			EventType: string(event.TypeKeyPress),
			Timestamp: 2000,
		}
		events := []event.BehavioralEvent{
			mouseEvent(1000, 0, 0),
			keyPress,
			mouseEvent(3000, 30, 40),
		}

		x := NewExtractor(DefaultWindowSize)
		vectors := x.Extract(events)
		require.Len(t, vectors, 1)
		assert.Zero(t, vectors[0].TotalDistance)
	})
}

func TestExtractor_DeterministicUnderPermutation(t *testing.T) {
	var events []event.BehavioralEvent
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 40; i++ {
		events = append(events, mouseEvent(int64(i)*137, rng.Intn(800), rng.Intn(600)))
	}

	x := NewExtractor(10)
	baseline := x.Extract(events)

	for trial := 0; trial < 5; trial++ {
		shuffled := make([]event.BehavioralEvent, len(events))
		copy(shuffled, events)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		assert.Equal(t, baseline, x.Extract(shuffled))
	}
}

func TestExtractor_DoesNotMutateInput(t *testing.T) {
	events := []event.BehavioralEvent{
		mouseEvent(3000, 30, 40),
		mouseEvent(1000, 0, 0),
	}
	original := make([]event.BehavioralEvent, len(events))
	copy(original, events)

	NewExtractor(DefaultWindowSize).Extract(events)
	assert.Equal(t, original, events)
}

func TestFeatureVector_Values(t *testing.T) {
	v := FeatureVector{
		AvgSpeed:      1,
		StdSpeed:      2,
		MaxSpeed:      3,
		AvgTimeDelta:  4,
		StdTimeDelta:  5,
		TotalDistance: 6,
	}
	values := v.Values()
	require.Len(t, values, Dimensions)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, values)
}
