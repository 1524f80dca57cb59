package anomaly

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "behaviorguard/internal/domain/errors"
	"behaviorguard/internal/service/features"
)

// clusterVectors generates vectors tightly grouped around a typical
// mouse-movement profile, with small jitter.
func clusterVectors(n int, seed int64) []features.FeatureVector {
	rng := rand.New(rand.NewSource(seed))
	vectors := make([]features.FeatureVector, n)
	for i := range vectors {
		vectors[i] = features.FeatureVector{
			AvgSpeed:      200 + rng.Float64()*20,
			StdSpeed:      30 + rng.Float64()*5,
			MaxSpeed:      400 + rng.Float64()*40,
			AvgTimeDelta:  0.05 + rng.Float64()*0.01,
			StdTimeDelta:  0.01 + rng.Float64()*0.002,
			TotalDistance: 900 + rng.Float64()*100,
		}
	}
	return vectors
}

func testOptions() Options {
	return Options{
		TreeCount:     100,
		SampleSize:    256,
		Contamination: 0.1,
		MinVectors:    10,
		Seed:          42,
	}
}

func TestTrain_InsufficientVectors(t *testing.T) {
	_, err := Train(clusterVectors(9, 1), testOptions())
	require.Error(t, err)
	assert.True(t, domainerrors.IsCode(err, "INSUFFICIENT_DATA"))

	_, err = Train(nil, testOptions())
	require.Error(t, err)
	assert.True(t, domainerrors.IsCode(err, "INSUFFICIENT_DATA"))
}

func TestTrain_MinimumVectorsSucceeds(t *testing.T) {
	f, err := Train(clusterVectors(10, 1), testOptions())
	require.NoError(t, err)
	assert.Len(t, f.Trees, 100)
	assert.Equal(t, features.Dimensions, f.Dimensions)
	assert.Equal(t, 10, f.SampleCount)
	assert.Equal(t, 10, f.SampleSize, "sample size is capped at the training set size")
	assert.False(t, f.TrainedAt.IsZero())
}

func TestForest_ScoreBounds(t *testing.T) {
	f, err := Train(clusterVectors(100, 1), testOptions())
	require.NoError(t, err)

	probes := append(clusterVectors(50, 2),
		features.FeatureVector{},
		features.FeatureVector{AvgSpeed: 1e6, MaxSpeed: 1e7, TotalDistance: 1e8},
	)
	for _, v := range probes {
		score := f.Score(v)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestForest_SeparatesOutlierFromCluster(t *testing.T) {
	f, err := Train(clusterVectors(200, 1), testOptions())
	require.NoError(t, err)

	inlier := clusterVectors(1, 99)[0]
	outlier := features.FeatureVector{
		AvgSpeed:      50000,
		StdSpeed:      8000,
		MaxSpeed:      90000,
		AvgTimeDelta:  0.0001,
		StdTimeDelta:  0,
		TotalDistance: 500000,
	}

	inScore := f.Score(inlier)
	outScore := f.Score(outlier)
	assert.Greater(t, outScore, inScore,
		"a far-off vector must score higher than one drawn from the training cluster")
	assert.True(t, f.IsOutlier(outScore))
}

func TestTrain_DeterministicForFixedSeed(t *testing.T) {
	vectors := clusterVectors(100, 5)

	f1, err := Train(vectors, testOptions())
	require.NoError(t, err)
	f2, err := Train(vectors, testOptions())
	require.NoError(t, err)

	assert.Equal(t, f1.ScoreCutoff, f2.ScoreCutoff)
	probe := clusterVectors(1, 6)[0]
	assert.Equal(t, f1.Score(probe), f2.Score(probe))
}

func TestForest_JSONRoundTrip(t *testing.T) {
	f, err := Train(clusterVectors(100, 1), testOptions())
	require.NoError(t, err)

	payload, err := json.Marshal(f)
	require.NoError(t, err)

	var restored Forest
	require.NoError(t, json.Unmarshal(payload, &restored))

	assert.Equal(t, f.SampleSize, restored.SampleSize)
	assert.Equal(t, f.ScoreCutoff, restored.ScoreCutoff)

	// The restored forest must score identically to the original.
	for _, v := range clusterVectors(20, 3) {
		assert.InDelta(t, f.Score(v), restored.Score(v), 1e-12)
	}
}

func TestOptions_Defaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, DefaultTreeCount, o.TreeCount)
	assert.Equal(t, DefaultSampleSize, o.SampleSize)
	assert.Equal(t, DefaultMinVectors, o.MinVectors)
	assert.InDelta(t, 0.1, o.Contamination, 1e-9)

	o = Options{Contamination: 0.9}.withDefaults()
	assert.InDelta(t, 0.1, o.Contamination, 1e-9, "out-of-range contamination falls back to the default")
}
