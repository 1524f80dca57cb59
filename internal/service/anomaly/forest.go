// Package anomaly implements isolation-based anomaly detection. A
// forest of randomized partitioning trees is trained per user on that
// user's feature vectors; scoring measures how quickly a vector is
// separated under random recursive partitioning. Shorter average path
// length means more anomalous. Training is deterministic for a fixed
// random seed.
package anomaly

import (
	"math"
	"math/rand"
	"sort"
	"time"

	domainerrors "behaviorguard/internal/domain/errors"
	"behaviorguard/internal/service/features"
)

// Defaults mirror the common isolation forest parameterization.
const (
	DefaultTreeCount  = 100
	DefaultSampleSize = 256
	DefaultMinVectors = 10
)

// Options configures training.
type Options struct {
	TreeCount     int
	SampleSize    int
	Contamination float64
	MinVectors    int
	Seed          int64
}

func (o Options) withDefaults() Options {
	if o.TreeCount < 1 {
		o.TreeCount = DefaultTreeCount
	}
	if o.SampleSize < 2 {
		o.SampleSize = DefaultSampleSize
	}
	if o.MinVectors < 1 {
		o.MinVectors = DefaultMinVectors
	}
	if o.Contamination <= 0 || o.Contamination >= 0.5 {
		o.Contamination = 0.1
	}
	return o
}

// node is one tree node. A node with no children is external and
// records the size of the subsample that reached it.
type node struct {
	SplitDim int     `json:"dim,omitempty"`
	SplitVal float64 `json:"val,omitempty"`
	Left     *node   `json:"l,omitempty"`
	Right    *node   `json:"r,omitempty"`
	Size     int     `json:"n,omitempty"`
}

func (n *node) external() bool {
	return n.Left == nil && n.Right == nil
}

// Forest is one trained ensemble, specific to exactly one user. It is
// read-only after training and safe for concurrent scoring. The whole
// struct serializes to JSON as the persisted model artifact.
type Forest struct {
	Trees         []*node   `json:"trees"`
	SampleSize    int       `json:"sample_size"`
	Dimensions    int       `json:"dimensions"`
	Contamination float64   `json:"contamination"`
	ScoreCutoff   float64   `json:"score_cutoff"`
	TrainedAt     time.Time `json:"trained_at"`
	SampleCount   int       `json:"sample_count"`
}

// Train builds an isolation forest from the feature vectors. It fails
// with an insufficient-data error when fewer than the configured
// minimum number of vectors is supplied. Contamination does not affect
// tree construction; it only positions the score cutoff used for the
// binary outlier flag.
func Train(vectors []features.FeatureVector, opts Options) (*Forest, error) {
	opts = opts.withDefaults()
	if len(vectors) < opts.MinVectors {
		return nil, domainerrors.NewInsufficientDataError(
			"not enough feature vectors to train a model").WithDetails(map[string]interface{}{
			"vectors":  len(vectors),
			"required": opts.MinVectors,
		})
	}

	data := make([][]float64, len(vectors))
	for i, v := range vectors {
		data[i] = v.Values()
	}

	sampleSize := opts.SampleSize
	if sampleSize > len(data) {
		sampleSize = len(data)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize))))

	rng := rand.New(rand.NewSource(opts.Seed))
	trees := make([]*node, opts.TreeCount)
	for i := range trees {
		sample := subsample(data, sampleSize, rng)
		trees[i] = buildTree(sample, 0, maxDepth, rng)
	}

	f := &Forest{
		Trees:         trees,
		SampleSize:    sampleSize,
		Dimensions:    features.Dimensions,
		Contamination: opts.Contamination,
		TrainedAt:     time.Now().UTC(),
		SampleCount:   len(vectors),
	}
	f.ScoreCutoff = f.cutoffFromTraining(data)
	return f, nil
}

// Score returns the anomaly score for one vector, normalized to [0,1]
// by the expected path length for the training sample size. Higher is
// more anomalous.
func (f *Forest) Score(v features.FeatureVector) float64 {
	x := v.Values()
	var total float64
	for _, t := range f.Trees {
		total += pathLength(t, x, 0)
	}
	avg := total / float64(len(f.Trees))
	return math.Pow(2, -avg/avgPathLength(f.SampleSize))
}

// IsOutlier converts a continuous score into the binary flag using the
// contamination-derived cutoff.
func (f *Forest) IsOutlier(score float64) bool {
	return score >= f.ScoreCutoff
}

// cutoffFromTraining positions the outlier cutoff at the
// (1-contamination) quantile of the training scores.
func (f *Forest) cutoffFromTraining(data [][]float64) float64 {
	scores := make([]float64, len(data))
	for i, x := range data {
		var total float64
		for _, t := range f.Trees {
			total += pathLength(t, x, 0)
		}
		scores[i] = math.Pow(2, -(total/float64(len(f.Trees)))/avgPathLength(f.SampleSize))
	}
	sort.Float64s(scores)
	idx := int(math.Ceil(float64(len(scores)) * (1 - f.Contamination)))
	if idx >= len(scores) {
		idx = len(scores) - 1
	}
	return scores[idx]
}

func subsample(data [][]float64, size int, rng *rand.Rand) [][]float64 {
	if size >= len(data) {
		return data
	}
	idx := rng.Perm(len(data))[:size]
	sample := make([][]float64, size)
	for i, j := range idx {
		sample[i] = data[j]
	}
	return sample
}

// buildTree grows one partitioning tree by recursively splitting on a
// random dimension at a random value within that dimension's observed
// range, until the depth cap is reached or a node holds one point.
func buildTree(sample [][]float64, depth, maxDepth int, rng *rand.Rand) *node {
	if depth >= maxDepth || len(sample) <= 1 {
		return &node{Size: len(sample)}
	}

	// Only dimensions with spread can separate points.
	splittable := splittableDims(sample)
	if len(splittable) == 0 {
		return &node{Size: len(sample)}
	}

	dim := splittable[rng.Intn(len(splittable))]
	lo, hi := dimRange(sample, dim)
	val := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, x := range sample {
		if x[dim] < val {
			left = append(left, x)
		} else {
			right = append(right, x)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &node{Size: len(sample)}
	}

	return &node{
		SplitDim: dim,
		SplitVal: val,
		Left:     buildTree(left, depth+1, maxDepth, rng),
		Right:    buildTree(right, depth+1, maxDepth, rng),
	}
}

func splittableDims(sample [][]float64) []int {
	if len(sample) == 0 {
		return nil
	}
	var dims []int
	for d := range sample[0] {
		lo, hi := dimRange(sample, d)
		if hi > lo {
			dims = append(dims, d)
		}
	}
	return dims
}

func dimRange(sample [][]float64, dim int) (lo, hi float64) {
	lo, hi = sample[0][dim], sample[0][dim]
	for _, x := range sample[1:] {
		if x[dim] < lo {
			lo = x[dim]
		}
		if x[dim] > hi {
			hi = x[dim]
		}
	}
	return lo, hi
}

// pathLength walks the vector down one tree, adding the expected
// remaining depth at the external node it lands in.
func pathLength(n *node, x []float64, depth int) float64 {
	if n.external() {
		return float64(depth) + avgPathLength(n.Size)
	}
	if x[n.SplitDim] < n.SplitVal {
		return pathLength(n.Left, x, depth+1)
	}
	return pathLength(n.Right, x, depth+1)
}

// avgPathLength is c(n), the expected path length of an unsuccessful
// search in a binary search tree of n points.
func avgPathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		nf := float64(n)
		return 2*(math.Log(nf-1)+0.5772156649) - 2*(nf-1)/nf
	}
}
