// Package iforest implements the Isolation Forest algorithm and an analyzer
// that scores multi-channel observations with it.
package iforest

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"sync"
)

// ErrNotTrained is returned by scoring calls made before Fit.
var ErrNotTrained = errors.New("model not trained")

// IsolationForest implements unsupervised anomaly detection using isolation trees.
type IsolationForest struct {
	mu sync.RWMutex

	// Configuration
	nTrees        int
	sampleSize    int
	contamination float64
	threshold     float64
	maxDepth      int
	seed          int64
	rng           *rand.Rand

	// Trained model
	trees   []*node
	trained bool

	avgPathLength float64
}

// node is a node in an isolation tree.
type node struct {
	// Split parameters (for internal nodes)
	splitFeature int
	splitValue   float64

	left  *node
	right *node

	// Leaf information
	size int
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *IsolationForest) {
		f.nTrees = n
	}
}

// WithSampleSize sets the subsample size for each tree.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) {
		f.sampleSize = n
	}
}

// WithContamination sets the expected proportion of anomalies. Zero keeps
// the fixed score threshold of 0.5.
func WithContamination(c float64) Option {
	return func(f *IsolationForest) {
		f.contamination = c
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) {
		f.seed = seed
	}
}

// New creates a new IsolationForest with the given options.
func New(opts ...Option) *IsolationForest {
	f := &IsolationForest{
		nTrees:        100,
		sampleSize:    256,
		contamination: 0.1,
		threshold:     0.5,
		seed:          42,
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.nTrees < 1 {
		f.nTrees = 1
	}
	if f.sampleSize < 2 {
		f.sampleSize = 2
	}
	f.rng = rand.New(rand.NewSource(f.seed))
	f.maxDepth = int(math.Ceil(math.Log2(float64(f.sampleSize))))

	return f
}

// Fit trains the forest on data, one row per sample.
func (f *IsolationForest) Fit(data [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(data) == 0 {
		return errors.New("empty training data")
	}

	nSamples := len(data)
	nFeatures := len(data[0])
	if nFeatures == 0 {
		return errors.New("samples have no features")
	}
	for _, row := range data {
		if len(row) != nFeatures {
			return errors.New("samples have differing feature counts")
		}
	}

	sampleSize := min(f.sampleSize, nSamples)

	f.trees = make([]*node, f.nTrees)
	for i := range f.trees {
		// Sample without replacement
		indices := f.rng.Perm(nSamples)[:sampleSize]
		sample := make([][]float64, sampleSize)
		for j, idx := range indices {
			sample[j] = data[idx]
		}
		f.trees[i] = f.buildNode(sample, nFeatures, 0)
	}

	f.avgPathLength = averagePathLength(float64(sampleSize))
	f.trained = true

	if f.contamination > 0 {
		f.threshold = percentile(f.predict(data), 100*(1-f.contamination))
	}

	return nil
}

func (f *IsolationForest) buildNode(data [][]float64, nFeatures, depth int) *node {
	n := len(data)

	if depth >= f.maxDepth || n <= 1 {
		return &node{size: n}
	}

	feature := f.rng.Intn(nFeatures)

	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		minVal = math.Min(minVal, row[feature])
		maxVal = math.Max(maxVal, row[feature])
	}

	// Nothing left to isolate on this feature
	if minVal == maxVal {
		return &node{size: n}
	}

	splitValue := minVal + f.rng.Float64()*(maxVal-minVal)

	var leftData, rightData [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			leftData = append(leftData, row)
		} else {
			rightData = append(rightData, row)
		}
	}

	return &node{
		splitFeature: feature,
		splitValue:   splitValue,
		left:         f.buildNode(leftData, nFeatures, depth+1),
		right:        f.buildNode(rightData, nFeatures, depth+1),
	}
}

// Predict returns anomaly scores in [0, 1] for the given samples.
func (f *IsolationForest) Predict(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, ErrNotTrained
	}
	return f.predict(data), nil
}

func (f *IsolationForest) predict(data [][]float64) []float64 {
	scores := make([]float64, len(data))
	for i, sample := range data {
		scores[i] = f.score(sample)
	}
	return scores
}

// PredictOne returns the anomaly score for a single sample.
func (f *IsolationForest) PredictOne(sample []float64) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return 0, ErrNotTrained
	}
	return f.score(sample), nil
}

// score is 2^(-E[h(x)] / c(n)); higher is more anomalous.
func (f *IsolationForest) score(sample []float64) float64 {
	if f.avgPathLength == 0 {
		return 0.5
	}

	var totalPath float64
	for _, tree := range f.trees {
		totalPath += pathLength(sample, tree, 0)
	}
	avgPath := totalPath / float64(len(f.trees))

	return math.Pow(2, -avgPath/f.avgPathLength)
}

func pathLength(sample []float64, n *node, depth int) float64 {
	if n.left == nil && n.right == nil {
		return float64(depth) + averagePathLength(float64(n.size))
	}

	if sample[n.splitFeature] < n.splitValue {
		return pathLength(sample, n.left, depth+1)
	}
	return pathLength(sample, n.right, depth+1)
}

// averagePathLength is c(n), the mean path length of an unsuccessful BST search.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	// c(n) = 2*H(n-1) - 2*(n-1)/n with H(i) ~ ln(i) + Euler-Mascheroni
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}

// Threshold returns the current anomaly threshold.
func (f *IsolationForest) Threshold() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.threshold
}

// SetThreshold updates the anomaly threshold.
func (f *IsolationForest) SetThreshold(t float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threshold = t
}

// percentile returns the p-th percentile of data by nearest lower rank.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)-1) * p / 100)
	return sorted[idx]
}
