package ml

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"forex-analyzer/internal/performance"
)

// Classifier predicts the binary win label of a feature row.
type Classifier interface {
	Predict(x []float64) int
	// Importances returns impurity-based feature importances summing to 1,
	// or all zeros when no split was made.
	Importances() []float64
}

type treeNode struct {
	leaf      bool
	prob      float64 // fraction of class 1 among the node's samples
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
}

// DecisionTree is a CART classifier using Gini impurity.
type DecisionTree struct {
	root        *treeNode
	importances []float64
}

// TreeParams controls tree growth. MaxDepth 0 means unlimited and
// MaxFeatures 0 means every feature is considered at each split.
type TreeParams struct {
	MaxDepth        int
	MaxFeatures     int
	MinSamplesSplit int
}

type treeBuilder struct {
	X       [][]float64
	y       []int
	params  TreeParams
	rng     *rand.Rand
	gains   []float64
	nTotal  float64
	nFeat   int
	scratch []int
}

// FitTree grows a tree on the rows of X listed in idx.
func FitTree(X [][]float64, y []int, idx []int, params TreeParams, rng *rand.Rand) *DecisionTree {
	if params.MinSamplesSplit < 2 {
		params.MinSamplesSplit = 2
	}
	nFeat := 0
	if len(X) > 0 {
		nFeat = len(X[0])
	}
	b := &treeBuilder{
		X:      X,
		y:      y,
		params: params,
		rng:    rng,
		gains:  make([]float64, nFeat),
		nTotal: float64(len(idx)),
		nFeat:  nFeat,
	}
	rows := append([]int(nil), idx...)
	t := &DecisionTree{root: b.grow(rows, 0)}

	var total float64
	for _, g := range b.gains {
		total += g
	}
	t.importances = make([]float64, nFeat)
	if total > 0 {
		for j, g := range b.gains {
			t.importances[j] = g / total
		}
	}
	return t
}

func (b *treeBuilder) grow(rows []int, depth int) *treeNode {
	pos := 0
	for _, r := range rows {
		pos += b.y[r]
	}
	n := len(rows)
	node := &treeNode{leaf: true}
	if n > 0 {
		node.prob = float64(pos) / float64(n)
	}
	if pos == 0 || pos == n || n < b.params.MinSamplesSplit {
		return node
	}
	if b.params.MaxDepth > 0 && depth >= b.params.MaxDepth {
		return node
	}

	parent := gini(pos, n)
	bestGain, bestFeat, bestThr := 0.0, -1, 0.0
	for _, f := range b.candidates() {
		sorted := append(b.scratch[:0], rows...)
		sort.SliceStable(sorted, func(i, j int) bool { return b.X[sorted[i]][f] < b.X[sorted[j]][f] })

		leftPos := 0
		for i := 0; i < n-1; i++ {
			leftPos += b.y[sorted[i]]
			lo, hi := b.X[sorted[i]][f], b.X[sorted[i+1]][f]
			if lo == hi {
				continue
			}
			nl, nr := i+1, n-i-1
			child := (float64(nl)*gini(leftPos, nl) + float64(nr)*gini(pos-leftPos, nr)) / float64(n)
			if gain := parent - child; gain > bestGain+1e-12 {
				bestGain, bestFeat, bestThr = gain, f, lo+(hi-lo)/2
			}
		}
		b.scratch = sorted
	}
	if bestFeat < 0 {
		return node
	}

	var left, right []int
	for _, r := range rows {
		if b.X[r][bestFeat] <= bestThr {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	b.gains[bestFeat] += float64(n) / b.nTotal * bestGain

	node.leaf = false
	node.feature = bestFeat
	node.threshold = bestThr
	node.left = b.grow(left, depth+1)
	node.right = b.grow(right, depth+1)
	return node
}

func (b *treeBuilder) candidates() []int {
	m := b.params.MaxFeatures
	if m <= 0 || m >= b.nFeat || b.rng == nil {
		all := make([]int, b.nFeat)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.rng.Perm(b.nFeat)[:m]
}

func gini(pos, n int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(pos) / float64(n)
	return 1 - p*p - (1-p)*(1-p)
}

// Prob returns the estimated probability of a win.
func (t *DecisionTree) Prob(x []float64) float64 {
	n := t.root
	for !n.leaf {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.prob
}

// Predict returns 1 when the win probability exceeds one half.
func (t *DecisionTree) Predict(x []float64) int {
	if t.Prob(x) > 0.5 {
		return 1
	}
	return 0
}

// Importances implements Classifier.
func (t *DecisionTree) Importances() []float64 { return t.importances }

// RandomForest averages the probabilities of bootstrapped trees grown on
// random feature subsets.
type RandomForest struct {
	Trees       []*DecisionTree
	importances []float64
}

// ForestParams controls forest training.
type ForestParams struct {
	NEstimators int
	MaxDepth    int
	Seed        int64
}

// FitForest trains the trees on pool. Tree i draws from its own generator
// seeded with Seed+i, so the forest does not depend on scheduling order.
func FitForest(ctx context.Context, pool *performance.WorkerPool, X [][]float64, y []int, idx []int, params ForestParams) (*RandomForest, error) {
	nTrees := params.NEstimators
	if nTrees < 1 {
		nTrees = 1
	}
	nFeat := 0
	if len(X) > 0 {
		nFeat = len(X[0])
	}
	maxFeatures := int(math.Sqrt(float64(nFeat)))
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	trees := make([]*DecisionTree, nTrees)
	err := pool.Run(ctx, nTrees, func(i int) {
		rng := rand.New(rand.NewSource(params.Seed + int64(i)))
		sample := make([]int, len(idx))
		for k := range sample {
			sample[k] = idx[rng.Intn(len(idx))]
		}
		trees[i] = FitTree(X, y, sample, TreeParams{MaxDepth: params.MaxDepth, MaxFeatures: maxFeatures}, rng)
	})
	if err != nil {
		return nil, err
	}

	f := &RandomForest{Trees: trees, importances: make([]float64, nFeat)}
	var total float64
	for _, t := range trees {
		for j, v := range t.importances {
			f.importances[j] += v
			total += v
		}
	}
	if total > 0 {
		for j := range f.importances {
			f.importances[j] /= total
		}
	}
	return f, nil
}

// Prob returns the mean win probability over all trees.
func (f *RandomForest) Prob(x []float64) float64 {
	var s float64
	for _, t := range f.Trees {
		s += t.Prob(x)
	}
	return s / float64(len(f.Trees))
}

// Predict implements Classifier.
func (f *RandomForest) Predict(x []float64) int {
	if f.Prob(x) > 0.5 {
		return 1
	}
	return 0
}

// Importances implements Classifier.
func (f *RandomForest) Importances() []float64 { return f.importances }
