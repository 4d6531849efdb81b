package forest

import (
	"math"
	"math/rand"
	"sort"
)

// Node is a node of a classification tree. A node without children is a
// leaf. Fields are exported for gob.
type Node struct {
	// Split: x[Feature] <= Threshold goes left.
	Feature   int
	Threshold float64
	Left      *Node
	Right     *Node

	// Proba is the class distribution of the training samples that
	// reached this node; only leaves keep it.
	Proba []float64
}

func (n *Node) leaf() bool {
	return n.Left == nil && n.Right == nil
}

// tree is a CART tree grown on a bootstrap sample with gini impurity.
type tree struct {
	Root *Node
}

type grower struct {
	X         [][]float64
	y         []int
	nClasses  int
	nFeatures int
	params    Params
	rng       *rand.Rand
}

func (g *grower) grow(idx []int) *tree {
	return &tree{Root: g.node(idx, 0)}
}

func (g *grower) node(idx []int, depth int) *Node {
	counts := g.counts(idx)
	n := len(idx)

	if pure(counts) ||
		n < g.params.MinSamplesSplit ||
		n < 2*g.params.MinSamplesLeaf ||
		(g.params.MaxDepth > 0 && depth >= g.params.MaxDepth) {
		return g.leaf(counts, n)
	}

	feature, threshold, ok := g.bestSplit(idx, counts)
	if !ok {
		return g.leaf(counts, n)
	}

	left := make([]int, 0, n)
	right := make([]int, 0, n)
	for _, i := range idx {
		if g.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	return &Node{
		Feature:   feature,
		Threshold: threshold,
		Left:      g.node(left, depth+1),
		Right:     g.node(right, depth+1),
	}
}

func (g *grower) leaf(counts []int, n int) *Node {
	proba := make([]float64, g.nClasses)
	for c, k := range counts {
		proba[c] = float64(k) / float64(n)
	}
	return &Node{Proba: proba}
}

// bestSplit draws features in random order and evaluates up to
// maxFeatures non-constant ones. The first split with the lowest weighted
// gini wins.
func (g *grower) bestSplit(idx []int, parent []int) (int, float64, bool) {
	n := len(idx)
	maxFeatures := g.params.maxFeatures(g.nFeatures)
	minLeaf := g.params.MinSamplesLeaf

	type sample struct {
		v float64
		c int
	}
	sorted := make([]sample, n)
	left := make([]int, g.nClasses)
	right := make([]int, g.nClasses)

	bestScore := math.Inf(-1)
	bestFeature, bestThreshold := -1, 0.0
	visited := 0

	for _, f := range g.rng.Perm(g.nFeatures) {
		if visited >= maxFeatures {
			break
		}
		for k, i := range idx {
			sorted[k] = sample{v: g.X[i][f], c: g.y[i]}
		}
		sort.Slice(sorted, func(a, b int) bool { return sorted[a].v < sorted[b].v })
		if sorted[0].v == sorted[n-1].v {
			continue
		}
		visited++

		for c := range left {
			left[c] = 0
			right[c] = parent[c]
		}
		for s := 1; s < n; s++ {
			c := sorted[s-1].c
			left[c]++
			right[c]--
			if sorted[s].v == sorted[s-1].v || s < minLeaf || n-s < minLeaf {
				continue
			}
			// Maximizing sum(l^2)/nl + sum(r^2)/nr minimizes weighted gini.
			score := sumSquares(left)/float64(s) + sumSquares(right)/float64(n-s)
			if score > bestScore {
				bestScore = score
				bestFeature = f
				bestThreshold = sorted[s-1].v + (sorted[s].v-sorted[s-1].v)/2
				if bestThreshold >= sorted[s].v {
					bestThreshold = sorted[s-1].v
				}
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}

func (g *grower) counts(idx []int) []int {
	counts := make([]int, g.nClasses)
	for _, i := range idx {
		counts[g.y[i]]++
	}
	return counts
}

func (t *tree) proba(x []float64) []float64 {
	n := t.Root
	for !n.leaf() {
		if x[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Proba
}

func (t *tree) depth() int {
	var walk func(n *Node) int
	walk = func(n *Node) int {
		if n == nil || n.leaf() {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(t.Root)
}

func pure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func sumSquares(counts []int) float64 {
	s := 0.0
	for _, c := range counts {
		s += float64(c) * float64(c)
	}
	return s
}
