package mlmodel

import (
	"math/rand"
	"sort"
)

// treeNode is one node of a regression tree. Leaves carry the mean target of
// the samples that reached them.
type treeNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
}

type treeConfig struct {
	maxDepth    int
	minLeaf     int
	maxFeatures int // 0 means consider all features
	rng         *rand.Rand
}

// growTree builds a variance-reduction regression tree over the rows indexed
// by idx.
func growTree(X [][]float64, y []float64, idx []int, depth int, cfg treeConfig) *treeNode {
	if len(idx) == 0 {
		return &treeNode{leaf: true}
	}
	mean := meanAt(y, idx)
	if depth >= cfg.maxDepth || len(idx) < 2*cfg.minLeaf || constantAt(y, idx) {
		return &treeNode{leaf: true, value: mean}
	}

	feature, threshold, ok := bestSplit(X, y, idx, cfg)
	if !ok {
		return &treeNode{leaf: true, value: mean}
	}

	var left, right []int
	for _, i := range idx {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < cfg.minLeaf || len(right) < cfg.minLeaf {
		return &treeNode{leaf: true, value: mean}
	}

	return &treeNode{
		feature:   feature,
		threshold: threshold,
		left:      growTree(X, y, left, depth+1, cfg),
		right:     growTree(X, y, right, depth+1, cfg),
	}
}

// bestSplit scans candidate features for the threshold with the largest sum
// of squared error reduction. Thresholds are midpoints between consecutive
// distinct sorted values.
func bestSplit(X [][]float64, y []float64, idx []int, cfg treeConfig) (feature int, threshold float64, ok bool) {
	nFeatures := len(X[idx[0]])
	candidates := featureCandidates(nFeatures, cfg)

	bestGain := 0.0
	sorted := make([]int, len(idx))

	for _, f := range candidates {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, b int) bool { return X[sorted[a]][f] < X[sorted[b]][f] })

		var totalSum, totalSq float64
		for _, i := range sorted {
			totalSum += y[i]
			totalSq += y[i] * y[i]
		}
		n := float64(len(sorted))
		parentSSE := totalSq - totalSum*totalSum/n

		var leftSum, leftSq float64
		for k := 0; k < len(sorted)-1; k++ {
			i := sorted[k]
			leftSum += y[i]
			leftSq += y[i] * y[i]

			// No valid threshold between equal feature values.
			if X[i][f] == X[sorted[k+1]][f] {
				continue
			}
			nl := float64(k + 1)
			nr := n - nl
			if int(nl) < cfg.minLeaf || int(nr) < cfg.minLeaf {
				continue
			}
			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			gain := parentSSE - sse
			if gain > bestGain {
				bestGain = gain
				feature = f
				threshold = (X[i][f] + X[sorted[k+1]][f]) / 2
				ok = true
			}
		}
	}
	return feature, threshold, ok
}

func featureCandidates(nFeatures int, cfg treeConfig) []int {
	if cfg.maxFeatures <= 0 || cfg.maxFeatures >= nFeatures {
		all := make([]int, nFeatures)
		for i := range all {
			all[i] = i
		}
		return all
	}
	perm := cfg.rng.Perm(nFeatures)
	return perm[:cfg.maxFeatures]
}

func (n *treeNode) predict(row []float64) float64 {
	for !n.leaf {
		if row[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

func meanAt(y []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var sum float64
	for _, i := range idx {
		sum += y[i]
	}
	return sum / float64(len(idx))
}

func constantAt(y []float64, idx []int) bool {
	for _, i := range idx[1:] {
		if y[i] != y[idx[0]] {
			return false
		}
	}
	return true
}
