package ml

import (
	"math"
	"math/rand"
)

// KMeans configures Lloyd's algorithm with k-means++ seeding.
type KMeans struct {
	K       int
	NInit   int
	MaxIter int
	Seed    int64
}

// KMeansResult is the best of NInit runs by inertia.
type KMeansResult struct {
	Labels    []int
	Centroids [][]float64
	Inertia   float64
}

// Fit clusters X. K must be between 1 and len(X).
func (km KMeans) Fit(X [][]float64) KMeansResult {
	nInit := km.NInit
	if nInit < 1 {
		nInit = 1
	}
	maxIter := km.MaxIter
	if maxIter < 1 {
		maxIter = 300
	}
	rng := rand.New(rand.NewSource(km.Seed))

	var best KMeansResult
	for run := 0; run < nInit; run++ {
		res := lloyd(X, seedCentroids(X, km.K, rng), maxIter)
		if run == 0 || res.Inertia < best.Inertia {
			best = res
		}
	}
	return best
}

func seedCentroids(X [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(X)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(X[rng.Intn(n)]))

	d2 := make([]float64, n)
	for i := range X {
		d2[i] = sqDist(X[i], centroids[0])
	}
	for len(centroids) < k {
		var total float64
		for _, d := range d2 {
			total += d
		}
		next := rng.Intn(n)
		if total > 0 {
			r := rng.Float64() * total
			for i, d := range d2 {
				r -= d
				if r <= 0 {
					next = i
					break
				}
			}
		}
		c := clone(X[next])
		centroids = append(centroids, c)
		for i := range X {
			if d := sqDist(X[i], c); d < d2[i] {
				d2[i] = d
			}
		}
	}
	return centroids
}

func lloyd(X [][]float64, centroids [][]float64, maxIter int) KMeansResult {
	n, k := len(X), len(centroids)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}

	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, x := range X {
			c := nearest(x, centroids)
			if c != labels[i] {
				labels[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}

		counts := make([]int, k)
		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, len(X[0]))
		}
		for i, x := range X {
			counts[labels[i]]++
			for j, v := range x {
				sums[labels[i]][j] += v
			}
		}
		for c := range centroids {
			// An empty cluster keeps its previous centroid.
			if counts[c] == 0 {
				continue
			}
			for j := range sums[c] {
				centroids[c][j] = sums[c][j] / float64(counts[c])
			}
		}
	}

	var inertia float64
	for i, x := range X {
		inertia += sqDist(x, centroids[labels[i]])
	}
	return KMeansResult{Labels: labels, Centroids: centroids, Inertia: inertia}
}

func nearest(x []float64, centroids [][]float64) int {
	best, bestD := 0, math.Inf(1)
	for c, cen := range centroids {
		if d := sqDist(x, cen); d < bestD {
			best, bestD = c, d
		}
	}
	return best
}

func clone(x []float64) []float64 {
	return append([]float64(nil), x...)
}

// Noise is the DBSCAN label for points that belong to no cluster.
const Noise = -1

// DBSCAN labels X by density: clusters are 0..n-1 and noise is Noise.
// A point is a core point when at least minSamples points, itself included,
// lie within eps.
func DBSCAN(X [][]float64, eps float64, minSamples int) (labels []int, clusters int) {
	n := len(X)
	labels = make([]int, n)
	visited := make([]bool, n)
	for i := range labels {
		labels[i] = Noise
	}
	eps2 := eps * eps

	neighbours := func(i int) []int {
		var out []int
		for j := range X {
			if sqDist(X[i], X[j]) <= eps2 {
				out = append(out, j)
			}
		}
		return out
	}

	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true
		seeds := neighbours(i)
		if len(seeds) < minSamples {
			continue
		}

		labels[i] = clusters
		for q := 0; q < len(seeds); q++ {
			j := seeds[q]
			if labels[j] == Noise {
				labels[j] = clusters
			}
			if visited[j] {
				continue
			}
			visited[j] = true
			if more := neighbours(j); len(more) >= minSamples {
				seeds = append(seeds, more...)
			}
		}
		clusters++
	}
	return labels, clusters
}

// Silhouette returns the mean silhouette coefficient of the labelled points,
// ignoring Noise. It is 0 when fewer than two clusters are populated or
// every point is its own cluster.
func Silhouette(X [][]float64, labels []int) float64 {
	var idx []int
	sizes := make(map[int]int)
	for i, l := range labels {
		if l == Noise {
			continue
		}
		idx = append(idx, i)
		sizes[l]++
	}
	if len(sizes) < 2 || len(sizes) >= len(idx) {
		return 0
	}

	var total float64
	for _, i := range idx {
		if sizes[labels[i]] == 1 {
			continue
		}
		sums := make(map[int]float64, len(sizes))
		for _, j := range idx {
			if i != j {
				sums[labels[j]] += math.Sqrt(sqDist(X[i], X[j]))
			}
		}
		a := sums[labels[i]] / float64(sizes[labels[i]]-1)
		b := math.Inf(1)
		for l, s := range sums {
			if l == labels[i] {
				continue
			}
			if m := s / float64(sizes[l]); m < b {
				b = m
			}
		}
		if den := math.Max(a, b); den > 0 {
			total += (b - a) / den
		}
	}
	return total / float64(len(idx))
}

// HeuristicClusters picks clamp(n/5, 2, 8).
func HeuristicClusters(n int) int {
	k := n / 5
	if k < 2 {
		k = 2
	}
	if k > 8 {
		k = 8
	}
	return k
}
