// Package cluster segmente les features RFM par k-means (algorithme de Lloyd),
// balaie k pour la courbe de dispersion et profile les segments obtenus.
package cluster

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"

	"rfm-segments/pkg/models"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultRestarts = 25
	DefaultMaxIter  = 100

	// second mot du PCG ; fixe pour que seul Seed pilote le flux
	pcgStream = 0x9e3779b97f4a7c15
)

type Options struct {
	K        int
	Restarts int // initialisations indépendantes ; la meilleure inertie gagne
	MaxIter  int
	Seed     uint64
	Workers  int // 0 → GOMAXPROCS
}

func (o Options) withDefaults() Options {
	if o.Restarts <= 0 {
		o.Restarts = DefaultRestarts
	}
	if o.MaxIter <= 0 {
		o.MaxIter = DefaultMaxIter
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

// KMeans exécute Restarts runs de Lloyd initialisés par k-means++ et renvoie
// celui de plus faible inertie (à égalité, le plus petit index de restart).
//
// Chaque restart tire son graine d'un flux maître initialisé par Seed : pour un
// même Seed, K, Restarts et un même ordre d'entrée, le résultat est identique
// quel que soit Workers.
func KMeans(ctx context.Context, vectors []models.ScaledFeatureVector, opts Options) (*models.ClusterResult, error) {
	n := len(vectors)
	if opts.K < 1 || opts.K > n {
		return nil, &models.InvalidClusterCountError{K: opts.K, N: n}
	}
	opts = opts.withDefaults()

	points := make([]models.Point, n)
	for i, v := range vectors {
		points[i] = v.Point()
	}

	master := rand.New(rand.NewPCG(opts.Seed, pcgStream))
	seeds := make([]uint64, opts.Restarts)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	runs := make([]*lloydRun, opts.Restarts)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for r := range runs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(seeds[r], uint64(r)))
			runs[r] = lloyd(points, opts.K, opts.MaxIter, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := 0
	for r := 1; r < len(runs); r++ {
		if runs[r].inertia < runs[best].inertia {
			best = r
		}
	}
	run := runs[best]

	assignment := make(map[string]int, n)
	for i, v := range vectors {
		assignment[v.CustomerID] = run.labels[i]
	}
	return &models.ClusterResult{
		K:          opts.K,
		Centroids:  run.centroids,
		Assignment: assignment,
		Labels:     run.labels,
		Inertia:    run.inertia,
		History:    run.history,
		Iterations: run.iterations,
		Converged:  run.converged,
		Restart:    best,
	}, nil
}

type lloydRun struct {
	centroids  []models.Point
	labels     []int
	inertia    float64
	history    []float64
	iterations int
	converged  bool
}

// lloyd alterne strictement affectation puis mise à jour des centroïdes.
func lloyd(points []models.Point, k, maxIter int, rng *rand.Rand) *lloydRun {
	n := len(points)
	centroids := seedPlusPlus(points, k, rng)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	dist := make([]float64, n)
	run := &lloydRun{}

	for iter := 0; iter < maxIter; iter++ {
		run.iterations = iter + 1
		changed := assign(points, centroids, labels, dist)
		if repairEmpty(points, centroids, labels, dist) {
			changed = true
		}
		run.history = append(run.history, sum(dist))
		if !changed {
			run.converged = true
			break
		}
		update(points, centroids, labels)
	}

	if run.converged {
		run.inertia = run.history[len(run.history)-1]
	} else {
		// dernière étape = mise à jour : inertie des mêmes labels vis-à-vis des nouveaux centroïdes
		for i, p := range points {
			dist[i] = sqDist(p, centroids[labels[i]])
		}
		run.inertia = sum(dist)
	}
	run.centroids = centroids
	run.labels = labels
	return run
}

// seedPlusPlus choisit k centres : le premier uniformément, les suivants avec une
// probabilité proportionnelle au carré de la distance au centre le plus proche.
// Si tous les points restants coïncident avec un centre, le tirage redevient uniforme
// parmi les points non encore choisis.
func seedPlusPlus(points []models.Point, k int, rng *rand.Rand) []models.Point {
	n := len(points)
	chosen := make([]bool, n)
	centroids := make([]models.Point, 0, k)

	first := rng.IntN(n)
	chosen[first] = true
	centroids = append(centroids, points[first])

	d2 := make([]float64, n)
	for i, p := range points {
		d2[i] = sqDist(p, points[first])
	}
	for len(centroids) < k {
		total := sum(d2)
		next := -1
		if total > 0 {
			target := rng.Float64() * total
			acc := 0.0
			for i, w := range d2 {
				if w == 0 {
					continue
				}
				acc += w
				next = i
				if acc > target {
					break
				}
			}
		} else {
			remaining := make([]int, 0, n-len(centroids))
			for i := range points {
				if !chosen[i] {
					remaining = append(remaining, i)
				}
			}
			next = remaining[rng.IntN(len(remaining))]
		}
		chosen[next] = true
		centroids = append(centroids, points[next])
		for i, p := range points {
			d2[i] = math.Min(d2[i], sqDist(p, points[next]))
		}
	}
	return centroids
}

// assign affecte chaque point au centroïde le plus proche et renvoie true si au
// moins un label a changé. À égalité le point garde son cluster, sinon le plus
// petit index l'emporte.
func assign(points, centroids []models.Point, labels []int, dist []float64) bool {
	changed := false
	for i, p := range points {
		best, bestD := 0, sqDist(p, centroids[0])
		for c := 1; c < len(centroids); c++ {
			if d := sqDist(p, centroids[c]); d < bestD {
				best, bestD = c, d
			}
		}
		if cur := labels[i]; cur >= 0 && cur != best && sqDist(p, centroids[cur]) == bestD {
			best = cur
		}
		if labels[i] != best {
			labels[i] = best
			changed = true
		}
		dist[i] = bestD
	}
	return changed
}

// repairEmpty donne à chaque cluster vide le point le plus éloigné de son centroïde,
// pris dans un cluster d'au moins deux membres, et y place le centroïde.
// L'inertie ne peut que baisser. Requiert n >= k.
func repairEmpty(points, centroids []models.Point, labels []int, dist []float64) bool {
	counts := make([]int, len(centroids))
	for _, l := range labels {
		counts[l]++
	}
	repaired := false
	for c := range centroids {
		if counts[c] > 0 {
			continue
		}
		far := -1
		for i := range points {
			if counts[labels[i]] < 2 {
				continue
			}
			if far < 0 || dist[i] > dist[far] {
				far = i
			}
		}
		if far < 0 {
			break
		}
		counts[labels[far]]--
		labels[far] = c
		counts[c] = 1
		centroids[c] = points[far]
		dist[far] = 0
		repaired = true
	}
	return repaired
}

// update recalcule chaque centroïde comme la moyenne de ses points (somme et
// compte accumulés avant la division).
func update(points, centroids []models.Point, labels []int) {
	sums := make([]models.Point, len(centroids))
	counts := make([]int, len(centroids))
	for i, p := range points {
		l := labels[i]
		counts[l]++
		for d := range p {
			sums[l][d] += p[d]
		}
	}
	for c := range centroids {
		if counts[c] == 0 {
			continue
		}
		for d := range sums[c] {
			centroids[c][d] = sums[c][d] / float64(counts[c])
		}
	}
}

func sqDist(a, b models.Point) float64 {
	s := 0.0
	for d := range a {
		diff := a[d] - b[d]
		s += diff * diff
	}
	return s
}

func sum(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s
}
