package rfm

import (
	"fmt"
	"sort"

	"rfm-segments/pkg/models"
)

const (
	DefaultBins = 5
	// au-delà, le composite 100×R + 10×F + M ne se décode plus
	maxBins = 9
)

type ScoreOptions struct {
	Bins   int
	Strict bool // erreur si une dimension a moins de valeurs distinctes que de bins
}

// Score attribue à chaque client un score 1..Bins par dimension.
//
// Les valeurs égales forment un bloc qui reçoit toujours un seul bin. Chaque bloc
// vise le bin du quantile de son rang médian ; le bloc minimum reçoit 1 et le bloc
// maximum Bins. S'il y a au moins Bins valeurs distinctes, les bins montent d'un
// cran au plus d'un bloc à l'autre, donc aucun bin ne reste vide. Sinon les bins
// sont fusionnés. Pour la récence le label est inversé : le client le plus récent
// reçoit Bins.
func Score(aggs []models.CustomerAggregate, opts ScoreOptions) ([]models.RFMScore, error) {
	bins := opts.Bins
	if bins == 0 {
		bins = DefaultBins
	}
	if bins < 1 || bins > maxBins {
		return nil, &models.ValidationError{Field: "bins", Reason: fmt.Sprintf("%d not in [1, %d]", bins, maxBins)}
	}
	if len(aggs) == 0 {
		return []models.RFMScore{}, nil
	}

	recency := make([]float64, len(aggs))
	frequency := make([]float64, len(aggs))
	monetary := make([]float64, len(aggs))
	for i, a := range aggs {
		recency[i] = float64(a.RecencyDays)
		frequency[i] = float64(a.Frequency)
		monetary[i] = a.Monetary.InexactFloat64()
	}

	var binned [3][]int
	for d, values := range [3][]float64{recency, frequency, monetary} {
		dim := models.Dimensions[d]
		if opts.Strict {
			if n := countDistinct(values); n < bins {
				return nil, &models.DegenerateInputError{
					Dimension: dim,
					Reason:    fmt.Sprintf("%d distinct values for %d bins", n, bins),
				}
			}
		}
		binned[d] = assignBins(values, bins)
	}

	out := make([]models.RFMScore, len(aggs))
	for i, a := range aggs {
		r := bins + 1 - binned[0][i]
		f := binned[1][i]
		m := binned[2][i]
		out[i] = models.RFMScore{
			CustomerID:     a.CustomerID,
			RecencyScore:   r,
			FrequencyScore: f,
			MonetaryScore:  m,
			Composite:      100*r + 10*f + m,
		}
	}
	return out, nil
}

type block struct {
	start, size int // positions dans l'ordre trié
}

func assignBins(values []float64, bins int) []int {
	n := len(values)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] < values[order[b]] })

	var blocks []block
	for i := 0; i < n; {
		j := i + 1
		for j < n && values[order[j]] == values[order[i]] {
			j++
		}
		blocks = append(blocks, block{start: i, size: j - i})
		i = j
	}

	m := len(blocks)
	binOf := make([]int, m)
	for j, b := range blocks {
		// rang médian du bloc, ramené à un bin de quantile
		center := float64(b.start) + float64(b.size)/2
		bin := min(1+int(center*float64(bins)/float64(n)), bins)
		switch {
		case j == 0:
			bin = 1
		case j == m-1:
			bin = bins
		}
		if j > 0 {
			prev := binOf[j-1]
			bin = max(bin, prev)
			if m >= bins {
				// assez de place pour atteindre Bins avec les blocs restants
				bin = max(bin, bins-(m-1-j))
				bin = min(bin, prev+1)
			}
		}
		binOf[j] = bin
	}

	out := make([]int, n)
	for j, b := range blocks {
		for k := b.start; k < b.start+b.size; k++ {
			out[order[k]] = binOf[j]
		}
	}
	return out
}

func countDistinct(values []float64) int {
	seen := make(map[float64]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}
