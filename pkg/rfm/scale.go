package rfm

import (
	"math"

	"rfm-segments/pkg/models"
)

type ScaleOptions struct {
	// DropDegenerate met à 0 une dimension sans variance au lieu de renvoyer
	// un DegenerateInputError. Une feature constante ne change aucune distance.
	DropDegenerate bool
}

// Scale centre-réduit les trois dimensions (écart-type de population) et inverse
// la récence pour que chaque feature croisse avec la valeur du client.
func Scale(aggs []models.CustomerAggregate, opts ScaleOptions) (models.ScaledFeatures, error) {
	res := models.ScaledFeatures{Vectors: make([]models.ScaledFeatureVector, len(aggs))}
	if len(aggs) == 0 {
		return res, nil
	}

	raw := make([]models.Point, len(aggs))
	for i, a := range aggs {
		raw[i] = models.Point{float64(a.RecencyDays), float64(a.Frequency), a.Monetary.InexactFloat64()}
	}

	var active [3]bool
	for d, dim := range models.Dimensions {
		lo, hi := raw[0][d], raw[0][d]
		sum := 0.0
		for _, p := range raw {
			lo = math.Min(lo, p[d])
			hi = math.Max(hi, p[d])
			sum += p[d]
		}
		if lo == hi {
			if !opts.DropDegenerate {
				return models.ScaledFeatures{}, &models.DegenerateInputError{Dimension: dim, Reason: "zero standard deviation"}
			}
			res.Dropped = append(res.Dropped, dim)
			res.Mean[d] = lo
			continue
		}
		mean := sum / float64(len(raw))
		ss := 0.0
		for _, p := range raw {
			ss += (p[d] - mean) * (p[d] - mean)
		}
		res.Mean[d] = mean
		res.StdDev[d] = math.Sqrt(ss / float64(len(raw)))
		active[d] = true
	}

	for i, a := range aggs {
		var f models.Point
		for d := range f {
			if active[d] {
				f[d] = (raw[i][d] - res.Mean[d]) / res.StdDev[d]
			}
		}
		res.Vectors[i] = models.ScaledFeatureVector{
			CustomerID: a.CustomerID,
			Recency:    -f[0],
			Frequency:  f[1],
			Monetary:   f[2],
		}
	}
	return res, nil
}
