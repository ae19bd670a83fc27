package cluster

import (
	"context"
	"errors"

	"rfm-segments/pkg/models"
)

type sweepConfig struct {
	progress func(k int)
}

type SweepOption func(*sweepConfig)

// WithProgress est appelé après chaque k, qu'il ait réussi ou non.
func WithProgress(fn func(k int)) SweepOption {
	return func(c *sweepConfig) { c.progress = fn }
}

// Sweep exécute KMeans pour chaque k de kMin à kMax et renvoie la courbe de
// dispersion (k, inertie) dans l'ordre des k. Un k invalide est consigné dans
// DispersionPoint.Err sans interrompre les autres. Le choix du k (coude) reste
// à l'appelant.
func Sweep(ctx context.Context, vectors []models.ScaledFeatureVector, kMin, kMax int, opts Options, sweepOpts ...SweepOption) ([]models.DispersionPoint, error) {
	if kMax < kMin {
		return nil, &models.ValidationError{Field: "k_max", Reason: "must be >= k_min"}
	}
	var cfg sweepConfig
	for _, o := range sweepOpts {
		o(&cfg)
	}

	curve := make([]models.DispersionPoint, 0, kMax-kMin+1)
	for k := kMin; k <= kMax; k++ {
		runOpts := opts
		runOpts.K = k
		res, err := KMeans(ctx, vectors, runOpts)
		switch {
		case err == nil:
			curve = append(curve, models.DispersionPoint{K: k, Inertia: res.Inertia, Converged: res.Converged})
		case errors.Is(err, models.ErrInvalidClusterCount):
			curve = append(curve, models.DispersionPoint{K: k, Err: err})
		default:
			// annulation du contexte : inutile de continuer
			return curve, err
		}
		if cfg.progress != nil {
			cfg.progress(k)
		}
	}
	return curve, nil
}
