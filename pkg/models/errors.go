package models

import (
	"errors"
	"fmt"
)

// ErrValidation signale une entrée mal formée ou incohérente dans le temps.
var ErrValidation = errors.New("invalid input")

// ErrDegenerateInput signale une dimension qu'on ne peut ni scorer ni normaliser.
var ErrDegenerateInput = errors.New("degenerate input")

// ErrInvalidClusterCount signale un k hors de [1, N].
var ErrInvalidClusterCount = errors.New("invalid cluster count")

// ErrNotConverged signale qu'un k-means a atteint le plafond d'itérations.
var ErrNotConverged = errors.New("k-means did not converge")

// ValidationError désigne l'enregistrement ou le paramètre fautif.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// DegenerateInputError : dimension sans variance, ou moins de valeurs distinctes
// que de bins en mode strict.
type DegenerateInputError struct {
	Dimension Dimension
	Reason    string
}

func (e *DegenerateInputError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrDegenerateInput, e.Dimension, e.Reason)
}

func (e *DegenerateInputError) Is(target error) bool { return target == ErrDegenerateInput }

// InvalidClusterCountError : k hors de [1, N], N étant le nombre de clients.
type InvalidClusterCountError struct {
	K int
	N int
}

func (e *InvalidClusterCountError) Error() string {
	return fmt.Sprintf("%s: k=%d must be within [1, %d]", ErrInvalidClusterCount, e.K, e.N)
}

func (e *InvalidClusterCountError) Is(target error) bool { return target == ErrInvalidClusterCount }

// ConvergenceWarning n'est pas bloquant : le résultat reste utilisable.
type ConvergenceWarning struct {
	K          int
	Iterations int
	Inertia    float64
}

func (e *ConvergenceWarning) Error() string {
	return fmt.Sprintf("%s: k=%d after %d iterations (inertia=%.6f)", ErrNotConverged, e.K, e.Iterations, e.Inertia)
}

func (e *ConvergenceWarning) Is(target error) bool { return target == ErrNotConverged }
