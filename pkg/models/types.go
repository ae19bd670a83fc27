package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

/*
LOAD → lignes de facture déjà nettoyées, telles que remises par le loader.
*/

// Transaction représente une ligne de facture nettoyée (client non nul, quantité et prix >= 0).
type Transaction struct {
	CustomerID  string
	InvoiceID   string
	Quantity    int64
	UnitPrice   decimal.Decimal
	InvoiceDate time.Time
}

// Amount = Quantity × UnitPrice
func (t Transaction) Amount() decimal.Decimal {
	return t.UnitPrice.Mul(decimal.NewFromInt(t.Quantity))
}

/*
COMPUTE → vues dérivées, jamais modifiées après création.
*/

// Dimension identifie un des trois axes RFM.
type Dimension int

const (
	Recency Dimension = iota
	Frequency
	Monetary
)

// Dimensions liste les axes dans l'ordre des coordonnées d'un Point.
var Dimensions = [3]Dimension{Recency, Frequency, Monetary}

func (d Dimension) String() string {
	switch d {
	case Recency:
		return "recency"
	case Frequency:
		return "frequency"
	case Monetary:
		return "monetary"
	default:
		return "unknown"
	}
}

// CustomerAggregate contient les métriques RFM brutes d'un client.
type CustomerAggregate struct {
	CustomerID  string
	RecencyDays int             // jours entre la date d'analyse et la dernière facture
	Frequency   int             // nombre de factures distinctes
	Monetary    decimal.Decimal // somme de Quantity × UnitPrice
}

// RFMScore contient les scores ordinaux 1..B d'un client.
type RFMScore struct {
	CustomerID     string
	RecencyScore   int
	FrequencyScore int
	MonetaryScore  int
	Composite      int // 100×R + 10×F + M (reporting uniquement)
}

// Digits retrouve les trois scores à partir du composite.
func (s RFMScore) Digits() (r, f, m int) {
	return s.Composite / 100, (s.Composite / 10) % 10, s.Composite % 10
}

// Point est une coordonnée dans l'espace des features (recency, frequency, monetary).
type Point [3]float64

// ScaledFeatureVector est la version centrée-réduite d'un CustomerAggregate.
// Recency est inversée : plus la valeur est grande, plus le client est récent.
type ScaledFeatureVector struct {
	CustomerID string
	Recency    float64
	Frequency  float64
	Monetary   float64
}

func (v ScaledFeatureVector) Point() Point {
	return Point{v.Recency, v.Frequency, v.Monetary}
}

// ScaledFeatures regroupe les vecteurs et les dimensions écartées faute de variance.
type ScaledFeatures struct {
	Vectors []ScaledFeatureVector
	Dropped []Dimension
	Mean    [3]float64
	StdDev  [3]float64
}

// ClusterResult est le résultat d'un k-means pour un k donné.
type ClusterResult struct {
	K          int
	Centroids  []Point
	Assignment map[string]int // customer_id → index de cluster
	Labels     []int          // même ordre que les vecteurs en entrée
	Inertia    float64
	History    []float64 // inertie après chaque étape d'affectation
	Iterations int
	Converged  bool
	Restart    int // index du restart retenu
}

// Warning renvoie un *ConvergenceWarning si le plafond d'itérations a été atteint.
func (r *ClusterResult) Warning() error {
	if r == nil || r.Converged {
		return nil
	}
	return &ConvergenceWarning{K: r.K, Iterations: r.Iterations, Inertia: r.Inertia}
}

// Sizes compte les clients par cluster.
func (r *ClusterResult) Sizes() []int {
	sizes := make([]int, r.K)
	for _, l := range r.Labels {
		sizes[l]++
	}
	return sizes
}

// DispersionPoint est un point de la courbe du coude.
type DispersionPoint struct {
	K         int
	Inertia   float64
	Converged bool
	Err       error // non nil si ce k a échoué ; les autres k ne sont pas affectés
}

// SegmentProfile résume un cluster en valeurs brutes.
type SegmentProfile struct {
	Cluster       int
	CustomerCount int
	MeanRecency   float64
	MeanFrequency float64
	MeanMonetary  decimal.Decimal
}

// CustomerRow est une ligne de la table par client.
type CustomerRow struct {
	Aggregate CustomerAggregate
	Score     RFMScore
	Cluster   int
}

// Report contient toutes les sorties d'une exécution.
type Report struct {
	RunID        uuid.UUID
	AnalysisDate time.Time
	Customers    []CustomerRow
	Curve        []DispersionPoint
	Result       *ClusterResult
	Profiles     []SegmentProfile
	Dropped      []Dimension
}

/*
CONFIG → paramètres globaux
*/

// Config contient les paramètres de la fonction de calcul.
type Config struct {
	// zéro → dernière date de facture observée
	AnalysisDate time.Time

	Bins int `validate:"min=1,max=9"`
	// DegenerateInputError plutôt que des bins fusionnés
	StrictBins bool
	// écarte une dimension sans variance au lieu d'échouer
	DropDegenerate bool

	K        int `validate:"min=1"`
	KMin     int `validate:"min=1"`
	KMax     int `validate:"min=1,gtefield=KMin"`
	Restarts int `validate:"min=1"`
	MaxIter  int `validate:"min=1"`
	Seed     uint64
	Workers  int `validate:"min=0"` // 0 → GOMAXPROCS

	Verbose bool // Flag pour activer les logs détaillés.
}
