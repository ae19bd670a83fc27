package calculator

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"rfm-segments/pkg/cluster"
	"rfm-segments/pkg/database"
	"rfm-segments/pkg/models"
	"rfm-segments/pkg/rfm"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

const (
	tableName = "InvoiceLines"

	defaultK    = 4
	defaultKMin = 1
	defaultKMax = 10
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RunFromDB charge les lignes de facture des mois [startMonth ; endMonth] (MMYYYY) puis exécute Run.
func RunFromDB(ctx context.Context, db *sql.DB, startMonth, endMonth string, cfg models.Config) (*models.Report, error) {
	start, err := parseMonth(startMonth)
	if err != nil {
		return nil, fmt.Errorf("start_month: %w", err)
	}
	end, err := parseMonth(endMonth)
	if err != nil {
		return nil, fmt.Errorf("end_month: %w", err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end_month < start_month")
	}

	txs, err := database.LoadTransactions(ctx, db, tableName, start, end.AddDate(0, 1, 0))
	if err != nil {
		return nil, fmt.Errorf("load %s..%s: %w", formatMonth(start), formatMonth(end), err)
	}
	if cfg.Verbose {
		log.Printf("[INFO] %s..%s -> %d transactions", formatMonth(start), formatMonth(end), len(txs))
	}
	return Run(ctx, txs, cfg)
}

// Run enchaîne agrégation → scores → normalisation → courbe du coude → k-means final → profils.
// Les erreurs d'agrégation, de score et de normalisation interrompent le calcul ;
// un k invalide dans la courbe est seulement consigné.
func Run(ctx context.Context, txs []models.Transaction, cfg models.Config) (*models.Report, error) {
	cfg = withDefaults(cfg)
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", &models.ValidationError{Field: "config", Reason: err.Error()})
	}

	analysisDate := cfg.AnalysisDate
	if analysisDate.IsZero() {
		analysisDate = rfm.LatestInvoiceDate(txs)
	}

	aggs, err := rfm.Aggregate(txs, analysisDate)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	scores, err := rfm.Score(aggs, rfm.ScoreOptions{Bins: cfg.Bins, Strict: cfg.StrictBins})
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	features, err := rfm.Scale(aggs, rfm.ScaleOptions{DropDegenerate: cfg.DropDegenerate})
	if err != nil {
		return nil, fmt.Errorf("scale: %w", err)
	}
	if cfg.Verbose {
		log.Printf("[INFO] analysis_date=%s customers=%d dropped=%v", analysisDate.Format("2006-01-02"), len(aggs), features.Dropped)
	}
	if len(aggs) == 0 {
		return &models.Report{RunID: uuid.New(), AnalysisDate: analysisDate, Customers: []models.CustomerRow{}}, nil
	}

	opts := cluster.Options{
		Restarts: cfg.Restarts,
		MaxIter:  cfg.MaxIter,
		Seed:     cfg.Seed,
		Workers:  cfg.Workers,
	}

	bar := newBar(cfg.KMax-cfg.KMin+1, cfg.Verbose)
	curve, err := cluster.Sweep(ctx, features.Vectors, cfg.KMin, cfg.KMax, opts,
		cluster.WithProgress(func(int) { _ = bar.Add(1) }))
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}
	if cfg.Verbose {
		for _, p := range curve {
			if p.Err != nil {
				log.Printf("[DEBUG] k=%d skipped: %v", p.K, p.Err)
				continue
			}
			log.Printf("[DEBUG] k=%d inertia=%.6f converged=%t", p.K, p.Inertia, p.Converged)
		}
	}

	opts.K = cfg.K
	res, err := cluster.KMeans(ctx, features.Vectors, opts)
	if err != nil {
		return nil, fmt.Errorf("kmeans k=%d: %w", cfg.K, err)
	}
	if w := res.Warning(); w != nil {
		log.Printf("[WARN] %v", w)
	}

	profiles, err := cluster.Profile(res, aggs)
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}

	rows := make([]models.CustomerRow, len(aggs))
	for i, a := range aggs {
		rows[i] = models.CustomerRow{Aggregate: a, Score: scores[i], Cluster: res.Assignment[a.CustomerID]}
	}

	if cfg.Verbose {
		for _, p := range profiles {
			log.Printf("[INFO] cluster %d -> clients=%d recency=%.2f frequency=%.2f monetary=%s",
				p.Cluster, p.CustomerCount, p.MeanRecency, p.MeanFrequency, p.MeanMonetary.StringFixed(2))
		}
	}

	return &models.Report{
		RunID:        uuid.New(),
		AnalysisDate: analysisDate,
		Customers:    rows,
		Curve:        curve,
		Result:       res,
		Profiles:     profiles,
		Dropped:      features.Dropped,
	}, nil
}

func withDefaults(cfg models.Config) models.Config {
	if cfg.Bins == 0 {
		cfg.Bins = rfm.DefaultBins
	}
	if cfg.K == 0 {
		cfg.K = defaultK
	}
	if cfg.KMin == 0 {
		cfg.KMin = defaultKMin
	}
	if cfg.KMax == 0 {
		cfg.KMax = defaultKMax
	}
	if cfg.Restarts == 0 {
		cfg.Restarts = cluster.DefaultRestarts
	}
	if cfg.MaxIter == 0 {
		cfg.MaxIter = cluster.DefaultMaxIter
	}
	return cfg
}

func newBar(n int, verbose bool) *progressbar.ProgressBar {
	var w io.Writer = io.Discard
	if verbose {
		w = os.Stderr
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("k sweep"),
		progressbar.OptionShowCount(),
	)
}

// parseMonth("MMYYYY") -> 1er jour du mois UTC
func parseMonth(mmyyyy string) (time.Time, error) {
	if len(mmyyyy) != 6 {
		return time.Time{}, fmt.Errorf("format attendu MMYYYY (ex: 012025)")
	}
	for _, c := range mmyyyy {
		if c < '0' || c > '9' {
			return time.Time{}, fmt.Errorf("format attendu MMYYYY (ex: 012025)")
		}
	}
	month := int(mmyyyy[0]-'0')*10 + int(mmyyyy[1]-'0')
	year := int(mmyyyy[2]-'0')*1000 + int(mmyyyy[3]-'0')*100 + int(mmyyyy[4]-'0')*10 + int(mmyyyy[5]-'0')
	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("mois invalide")
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
}

func formatMonth(t time.Time) string {
	return fmt.Sprintf("%02d/%04d", int(t.Month()), t.Year())
}
