// Package rfm construit les vues Récence/Fréquence/Montant par client à partir des
// transactions nettoyées : agrégats bruts, scores par quantiles et features centrées-réduites.
package rfm

import (
	"fmt"
	"sort"
	"time"

	"rfm-segments/pkg/models"

	"github.com/shopspring/decimal"
)

type accumulator struct {
	latest   time.Time
	invoices map[string]struct{}
	monetary decimal.Decimal
}

// Aggregate regroupe les transactions par client.
// Le résultat est trié par CustomerID pour que les étapes suivantes soient déterministes.
func Aggregate(txs []models.Transaction, analysisDate time.Time) ([]models.CustomerAggregate, error) {
	if len(txs) == 0 {
		return []models.CustomerAggregate{}, nil
	}
	if analysisDate.IsZero() {
		return nil, &models.ValidationError{Field: "analysis_date", Reason: "must be set"}
	}

	byCustomer := make(map[string]*accumulator)
	for i, tx := range txs {
		if err := validateTransaction(i, tx); err != nil {
			return nil, err
		}
		acc, ok := byCustomer[tx.CustomerID]
		if !ok {
			acc = &accumulator{invoices: make(map[string]struct{})}
			byCustomer[tx.CustomerID] = acc
		}
		if tx.InvoiceDate.After(acc.latest) {
			acc.latest = tx.InvoiceDate
		}
		acc.invoices[tx.InvoiceID] = struct{}{}
		acc.monetary = acc.monetary.Add(tx.Amount())
	}

	out := make([]models.CustomerAggregate, 0, len(byCustomer))
	for id, acc := range byCustomer {
		days := daysBetween(acc.latest, analysisDate)
		if days < 0 {
			return nil, &models.ValidationError{
				Field:  "analysis_date",
				Reason: fmt.Sprintf("%s precedes last invoice %s of customer %s", formatDay(analysisDate), formatDay(acc.latest), id),
			}
		}
		out = append(out, models.CustomerAggregate{
			CustomerID:  id,
			RecencyDays: days,
			Frequency:   len(acc.invoices),
			Monetary:    acc.monetary,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out, nil
}

// LatestInvoiceDate renvoie la date d'analyse conventionnelle (dernière facture observée).
func LatestInvoiceDate(txs []models.Transaction) time.Time {
	var latest time.Time
	for _, tx := range txs {
		if tx.InvoiceDate.After(latest) {
			latest = tx.InvoiceDate
		}
	}
	return latest
}

func validateTransaction(i int, tx models.Transaction) error {
	field := func(name string) string { return fmt.Sprintf("transactions[%d].%s", i, name) }
	switch {
	case tx.CustomerID == "":
		return &models.ValidationError{Field: field("customer_id"), Reason: "empty"}
	case tx.InvoiceID == "":
		return &models.ValidationError{Field: field("invoice_id"), Reason: "empty"}
	case tx.InvoiceDate.IsZero():
		return &models.ValidationError{Field: field("invoice_date"), Reason: "empty"}
	case tx.Quantity < 0:
		return &models.ValidationError{Field: field("quantity"), Reason: "negative"}
	case tx.UnitPrice.IsNegative():
		return &models.ValidationError{Field: field("unit_price"), Reason: "negative"}
	}
	return nil
}

// daysBetween compte les jours calendaires (UTC) de from à to.
func daysBetween(from, to time.Time) int {
	a := truncateDay(from)
	b := truncateDay(to)
	return int(b.Sub(a).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func formatDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
