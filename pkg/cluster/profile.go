package cluster

import (
	"fmt"

	"rfm-segments/pkg/models"

	"github.com/shopspring/decimal"
)

// Profile calcule, pour chaque cluster, l'effectif et la moyenne simple des
// valeurs RFM brutes de ses clients.
func Profile(res *models.ClusterResult, aggs []models.CustomerAggregate) ([]models.SegmentProfile, error) {
	if res == nil {
		return nil, &models.ValidationError{Field: "cluster_result", Reason: "nil"}
	}

	byID := make(map[string]models.CustomerAggregate, len(aggs))
	for _, a := range aggs {
		byID[a.CustomerID] = a
	}

	recency := make([]int, res.K)
	frequency := make([]int, res.K)
	monetary := make([]decimal.Decimal, res.K)
	counts := make([]int, res.K)
	for id, c := range res.Assignment {
		a, ok := byID[id]
		if !ok {
			return nil, &models.ValidationError{Field: "assignment", Reason: fmt.Sprintf("customer %s has no aggregate", id)}
		}
		if c < 0 || c >= res.K {
			return nil, &models.ValidationError{Field: "assignment", Reason: fmt.Sprintf("cluster %d out of range for customer %s", c, id)}
		}
		counts[c]++
		recency[c] += a.RecencyDays
		frequency[c] += a.Frequency
		monetary[c] = monetary[c].Add(a.Monetary)
	}

	out := make([]models.SegmentProfile, res.K)
	for c := range out {
		out[c] = models.SegmentProfile{Cluster: c, CustomerCount: counts[c]}
		if counts[c] == 0 {
			continue
		}
		n := float64(counts[c])
		out[c].MeanRecency = float64(recency[c]) / n
		out[c].MeanFrequency = float64(frequency[c]) / n
		out[c].MeanMonetary = monetary[c].Div(decimal.NewFromInt(int64(counts[c])))
	}
	return out, nil
}
