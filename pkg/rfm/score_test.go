package rfm

import (
	"testing"

	"rfm-segments/pkg/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agg(id string, recency, frequency int, monetary string) models.CustomerAggregate {
	return models.CustomerAggregate{
		CustomerID:  id,
		RecencyDays: recency,
		Frequency:   frequency,
		Monetary:    decimal.RequireFromString(monetary),
	}
}

func TestScore_Extremes(t *testing.T) {
	aggs := []models.CustomerAggregate{
		agg("best", 1, 10, "1000"),
		agg("good", 2, 9, "950"),
		agg("lost", 400, 1, "5"),
	}
	scores, err := Score(aggs, ScoreOptions{Bins: 5})
	require.NoError(t, err)

	lost := scores[2]
	assert.Equal(t, 1, lost.RecencyScore)
	assert.Equal(t, 1, lost.FrequencyScore)
	assert.Equal(t, 1, lost.MonetaryScore)
	assert.Equal(t, 111, lost.Composite)

	best := scores[0]
	assert.Equal(t, 5, best.RecencyScore)
	assert.Equal(t, 5, best.FrequencyScore)
	assert.Equal(t, 5, best.MonetaryScore)
	assert.Equal(t, 555, best.Composite)

	good := scores[1]
	assert.GreaterOrEqual(t, good.FrequencyScore, 3)
	assert.GreaterOrEqual(t, good.MonetaryScore, 3)
	assert.LessOrEqual(t, good.RecencyScore, best.RecencyScore)
}

func TestScore_EqualSizedBins(t *testing.T) {
	aggs := make([]models.CustomerAggregate, 100)
	for i := range aggs {
		aggs[i] = agg("c", i, i+1, decimal.NewFromInt(int64(i)).String())
	}
	scores, err := Score(aggs, ScoreOptions{Bins: 5})
	require.NoError(t, err)

	counts := map[int]int{}
	for _, s := range scores {
		counts[s.FrequencyScore]++
	}
	for b := 1; b <= 5; b++ {
		assert.InDelta(t, 20, counts[b], 1, "bin %d", b)
	}
	assert.Equal(t, 5, scores[0].RecencyScore)
	assert.Equal(t, 1, scores[99].RecencyScore)
}

func TestScore_TiesShareABin(t *testing.T) {
	aggs := []models.CustomerAggregate{
		agg("a", 5, 1, "10"),
		agg("b", 5, 1, "10"),
		agg("c", 5, 1, "10"),
		agg("d", 5, 2, "20"),
		agg("e", 9, 7, "30"),
	}
	scores, err := Score(aggs, ScoreOptions{Bins: 4})
	require.NoError(t, err)
	for i := 1; i < 3; i++ {
		assert.Equal(t, scores[0].Composite, scores[i].Composite)
	}
	assert.Equal(t, scores[0].RecencyScore, scores[3].RecencyScore)
}

func TestScore_FewerDistinctValuesThanBins(t *testing.T) {
	aggs := []models.CustomerAggregate{
		agg("a", 1, 1, "10"),
		agg("b", 2, 1, "20"),
		agg("c", 3, 2, "30"),
	}

	t.Run("merges bins by default", func(t *testing.T) {
		scores, err := Score(aggs, ScoreOptions{Bins: 5})
		require.NoError(t, err)
		assert.Equal(t, scores[0].FrequencyScore, scores[1].FrequencyScore)
		assert.Less(t, scores[1].FrequencyScore, scores[2].FrequencyScore)
	})

	t.Run("strict mode reports the dimension", func(t *testing.T) {
		_, err := Score(aggs, ScoreOptions{Bins: 5, Strict: true})
		var dErr *models.DegenerateInputError
		require.ErrorAs(t, err, &dErr)
		assert.Equal(t, models.Recency, dErr.Dimension)
		assert.ErrorIs(t, err, models.ErrDegenerateInput)
	})
}

func TestScore_BinsOutOfRange(t *testing.T) {
	for _, b := range []int{-1, 10} {
		_, err := Score([]models.CustomerAggregate{agg("a", 1, 1, "1")}, ScoreOptions{Bins: b})
		assert.ErrorIs(t, err, models.ErrValidation, "bins=%d", b)
	}
}

func TestScore_DefaultBinsAndEmpty(t *testing.T) {
	scores, err := Score(nil, ScoreOptions{})
	require.NoError(t, err)
	assert.Empty(t, scores)

	scores, err = Score([]models.CustomerAggregate{agg("a", 3, 1, "1"), agg("b", 1, 4, "9")}, ScoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, scores[1].RecencyScore)
	assert.Equal(t, 5, scores[1].FrequencyScore)
}

func TestScore_HeavyTiesAtTheEdges(t *testing.T) {
	tests := []struct {
		name      string
		frequency []int
		recency   []int
	}{
		{
			name:      "tied maximum",
			frequency: []int{1, 2, 3, 4, 5, 5, 5, 5, 5, 5},
			recency:   []int{1, 2, 3, 4, 400, 400, 400, 400, 400, 400},
		},
		{
			name:      "tied minimum",
			frequency: []int{1, 1, 1, 1, 1, 1, 2, 3, 4, 5},
			recency:   []int{0, 0, 0, 0, 0, 0, 10, 20, 30, 40},
		},
		{
			name:      "ties at both ends",
			frequency: []int{1, 1, 1, 1, 2, 3, 4, 9, 9, 9, 9, 9},
			recency:   []int{0, 0, 0, 0, 7, 8, 9, 90, 90, 90, 90, 90},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			aggs := make([]models.CustomerAggregate, len(tt.frequency))
			for i := range aggs {
				aggs[i] = agg("c", tt.recency[i], tt.frequency[i], "1")
			}
			scores, err := Score(aggs, ScoreOptions{Bins: 5})
			require.NoError(t, err)

			freqBins := map[int]int{}
			recBins := map[int]int{}
			for i, s := range scores {
				freqBins[s.FrequencyScore]++
				recBins[s.RecencyScore]++
				switch tt.frequency[i] {
				case tt.frequency[0]:
					assert.Equal(t, 1, s.FrequencyScore, "min frequency")
				case tt.frequency[len(tt.frequency)-1]:
					assert.Equal(t, 5, s.FrequencyScore, "max frequency")
				}
				switch tt.recency[i] {
				case tt.recency[0]:
					assert.Equal(t, 5, s.RecencyScore, "most recent")
				case tt.recency[len(tt.recency)-1]:
					assert.Equal(t, 1, s.RecencyScore, "least recent")
				}
			}
			// 5 valeurs distinctes ou plus : aucun bin vide
			for b := 1; b <= 5; b++ {
				assert.Positive(t, freqBins[b], "frequency bin %d: %v", b, freqBins)
				assert.Positive(t, recBins[b], "recency bin %d: %v", b, recBins)
			}
		})
	}
}

func TestScore_ManyDistinctWithLargeMiddleTie(t *testing.T) {
	// 20 clients : un gros bloc à 7 ne doit pas faire sauter de bin
	values := []int{1, 2, 3, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 8, 9, 10, 11, 12}
	aggs := make([]models.CustomerAggregate, len(values))
	for i, v := range values {
		aggs[i] = agg("c", 1, v, "1")
	}
	scores, err := Score(aggs, ScoreOptions{Bins: 5})
	require.NoError(t, err)

	seen := map[int]bool{}
	for i := 1; i < len(scores); i++ {
		assert.LessOrEqual(t, scores[i].FrequencyScore-scores[i-1].FrequencyScore, 1)
		assert.GreaterOrEqual(t, scores[i].FrequencyScore, scores[i-1].FrequencyScore)
	}
	for _, s := range scores {
		seen[s.FrequencyScore] = true
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, 1, scores[0].FrequencyScore)
	assert.Equal(t, 5, scores[len(scores)-1].FrequencyScore)
}
