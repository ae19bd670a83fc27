package database

import (
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validLine() rawLine {
	return rawLine{
		CustomerID:  sql.NullString{String: " 12345 ", Valid: true},
		InvoiceID:   sql.NullString{String: "536365", Valid: true},
		Quantity:    sql.NullInt64{Int64: 6, Valid: true},
		UnitPrice:   decimal.NullDecimal{Decimal: decimal.RequireFromString("2.55"), Valid: true},
		InvoiceDate: sql.NullTime{Time: time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC), Valid: true},
	}
}

func TestClean(t *testing.T) {
	t.Run("keeps valid line and trims customer", func(t *testing.T) {
		tx, ok := clean(validLine())
		require.True(t, ok)
		assert.Equal(t, "12345", tx.CustomerID)
		assert.Equal(t, "536365", tx.InvoiceID)
		assert.Equal(t, int64(6), tx.Quantity)
		assert.True(t, tx.Amount().Equal(decimal.RequireFromString("15.30")))
	})

	tests := []struct {
		name   string
		mutate func(*rawLine)
	}{
		{"null customer", func(r *rawLine) { r.CustomerID.Valid = false }},
		{"blank customer", func(r *rawLine) { r.CustomerID.String = "  " }},
		{"null invoice", func(r *rawLine) { r.InvoiceID.Valid = false }},
		{"null date", func(r *rawLine) { r.InvoiceDate.Valid = false }},
		{"negative quantity", func(r *rawLine) { r.Quantity.Int64 = -1 }},
		{"null quantity", func(r *rawLine) { r.Quantity.Valid = false }},
		{"negative price", func(r *rawLine) { r.UnitPrice.Decimal = decimal.RequireFromString("-0.01") }},
		{"null price", func(r *rawLine) { r.UnitPrice.Valid = false }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validLine()
			tt.mutate(&r)
			_, ok := clean(r)
			assert.False(t, ok)
		})
	}
}
