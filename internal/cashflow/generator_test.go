package cashflow

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradebook-core/internal/apperr"
	"tradebook-core/pkg/db"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseSchedule(t *testing.T) {
	cases := map[string]int{
		"":              3,
		"Monthly":       1,
		"QUARTERLY":     3,
		"Semi-annually": 6,
		"semiannually":  6,
		"half-yearly":   6,
		"Annually":      12,
		"yearly":        12,
		"1M":            1,
		"6m":            6,
		" 12M ":         12,
	}
	for in, want := range cases {
		got, err := ParseSchedule(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"fortnightly", "M", "0M", "-3M", "3W"} {
		_, err := ParseSchedule(bad)
		require.Error(t, err, bad)
		assert.Equal(t, apperr.KindMalformedInput, apperr.KindOf(err), bad)
	}
}

func TestPaymentValueScenarios(t *testing.T) {
	// 10,000,000 at 3.5% quarterly
	v := PaymentValue("Fixed", decimal.NewFromInt(10_000_000), decimal.RequireFromString("3.5"), 3)
	assert.Equal(t, "87500", v.String())

	// 1,000,000 at 5% monthly, half-up to 10 places
	v = PaymentValue("FIXED", decimal.NewFromInt(1_000_000), decimal.RequireFromString("5.0"), 1)
	assert.Equal(t, "4166.6666666667", v.String())

	v = PaymentValue("Floating", decimal.NewFromInt(1_000_000), decimal.RequireFromString("5.0"), 1)
	assert.True(t, v.IsZero())
}

func TestPaymentDatesMonthlyForAYear(t *testing.T) {
	dates := PaymentDates(date(2025, 1, 17), date(2026, 1, 17), 1)
	require.Len(t, dates, 12)
	assert.Equal(t, date(2025, 2, 17), dates[0], "first payment is one interval after start")
	assert.Equal(t, date(2026, 1, 17), dates[11], "maturity itself is included")
}

func TestPaymentDatesClampToMonthEnd(t *testing.T) {
	dates := PaymentDates(date(2025, 1, 31), date(2025, 5, 31), 1)
	assert.Equal(t, []time.Time{
		date(2025, 2, 28),
		date(2025, 3, 31),
		date(2025, 4, 30),
		date(2025, 5, 31),
	}, dates)
}

func TestPaymentDatesEdgeCases(t *testing.T) {
	assert.Empty(t, PaymentDates(date(2025, 1, 1), date(2025, 2, 28), 3), "maturity before first payment")
	assert.Empty(t, PaymentDates(time.Time{}, date(2025, 2, 28), 3))
	assert.Empty(t, PaymentDates(date(2025, 1, 1), date(2026, 1, 1), 0))
}

type memWriter struct {
	rows []db.Cashflow
}

func (m *memWriter) InsertCashflow(_ context.Context, c *db.Cashflow) error {
	c.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, *c)
	return nil
}

func TestGenerateAndStoreDuplicatesOnRerun(t *testing.T) {
	leg := &db.TradeLeg{
		ID:         7,
		Notional:   decimal.NewFromInt(10_000_000),
		Rate:       decimal.NewNullDecimal(decimal.RequireFromString("3.5")),
		LegType:    "Fixed",
		PayReceive: "Pay",
		Schedule:   "Quarterly",
		PaymentBDC: "Following",
	}
	w := &memWriter{}
	now := time.Now()
	start, maturity := date(2025, 1, 17), date(2026, 1, 17)

	require.NoError(t, GenerateAndStore(context.Background(), w, leg, start, maturity, now))
	require.Len(t, w.rows, 4)
	for _, cf := range w.rows {
		assert.Equal(t, int64(7), cf.LegID)
		assert.Equal(t, "Pay", cf.PayRec)
		assert.Equal(t, "Following", cf.PaymentBDC)
		assert.True(t, cf.PaymentValue.Equal(decimal.NewFromInt(87500)))
		assert.True(t, cf.Rate.Decimal.Equal(decimal.RequireFromString("3.5")))
		assert.True(t, cf.Active)
	}

	require.NoError(t, GenerateAndStore(context.Background(), w, leg, start, maturity, now))
	assert.Len(t, w.rows, 8)
	assert.Len(t, leg.Cashflows, 8)
}

func TestGenerateRejectsBadSchedule(t *testing.T) {
	_, err := Generate(db.TradeLeg{Schedule: "every so often"}, date(2025, 1, 1), date(2026, 1, 1), time.Now())
	assert.True(t, apperr.IsKind(err, apperr.KindMalformedInput))
}
