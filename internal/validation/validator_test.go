package validation

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradebook-core/internal/refdata"
	"tradebook-core/internal/trade"
	"tradebook-core/pkg/db"
)

type stubRefs struct {
	active map[string]map[int64]bool // kind -> id -> active
	users  map[int64]bool
}

func (s stubRefs) RefExistsActive(_ context.Context, kind string, id int64) (bool, error) {
	return s.active[kind][id], nil
}

func (s stubRefs) UserExistsActive(_ context.Context, id int64) (bool, error) {
	return s.users[id], nil
}

func (s stubRefs) FindRefByName(_ context.Context, kind, name string) (*db.RefEntity, error) {
	if strings.EqualFold(name, "unknown") {
		return nil, nil
	}
	return &db.RefEntity{Kind: kind, ID: 1, Name: name, Active: true}, nil
}

func (s stubRefs) FindRefByID(_ context.Context, kind string, id int64) (*db.RefEntity, error) {
	if _, ok := s.active[kind][id]; !ok {
		return nil, nil
	}
	return &db.RefEntity{Kind: kind, ID: id, Active: s.active[kind][id]}, nil
}

var today = time.Date(2025, 2, 10, 15, 30, 0, 0, time.UTC)

func newValidator() *Validator {
	refs := stubRefs{
		active: map[string]map[int64]bool{
			db.KindBook:         {1: true, 5: false},
			db.KindCounterparty: {1: true},
			db.KindTradeSubType: {1: true},
		},
		users: map[int64]bool{1: true, 6: false},
	}
	return New(refs, WithClock(func() time.Time { return today }))
}

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func validLegs() []trade.LegInput {
	return []trade.LegInput{
		{
			Notional:   dec("1000000"),
			Rate:       dec("3.5"),
			PayReceive: refdata.ByName("Pay"),
			LegType:    refdata.ByName("Fixed"),
			Currency:   refdata.ByName("USD"),
		},
		{
			Notional:   dec("1000000.00"),
			PayReceive: refdata.ByName("Receive"),
			LegType:    refdata.ByName("Floating"),
			Currency:   refdata.ByName("usd"),
			Index:      refdata.ByName("SOFR"),
		},
	}
}

func validInput() trade.Input {
	d := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	return trade.Input{
		TradeDate:    d,
		StartDate:    d,
		MaturityDate: d.AddDate(1, 0, 0),
		Book:         refdata.ByID(1),
		Counterparty: refdata.ByID(1),
		Trader:       refdata.ByID(1),
		Legs:         validLegs(),
	}
}

func TestValidTradePasses(t *testing.T) {
	res, err := newValidator().ValidateTradeBusinessRules(context.Background(), validInput())
	require.NoError(t, err)
	assert.True(t, res.Successful(), res.ErrorMessage())
	assert.Equal(t, "Validation successful.", res.ErrorMessage())
}

func TestTradeDateTooOld(t *testing.T) {
	in := validInput()
	in.TradeDate = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC) // 31 days before today
	in.StartDate = in.TradeDate

	res, err := newValidator().ValidateTradeBusinessRules(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, res.Successful())
	assert.Contains(t, res.ErrorMessage(), "Trade Date (2025-01-10) is more than 30 days in the past.")

	in.TradeDate = time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC) // exactly 30 days is fine
	res, err = newValidator().ValidateTradeBusinessRules(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, res.Successful(), res.ErrorMessage())
}

func TestStartDateBeforeTradeDate(t *testing.T) {
	in := validInput()
	in.StartDate = time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC)
	in.Trader = refdata.ByID(6)

	res, err := newValidator().ValidateTradeBusinessRules(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Start Date (2025-01-17) cannot be before Trade Date (2025-02-01).",
		"Trader user is inactive or does not exist (ID: 6).",
	}, res.Errors())

	in = validInput()
	in.StartDate = in.TradeDate.AddDate(0, 0, 2)
	res, err = newValidator().ValidateTradeBusinessRules(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, res.Successful(), res.ErrorMessage())
}

func TestCollectsEveryError(t *testing.T) {
	in := trade.Input{
		StartDate:    time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		MaturityDate: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		Book:         refdata.ByID(5),
		Trader:       refdata.ByID(6),
		TradeSubType: refdata.ByName("unknown"),
		Legs:         validLegs()[:1],
	}

	res, err := newValidator().ValidateTradeBusinessRules(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Trade Date, Start Date, and Maturity Date are mandatory.",
		"Maturity Date (2025-02-01) cannot be before Start Date (2025-03-01).",
		"Trader user is inactive or does not exist (ID: 6).",
		"Trade Book is inactive or does not exist (ID: 5).",
		"Counterparty ID is mandatory.",
		"Trade Sub Type is invalid or does not exist (Name: unknown).",
		"A trade must contain exactly two legs.",
	}, res.Errors())
}

func TestLegConsistencyRules(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(legs []trade.LegInput)
		want   string
	}{
		{"same flags", func(l []trade.LegInput) { l[1].PayReceive = refdata.ByName("PAY") },
			"Both legs must have opposite Pay/Receive flags"},
		{"missing flag", func(l []trade.LegInput) { l[0].PayReceive = refdata.Lookup{} },
			"Both legs must have opposite Pay/Receive flags"},
		{"notional differs", func(l []trade.LegInput) { l[1].Notional = dec("999999.99") },
			"Notional values must be identical across both legs."},
		{"missing notional", func(l []trade.LegInput) { l[0].Notional = decimal.NullDecimal{} },
			"Notional values must be identical across both legs."},
		{"currency differs", func(l []trade.LegInput) { l[1].Currency = refdata.ByName("EUR") },
			"Currency must be identical across both legs for a standard swap."},
		{"floating without index", func(l []trade.LegInput) { l[1].Index = refdata.Lookup{} },
			"Leg 2: Floating leg missing required index specification (Name or ID)."},
		{"fixed without rate", func(l []trade.LegInput) { l[0].Rate = decimal.NullDecimal{} },
			"Leg 1: Fixed leg missing required rate specification."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			legs := validLegs()
			tc.mutate(legs)
			res := ValidateTradeLegConsistency(legs)
			assert.False(t, res.Successful())
			assert.Contains(t, res.ErrorMessage(), tc.want)
		})
	}
}

func TestUnknownLegTypeRejected(t *testing.T) {
	legs := validLegs()
	legs[0].LegType = refdata.ByName("Fixd")
	legs[0].Rate = decimal.NullDecimal{}

	res := ValidateTradeLegConsistency(legs)
	assert.Equal(t, []string{"Leg 1: Leg rate type is invalid or does not exist (Name: Fixd)."}, res.Errors())

	// Unnamed types are left to reference resolution.
	legs[0].LegType = refdata.ByID(1)
	assert.True(t, ValidateTradeLegConsistency(legs).Successful())
}

// Randomized leg pairs: any pair breaking the flag, notional or currency
// rule must fail, and every other pair must pass.
func TestLegConsistencyRandomPairs(t *testing.T) {
	rng := rand.New(rand.NewSource(20250210))
	flags := []string{"Pay", "Receive", "PAY", "receive", ""}
	currencies := []string{"USD", "usd", "EUR", "GBP", ""}
	notionals := []string{"1000000", "1000000.00", "2500000", "999999.99", ""}

	pick := func(vals []string) string { return vals[rng.Intn(len(vals))] }
	lookup := func(name string) refdata.Lookup {
		if name == "" {
			return refdata.Lookup{}
		}
		return refdata.ByName(name)
	}
	amount := func(v string) decimal.NullDecimal {
		if v == "" {
			return decimal.NullDecimal{}
		}
		return dec(v)
	}

	rejected := 0
	for i := 0; i < 2000; i++ {
		legs := validLegs()
		f1, f2 := pick(flags), pick(flags)
		c1, c2 := pick(currencies), pick(currencies)
		n1, n2 := pick(notionals), pick(notionals)
		legs[0].PayReceive, legs[1].PayReceive = lookup(f1), lookup(f2)
		legs[0].Currency, legs[1].Currency = lookup(c1), lookup(c2)
		legs[0].Notional, legs[1].Notional = amount(n1), amount(n2)

		badFlags := f1 == "" || f2 == "" || strings.EqualFold(f1, f2)
		badCurrency := c1 == "" || c2 == "" || !strings.EqualFold(c1, c2)
		badNotional := n1 == "" || n2 == "" || !decimal.RequireFromString(n1).Equal(decimal.RequireFromString(n2))

		res := ValidateTradeLegConsistency(legs)
		if badFlags || badCurrency || badNotional {
			rejected++
			assert.False(t, res.Successful(), "pair %d accepted: flags %q/%q currency %q/%q notional %q/%q", i, f1, f2, c1, c2, n1, n2)
			continue
		}
		assert.True(t, res.Successful(), "pair %d rejected: %s", i, res.ErrorMessage())
	}
	assert.Greater(t, rejected, 0)
	assert.Less(t, rejected, 2000)
}

func TestFloatingIndexByIDIsEnough(t *testing.T) {
	legs := validLegs()
	legs[1].Index = refdata.ByID(3)
	legs[1].LegType = refdata.ByName("FLOAT")
	assert.True(t, ValidateTradeLegConsistency(legs).Successful())
}

func TestImplicitMaturityMismatch(t *testing.T) {
	legs := validLegs()
	legs[0].Cashflows = []trade.CashflowInput{
		{ValueDate: time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)},
		{ValueDate: time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)},
	}
	legs[1].Cashflows = []trade.CashflowInput{
		{ValueDate: time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)},
		{ValueDate: time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)},
	}

	res := ValidateTradeLegConsistency(legs)
	assert.False(t, res.Successful())
	assert.Contains(t, res.ErrorMessage(), "Implicit Maturity Date (last cashflow value date) must be identical across both legs.")

	legs[1].Cashflows = legs[0].Cashflows
	assert.True(t, ValidateTradeLegConsistency(legs).Successful())
}

func TestImplicitMaturityNeedsBothLegs(t *testing.T) {
	legs := validLegs()
	legs[1].Cashflows = []trade.CashflowInput{{}}

	res := ValidateTradeLegConsistency(legs)
	assert.Contains(t, res.ErrorMessage(), "Cashflows must be provided on both legs to determine implicit maturity.")
}

func TestMaxTradeAgeOption(t *testing.T) {
	v := New(stubRefs{
		active: map[string]map[int64]bool{db.KindBook: {1: true}, db.KindCounterparty: {1: true}},
		users:  map[int64]bool{1: true},
	}, WithClock(func() time.Time { return today }), WithMaxTradeAge(5))

	in := validInput() // 9 days old
	res, err := v.ValidateTradeBusinessRules(context.Background(), in)
	require.NoError(t, err)
	assert.Contains(t, res.ErrorMessage(), "is more than 5 days in the past.")
}
