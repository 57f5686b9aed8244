// Package cashflow builds the payment schedule of a swap leg.
package cashflow

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradebook-core/internal/apperr"
	"tradebook-core/pkg/db"
)

// DefaultIntervalMonths applies when a leg has no schedule.
const DefaultIntervalMonths = 3

// Scale is the number of fractional digits kept in payment values.
const Scale = 10

var (
	hundred     = decimal.NewFromInt(100)
	twelve      = decimal.NewFromInt(12)
	monthsRegex = regexp.MustCompile(`^(\d+)[mM]$`)
)

// ParseSchedule converts a schedule name to a payment interval in months.
func ParseSchedule(schedule string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(schedule))
	switch s {
	case "":
		return DefaultIntervalMonths, nil
	case "monthly":
		return 1, nil
	case "quarterly":
		return 3, nil
	case "semi-annually", "semiannually", "half-yearly":
		return 6, nil
	case "annually", "yearly":
		return 12, nil
	}
	if m := monthsRegex.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return n, nil
		}
	}
	return 0, apperr.Malformed("Invalid schedule format: %s. Supported formats: Monthly, Quarterly, Semi-annually, Annually, or 1M, 3M, 6M, 12M", schedule)
}

// PaymentDates lists start + k*interval months (k >= 1) up to and including
// maturity. Days past the end of a shorter month clamp to its last day.
func PaymentDates(start, maturity time.Time, intervalMonths int) []time.Time {
	if intervalMonths <= 0 || start.IsZero() || maturity.IsZero() {
		return nil
	}
	var dates []time.Time
	for k := 1; ; k++ {
		d := addMonths(start, k*intervalMonths)
		if d.After(maturity) {
			return dates
		}
		dates = append(dates, d)
	}
}

// addMonths adds n calendar months, clamping the day to the target month's length.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, t.Location())
}

// PaymentValue is the simple-interest accrual for one period:
// notional * (rate/100) * months / 12, rounded half-up to Scale digits.
// Floating legs pay zero until fixed.
func PaymentValue(legType string, notional, rate decimal.Decimal, intervalMonths int) decimal.Decimal {
	switch strings.ToUpper(strings.TrimSpace(legType)) {
	case "FIXED":
		months := decimal.NewFromInt(int64(intervalMonths))
		return rate.DivRound(hundred, Scale).
			Mul(notional).
			Mul(months).
			DivRound(twelve, Scale)
	default:
		return decimal.Zero
	}
}

// Generate computes (without storing) the cashflows for a leg.
func Generate(leg db.TradeLeg, start, maturity time.Time, now time.Time) ([]db.Cashflow, error) {
	interval, err := ParseSchedule(leg.Schedule)
	if err != nil {
		return nil, err
	}
	rate := leg.Rate.Decimal
	if !leg.Rate.Valid {
		rate = decimal.Zero
	}
	value := PaymentValue(leg.LegType, leg.Notional, rate, interval)

	dates := PaymentDates(start, maturity, interval)
	out := make([]db.Cashflow, 0, len(dates))
	for _, d := range dates {
		out = append(out, db.Cashflow{
			LegID:        leg.ID,
			ValueDate:    d,
			PaymentValue: value,
			Rate:         leg.Rate,
			PayRec:       leg.PayReceive,
			PaymentBDC:   leg.PaymentBDC,
			Active:       true,
			CreatedDate:  now,
		})
	}
	return out, nil
}

// Writer is the storage the generator appends to.
type Writer interface {
	InsertCashflow(ctx context.Context, c *db.Cashflow) error
}

// GenerateAndStore computes the leg's cashflows and inserts them. Calling it
// twice for the same leg inserts the rows twice.
func GenerateAndStore(ctx context.Context, w Writer, leg *db.TradeLeg, start, maturity, now time.Time) error {
	flows, err := Generate(*leg, start, maturity, now)
	if err != nil {
		return err
	}
	for i := range flows {
		if err := w.InsertCashflow(ctx, &flows[i]); err != nil {
			return fmt.Errorf("store cashflow for leg %d: %w", leg.ID, err)
		}
	}
	leg.Cashflows = append(leg.Cashflows, flows...)
	return nil
}
