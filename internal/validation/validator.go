// Package validation checks proposed trades against business rules and
// cross-leg consistency, collecting every failure instead of stopping at the first.
package validation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tradebook-core/internal/refdata"
	"tradebook-core/internal/trade"
	"tradebook-core/pkg/db"
)

// Result is the outcome of a validation pass.
type Result struct {
	errors []string
}

// AddError records a failure.
func (r *Result) AddError(msg string) { r.errors = append(r.errors, msg) }

// AddErrors records several failures.
func (r *Result) AddErrors(msgs []string) { r.errors = append(r.errors, msgs...) }

// Successful reports whether no failure was recorded.
func (r *Result) Successful() bool { return len(r.errors) == 0 }

// Errors returns the failures in the order they were found.
func (r *Result) Errors() []string { return append([]string(nil), r.errors...) }

// ErrorMessage joins failures with "; ".
func (r *Result) ErrorMessage() string {
	if r.Successful() {
		return "Validation successful."
	}
	return strings.Join(r.errors, "; ")
}

// RefChecker answers the existence questions validation needs.
type RefChecker interface {
	RefExistsActive(ctx context.Context, kind string, id int64) (bool, error)
	UserExistsActive(ctx context.Context, id int64) (bool, error)
	FindRefByName(ctx context.Context, kind, name string) (*db.RefEntity, error)
	FindRefByID(ctx context.Context, kind string, id int64) (*db.RefEntity, error)
}

// Validator runs trade business rules.
type Validator struct {
	refs       RefChecker
	now        func() time.Time
	maxAgeDays int
}

// Option tweaks a Validator.
type Option func(*Validator)

// WithClock overrides the evaluation time source.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// WithMaxTradeAge sets how many days in the past a trade date may be.
func WithMaxTradeAge(days int) Option {
	return func(v *Validator) { v.maxAgeDays = days }
}

// New builds a validator.
func New(refs RefChecker, opts ...Option) *Validator {
	v := &Validator{refs: refs, now: time.Now, maxAgeDays: 30}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateTradeBusinessRules checks dates, entity status, reference data and
// leg consistency. The error is only set when a lookup itself fails.
func (v *Validator) ValidateTradeBusinessRules(ctx context.Context, in trade.Input) (*Result, error) {
	result := &Result{}

	v.checkDates(in, result)

	if err := v.checkTrader(ctx, in.Trader, result); err != nil {
		return nil, err
	}
	if err := v.checkActiveRef(ctx, db.KindBook, in.Book, "Book ID is mandatory.", "Trade Book", result); err != nil {
		return nil, err
	}
	if err := v.checkActiveRef(ctx, db.KindCounterparty, in.Counterparty, "Counterparty ID is mandatory.", "Counterparty", result); err != nil {
		return nil, err
	}

	if err := v.checkOptionalRef(ctx, db.KindTradeStatus, in.TradeStatus, "Trade Status", result); err != nil {
		return nil, err
	}
	if err := v.checkOptionalRef(ctx, db.KindTradeType, in.TradeType, "Trade Type", result); err != nil {
		return nil, err
	}
	if err := v.checkOptionalRef(ctx, db.KindTradeSubType, in.TradeSubType, "Trade Sub Type", result); err != nil {
		return nil, err
	}

	if in.Legs != nil {
		result.AddErrors(ValidateTradeLegConsistency(in.Legs).errors)
	}
	return result, nil
}

func (v *Validator) checkDates(in trade.Input, result *Result) {
	tradeDate, start, maturity := in.TradeDate, in.StartDate, in.MaturityDate

	if tradeDate.IsZero() || start.IsZero() || maturity.IsZero() {
		result.AddError("Trade Date, Start Date, and Maturity Date are mandatory.")
	}
	if !maturity.IsZero() && !start.IsZero() && maturity.Before(start) {
		result.AddError(fmt.Sprintf("Maturity Date (%s) cannot be before Start Date (%s).", day(maturity), day(start)))
	}
	if !maturity.IsZero() && !tradeDate.IsZero() && maturity.Before(tradeDate) {
		result.AddError(fmt.Sprintf("Maturity Date (%s) cannot be before Trade Date (%s).", day(maturity), day(tradeDate)))
	}
	if !start.IsZero() && !tradeDate.IsZero() && start.Before(tradeDate) {
		result.AddError(fmt.Sprintf("Start Date (%s) cannot be before Trade Date (%s).", day(start), day(tradeDate)))
	}
	if !tradeDate.IsZero() && daysBetween(tradeDate, v.now()) > v.maxAgeDays {
		result.AddError(fmt.Sprintf("Trade Date (%s) is more than %d days in the past.", day(tradeDate), v.maxAgeDays))
	}
}

func (v *Validator) checkTrader(ctx context.Context, l refdata.Lookup, result *Result) error {
	if l.ID == 0 {
		if strings.TrimSpace(l.Name) != "" {
			result.AddError(fmt.Sprintf("Trader user is inactive or does not exist (Name: %s).", l.Name))
			return nil
		}
		result.AddError("Trader user ID is mandatory for status validation.")
		return nil
	}
	ok, err := v.refs.UserExistsActive(ctx, l.ID)
	if err != nil {
		return err
	}
	if !ok {
		result.AddError(fmt.Sprintf("Trader user is inactive or does not exist (ID: %d).", l.ID))
	}
	return nil
}

func (v *Validator) checkActiveRef(ctx context.Context, kind string, l refdata.Lookup, mandatory, label string, result *Result) error {
	if l.ID == 0 {
		if strings.TrimSpace(l.Name) != "" {
			result.AddError(fmt.Sprintf("%s is inactive or does not exist (Name: %s).", label, l.Name))
			return nil
		}
		result.AddError(mandatory)
		return nil
	}
	ok, err := v.refs.RefExistsActive(ctx, kind, l.ID)
	if err != nil {
		return err
	}
	if !ok {
		result.AddError(fmt.Sprintf("%s is inactive or does not exist (ID: %d).", label, l.ID))
	}
	return nil
}

// checkOptionalRef validates a reference only when the caller supplied one.
// An id is checked first, then a name.
func (v *Validator) checkOptionalRef(ctx context.Context, kind string, l refdata.Lookup, label string, result *Result) error {
	name := strings.TrimSpace(l.Name)
	switch {
	case l.ID != 0:
		e, err := v.refs.FindRefByID(ctx, kind, l.ID)
		if err != nil {
			return err
		}
		if e == nil {
			result.AddError(fmt.Sprintf("%s ID is invalid or does not exist (ID: %d).", label, l.ID))
		}
	case name != "":
		e, err := v.refs.FindRefByName(ctx, kind, name)
		if err != nil {
			return err
		}
		if e == nil {
			result.AddError(fmt.Sprintf("%s is invalid or does not exist (Name: %s).", label, name))
		}
	}
	return nil
}

// ValidateTradeLegConsistency checks the rules that tie the two legs together.
func ValidateTradeLegConsistency(legs []trade.LegInput) *Result {
	result := &Result{}

	if len(legs) != 2 {
		result.AddError("A trade must contain exactly two legs.")
		return result
	}
	leg1, leg2 := legs[0], legs[1]

	if !bothPresent(leg1.PayReceive, leg2.PayReceive) || sameRef(leg1.PayReceive, leg2.PayReceive) {
		result.AddError("Cross-leg inconsistency: Both legs must have opposite Pay/Receive flags (e.g., PAY vs. RECEIVE).")
	}

	if !leg1.Notional.Valid || !leg2.Notional.Valid || !leg1.Notional.Decimal.Equal(leg2.Notional.Decimal) {
		result.AddError("Cross-leg inconsistency: Notional values must be identical across both legs.")
	}

	if !bothPresent(leg1.Currency, leg2.Currency) || !sameRef(leg1.Currency, leg2.Currency) {
		result.AddError("Cross-leg inconsistency: Currency must be identical across both legs for a standard swap.")
	}

	checkImplicitMaturity(leg1, leg2, result)

	checkLegType(leg1, "Leg 1", result)
	checkLegType(leg2, "Leg 2", result)

	return result
}

// checkImplicitMaturity compares the last cashflow date on each leg when the
// caller supplied cashflows.
func checkImplicitMaturity(leg1, leg2 trade.LegInput, result *Result) {
	n1, n2 := len(leg1.Cashflows), len(leg2.Cashflows)
	if n1 == 0 && n2 == 0 {
		return
	}
	last1, last2 := leg1.LastCashflowDate(), leg2.LastCashflowDate()
	if n1 == 0 || n2 == 0 || last1.IsZero() || last2.IsZero() {
		result.AddError("Cashflows must be provided on both legs to determine implicit maturity.")
		return
	}
	if !last1.Equal(last2) {
		result.AddError("Implicit Maturity Date (last cashflow value date) must be identical across both legs.")
	}
}

func checkLegType(leg trade.LegInput, label string, result *Result) {
	switch leg.Kind() {
	case trade.LegFloating:
		if leg.Index.IsZero() {
			result.AddError(label + ": Floating leg missing required index specification (Name or ID).")
		}
	case trade.LegFixed:
		if !leg.Rate.Valid {
			result.AddError(label + ": Fixed leg missing required rate specification.")
		}
	default:
		// An id-only leg type is classified once resolved to a name.
		if name := strings.TrimSpace(leg.LegType.Name); name != "" {
			result.AddError(fmt.Sprintf("%s: Leg rate type is invalid or does not exist (Name: %s).", label, name))
		}
	}
}

func bothPresent(a, b refdata.Lookup) bool {
	return !a.IsZero() && !b.IsZero()
}

// sameRef compares by name when both carry one, otherwise by id.
func sameRef(a, b refdata.Lookup) bool {
	an, bn := strings.TrimSpace(a.Name), strings.TrimSpace(b.Name)
	if an != "" && bn != "" {
		return strings.EqualFold(an, bn)
	}
	return a.ID != 0 && a.ID == b.ID
}

func day(t time.Time) string {
	return t.Format(db.DateLayout)
}

// daysBetween counts whole calendar days from -> to.
func daysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}
