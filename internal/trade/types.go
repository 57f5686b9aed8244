// Package trade holds the caller-facing input shapes for booking and amending trades.
package trade

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradebook-core/internal/refdata"
)

// Input is a proposed trade (create) or a proposed new version (amend).
// Zero dates mean "not supplied".
type Input struct {
	TradeID       int64 // 0 asks the booking system to assign one
	TradeDate     time.Time
	StartDate     time.Time
	MaturityDate  time.Time
	ExecutionDate time.Time
	UTICode       string

	Book         refdata.Lookup
	Counterparty refdata.Lookup
	TradeType    refdata.Lookup
	TradeSubType refdata.Lookup
	TradeStatus  refdata.Lookup
	Trader       refdata.Lookup
	Inputter     refdata.Lookup

	Legs []LegInput

	// Nil when the caller did not send settlement instructions.
	SettlementInstructions *string
}

// LegInput is one proposed leg.
type LegInput struct {
	Notional        decimal.NullDecimal
	Rate            decimal.NullDecimal
	PayReceive      refdata.Lookup
	LegType         refdata.Lookup
	Currency        refdata.Lookup
	Index           refdata.Lookup
	Schedule        refdata.Lookup
	HolidayCalendar refdata.Lookup
	PaymentBDC      refdata.Lookup
	FixingBDC       refdata.Lookup

	// Cashflows a client already computed; only used to cross-check maturity.
	Cashflows []CashflowInput
}

// CashflowInput is a client-supplied cashflow.
type CashflowInput struct {
	ValueDate    time.Time
	PaymentValue decimal.NullDecimal
	Rate         decimal.NullDecimal
	PayRec       string
}

// LegKind classifies a leg by its leg type name.
type LegKind int

const (
	LegUnknown LegKind = iota
	LegFixed
	LegFloating
)

// Kind reads the leg type name; "FLOAT" and "FLOATING" are both floating.
func (l LegInput) Kind() LegKind {
	switch strings.ToUpper(strings.TrimSpace(l.LegType.Name)) {
	case "FIXED":
		return LegFixed
	case "FLOAT", "FLOATING":
		return LegFloating
	default:
		return LegUnknown
	}
}

// LastCashflowDate is the latest supplied cashflow value date, or zero.
func (l LegInput) LastCashflowDate() time.Time {
	var last time.Time
	for _, cf := range l.Cashflows {
		if cf.ValueDate.After(last) {
			last = cf.ValueDate
		}
	}
	return last
}
