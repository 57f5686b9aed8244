package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradebook-core/internal/refdata"
	"tradebook-core/internal/trade"
	"tradebook-core/pkg/db"
)

// Date is a civil date carried as "YYYY-MM-DD".
type Date struct{ time.Time }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(db.DateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(db.DateLayout, s)
	if err != nil {
		return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	d.Time = t
	return nil
}

// TradeRequest is the body of create and amend.
type TradeRequest struct {
	TradeID            int64      `json:"tradeId,omitempty"`
	TradeDate          Date       `json:"tradeDate"`
	StartDate          Date       `json:"tradeStartDate"`
	MaturityDate       Date       `json:"tradeMaturityDate"`
	ExecutionDate      Date       `json:"tradeExecutionDate"`
	UTICode            string     `json:"utiCode,omitempty"`
	BookID             int64      `json:"bookId,omitempty"`
	BookName           string     `json:"bookName,omitempty"`
	CounterpartyID     int64      `json:"counterpartyId,omitempty"`
	CounterpartyName   string     `json:"counterpartyName,omitempty"`
	TraderUserID       int64      `json:"traderUserId,omitempty"`
	TraderUserName     string     `json:"traderUserName,omitempty"`
	InputterUserID     int64      `json:"tradeInputterUserId,omitempty"`
	InputterUserName   string     `json:"inputterUserName,omitempty"`
	TradeTypeID        int64      `json:"tradeTypeId,omitempty"`
	TradeType          string     `json:"tradeType,omitempty"`
	TradeSubTypeID     int64      `json:"tradeSubTypeId,omitempty"`
	TradeSubType       string     `json:"tradeSubType,omitempty"`
	TradeStatusID      int64      `json:"tradeStatusId,omitempty"`
	TradeStatus        string     `json:"tradeStatus,omitempty"`
	Legs               []LegInput `json:"tradeLegs"`
	SettlementInstruct *string    `json:"settlementInstructions,omitempty"`
}

// LegInput is one leg of a TradeRequest.
type LegInput struct {
	Notional        decimal.NullDecimal `json:"notional"`
	Rate            decimal.NullDecimal `json:"rate"`
	PayReceive      string              `json:"payReceiveFlag,omitempty"`
	LegType         string              `json:"legRateType,omitempty"`
	Currency        string              `json:"currency,omitempty"`
	IndexID         int64               `json:"indexId,omitempty"`
	Index           string              `json:"index,omitempty"`
	Schedule        string              `json:"calculationPeriodSchedule,omitempty"`
	HolidayCalendar string              `json:"holidayCalendar,omitempty"`
	PaymentBDC      string              `json:"paymentBusinessDayConvention,omitempty"`
	FixingBDC       string              `json:"fixingBusinessDayConvention,omitempty"`
	Cashflows       []CashflowInput     `json:"cashflows,omitempty"`
}

// CashflowInput is a client-computed cashflow.
type CashflowInput struct {
	ValueDate    Date                `json:"valueDate"`
	PaymentValue decimal.NullDecimal `json:"paymentValue"`
	Rate         decimal.NullDecimal `json:"rate"`
	PayRec       string              `json:"payRec,omitempty"`
}

func lookup(id int64, name string) refdata.Lookup {
	return refdata.Lookup{ID: id, Name: strings.TrimSpace(name)}
}

// toInput maps the wire shape to a lifecycle input. A missing tradeLegs
// field stays nil so validation reports it.
func (r TradeRequest) toInput() trade.Input {
	in := trade.Input{
		TradeID:                r.TradeID,
		TradeDate:              r.TradeDate.Time,
		StartDate:              r.StartDate.Time,
		MaturityDate:           r.MaturityDate.Time,
		ExecutionDate:          r.ExecutionDate.Time,
		UTICode:                r.UTICode,
		Book:                   lookup(r.BookID, r.BookName),
		Counterparty:           lookup(r.CounterpartyID, r.CounterpartyName),
		TradeType:              lookup(r.TradeTypeID, r.TradeType),
		TradeSubType:           lookup(r.TradeSubTypeID, r.TradeSubType),
		TradeStatus:            lookup(r.TradeStatusID, r.TradeStatus),
		Trader:                 lookup(r.TraderUserID, r.TraderUserName),
		Inputter:               lookup(r.InputterUserID, r.InputterUserName),
		SettlementInstructions: r.SettlementInstruct,
	}
	if r.Legs == nil {
		return in
	}
	in.Legs = make([]trade.LegInput, 0, len(r.Legs))
	for _, l := range r.Legs {
		leg := trade.LegInput{
			Notional:        l.Notional,
			Rate:            l.Rate,
			PayReceive:      refdata.ByName(l.PayReceive),
			LegType:         refdata.ByName(l.LegType),
			Currency:        refdata.ByName(l.Currency),
			Index:           lookup(l.IndexID, l.Index),
			Schedule:        refdata.ByName(l.Schedule),
			HolidayCalendar: refdata.ByName(l.HolidayCalendar),
			PaymentBDC:      refdata.ByName(l.PaymentBDC),
			FixingBDC:       refdata.ByName(l.FixingBDC),
		}
		for _, cf := range l.Cashflows {
			leg.Cashflows = append(leg.Cashflows, trade.CashflowInput{
				ValueDate:    cf.ValueDate.Time,
				PaymentValue: cf.PaymentValue,
				Rate:         cf.Rate,
				PayRec:       cf.PayRec,
			})
		}
		in.Legs = append(in.Legs, leg)
	}
	return in
}

// TradeResponse is one trade version on the wire.
type TradeResponse struct {
	ID                     int64         `json:"id"`
	TradeID                int64         `json:"tradeId"`
	Version                int           `json:"version"`
	TradeDate              Date          `json:"tradeDate"`
	StartDate              Date          `json:"tradeStartDate"`
	MaturityDate           Date          `json:"tradeMaturityDate"`
	ExecutionDate          Date          `json:"tradeExecutionDate"`
	UTICode                string        `json:"utiCode,omitempty"`
	BookID                 int64         `json:"bookId"`
	BookName               string        `json:"bookName"`
	CounterpartyID         int64         `json:"counterpartyId"`
	CounterpartyName       string        `json:"counterpartyName"`
	TraderUserID           int64         `json:"traderUserId,omitempty"`
	TraderUserName         string        `json:"traderUserName,omitempty"`
	InputterUserID         int64         `json:"tradeInputterUserId,omitempty"`
	InputterUserName       string        `json:"inputterUserName,omitempty"`
	TradeType              string        `json:"tradeType,omitempty"`
	TradeSubType           string        `json:"tradeSubType,omitempty"`
	TradeStatus            string        `json:"tradeStatus"`
	Active                 bool          `json:"active"`
	CreatedDate            time.Time     `json:"createdDate"`
	LastTouchTimestamp     time.Time     `json:"lastTouchTimestamp"`
	DeactivatedDate        *time.Time    `json:"deactivatedDate,omitempty"`
	SettlementInstructions string        `json:"settlementInstructions,omitempty"`
	Legs                   []LegResponse `json:"tradeLegs"`
}

// LegResponse is a stored leg with its cashflows.
type LegResponse struct {
	LegID           int64               `json:"legId"`
	LegNumber       int                 `json:"legNumber"`
	Notional        decimal.Decimal     `json:"notional"`
	Rate            decimal.NullDecimal `json:"rate"`
	PayReceive      string              `json:"payReceiveFlag"`
	LegType         string              `json:"legRateType"`
	Currency        string              `json:"currency"`
	Index           string              `json:"index,omitempty"`
	Schedule        string              `json:"calculationPeriodSchedule,omitempty"`
	HolidayCalendar string              `json:"holidayCalendar,omitempty"`
	PaymentBDC      string              `json:"paymentBusinessDayConvention,omitempty"`
	FixingBDC       string              `json:"fixingBusinessDayConvention,omitempty"`
	Cashflows       []CashflowResponse  `json:"cashflows"`
}

// CashflowResponse is one generated payment.
type CashflowResponse struct {
	ID           int64               `json:"id"`
	ValueDate    Date                `json:"valueDate"`
	PaymentValue decimal.Decimal     `json:"paymentValue"`
	Rate         decimal.NullDecimal `json:"rate"`
	PayRec       string              `json:"payRec"`
	PaymentBDC   string              `json:"paymentBusinessDayConvention,omitempty"`
}

func toTradeResponse(t db.Trade) TradeResponse {
	out := TradeResponse{
		ID:                     t.ID,
		TradeID:                t.TradeID,
		Version:                t.Version,
		TradeDate:              Date{t.TradeDate},
		StartDate:              Date{t.StartDate},
		MaturityDate:           Date{t.MaturityDate},
		ExecutionDate:          Date{t.ExecutionDate},
		UTICode:                t.UTICode,
		BookID:                 t.Book.ID,
		BookName:               t.Book.Name,
		CounterpartyID:         t.Counterparty.ID,
		CounterpartyName:       t.Counterparty.Name,
		TraderUserID:           t.TraderUser.ID,
		TraderUserName:         t.TraderUser.Name,
		InputterUserID:         t.InputterUser.ID,
		InputterUserName:       t.InputterUser.Name,
		TradeType:              t.TradeType.Name,
		TradeSubType:           t.TradeSubType.Name,
		TradeStatus:            t.TradeStatus.Name,
		Active:                 t.Active,
		CreatedDate:            t.CreatedDate,
		LastTouchTimestamp:     t.LastTouchTimestamp,
		DeactivatedDate:        t.DeactivatedDate,
		SettlementInstructions: t.SettlementInstructions,
		Legs:                   make([]LegResponse, 0, len(t.Legs)),
	}
	for _, l := range t.Legs {
		leg := LegResponse{
			LegID:           l.ID,
			LegNumber:       l.LegNumber,
			Notional:        l.Notional,
			Rate:            l.Rate,
			PayReceive:      l.PayReceive,
			LegType:         l.LegType,
			Currency:        l.Currency,
			Index:           l.Index,
			Schedule:        l.Schedule,
			HolidayCalendar: l.HolidayCalendar,
			PaymentBDC:      l.PaymentBDC,
			FixingBDC:       l.FixingBDC,
			Cashflows:       make([]CashflowResponse, 0, len(l.Cashflows)),
		}
		for _, cf := range l.Cashflows {
			leg.Cashflows = append(leg.Cashflows, CashflowResponse{
				ID:           cf.ID,
				ValueDate:    Date{cf.ValueDate},
				PaymentValue: cf.PaymentValue,
				Rate:         cf.Rate,
				PayRec:       cf.PayRec,
				PaymentBDC:   cf.PaymentBDC,
			})
		}
		out.Legs = append(out.Legs, leg)
	}
	return out
}

func toTradeResponses(trades []db.Trade) []TradeResponse {
	out := make([]TradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, toTradeResponse(t))
	}
	return out
}

// PageResponse mirrors a paged result.
type PageResponse struct {
	Content       []TradeResponse `json:"content"`
	TotalElements int64           `json:"totalElements"`
	TotalPages    int64           `json:"totalPages"`
	Page          int             `json:"number"`
	Size          int             `json:"size"`
}

func toPageResponse(p db.TradePage) PageResponse {
	var pages int64
	if p.Size > 0 {
		pages = (p.Total + int64(p.Size) - 1) / int64(p.Size)
	}
	return PageResponse{
		Content:       toTradeResponses(p.Items),
		TotalElements: p.Total,
		TotalPages:    pages,
		Page:          p.Page,
		Size:          p.Size,
	}
}
