package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tradebook-core/internal/apperr"
	"tradebook-core/internal/cashflow"
	"tradebook-core/internal/refdata"
	"tradebook-core/internal/settlement"
	"tradebook-core/internal/trade"
	"tradebook-core/internal/validation"
	"tradebook-core/pkg/db"
)

// prepared is a request whose references have been resolved, ready to
// validate and persist.
type prepared struct {
	in   trade.Input
	legs []db.TradeLeg
}

// canonical replaces a lookup with the stored id and name. Unresolved lookups
// are returned unchanged so validation can name what the caller sent.
func (m *Manager) canonical(ctx context.Context, kind string, l refdata.Lookup) (refdata.Lookup, bool, error) {
	if l.IsZero() {
		return l, false, nil
	}
	e, err := m.refs.Resolve(ctx, kind, l)
	if err != nil {
		return l, false, fmt.Errorf("resolve %s: %w", kind, err)
	}
	if e == nil {
		return l, false, nil
	}
	return refdata.Lookup{ID: e.ID, Name: e.Name}, true, nil
}

func (m *Manager) canonicalUser(ctx context.Context, l refdata.Lookup) (refdata.Lookup, error) {
	if l.IsZero() {
		return l, nil
	}
	u, err := m.refs.ResolveUser(ctx, l)
	if err != nil {
		return l, fmt.Errorf("resolve user: %w", err)
	}
	if u == nil {
		return l, nil
	}
	return refdata.Lookup{ID: u.ID, Name: u.LoginID}, nil
}

// prepare resolves every reference of in. The inputter defaults to the caller.
func (m *Manager) prepare(ctx context.Context, caller string, in trade.Input) (*prepared, error) {
	var err error
	header := []struct {
		kind string
		l    *refdata.Lookup
	}{
		{db.KindBook, &in.Book},
		{db.KindCounterparty, &in.Counterparty},
		{db.KindTradeType, &in.TradeType},
		{db.KindTradeSubType, &in.TradeSubType},
		{db.KindTradeStatus, &in.TradeStatus},
	}
	for _, h := range header {
		if *h.l, _, err = m.canonical(ctx, h.kind, *h.l); err != nil {
			return nil, err
		}
	}

	if in.Inputter.IsZero() {
		in.Inputter = refdata.ByName(caller)
	}
	if in.Trader, err = m.canonicalUser(ctx, in.Trader); err != nil {
		return nil, err
	}
	if in.Inputter, err = m.canonicalUser(ctx, in.Inputter); err != nil {
		return nil, err
	}

	p := &prepared{in: in}
	if in.Legs == nil {
		return p, nil
	}
	p.in.Legs = make([]trade.LegInput, len(in.Legs))
	for i, leg := range in.Legs {
		row := db.TradeLeg{
			LegNumber: i + 1,
			Notional:  leg.Notional.Decimal,
			Rate:      leg.Rate,
			Active:    true,
		}
		fields := []struct {
			kind string
			l    *refdata.Lookup
			dst  *string
		}{
			{db.KindPayRec, &leg.PayReceive, &row.PayReceive},
			{db.KindLegType, &leg.LegType, &row.LegType},
			{db.KindCurrency, &leg.Currency, &row.Currency},
			{db.KindIndex, &leg.Index, &row.Index},
			{db.KindSchedule, &leg.Schedule, &row.Schedule},
			{db.KindHolidayCalendar, &leg.HolidayCalendar, &row.HolidayCalendar},
			{db.KindBDC, &leg.PaymentBDC, &row.PaymentBDC},
			{db.KindBDC, &leg.FixingBDC, &row.FixingBDC},
		}
		for _, f := range fields {
			var ok bool
			if *f.l, ok, err = m.canonical(ctx, f.kind, *f.l); err != nil {
				return nil, err
			}
			switch {
			case ok:
				*f.dst = f.l.Name
			case f.kind == db.KindSchedule && strings.TrimSpace(f.l.Name) != "":
				// "6M" style schedules need not exist as reference rows.
				*f.dst = strings.TrimSpace(f.l.Name)
			case !f.l.IsZero():
				m.log.WithFields(logrus.Fields{"leg": i + 1, "kind": f.kind, "name": f.l.Name, "id": f.l.ID}).
					Warn("reference not found; leg field left empty")
			}
		}
		p.in.Legs[i] = leg
		p.legs = append(p.legs, row)
	}
	return p, nil
}

// validate runs business rules plus leg consistency. Legs are mandatory.
func (m *Manager) validate(ctx context.Context, in trade.Input) error {
	res, err := m.validator.ValidateTradeBusinessRules(ctx, in)
	if err != nil {
		return fmt.Errorf("validate trade: %w", err)
	}
	if in.Legs == nil {
		res.AddErrors(validation.ValidateTradeLegConsistency(nil).Errors())
	}
	if !res.Successful() {
		return apperr.Validation(res.Errors())
	}
	for _, leg := range in.Legs {
		if _, err := cashflow.ParseSchedule(leg.Schedule.Name); err != nil {
			return err
		}
	}
	return nil
}

// checkInstructions validates supplied settlement instructions and returns
// the text to store, or "" when none was sent.
func checkInstructions(si *string) (string, error) {
	if si == nil || strings.TrimSpace(*si) == "" {
		return "", nil
	}
	if err := settlement.ValidateInstructions(*si); err != nil {
		return "", err
	}
	return *si, nil
}

// newVersion builds the trade row for p.
func (p *prepared) newVersion(tradeID int64, version int, status db.Ref, now time.Time) db.Trade {
	in := p.in
	return db.Trade{
		TradeID:            tradeID,
		Version:            version,
		TradeDate:          in.TradeDate,
		StartDate:          in.StartDate,
		MaturityDate:       in.MaturityDate,
		ExecutionDate:      in.ExecutionDate,
		UTICode:            in.UTICode,
		Book:               db.Ref{ID: in.Book.ID, Name: in.Book.Name},
		Counterparty:       db.Ref{ID: in.Counterparty.ID, Name: in.Counterparty.Name},
		TradeType:          db.Ref{ID: in.TradeType.ID, Name: in.TradeType.Name},
		TradeSubType:       db.Ref{ID: in.TradeSubType.ID, Name: in.TradeSubType.Name},
		TradeStatus:        status,
		TraderUser:         db.Ref{ID: in.Trader.ID, Name: in.Trader.Name},
		InputterUser:       db.Ref{ID: in.Inputter.ID, Name: in.Inputter.Name},
		Active:             true,
		CreatedDate:        now,
		LastTouchTimestamp: now,
	}
}

// storeLegs inserts the legs of t and generates their cashflows.
func storeLegs(ctx context.Context, tx *db.Store, t *db.Trade, legs []db.TradeLeg, now time.Time) error {
	for _, leg := range legs {
		leg.TradeRowID = t.ID
		leg.CreatedDate = now
		if err := tx.InsertLeg(ctx, &leg); err != nil {
			return err
		}
		if !t.StartDate.IsZero() && !t.MaturityDate.IsZero() {
			if err := cashflow.GenerateAndStore(ctx, tx, &leg, t.StartDate, t.MaturityDate, now); err != nil {
				return err
			}
		}
		t.Legs = append(t.Legs, leg)
	}
	return nil
}
