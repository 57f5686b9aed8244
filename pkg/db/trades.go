package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrStaleVersion means the row changed (or was deactivated) since it was read.
	ErrStaleVersion = errors.New("trade version is no longer active")
	// ErrDuplicateTradeID means another live trade (or version) already holds the id.
	ErrDuplicateTradeID = errors.New("trade id already in use")
)

const tradeSelect = `
	SELECT t.id, t.trade_id, t.version,
		t.trade_date, t.trade_start_date, t.trade_maturity_date, t.trade_execution_date,
		COALESCE(t.uti_code, ''),
		COALESCE(t.book_id, 0), COALESCE(b.name, ''),
		COALESCE(t.counterparty_id, 0), COALESCE(cp.name, ''),
		COALESCE(t.trade_type_id, 0), COALESCE(tt.name, ''),
		COALESCE(t.trade_sub_type_id, 0), COALESCE(tst.name, ''),
		COALESCE(t.trade_status_id, 0), COALESCE(ts.name, ''),
		COALESCE(t.trader_user_id, 0), COALESCE(tu.login_id, ''),
		COALESCE(t.inputter_user_id, 0), COALESCE(iu.login_id, ''),
		t.active, t.created_date, t.last_touch_timestamp, t.deactivated_date
	FROM trades t
	LEFT JOIN reference_data b ON b.kind = 'BOOK' AND b.id = t.book_id
	LEFT JOIN reference_data cp ON cp.kind = 'COUNTERPARTY' AND cp.id = t.counterparty_id
	LEFT JOIN reference_data tt ON tt.kind = 'TRADE_TYPE' AND tt.id = t.trade_type_id
	LEFT JOIN reference_data tst ON tst.kind = 'TRADE_SUB_TYPE' AND tst.id = t.trade_sub_type_id
	LEFT JOIN reference_data ts ON ts.kind = 'TRADE_STATUS' AND ts.id = t.trade_status_id
	LEFT JOIN users tu ON tu.id = t.trader_user_id
	LEFT JOIN users iu ON iu.id = t.inputter_user_id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(r rowScanner) (Trade, error) {
	var (
		t           Trade
		tradeDate   sql.NullString
		start       sql.NullString
		maturity    sql.NullString
		exec        sql.NullString
		deactivated sql.NullTime
	)
	err := r.Scan(&t.ID, &t.TradeID, &t.Version,
		&tradeDate, &start, &maturity, &exec,
		&t.UTICode,
		&t.Book.ID, &t.Book.Name,
		&t.Counterparty.ID, &t.Counterparty.Name,
		&t.TradeType.ID, &t.TradeType.Name,
		&t.TradeSubType.ID, &t.TradeSubType.Name,
		&t.TradeStatus.ID, &t.TradeStatus.Name,
		&t.TraderUser.ID, &t.TraderUser.Name,
		&t.InputterUser.ID, &t.InputterUser.Name,
		&t.Active, &t.CreatedDate, &t.LastTouchTimestamp, &deactivated)
	if err != nil {
		return Trade{}, err
	}
	t.TradeDate = ParseDate(tradeDate)
	t.StartDate = ParseDate(start)
	t.MaturityDate = ParseDate(maturity)
	t.ExecutionDate = ParseDate(exec)
	t.DeactivatedDate = nullTimePtr(deactivated)
	return t, nil
}

// InsertTrade stores a new trade version and sets t.ID.
func (s *Store) InsertTrade(ctx context.Context, t *Trade) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO trades (trade_id, version, book_id, counterparty_id, trade_type_id, trade_sub_type_id,
			trade_status_id, trader_user_id, inputter_user_id, trade_date, trade_start_date,
			trade_maturity_date, trade_execution_date, uti_code, active, created_date, last_touch_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.TradeID, t.Version, nullableID(t.Book.ID), nullableID(t.Counterparty.ID),
		nullableID(t.TradeType.ID), nullableID(t.TradeSubType.ID), nullableID(t.TradeStatus.ID),
		nullableID(t.TraderUser.ID), nullableID(t.InputterUser.ID),
		FormatDate(t.TradeDate), FormatDate(t.StartDate), FormatDate(t.MaturityDate), FormatDate(t.ExecutionDate),
		t.UTICode, t.Active, t.CreatedDate, t.LastTouchTimestamp)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert trade %d v%d: %w", t.TradeID, t.Version, ErrDuplicateTradeID)
		}
		return fmt.Errorf("insert trade %d v%d: %w", t.TradeID, t.Version, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("trade row id: %w", err)
	}
	t.ID = id
	return nil
}

// InsertLeg stores a leg and sets l.ID.
func (s *Store) InsertLeg(ctx context.Context, l *TradeLeg) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO trade_legs (trade_row_id, leg_number, notional, rate, pay_rec, leg_type, currency,
			index_name, schedule, holiday_calendar, payment_bdc, fixing_bdc, active, created_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.TradeRowID, l.LegNumber, l.Notional.String(), l.Rate, l.PayReceive, l.LegType, l.Currency,
		l.Index, l.Schedule, l.HolidayCalendar, l.PaymentBDC, l.FixingBDC, l.Active, l.CreatedDate)
	if err != nil {
		return fmt.Errorf("insert leg %d: %w", l.LegNumber, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("leg row id: %w", err)
	}
	l.ID = id
	return nil
}

// InsertCashflow stores a cashflow and sets c.ID.
func (s *Store) InsertCashflow(ctx context.Context, c *Cashflow) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO cashflows (leg_id, value_date, payment_value, rate, pay_rec, payment_bdc, active, created_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.LegID, c.ValueDate.Format(DateLayout), c.PaymentValue.String(), c.Rate, c.PayRec, c.PaymentBDC,
		c.Active, c.CreatedDate)
	if err != nil {
		return fmt.Errorf("insert cashflow: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("cashflow row id: %w", err)
	}
	c.ID = id
	return nil
}

// ActiveTrade returns the active version of a business trade id with legs and cashflows.
func (s *Store) ActiveTrade(ctx context.Context, tradeID int64) (*Trade, error) {
	row := s.q.QueryRowContext(ctx, tradeSelect+`
		WHERE t.trade_id = ? AND t.active = 1
		ORDER BY t.created_date DESC, t.id DESC LIMIT 1
	`, tradeID)
	t, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query trade %d: %w", tradeID, err)
	}
	trades := []Trade{t}
	if err := s.loadLegs(ctx, trades); err != nil {
		return nil, err
	}
	return &trades[0], nil
}

// TradeVersions returns every stored version of a trade, oldest first, without legs.
func (s *Store) TradeVersions(ctx context.Context, tradeID int64) ([]Trade, error) {
	rows, err := s.q.QueryContext(ctx, tradeSelect+` WHERE t.trade_id = ? ORDER BY t.version, t.id`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("query trade versions %d: %w", tradeID, err)
	}
	return collectTrades(rows)
}

// ActiveTradeExists reports whether the business id has a live version.
func (s *Store) ActiveTradeExists(ctx context.Context, tradeID int64) (bool, error) {
	var n int
	if err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM trades WHERE trade_id = ? AND active = 1`, tradeID).Scan(&n); err != nil {
		return false, fmt.Errorf("check trade %d: %w", tradeID, err)
	}
	return n > 0, nil
}

// MaxTradeID returns the largest business id stored, or 0.
func (s *Store) MaxTradeID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := s.q.QueryRowContext(ctx, `SELECT MAX(trade_id) FROM trades`).Scan(&id); err != nil {
		return 0, fmt.Errorf("max trade id: %w", err)
	}
	return id.Int64, nil
}

// DeactivateTrade retires a version only if it is still active at the expected version.
func (s *Store) DeactivateTrade(ctx context.Context, rowID int64, expectedVersion int, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE trades SET active = 0, deactivated_date = ?, last_touch_timestamp = ?
		WHERE id = ? AND active = 1 AND version = ?
	`, at, at, rowID, expectedVersion)
	if err != nil {
		return fmt.Errorf("deactivate trade row %d: %w", rowID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate trade row %d: %w", rowID, err)
	}
	if n != 1 {
		return ErrStaleVersion
	}
	return nil
}

// UpdateTradeStatus sets the status of an active version in place.
func (s *Store) UpdateTradeStatus(ctx context.Context, rowID, statusID int64, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE trades SET trade_status_id = ?, last_touch_timestamp = ? WHERE id = ? AND active = 1
	`, statusID, at, rowID)
	if err != nil {
		return fmt.Errorf("update trade row %d status: %w", rowID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update trade row %d status: %w", rowID, err)
	}
	if n != 1 {
		return ErrStaleVersion
	}
	return nil
}

// TouchTrade bumps last_touch_timestamp.
func (s *Store) TouchTrade(ctx context.Context, rowID int64, at time.Time) error {
	if _, err := s.q.ExecContext(ctx,
		`UPDATE trades SET last_touch_timestamp = ? WHERE id = ?`, at, rowID); err != nil {
		return fmt.Errorf("touch trade row %d: %w", rowID, err)
	}
	return nil
}

// CountCashflows returns the number of cashflow rows on a leg.
func (s *Store) CountCashflows(ctx context.Context, legID int64) (int, error) {
	var n int
	if err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM cashflows WHERE leg_id = ?`, legID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cashflows leg %d: %w", legID, err)
	}
	return n, nil
}

func collectTrades(rows *sql.Rows) ([]Trade, error) {
	defer rows.Close()
	var out []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// loadLegs attaches legs (and their cashflows) to the given trades in place.
func (s *Store) loadLegs(ctx context.Context, trades []Trade) error {
	if len(trades) == 0 {
		return nil
	}
	index := make(map[int64]int, len(trades))
	ids := make([]any, 0, len(trades))
	for i := range trades {
		index[trades[i].ID] = i
		ids = append(ids, trades[i].ID)
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, trade_row_id, leg_number, notional, rate, pay_rec, leg_type, currency, index_name,
			schedule, holiday_calendar, payment_bdc, fixing_bdc, active, created_date
		FROM trade_legs WHERE trade_row_id IN (`+placeholders(len(ids))+`)
		ORDER BY trade_row_id, leg_number, id
	`, ids...)
	if err != nil {
		return fmt.Errorf("query legs: %w", err)
	}

	type legRef struct{ trade, leg int }
	var (
		legIDs []any
		where  = map[int64]legRef{}
	)
	for rows.Next() {
		var (
			l        TradeLeg
			notional string
		)
		if err := rows.Scan(&l.ID, &l.TradeRowID, &l.LegNumber, &notional, &l.Rate, &l.PayReceive,
			&l.LegType, &l.Currency, &l.Index, &l.Schedule, &l.HolidayCalendar, &l.PaymentBDC,
			&l.FixingBDC, &l.Active, &l.CreatedDate); err != nil {
			rows.Close()
			return fmt.Errorf("scan leg: %w", err)
		}
		if l.Notional, err = decimal.NewFromString(notional); err != nil {
			rows.Close()
			return fmt.Errorf("leg %d notional %q: %w", l.ID, notional, err)
		}
		ti := index[l.TradeRowID]
		trades[ti].Legs = append(trades[ti].Legs, l)
		where[l.ID] = legRef{trade: ti, leg: len(trades[ti].Legs) - 1}
		legIDs = append(legIDs, l.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	if len(legIDs) == 0 {
		return nil
	}

	cfRows, err := s.q.QueryContext(ctx, `
		SELECT id, leg_id, value_date, payment_value, rate, pay_rec, payment_bdc, active, created_date
		FROM cashflows WHERE leg_id IN (`+placeholders(len(legIDs))+`)
		ORDER BY leg_id, value_date, id
	`, legIDs...)
	if err != nil {
		return fmt.Errorf("query cashflows: %w", err)
	}
	defer cfRows.Close()

	for cfRows.Next() {
		var (
			c              Cashflow
			valueDate, pay string
		)
		if err := cfRows.Scan(&c.ID, &c.LegID, &valueDate, &pay, &c.Rate, &c.PayRec, &c.PaymentBDC,
			&c.Active, &c.CreatedDate); err != nil {
			return fmt.Errorf("scan cashflow: %w", err)
		}
		c.ValueDate = ParseDate(sql.NullString{String: valueDate, Valid: true})
		if c.PaymentValue, err = decimal.NewFromString(pay); err != nil {
			return fmt.Errorf("cashflow %d value %q: %w", c.ID, pay, err)
		}
		ref := where[c.LegID]
		leg := &trades[ref.trade].Legs[ref.leg]
		leg.Cashflows = append(leg.Cashflows, c)
	}
	return cfRows.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
