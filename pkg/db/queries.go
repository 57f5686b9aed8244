package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUserIDRequired = errors.New("user_id is required for data isolation")
	ErrNotFound       = errors.New("record not found")
)

// TradeFilter narrows trade searches. Zero values mean "any".
type TradeFilter struct {
	Counterparty    string // name, case-insensitive
	Book            string // name, case-insensitive
	BookID          int64
	TraderUserID    int64
	Trader          string // login id, case-insensitive
	Statuses        []string
	TradeDateFrom   time.Time
	TradeDateTo     time.Time
	IncludeInactive bool
}

// PageRequest selects a page (zero-based) and an optional sort key.
type PageRequest struct {
	Page int
	Size int
	Sort string
	Desc bool
}

// TradePage is one page of trades plus the total match count.
type TradePage struct {
	Items []Trade
	Total int64
	Page  int
	Size  int
}

const (
	defaultPageSize = 20
	maxPageSize     = 500
)

var sortColumns = map[string]string{
	"tradeid":      "t.trade_id",
	"version":      "t.version",
	"tradedate":    "t.trade_date",
	"maturitydate": "t.trade_maturity_date",
	"createddate":  "t.created_date",
	"book":         "b.name",
	"counterparty": "cp.name",
	"status":       "ts.name",
}

func (p PageRequest) normalize() PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	return p
}

func (f TradeFilter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if !f.IncludeInactive {
		clauses = append(clauses, "t.active = 1")
	}
	if f.Counterparty != "" {
		clauses = append(clauses, "cp.name = ? COLLATE NOCASE")
		args = append(args, f.Counterparty)
	}
	if f.Book != "" {
		clauses = append(clauses, "b.name = ? COLLATE NOCASE")
		args = append(args, f.Book)
	}
	if f.BookID != 0 {
		clauses = append(clauses, "t.book_id = ?")
		args = append(args, f.BookID)
	}
	if f.TraderUserID != 0 {
		clauses = append(clauses, "t.trader_user_id = ?")
		args = append(args, f.TraderUserID)
	}
	if f.Trader != "" {
		clauses = append(clauses, "tu.login_id = ? COLLATE NOCASE")
		args = append(args, f.Trader)
	}
	if len(f.Statuses) > 0 {
		clauses = append(clauses, "UPPER(ts.name) IN ("+placeholders(len(f.Statuses))+")")
		for _, st := range f.Statuses {
			args = append(args, strings.ToUpper(st))
		}
	}
	if !f.TradeDateFrom.IsZero() {
		clauses = append(clauses, "t.trade_date >= ?")
		args = append(args, f.TradeDateFrom.Format(DateLayout))
	}
	if !f.TradeDateTo.IsZero() {
		clauses = append(clauses, "t.trade_date <= ?")
		args = append(args, f.TradeDateTo.Format(DateLayout))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func orderBy(p PageRequest) string {
	col, ok := sortColumns[strings.ToLower(p.Sort)]
	if !ok {
		return " ORDER BY t.trade_id, t.version"
	}
	dir := "ASC"
	if p.Desc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, t.trade_id, t.version", col, dir)
}

// ListTrades returns every trade matching the filter, legs included.
func (s *Store) ListTrades(ctx context.Context, f TradeFilter) ([]Trade, error) {
	where, args := f.where()
	rows, err := s.q.QueryContext(ctx, tradeSelect+where+" ORDER BY t.trade_id, t.version", args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	trades, err := collectTrades(rows)
	if err != nil {
		return nil, err
	}
	if err := s.loadLegs(ctx, trades); err != nil {
		return nil, err
	}
	return trades, nil
}

// SearchTrades returns one page of matching trades, legs included.
func (s *Store) SearchTrades(ctx context.Context, f TradeFilter, p PageRequest) (TradePage, error) {
	p = p.normalize()
	where, args := f.where()

	var total int64
	countQuery := `SELECT COUNT(1) FROM trades t
		LEFT JOIN reference_data b ON b.kind = 'BOOK' AND b.id = t.book_id
		LEFT JOIN reference_data cp ON cp.kind = 'COUNTERPARTY' AND cp.id = t.counterparty_id
		LEFT JOIN reference_data ts ON ts.kind = 'TRADE_STATUS' AND ts.id = t.trade_status_id
		LEFT JOIN users tu ON tu.id = t.trader_user_id` + where
	if err := s.q.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return TradePage{}, fmt.Errorf("count trades: %w", err)
	}

	pageArgs := append(append([]any{}, args...), p.Size, p.Page*p.Size)
	rows, err := s.q.QueryContext(ctx, tradeSelect+where+orderBy(p)+" LIMIT ? OFFSET ?", pageArgs...)
	if err != nil {
		return TradePage{}, fmt.Errorf("query trade page: %w", err)
	}
	trades, err := collectTrades(rows)
	if err != nil {
		return TradePage{}, err
	}
	if err := s.loadLegs(ctx, trades); err != nil {
		return TradePage{}, err
	}
	return TradePage{Items: trades, Total: total, Page: p.Page, Size: p.Size}, nil
}

// TradesByTraderOn returns the active trades a trader booked on a given trade date.
func (s *Store) TradesByTraderOn(ctx context.Context, traderID int64, day time.Time) ([]Trade, error) {
	if traderID == 0 {
		return nil, ErrUserIDRequired
	}
	return s.ListTrades(ctx, TradeFilter{TraderUserID: traderID, TradeDateFrom: day, TradeDateTo: day})
}

// SearchTradesBySettlement returns active trades whose active settlement
// instructions contain the (already sanitized) text, case-insensitively.
func (s *Store) SearchTradesBySettlement(ctx context.Context, text string) ([]Trade, error) {
	rows, err := s.q.QueryContext(ctx, tradeSelect+`
		JOIN additional_info ai
			ON ai.entity_type = 'TRADE' AND ai.entity_id = t.id
			AND ai.field_name = 'SETTLEMENT_INSTRUCTIONS' AND ai.active = 1
		WHERE t.active = 1 AND UPPER(ai.field_value) LIKE '%' || UPPER(?) || '%'
		ORDER BY t.trade_id
	`, text)
	if err != nil {
		return nil, fmt.Errorf("search settlement instructions: %w", err)
	}
	trades, err := collectTrades(rows)
	if err != nil {
		return nil, err
	}
	if err := s.loadLegs(ctx, trades); err != nil {
		return nil, err
	}
	return trades, nil
}
