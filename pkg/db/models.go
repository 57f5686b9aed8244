package db

import (
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the storage and wire format for calendar dates.
const DateLayout = "2006-01-02"

// Reference data kinds stored in reference_data.kind.
const (
	KindBook            = "BOOK"
	KindCounterparty    = "COUNTERPARTY"
	KindCurrency        = "CURRENCY"
	KindTradeStatus     = "TRADE_STATUS"
	KindTradeType       = "TRADE_TYPE"
	KindTradeSubType    = "TRADE_SUB_TYPE"
	KindLegType         = "LEG_TYPE"
	KindIndex           = "INDEX"
	KindHolidayCalendar = "HOLIDAY_CALENDAR"
	KindSchedule        = "SCHEDULE"
	KindBDC             = "BDC"
	KindPayRec          = "PAY_REC"
)

// Kinds lists every reference data kind.
var Kinds = []string{
	KindBook, KindCounterparty, KindCurrency, KindTradeStatus, KindTradeType,
	KindTradeSubType, KindLegType, KindIndex, KindHolidayCalendar, KindSchedule,
	KindBDC, KindPayRec,
}

// Trade status names the lifecycle writes.
const (
	StatusNew        = "NEW"
	StatusAmended    = "AMENDED"
	StatusTerminated = "TERMINATED"
	StatusCancelled  = "CANCELLED"
	StatusLive       = "LIVE"
)

// Ref is a resolved reference: numeric id plus display name.
type Ref struct {
	ID   int64
	Name string
}

// IsZero reports whether the reference is unset.
func (r Ref) IsZero() bool { return r.ID == 0 }

// RefEntity is a row of reference_data.
type RefEntity struct {
	Kind   string
	ID     int64
	Name   string
	Active bool
}

// User is an application user; Profile carries the role name.
type User struct {
	ID           int64
	LoginID      string
	FirstName    string
	LastName     string
	PasswordHash string
	Profile      string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Trade is one version of a booked trade.
type Trade struct {
	ID            int64 // surrogate row id
	TradeID       int64 // business id shared by all versions
	Version       int
	TradeDate     time.Time
	StartDate     time.Time
	MaturityDate  time.Time
	ExecutionDate time.Time
	UTICode       string

	Book         Ref
	Counterparty Ref
	TradeType    Ref
	TradeSubType Ref
	TradeStatus  Ref
	TraderUser   Ref // Name holds the login id
	InputterUser Ref

	Active             bool
	CreatedDate        time.Time
	LastTouchTimestamp time.Time
	DeactivatedDate    *time.Time

	Legs []TradeLeg

	// Filled from additional_info by readers that need it; not a trades column.
	SettlementInstructions string
}

// TradeLeg is one side of a swap. Reference fields hold canonical names.
type TradeLeg struct {
	ID              int64
	TradeRowID      int64
	LegNumber       int
	Notional        decimal.Decimal
	Rate            decimal.NullDecimal
	PayReceive      string
	LegType         string
	Currency        string
	Index           string
	Schedule        string
	HolidayCalendar string
	PaymentBDC      string
	FixingBDC       string
	Active          bool
	CreatedDate     time.Time

	Cashflows []Cashflow
}

// IsFixed reports whether the leg pays a fixed rate.
func (l TradeLeg) IsFixed() bool {
	return strings.EqualFold(strings.TrimSpace(l.LegType), "FIXED")
}

// IsFloating reports whether the leg references an index.
func (l TradeLeg) IsFloating() bool {
	t := strings.ToUpper(strings.TrimSpace(l.LegType))
	return t == "FLOAT" || t == "FLOATING"
}

// Cashflow is a dated payment on a leg.
type Cashflow struct {
	ID           int64
	LegID        int64
	ValueDate    time.Time
	PaymentValue decimal.Decimal
	Rate         decimal.NullDecimal
	PayRec       string
	PaymentBDC   string
	Active       bool
	CreatedDate  time.Time
}

// AdditionalInfo is a versioned key/value attached to an entity.
type AdditionalInfo struct {
	ID               int64
	EntityType       string
	EntityID         int64
	FieldName        string
	FieldValue       string
	FieldType        string
	Version          int
	Active           bool
	CreatedDate      time.Time
	LastModifiedDate time.Time
	DeactivatedDate  *time.Time
}

// InfoKey addresses one additional_info field.
type InfoKey struct {
	EntityType string
	EntityID   int64
	FieldName  string
}

// AuditRecord is one lifecycle transition in trade_audit.
type AuditRecord struct {
	ID        string
	Event     string
	TradeID   int64
	Version   int
	Status    string
	Actor     string
	CreatedAt time.Time
}

// FormatDate renders a calendar date for storage; zero dates become NULL.
func FormatDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(DateLayout)
}

// ParseDate reads a stored calendar date; NULL or garbage becomes the zero time.
func ParseDate(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(DateLayout, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
