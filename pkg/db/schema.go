package db

import (
	"database/sql"
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS reference_data (
    kind TEXT NOT NULL,
    id INTEGER NOT NULL,
    name TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (kind, id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_reference_data_name ON reference_data(kind, name);

CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY,
    login_id TEXT NOT NULL UNIQUE,
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL DEFAULT '',
    user_profile TEXT NOT NULL DEFAULT '',
    active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS trades (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    trade_id INTEGER NOT NULL,
    version INTEGER NOT NULL,
    book_id INTEGER,
    counterparty_id INTEGER,
    trade_type_id INTEGER,
    trade_sub_type_id INTEGER,
    trade_status_id INTEGER,
    trader_user_id INTEGER,
    inputter_user_id INTEGER,
    trade_date TEXT,
    trade_start_date TEXT,
    trade_maturity_date TEXT,
    trade_execution_date TEXT,
    uti_code TEXT DEFAULT '',
    active INTEGER NOT NULL DEFAULT 1,
    created_date DATETIME NOT NULL,
    last_touch_timestamp DATETIME NOT NULL,
    deactivated_date DATETIME,
    UNIQUE (trade_id, version)
);
-- At most one live version per business trade id.
CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_one_active ON trades(trade_id) WHERE active = 1;
CREATE INDEX IF NOT EXISTS idx_trades_trader_date ON trades(trader_user_id, trade_date);
CREATE INDEX IF NOT EXISTS idx_trades_book ON trades(book_id);

CREATE TABLE IF NOT EXISTS trade_legs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    trade_row_id INTEGER NOT NULL,
    leg_number INTEGER NOT NULL,
    notional TEXT NOT NULL,
    rate TEXT,
    pay_rec TEXT NOT NULL DEFAULT '',
    leg_type TEXT NOT NULL DEFAULT '',
    currency TEXT NOT NULL DEFAULT '',
    index_name TEXT NOT NULL DEFAULT '',
    schedule TEXT NOT NULL DEFAULT '',
    holiday_calendar TEXT NOT NULL DEFAULT '',
    payment_bdc TEXT NOT NULL DEFAULT '',
    fixing_bdc TEXT NOT NULL DEFAULT '',
    active INTEGER NOT NULL DEFAULT 1,
    created_date DATETIME NOT NULL,
    FOREIGN KEY(trade_row_id) REFERENCES trades(id)
);
CREATE INDEX IF NOT EXISTS idx_trade_legs_trade ON trade_legs(trade_row_id);

CREATE TABLE IF NOT EXISTS cashflows (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    leg_id INTEGER NOT NULL,
    value_date TEXT NOT NULL,
    payment_value TEXT NOT NULL,
    rate TEXT,
    pay_rec TEXT NOT NULL DEFAULT '',
    payment_bdc TEXT NOT NULL DEFAULT '',
    active INTEGER NOT NULL DEFAULT 1,
    created_date DATETIME NOT NULL,
    FOREIGN KEY(leg_id) REFERENCES trade_legs(id)
);
CREATE INDEX IF NOT EXISTS idx_cashflows_leg ON cashflows(leg_id);

CREATE TABLE IF NOT EXISTS additional_info (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL,
    entity_id INTEGER NOT NULL,
    field_name TEXT NOT NULL,
    field_value TEXT NOT NULL,
    field_type TEXT NOT NULL DEFAULT 'STRING',
    version INTEGER NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    created_date DATETIME NOT NULL,
    last_modified_date DATETIME NOT NULL,
    deactivated_date DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_additional_info_one_active
    ON additional_info(entity_type, entity_id, field_name) WHERE active = 1;

CREATE TABLE IF NOT EXISTS sequences (
    name TEXT PRIMARY KEY,
    value INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trade_audit (
    id TEXT PRIMARY KEY,
    event TEXT NOT NULL,
    trade_id INTEGER NOT NULL,
    version INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT '',
    actor TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trade_audit_trade ON trade_audit(trade_id, created_at);
`

// ApplyMigrations bootstraps the schema; keep lightweight for fast startup.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	// Idempotent column additions for DB files created before these fields existed.
	if err := ensureColumn(d.DB, "trades", "uti_code", "TEXT DEFAULT ''"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "trade_legs", "fixing_bdc", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "additional_info", "field_type", "TEXT NOT NULL DEFAULT 'STRING'"); err != nil {
		return err
	}
	return nil
}

// ensureColumn adds a column if it does not already exist.
func ensureColumn(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := db.Exec(alter); err != nil {
		return fmt.Errorf("alter table %s add column %s: %w", table, column, err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, fmt.Errorf("pragma table_info(%s): %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
