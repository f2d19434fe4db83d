package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	terrors "paper-trader/internal/errors"
	"paper-trader/internal/models"
	"paper-trader/pkg/utils"
)

// SQLiteJournal implements Journal using SQLite.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens (creating if needed) the journal at dbPath.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single writer keeps SQLite from returning SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	j := &SQLiteJournal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

// initSchema creates all required tables and indexes.
func (j *SQLiteJournal) initSchema() error {
	schema := `
	-- Every event emitted by an account
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seq INTEGER NOT NULL,
		account_id TEXT NOT NULL,
		type TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Executed fills
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id TEXT NOT NULL,
		order_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		symbol TEXT NOT NULL,
		segment TEXT NOT NULL,
		instrument TEXT NOT NULL,
		side TEXT NOT NULL,
		product TEXT NOT NULL,
		order_type TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price TEXT NOT NULL,
		realized_pnl TEXT NOT NULL,
		tag TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_events_account ON events(account_id, seq);
	CREATE INDEX IF NOT EXISTS idx_trades_account ON trades(account_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// RecordEvent stores ev, and a trade row when ev is an execution.
func (j *SQLiteJournal) RecordEvent(ctx context.Context, ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return utils.Permanent(fmt.Errorf("failed to encode event: %w", err))
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return terrors.Wrap(terrors.ErrDatabaseError, err.Error())
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (seq, account_id, type, timestamp, payload)
		VALUES (?, ?, ?, ?, ?)
	`, ev.Seq, ev.AccountID, string(ev.Type), ev.Timestamp.UTC(), string(payload)); err != nil {
		return terrors.Wrapf(terrors.ErrDatabaseError, "insert event: %v", err)
	}

	if ev.Type == models.EventOrderExecuted && ev.Order != nil {
		o := ev.Order
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO trades (account_id, order_id, timestamp, symbol, segment, instrument, side, product, order_type, quantity, price, realized_pnl, tag)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, ev.AccountID, o.ID, ev.Timestamp.UTC(), o.Symbol, string(o.Segment), o.Key().PositionID(),
			string(o.Side), string(o.Product), string(o.Type), o.Quantity,
			ev.Price.String(), o.RealizedPnL.String(), o.Tag); err != nil {
			return terrors.Wrapf(terrors.ErrDatabaseError, "insert trade: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return terrors.Wrapf(terrors.ErrDatabaseError, "commit: %v", err)
	}
	return nil
}

// Trades retrieves fills, newest first.
func (j *SQLiteJournal) Trades(ctx context.Context, filter TradeFilter) ([]TradeRecord, error) {
	query := "SELECT id, account_id, order_id, timestamp, symbol, segment, instrument, side, product, order_type, quantity, price, realized_pnl, tag FROM trades WHERE 1=1"
	args := []interface{}{}

	if filter.AccountID != "" {
		query += " AND account_id = ?"
		args = append(args, filter.AccountID)
	}
	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Side != "" {
		query += " AND side = ?"
		args = append(args, string(filter.Side))
	}
	if !filter.StartDate.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.StartDate.UTC())
	}
	if !filter.EndDate.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, filter.EndDate.UTC())
	}

	query += " ORDER BY timestamp DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var segment, side, product, orderType, price, pnl string
		var tag sql.NullString
		if err := rows.Scan(&t.ID, &t.AccountID, &t.OrderID, &t.Timestamp, &t.Symbol, &segment, &t.Instrument,
			&side, &product, &orderType, &t.Quantity, &price, &pnl, &tag); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Segment = models.Segment(segment)
		t.Side = models.OrderSide(side)
		t.Product = models.ProductType(product)
		t.OrderType = models.OrderType(orderType)
		t.Tag = tag.String
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("failed to parse price: %w", err)
		}
		if t.RealizedPnL, err = decimal.NewFromString(pnl); err != nil {
			return nil, fmt.Errorf("failed to parse pnl: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Events retrieves journaled events in insertion order.
func (j *SQLiteJournal) Events(ctx context.Context, filter EventFilter) ([]EventRecord, error) {
	query := "SELECT id, seq, account_id, type, timestamp, payload FROM events WHERE 1=1"
	args := []interface{}{}

	if filter.AccountID != "" {
		query += " AND account_id = ?"
		args = append(args, filter.AccountID)
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, string(filter.Type))
	}
	query += " ORDER BY id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		var typ string
		if err := rows.Scan(&e.ID, &e.Seq, &e.AccountID, &typ, &e.Timestamp, &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = models.EventType(typ)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Recorder adapts a Journal to the stream hub's consumer interface.
type Recorder struct {
	journal Journal
	logger  zerolog.Logger
	timeout time.Duration
	retry   utils.RetryConfig
}

// NewRecorder creates a consumer writing every event into journal.
func NewRecorder(journal Journal, logger zerolog.Logger) *Recorder {
	return &Recorder{
		journal: journal,
		logger:  logger,
		timeout: 5 * time.Second,
		retry:   utils.DefaultRetryConfig(),
	}
}

// OnEvent records ev, retrying transient failures. Failures are logged;
// the engine is never blocked on the journal.
func (r *Recorder) OnEvent(ev models.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	err := utils.Retry(ctx, r.retry, func() error {
		return r.journal.RecordEvent(ctx, ev)
	})
	if err != nil {
		r.logger.Error().Err(err).Uint64("seq", ev.Seq).Str("type", string(ev.Type)).Msg("Failed to journal event")
	}
}

// Accounts implements the consumer filter; the recorder takes every account.
func (r *Recorder) Accounts() []string { return nil }
