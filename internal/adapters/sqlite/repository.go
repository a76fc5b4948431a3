// Package sqlite implements ports.TradeRepository on a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"signalTraderBot/internal/domain"
	"signalTraderBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.TradeRepository interface using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/signal_trader.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode: the reconciler updates rows while the execution path inserts
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	cfg.Logger.Info(context.Background(), "SQLite database ready", map[string]interface{}{"path": dbPath})
	return repo, nil
}

// initializeSchema creates tables if they don't exist. Order ids are stored
// alongside prices so a restarted process can rebuild its active set and
// resume reconciliation.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trade_history (
		trade_id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		entry_price REAL NOT NULL,
		quantity REAL NOT NULL,
		leverage INTEGER NOT NULL,
		status TEXT NOT NULL,
		pnl REAL DEFAULT NULL,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP DEFAULT NULL,
		stop_loss_price REAL NOT NULL DEFAULT 0,
		take_profit_prices TEXT NOT NULL DEFAULT '[]',
		stop_loss_order_id INTEGER DEFAULT NULL,
		take_profit_order_ids TEXT NOT NULL DEFAULT '[]',
		filled_take_profit_order_ids TEXT NOT NULL DEFAULT '[]',
		trailing_order_id INTEGER DEFAULT NULL,
		source_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_trade_history_account_status ON trade_history (account_id, status);
	CREATE INDEX IF NOT EXISTS idx_trade_history_account_symbol_entry ON trade_history (account_id, symbol, entry_time);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// SaveTrade inserts (or replaces) a trade record.
func (r *Repository) SaveTrade(ctx context.Context, trade *domain.TradeRecord) error {
	const query = `
	INSERT OR REPLACE INTO trade_history (
		trade_id, account_id, symbol, side, entry_price, quantity, leverage,
		status, pnl, entry_time, exit_time, stop_loss_price, take_profit_prices,
		stop_loss_order_id, take_profit_order_ids, filled_take_profit_order_ids,
		trailing_order_id, source_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	tpPrices, err := json.Marshal(trade.TakeProfitPrices)
	if err != nil {
		return fmt.Errorf("failed to encode take-profit prices for trade %s: %w", trade.TradeID, err)
	}
	tpIDs, err := json.Marshal(orEmpty(trade.TakeProfitOrderIDs))
	if err != nil {
		return fmt.Errorf("failed to encode take-profit order ids for trade %s: %w", trade.TradeID, err)
	}
	filledIDs, err := json.Marshal(orEmpty(trade.FilledTakeProfitOrderIDs))
	if err != nil {
		return fmt.Errorf("failed to encode filled order ids for trade %s: %w", trade.TradeID, err)
	}

	var exitTime sql.NullTime
	if trade.ExitTime != nil {
		exitTime = sql.NullTime{Time: *trade.ExitTime, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, query,
		trade.TradeID, trade.AccountID, trade.Symbol, string(trade.Side),
		trade.EntryPrice, trade.Quantity, trade.Leverage,
		string(trade.Status), trade.PnL, trade.EntryTime, exitTime,
		trade.StopLossPrice, string(tpPrices),
		nullableID(trade.StopLossOrderID), string(tpIDs), string(filledIDs),
		nullableID(trade.TrailingOrderID), trade.SourceID)
	if err != nil {
		return fmt.Errorf("failed to insert trade %s: %w: %w", trade.TradeID, ports.ErrUpdateFailed, err)
	}

	r.logger.Debug(ctx, "Trade record saved", map[string]interface{}{
		"tradeID": trade.TradeID, "symbol": trade.Symbol, "status": string(trade.Status),
	})
	return nil
}

// UpdateTradeStatus updates status and optionally pnl/exit time of an
// existing trade. A nil pnl or exitTime leaves the stored value untouched,
// which lets PARTIAL transitions avoid clobbering fields they do not own.
func (r *Repository) UpdateTradeStatus(ctx context.Context, tradeID string, status domain.TradeStatus, pnl *float64, exitTime *time.Time) error {
	const query = `
	UPDATE trade_history
	SET status = ?, pnl = COALESCE(?, pnl), exit_time = COALESCE(?, exit_time)
	WHERE trade_id = ?`

	var pnlArg sql.NullFloat64
	if pnl != nil {
		pnlArg = sql.NullFloat64{Float64: *pnl, Valid: true}
	}
	var exitArg sql.NullTime
	if exitTime != nil {
		exitArg = sql.NullTime{Time: *exitTime, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query, string(status), pnlArg, exitArg, tradeID)
	if err != nil {
		return fmt.Errorf("failed to update trade %s: %w: %w", tradeID, ports.ErrUpdateFailed, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for trade %s: %w", tradeID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("trade %s not found for update: %w", tradeID, ports.ErrNotFound)
	}

	r.logger.Debug(ctx, "Trade status updated", map[string]interface{}{"tradeID": tradeID, "status": string(status)})
	return nil
}

// UpdateTradeFills marks a trade PARTIAL and persists the filled take-profit
// order ids plus the running realized pnl, so a restart resumes mid-ladder.
func (r *Repository) UpdateTradeFills(ctx context.Context, tradeID string, filledTakeProfitOrderIDs []int64, realizedPnL float64) error {
	const query = `
	UPDATE trade_history
	SET status = ?, filled_take_profit_order_ids = ?, pnl = ?
	WHERE trade_id = ?`

	filledIDs, err := json.Marshal(orEmpty(filledTakeProfitOrderIDs))
	if err != nil {
		return fmt.Errorf("failed to encode filled order ids for trade %s: %w: %w", tradeID, ports.ErrUpdateFailed, err)
	}

	result, err := r.db.ExecContext(ctx, query, string(domain.TradeStatusPartial), string(filledIDs), realizedPnL, tradeID)
	if err != nil {
		return fmt.Errorf("failed to update fills for trade %s: %w: %w", tradeID, ports.ErrUpdateFailed, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for trade %s: %w", tradeID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("trade %s not found for update: %w", tradeID, ports.ErrNotFound)
	}

	r.logger.Debug(ctx, "Trade fills updated", map[string]interface{}{
		"tradeID": tradeID, "filledTPs": len(filledTakeProfitOrderIDs), "pnl": realizedPnL,
	})
	return nil
}

const selectColumns = `
	trade_id, account_id, symbol, side, entry_price, quantity, leverage,
	status, COALESCE(pnl, 0), entry_time, exit_time, stop_loss_price,
	take_profit_prices, stop_loss_order_id, take_profit_order_ids,
	filled_take_profit_order_ids, trailing_order_id, source_id`

// FindActiveByAccount retrieves trades still OPEN or PARTIAL for an account.
func (r *Repository) FindActiveByAccount(ctx context.Context, accountID string) ([]*domain.TradeRecord, error) {
	query := `SELECT ` + selectColumns + `
	FROM trade_history
	WHERE account_id = ? AND status IN (?, ?)
	ORDER BY entry_time DESC`

	rows, err := r.db.QueryContext(ctx, query, accountID,
		string(domain.TradeStatusOpen), string(domain.TradeStatusPartial))
	if err != nil {
		return nil, fmt.Errorf("failed to query active trades for account %s: %w: %w", accountID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// FindByAccount retrieves the most recent trades for an account, up to limit.
func (r *Repository) FindByAccount(ctx context.Context, accountID string, limit int) ([]*domain.TradeRecord, error) {
	query := `SELECT ` + selectColumns + `
	FROM trade_history
	WHERE account_id = ?
	ORDER BY entry_time DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for account %s: %w: %w", accountID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// LastEntryTime returns the entry time of the most recent trade on a symbol
// for an account. The zero time means no trade exists.
func (r *Repository) LastEntryTime(ctx context.Context, accountID, symbol string) (time.Time, error) {
	const query = `
	SELECT entry_time FROM trade_history
	WHERE account_id = ? AND symbol = ?
	ORDER BY entry_time DESC LIMIT 1`

	var entryTime time.Time
	err := r.db.QueryRowContext(ctx, query, accountID, symbol).Scan(&entryTime)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query last entry time for %s/%s: %w: %w", accountID, symbol, ports.ErrQueryFailed, err)
	}
	return entryTime, nil
}

// --- scanning helpers ---

// scanner abstracts *sql.Row and *sql.Rows for the scan helper.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(s scanner) (*domain.TradeRecord, error) {
	var (
		trade     domain.TradeRecord
		side      string
		status    string
		exitTime  sql.NullTime
		slOrderID sql.NullInt64
		trailID   sql.NullInt64
		tpPrices  string
		tpIDs     string
		filledIDs string
	)

	err := s.Scan(
		&trade.TradeID, &trade.AccountID, &trade.Symbol, &side,
		&trade.EntryPrice, &trade.Quantity, &trade.Leverage,
		&status, &trade.PnL, &trade.EntryTime, &exitTime,
		&trade.StopLossPrice, &tpPrices, &slOrderID, &tpIDs,
		&filledIDs, &trailID, &trade.SourceID)
	if err != nil {
		return nil, err
	}

	trade.Side = domain.PositionSide(side)
	trade.Status = domain.TradeStatus(status)
	if exitTime.Valid {
		t := exitTime.Time
		trade.ExitTime = &t
	}
	if slOrderID.Valid {
		id := slOrderID.Int64
		trade.StopLossOrderID = &id
	}
	if trailID.Valid {
		id := trailID.Int64
		trade.TrailingOrderID = &id
	}
	if err := json.Unmarshal([]byte(tpPrices), &trade.TakeProfitPrices); err != nil {
		return nil, fmt.Errorf("failed to decode take-profit prices for trade %s: %w", trade.TradeID, err)
	}
	if err := json.Unmarshal([]byte(tpIDs), &trade.TakeProfitOrderIDs); err != nil {
		return nil, fmt.Errorf("failed to decode take-profit order ids for trade %s: %w", trade.TradeID, err)
	}
	if err := json.Unmarshal([]byte(filledIDs), &trade.FilledTakeProfitOrderIDs); err != nil {
		return nil, fmt.Errorf("failed to decode filled order ids for trade %s: %w", trade.TradeID, err)
	}
	return &trade, nil
}

func collectTrades(rows *sql.Rows) ([]*domain.TradeRecord, error) {
	trades := make([]*domain.TradeRecord, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func orEmpty(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
