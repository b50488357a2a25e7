package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goverture/chatrelay/pricing"
	_ "modernc.org/sqlite"
)

const dayLayout = "2006-01-02"

// ErrClosed is returned by ledger operations after Close.
var ErrClosed = errors.New("usage ledger is closed")

// Entry is the accounting record of one provider call. It never carries
// message content.
type Entry struct {
	ClientKey        string
	MaskedClient     string
	Failed           bool
	PromptTokens     int
	CompletionTokens int
	Cost             pricing.Money
	At               time.Time
}

// DailyUsage is the aggregate of one client for one UTC day.
type DailyUsage struct {
	Client           string        `json:"client"`
	Day              string        `json:"day"`
	Requests         int64         `json:"requests"`
	Failures         int64         `json:"failures"`
	PromptTokens     int64         `json:"prompt_tokens"`
	CompletionTokens int64         `json:"completion_tokens"`
	Cost             pricing.Money `json:"-"`
	CostUSD          float64       `json:"cost_usd"`
}

// Ledger stores per-client daily usage in SQLite.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the ledger database at path.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open usage db %s: %w", path, err)
	}
	// SQLite serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open usage db %s: %w", path, err)
	}

	l := &Ledger{db: db, logger: logger, now: time.Now}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise usage db: %w", err)
	}
	return l, nil
}

func (l *Ledger) initSchema() error {
	_, err := l.db.Exec(`
	CREATE TABLE IF NOT EXISTS usage_daily (
		client_key TEXT NOT NULL,
		masked_client TEXT NOT NULL DEFAULT '',
		day TEXT NOT NULL,
		requests INTEGER NOT NULL DEFAULT 0,
		failures INTEGER NOT NULL DEFAULT 0,
		prompt_tokens INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0,
		cost INTEGER NOT NULL DEFAULT 0,
		last_updated INTEGER NOT NULL,
		PRIMARY KEY (client_key, day)
	);

	CREATE INDEX IF NOT EXISTS idx_usage_daily_day ON usage_daily(day);
	`)
	return err
}

// Record adds e to the aggregate row of its client and UTC day.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}

	at := e.At
	if at.IsZero() {
		at = l.now()
	}
	failures := 0
	if e.Failed {
		failures = 1
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO usage_daily (client_key, masked_client, day, requests, failures,
			prompt_tokens, completion_tokens, cost, last_updated)
		VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?)
		ON CONFLICT(client_key, day) DO UPDATE SET
			masked_client = excluded.masked_client,
			requests = requests + 1,
			failures = failures + excluded.failures,
			prompt_tokens = prompt_tokens + excluded.prompt_tokens,
			completion_tokens = completion_tokens + excluded.completion_tokens,
			cost = cost + excluded.cost,
			last_updated = excluded.last_updated
	`, e.ClientKey, e.MaskedClient, at.UTC().Format(dayLayout), failures,
		e.PromptTokens, e.CompletionTokens, int64(e.Cost), at.Unix())
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// Summary returns the rows of the last days UTC days, today included, newest
// day first.
func (l *Ledger) Summary(ctx context.Context, days int) ([]DailyUsage, error) {
	if days < 1 {
		return nil, fmt.Errorf("days must be at least 1, got %d", days)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrClosed
	}

	since := l.now().UTC().AddDate(0, 0, -(days - 1)).Format(dayLayout)
	rows, err := l.db.QueryContext(ctx, `
		SELECT masked_client, day, requests, failures, prompt_tokens, completion_tokens, cost
		FROM usage_daily
		WHERE day >= ?
		ORDER BY day DESC, masked_client, client_key
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer rows.Close()

	usage := []DailyUsage{}
	for rows.Next() {
		var u DailyUsage
		var cost int64
		if err := rows.Scan(&u.Client, &u.Day, &u.Requests, &u.Failures,
			&u.PromptTokens, &u.CompletionTokens, &cost); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		u.Cost = pricing.Money(cost)
		u.CostUSD = u.Cost.ToUSD()
		usage = append(usage, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read usage rows: %w", err)
	}
	return usage, nil
}

// Prune deletes every row whose day is before the UTC day of before.
func (l *Ledger) Prune(ctx context.Context, before time.Time) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return 0, ErrClosed
	}

	result, err := l.db.ExecContext(ctx, "DELETE FROM usage_daily WHERE day < ?",
		before.UTC().Format(dayLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to prune usage: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected > 0 {
		l.logger.Info("pruned usage rows", "rows", affected, "before", before.UTC().Format(dayLayout))
	}
	return affected, nil
}

// Close closes the database. Calling it more than once is harmless.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}
