package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"crypto-orderbook-slippage/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

// Service represents a service that interacts with the event database.
type Service interface {
	// Health returns a map of health status information.
	Health() map[string]string

	InsertEvent(ctx context.Context, event domain.FeedEvent) (int64, error)

	// Recent returns the newest events first.
	Recent(ctx context.Context, limit int) ([]domain.FeedEvent, error)

	// Close terminates the database connection.
	Close() error
}

type service struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS feed_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT    NOT NULL DEFAULT '',
	symbol     TEXT    NOT NULL DEFAULT '',
	channel_id INTEGER NOT NULL DEFAULT 0,
	kind       TEXT    NOT NULL,
	code       INTEGER NOT NULL DEFAULT 0,
	message    TEXT    NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS feed_events_created_at ON feed_events (created_at);
`

func New(path string) (Service, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database %s: %w", path, err)
	}

	return &service{db: db}, nil
}

func (s *service) InsertEvent(ctx context.Context, event domain.FeedEvent) (int64, error) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO feed_events (session_id, symbol, channel_id, kind, code, message, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.SessionID, event.Symbol, event.ChannelID, string(event.Kind), event.Code, event.Message, event.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert feed event: %w", err)
	}
	return res.LastInsertId()
}

func (s *service) Recent(ctx context.Context, limit int) ([]domain.FeedEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, symbol, channel_id, kind, code, message, created_at FROM feed_events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.FeedEvent, 0, limit)
	for rows.Next() {
		var (
			event     domain.FeedEvent
			kind      string
			createdAt int64
		)
		if err := rows.Scan(&event.ID, &event.SessionID, &event.Symbol, &event.ChannelID, &kind, &event.Code, &event.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan feed event: %w", err)
		}
		event.Kind = domain.FeedEventKind(kind)
		event.CreatedAt = time.UnixMilli(createdAt)
		events = append(events, event)
	}
	return events, rows.Err()
}

// Health checks the health of the database connection by pinging the database.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	err := s.db.PingContext(ctx)
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()

	return stats
}

func (s *service) Close() error {
	return s.db.Close()
}
