// Package store persists completed quiz results.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/PoluyanbIch/FairyQuizBot/internal/service"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements service.ResultRecorder using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ service.ResultRecorder = (*SQLiteStore)(nil)

// NewSQLite opens (and if needed creates) the results database.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL UNIQUE,
		user_id INTEGER NOT NULL,
		display_name TEXT NOT NULL,
		fairy_type TEXT NOT NULL,
		fairy_name TEXT NOT NULL,
		lore TEXT NOT NULL,
		gender TEXT NOT NULL DEFAULT '',
		realm TEXT NOT NULL DEFAULT '',
		answers_json TEXT NOT NULL,
		completed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_results_user ON results(user_id, completed_at);
	CREATE INDEX IF NOT EXISTS idx_results_type ON results(fairy_type);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Record stores a completed result. Recording the same session twice keeps
// the first row.
func (s *SQLiteStore) Record(ctx context.Context, r service.Result) error {
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	query := `
	INSERT INTO results (session_id, user_id, display_name, fairy_type, fairy_name, lore, gender, realm, answers_json, completed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO NOTHING`

	_, err = s.db.ExecContext(ctx, query,
		r.SessionID, r.UserID, r.DisplayName, r.FairyType, r.FairyName, r.Lore,
		r.Gender, r.Realm, string(answers), r.CompletedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// Latest returns the user's most recent result.
func (s *SQLiteStore) Latest(ctx context.Context, userID int64) (*service.Result, error) {
	query := `
		SELECT session_id, user_id, display_name, fairy_type, fairy_name, lore,
		       gender, realm, answers_json, completed_at
		FROM results WHERE user_id = ?
		ORDER BY completed_at DESC, id DESC LIMIT 1`

	var r service.Result
	var answers string
	var completedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&r.SessionID, &r.UserID, &r.DisplayName, &r.FairyType, &r.FairyName, &r.Lore,
		&r.Gender, &r.Realm, &answers, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, service.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan result row: %w", err)
	}
	if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	r.CompletedAt = time.UnixMilli(completedAt)
	return &r, nil
}

// Census counts results per fairy type.
func (s *SQLiteStore) Census(ctx context.Context) ([]service.TypeCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fairy_type, COUNT(*) FROM results
		GROUP BY fairy_type
		ORDER BY COUNT(*) DESC, fairy_type ASC`)
	if err != nil {
		return nil, fmt.Errorf("query census: %w", err)
	}
	defer rows.Close()

	counts := make([]service.TypeCount, 0)
	for rows.Next() {
		var c service.TypeCount
		if err := rows.Scan(&c.FairyType, &c.Count); err != nil {
			return nil, fmt.Errorf("scan census row: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate census rows: %w", err)
	}
	return counts, nil
}
