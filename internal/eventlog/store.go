// Package eventlog records completed utterances in a local SQLite file so
// performances can be reviewed after the fact.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stratojets/notevox/internal/config"
)

// Utterance is one recorded trigger outcome.
type Utterance struct {
	ID          int64
	UtteranceID string
	Note        int
	Syllable    string
	TargetHz    float64
	Samples     int
	DurationMS  float64
	CreatedAt   time.Time
}

// Store wraps the SQLite-backed utterance log. A disabled store is valid
// and turns every method into a no-op.
type Store struct {
	db    *sql.DB
	cfg   config.EventLogConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the log according to config.
func Open(ctx context.Context, cfg config.EventLogConfig, log *slog.Logger) (*Store, error) {
	if !cfg.Enabled {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("event log vacuum failed", slog.String("error", err.Error()))
		}
	}
	if err := s.Prune(ctx); err != nil {
		log.Warn("event log prune on start failed", slog.String("error", err.Error()))
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS utterances (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    utterance_id TEXT NOT NULL,
    note INTEGER NOT NULL,
    syllable TEXT,
    target_hz REAL,
    samples INTEGER,
    duration_ms REAL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_utterances_created ON utterances(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append writes one utterance record.
func (s *Store) Append(ctx context.Context, u Utterance) error {
	if s.db == nil {
		return nil
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO utterances(utterance_id, note, syllable, target_hz, samples, duration_ms, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		u.UtteranceID, u.Note, u.Syllable, u.TargetHz, u.Samples, u.DurationMS, u.CreatedAt)
	return err
}

// ListRecent returns up to limit utterances, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Utterance, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, utterance_id, note, syllable, target_hz, samples, duration_ms, created_at
		 FROM utterances ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Utterance
	for rows.Next() {
		var u Utterance
		var created string
		if err := rows.Scan(&u.ID, &u.UtteranceID, &u.Note, &u.Syllable, &u.TargetHz, &u.Samples, &u.DurationMS, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			u.CreatedAt = ts
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Prune applies the configured retention.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM utterances WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxUtterances > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM utterances WHERE id IN (
			SELECT id FROM utterances ORDER BY created_at DESC, id DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxUtterances)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
