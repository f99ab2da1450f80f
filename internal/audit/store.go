// Package audit keeps a durable log of safety verdicts in SQLite.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Dudley70/compression-framework/internal/logging"
	"github.com/Dudley70/compression-framework/internal/safety"
)

const schema = `
CREATE TABLE IF NOT EXISTS verdicts (
	id                TEXT PRIMARY KEY,
	document          TEXT NOT NULL DEFAULT '',
	recommendation    TEXT NOT NULL,
	safe              INTEGER NOT NULL DEFAULT 0,
	failures_json     TEXT NOT NULL DEFAULT '[]',
	report_json       TEXT NOT NULL,
	original_tokens   INTEGER,
	compressed_tokens INTEGER,
	created_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verdicts_created ON verdicts(created_at);
CREATE INDEX IF NOT EXISTS idx_verdicts_recommendation ON verdicts(recommendation);
`

// timeLayout keeps fixed-width timestamps so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultListLimit bounds List when no limit is given.
const DefaultListLimit = 50

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("audit store closed")

// Entry is one recorded verdict.
type Entry struct {
	ID               string                `json:"id"`
	Document         string                `json:"document"`
	Recommendation   safety.Recommendation `json:"recommendation"`
	Safe             bool                  `json:"safe"`
	Failures         []safety.Failure      `json:"failures"`
	Report           *safety.Report        `json:"report"`
	OriginalTokens   *int                  `json:"original_tokens"`
	CompressedTokens *int                  `json:"compressed_tokens"`
	CreatedAt        time.Time             `json:"created_at"`
}

// Store is a SQLite verdict log. It satisfies safety.Recorder.
type Store struct {
	db     *sql.DB
	closed atomic.Bool
	logger *logging.Logger
	now    func() time.Time
	newID  func() string
}

var _ safety.Recorder = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens or creates the database at path and applies the schema.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("audit path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// WAL allows concurrent readers but only one writer.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logging.NewNop(),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Record stores report under document.
func (s *Store) Record(ctx context.Context, document string, report *safety.Report) error {
	if report == nil {
		return errors.New("report is required")
	}
	if s.closed.Load() {
		return ErrClosed
	}

	failures := report.Failures
	if failures == nil {
		failures = []safety.Failure{}
	}
	failuresJSON, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("marshal failures: %w", err)
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	var orig, comp sql.NullInt64
	if b := report.Checks.MinimalBenefit; b != nil {
		orig = sql.NullInt64{Int64: int64(b.OriginalTokens), Valid: true}
		comp = sql.NullInt64{Int64: int64(b.CompressedTokens), Valid: true}
	}

	id := s.newID()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO verdicts (id, document, recommendation, safe, failures_json, report_json,
		 original_tokens, compressed_tokens, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, document, string(report.Recommendation), report.Safe,
		string(failuresJSON), string(reportJSON), orig, comp,
		s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert verdict: %w", err)
	}

	s.logger.Debug(ctx, "recorded safety verdict",
		zap.String("id", id),
		zap.String("document", document),
		zap.String("recommendation", string(report.Recommendation)),
	)
	return nil
}

// List returns the most recent entries first. A limit of zero or less
// uses DefaultListLimit.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document, recommendation, safe, failures_json, report_json,
		 original_tokens, compressed_tokens, created_at
		 FROM verdicts ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query verdicts: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verdicts: %w", err)
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                     Entry
		rec, failures, report string
		created               string
		orig, comp            sql.NullInt64
	)
	if err := rows.Scan(&e.ID, &e.Document, &rec, &e.Safe, &failures, &report, &orig, &comp, &created); err != nil {
		return Entry{}, fmt.Errorf("scan verdict: %w", err)
	}
	e.Recommendation = safety.Recommendation(rec)
	if err := json.Unmarshal([]byte(failures), &e.Failures); err != nil {
		return Entry{}, fmt.Errorf("decode failures for %s: %w", e.ID, err)
	}
	e.Report = &safety.Report{}
	if err := json.Unmarshal([]byte(report), e.Report); err != nil {
		return Entry{}, fmt.Errorf("decode report for %s: %w", e.ID, err)
	}
	if orig.Valid {
		n := int(orig.Int64)
		e.OriginalTokens = &n
	}
	if comp.Valid {
		n := int(comp.Int64)
		e.CompressedTokens = &n
	}
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return Entry{}, fmt.Errorf("parse created_at for %s: %w", e.ID, err)
	}
	e.CreatedAt = t
	return e, nil
}

// Counts returns the number of recorded verdicts per recommendation.
func (s *Store) Counts(ctx context.Context) (map[safety.Recommendation]int, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT recommendation, COUNT(*) FROM verdicts GROUP BY recommendation`)
	if err != nil {
		return nil, fmt.Errorf("count verdicts: %w", err)
	}
	defer rows.Close()

	counts := make(map[safety.Recommendation]int)
	for rows.Next() {
		var (
			rec string
			n   int
		)
		if err := rows.Scan(&rec, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[safety.Recommendation(rec)] = n
	}
	return counts, rows.Err()
}

// Close closes the database. Closing twice is a no-op.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
