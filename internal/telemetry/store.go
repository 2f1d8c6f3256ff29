package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// FileName is the telemetry database inside the data directory.
const FileName = "telemetry.db"

const (
	// MaxZeroResultQueries bounds the zero-result buffer.
	MaxZeroResultQueries = 100
	// MaxQueryLog bounds the raw query log.
	MaxQueryLog = 10000
)

const schema = `
CREATE TABLE IF NOT EXISTS queries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INTEGER NOT NULL,
	query TEXT NOT NULL,
	query_type TEXT NOT NULL,
	result_count INTEGER NOT NULL,
	top_relevance REAL NOT NULL,
	latency_us INTEGER NOT NULL,
	bucket TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_queries_ts ON queries(ts);

CREATE TABLE IF NOT EXISTS query_terms (
	term TEXT PRIMARY KEY,
	count INTEGER NOT NULL DEFAULT 1,
	last_seen INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);

CREATE TABLE IF NOT EXISTS zero_result_queries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	query TEXT NOT NULL,
	ts INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS session_hits (
	session_id TEXT PRIMARY KEY,
	count INTEGER NOT NULL DEFAULT 1,
	last_seen INTEGER NOT NULL
);
`

// Store is the SQLite-backed query log.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the telemetry database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create telemetry directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores most DSN pragmas, so set them explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create telemetry schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Record stores one query event with its term, session and zero-result
// side tables in a single transaction.
func (s *Store) Record(ctx context.Context, ev QueryEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	ts := ev.Timestamp.UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO queries (ts, query, query_type, result_count, top_relevance, latency_us, bucket)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ts, ev.Query, string(ev.Type), ev.ResultCount, ev.TopRelevance,
		ev.Latency.Microseconds(), string(LatencyToBucket(ev.Latency))); err != nil {
		return fmt.Errorf("insert query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM queries WHERE id <= (SELECT MAX(id) FROM queries) - ?
	`, MaxQueryLog); err != nil {
		return fmt.Errorf("trim query log: %w", err)
	}

	for _, term := range ExtractTerms(ev.Query) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO query_terms (term, count, last_seen) VALUES (?, 1, ?)
			ON CONFLICT(term) DO UPDATE SET count = count + 1, last_seen = excluded.last_seen
		`, term, ts); err != nil {
			return fmt.Errorf("upsert term count: %w", err)
		}
	}

	for _, id := range ev.ResultIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_hits (session_id, count, last_seen) VALUES (?, 1, ?)
			ON CONFLICT(session_id) DO UPDATE SET count = count + 1, last_seen = excluded.last_seen
		`, id, ts); err != nil {
			return fmt.Errorf("upsert session hits: %w", err)
		}
	}

	if ev.IsZeroResult() && ev.Query != "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO zero_result_queries (query, ts) VALUES (?, ?)
		`, ev.Query, ts); err != nil {
			return fmt.Errorf("insert zero-result query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM zero_result_queries
			WHERE id NOT IN (SELECT id FROM zero_result_queries ORDER BY id DESC LIMIT ?)
		`, MaxZeroResultQueries); err != nil {
			return fmt.Errorf("trim zero-result queries: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Summary aggregates queries recorded at or after since.
func (s *Store) Summary(ctx context.Context, since time.Time) (*Summary, error) {
	sum := &Summary{
		Since:               since,
		LatencyDistribution: make(map[LatencyBucket]int64),
		TypeCounts:          make(map[QueryType]int64),
	}
	cutoff := since.UnixMilli()

	var meanLatency, meanTop sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN result_count = 0 THEN 1 ELSE 0 END), 0),
		       AVG(latency_us),
		       AVG(top_relevance)
		FROM queries WHERE ts >= ?
	`, cutoff).Scan(&sum.TotalQueries, &sum.ZeroResultCount, &meanLatency, &meanTop)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	if meanLatency.Valid {
		sum.MeanLatencyMS = meanLatency.Float64 / 1000
	}
	if meanTop.Valid {
		sum.MeanTopRelevance = meanTop.Float64
	}

	if err := s.groupCounts(ctx, `
		SELECT bucket, COUNT(*) FROM queries WHERE ts >= ? GROUP BY bucket
	`, cutoff, func(k string, n int64) { sum.LatencyDistribution[LatencyBucket(k)] = n }); err != nil {
		return nil, fmt.Errorf("query latency counts: %w", err)
	}
	if err := s.groupCounts(ctx, `
		SELECT query_type, COUNT(*) FROM queries WHERE ts >= ? GROUP BY query_type
	`, cutoff, func(k string, n int64) { sum.TypeCounts[QueryType(k)] = n }); err != nil {
		return nil, fmt.Errorf("query type counts: %w", err)
	}
	return sum, nil
}

func (s *Store) groupCounts(ctx context.Context, query string, arg any, put func(string, int64)) error {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		put(key, n)
	}
	return rows.Err()
}

// ZeroResultQueries returns the most recent zero-result queries, newest first.
func (s *Store) ZeroResultQueries(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT query FROM zero_result_queries ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result queries: %w", err)
	}
	defer rows.Close()

	queries := []string{}
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// TopTerms returns the most frequent query terms.
func (s *Store) TopTerms(ctx context.Context, limit int) ([]TermCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT term, count FROM query_terms ORDER BY count DESC, term ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	defer rows.Close()

	terms := []TermCount{}
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		terms = append(terms, tc)
	}
	return terms, rows.Err()
}

// TopSessions returns the sessions that appeared in results most often.
func (s *Store) TopSessions(ctx context.Context, limit int) ([]SessionHits, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, count FROM session_hits ORDER BY count DESC, session_id ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top sessions: %w", err)
	}
	defer rows.Close()

	hits := []SessionHits{}
	for rows.Next() {
		var h SessionHits
		if err := rows.Scan(&h.ID, &h.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// ForgetSession drops the hit count of a removed session.
func (s *Store) ForgetSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_hits WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session hits: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
