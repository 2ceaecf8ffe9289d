package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/omicsearch/discovery-service/internal/domain"
)

// schema creates the outcome tables. Searches are append-only; the
// same cache key may appear more than once when its entry expired and
// the search re-ran.
const schema = `
CREATE TABLE IF NOT EXISTS searches (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	cache_key     TEXT NOT NULL,
	query_text    TEXT NOT NULL,
	from_cache    INTEGER NOT NULL,
	completed_at  TIMESTAMP NOT NULL,
	created_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS search_results (
	search_id        INTEGER NOT NULL REFERENCES searches(id),
	rank             INTEGER NOT NULL,
	record_id        TEXT NOT NULL,
	canonical_id     TEXT NOT NULL,
	title            TEXT NOT NULL,
	doi              TEXT,
	pmid             TEXT,
	pmcid            TEXT,
	accession        TEXT,
	year             INTEGER,
	score            REAL NOT NULL,
	score_reasons    TEXT NOT NULL,
	sources          TEXT NOT NULL,
	fulltext_status  TEXT NOT NULL,
	fulltext_url     TEXT,
	oa_status        TEXT,
	PRIMARY KEY (search_id, rank)
);

CREATE TABLE IF NOT EXISTS search_warnings (
	search_id  INTEGER NOT NULL REFERENCES searches(id),
	source     TEXT NOT NULL,
	kind       TEXT NOT NULL,
	error      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fulltext_attempts (
	search_id       INTEGER NOT NULL REFERENCES searches(id),
	canonical_id    TEXT NOT NULL,
	seq             INTEGER NOT NULL,
	strategy        TEXT NOT NULL,
	url             TEXT,
	succeeded       INTEGER NOT NULL,
	failure_reason  TEXT,
	retried         INTEGER NOT NULL,
	duration_ms     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_searches_cache_key ON searches(cache_key);
CREATE INDEX IF NOT EXISTS idx_attempts_record ON fulltext_attempts(canonical_id);
`

// SQLiteStore persists search outcomes to a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and
// ensures the schema exists. Use ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids
	// SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// SaveOutcome implements ResultSink. The whole outcome is written in
// one transaction so readers never observe a partial search.
func (s *SQLiteStore) SaveOutcome(ctx context.Context, query domain.Query, outcome *domain.SearchOutcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO searches (cache_key, query_text, from_cache, completed_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		query.CacheKey(), query.Text(), outcome.FromCache, outcome.CompletedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("inserting search: %w", err)
	}
	searchID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading search id: %w", err)
	}

	for rank, result := range outcome.Results {
		if err := s.insertResult(ctx, tx, searchID, rank, result); err != nil {
			return err
		}
	}

	for _, warning := range outcome.Warnings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO search_warnings (search_id, source, kind, error) VALUES (?, ?, ?, ?)`,
			searchID, string(warning.Source), warning.Kind, warning.Err); err != nil {
			return fmt.Errorf("inserting warning: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing outcome: %w", err)
	}
	return nil
}

func (s *SQLiteStore) insertResult(ctx context.Context, tx *sql.Tx, searchID int64, rank int, result domain.RankedResult) error {
	record := result.Record
	reasons, err := json.Marshal(result.Reasons)
	if err != nil {
		return fmt.Errorf("encoding score reasons: %w", err)
	}

	var (
		fulltextURL string
		oaStatus    string
	)
	if record.FullTextLocation != nil {
		fulltextURL = record.FullTextLocation.URL
		oaStatus = string(record.FullTextLocation.OAStatus)
	}

	sourceNames := make([]string, 0, len(record.Contributions))
	for _, st := range record.SourceNames() {
		sourceNames = append(sourceNames, string(st))
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO search_results
		 (search_id, rank, record_id, canonical_id, title, doi, pmid, pmcid, accession,
		  year, score, score_reasons, sources, fulltext_status, fulltext_url, oa_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		searchID, rank, record.ID.String(), record.CanonicalID, record.Title,
		record.IDs.DOI, record.IDs.PMID, record.IDs.PMCID, record.IDs.Accession,
		record.PublicationYear, result.Score, string(reasons),
		strings.Join(sourceNames, ","),
		string(record.FullText), fulltextURL, oaStatus); err != nil {
		return fmt.Errorf("inserting result %s: %w", record.CanonicalID, err)
	}

	for seq, attempt := range record.Attempts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fulltext_attempts
			 (search_id, canonical_id, seq, strategy, url, succeeded, failure_reason, retried, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			searchID, record.CanonicalID, seq, attempt.Strategy, attempt.URL,
			attempt.Succeeded, attempt.FailureReason, attempt.Retried,
			attempt.Duration.Milliseconds()); err != nil {
			return fmt.Errorf("inserting attempt: %w", err)
		}
	}
	return nil
}

// CountSearches returns the number of persisted searches, optionally
// filtered by cache key (empty counts all).
func (s *SQLiteStore) CountSearches(ctx context.Context, cacheKey string) (int64, error) {
	var (
		count int64
		err   error
	)
	if cacheKey == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM searches`).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM searches WHERE cache_key = ?`, cacheKey).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("counting searches: %w", err)
	}
	return count, nil
}

// Close implements ResultSink.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
