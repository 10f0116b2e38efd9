package index

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure Go driver with FTS5

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
)

// SQLiteIndex is a TextIndex on SQLite FTS5 with the porter tokenizer.
// It supports several processes reading the index through WAL mode. All
// languages share one stemmer, so Query.Analyzer is ignored.
type SQLiteIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ TextIndex = (*SQLiteIndex)(nil)

// validateSQLiteIntegrity checks an on-disk index before opening it.
// Returns nil when the database is valid or absent.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='fts_content'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("FTS5 table 'fts_content' missing")
	}
	return nil
}

// NewSQLiteIndex opens or creates an FTS5 index at path. An empty path
// creates an in-memory index.
func NewSQLiteIndex(path string) (*SQLiteIndex, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}

		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			slog.Warn("text_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, ierrors.New(ierrors.ErrCodeCorruptIndex,
					fmt.Sprintf("text index corrupted at %s and cannot be removed", path), removeErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("text_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, run reindex"))
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, ierrors.New(ierrors.ErrCodeIndexFailed, "failed to open text index", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	if path != "" {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	idx := &SQLiteIndex{db: db, path: path}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, ierrors.New(ierrors.ErrCodeIndexFailed, "failed to initialize text index schema", err)
	}
	return idx, nil
}

func (s *SQLiteIndex) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- doc_id is stored but not searchable
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
		doc_id UNINDEXED,
		content,
		tokenize='porter unicode61'
	);

	CREATE TABLE IF NOT EXISTS doc_ids (
		doc_id TEXT PRIMARY KEY
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`)
	return err
}

// Index adds or replaces documents in one transaction.
func (s *SQLiteIndex) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// FTS5 tables have no REPLACE, so existing rows are deleted first
	deleteStmt, err := tx.PrepareContext(ctx, `DELETE FROM fts_content WHERE doc_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer deleteStmt.Close()

	insertStmt, err := tx.PrepareContext(ctx, `INSERT INTO fts_content(doc_id, content) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer insertStmt.Close()

	idStmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO doc_ids(doc_id) VALUES (?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare id statement: %w", err)
	}
	defer idStmt.Close()

	for _, doc := range docs {
		if _, err := deleteStmt.ExecContext(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to delete existing document %s: %w", doc.ID, err)
		}
		if _, err := insertStmt.ExecContext(ctx, doc.ID, doc.Content); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
		if _, err := idStmt.ExecContext(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to track document %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ierrors.New(ierrors.ErrCodeIndexFailed, "failed to commit text index batch", err)
	}
	return nil
}

// Search runs q as an FTS5 MATCH. Locations are recovered by stemming the
// stored content against the stems of the query terms.
func (s *SQLiteIndex) Search(ctx context.Context, q Query) ([]*Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}

	match, terms, err := ftsMatch(q)
	if err != nil || match == "" {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	// bm25() is negative, lower is better
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, content, bm25(fts_content) AS score
		FROM fts_content
		WHERE fts_content MATCH ?
		ORDER BY score, doc_id
		LIMIT ? OFFSET ?`, match, limit, max(q.From, 0))
	if err != nil {
		return nil, searchErr(q, err)
	}
	defer rows.Close()

	var hits []*Hit
	for rows.Next() {
		var id, content string
		var score float64
		if err := rows.Scan(&id, &content, &score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		hits = append(hits, &Hit{ID: id, Score: -score, Locations: stemLocations(content, terms)})
	}
	if err := rows.Err(); err != nil {
		return nil, searchErr(q, err)
	}
	return hits, nil
}

// searchErr classifies a MATCH failure. Raw queries fail on their syntax.
func searchErr(q Query, err error) error {
	if q.Type == SearchRaw || strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "syntax error") {
		return ierrors.New(ierrors.ErrCodeInvalidQuery, "invalid query syntax", err).
			WithDetail("query", q.Text)
	}
	return ierrors.New(ierrors.ErrCodeSearchFailed, "text search failed", err)
}

// ftsMatch translates q into an FTS5 MATCH expression and the stems of its
// positive terms.
func ftsMatch(q Query) (string, map[string]bool, error) {
	typ := q.Type
	if typ == "" {
		typ = SearchWebsearch
	}

	terms := make(map[string]bool)
	if typ == SearchRaw {
		text := strings.TrimSpace(q.Text)
		for _, w := range Words(text) {
			switch w {
			case "and", "or", "not", "near":
				continue
			}
			terms[Stem(w)] = true
		}
		return text, terms, nil
	}

	clauses, err := Parse(q.Text, typ)
	if err != nil || len(clauses) == 0 {
		return "", nil, err
	}

	var positive, negative []string
	for _, c := range clauses {
		alts := make([]string, 0, len(c.Alternatives))
		for _, t := range c.Alternatives {
			words := Words(t.Text)
			if !c.Negated {
				for _, w := range words {
					terms[Stem(w)] = true
				}
			}
			alts = append(alts, ftsTerm(words, t.Phrase))
		}
		expr := alts[0]
		if len(alts) > 1 {
			expr = "(" + strings.Join(alts, " OR ") + ")"
		}
		if c.Negated {
			negative = append(negative, expr)
		} else {
			positive = append(positive, expr)
		}
	}

	match := strings.Join(positive, " AND ")
	for _, n := range negative {
		match += " NOT " + n
	}
	return match, terms, nil
}

// ftsTerm quotes words as one phrase or as ANDed tokens. Words contain only
// letters, digits and marks, so no escaping is needed.
func ftsTerm(words []string, phrase bool) string {
	if phrase || len(words) == 1 {
		return `"` + strings.Join(words, " ") + `"`
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = `"` + w + `"`
	}
	return "(" + strings.Join(quoted, " AND ") + ")"
}

// Delete removes documents.
func (s *SQLiteIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < len(ids); start += 500 {
		end := min(start+500, len(ids))
		batch := ids[start:end]

		placeholders := make([]string, len(batch))
		args := make([]any, len(batch))
		for i, id := range batch {
			placeholders[i] = "?"
			args[i] = id
		}
		in := strings.Join(placeholders, ",")

		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM fts_content WHERE doc_id IN (%s)", in), args...); err != nil {
			return fmt.Errorf("failed to delete from FTS: %w", err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM doc_ids WHERE doc_id IN (%s)", in), args...); err != nil {
			return fmt.Errorf("failed to delete from doc_ids: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ierrors.New(ierrors.ErrCodeIndexFailed, "failed to commit text index delete", err)
	}
	return nil
}

// AllIDs returns all document ids.
func (s *SQLiteIndex) AllIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}

	rows, err := s.db.Query(`SELECT doc_id FROM doc_ids ORDER BY doc_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats returns index statistics.
func (s *SQLiteIndex) Stats() *IndexStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return &IndexStats{}
	}
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM doc_ids`).Scan(&count); err != nil {
		return &IndexStats{}
	}
	return &IndexStats{DocumentCount: count}
}

// Close checkpoints the WAL and closes the database. Closing twice is a
// no-op.
func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}
