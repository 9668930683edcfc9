package retrieval

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

var registerVec sync.Once

// SQLiteVecIndex keeps vectors in a vec0 virtual table of a private
// in-memory SQLite database. Distances are Euclidean as reported by vec0.
type SQLiteVecIndex struct {
	mu       sync.Mutex
	db       *sql.DB
	dims     int
	snippets map[int64]Snippet
}

func NewSQLiteVecIndex() (*SQLiteVecIndex, error) {
	registerVec.Do(sqlite_vec.Auto)

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return &SQLiteVecIndex{db: db, snippets: map[int64]Snippet{}}, nil
}

func (s *SQLiteVecIndex) Add(ctx context.Context, snippets []Snippet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(snippets) == 0 {
		return nil
	}
	if s.dims == 0 {
		s.dims = len(snippets[0].Vector)
		if s.dims == 0 {
			return fmt.Errorf("snippet %d has no vector", snippets[0].ID)
		}
		ddl := fmt.Sprintf("CREATE VIRTUAL TABLE schema_snippets USING vec0(embedding float[%d])", s.dims)
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create vec0 table: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, snippet := range snippets {
		if len(snippet.Vector) != s.dims {
			return fmt.Errorf("snippet %d has %d dimensions, want %d", snippet.ID, len(snippet.Vector), s.dims)
		}
		blob, err := sqlite_vec.SerializeFloat32(snippet.Vector)
		if err != nil {
			return fmt.Errorf("serialize snippet %d: %w", snippet.ID, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_snippets(rowid, embedding) VALUES (?, ?)", int64(snippet.ID), blob); err != nil {
			return fmt.Errorf("insert snippet %d: %w", snippet.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	for _, snippet := range snippets {
		s.snippets[int64(snippet.ID)] = snippet
	}
	return nil
}

func (s *SQLiteVecIndex) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k <= 0 || len(s.snippets) == 0 {
		return nil, nil
	}
	if len(vector) != s.dims {
		return nil, fmt.Errorf("query has %d dimensions, want %d", len(vector), s.dims)
	}
	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, fmt.Errorf("serialize query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT rowid, distance FROM schema_snippets WHERE embedding MATCH ? ORDER BY distance LIMIT ?",
		blob, k,
	)
	if err != nil {
		return nil, fmt.Errorf("knn query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	matches := make([]Match, 0, k)
	for rows.Next() {
		var rowID int64
		var distance float64
		if err := rows.Scan(&rowID, &distance); err != nil {
			return nil, fmt.Errorf("scan knn row: %w", err)
		}
		snippet, ok := s.snippets[rowID]
		if !ok {
			return nil, fmt.Errorf("index returned unknown snippet %d", rowID)
		}
		matches = append(matches, Match{Snippet: snippet, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knn rows: %w", err)
	}
	return matches, nil
}

func (s *SQLiteVecIndex) Close() error {
	return s.db.Close()
}
