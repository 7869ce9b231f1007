package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// SQLiteVec is the local/dev Vector Index Client backend: a sqlite-vec
// vec0 virtual table under the standard WAL pragma convention, scoped to
// one conversation's chunk table rather than a whole document store.
type SQLiteVec struct {
	mu  sync.Mutex
	db  *sql.DB
	dim int
}

// NewSQLiteVec opens (creating if necessary) a sqlite-vec database at path
// sized for embeddings of dimension dim.
func NewSQLiteVec(path string, dim int) (*SQLiteVec, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: opening sqlite-vec database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS chunks (
    rowid INTEGER PRIMARY KEY,
    chunk_id TEXT NOT NULL UNIQUE,
    conversation_id TEXT NOT NULL,
    line_first INTEGER NOT NULL,
    line_last INTEGER NOT NULL,
    content TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_conversation ON chunks(conversation_id);

CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
    rowid INTEGER PRIMARY KEY,
    embedding float[%d]
);
`, dim)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("vectorindex: creating schema: %w", err)
	}

	return &SQLiteVec{db: db, dim: dim}, nil
}

func (s *SQLiteVec) Upsert(ctx context.Context, conversationID string, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (chunk_id, conversation_id, line_first, line_last, content)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			line_first = excluded.line_first,
			line_last = excluded.line_last,
			content = excluded.content
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ChunkID, conversationID, c.LineFirst, c.LineLast, c.Text); err != nil {
			return fmt.Errorf("vectorindex: upserting chunk %s: %w", c.ChunkID, err)
		}
		var rowid int64
		if err := tx.QueryRowContext(ctx, "SELECT rowid FROM chunks WHERE chunk_id = ?", c.ChunkID).Scan(&rowid); err != nil {
			return fmt.Errorf("vectorindex: resolving rowid for chunk %s: %w", c.ChunkID, err)
		}
		if len(c.Embedding) > 0 {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR REPLACE INTO vec_chunks (rowid, embedding) VALUES (?, ?)",
				rowid, serializeFloat32(c.Embedding)); err != nil {
				return fmt.Errorf("vectorindex: upserting embedding: %w", err)
			}
		}
	}

	return tx.Commit()
}

func (s *SQLiteVec) Query(ctx context.Context, conversationID string, embedding []float32, k int) ([]Result, error) {
	if k <= 0 {
		k = 10
	}
	// sqlite-vec's vec0 MATCH cannot be combined with an arbitrary WHERE
	// predicate in one pass portably, so the candidate pool is widened
	// and filtered by conversation_id after the KNN search.
	candidatePool := k * 8
	if candidatePool < 50 {
		candidatePool = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.chunk_id, c.line_first, c.line_last, c.content, v.distance
		FROM vec_chunks v
		JOIN chunks c ON c.rowid = v.rowid
		WHERE v.embedding MATCH ? AND k = ? AND c.conversation_id = ?
		ORDER BY v.distance, c.line_first
		LIMIT ?
	`, serializeFloat32(embedding), candidatePool, conversationID, k)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: querying: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var distance float64
		if err := rows.Scan(&r.ChunkID, &r.LineFirst, &r.LineLast, &r.Text, &distance); err != nil {
			return nil, err
		}
		r.Score = 1.0 - distance
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLiteVec) Drop(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, "SELECT rowid FROM chunks WHERE conversation_id = ?", conversationID)
	if err != nil {
		return err
	}
	var rowids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		rowids = append(rowids, id)
	}
	rows.Close()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, id := range rowids {
		if _, err := tx.ExecContext(ctx, "DELETE FROM vec_chunks WHERE rowid = ?", id); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE conversation_id = ?", conversationID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteVec) Close() error {
	return s.db.Close()
}

// serializeFloat32 encodes an embedding the way sqlite-vec expects it,
// mirroring teacher store.serializeFloat32.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		bits := math.Float32bits(f)
		buf[4*i] = byte(bits)
		buf[4*i+1] = byte(bits >> 8)
		buf[4*i+2] = byte(bits >> 16)
		buf[4*i+3] = byte(bits >> 24)
	}
	return buf
}
