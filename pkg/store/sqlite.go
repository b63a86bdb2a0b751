package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Memory is a persisted memory record. Embedding holds little-endian
// float32 bytes, or nil when no embedding was available at write time.
type Memory struct {
	ID        int64
	Content   string
	Embedding []byte
	Scope     string
	CreatedAt time.Time
}

// Store is a SQLite-backed memory store
type Store struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// Config holds store configuration
type Config struct {
	Path   string
	Logger zerolog.Logger
}

// Open opens (creating if needed) the memory store
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("store path is required")
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for concurrent readers alongside the single writer
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		path:   cfg.Path,
		logger: cfg.Logger,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT NOT NULL,
			embedding BLOB,
			scope TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_memories_scope ON memories(scope);
		CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveMemory inserts a memory and returns its id
func (s *Store) SaveMemory(ctx context.Context, content string, embedding []byte, scope string) (int64, error) {
	if content == "" {
		return 0, errors.New("content is required")
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO memories (content, embedding, scope, created_at) VALUES (?, ?, ?, ?)",
		content, embedding, scope, time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert memory: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted id: %w", err)
	}

	return id, nil
}

// UpdateEmbedding sets the embedding blob for an existing memory.
// Content and timestamps are immutable; this exists only to backfill
// memories stored while the embedding service was unavailable.
func (s *Store) UpdateEmbedding(ctx context.Context, id int64, embedding []byte) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE memories SET embedding = ? WHERE id = ?", embedding, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update embedding for memory %d: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("memory %d not found", id)
	}
	return nil
}

// GetAllMemories returns all memories, optionally filtered by scope
func (s *Store) GetAllMemories(ctx context.Context, scope string) ([]Memory, error) {
	return s.queryMemories(ctx, 0, scope)
}

// GetMemoriesAfter returns memories with id greater than afterID,
// optionally filtered by scope. Used for incremental cache refresh.
func (s *Store) GetMemoriesAfter(ctx context.Context, afterID int64, scope string) ([]Memory, error) {
	return s.queryMemories(ctx, afterID, scope)
}

func (s *Store) queryMemories(ctx context.Context, afterID int64, scope string) ([]Memory, error) {
	query := "SELECT id, content, embedding, scope, created_at FROM memories WHERE id > ?"
	args := []interface{}{afterID}
	if scope != "" {
		query += " AND scope = ?"
		args = append(args, scope)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var memories []Memory
	for rows.Next() {
		var m Memory
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.Content, &m.Embedding, &m.Scope, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		m.CreatedAt = time.Unix(createdAt, 0)
		memories = append(memories, m)
	}

	return memories, rows.Err()
}

// GetMemory returns a single memory by id
func (s *Store) GetMemory(ctx context.Context, id int64) (*Memory, error) {
	var m Memory
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, content, embedding, scope, created_at FROM memories WHERE id = ?", id,
	).Scan(&m.ID, &m.Content, &m.Embedding, &m.Scope, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query memory %d: %w", id, err)
	}
	m.CreatedAt = time.Unix(createdAt, 0)
	return &m, nil
}

// Count returns the number of stored memories
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count memories: %w", err)
	}
	return n, nil
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// Close closes the store
func (s *Store) Close() error {
	return s.db.Close()
}
