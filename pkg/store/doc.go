// Package store persists memory records in SQLite.
//
// Invariants:
// - Memory ids are assigned by the database and never reused.
// - Records are append-only: content and embedding never change after insert.
// - Reads are safe from concurrent goroutines (WAL mode).
//
// Usage:
//
//	st, _ := store.Open(store.Config{Path: "/data/memories.db"})
//	defer st.Close()
//	id, _ := st.SaveMemory(ctx, "I like pizza", embeddingBytes, "user:42")
//	all, _ := st.GetAllMemories(ctx, "")
//	_, _ = id, all
package store
