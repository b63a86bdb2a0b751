// Package memory provides long-term memory storage with hybrid retrieval.
//
// Invariants:
// - The vector index and its id map always have equal cardinality.
// - Embeddings are immutable once computed.
// - Search degrades (semantic-only, keyword-only, or empty) instead of failing.
// - Index persistence is atomic: readers never observe a partial artifact pair.
//
// Usage:
//
//	mgr, _ := memory.NewManager(memory.Config{Store: st, IndexPath: "/data/index/memories"})
//	defer mgr.Close()
//	_ = mgr.AddMemory(ctx, "I like pizza", "user:42")
//	results := mgr.HybridSearch(ctx, "pizza", mgr.DefaultSearchOptions())
//	_ = results
package memory
