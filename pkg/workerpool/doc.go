// Package workerpool provides lane-based task execution with FIFO ordering
// per lane.
//
// Invariants:
// - Tasks in the same lane execute in FIFO order.
// - Tasks in different lanes may execute concurrently.
// - CPU-bound index work and disk flushes run on dedicated lanes so they
//   never block unrelated in-flight searches.
//
// Usage:
//
//	pool := workerpool.New(logger)
//	defer pool.Close()
//	result, err := pool.Submit(ctx, workerpool.LaneDisk, func(ctx context.Context) (interface{}, error) {
//		return index.SaveToDisk(), nil
//	})
//	_, _ = result, err
package workerpool
