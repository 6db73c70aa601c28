// Package merge combines the per-key cache stores of a collection session
// into a single deduplicated dataset.
//
// Stores are read concurrently but concatenated in the order the keys were
// given, so the same inputs always produce the same file. When an ID
// appears under several keys, the record from the earliest key wins.
//
//	engine, _ := merge.NewEngine(cfg.Storage, log, store)
//	summary, err := engine.MergeAll(ctx, "bluesky", "ctf", keys, models.FormatCSV)
package merge
