// Package cache persists collected records per (platform, key) and reads
// them back, in one of three interchangeable formats chosen at
// construction: CSV with a header row, JSON Lines, or an SQLite database.
//
// Every backend appends without rewriting earlier entries and drops
// records whose ID is already stored for that key, so replaying a batch
// after a crash never duplicates data. A torn trailing entry left by an
// interrupted write is skipped on read and cut off before the next append.
//
// Artifacts live at <cache_dir>/<canon(platform)>/<canon(key)>.<ext>,
// where canon is storage.Canon.
package cache
