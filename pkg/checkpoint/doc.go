// Package checkpoint records which keywords of a collection session have
// finished, so an interrupted run can resume where it stopped.
//
// Each session is one JSON file, <canon>.checkpoint.json, in the checkpoint
// directory. For every key the file holds its outcome (success, empty or
// failed), the number of records stored and the last error. A key that has
// an outcome is skipped on the next run unless it failed and retries were
// requested.
//
// Writes go to a temporary file that is renamed over the old one, so a crash
// leaves either the previous or the new checkpoint on disk. A session lock
// file keeps two processes from working on the same session.
package checkpoint
