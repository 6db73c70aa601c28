// Package collector runs a keyword session end to end.
//
// For each key the checkpoint does not already hold as settled, the
// collector pages through the producer, drops IDs it has already seen,
// enriches the records, and appends them to the cache every SaveInterval
// records. A key ends as success, empty or failed and is then written to
// the checkpoint. Append happens before the checkpoint mark, so a crash
// in between only causes the key to be collected again, and cache
// deduplication absorbs the replay.
//
// Cancelling the context stops the run after flushing buffered records;
// the interrupted key stays pending and no merge is attempted.
package collector
