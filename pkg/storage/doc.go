// Package storage holds the filesystem primitives shared by the cache,
// checkpoint and merge packages.
//
//   - Canon maps free-form names (keywords, sessions, platforms) to safe,
//     stable file name stems.
//   - WriteAtomic writes a file through a temporary sibling, fsyncs it and
//     renames it over the target, so readers see the old or the new
//     content and never a mix.
//   - IDIndex is the in-memory set of identifiers already persisted for a
//     store, used to drop duplicates before they are written.
//   - AcquireLock takes a best-effort, directory-based exclusive lock.
package storage
