package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	errs "postharvest/pkg/errors"
	"postharvest/pkg/logger"
	"postharvest/pkg/models"
	"postharvest/pkg/storage"
)

// codec turns records into bytes for one flat-file format
type codec interface {
	// scan decodes a whole file. fatal is set when the file is not in this
	// format at all, as opposed to holding some damaged entries.
	scan(data []byte) (res scanResult, fatal error)
	// encode renders records, preceded by a header when the format has one
	encode(records []models.Record, withHeader bool) ([]byte, error)
}

type scanResult struct {
	records []models.Record
	// goodEnd is the offset just past the last intact entry
	goodEnd int64
	corrupt []corruptEntry
}

type corruptEntry struct {
	offset int64
	err    error
}

// fileState is what the store remembers about a file between appends
type fileState struct {
	index *storage.IDIndex
	// size is the file length after our last successful write
	size int64
}

// fileStore implements Store for append-only flat files
type fileStore struct {
	layout layout
	format models.Format
	codec  codec
	logger logger.Logger

	mu     sync.Mutex
	states map[string]*fileState
	locks  map[string]*sync.Mutex
}

func newFileStore(l layout, format models.Format, c codec, log logger.Logger) *fileStore {
	return &fileStore{
		layout: l,
		format: format,
		codec:  c,
		logger: log,
		states: make(map[string]*fileState),
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *fileStore) Format() models.Format { return s.format }

func (s *fileStore) Path(platform, key string) string { return s.layout.path(platform, key) }

func (s *fileStore) Exists(platform, key string) bool { return s.layout.exists(platform, key) }

func (s *fileStore) ListKeys(ctx context.Context, platform string) ([]KeyInfo, error) {
	return s.layout.listKeys(ctx, platform, s.format)
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) pathLock(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	return l
}

func (s *fileStore) cachedState(path string) *fileState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[path]
}

func (s *fileStore) setState(path string, st *fileState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st == nil {
		delete(s.states, path)
		return
	}
	s.states[path] = st
}

// Append writes the records not yet stored for key
func (s *fileStore) Append(ctx context.Context, platform, key string, records []models.Record) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	batch := prepareBatch(key, records, s.logger)
	if len(batch) == 0 {
		return 0, nil
	}

	path := s.layout.path(platform, key)
	lock := s.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	st, err := s.prepareFile(path, key)
	if err != nil {
		return 0, err
	}

	fresh := make([]models.Record, 0, len(batch))
	for _, rec := range batch {
		if !st.index.Has(rec.ID) {
			fresh = append(fresh, rec)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	data, err := s.codec.encode(fresh, st.size == 0)
	if err != nil {
		return 0, errs.NewStorage(fmt.Sprintf("encode records for %q", key), err)
	}

	if err := appendBytes(path, data); err != nil {
		// The file may now end in a partial write; force a rescan next time
		s.setState(path, nil)
		return 0, errs.NewStorage(fmt.Sprintf("append to %s", filepath.Base(path)), err)
	}

	for _, rec := range fresh {
		st.index.Add(rec.ID)
	}
	st.size += int64(len(data))

	s.logger.DebugWithFields("Records appended", map[string]interface{}{
		"key":      key,
		"appended": len(fresh),
		"skipped":  len(records) - len(fresh),
		"path":     path,
	})
	return len(fresh), nil
}

// prepareFile returns the state for path, rescanning the file when it
// changed behind our back and truncating any torn tail
func (s *fileStore) prepareFile(path, key string) (*fileState, error) {
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		st := &fileState{index: storage.NewIDIndex()}
		s.setState(path, st)
		return st, nil
	case err != nil:
		return nil, errs.NewStorage("stat cache file", err)
	}

	if st := s.cachedState(path); st != nil && st.size == info.Size() {
		return st, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.NewStorage("read cache file", err)
	}
	res, fatal := s.codec.scan(data)
	if fatal != nil {
		return nil, errs.NewStorage(fmt.Sprintf("%s is not a valid %s store", filepath.Base(path), s.format), fatal)
	}
	s.logCorrupt(path, key, res.corrupt)

	if res.goodEnd < int64(len(data)) {
		if err := os.Truncate(path, res.goodEnd); err != nil {
			return nil, errs.NewStorage("truncate torn tail", err)
		}
		s.logger.WarnWithFields("Truncated damaged tail before append", map[string]interface{}{
			"key":         key,
			"path":        path,
			"kept_bytes":  res.goodEnd,
			"dropped_len": int64(len(data)) - res.goodEnd,
		})
	}

	ids := make([]string, 0, len(res.records))
	for _, rec := range res.records {
		ids = append(ids, rec.ID)
	}
	st := &fileState{index: storage.NewIDIndex(ids...), size: res.goodEnd}
	s.setState(path, st)
	return st, nil
}

func appendBytes(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// ReadAll returns every intact record stored for key
func (s *fileStore) ReadAll(ctx context.Context, platform, key string) ([]models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.layout.path(platform, key)
	lock := s.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s/%s: %w", platform, key, ErrNotFound)
		}
		return nil, errs.NewStorage("read cache file", err)
	}

	res, fatal := s.codec.scan(data)
	if fatal != nil {
		return nil, errs.NewCorrupt(fmt.Sprintf("%s is not a valid %s store", filepath.Base(path), s.format), fatal)
	}
	s.logCorrupt(path, key, res.corrupt)

	if res.records == nil {
		res.records = []models.Record{}
	}
	return res.records, nil
}

func (s *fileStore) logCorrupt(path, key string, corrupt []corruptEntry) {
	for _, c := range corrupt {
		s.logger.WarnWithFields("Skipping corrupt entry", map[string]interface{}{
			"key":    key,
			"path":   path,
			"offset": c.offset,
			"error":  errs.NewCorrupt("undecodable entry", c.err).Error(),
		})
	}
}
