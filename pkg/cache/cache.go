package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"postharvest/pkg/config"
	"postharvest/pkg/logger"
	"postharvest/pkg/models"
	"postharvest/pkg/storage"
)

// ErrNotFound is returned by ReadAll when no store exists for the key
var ErrNotFound = errors.New("cache entry not found")

// KeyInfo describes one per-key store on disk
type KeyInfo struct {
	Name       string        `json:"name"`
	Path       string        `json:"path"`
	Format     models.Format `json:"format"`
	SizeBytes  int64         `json:"size_bytes"`
	ModifiedAt time.Time     `json:"modified_at"`
}

// Store is a per-key incremental record store
type Store interface {
	// Format reports which backend the store writes
	Format() models.Format
	// Append adds records not already stored for the key and returns how many were written
	Append(ctx context.Context, platform, key string, records []models.Record) (int, error)
	// ReadAll returns every intact record stored for the key, in write order
	ReadAll(ctx context.Context, platform, key string) ([]models.Record, error)
	// ListKeys returns the stores present for a platform, sorted by name
	ListKeys(ctx context.Context, platform string) ([]KeyInfo, error)
	// Exists reports whether a store has been created for the key
	Exists(platform, key string) bool
	// Path returns where the key's store lives
	Path(platform, key string) string
	// Close releases any open handles
	Close() error
}

// New returns the backend for format rooted at cfg.CacheDir
func New(cfg config.StorageConfig, format models.Format, log logger.Logger) (Store, error) {
	if strings.TrimSpace(cfg.CacheDir) == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	l := layout{dir: cfg.CacheDir, ext: format.Ext()}
	log = logger.OrDefault(log).WithFields(map[string]interface{}{
		"component": "cache",
		"format":    string(format),
	})

	switch format {
	case models.FormatCSV:
		return newFileStore(l, format, csvCodec{}, log), nil
	case models.FormatJSONL:
		return newFileStore(l, format, jsonlCodec{}, log), nil
	case models.FormatSQLite:
		return newSQLiteStore(l, log), nil
	default:
		return nil, fmt.Errorf("unsupported cache format %q", format)
	}
}

// layout maps (platform, key) to artifact paths
type layout struct {
	dir string
	ext string
}

func (l layout) platformDir(platform string) string {
	return filepath.Join(l.dir, storage.Canon(platform))
}

func (l layout) path(platform, key string) string {
	return filepath.Join(l.platformDir(platform), storage.Canon(key)+"."+l.ext)
}

func (l layout) exists(platform, key string) bool {
	info, err := os.Stat(l.path(platform, key))
	return err == nil && !info.IsDir()
}

func (l layout) listKeys(ctx context.Context, platform string, format models.Format) ([]KeyInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := l.platformDir(platform)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list cache directory: %w", err)
	}

	suffix := "." + l.ext
	var keys []KeyInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, suffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		keys = append(keys, KeyInfo{
			Name:       strings.TrimSuffix(name, suffix),
			Path:       filepath.Join(dir, name),
			Format:     format,
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].Name < keys[j].Name })
	return keys, nil
}

// prepareBatch stamps the key onto records that lack one and drops
// records without an ID or repeated within the batch. Invalid UTF-8 is
// replaced with U+FFFD so that every format stores the same text.
func prepareBatch(key string, records []models.Record, log logger.Logger) []models.Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]models.Record, 0, len(records))
	for _, rec := range records {
		if repairUTF8(&rec) {
			log.WarnWithFields("Replaced invalid UTF-8 in record", map[string]interface{}{
				"key": key,
				"id":  rec.ID,
			})
		}
		if rec.ID == "" {
			log.WarnWithFields("Dropping record without ID", map[string]interface{}{"key": key})
			continue
		}
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}
		if rec.Key == "" {
			rec.Key = key
		}
		out = append(out, rec)
	}
	return out
}

// repairUTF8 fixes invalid UTF-8 in rec's text fields and reports whether
// anything changed
func repairUTF8(rec *models.Record) bool {
	fields := []*string{
		&rec.ID, &rec.Key, &rec.Text, &rec.AuthorHandle, &rec.AuthorName,
		&rec.AuthorID, &rec.CreatedAt, &rec.AuthorBio,
	}
	if rec.Enrichment != nil {
		e := *rec.Enrichment
		rec.Enrichment = &e
		fields = append(fields, &e.Country, &e.Region)
	}

	changed := false
	for _, f := range fields {
		if !utf8.ValidString(*f) {
			*f = strings.ToValidUTF8(*f, "\uFFFD")
			changed = true
		}
	}
	return changed
}
