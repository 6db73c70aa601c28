package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	errs "postharvest/pkg/errors"
	"postharvest/pkg/logger"
	"postharvest/pkg/models"
)

const postsSchema = `
CREATE TABLE IF NOT EXISTS posts (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL UNIQUE,
	key           TEXT NOT NULL,
	text          TEXT NOT NULL,
	author_handle TEXT NOT NULL,
	author_name   TEXT NOT NULL,
	author_id     TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	author_bio    TEXT NOT NULL,
	country       TEXT,
	region        TEXT,
	confidence    REAL
)`

var postColumns = []string{
	"id", "key", "text", "author_handle", "author_name", "author_id",
	"created_at", "author_bio", "country", "region", "confidence",
}

// sqliteStore keeps one database file per key with a single posts table.
// Duplicate IDs are rejected by the UNIQUE constraint via INSERT OR IGNORE.
type sqliteStore struct {
	layout layout
	logger logger.Logger

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func newSQLiteStore(l layout, log logger.Logger) *sqliteStore {
	return &sqliteStore{
		layout: l,
		logger: log,
		dbs:    make(map[string]*sql.DB),
	}
}

func (s *sqliteStore) Format() models.Format { return models.FormatSQLite }

func (s *sqliteStore) Path(platform, key string) string { return s.layout.path(platform, key) }

func (s *sqliteStore) Exists(platform, key string) bool { return s.layout.exists(platform, key) }

func (s *sqliteStore) ListKeys(ctx context.Context, platform string) ([]KeyInfo, error) {
	return s.layout.listKeys(ctx, platform, models.FormatSQLite)
}

// open returns the handle for path, creating the database and schema when create is set
func (s *sqliteStore) open(ctx context.Context, path string, create bool) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if db, ok := s.dbs[path]; ok {
		return db, nil
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if !create {
			return nil, ErrNotFound
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
	}

	db, err := openPostsDB(ctx, path)
	if err != nil {
		return nil, err
	}

	s.dbs[path] = db
	return db, nil
}

func openPostsDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, postsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create posts table: %w", err)
	}
	return db, nil
}

// Append inserts the batch in one transaction; already stored IDs are ignored
func (s *sqliteStore) Append(ctx context.Context, platform, key string, records []models.Record) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	batch := prepareBatch(key, records, s.logger)
	if len(batch) == 0 {
		return 0, nil
	}

	path := s.layout.path(platform, key)
	db, err := s.open(ctx, path, true)
	if err != nil {
		return 0, errs.NewStorage(fmt.Sprintf("open %s", filepath.Base(path)), err)
	}

	appended, err := insertPosts(ctx, db, batch)
	if err != nil {
		return 0, err
	}

	s.logger.DebugWithFields("Records appended", map[string]interface{}{
		"key":      key,
		"appended": appended,
		"skipped":  len(records) - appended,
		"path":     path,
	})
	return appended, nil
}

// insertPosts writes records in one transaction and returns how many rows were new
func insertPosts(ctx context.Context, db *sql.DB, records []models.Record) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errs.NewStorage("begin transaction", err)
	}
	defer tx.Rollback()

	appended := 0
	for _, rec := range records {
		query, args, err := sq.Insert("posts").
			Options("OR IGNORE").
			Columns(postColumns...).
			Values(postValues(rec)...).
			ToSql()
		if err != nil {
			return 0, errs.NewStorage("build insert", err)
		}

		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, errs.NewStorage(fmt.Sprintf("insert %s", rec.ID), err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, errs.NewStorage("rows affected", err)
		}
		appended += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, errs.NewStorage("commit", err)
	}
	return appended, nil
}

func postValues(rec models.Record) []interface{} {
	var country, region, confidence interface{}
	if e := rec.Enrichment; e != nil {
		country, region, confidence = e.Country, e.Region, e.Confidence
	}
	return []interface{}{
		rec.ID, rec.Key, rec.Text, rec.AuthorHandle, rec.AuthorName, rec.AuthorID,
		rec.CreatedAt, rec.AuthorBio, country, region, confidence,
	}
}

// ReadAll returns the stored rows in insertion order. Rows that fail to
// scan are logged and skipped.
func (s *sqliteStore) ReadAll(ctx context.Context, platform, key string) ([]models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.layout.path(platform, key)
	db, err := s.open(ctx, path, false)
	if err != nil {
		if err == ErrNotFound {
			return nil, fmt.Errorf("%s/%s: %w", platform, key, ErrNotFound)
		}
		return nil, errs.NewStorage(fmt.Sprintf("open %s", filepath.Base(path)), err)
	}

	return queryPosts(ctx, db, func(err error) {
		s.logger.WarnWithFields("Skipping corrupt entry", map[string]interface{}{
			"key":   key,
			"path":  path,
			"error": errs.NewCorrupt("unscannable row", err).Error(),
		})
	})
}

// queryPosts reads every row in insertion order, reporting rows that fail to scan
func queryPosts(ctx context.Context, db *sql.DB, onCorrupt func(error)) ([]models.Record, error) {
	query, args, err := sq.Select(postColumns...).From("posts").OrderBy("seq").ToSql()
	if err != nil {
		return nil, errs.NewStorage("build select", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.NewStorage("query posts", err)
	}
	defer rows.Close()

	records := []models.Record{}
	for rows.Next() {
		var (
			rec        models.Record
			country    sql.NullString
			region     sql.NullString
			confidence sql.NullFloat64
		)
		err := rows.Scan(&rec.ID, &rec.Key, &rec.Text, &rec.AuthorHandle, &rec.AuthorName,
			&rec.AuthorID, &rec.CreatedAt, &rec.AuthorBio, &country, &region, &confidence)
		if err != nil {
			onCorrupt(err)
			continue
		}
		if confidence.Valid {
			rec.Enrichment = &models.Enrichment{
				Country:    country.String,
				Region:     region.String,
				Confidence: confidence.Float64,
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewStorage("iterate posts", err)
	}

	return records, nil
}

// Close closes every open database handle
func (s *sqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for path, db := range s.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", filepath.Base(path), err)
		}
		delete(s.dbs, path)
	}
	return firstErr
}
