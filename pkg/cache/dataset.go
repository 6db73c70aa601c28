package cache

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	errs "postharvest/pkg/errors"
	"postharvest/pkg/models"
	"postharvest/pkg/storage"
)

// WriteDataset replaces the file at path with records in the given format.
// The new content is built beside path and renamed over it, so a reader
// sees either the previous dataset or the complete new one.
func WriteDataset(ctx context.Context, path string, format models.Format, records []models.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch format {
	case models.FormatCSV, models.FormatJSONL:
		c := codecFor(format)
		data, err := c.encode(records, true)
		if err != nil {
			return errs.NewStorage("encode dataset", err)
		}
		err = storage.WriteAtomic(path, 0644, func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		})
		if err != nil {
			return errs.NewStorage("write dataset", err)
		}
		return nil
	case models.FormatSQLite:
		return writeSQLiteDataset(ctx, path, records)
	default:
		return fmt.Errorf("unsupported dataset format %q", format)
	}
}

func writeSQLiteDataset(ctx context.Context, path string, records []models.Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errs.NewStorage("create dataset directory", err)
	}

	tempPath := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	os.Remove(tempPath)

	db, err := openPostsDB(ctx, tempPath)
	if err != nil {
		os.Remove(tempPath)
		return errs.NewStorage("create dataset database", err)
	}

	if _, err := insertPosts(ctx, db, records); err != nil {
		db.Close()
		os.Remove(tempPath)
		return err
	}
	if err := db.Close(); err != nil {
		os.Remove(tempPath)
		return errs.NewStorage("close dataset database", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return errs.NewStorage("replace dataset", err)
	}
	return nil
}

// ReadDataset reads a whole file written by WriteDataset or by a Store
func ReadDataset(ctx context.Context, path string, format models.Format) ([]models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, errs.NewStorage("stat dataset", err)
	}

	switch format {
	case models.FormatCSV, models.FormatJSONL:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.NewStorage("read dataset", err)
		}
		res, fatal := codecFor(format).scan(data)
		if fatal != nil {
			return nil, errs.NewCorrupt(filepath.Base(path), fatal)
		}
		if res.records == nil {
			res.records = []models.Record{}
		}
		return res.records, nil
	case models.FormatSQLite:
		db, err := openPostsDB(ctx, path)
		if err != nil {
			return nil, errs.NewStorage("open dataset", err)
		}
		defer db.Close()
		return queryPosts(ctx, db, func(error) {})
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", format)
	}
}

func codecFor(format models.Format) codec {
	if format == models.FormatJSONL {
		return jsonlCodec{}
	}
	return csvCodec{}
}
