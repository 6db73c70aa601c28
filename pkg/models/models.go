package models

import (
	"fmt"
	"strings"
	"time"
)

// Record is one collected item, identified by a source-stable ID
type Record struct {
	ID           string      `json:"id"`
	Key          string      `json:"key"`
	Text         string      `json:"text"`
	AuthorHandle string      `json:"author_handle"`
	AuthorName   string      `json:"author_name"`
	AuthorID     string      `json:"author_id"`
	CreatedAt    string      `json:"created_at"`
	AuthorBio    string      `json:"author_bio"`
	Enrichment   *Enrichment `json:"enrichment,omitempty"`
}

// Enrichment holds the inferred location of a record
type Enrichment struct {
	Country    string  `json:"country"`
	Region     string  `json:"region"`
	Confidence float64 `json:"confidence"`
}

// Page is a single producer response
type Page struct {
	Records    []Record
	NextCursor string
}

// Format selects a storage backend
type Format string

const (
	FormatCSV    Format = "csv"
	FormatJSONL  Format = "jsonl"
	FormatSQLite Format = "sqlite"
)

// Formats lists every supported format in display order
var Formats = []Format{FormatCSV, FormatJSONL, FormatSQLite}

// ParseFormat accepts a format name or one of its aliases
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "jsonl", "json", "ndjson":
		return FormatJSONL, nil
	case "sqlite", "db", "sqlite3":
		return FormatSQLite, nil
	default:
		return "", fmt.Errorf("unknown cache format %q (expected csv, jsonl or sqlite)", s)
	}
}

// Ext returns the file extension used for artifacts of this format
func (f Format) Ext() string {
	switch f {
	case FormatJSONL:
		return "jsonl"
	case FormatSQLite:
		return "db"
	default:
		return "csv"
	}
}

func (f Format) String() string {
	return string(f)
}

// KeyStatus is the lifecycle state of a single key within a session
type KeyStatus string

const (
	KeyPending    KeyStatus = "pending"
	KeyInProgress KeyStatus = "in_progress"
	KeySucceeded  KeyStatus = "success"
	KeyFailed     KeyStatus = "failed"
	KeyEmpty      KeyStatus = "empty"
)

// Terminal reports whether the status ends processing for the key
func (s KeyStatus) Terminal() bool {
	return s == KeySucceeded || s == KeyFailed || s == KeyEmpty
}

// Options tune a single batch run
type Options struct {
	Limit        int
	Format       Format
	Pause        time.Duration
	Merge        bool
	SaveInterval int
	PageSize     int
	RetryFailed  bool
}

// Session identifies a batch job by (Name, Platform)
type Session struct {
	Name     string
	Platform string
	Keys     []string
	Options  Options
}

// KeyResult reports what happened to one key during a run
type KeyResult struct {
	Key    string    `json:"key"`
	Status KeyStatus `json:"status"`
	Count  int       `json:"count"`
	Error  string    `json:"error,omitempty"`
}
