package cache

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"postharvest/pkg/models"
)

var csvHeader = []string{
	"id", "key", "text", "author_handle", "author_name", "author_id",
	"created_at", "author_bio", "country", "region", "confidence",
}

// csvCodec stores one record per row under a header row. Enrichment is
// present exactly when the confidence column is non-empty.
//
// encoding/csv reads a quoted \r\n back as \n, so carriage returns are
// written as the two characters \r and backslashes are doubled.
type csvCodec struct{}

var csvEscaper = strings.NewReplacer(`\`, `\\`, "\r", `\r`)

func unescapeCSV(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			case 'r':
				b.WriteByte('\r')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func (csvCodec) encode(records []models.Record, withHeader bool) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if withHeader {
		if err := w.Write(csvHeader); err != nil {
			return nil, err
		}
	}
	for _, rec := range records {
		if err := w.Write(encodeRow(rec)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeRow(rec models.Record) []string {
	country, region, confidence := "", "", ""
	if e := rec.Enrichment; e != nil {
		country = e.Country
		region = e.Region
		confidence = strconv.FormatFloat(e.Confidence, 'g', -1, 64)
	}
	row := []string{
		rec.ID, rec.Key, rec.Text, rec.AuthorHandle, rec.AuthorName, rec.AuthorID,
		rec.CreatedAt, rec.AuthorBio, country, region, confidence,
	}
	for i := range row {
		row[i] = csvEscaper.Replace(row[i])
	}
	return row
}

func (csvCodec) scan(data []byte) (scanResult, error) {
	var res scanResult
	if len(data) == 0 {
		return res, nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	headerEnd := r.InputOffset()
	if err != nil || data[headerEnd-1] != '\n' {
		// A torn header means the very first write was interrupted
		if err == nil {
			err = errors.New("incomplete header row")
		}
		res.corrupt = append(res.corrupt, corruptEntry{offset: 0, err: err})
		return res, nil
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	if _, ok := cols["id"]; !ok {
		return res, fmt.Errorf("header %v has no id column", header)
	}
	res.goodEnd = headerEnd

	for {
		start := r.InputOffset()
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		end := r.InputOffset()
		if err != nil {
			res.corrupt = append(res.corrupt, corruptEntry{offset: start, err: err})
			if end <= start {
				break
			}
			continue
		}
		if data[end-1] != '\n' {
			res.corrupt = append(res.corrupt, corruptEntry{offset: start, err: errors.New("row not terminated")})
			continue
		}
		if len(row) != len(header) {
			res.corrupt = append(res.corrupt, corruptEntry{
				offset: start,
				err:    fmt.Errorf("row has %d fields, header has %d", len(row), len(header)),
			})
			continue
		}
		rec, err := decodeRow(cols, row)
		if err != nil {
			res.corrupt = append(res.corrupt, corruptEntry{offset: start, err: err})
			continue
		}
		res.records = append(res.records, rec)
		res.goodEnd = end
	}

	return res, nil
}

func decodeRow(cols map[string]int, row []string) (models.Record, error) {
	get := func(name string) string {
		if i, ok := cols[name]; ok {
			return unescapeCSV(row[i])
		}
		return ""
	}

	rec := models.Record{
		ID:           get("id"),
		Key:          get("key"),
		Text:         get("text"),
		AuthorHandle: get("author_handle"),
		AuthorName:   get("author_name"),
		AuthorID:     get("author_id"),
		CreatedAt:    get("created_at"),
		AuthorBio:    get("author_bio"),
	}
	if rec.ID == "" {
		return rec, errors.New("empty id")
	}

	if raw := get("confidence"); raw != "" {
		confidence, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return rec, fmt.Errorf("bad confidence %q: %w", raw, err)
		}
		rec.Enrichment = &models.Enrichment{
			Country:    get("country"),
			Region:     get("region"),
			Confidence: confidence,
		}
	}
	return rec, nil
}
