package cache

import (
	"bytes"
	"encoding/json"
	"errors"

	"postharvest/pkg/models"
)

// jsonlCodec stores one JSON object per line
type jsonlCodec struct{}

func (jsonlCodec) encode(records []models.Record, _ bool) ([]byte, error) {
	var buf bytes.Buffer
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func (jsonlCodec) scan(data []byte) (scanResult, error) {
	var res scanResult
	offset := 0
	for offset < len(data) {
		nl := bytes.IndexByte(data[offset:], '\n')
		if nl < 0 {
			res.corrupt = append(res.corrupt, corruptEntry{offset: int64(offset), err: errors.New("line not terminated")})
			break
		}
		line := bytes.TrimSpace(data[offset : offset+nl])
		start := offset
		offset += nl + 1

		if len(line) == 0 {
			continue
		}

		var rec models.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			res.corrupt = append(res.corrupt, corruptEntry{offset: int64(start), err: err})
			continue
		}
		if rec.ID == "" {
			res.corrupt = append(res.corrupt, corruptEntry{offset: int64(start), err: errors.New("empty id")})
			continue
		}
		res.records = append(res.records, rec)
		res.goodEnd = int64(offset)
	}
	return res, nil
}
