package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"csv", FormatCSV},
		{"CSV", FormatCSV},
		{"jsonl", FormatJSONL},
		{"json", FormatJSONL},
		{" sqlite ", FormatSQLite},
		{"db", FormatSQLite},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseFormat("parquet")
	assert.Error(t, err)
}

func TestFormatExt(t *testing.T) {
	assert.Equal(t, "csv", FormatCSV.Ext())
	assert.Equal(t, "jsonl", FormatJSONL.Ext())
	assert.Equal(t, "db", FormatSQLite.Ext())
}

func TestKeyStatusTerminal(t *testing.T) {
	assert.False(t, KeyPending.Terminal())
	assert.False(t, KeyInProgress.Terminal())
	assert.True(t, KeySucceeded.Terminal())
	assert.True(t, KeyFailed.Terminal())
	assert.True(t, KeyEmpty.Terminal())
}
