package handler

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podforge/podforge-be/internal/podcast/store"
)

func TestJobCursorRoundTrip(t *testing.T) {
	original := &store.JobCursor{
		CreatedAt: time.Date(2026, 8, 15, 10, 30, 0, 123456789, time.UTC),
		JobID:     "99999999-9999-9999-9999-999999999999",
	}

	encoded := EncodeJobCursor(original)
	decoded, err := DecodeJobCursor(encoded)

	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.True(t, original.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, original.JobID, decoded.JobID)
}

func TestDecodeJobCursorEmpty(t *testing.T) {
	cursor, err := DecodeJobCursor("")
	require.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestDecodeJobCursorInvalid(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{
			name:   "not base64",
			cursor: "!!definitely not base64!!",
		},
		{
			name:   "missing separator",
			cursor: base64.StdEncoding.EncodeToString([]byte("1234567890")),
		},
		{
			name:   "non-numeric timestamp",
			cursor: base64.StdEncoding.EncodeToString([]byte("abc|job-1")),
		},
		{
			name:   "empty job id",
			cursor: base64.StdEncoding.EncodeToString([]byte("1234567890|")),
		},
		{
			name:   "too many fields",
			cursor: base64.StdEncoding.EncodeToString([]byte("123|job-1|extra")),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cursor, err := DecodeJobCursor(tt.cursor)
			require.Error(t, err)
			assert.Nil(t, cursor)
		})
	}
}
