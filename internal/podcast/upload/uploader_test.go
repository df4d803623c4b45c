package upload

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podforge/podforge-be/internal/podcast/domain"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		ext      string
		want     string
	}{
		{
			name:     "clean name keeps its base",
			filename: "lecture-notes.pdf",
			ext:      ".wav",
			want:     "lecture-notes.wav",
		},
		{
			name:     "special characters stripped",
			filename: "my file (final)!?.pdf",
			ext:      ".wav",
			want:     "my_file_final.wav",
		},
		{
			name:     "path components dropped",
			filename: "../../etc/passwd.pdf",
			ext:      ".wav",
			want:     "passwd.wav",
		},
		{
			name:     "unicode collapses to fallback",
			filename: "講義ノート.pdf",
			ext:      ".wav",
			want:     "podcast.wav",
		},
		{
			name:     "empty name falls back",
			filename: "",
			ext:      ".wav",
			want:     "podcast.wav",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.filename, tt.ext))
		})
	}
}

func TestPutPodcastEnforcesPayloadCeiling(t *testing.T) {
	// No S3 round trip happens: the ceiling check fires first.
	c := &Client{bucket: "test", baseURL: "https://cdn.example.com", logger: slog.New(slog.DiscardHandler)}

	oversized := make([]byte, MaxPodcastBytes+1)
	_, err := c.PutPodcast(context.Background(), "job-1", "doc.pdf", oversized)

	require.Error(t, err)
	var tooLarge *domain.PayloadTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, MaxPodcastBytes+1, tooLarge.SizeBytes)
	assert.Equal(t, MaxPodcastBytes, tooLarge.MaxBytes)

	// The stored error_message is the only diagnostic the user ever sees,
	// so both sizes must survive into the message text.
	assert.Contains(t, err.Error(), fmt.Sprintf("%d bytes", MaxPodcastBytes+1))
	assert.Contains(t, err.Error(), fmt.Sprintf("%d byte upload ceiling", MaxPodcastBytes))
}
