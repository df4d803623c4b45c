package rabbitmq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishBackoff(t *testing.T) {
	base := 100 * time.Millisecond

	tests := []struct {
		name       string
		multiplier float64
		attempt    int
		want       time.Duration
	}{
		{"first retry uses base delay", 3, 0, 100 * time.Millisecond},
		{"configured multiplier compounds", 3, 2, 900 * time.Millisecond},
		{"fractional multiplier", 1.5, 1, 150 * time.Millisecond},
		{"zero multiplier falls back to doubling", 0, 2, 400 * time.Millisecond},
		{"multiplier of one falls back to doubling", 1, 1, 200 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, publishBackoff(base, tt.multiplier, tt.attempt))
		})
	}
}
