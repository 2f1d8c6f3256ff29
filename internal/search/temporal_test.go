package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTemporal(t *testing.T) {
	tests := []struct {
		name string
		ts   time.Time
		want float64
	}{
		{"now", testNow, 1.00},
		{"30 days", daysAgo(30), 0.37},
		{"60 days", daysAgo(60), 0.14},
		{"future is age zero", testNow.Add(48 * time.Hour), 1.00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Temporal(tt.ts, testNow), 0.01)
		})
	}
}

func TestTemporal_Monotonic(t *testing.T) {
	prev := 2.0
	for d := 0.0; d <= 365; d += 7 {
		v := Temporal(daysAgo(d), testNow)
		assert.Less(t, v, prev)
		assert.Greater(t, v, 0.0)
		prev = v
	}
}
