package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeFine(t *testing.T) {
	due := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want int64
	}{
		{"exactly due", due, 0},
		{"one millisecond early", due.Add(-time.Millisecond), 0},
		{"a week early", due.Add(-7 * day), 0},
		{"one millisecond late", due.Add(time.Millisecond), 10},
		{"one minute late", due.Add(time.Minute), 10},
		{"exactly one day late", due.Add(day), 10},
		{"twenty five hours late", due.Add(25 * time.Hour), 20},
		{"three days late", due.Add(3 * day), 30},
		{"three days and a second late", due.Add(3*day + time.Second), 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeFine(due, tt.now, 10))
		})
	}
}

func TestComputeFine_Rate(t *testing.T) {
	due := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, int64(50), ComputeFine(due, due.Add(2*day), 25))
	assert.Equal(t, int64(0), ComputeFine(due, due.Add(2*day), 0))
}

func TestComputeFine_Deterministic(t *testing.T) {
	due := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	now := due.Add(49 * time.Hour)

	first := ComputeFine(due, now, 10)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, ComputeFine(due, now, 10))
	}
}
