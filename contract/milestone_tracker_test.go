package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMilestoneThresholds(t *testing.T) {
	assert.Equal(t, [4]int{1, 2, 3, 4}, milestoneThresholds(4))
	assert.Equal(t, [4]int{2, 5, 7, 10}, milestoneThresholds(10))
	assert.Equal(t, [4]int{0, 0, 0, 1}, milestoneThresholds(1))
	assert.Equal(t, [4]int{0, 1, 1, 2}, milestoneThresholds(2))
}

func TestCrossedThreshold(t *testing.T) {
	tests := []struct {
		name          string
		target        int
		prev, cur     int
		wantThreshold int
		wantPercent   int
		wantOK        bool
	}{
		{"first quarter", 4, 0, 1, 1, 25, true},
		{"completion", 4, 3, 4, 4, 100, true},
		{"between thresholds", 10, 2, 3, 0, 0, false},
		{"half of ten", 10, 4, 5, 5, 50, true},
		{"three quarters of ten", 10, 6, 7, 7, 75, true},
		{"zero thresholds never fire", 1, 0, 1, 1, 100, true},
		{"coinciding thresholds report the lowest percent", 2, 0, 1, 1, 50, true},
		{"withdrawal crosses nothing", 4, 2, 1, 0, 0, false},
		{"past target", 4, 4, 5, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th, pct, ok := crossedThreshold(tt.target, tt.prev, tt.cur)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantThreshold, th)
			assert.Equal(t, tt.wantPercent, pct)
		})
	}
}
