package resources

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderTransitionAllowed(t *testing.T) {
	testCases := []struct {
		from, to string
		allowed  bool
	}{
		{"", "pending", true},
		{"pending", "pending", true},
		{"pending", "ready", true},
		{"pending", "valid", true},
		{"ready", "processing", true},
		{"processing", "valid", true},
		{"ready", "invalid", true},
		{"ready", "pending", false},
		{"processing", "ready", false},
		{"valid", "processing", false},
		{"valid", "invalid", false},
		{"invalid", "pending", false},
		{"pending", "bogus", false},
	}

	for _, tc := range testCases {
		t.Run(tc.from+"->"+tc.to, func(t *testing.T) {
			assert.Equal(t, tc.allowed, OrderTransitionAllowed(tc.from, tc.to))
		})
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, Terminal("valid"))
	assert.True(t, Terminal("invalid"))
	assert.False(t, Terminal("processing"))
	assert.False(t, Terminal("pending"))
}
