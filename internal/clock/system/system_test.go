package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
)

func TestClockNowIsCurrentUTC(t *testing.T) {
	t.Parallel()

	var clk capture.Clock = New()
	got := clk.Now()

	assert.Equal(t, time.UTC, got.Location())
	assert.WithinDuration(t, time.Now(), got, time.Second)
}

func TestClockZeroValueUsable(t *testing.T) {
	t.Parallel()

	var clk Clock
	first := clk.Now()
	second := clk.Now()
	assert.False(t, second.Before(first), "timestamps must not go backwards")
}
