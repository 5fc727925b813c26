package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrozen_ReturnsFixedInstant(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFrozen(base)
	assert.Equal(t, base, f.Now())
	assert.Equal(t, base, f.Now())
}

func TestFrozen_AdvanceMovesClockForward(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFrozen(base)
	f.Advance(5 * time.Second)
	assert.Equal(t, base.Add(5*time.Second), f.Now())
}

func TestReal_ReturnsCurrentTime(t *testing.T) {
	before := time.Now()
	got := Real{}.Now()
	after := time.Now()
	assert.True(t, !got.Before(before) && !got.After(after))
}
