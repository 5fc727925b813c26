package sessionstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompositeIntScorer_HigherScoreRanksHigher(t *testing.T) {
	s := CompositeIntScorer{}
	assert.Greater(t, s.Score(200, 5000), s.Score(100, 5000))
}

func TestCompositeIntScorer_WithinSameScoreFasterTimeRanksHigher(t *testing.T) {
	s := CompositeIntScorer{}
	assert.Greater(t, s.Score(100, 1000), s.Score(100, 5000))
}

func TestCompositeIntScorer_ScoreDominatesTimeTiebreak(t *testing.T) {
	s := CompositeIntScorer{}
	// Even the slowest possible time at a higher score must still outrank
	// the fastest possible time at a lower score.
	assert.Greater(t, s.Score(2, 1<<32-1), s.Score(1, 0))
}

func TestCompositeIntScorer_SaturatesOnOverlongTime(t *testing.T) {
	s := CompositeIntScorer{}
	assert.Equal(t, s.Score(100, 1<<32), s.Score(100, 1<<33))
}

func TestCompositeIntScorer_NegativeTimeClampedToZero(t *testing.T) {
	s := CompositeIntScorer{}
	assert.Equal(t, s.Score(100, 0), s.Score(100, -5))
}

func TestFloatScorer_HigherScoreRanksHigher(t *testing.T) {
	s := FloatScorer{}
	assert.Greater(t, s.Score(200, 5000), s.Score(100, 5000))
}

func TestFloatScorer_WithinSameScoreFasterTimeRanksHigher(t *testing.T) {
	s := FloatScorer{}
	assert.Greater(t, s.Score(100, 1000), s.Score(100, 5000))
}
