package campaign

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayAfterShortPauseBounds(t *testing.T) {
	for _, position := range []int{1, 2, 5, 9, 11, 19, 21} {
		for i := 0; i < 200; i++ {
			d := delayAfter(position)
			assert.GreaterOrEqual(t, d, shortPauseMinMs*time.Millisecond, "position %d", position)
			assert.LessOrEqual(t, d, shortPauseMaxMs*time.Millisecond, "position %d", position)
		}
	}
}

func TestDelayAfterLongPauseBounds(t *testing.T) {
	for _, position := range []int{10, 20, 100} {
		for i := 0; i < 200; i++ {
			d := delayAfter(position)
			assert.GreaterOrEqual(t, d, longPauseMinMs*time.Millisecond, "position %d", position)
			assert.LessOrEqual(t, d, longPauseMaxMs*time.Millisecond, "position %d", position)
		}
	}
}
