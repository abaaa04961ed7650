package campaign

import (
	"math/rand"
	"time"
)

// Pacing between sends. Every 10th send is followed by a long pause;
// all others by a short one. The randomized gaps keep the send pattern
// away from the upstream network's automation detection.
const (
	longPauseEvery = 10

	shortPauseMinMs = 15000
	shortPauseMaxMs = 28000
	longPauseMinMs  = 60000
	longPauseMaxMs  = 180000
)

// delayAfter returns the pause following the send at the given
// 1-based position.
func delayAfter(position int) time.Duration {
	if position > 0 && position%longPauseEvery == 0 {
		return uniformMs(longPauseMinMs, longPauseMaxMs)
	}
	return uniformMs(shortPauseMinMs, shortPauseMaxMs)
}

func uniformMs(min, max int) time.Duration {
	return time.Duration(min+rand.Intn(max-min+1)) * time.Millisecond
}
