package uploader

import (
	"math/rand/v2"
	"time"
)

// backoffDelay computes the wait before re-offering a transiently failed
// item: base * 2^(attempt-1), capped, with up to ±25% jitter so retries
// against the same struggling server spread out instead of herding.
func backoffDelay(attempt int, base, cap time.Duration, jitter func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cap || delay <= 0 {
			delay = cap
			break
		}
	}
	if delay > cap {
		delay = cap
	}

	if jitter == nil {
		jitter = rand.Float64
	}
	frac := (jitter()*2 - 1) * 0.25
	delay = time.Duration(float64(delay) * (1 + frac))
	if delay < 0 {
		delay = 0
	}
	return delay
}
