package realtime

import (
	"math/rand/v2"
	"time"
)

// Backoff yields exponentially growing reconnect delays capped at Max. Jitter is the
// fraction of the delay that is randomized.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

func DefaultBackoff() Backoff {
	return Backoff{
		Base:   500 * time.Millisecond,
		Max:    30 * time.Second,
		Jitter: 0.2,
	}
}

// Delay returns the wait before the given attempt, counting from 1.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := b.Base
	for i := 1; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}

	if b.Jitter > 0 {
		spread := float64(d) * b.Jitter
		d = time.Duration(float64(d) - spread + rand.Float64()*2*spread)
		if d > b.Max {
			d = b.Max
		}
	}

	return d
}
