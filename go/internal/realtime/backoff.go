package realtime

import (
	"math"
	"time"
)

// Backoff computes reconnect delays that grow geometrically up to a cap.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
}

// DefaultBackoff yields 1s, 1.5s, 2.25s, ... capped at 30s.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   time.Second,
		Max:    30 * time.Second,
		Factor: 1.5,
	}
}

// Delay returns min(Max, Base * Factor^attempt).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(b.Base) * math.Pow(b.Factor, float64(attempt))
	if math.IsInf(d, 0) || math.IsNaN(d) || d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}
