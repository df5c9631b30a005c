package crawler

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces page and detail loads out. A rate limiter enforces the
// configured floor while randomized jitter keeps the timing pattern from
// looking mechanical.
type Pacer struct {
	limiter *rate.Limiter
	rng     *rand.Rand
}

// NewPacer creates a pacer allowing at most perMinute paced operations.
func NewPacer(perMinute int) *Pacer {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &Pacer{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Wait blocks for the rate limiter plus a random delay in [min, max]. It
// returns early with the context error on cancellation.
func (p *Pacer) Wait(ctx context.Context, min, max time.Duration) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	delay := p.jitter(min, max)
	if delay <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func (p *Pacer) jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(p.rng.Int63n(int64(max-min)))
}
