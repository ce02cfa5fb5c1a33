package utils

import (
	"context"
	"time"
)

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

func (t realTicker) C() <-chan time.Time { return t.t.C }

func (t realTicker) Stop() { t.t.Stop() }

// RunEvery calls fn for every tick until ctx is cancelled, then stops ticker.
func RunEvery(ctx context.Context, ticker Ticker, fn func(now time.Time)) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			fn(now)
		}
	}
}
