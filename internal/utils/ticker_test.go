package utils

import (
	"context"
	"testing"
	"time"
)

type chanTicker struct {
	ch      chan time.Time
	stopped chan struct{}
}

func (t *chanTicker) C() <-chan time.Time { return t.ch }

func (t *chanTicker) Stop() { close(t.stopped) }

func TestRunEvery(t *testing.T) {
	ticker := &chanTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan time.Time, 2)

	go RunEvery(ctx, ticker, func(now time.Time) { ticks <- now })

	first := time.Unix(10, 0)
	ticker.ch <- first
	if got := <-ticks; !got.Equal(first) {
		t.Fatalf("expected %v, got %v", first, got)
	}

	cancel()
	select {
	case <-ticker.stopped:
	case <-time.After(time.Second):
		t.Fatalf("expected ticker to stop after cancel")
	}
}
