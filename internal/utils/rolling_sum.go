package utils

import (
	"sync"
	"time"
)

type sample struct {
	at    time.Time
	value float64
}

// RollingSum keeps a running total of values observed within a trailing window.
type RollingSum struct {
	mu      sync.Mutex
	window  time.Duration
	samples []sample
	total   float64
}

func NewRollingSum(window time.Duration) *RollingSum {
	return &RollingSum{window: window}
}

func (r *RollingSum) Add(now time.Time, value float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evict(now)
	r.samples = append(r.samples, sample{at: now, value: value})
	r.total += value
	return r.total
}

func (r *RollingSum) Sum(now time.Time) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evict(now)
	return r.total
}

func (r *RollingSum) evict(now time.Time) {
	cutoff := now.Add(-r.window)
	idx := 0
	for _, s := range r.samples {
		if s.at.After(cutoff) {
			break
		}
		r.total -= s.value
		idx++
	}
	r.samples = r.samples[idx:]
	if len(r.samples) == 0 {
		r.total = 0
	}
}
