package utils

import (
	"testing"
	"time"
)

func TestRollingSumWindow(t *testing.T) {
	window := NewRollingSum(2 * time.Second)
	now := time.Unix(100, 0)
	if total := window.Add(now, 10); total != 10 {
		t.Fatalf("expected 10, got %f", total)
	}
	window.Add(now.Add(500*time.Millisecond), -4)
	if total := window.Sum(now.Add(1 * time.Second)); total != 6 {
		t.Fatalf("expected 6, got %f", total)
	}
	if total := window.Sum(now.Add(2200 * time.Millisecond)); total != -4 {
		t.Fatalf("expected -4, got %f", total)
	}
	if total := window.Sum(now.Add(3 * time.Second)); total != 0 {
		t.Fatalf("expected empty window, got %f", total)
	}
}
