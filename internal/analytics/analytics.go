package analytics

import (
	"context"
	"sort"
	"time"

	"economy-sentinel/internal/storage"
)

type Service struct {
	store *storage.Store
}

func New(store *storage.Store) *Service {
	return &Service{store: store}
}

type Report struct {
	Total      int
	ByLevel    map[string]int
	ByEvent    map[string]int
	ByGame     map[string]int
	OpenReview int
}

type EventCount struct {
	Event string
	Count int
}

func (s *Service) Report(ctx context.Context, since time.Time) (Report, error) {
	logs, err := s.store.ListAuditLogs(ctx, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{ByLevel: make(map[string]int), ByEvent: make(map[string]int), ByGame: make(map[string]int)}
	for _, log := range logs {
		report.Total++
		report.ByLevel[log.Level]++
		report.ByEvent[log.Event]++
		if log.GameType != "" {
			report.ByGame[log.GameType]++
		}
	}

	open, err := s.store.CountReviewFlags(ctx, storage.ReviewOpen)
	if err != nil {
		return Report{}, err
	}
	report.OpenReview = open
	return report, nil
}

// TopEvents returns the most frequent events, highest first.
func (r Report) TopEvents(limit int) []EventCount {
	events := make([]EventCount, 0, len(r.ByEvent))
	for event, count := range r.ByEvent {
		events = append(events, EventCount{Event: event, Count: count})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].Count == events[j].Count {
			return events[i].Event < events[j].Event
		}
		return events[i].Count > events[j].Count
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events
}
