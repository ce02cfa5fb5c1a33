package risk

import (
	"sync"
	"time"

	"economy-sentinel/internal/utils"
)

const (
	ActionBet    = "bet"
	ActionResult = "result"
	ActionPlay   = "play"

	ResultWin  = "win"
	ResultLoss = "loss"
	ResultPush = "push"
)

// ActionData carries the optional details of one game action. Missing
// amounts are treated as zero and a missing result as no result.
type ActionData struct {
	BetAmount  int64
	Payout     int64
	Multiplier float64
	Result     string
	Timestamp  time.Time
}

type GameAction struct {
	Timestamp  time.Time
	GameType   string
	Action     string
	BetAmount  int64
	Payout     int64
	Multiplier float64
	Result     string
}

type GameStats struct {
	TotalGames   int
	TotalWagered int64
	TotalWon     int64
	Wins         int
	Losses       int
	LastPlayed   time.Time
}

type Profile struct {
	UserID    string
	FirstSeen time.Time
	Actions   []GameAction
	Games     map[string]GameStats
	Patterns  map[string][]string
	RiskScore float64
}

func (p *Profile) clone() Profile {
	out := Profile{
		UserID:    p.UserID,
		FirstSeen: p.FirstSeen,
		Actions:   append([]GameAction(nil), p.Actions...),
		Games:     make(map[string]GameStats, len(p.Games)),
		Patterns:  make(map[string][]string, len(p.Patterns)),
		RiskScore: p.RiskScore,
	}
	for game, stats := range p.Games {
		out.Games[game] = stats
	}
	for game, patterns := range p.Patterns {
		out.Patterns[game] = append([]string(nil), patterns...)
	}
	return out
}

// Recent returns up to n of the newest actions, oldest first.
func (p Profile) Recent(n int) []GameAction {
	if n <= 0 || n >= len(p.Actions) {
		return p.Actions
	}
	return p.Actions[len(p.Actions)-n:]
}

// ProfileStore keeps one rolling behavior profile per user in memory.
// Profiles expire after ttl without activity.
type ProfileStore struct {
	mu         sync.Mutex
	cache      *utils.TTLCache[*Profile]
	ttl        time.Duration
	maxActions int
}

func NewProfileStore(maxActions int, ttl time.Duration, now func() time.Time) *ProfileStore {
	if maxActions <= 0 {
		maxActions = 100
	}
	return &ProfileStore{
		cache:      utils.NewTTLCache[*Profile](now),
		ttl:        ttl,
		maxActions: maxActions,
	}
}

// RecordAction appends the action, updates per-game counters and returns a
// snapshot of the updated profile.
func (s *ProfileStore) RecordAction(userID, gameType, action string, data ActionData, ts time.Time) Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.cache.Get(userID)
	if !ok {
		profile = &Profile{
			UserID:    userID,
			FirstSeen: ts,
			Games:     make(map[string]GameStats),
			Patterns:  make(map[string][]string),
		}
	}

	profile.Actions = append(profile.Actions, GameAction{
		Timestamp:  ts,
		GameType:   gameType,
		Action:     action,
		BetAmount:  data.BetAmount,
		Payout:     data.Payout,
		Multiplier: data.Multiplier,
		Result:     data.Result,
	})
	if overflow := len(profile.Actions) - s.maxActions; overflow > 0 {
		profile.Actions = append([]GameAction(nil), profile.Actions[overflow:]...)
	}

	stats := profile.Games[gameType]
	stats.LastPlayed = ts
	if action == ActionBet || action == ActionPlay {
		stats.TotalWagered += data.BetAmount
	}
	if data.Result != "" {
		stats.TotalGames++
		stats.TotalWon += data.Payout
		switch data.Result {
		case ResultWin:
			stats.Wins++
		case ResultLoss:
			stats.Losses++
		}
	}
	profile.Games[gameType] = stats

	s.cache.Set(userID, profile, s.ttl)
	return profile.clone()
}

// SetAnalysis stores the outcome of the latest analysis on the profile.
func (s *ProfileStore) SetAnalysis(userID, gameType string, patterns []string, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.cache.Get(userID)
	if !ok {
		return
	}
	profile.Patterns[gameType] = append([]string(nil), patterns...)
	profile.RiskScore = score
}

func (s *ProfileStore) Get(userID string) (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.cache.Get(userID)
	if !ok {
		return Profile{}, false
	}
	return profile.clone(), true
}

func (s *ProfileStore) Delete(userID string) {
	s.cache.Delete(userID)
}

func (s *ProfileStore) Len() int {
	return s.cache.Len()
}

func (s *ProfileStore) Sweep() int {
	return s.cache.Sweep()
}
