// Package ledger reads balances and gameplay statistics from the economy's
// balance store. This core never writes balances; it only decides amounts.
package ledger

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the ledger cannot answer in time.
var ErrUnavailable = errors.New("ledger unavailable")

type Balance struct {
	Wallet int64
	Bank   int64
}

func (b Balance) Total() int64 {
	return b.Wallet + b.Bank
}

type Stats struct {
	Wins         int
	Losses       int
	TotalWagered int64
	TotalWon     int64
	BiggestWin   int64
}

// Exclusion removes non-participant accounts from aggregate queries.
type Exclusion struct {
	UserIDs       []string
	WealthCeiling int64
}

func (e Exclusion) excludes(userID string, wealth int64, offEconomy bool) bool {
	if offEconomy {
		return true
	}
	if e.WealthCeiling > 0 && wealth > e.WealthCeiling {
		return true
	}
	for _, id := range e.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type Totals struct {
	Wagered int64
	Won     int64
}

type Ledger interface {
	GetUserBalance(ctx context.Context, userID string) (Balance, error)
	GetUserStats(ctx context.Context, userID string) (Stats, error)
	WealthDistribution(ctx context.Context, exclusion Exclusion) ([]int64, error)
	WagerTotals(ctx context.Context, exclusion Exclusion) (Totals, error)
}
