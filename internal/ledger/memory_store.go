package ledger

import (
	"context"
	"sync"
)

type account struct {
	balance    Balance
	stats      Stats
	offEconomy bool
}

// MemoryStore is an in-process ledger used when no database is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*account)}
}

func (m *MemoryStore) SetBalance(userID string, balance Balance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accountLocked(userID).balance = balance
}

func (m *MemoryStore) SetStats(userID string, stats Stats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accountLocked(userID).stats = stats
}

func (m *MemoryStore) SetOffEconomy(userID string, off bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accountLocked(userID).offEconomy = off
}

// ApplyResult adjusts the wallet and statistics for one settled game.
func (m *MemoryStore) ApplyResult(userID string, bet, payout int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct := m.accountLocked(userID)
	acct.balance.Wallet += payout - bet
	acct.stats.TotalWagered += bet
	acct.stats.TotalWon += payout
	if payout > bet {
		acct.stats.Wins++
		if payout-bet > acct.stats.BiggestWin {
			acct.stats.BiggestWin = payout - bet
		}
	} else {
		acct.stats.Losses++
	}
}

func (m *MemoryStore) GetUserBalance(ctx context.Context, userID string) (Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if acct := m.accounts[userID]; acct != nil {
		return acct.balance, nil
	}
	return Balance{}, nil
}

func (m *MemoryStore) GetUserStats(ctx context.Context, userID string) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if acct := m.accounts[userID]; acct != nil {
		return acct.stats, nil
	}
	return Stats{}, nil
}

func (m *MemoryStore) WealthDistribution(ctx context.Context, exclusion Exclusion) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	values := make([]int64, 0, len(m.accounts))
	for userID, acct := range m.accounts {
		wealth := acct.balance.Total()
		if exclusion.excludes(userID, wealth, acct.offEconomy) {
			continue
		}
		values = append(values, wealth)
	}
	return values, nil
}

func (m *MemoryStore) WagerTotals(ctx context.Context, exclusion Exclusion) (Totals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var totals Totals
	for userID, acct := range m.accounts {
		if exclusion.excludes(userID, acct.balance.Total(), acct.offEconomy) {
			continue
		}
		totals.Wagered += acct.stats.TotalWagered
		totals.Won += acct.stats.TotalWon
	}
	return totals, nil
}

func (m *MemoryStore) accountLocked(userID string) *account {
	acct := m.accounts[userID]
	if acct == nil {
		acct = &account{}
		m.accounts[userID] = acct
	}
	return acct
}
