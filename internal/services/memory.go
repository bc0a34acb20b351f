package services

import (
	"context"
	"sync"

	"cases-miniapp-backend/internal/models"
)

type grantRecord struct {
	userID  string
	balance int64
}

// MemoryLedger keeps balances in process. It is for development and tests;
// balances do not survive a restart.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	consumes map[string]models.ConsumeResult
	grants   map[string]grantRecord
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]int64),
		consumes: make(map[string]models.ConsumeResult),
		grants:   make(map[string]grantRecord),
	}
}

func consumeKey(userID, requestID string) string {
	return userID + "\x00" + requestID
}

func (m *MemoryLedger) Consume(ctx context.Context, userID, requestID string) (models.ConsumeResult, error) {
	if err := ctx.Err(); err != nil {
		return models.ConsumeResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := consumeKey(userID, requestID)
	if prior, ok := m.consumes[key]; ok {
		prior.Replayed = true
		return prior, nil
	}

	balance := m.balances[userID]
	if balance < 1 {
		return models.ConsumeResult{OK: false, Balance: balance}, nil
	}

	balance--
	m.balances[userID] = balance
	res := models.ConsumeResult{OK: true, Balance: balance}
	m.consumes[key] = res
	return res, nil
}

func (m *MemoryLedger) Grant(ctx context.Context, userID, requestID string, delta int64, reason models.GrantReason) (models.GrantResult, error) {
	if err := ctx.Err(); err != nil {
		return models.GrantResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prior, ok := m.grants[requestID]; ok {
		return models.GrantResult{Balance: prior.balance, Replayed: true}, nil
	}

	balance := m.balances[userID] + delta
	m.balances[userID] = balance
	m.grants[requestID] = grantRecord{userID: userID, balance: balance}
	return models.GrantResult{Balance: balance}, nil
}

func (m *MemoryLedger) Balance(ctx context.Context, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID], nil
}
