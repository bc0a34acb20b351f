package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cases-miniapp-backend/internal/metrics"
	"cases-miniapp-backend/internal/models"
)

var (
	// ErrNoEntitlement means consume found a zero balance.
	ErrNoEntitlement = errors.New("no entitlement left")
	// ErrLedgerUnavailable wraps every store failure, timeouts included.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)

// Ledger is the entitlement store. Consume and Grant must each run as one
// atomic round-trip and be idempotent on their request id.
type Ledger interface {
	// Consume debits one open unless (userID, requestID) was already
	// consumed, in which case the recorded result is returned unchanged.
	Consume(ctx context.Context, userID, requestID string) (models.ConsumeResult, error)
	// Grant credits delta once per requestID and returns the new balance.
	Grant(ctx context.Context, userID, requestID string, delta int64, reason models.GrantReason) (models.GrantResult, error)
	Balance(ctx context.Context, userID string) (int64, error)
}

// BoundedLedger applies a timeout to every call and maps failures to
// ErrLedgerUnavailable. It never retries.
type BoundedLedger struct {
	next    Ledger
	timeout time.Duration
}

func NewBoundedLedger(next Ledger, timeout time.Duration) *BoundedLedger {
	return &BoundedLedger{next: next, timeout: timeout}
}

func (l *BoundedLedger) Consume(ctx context.Context, userID, requestID string) (models.ConsumeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	res, err := l.next.Consume(ctx, userID, requestID)
	metrics.ObserveLedger("consume", start, err)
	if err != nil {
		return models.ConsumeResult{}, unavailable("consume", err)
	}
	return res, nil
}

func (l *BoundedLedger) Grant(ctx context.Context, userID, requestID string, delta int64, reason models.GrantReason) (models.GrantResult, error) {
	if delta < 1 {
		return models.GrantResult{}, fmt.Errorf("grant delta must be positive, got %d", delta)
	}
	if !reason.Valid() {
		return models.GrantResult{}, fmt.Errorf("unknown grant reason %q", reason)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	res, err := l.next.Grant(ctx, userID, requestID, delta, reason)
	metrics.ObserveLedger("grant", start, err)
	if err != nil {
		return models.GrantResult{}, unavailable("grant", err)
	}
	metrics.GrantApplied(string(reason), res.Replayed)
	return res, nil
}

func (l *BoundedLedger) Balance(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	balance, err := l.next.Balance(ctx, userID)
	metrics.ObserveLedger("balance", start, err)
	if err != nil {
		return 0, unavailable("balance", err)
	}
	return balance, nil
}

func unavailable(op string, err error) error {
	if errors.Is(err, ErrLedgerUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrLedgerUnavailable, op, err)
}
