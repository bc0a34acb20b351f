package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"cases-miniapp-backend/internal/models"
	"cases-miniapp-backend/internal/services"
)

type memoryAuditStore struct {
	mu      sync.Mutex
	records []models.AuditRecord
	err     error
	block   chan struct{}
}

func (s *memoryAuditStore) WriteAudit(ctx context.Context, rec models.AuditRecord) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memoryAuditStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func TestAuditRecorderWritesAll(t *testing.T) {
	store := &memoryAuditStore{}
	rec := services.NewAuditRecorder(store, 64, 2, time.Second, zap.NewNop())

	for i := 0; i < 50; i++ {
		rec.Submit(models.AuditRecord{RequestID: "r", Outcome: models.OutcomeGuestDraw})
	}
	rec.Close()

	assert.Equal(t, 50, store.count())
}

func TestAuditRecorderSwallowsFailures(t *testing.T) {
	store := &memoryAuditStore{err: errors.New("disk full")}
	rec := services.NewAuditRecorder(store, 8, 1, time.Second, zap.NewNop())

	assert.NotPanics(t, func() {
		rec.Submit(models.AuditRecord{RequestID: "r1"})
		rec.Close()
	})
	assert.Equal(t, 0, store.count())
}

func TestAuditRecorderNeverBlocks(t *testing.T) {
	store := &memoryAuditStore{block: make(chan struct{})}
	rec := services.NewAuditRecorder(store, 1, 1, 50*time.Millisecond, zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			rec.Submit(models.AuditRecord{RequestID: "r"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a full queue")
	}

	close(store.block)
	rec.Close()
	assert.Less(t, store.count(), 100)
}

func TestAuditRecorderSubmitAfterClose(t *testing.T) {
	store := &memoryAuditStore{}
	rec := services.NewAuditRecorder(store, 4, 1, time.Second, zap.NewNop())
	rec.Close()
	rec.Close()

	assert.NotPanics(t, func() { rec.Submit(models.AuditRecord{RequestID: "late"}) })
	assert.Equal(t, 0, store.count())
}

func TestLogAuditStore(t *testing.T) {
	store := services.NewLogAuditStore(zap.NewNop())
	err := store.WriteAudit(context.Background(), models.AuditRecord{
		RequestID: "r",
		PrizeID:   models.StringPtr("C1"),
	})
	assert.NoError(t, err)
}
