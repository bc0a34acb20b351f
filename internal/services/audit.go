package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"cases-miniapp-backend/internal/metrics"
	"cases-miniapp-backend/internal/models"
)

var ErrAuditWriteFailed = errors.New("audit write failed")

// AuditStore persists one audit record.
type AuditStore interface {
	WriteAudit(ctx context.Context, rec models.AuditRecord) error
}

// AuditRecorder writes audit records off the request path. Submit never
// blocks: when the queue is full the record is dropped and logged.
type AuditRecorder struct {
	store   AuditStore
	timeout time.Duration
	logger  *zap.Logger

	queue chan models.AuditRecord
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewAuditRecorder(store AuditStore, queueSize, workers int, timeout time.Duration, logger *zap.Logger) *AuditRecorder {
	r := &AuditRecorder{
		store:   store,
		timeout: timeout,
		logger:  logger,
		queue:   make(chan models.AuditRecord, queueSize),
	}

	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}

	return r
}

func (r *AuditRecorder) Submit(rec models.AuditRecord) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.drop(rec, "recorder closed")
		return
	}

	select {
	case r.queue <- rec:
	default:
		r.drop(rec, "queue full")
	}
}

func (r *AuditRecorder) worker() {
	defer r.wg.Done()
	for rec := range r.queue {
		r.write(rec)
	}
}

func (r *AuditRecorder) write(rec models.AuditRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.WriteAudit(ctx, rec); err != nil {
		metrics.AuditDropped()
		r.logger.Warn(ErrAuditWriteFailed.Error(),
			zap.String("req_id", rec.RequestID),
			zap.String("user_id", rec.UserID),
			zap.String("outcome", string(rec.Outcome)),
			zap.Error(err),
		)
	}
}

func (r *AuditRecorder) drop(rec models.AuditRecord, why string) {
	metrics.AuditDropped()
	r.logger.Warn("audit record dropped",
		zap.String("reason", why),
		zap.String("req_id", rec.RequestID),
		zap.String("outcome", string(rec.Outcome)),
	)
}

// Close stops accepting records and waits for queued ones to be written.
func (r *AuditRecorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

// LogAuditStore is used when no persistent audit sink is configured.
type LogAuditStore struct {
	logger *zap.Logger
}

func NewLogAuditStore(logger *zap.Logger) *LogAuditStore {
	return &LogAuditStore{logger: logger}
}

func (s *LogAuditStore) WriteAudit(_ context.Context, rec models.AuditRecord) error {
	fields := []zap.Field{
		zap.Time("ts", rec.Timestamp),
		zap.String("req_id", rec.RequestID),
		zap.String("user_id", rec.UserID),
		zap.String("outcome", string(rec.Outcome)),
		zap.Bool("validated", rec.Validated),
		zap.Int("init_len", rec.InitDataLength),
	}
	if rec.PrizeID != nil {
		fields = append(fields, zap.String("prize_id", *rec.PrizeID))
	}
	if rec.Reason != nil {
		fields = append(fields, zap.String("reason", *rec.Reason))
	}
	if rec.Balance != nil {
		fields = append(fields, zap.Int64("balance", *rec.Balance))
	}
	s.logger.Info("audit", fields...)
	return nil
}
