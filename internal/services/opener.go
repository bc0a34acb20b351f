package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"cases-miniapp-backend/internal/metrics"
	"cases-miniapp-backend/internal/models"
	"cases-miniapp-backend/internal/telegram"
)

// Auditor accepts audit records without blocking the caller.
type Auditor interface {
	Submit(rec models.AuditRecord)
}

type OpenResult struct {
	Prize     *models.Item
	UserID    string
	Validated bool
	Balance   *int64
	Outcome   models.Outcome
	RequestID string
}

type BalanceResult struct {
	UserID    string
	Validated bool
	Balance   int64
}

// OpenService runs one case opening: verify, consume, draw, audit.
type OpenService struct {
	verifier *telegram.Verifier
	ledger   Ledger
	rewards  *RewardSelector
	audit    Auditor
	logger   *zap.Logger
	now      func() time.Time
}

func NewOpenService(verifier *telegram.Verifier, ledger Ledger, rewards *RewardSelector, audit Auditor, logger *zap.Logger) *OpenService {
	return &OpenService{
		verifier: verifier,
		ledger:   ledger,
		rewards:  rewards,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// Verify checks init data and records the result in metrics.
func (s *OpenService) Verify(initData string) telegram.Result {
	res := s.verifier.Verify(initData)
	metrics.Verification(verifyLabel(res))
	return res
}

// Authorized reports whether a verification may drive the ledger.
func Authorized(res telegram.Result) bool {
	return res.Valid && res.UserID != telegram.GuestID
}

// Open returns ErrNoEntitlement (with the balance set on the result) or
// ErrLedgerUnavailable; in both cases no prize is drawn. Once Consume has
// succeeded nothing after it can fail.
func (s *OpenService) Open(ctx context.Context, req models.OpenRequest) (*OpenResult, error) {
	if req.RequestID == "" {
		req.RequestID = models.NewRequestID()
	}

	vr := s.Verify(req.InitData)
	res := &OpenResult{
		UserID:    vr.UserID,
		Validated: vr.Valid,
		RequestID: req.RequestID,
	}
	if vr.Reason != nil {
		s.logger.Info("init data not verified",
			zap.String("req_id", req.RequestID),
			zap.String("user_id", vr.UserID),
			zap.String("reason", verifyLabel(vr)),
			zap.Int("init_len", len(req.InitData)),
		)
	}

	if !Authorized(vr) {
		prize := s.rewards.Draw()
		res.Prize = &prize
		res.Outcome = models.OutcomeGuestDraw
		s.finish(req, res)
		return res, nil
	}

	// A consume that reached the store may commit after the client goes away.
	// BoundedLedger still caps how long it runs.
	consumed, err := s.ledger.Consume(context.WithoutCancel(ctx), vr.UserID, req.RequestID)
	if err != nil {
		res.Outcome = models.OutcomeLedgerUnavailable
		s.logger.Error("consume failed",
			zap.String("req_id", req.RequestID),
			zap.String("user_id", vr.UserID),
			zap.Error(err),
		)
		s.finish(req, res)
		if !errors.Is(err, ErrLedgerUnavailable) {
			err = unavailable("consume", err)
		}
		return res, err
	}

	balance := consumed.Balance
	res.Balance = &balance

	if !consumed.OK {
		res.Outcome = models.OutcomeNoRights
		s.finish(req, res)
		return res, ErrNoEntitlement
	}

	prize := s.rewards.DrawFor(vr.UserID, req.RequestID)
	res.Prize = &prize
	res.Outcome = models.OutcomeDrawn
	if consumed.Replayed {
		res.Outcome = models.OutcomeReplayed
	}
	s.finish(req, res)
	return res, nil
}

// Balance reads the balance of a verified user. Everyone else has zero.
func (s *OpenService) Balance(ctx context.Context, initData string) (*BalanceResult, error) {
	vr := s.Verify(initData)
	res := &BalanceResult{UserID: vr.UserID, Validated: vr.Valid}
	if !Authorized(vr) {
		return res, nil
	}

	balance, err := s.ledger.Balance(ctx, vr.UserID)
	if err != nil {
		s.logger.Error("balance read failed", zap.String("user_id", vr.UserID), zap.Error(err))
		return nil, err
	}
	res.Balance = balance
	return res, nil
}

func (s *OpenService) finish(req models.OpenRequest, res *OpenResult) {
	rec := models.AuditRecord{
		Timestamp:      s.now().UTC(),
		RequestID:      req.RequestID,
		UserID:         res.UserID,
		Outcome:        res.Outcome,
		Balance:        res.Balance,
		Validated:      res.Validated,
		Platform:       models.StringPtr(req.Platform),
		ClientVersion:  models.StringPtr(req.Version),
		Source:         req.Source,
		InitDataLength: len(req.InitData),
	}
	if res.Prize != nil {
		rec.PrizeID = &res.Prize.ID
		rec.PrizeTitle = &res.Prize.Title
	}
	s.audit.Submit(rec)

	metrics.OpenOutcome(string(res.Outcome))

	fields := []zap.Field{
		zap.String("req_id", req.RequestID),
		zap.String("user_id", res.UserID),
		zap.String("outcome", string(res.Outcome)),
		zap.Bool("validated", res.Validated),
		zap.Int("init_len", len(req.InitData)),
	}
	if res.Prize != nil {
		fields = append(fields, zap.String("prize_id", res.Prize.ID))
	}
	s.logger.Info("open_case", fields...)
}

func verifyLabel(res telegram.Result) string {
	switch {
	case res.Reason == nil && res.Valid:
		return "valid"
	case errors.Is(res.Reason, telegram.ErrStale):
		return "stale"
	case errors.Is(res.Reason, telegram.ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(res.Reason, telegram.ErrMissingHash):
		return "missing_hash"
	case errors.Is(res.Reason, telegram.ErrMalformedPayload):
		return "malformed"
	case errors.Is(res.Reason, telegram.ErrMissingPayload):
		return "missing"
	case errors.Is(res.Reason, telegram.ErrNoSecret):
		return "no_secret"
	}
	return "invalid"
}
