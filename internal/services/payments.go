package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"cases-miniapp-backend/internal/models"
	"cases-miniapp-backend/internal/telegram"
)

var ErrBadPayment = errors.New("payment update has no user or payload")

// BotAPI is the part of the Telegram Bot API payments use.
type BotAPI interface {
	CreateInvoiceLink(ctx context.Context, inv telegram.Invoice) (string, error)
	AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool, errMsg string) error
}

type PaymentConfig struct {
	PriceStars         int64
	OpensPerPurchase   int64
	InvoiceTitle       string
	InvoiceDescription string
}

type InvoiceLink struct {
	Link    string
	Payload string
}

type UpdateKind string

const (
	UpdatePreCheckout UpdateKind = "pre_checkout"
	UpdatePayment     UpdateKind = "payment"
	UpdateSkipped     UpdateKind = "skipped"
)

type UpdateResult struct {
	Kind     UpdateKind
	UserID   string
	Balance  int64
	Replayed bool
	Approved bool
}

type PaymentService struct {
	ledger      Ledger
	bot         BotAPI
	broadcaster Broadcaster
	audit       Auditor
	cfg         PaymentConfig
	logger      *zap.Logger
	now         func() time.Time
}

func NewPaymentService(ledger Ledger, bot BotAPI, broadcaster Broadcaster, audit Auditor, cfg PaymentConfig, logger *zap.Logger) *PaymentService {
	if broadcaster == nil {
		broadcaster = nopBroadcaster{}
	}
	return &PaymentService{
		ledger:      ledger,
		bot:         bot,
		broadcaster: broadcaster,
		audit:       audit,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateInvoice asks Telegram for a Stars invoice link. The returned payload
// comes back in successful_payment and keys the grant.
func (s *PaymentService) CreateInvoice(ctx context.Context, userID string) (*InvoiceLink, error) {
	payload := models.NewInvoicePayload(userID)

	link, err := s.bot.CreateInvoiceLink(ctx, telegram.Invoice{
		Title:       s.cfg.InvoiceTitle,
		Description: s.cfg.InvoiceDescription,
		Payload:     payload,
		Currency:    telegram.CurrencyStars,
		Prices:      []telegram.LabeledPrice{{Label: "Open", Amount: s.cfg.PriceStars}},
	})
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	s.logger.Info("invoice created", zap.String("user_id", userID), zap.String("payload", payload))
	return &InvoiceLink{Link: link, Payload: payload}, nil
}

func (s *PaymentService) HandleUpdate(ctx context.Context, upd telegram.Update) (*UpdateResult, error) {
	switch {
	case upd.PreCheckoutQuery != nil:
		return s.answerPreCheckout(ctx, upd.PreCheckoutQuery)
	case upd.Message != nil && upd.Message.SuccessfulPayment != nil:
		return s.applyPayment(ctx, upd.Message)
	}
	return &UpdateResult{Kind: UpdateSkipped}, nil
}

func (s *PaymentService) answerPreCheckout(ctx context.Context, q *telegram.PreCheckoutQuery) (*UpdateResult, error) {
	res := &UpdateResult{Kind: UpdatePreCheckout}
	reason := s.checkoutProblem(q)
	res.Approved = reason == ""
	if q.From != nil {
		res.UserID = strconv.FormatInt(q.From.ID, 10)
	}

	if err := s.bot.AnswerPreCheckoutQuery(ctx, q.ID, res.Approved, reason); err != nil {
		return nil, fmt.Errorf("answer pre-checkout: %w", err)
	}

	if !res.Approved {
		s.logger.Warn("pre-checkout denied",
			zap.String("user_id", res.UserID),
			zap.String("payload", q.InvoicePayload),
			zap.String("reason", reason),
		)
	}
	return res, nil
}

// checkoutProblem returns the message shown to the user, or "" to approve.
func (s *PaymentService) checkoutProblem(q *telegram.PreCheckoutQuery) string {
	payloadUser, err := models.ParseInvoicePayload(q.InvoicePayload)
	if err != nil {
		return "This invoice is not valid."
	}
	if q.From == nil || strconv.FormatInt(q.From.ID, 10) != payloadUser {
		return "This invoice belongs to another user."
	}
	if q.Currency != telegram.CurrencyStars || q.TotalAmount != s.cfg.PriceStars {
		return "The price has changed, please request a new invoice."
	}
	return ""
}

func (s *PaymentService) applyPayment(ctx context.Context, msg *telegram.Message) (*UpdateResult, error) {
	sp := msg.SuccessfulPayment
	if msg.From == nil || msg.From.ID == 0 || sp.InvoicePayload == "" {
		return nil, ErrBadPayment
	}

	userID := strconv.FormatInt(msg.From.ID, 10)
	granted, err := s.Grant(ctx, models.GrantRequest{
		UserID:    userID,
		RequestID: sp.InvoicePayload,
		Delta:     s.cfg.OpensPerPurchase,
		Reason:    models.GrantReasonStarsPurchase,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("stars payment",
		zap.String("user_id", userID),
		zap.String("charge_id", sp.TelegramPaymentChargeID),
		zap.Int64("amount", sp.TotalAmount),
		zap.Bool("replayed", granted.Replayed),
	)

	return &UpdateResult{
		Kind:     UpdatePayment,
		UserID:   userID,
		Balance:  granted.Balance,
		Replayed: granted.Replayed,
	}, nil
}

// Grant credits the ledger once per request id, audits every attempt and
// notifies subscribers of fresh credits.
func (s *PaymentService) Grant(ctx context.Context, req models.GrantRequest) (models.GrantResult, error) {
	res, err := s.ledger.Grant(ctx, req.UserID, req.RequestID, req.Delta, req.Reason)
	s.auditGrant(req, res, err)
	if err != nil {
		s.logger.Error("grant failed",
			zap.String("user_id", req.UserID),
			zap.String("req_id", req.RequestID),
			zap.String("reason", string(req.Reason)),
			zap.Error(err),
		)
		return models.GrantResult{}, err
	}

	s.logger.Info("grant applied",
		zap.String("user_id", req.UserID),
		zap.String("req_id", req.RequestID),
		zap.String("reason", string(req.Reason)),
		zap.Int64("delta", req.Delta),
		zap.Int64("balance", res.Balance),
		zap.Bool("replayed", res.Replayed),
	)

	if !res.Replayed {
		s.broadcaster.BroadcastBalance(req.UserID, res.Balance)
	}
	return res, nil
}

func (s *PaymentService) auditGrant(req models.GrantRequest, res models.GrantResult, err error) {
	delta := req.Delta
	rec := models.AuditRecord{
		Timestamp: s.now().UTC(),
		RequestID: req.RequestID,
		UserID:    req.UserID,
		Validated: true,
		Reason:    models.StringPtr(string(req.Reason)),
		Delta:     &delta,
	}
	switch {
	case err != nil:
		rec.Outcome = models.OutcomeGrantFailed
	case res.Replayed:
		rec.Outcome = models.OutcomeGrantReplayed
	default:
		rec.Outcome = models.OutcomeGranted
	}
	if err == nil {
		balance := res.Balance
		rec.Balance = &balance
	}
	s.audit.Submit(rec)
}
