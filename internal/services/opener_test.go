package services_test

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cases-miniapp-backend/internal/models"
	"cases-miniapp-backend/internal/services"
	"cases-miniapp-backend/internal/telegram"
)

const testBotToken = "123456:TEST-token"

// signInitData builds init data for user id the way the Telegram client does.
func signInitData(t *testing.T, userID int64, authDate time.Time) string {
	t.Helper()

	vals := url.Values{}
	vals.Set("query_id", "AAHdF6IQAAAAAN0XohDhrOrc")
	vals.Set("user", `{"id":`+strconv.FormatInt(userID, 10)+`,"first_name":"Ann"}`)
	vals.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))

	canon, err := telegram.Canonicalize(vals.Encode())
	require.NoError(t, err)
	vals.Set("hash", telegram.SignHex(telegram.DeriveKey(testBotToken), canon))
	return vals.Encode()
}

type captureAuditor struct {
	mu      sync.Mutex
	records []models.AuditRecord
}

func (c *captureAuditor) Submit(rec models.AuditRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

func (c *captureAuditor) all() []models.AuditRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.AuditRecord(nil), c.records...)
}

type openFixture struct {
	svc    *services.OpenService
	ledger services.Ledger
	audit  *captureAuditor
}

func newOpenFixture(t *testing.T, ledger services.Ledger) *openFixture {
	t.Helper()

	rewards, err := services.NewRewardSelector(models.DefaultCatalog(), []byte("seed"))
	require.NoError(t, err)

	audit := &captureAuditor{}
	verifier := telegram.NewVerifier(testBotToken, 24*time.Hour)
	bounded := services.NewBoundedLedger(ledger, time.Second)

	return &openFixture{
		svc:    services.NewOpenService(verifier, bounded, rewards, audit, zap.NewNop()),
		ledger: bounded,
		audit:  audit,
	}
}

func TestOpenGuestDraw(t *testing.T) {
	f := newOpenFixture(t, services.NewMemoryLedger())

	res, err := f.svc.Open(context.Background(), models.OpenRequest{InitData: "", Source: "curl/8"})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeGuestDraw, res.Outcome)
	assert.Equal(t, telegram.GuestID, res.UserID)
	assert.False(t, res.Validated)
	require.NotNil(t, res.Prize)
	assert.Nil(t, res.Balance)
	assert.NotEmpty(t, res.RequestID)

	records := f.audit.all()
	require.Len(t, records, 1)
	assert.Equal(t, models.OutcomeGuestDraw, records[0].Outcome)
	assert.Equal(t, res.Prize.ID, *records[0].PrizeID)
	assert.Equal(t, 0, records[0].InitDataLength)
}

func TestOpenForgedSignatureIsGuest(t *testing.T) {
	ledger := services.NewMemoryLedger()
	_, err := ledger.Grant(context.Background(), "42", "pay", 5, models.GrantReasonAdmin)
	require.NoError(t, err)
	f := newOpenFixture(t, ledger)

	raw := strings.Replace(signInitData(t, 42, time.Now()), "Ann", "Eve", 1)
	res, err := f.svc.Open(context.Background(), models.OpenRequest{InitData: raw})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeGuestDraw, res.Outcome)
	assert.Equal(t, "42", res.UserID)
	assert.False(t, res.Validated)

	balance, err := ledger.Balance(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance, "unverified requests never touch the ledger")
}

func TestOpenStaleIsGuest(t *testing.T) {
	ledger := services.NewMemoryLedger()
	_, err := ledger.Grant(context.Background(), "42", "pay", 1, models.GrantReasonAdmin)
	require.NoError(t, err)
	f := newOpenFixture(t, ledger)

	raw := signInitData(t, 42, time.Now().Add(-48*time.Hour))
	res, err := f.svc.Open(context.Background(), models.OpenRequest{InitData: raw})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeGuestDraw, res.Outcome)
	balance, _ := ledger.Balance(context.Background(), "42")
	assert.Equal(t, int64(1), balance)
}

func TestOpenSpendsLastRight(t *testing.T) {
	ledger := services.NewMemoryLedger()
	_, err := ledger.Grant(context.Background(), "42", "pay", 1, models.GrantReasonStarsPurchase)
	require.NoError(t, err)
	f := newOpenFixture(t, ledger)
	raw := signInitData(t, 42, time.Now())

	res, err := f.svc.Open(context.Background(), models.OpenRequest{
		InitData:  raw,
		RequestID: "r1",
		Platform:  "ios",
		Version:   "7.0",
	})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeDrawn, res.Outcome)
	assert.True(t, res.Validated)
	require.NotNil(t, res.Prize)
	require.NotNil(t, res.Balance)
	assert.Equal(t, int64(0), *res.Balance)

	res2, err := f.svc.Open(context.Background(), models.OpenRequest{InitData: raw, RequestID: "r2"})
	assert.ErrorIs(t, err, services.ErrNoEntitlement)
	assert.Equal(t, models.OutcomeNoRights, res2.Outcome)
	assert.Nil(t, res2.Prize)
	require.NotNil(t, res2.Balance)
	assert.Equal(t, int64(0), *res2.Balance)

	records := f.audit.all()
	require.Len(t, records, 2)
	assert.Equal(t, models.OutcomeDrawn, records[0].Outcome)
	assert.Equal(t, "ios", *records[0].Platform)
	assert.Equal(t, "7.0", *records[0].ClientVersion)
	assert.Equal(t, len(raw), records[0].InitDataLength)
	assert.Equal(t, models.OutcomeNoRights, records[1].Outcome)
	assert.Nil(t, records[1].PrizeID)
}

func TestOpenReplaySameRequest(t *testing.T) {
	ledger := services.NewMemoryLedger()
	_, err := ledger.Grant(context.Background(), "42", "pay", 2, models.GrantReasonStarsPurchase)
	require.NoError(t, err)
	f := newOpenFixture(t, ledger)
	raw := signInitData(t, 42, time.Now())

	first, err := f.svc.Open(context.Background(), models.OpenRequest{InitData: raw, RequestID: "same"})
	require.NoError(t, err)
	again, err := f.svc.Open(context.Background(), models.OpenRequest{InitData: raw, RequestID: "same"})
	require.NoError(t, err)

	assert.Equal(t, first.Prize, again.Prize)
	assert.Equal(t, *first.Balance, *again.Balance)
	assert.Equal(t, models.OutcomeDrawn, first.Outcome)
	assert.Equal(t, models.OutcomeReplayed, again.Outcome)

	balance, _ := ledger.Balance(context.Background(), "42")
	assert.Equal(t, int64(1), balance)

	records := f.audit.all()
	require.Len(t, records, 2)
	assert.Equal(t, models.OutcomeDrawn, records[0].Outcome)
	assert.Equal(t, models.OutcomeReplayed, records[1].Outcome)
	assert.Equal(t, records[0].PrizeID, records[1].PrizeID)
}

// lateCancelLedger commits the consume and then reports the caller's
// cancellation, like a driver whose round-trip finished after the client left.
type lateCancelLedger struct {
	*services.MemoryLedger
}

func (l lateCancelLedger) Consume(ctx context.Context, userID, requestID string) (models.ConsumeResult, error) {
	res, err := l.MemoryLedger.Consume(context.Background(), userID, requestID)
	if err != nil {
		return res, err
	}
	if ctx.Err() != nil {
		return models.ConsumeResult{}, ctx.Err()
	}
	return res, nil
}

func TestOpenSurvivesClientDisconnect(t *testing.T) {
	ledger := services.NewMemoryLedger()
	_, err := ledger.Grant(context.Background(), "42", "pay", 1, models.GrantReasonStarsPurchase)
	require.NoError(t, err)
	f := newOpenFixture(t, lateCancelLedger{ledger})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.svc.Open(ctx, models.OpenRequest{InitData: signInitData(t, 42, time.Now()), RequestID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDrawn, res.Outcome)
	require.NotNil(t, res.Prize)
	assert.Equal(t, int64(0), *res.Balance)

	records := f.audit.all()
	require.Len(t, records, 1)
	assert.Equal(t, models.OutcomeDrawn, records[0].Outcome)
}

func TestOpenLedgerUnavailable(t *testing.T) {
	f := newOpenFixture(t, failingLedger{err: errors.New("dial tcp: connection refused")})
	raw := signInitData(t, 42, time.Now())

	res, err := f.svc.Open(context.Background(), models.OpenRequest{InitData: raw, RequestID: "r1"})

	assert.ErrorIs(t, err, services.ErrLedgerUnavailable)
	assert.Equal(t, models.OutcomeLedgerUnavailable, res.Outcome)
	assert.Nil(t, res.Prize)

	records := f.audit.all()
	require.Len(t, records, 1)
	assert.Equal(t, models.OutcomeLedgerUnavailable, records[0].Outcome)
	assert.Nil(t, records[0].PrizeID)
}

func TestOpenNoSecretIsGuest(t *testing.T) {
	rewards, err := services.NewRewardSelector(models.DefaultCatalog(), nil)
	require.NoError(t, err)
	audit := &captureAuditor{}
	svc := services.NewOpenService(telegram.NewVerifier("", time.Hour), failingLedger{err: errors.New("unreachable")}, rewards, audit, zap.NewNop())

	res, err := svc.Open(context.Background(), models.OpenRequest{InitData: signInitData(t, 42, time.Now())})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeGuestDraw, res.Outcome)
	assert.False(t, res.Validated)
}

func TestBalance(t *testing.T) {
	ledger := services.NewMemoryLedger()
	_, err := ledger.Grant(context.Background(), "42", "pay", 3, models.GrantReasonStarsPurchase)
	require.NoError(t, err)
	f := newOpenFixture(t, ledger)

	res, err := f.svc.Balance(context.Background(), signInitData(t, 42, time.Now()))
	require.NoError(t, err)
	assert.True(t, res.Validated)
	assert.Equal(t, int64(3), res.Balance)

	guest, err := f.svc.Balance(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, guest.Validated)
	assert.Equal(t, int64(0), guest.Balance)
}
