package services_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cases-miniapp-backend/internal/models"
	"cases-miniapp-backend/internal/services"
)

func newMockStore(t *testing.T) (*services.PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return services.NewPostgresStore(sqlx.NewDb(db, "postgres")), mock
}

func TestPostgresConsumeIsOneRoundTrip(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ok, balance, replayed FROM consume_open($1, $2)`)).
		WithArgs("42", "req-1").
		WillReturnRows(sqlmock.NewRows([]string{"ok", "balance", "replayed"}).AddRow(true, 2, false))

	res, err := store.Consume(context.Background(), "42", "req-1")
	require.NoError(t, err)

	assert.Equal(t, models.ConsumeResult{OK: true, Balance: 2}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresConsumeNoRights(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM consume_open($1, $2)`)).
		WithArgs("42", "req-2").
		WillReturnRows(sqlmock.NewRows([]string{"ok", "balance", "replayed"}).AddRow(false, 0, false))

	res, err := store.Consume(context.Background(), "42", "req-2")
	require.NoError(t, err)

	assert.False(t, res.OK)
	assert.Equal(t, int64(0), res.Balance)
}

func TestPostgresConsumeError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM consume_open($1, $2)`)).
		WillReturnError(errors.New("connection reset"))

	ledger := services.NewBoundedLedger(store, time.Second)
	_, err := ledger.Consume(context.Background(), "42", "req-3")

	assert.ErrorIs(t, err, services.ErrLedgerUnavailable)
}

func TestPostgresGrant(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT balance, replayed FROM grant_open($1, $2, $3, $4)`)).
		WithArgs("42", int64(1), "stars-purchase", "stars:42:abc").
		WillReturnRows(sqlmock.NewRows([]string{"balance", "replayed"}).AddRow(4, true))

	res, err := store.Grant(context.Background(), "42", "stars:42:abc", 1, models.GrantReasonStarsPurchase)
	require.NoError(t, err)

	assert.Equal(t, models.GrantResult{Balance: 4, Replayed: true}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBalanceMissingRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT balance FROM open_rights WHERE user_id = $1`)).
		WithArgs("42").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))

	balance, err := store.Balance(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestPostgresWriteAudit(t *testing.T) {
	store, mock := newMockStore(t)
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	zero := int64(0)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO open_logs`)).
		WithArgs(ts, "req-1", "42", "no_rights", nil, nil, true, "ios", nil, "Mozilla", 120, nil, nil, int64(0)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.WriteAudit(context.Background(), models.AuditRecord{
		Timestamp:      ts,
		RequestID:      "req-1",
		UserID:         "42",
		Outcome:        models.OutcomeNoRights,
		Validated:      true,
		Platform:       models.StringPtr("ios"),
		Source:         "Mozilla",
		InitDataLength: 120,
		Balance:        &zero,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriteGrantAudit(t *testing.T) {
	store, mock := newMockStore(t)
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	delta, balance := int64(1), int64(3)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO open_logs`)).
		WithArgs(ts, "stars:42:abc", "42", "granted", nil, nil, true, nil, nil, "", 0, "stars-purchase", int64(1), int64(3)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.WriteAudit(context.Background(), models.AuditRecord{
		Timestamp: ts,
		RequestID: "stars:42:abc",
		UserID:    "42",
		Outcome:   models.OutcomeGranted,
		Validated: true,
		Reason:    models.StringPtr(string(models.GrantReasonStarsPurchase)),
		Delta:     &delta,
		Balance:   &balance,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
