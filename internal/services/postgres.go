package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"cases-miniapp-backend/internal/migrations"
	"cases-miniapp-backend/internal/models"
)

// PostgresStore reaches the ledger through the consume_open and grant_open
// functions, one SELECT per call, and writes audit rows to open_logs.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects, checks the connection and applies migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %v", err)
	}

	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return NewPostgresStore(db), nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Consume(ctx context.Context, userID, requestID string) (models.ConsumeResult, error) {
	var res models.ConsumeResult
	err := s.db.GetContext(ctx, &res,
		`SELECT ok, balance, replayed FROM consume_open($1, $2)`, userID, requestID)
	if err != nil {
		return models.ConsumeResult{}, fmt.Errorf("consume_open: %w", err)
	}
	return res, nil
}

func (s *PostgresStore) Grant(ctx context.Context, userID, requestID string, delta int64, reason models.GrantReason) (models.GrantResult, error) {
	var res models.GrantResult
	err := s.db.GetContext(ctx, &res,
		`SELECT balance, replayed FROM grant_open($1, $2, $3, $4)`, userID, delta, string(reason), requestID)
	if err != nil {
		return models.GrantResult{}, fmt.Errorf("grant_open: %w", err)
	}
	return res, nil
}

func (s *PostgresStore) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.db.GetContext(ctx, &balance,
		`SELECT balance FROM open_rights WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select balance: %w", err)
	}
	return balance, nil
}

const insertAuditSQL = `INSERT INTO open_logs
	(ts, req_id, user_id, outcome, prize_id, prize_title, validated, platform, version, source, init_len, reason, delta, balance)
	VALUES (:ts, :req_id, :user_id, :outcome, :prize_id, :prize_title, :validated, :platform, :version, :source, :init_len, :reason, :delta, :balance)`

func (s *PostgresStore) WriteAudit(ctx context.Context, rec models.AuditRecord) error {
	if _, err := s.db.NamedExecContext(ctx, insertAuditSQL, rec); err != nil {
		return fmt.Errorf("insert open_logs: %w", err)
	}
	return nil
}
