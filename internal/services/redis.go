package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"cases-miniapp-backend/internal/config"
	"cases-miniapp-backend/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisService struct {
	client *redis.Client
}

func NewRedisService(cfg *config.Config) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %v", err)
	}

	return &RedisService{client: client}, nil
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// consumeScript returns {ok, balance, replayed}. A prior consume of the same
// request short-circuits before the balance is read.
var consumeScript = redis.NewScript(`
	local balanceKey = KEYS[1]
	local consumeKey = KEYS[2]
	local ttl = tonumber(ARGV[1])

	local prior = redis.call("GET", consumeKey)
	if prior then
		return {1, tonumber(prior), 1}
	end

	local balance = tonumber(redis.call("GET", balanceKey) or "0")
	if balance < 1 then
		return {0, balance, 0}
	end

	balance = redis.call("DECR", balanceKey)
	redis.call("SET", consumeKey, balance, "EX", ttl)

	return {1, balance, 0}
`)

func (s *RedisService) Consume(ctx context.Context, userID, requestID string) (models.ConsumeResult, error) {
	keys := []string{
		fmt.Sprintf(KeyBalance, userID),
		fmt.Sprintf(KeyConsume, userID, requestID),
	}

	vals, err := consumeScript.Run(ctx, s.client, keys, int64(TTLConsumeRecord.Seconds())).Int64Slice()
	if err != nil {
		return models.ConsumeResult{}, fmt.Errorf("consume script: %w", err)
	}
	if len(vals) != 3 {
		return models.ConsumeResult{}, fmt.Errorf("consume script returned %d values", len(vals))
	}

	return models.ConsumeResult{
		OK:       vals[0] == 1,
		Balance:  vals[1],
		Replayed: vals[2] == 1,
	}, nil
}

// grantScript returns {balance, replayed}. The grant hash doubles as the
// idempotency record and the credit's receipt.
var grantScript = redis.NewScript(`
	local balanceKey = KEYS[1]
	local grantKey = KEYS[2]
	local delta = tonumber(ARGV[1])

	local prior = redis.call("HGET", grantKey, "balance")
	if prior then
		return {tonumber(prior), 1}
	end

	local balance = redis.call("INCRBY", balanceKey, delta)
	redis.call("HSET", grantKey,
		"user_id", ARGV[3],
		"delta", delta,
		"reason", ARGV[2],
		"balance", balance,
		"granted_at", ARGV[4])

	return {balance, 0}
`)

func (s *RedisService) Grant(ctx context.Context, userID, requestID string, delta int64, reason models.GrantReason) (models.GrantResult, error) {
	keys := []string{
		fmt.Sprintf(KeyBalance, userID),
		fmt.Sprintf(KeyGrant, requestID),
	}

	vals, err := grantScript.Run(ctx, s.client, keys, delta, string(reason), userID, time.Now().Unix()).Int64Slice()
	if err != nil {
		return models.GrantResult{}, fmt.Errorf("grant script: %w", err)
	}
	if len(vals) != 2 {
		return models.GrantResult{}, fmt.Errorf("grant script returned %d values", len(vals))
	}

	return models.GrantResult{Balance: vals[0], Replayed: vals[1] == 1}, nil
}

func (s *RedisService) Balance(ctx context.Context, userID string) (int64, error) {
	balance, err := s.client.Get(ctx, fmt.Sprintf(KeyBalance, userID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %v", err)
	}
	return balance, nil
}

// rateLimitScript increments the window counter and arms its expiry in the
// same step. A counter left without a TTL gets one on the next hit.
var rateLimitScript = redis.NewScript(`
	local count = redis.call('INCR', KEYS[1])
	if redis.call('PTTL', KEYS[1]) < 0 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return count
`)

// CheckRateLimit counts hits in a fixed window keyed by action and key.
func (s *RedisService) CheckRateLimit(ctx context.Context, key, action string, limit int, window time.Duration) (bool, error) {
	rk := fmt.Sprintf(KeyRateLimit, action, key)

	count, err := rateLimitScript.Run(ctx, s.client, []string{rk}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %v", err)
	}

	return count <= int64(limit), nil
}

// WriteAudit appends a record to the audit stream.
func (s *RedisService) WriteAudit(ctx context.Context, rec models.AuditRecord) error {
	values := map[string]interface{}{
		"ts":        rec.Timestamp.UTC().Format(time.RFC3339Nano),
		"req_id":    rec.RequestID,
		"user_id":   rec.UserID,
		"outcome":   string(rec.Outcome),
		"validated": strconv.FormatBool(rec.Validated),
		"source":    rec.Source,
		"init_len":  rec.InitDataLength,
	}
	optional := map[string]*string{
		"prize_id":    rec.PrizeID,
		"prize_title": rec.PrizeTitle,
		"platform":    rec.Platform,
		"version":     rec.ClientVersion,
	}
	for field, v := range optional {
		if v != nil {
			values[field] = *v
		}
	}
	if rec.Reason != nil {
		values["reason"] = *rec.Reason
	}
	if rec.Delta != nil {
		values["delta"] = *rec.Delta
	}
	if rec.Balance != nil {
		values["balance"] = *rec.Balance
	}

	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: KeyAuditStream,
		MaxLen: AuditStreamMaxLen,
		Approx: true,
		Values: values,
	}).Err()
}

func (s *RedisService) DeleteLedgerState(ctx context.Context, userID string, requestIDs ...string) error {
	keys := []string{fmt.Sprintf(KeyBalance, userID)}
	for _, id := range requestIDs {
		keys = append(keys, fmt.Sprintf(KeyConsume, userID, id), fmt.Sprintf(KeyGrant, id))
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisService) ClearRateLimit(ctx context.Context, key, action string) error {
	return s.client.Del(ctx, fmt.Sprintf(KeyRateLimit, action, key)).Err()
}

func (s *RedisService) RateLimitTTL(ctx context.Context, key, action string) (time.Duration, error) {
	return s.client.PTTL(ctx, fmt.Sprintf(KeyRateLimit, action, key)).Result()
}
