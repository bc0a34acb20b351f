package services

import "time"

const (
	KeyBalance     = "ledger:balance:%s"
	KeyConsume     = "ledger:consume:%s:%s"
	KeyGrant       = "ledger:grant:%s"
	KeyRateLimit   = "ratelimit:%s:%s"
	KeyAuditStream = "audit:opens"

	// Retries of one open arrive within minutes; grants are kept forever.
	TTLConsumeRecord = 30 * 24 * time.Hour // 30 days

	AuditStreamMaxLen = 1_000_000
)
