package models

import "time"

// Outcome is the terminal state of one open attempt.
type Outcome string

const (
	OutcomeGuestDraw         Outcome = "guest_draw"
	OutcomeDrawn             Outcome = "drawn"
	OutcomeNoRights          Outcome = "no_rights"
	OutcomeLedgerUnavailable Outcome = "ledger_unavailable"
	// OutcomeReplayed repeats the prize of an earlier consume; nothing was debited.
	OutcomeReplayed Outcome = "replayed"

	OutcomeGranted       Outcome = "granted"
	OutcomeGrantReplayed Outcome = "grant_replayed"
	OutcomeGrantFailed   Outcome = "grant_failed"
)

// Stable error codes returned to clients.
const (
	ErrCodeNoRights          = "no_rights"
	ErrCodeLedgerUnavailable = "ledger_unavailable"
	ErrCodeForbidden         = "forbidden"
	ErrCodeUnauthorized      = "unauthorized"
	ErrCodeBadPayload        = "bad_payload"
	ErrCodeRateLimited       = "rate_limited"
	ErrCodeInvoiceFailed     = "invoice_failed"
	ErrCodeInternal          = "internal"
)

// OpenRequest carries everything the HTTP layer extracted from one attempt.
type OpenRequest struct {
	InitData  string
	RequestID string
	Platform  string
	Version   string
	Source    string
}

type OpenResponse struct {
	OK        bool   `json:"ok"`
	Prize     *Item  `json:"prize,omitempty"`
	UserID    string `json:"userId,omitempty"`
	Balance   *int64 `json:"balance,omitempty"`
	Validated *bool  `json:"validated,omitempty"`
	Error     string `json:"error,omitempty"`
}

// AuditRecord is one append-only row per open attempt or grant. Raw init
// data is never stored; InitDataLength is kept instead.
type AuditRecord struct {
	Timestamp      time.Time `json:"ts" db:"ts"`
	RequestID      string    `json:"req_id" db:"req_id"`
	UserID         string    `json:"user_id" db:"user_id"`
	Outcome        Outcome   `json:"outcome" db:"outcome"`
	PrizeID        *string   `json:"prize_id" db:"prize_id"`
	PrizeTitle     *string   `json:"prize_title" db:"prize_title"`
	Validated      bool      `json:"validated" db:"validated"`
	Platform       *string   `json:"platform" db:"platform"`
	ClientVersion  *string   `json:"version" db:"version"`
	Source         string    `json:"source" db:"source"`
	InitDataLength int       `json:"init_len" db:"init_len"`
	Reason         *string   `json:"reason" db:"reason"`
	Delta          *int64    `json:"delta" db:"delta"`
	Balance        *int64    `json:"balance" db:"balance"`
}

// StringPtr returns nil for empty strings so optional audit columns stay NULL.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
