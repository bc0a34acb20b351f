package models

type GrantReason string

const (
	GrantReasonStarsPurchase GrantReason = "stars-purchase"
	GrantReasonAdmin         GrantReason = "admin-grant"
)

func (r GrantReason) Valid() bool {
	switch r {
	case GrantReasonStarsPurchase, GrantReasonAdmin:
		return true
	}
	return false
}

// ConsumeResult is the ledger's answer to one consume call. Replayed is set
// when the request id had already been consumed and nothing was debited.
type ConsumeResult struct {
	OK       bool  `json:"ok" db:"ok"`
	Balance  int64 `json:"balance" db:"balance"`
	Replayed bool  `json:"replayed,omitempty" db:"replayed"`
}

type GrantResult struct {
	Balance  int64 `json:"balance" db:"balance"`
	Replayed bool  `json:"replayed,omitempty" db:"replayed"`
}

type GrantRequest struct {
	UserID    string      `json:"userId" binding:"required"`
	RequestID string      `json:"requestId" binding:"required"`
	Delta     int64       `json:"delta" binding:"required,min=1"`
	Reason    GrantReason `json:"-"`
}

type BalanceUpdate struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	Balance int64  `json:"balance"`
}
