package models

import "time"

const (
	TxTypeEarned              = "earned"
	TxTypeSpent               = "spent"
	TxTypeBonus               = "bonus"
	TxTypeRefund              = "refund"
	TxTypePenalty             = "penalty"
	TxTypeSessionBooking      = "session_booking"
	TxTypeSessionCancellation = "session_cancellation"
	TxTypeSessionCompletion   = "session_completion"
	TxTypeCreditPurchase      = "credit_purchase"
	TxTypeCreditTransfer      = "credit_transfer"
)

const (
	TxCategorySession    = "session"
	TxCategoryPurchase   = "purchase"
	TxCategoryTransfer   = "transfer"
	TxCategoryAdjustment = "adjustment"
)

const TxStatusCompleted = "completed"

// CreditTransaction is one immutable row of the credit ledger. BalanceAfter
// snapshots the owner's balance at commit time so history alone can
// reconstruct any past balance.
type CreditTransaction struct {
	ID               int64     `json:"id"`
	Reference        string    `json:"reference"`
	UserID           int64     `json:"user_id"`
	Type             string    `json:"type"`
	Amount           int64     `json:"amount"`
	BalanceAfter     int64     `json:"balance_after"`
	RelatedSessionID *int64    `json:"related_session_id"`
	RelatedUserID    *int64    `json:"related_user_id"`
	Description      string    `json:"description"`
	Category         string    `json:"category"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

func TxCategoryForType(txType string) string {
	switch txType {
	case TxTypeSessionBooking, TxTypeSessionCancellation, TxTypeSessionCompletion:
		return TxCategorySession
	case TxTypeCreditPurchase:
		return TxCategoryPurchase
	case TxTypeCreditTransfer:
		return TxCategoryTransfer
	default:
		return TxCategoryAdjustment
	}
}
