package coin

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Reason tags why a transaction moved coins.
type Reason string

const (
	ReasonUploadReward       Reason = "upload_reward"
	ReasonViewReward         Reason = "view_reward"
	ReasonAdWatch            Reason = "ad_watch"
	ReasonReferral           Reason = "referral"
	ReasonReferralBonus      Reason = "referral_bonus"
	ReasonSpinWheel          Reason = "spin_wheel"
	ReasonVoteCast           Reason = "vote_cast"
	ReasonVoteReceived       Reason = "vote_received"
	ReasonSelfieVoteReceived Reason = "selfie_vote_received"
	ReasonDailySelfie        Reason = "daily_selfie"
	ReasonGiftReceived       Reason = "gift_received"
	ReasonGiftSent           Reason = "gift_sent"
	ReasonCompetitionPrize   Reason = "competition_prize"
	ReasonWithdrawal         Reason = "withdrawal"
	ReasonPurchase           Reason = "purchase"
	ReasonSubscription       Reason = "subscription"
	ReasonProfileCompletion  Reason = "profile_completion"
	ReasonWelcomeBonus       Reason = "welcome_bonus"
)

var knownReasons = map[Reason]struct{}{
	ReasonUploadReward:       {},
	ReasonViewReward:         {},
	ReasonAdWatch:            {},
	ReasonReferral:           {},
	ReasonReferralBonus:      {},
	ReasonSpinWheel:          {},
	ReasonVoteCast:           {},
	ReasonVoteReceived:       {},
	ReasonSelfieVoteReceived: {},
	ReasonDailySelfie:        {},
	ReasonGiftReceived:       {},
	ReasonGiftSent:           {},
	ReasonCompetitionPrize:   {},
	ReasonWithdrawal:         {},
	ReasonPurchase:           {},
	ReasonSubscription:       {},
	ReasonProfileCompletion:  {},
	ReasonWelcomeBonus:       {},
}

// ErrInvalidReason indicates an unrecognized transaction reason tag.
var ErrInvalidReason = errors.New("coin: invalid transaction reason")

// ParseReason validates raw input and returns a Reason.
func ParseReason(rawInput string) (Reason, error) {
	candidate := Reason(strings.TrimSpace(rawInput))
	if _, ok := knownReasons[candidate]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidReason, rawInput)
	}
	return candidate, nil
}

// Status enumerates transaction settlement states.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Transaction is an append-only ledger row. Rows are never mutated after
// creation; BalanceAfter is a snapshot taken inside the same transaction
// that moved the balance, so ledger and balance cannot drift.
type Transaction struct {
	TransactionID  string    `gorm:"column:transaction_id;primaryKey;size:190;not null"`
	UserID         string    `gorm:"column:user_id;size:190;not null;index:idx_coin_tx_user_time,priority:1"`
	Reason         Reason    `gorm:"column:reason;size:32;not null;index:idx_coin_tx_reason"`
	Amount         int64     `gorm:"column:amount;not null"`
	BalanceAfter   int64     `gorm:"column:balance_after;not null"`
	Description    string    `gorm:"column:description;size:512;not null"`
	RelatedUserID  string    `gorm:"column:related_user_id;size:190;not null;default:''"`
	RelatedEntryID string    `gorm:"column:related_entry_id;size:190;not null;default:''"`
	Status         Status    `gorm:"column:status;size:16;not null;default:completed"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime;index:idx_coin_tx_user_time,priority:2,sort:desc"`
}

// TableName provides the explicit table binding for GORM.
func (Transaction) TableName() string {
	return "coin_transactions"
}

// RelatedRefs carries optional references attached to a ledger row.
type RelatedRefs struct {
	UserID  string
	EntryID string
}
