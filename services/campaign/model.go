package campaign

import (
	"time"
)

type Status string
type Kind string
type ActionType string

const (
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"

	KindVideo  Kind = "VIDEO"
	KindFollow Kind = "FOLLOW"

	ActionView    ActionType = "VIEW"
	ActionLike    ActionType = "LIKE"
	ActionComment ActionType = "COMMENT"
	ActionFollow  ActionType = "FOLLOW"
)

// ParseActionType accepts the closed set of action types, case sensitive.
func ParseActionType(s string) (ActionType, bool) {
	switch t := ActionType(s); t {
	case ActionView, ActionLike, ActionComment, ActionFollow:
		return t, true
	default:
		return "", false
	}
}

// Campaign escrows CreditsPerAction * TargetCount credits taken from the
// owner at creation. The counters RemainingCredits and CurrentCount only move
// through ApplyProgressTx and CancelWithRefund.
type Campaign struct {
	ID               string     `gorm:"column:id;primaryKey;size:32" json:"id"`
	Code             string     `gorm:"column:code;size:32;index" json:"code"`
	OwnerAccountID   string     `gorm:"column:owner_account_id;size:64;not null;index" json:"owner_account_id"`
	Kind             Kind       `gorm:"column:kind;size:16;not null" json:"kind"`
	ActionType       ActionType `gorm:"column:action_type;size:16;not null" json:"action_type"`
	TargetRef        string     `gorm:"column:target_ref;size:255" json:"target_ref,omitempty"`
	CreditsPerAction int64      `gorm:"column:credits_per_action;not null;check:chk_campaigns_cpa,credits_per_action > 0" json:"credits_per_action"`
	TargetCount      int64      `gorm:"column:target_count;not null;check:chk_campaigns_target,target_count > 0" json:"target_count"`
	CurrentCount     int64      `gorm:"column:current_count;not null;default:0" json:"current_count"`
	TotalCredits     int64      `gorm:"column:total_credits;not null" json:"total_credits"`
	RemainingCredits int64      `gorm:"column:remaining_credits;not null;check:chk_campaigns_remaining,remaining_credits >= 0" json:"remaining_credits"`
	RefundedCredits  int64      `gorm:"column:refunded_credits;not null;default:0" json:"refunded_credits"`
	Status           Status     `gorm:"column:status;size:16;not null;index" json:"status"`
	CreatedAt        time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

// Conserved reports totalCredits == remainingCredits + creditsPerAction *
// currentCount. A cancelled campaign moved its remaining credits back to the
// owner, so the refund is counted on the right hand side.
func (c *Campaign) Conserved() bool {
	return c.TotalCredits == c.RemainingCredits+c.CreditsPerAction*c.CurrentCount+c.RefundedCredits
}

// ShouldBeCompleted is the completion rule: target reached or budget below
// one more payout.
func (c *Campaign) ShouldBeCompleted() bool {
	return c.CurrentCount == c.TargetCount || c.RemainingCredits < c.CreditsPerAction
}

type CreateInput struct {
	OwnerID          string
	Kind             Kind
	ActionType       ActionType
	CreditsPerAction int64
	TargetCount      int64
	TargetRef        string
}
