package action

import (
	"time"

	"engagement-ledger/services/campaign"

	"gorm.io/datatypes"
)

// Action is the immutable record of one payout. The unique index over
// (performer, campaign, action_type) is the dedup key: at most one reward per
// performer per campaign per action type.
type Action struct {
	ID                 string              `gorm:"column:id;primaryKey;size:32" json:"id"`
	PerformerAccountID string              `gorm:"column:performer_account_id;size:64;not null;uniqueIndex:ux_actions_dedup,priority:1" json:"performer_account_id"`
	CampaignID         string              `gorm:"column:campaign_id;size:32;not null;uniqueIndex:ux_actions_dedup,priority:2;index" json:"campaign_id"`
	ActionType         campaign.ActionType `gorm:"column:action_type;size:16;not null;uniqueIndex:ux_actions_dedup,priority:3" json:"action_type"`
	CreditsEarned      int64               `gorm:"column:credits_earned;not null" json:"credits_earned"`
	Evidence           datatypes.JSON      `gorm:"column:evidence" json:"evidence,omitempty"`
	CreatedAt          time.Time           `gorm:"column:created_at;not null" json:"created_at"`
}

func (Action) TableName() string {
	return "actions"
}

// SubmitInput is one action attempt together with the verification result
// obtained from the external verifier.
type SubmitInput struct {
	PerformerID  string
	CampaignID   string
	ActionType   campaign.ActionType
	Verification Verification
}

type Result struct {
	Action         *Action
	CreditsEarned  int64
	NewBalance     int64
	CampaignStatus campaign.Status
}
