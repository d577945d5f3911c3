package txlog

import "time"

type Kind string

const (
	KindSpend  Kind = "SPEND"
	KindEarn   Kind = "EARN"
	KindRefund Kind = "REFUND"
	KindGrant  Kind = "GRANT"
)

func (k Kind) Valid() bool {
	switch k {
	case KindSpend, KindEarn, KindRefund, KindGrant:
		return true
	default:
		return false
	}
}

// SignOK reports whether amount carries the sign the kind requires: spends
// are negative, everything else credits the account.
func (k Kind) SignOK(amount int64) bool {
	if k == KindSpend {
		return amount < 0
	}
	return amount > 0
}

// Transaction is one immutable ledger row. Seq is the account's adjustment
// counter after this entry, so (account_id, seq) orders an account's history
// strictly.
type Transaction struct {
	ID           string    `gorm:"column:id;primaryKey;size:32" json:"id"`
	AccountID    string    `gorm:"column:account_id;size:64;not null;uniqueIndex:idx_transactions_account_seq,priority:1" json:"account_id"`
	Seq          int64     `gorm:"column:seq;not null;uniqueIndex:idx_transactions_account_seq,priority:2" json:"seq"`
	Kind         Kind      `gorm:"column:kind;size:16;not null" json:"kind"`
	Amount       int64     `gorm:"column:amount;not null" json:"amount"`
	BalanceAfter int64     `gorm:"column:balance_after;not null" json:"balance_after"`
	ReferenceID  string    `gorm:"column:reference_id;size:64;index" json:"reference_id"`
	CreatedAt    time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// Totals aggregates an account's history by kind.
type Totals struct {
	Sum    int64
	Spend  int64
	Earn   int64
	Refund int64
	Grant  int64
	Count  int64
}
