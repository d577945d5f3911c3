package account

import (
	"math"
	"time"

	"engagement-ledger/services/txlog"

	"gorm.io/gorm"
)

// Unbounded disables the balance floor of an adjustment. Credits use it.
const Unbounded int64 = math.MinInt64

type Account struct {
	ID          string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Balance     int64     `gorm:"column:balance;not null;default:0;check:chk_accounts_balance,balance >= 0" json:"balance"`
	TotalEarned int64     `gorm:"column:total_earned;not null;default:0" json:"total_earned"`
	TotalSpent  int64     `gorm:"column:total_spent;not null;default:0" json:"total_spent"`
	Seq         int64     `gorm:"column:seq;not null;default:0" json:"-"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// Adjustment describes one balance change. MinBalance is the floor the
// resulting balance must stay at or above; Unbounded skips the check.
type Adjustment struct {
	AccountID   string
	Delta       int64
	MinBalance  int64
	Kind        txlog.Kind
	ReferenceID string
}

// Debit spends amount from the account, never below zero.
func Debit(accountID string, amount int64, kind txlog.Kind, referenceID string) Adjustment {
	return Adjustment{AccountID: accountID, Delta: -amount, MinBalance: 0, Kind: kind, ReferenceID: referenceID}
}

// Credit adds amount to the account unconditionally.
func Credit(accountID string, amount int64, kind txlog.Kind, referenceID string) Adjustment {
	return Adjustment{AccountID: accountID, Delta: amount, MinBalance: Unbounded, Kind: kind, ReferenceID: referenceID}
}

// counterUpdates returns the lifetime counter columns touched by kind.
func (a Adjustment) counterUpdates() map[string]any {
	switch a.Kind {
	case txlog.KindSpend:
		return map[string]any{"total_spent": gorm.Expr("total_spent + ?", -a.Delta)}
	case txlog.KindRefund:
		return map[string]any{"total_spent": gorm.Expr("total_spent - ?", a.Delta)}
	case txlog.KindEarn:
		return map[string]any{"total_earned": gorm.Expr("total_earned + ?", a.Delta)}
	default:
		return nil
	}
}

type ceiling struct {
	column string
	max    int64
}

// ceilings returns, per column written by the adjustment, the largest
// stored value that can still absorb it without overflowing int64.
func (a Adjustment) ceilings() []ceiling {
	var out []ceiling
	if a.Delta > 0 {
		out = append(out, ceiling{"balance", math.MaxInt64 - a.Delta})
	}
	switch a.Kind {
	case txlog.KindSpend:
		out = append(out, ceiling{"total_spent", math.MaxInt64 + a.Delta})
	case txlog.KindEarn:
		out = append(out, ceiling{"total_earned", math.MaxInt64 - a.Delta})
	}
	return out
}

// overflows reports whether applying the adjustment to acct would overflow
// one of the columns it writes.
func (a Adjustment) overflows(acct Account) bool {
	current := map[string]int64{
		"balance":      acct.Balance,
		"total_spent":  acct.TotalSpent,
		"total_earned": acct.TotalEarned,
	}
	for _, c := range a.ceilings() {
		if current[c.column] > c.max {
			return true
		}
	}
	return false
}
