package txlog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"engagement-ledger/pkg/db/pagination"
	"engagement-ledger/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func appendEntries(t *testing.T, db *gorm.DB, svc *Service, accountID string, amounts ...int64) {
	t.Helper()

	balance := int64(0)
	for i, amt := range amounts {
		kind := KindGrant
		if amt < 0 {
			kind = KindSpend
		}
		balance += amt
		entry := &Transaction{
			ID:           fmt.Sprintf("%s-%02d", accountID, i+1),
			AccountID:    accountID,
			Seq:          int64(i + 1),
			Kind:         kind,
			Amount:       amt,
			BalanceAfter: balance,
			CreatedAt:    time.Now().UTC(),
		}
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			return svc.Append(context.Background(), tx, entry)
		}))
	}
}

func TestListByAccountPagesInSeqOrder(t *testing.T) {
	db := testutil.NewTestDB(t, &Transaction{})
	svc := NewService(Params{DB: db})
	ctx := context.Background()

	appendEntries(t, db, svc, "alice", 100, -30, 5, -10, 40)
	appendEntries(t, db, svc, "bob", 7)

	rows, info, err := svc.ListByAccount(ctx, "alice", pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.True(t, info.HasMore)
	require.Equal(t, int64(1), rows[0].Seq)
	require.Equal(t, int64(2), rows[1].Seq)

	rows, info, err = svc.ListByAccount(ctx, "alice", pagination.Pagination{Limit: 2, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(3), rows[0].Seq)

	rows, info, err = svc.ListByAccount(ctx, "alice", pagination.Pagination{Limit: 2, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.False(t, info.HasMore)
	require.Equal(t, int64(105), rows[0].BalanceAfter)
}

func TestAppendRejectsDuplicateSeq(t *testing.T) {
	db := testutil.NewTestDB(t, &Transaction{})
	svc := NewService(Params{DB: db})

	appendEntries(t, db, svc, "alice", 10)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Append(context.Background(), tx, &Transaction{
			ID: "other", AccountID: "alice", Seq: 1, Kind: KindGrant, Amount: 1, BalanceAfter: 11, CreatedAt: time.Now(),
		})
	})
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestTotalsByAccount(t *testing.T) {
	db := testutil.NewTestDB(t, &Transaction{})
	svc := NewService(Params{DB: db})

	appendEntries(t, db, svc, "alice", 100, -30, -20, 5)

	totals, err := svc.TotalsByAccount(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, int64(55), totals.Sum)
	require.Equal(t, int64(-50), totals.Spend)
	require.Equal(t, int64(105), totals.Grant)
	require.Equal(t, int64(4), totals.Count)

	empty, err := svc.TotalsByAccount(context.Background(), "nobody")
	require.NoError(t, err)
	require.Equal(t, Totals{}, empty)
}

func TestKindSign(t *testing.T) {
	require.True(t, KindSpend.SignOK(-1))
	require.False(t, KindSpend.SignOK(1))
	require.True(t, KindEarn.SignOK(1))
	require.False(t, KindRefund.SignOK(-1))
	require.False(t, Kind("BONUS").Valid())
}
