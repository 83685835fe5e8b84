package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/worktime-engine/engine"
	"github.com/warp/worktime-engine/engine/store"
)

func seedChain(t *testing.T, mem *store.Memory, userID engine.UserID, rows ...engine.Transaction) {
	t.Helper()
	balance := engine.Hours{}
	for i := range rows {
		rows[i].UserID = userID
		rows[i].BalanceBefore = balance
		rows[i].BalanceAfter = balance.Add(rows[i].Hours)
		balance = rows[i].BalanceAfter
	}
	require.NoError(t, mem.AppendTransactions(context.Background(), rows))
}

func TestLedger_BalanceIsLatestRunningSum(t *testing.T) {
	mem := store.NewMemory()
	seedChain(t, mem, "u1",
		engine.Transaction{Date: d("2026-01-05"), Type: engine.TxEarned, Hours: hrs(1.5)},
		engine.Transaction{Date: d("2026-01-06"), Type: engine.TxEarned, Hours: hrs(-2)},
		engine.Transaction{Date: d("2026-02-02"), Type: engine.TxEarned, Hours: hrs(0.5)},
	)
	ledger := engine.NewLedger(mem)
	ctx := context.Background()

	balance, err := ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(hrs(0)), "balance = %s, want 0", balance)

	asOf, err := ledger.BalanceAt(ctx, "u1", d("2026-01-31"))
	require.NoError(t, err)
	assert.True(t, asOf.Equal(hrs(-0.5)), "as-of = %s, want -0.5", asOf)
}

func TestLedger_OpeningBalanceIsPriorMonthClose(t *testing.T) {
	mem := store.NewMemory()
	seedChain(t, mem, "u1",
		engine.Transaction{Date: d("2026-01-30"), Type: engine.TxEarned, Hours: hrs(3)},
		engine.Transaction{Date: d("2026-02-02"), Type: engine.TxEarned, Hours: hrs(1)},
	)
	ledger := engine.NewLedger(mem)

	opening, err := ledger.OpeningBalance(context.Background(), "u1", engine.MustParseMonth("2026-02"))
	require.NoError(t, err)
	assert.True(t, opening.Equal(hrs(3)), "opening = %s, want 3", opening)
}

func TestLedger_EmptyUserHasZeroBalance(t *testing.T) {
	ledger := engine.NewLedger(store.NewMemory())

	balance, err := ledger.Balance(context.Background(), "nobody")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestVerifyChain_AcceptsContiguousRows(t *testing.T) {
	rows := []engine.Transaction{
		{ID: 1, BalanceBefore: hrs(0), Hours: hrs(2), BalanceAfter: hrs(2)},
		{ID: 2, BalanceBefore: hrs(2), Hours: hrs(-0.5), BalanceAfter: hrs(1.5)},
	}
	assert.NoError(t, engine.VerifyChain(engine.Hours{}, rows))
}

func TestVerifyChain_DetectsGap(t *testing.T) {
	rows := []engine.Transaction{
		{ID: 1, BalanceBefore: hrs(0), Hours: hrs(2), BalanceAfter: hrs(2)},
		{ID: 2, BalanceBefore: hrs(3), Hours: hrs(1), BalanceAfter: hrs(4)},
	}
	err := engine.VerifyChain(engine.Hours{}, rows)
	require.Error(t, err)

	var chainErr *engine.ChainError
	require.ErrorAs(t, err, &chainErr)
	assert.Equal(t, int64(2), chainErr.TxID)
	assert.True(t, errors.Is(err, engine.ErrIntegrity))
}
