package wallet

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cardjoy/giftbox-service/pkg/apperrors"
)

func setupRepositoryTest(t *testing.T) (Repository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:wallet_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&Wallet{}, &Transaction{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewRepository(db), db
}

func TestGetOrCreateIsLazy(t *testing.T) {
	repo, _ := setupRepositoryTest(t)
	userID := uuid.New()

	w, err := repo.GetOrCreate(userID)
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())
	assert.Equal(t, "NGN", w.Currency)

	again, err := repo.GetOrCreate(userID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, again.ID)
}

func TestDebitImmediateInsufficientFunds(t *testing.T) {
	repo, _ := setupRepositoryTest(t)
	userID := uuid.New()

	_, err := repo.GetOrCreate(userID)
	require.NoError(t, err)

	_, err = repo.DebitImmediate(userID, decimal.NewFromInt(100), "gift-1", "test debit")
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
}

func TestImmediateCreditAndDebit(t *testing.T) {
	repo, _ := setupRepositoryTest(t)
	userID := uuid.New()

	w, err := repo.CreditImmediate(userID, decimal.NewFromInt(1000), "credit-1", "top up")
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(1000)))

	w, err = repo.DebitImmediate(userID, decimal.NewFromInt(500), "gift-2", "purchase")
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(500)))
}

func TestCreditImmediateRejectsNonPositiveAmount(t *testing.T) {
	repo, _ := setupRepositoryTest(t)

	_, err := repo.CreditImmediate(uuid.New(), decimal.Zero, "credit-zero", "nothing")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = repo.CreditImmediate(uuid.New(), decimal.NewFromInt(-5), "credit-neg", "nothing")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestSettleCompletesPendingOnce(t *testing.T) {
	repo, _ := setupRepositoryTest(t)
	userID := uuid.New()

	w, err := repo.GetOrCreate(userID)
	require.NoError(t, err)

	_, err = repo.RecordPending(w.ID, TransactionCredit, decimal.NewFromInt(5000), "fund-1", "wallet funding")
	require.NoError(t, err)

	// pending entries never touch the balance
	w, err = repo.GetByUserID(userID)
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())

	settled, err := repo.Settle("fund-1", TransactionCompleted)
	require.NoError(t, err)
	assert.Equal(t, TransactionCompleted, settled.Status)

	w, err = repo.GetByUserID(userID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(5000)))

	// settling again is a no-op
	settled, err = repo.Settle("fund-1", TransactionCompleted)
	require.NoError(t, err)
	assert.Equal(t, TransactionCompleted, settled.Status)

	w, err = repo.GetByUserID(userID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(5000)))
}

func TestSettleFailedNeverCredits(t *testing.T) {
	repo, _ := setupRepositoryTest(t)
	userID := uuid.New()

	w, err := repo.GetOrCreate(userID)
	require.NoError(t, err)

	_, err = repo.RecordPending(w.ID, TransactionCredit, decimal.NewFromInt(2000), "fund-2", "wallet funding")
	require.NoError(t, err)

	settled, err := repo.Settle("fund-2", TransactionFailed)
	require.NoError(t, err)
	assert.Equal(t, TransactionFailed, settled.Status)

	// a failed entry is terminal, a later completed settle must not flip it
	settled, err = repo.Settle("fund-2", TransactionCompleted)
	require.NoError(t, err)
	assert.Equal(t, TransactionFailed, settled.Status)

	w, err = repo.GetByUserID(userID)
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())
}

func TestSettleUnknownReference(t *testing.T) {
	repo, _ := setupRepositoryTest(t)

	_, err := repo.Settle("no-such-ref", TransactionCompleted)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestBalanceMatchesCompletedLedger(t *testing.T) {
	repo, _ := setupRepositoryTest(t)
	userID := uuid.New()

	w, err := repo.GetOrCreate(userID)
	require.NoError(t, err)

	_, err = repo.CreditImmediate(userID, decimal.NewFromInt(1000), "c1", "")
	require.NoError(t, err)
	_, err = repo.CreditImmediate(userID, decimal.NewFromInt(250), "c2", "")
	require.NoError(t, err)
	_, err = repo.DebitImmediate(userID, decimal.NewFromInt(300), "d1", "")
	require.NoError(t, err)
	_, err = repo.RecordPending(w.ID, TransactionCredit, decimal.NewFromInt(9999), "p1", "")
	require.NoError(t, err)

	txs, err := repo.GetTransactions(w.ID, 100, 0)
	require.NoError(t, err)

	expected := decimal.Zero
	for _, tx := range txs {
		if tx.Status != TransactionCompleted {
			continue
		}
		if tx.Type == TransactionCredit {
			expected = expected.Add(tx.Amount)
		} else {
			expected = expected.Sub(tx.Amount)
		}
	}

	w, err = repo.GetByUserID(userID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(expected), "balance %s != ledger sum %s", w.Balance, expected)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(950)))
}

func TestListStalePending(t *testing.T) {
	repo, db := setupRepositoryTest(t)
	userID := uuid.New()

	w, err := repo.GetOrCreate(userID)
	require.NoError(t, err)

	_, err = repo.RecordPending(w.ID, TransactionCredit, decimal.NewFromInt(100), "old-ref", "")
	require.NoError(t, err)
	_, err = repo.RecordPending(w.ID, TransactionCredit, decimal.NewFromInt(100), "new-ref", "")
	require.NoError(t, err)

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, db.Model(&Transaction{}).Where("reference = ?", "old-ref").UpdateColumn("created_at", old).Error)

	stale, err := repo.ListStalePending(time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old-ref", stale[0].Reference)
}
