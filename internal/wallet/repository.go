package wallet

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cardjoy/giftbox-service/pkg/apperrors"
)

type Repository interface {
	// GetOrCreate returns the user's wallet, creating a zero-balance one on
	// first access.
	GetOrCreate(userID uuid.UUID) (*Wallet, error)
	GetByUserID(userID uuid.UUID) (*Wallet, error)
	GetByID(walletID uuid.UUID) (*Wallet, error)
	SetPin(walletID uuid.UUID, pinHash string) error

	RecordPending(walletID uuid.UUID, txType TransactionType, amount decimal.Decimal, reference, description string) (*Transaction, error)
	Settle(reference string, outcome TransactionStatus) (*Transaction, error)
	DebitImmediate(userID uuid.UUID, amount decimal.Decimal, reference, description string) (*Wallet, error)
	CreditImmediate(userID uuid.UUID, amount decimal.Decimal, reference, description string) (*Wallet, error)

	GetTransactionByReference(reference string) (*Transaction, error)
	GetTransactions(walletID uuid.UUID, limit, offset int) ([]Transaction, error)
	CountTransactions(walletID uuid.UUID) (int64, error)
	ListStalePending(olderThan time.Time, limit int) ([]Transaction, error)

	WithTx(tx *gorm.DB) Repository
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetOrCreate(userID uuid.UUID) (*Wallet, error) {
	var wallet Wallet
	err := r.db.Where("user_id = ?", userID).First(&wallet).Error
	if err == nil {
		return &wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	wallet = Wallet{
		UserID:   userID,
		Balance:  decimal.Zero,
		Currency: "NGN",
	}
	if err := r.db.Create(&wallet).Error; err != nil {
		// lost the create race, the other caller's wallet wins
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			var existing Wallet
			if ferr := r.db.Where("user_id = ?", userID).First(&existing).Error; ferr != nil {
				return nil, ferr
			}
			return &existing, nil
		}
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) GetByUserID(userID uuid.UUID) (*Wallet, error) {
	var wallet Wallet
	if err := r.db.Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) GetByID(walletID uuid.UUID) (*Wallet, error) {
	var wallet Wallet
	if err := r.db.Where("id = ?", walletID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) SetPin(walletID uuid.UUID, pinHash string) error {
	return r.db.Model(&Wallet{}).Where("id = ?", walletID).Update("pin_hash", pinHash).Error
}

func (r *repository) RecordPending(walletID uuid.UUID, txType TransactionType, amount decimal.Decimal, reference, description string) (*Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperrors.ErrValidation
	}

	tx := Transaction{
		WalletID:    walletID,
		Reference:   reference,
		Type:        txType,
		Amount:      amount,
		Status:      TransactionPending,
		Description: description,
	}
	if err := r.db.Create(&tx).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

// Settle moves a pending transaction to a terminal status and, when completing,
// applies its balance effect. Already-settled references are a no-op, so the
// verify poll, the webhook and the reconciliation sweep can all race safely.
func (r *repository) Settle(reference string, outcome TransactionStatus) (*Transaction, error) {
	if outcome != TransactionCompleted && outcome != TransactionFailed {
		return nil, apperrors.ErrValidation
	}

	var settled Transaction
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var entry Transaction
		if err := tx.Where("reference = ?", reference).First(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return err
		}

		if entry.Status != TransactionPending {
			settled = entry
			return nil
		}

		// only one settle wins the PENDING -> terminal transition
		res := tx.Model(&Transaction{}).
			Where("reference = ? AND status = ?", reference, TransactionPending).
			Update("status", outcome)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return tx.Where("reference = ?", reference).First(&settled).Error
		}

		if outcome == TransactionCompleted {
			if err := applyBalanceDelta(tx, entry.WalletID, entry.Type, entry.Amount); err != nil {
				return err
			}
		}

		entry.Status = outcome
		settled = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &settled, nil
}

func applyBalanceDelta(tx *gorm.DB, walletID uuid.UUID, txType TransactionType, amount decimal.Decimal) error {
	if txType == TransactionCredit {
		return tx.Model(&Wallet{}).
			Where("id = ?", walletID).
			UpdateColumn("balance", gorm.Expr("balance + ?", amount)).Error
	}

	// debits are pre-authorized, so a failed guard here is an invariant breach
	res := tx.Model(&Wallet{}).
		Where("id = ? AND balance >= ?", walletID, amount).
		UpdateColumn("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrInsufficientFunds
	}
	return nil
}

func (r *repository) DebitImmediate(userID uuid.UUID, amount decimal.Decimal, reference, description string) (*Wallet, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperrors.ErrValidation
	}

	var wallet Wallet
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).First(&wallet).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return err
		}

		res := tx.Model(&Wallet{}).
			Where("id = ? AND balance >= ?", wallet.ID, amount).
			UpdateColumn("balance", gorm.Expr("balance - ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrInsufficientFunds
		}

		entry := Transaction{
			WalletID:    wallet.ID,
			Reference:   reference,
			Type:        TransactionDebit,
			Amount:      amount,
			Status:      TransactionCompleted,
			Description: description,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		return tx.Where("id = ?", wallet.ID).First(&wallet).Error
	})
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) CreditImmediate(userID uuid.UUID, amount decimal.Decimal, reference, description string) (*Wallet, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperrors.ErrValidation
	}

	var wallet Wallet
	err := r.db.Transaction(func(tx *gorm.DB) error {
		w, err := r.WithTx(tx).GetOrCreate(userID)
		if err != nil {
			return err
		}

		if err := tx.Model(&Wallet{}).
			Where("id = ?", w.ID).
			UpdateColumn("balance", gorm.Expr("balance + ?", amount)).Error; err != nil {
			return err
		}

		entry := Transaction{
			WalletID:    w.ID,
			Reference:   reference,
			Type:        TransactionCredit,
			Amount:      amount,
			Status:      TransactionCompleted,
			Description: description,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		return tx.Where("id = ?", w.ID).First(&wallet).Error
	})
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) GetTransactionByReference(reference string) (*Transaction, error) {
	var entry Transaction
	if err := r.db.Where("reference = ?", reference).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) GetTransactions(walletID uuid.UUID, limit, offset int) ([]Transaction, error) {
	var txs []Transaction
	err := r.db.Where("wallet_id = ?", walletID).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&txs).Error
	return txs, err
}

func (r *repository) CountTransactions(walletID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.Model(&Transaction{}).Where("wallet_id = ?", walletID).Count(&count).Error
	return count, err
}

func (r *repository) ListStalePending(olderThan time.Time, limit int) ([]Transaction, error) {
	var txs []Transaction
	err := r.db.Where("status = ? AND created_at < ?", TransactionPending, olderThan).
		Order("created_at asc").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}
