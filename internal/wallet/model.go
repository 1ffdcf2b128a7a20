package wallet

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Wallet holds one user's balance in major currency units. It is created
// lazily on first access, never up front.
type Wallet struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	UserID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance"`
	Currency  string          `gorm:"not null;default:NGN" json:"currency"`
	PinHash   string          `json:"-"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

type TransactionType string

const (
	TransactionCredit TransactionType = "CREDIT"
	TransactionDebit  TransactionType = "DEBIT"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionFailed    TransactionStatus = "FAILED"
)

// Transaction is an append-only ledger entry. Only PENDING entries may change
// status, and only once; the balance reflects COMPLETED entries exclusively.
type Transaction struct {
	ID          uuid.UUID         `gorm:"type:uuid;primary_key" json:"id"`
	WalletID    uuid.UUID         `gorm:"type:uuid;not null;index" json:"wallet_id"`
	Reference   string            `gorm:"uniqueIndex;not null" json:"reference"`
	Type        TransactionType   `gorm:"not null" json:"type"`
	Amount      decimal.Decimal   `gorm:"type:decimal(20,2);not null" json:"amount"`
	Status      TransactionStatus `gorm:"not null;index" json:"status"`
	Description string            `json:"description"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
