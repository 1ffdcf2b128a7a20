package gift

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Type string

const (
	TypeVoucher Type = "voucher"
	TypeItem    Type = "item"
)

// Gift is a catalog entry. Value is the amount credited on redemption, Price
// what the sender pays. A nil Stock means unlimited availability.
type Gift struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	Name        string          `gorm:"not null" json:"name"`
	Description string          `json:"description"`
	Type        Type            `gorm:"not null;default:voucher" json:"type"`
	Value       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"value"`
	Price       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"price"`
	Stock       *int            `json:"stock,omitempty"`
	Active      bool            `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (g *Gift) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}
