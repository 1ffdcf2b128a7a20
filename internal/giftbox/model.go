package giftbox

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cardjoy/giftbox-service/internal/gift"
)

// GiftBox binds purchased gifts to exactly one card or website. It is
// redeemable once, via its code, and the redeemed flag never reverts.
type GiftBox struct {
	ID             uuid.UUID     `gorm:"type:uuid;primary_key" json:"id"`
	SenderID       uuid.UUID     `gorm:"type:uuid;not null;index" json:"sender_id"`
	CardID         *uuid.UUID    `gorm:"type:uuid;index" json:"card_id,omitempty"`
	WebsiteID      *uuid.UUID    `gorm:"type:uuid;index" json:"website_id,omitempty"`
	RecipientEmail string        `json:"recipient_email,omitempty"`
	Code           string        `gorm:"uniqueIndex;not null" json:"code"`
	IsRedeemed     bool          `gorm:"not null;default:false" json:"is_redeemed"`
	RedeemedAt     *time.Time    `json:"redeemed_at,omitempty"`
	RedeemedBy     *uuid.UUID    `gorm:"type:uuid" json:"redeemed_by,omitempty"`
	Items          []GiftBoxItem `gorm:"foreignKey:GiftBoxID" json:"items"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (b *GiftBox) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// TotalValue is the payout a redeemer receives, from the unit values captured
// when each item was added.
func (b *GiftBox) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, item := range b.Items {
		total = total.Add(item.UnitValue.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// GiftBoxItem is one gift line in a box. UnitValue snapshots the gift's value
// at add time so later catalog repricing cannot change a payout.
type GiftBoxItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	GiftBoxID   uuid.UUID       `gorm:"type:uuid;not null;index:idx_box_gift,unique" json:"gift_box_id"`
	GiftID      uuid.UUID       `gorm:"type:uuid;not null;index:idx_box_gift,unique" json:"gift_id"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	UnitValue   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"unit_value"`
	PurchasedAt time.Time       `json:"purchased_at"`
	Gift        *gift.Gift      `gorm:"foreignKey:GiftID" json:"gift,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (i *GiftBoxItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
