package giftbox

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cardjoy/giftbox-service/pkg/apperrors"
)

// Target names the card or website a box is attached to. Exactly one of the
// two must be set.
type Target struct {
	CardID    *uuid.UUID
	WebsiteID *uuid.UUID
}

func (t Target) Valid() bool {
	return (t.CardID != nil) != (t.WebsiteID != nil)
}

type Repository interface {
	// FindOrCreateOpen returns the sender's open box for the target, creating
	// one with a fresh redemption code when none exists. The second return
	// value reports whether the box was created by this call.
	FindOrCreateOpen(senderID uuid.UUID, target Target, recipientEmail string) (*GiftBox, bool, error)
	// MergeItem adds quantity of a gift to the box, incrementing the existing
	// line item instead of duplicating it.
	MergeItem(boxID, giftID uuid.UUID, quantity int, unitValue decimal.Decimal) error
	// Redeem performs the OPEN -> REDEEMED transition. Exactly one concurrent
	// caller wins; the rest get ErrAlreadyRedeemed.
	Redeem(code string, redeemerID uuid.UUID, at time.Time) (*GiftBox, error)

	GetByID(id uuid.UUID) (*GiftBox, error)
	GetByCode(code string) (*GiftBox, error)
	ListBySender(senderID uuid.UUID) ([]GiftBox, error)
	HasBoxesReferencing(giftID uuid.UUID) (bool, error)
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

func (r *repository) findOpen(senderID uuid.UUID, target Target) (*GiftBox, error) {
	query := r.db.Preload("Items").Where("sender_id = ? AND is_redeemed = ?", senderID, false)
	if target.CardID != nil {
		query = query.Where("card_id = ?", *target.CardID)
	} else {
		query = query.Where("website_id = ?", *target.WebsiteID)
	}

	var box GiftBox
	if err := query.First(&box).Error; err != nil {
		return nil, err
	}
	return &box, nil
}

func (r *repository) FindOrCreateOpen(senderID uuid.UUID, target Target, recipientEmail string) (*GiftBox, bool, error) {
	if !target.Valid() {
		return nil, false, apperrors.ErrValidation
	}

	box, err := r.findOpen(senderID, target)
	if err == nil {
		return box, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	fresh := GiftBox{
		SenderID:       senderID,
		CardID:         target.CardID,
		WebsiteID:      target.WebsiteID,
		RecipientEmail: recipientEmail,
		Code:           generateCode(),
	}
	if err := r.db.Create(&fresh).Error; err != nil {
		// another request created the open box first; reuse it
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, ferr := r.findOpen(senderID, target)
			if ferr != nil {
				return nil, false, ferr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return &fresh, true, nil
}

func (r *repository) MergeItem(boxID, giftID uuid.UUID, quantity int, unitValue decimal.Decimal) error {
	if quantity < 1 {
		return apperrors.ErrValidation
	}

	res := r.db.Model(&GiftBoxItem{}).
		Where("gift_box_id = ? AND gift_id = ?", boxID, giftID).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	item := GiftBoxItem{
		GiftBoxID:   boxID,
		GiftID:      giftID,
		Quantity:    quantity,
		UnitValue:   unitValue,
		PurchasedAt: time.Now(),
	}
	if err := r.db.Create(&item).Error; err != nil {
		// a concurrent add created the line item; fold into it instead
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return r.db.Model(&GiftBoxItem{}).
				Where("gift_box_id = ? AND gift_id = ?", boxID, giftID).
				UpdateColumn("quantity", gorm.Expr("quantity + ?", quantity)).Error
		}
		return err
	}
	return nil
}

func (r *repository) Redeem(code string, redeemerID uuid.UUID, at time.Time) (*GiftBox, error) {
	res := r.db.Model(&GiftBox{}).
		Where("code = ? AND is_redeemed = ?", code, false).
		Updates(map[string]interface{}{
			"is_redeemed": true,
			"redeemed_at": at,
			"redeemed_by": redeemerID,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		box, err := r.GetByCode(code)
		if err != nil {
			return nil, err
		}
		if box.IsRedeemed {
			return nil, apperrors.ErrAlreadyRedeemed
		}
		return nil, apperrors.ErrConflict
	}

	return r.GetByCode(code)
}

func (r *repository) GetByID(id uuid.UUID) (*GiftBox, error) {
	var box GiftBox
	if err := r.db.Preload("Items.Gift").Where("id = ?", id).First(&box).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &box, nil
}

func (r *repository) GetByCode(code string) (*GiftBox, error) {
	var box GiftBox
	if err := r.db.Preload("Items.Gift").Where("code = ?", code).First(&box).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &box, nil
}

func (r *repository) ListBySender(senderID uuid.UUID) ([]GiftBox, error) {
	var boxes []GiftBox
	err := r.db.Preload("Items.Gift").
		Where("sender_id = ?", senderID).
		Order("created_at desc").
		Find(&boxes).Error
	return boxes, err
}

func (r *repository) HasBoxesReferencing(giftID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.Model(&GiftBoxItem{}).Where("gift_id = ?", giftID).Count(&count).Error
	return count > 0, err
}

func generateCode() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// rand.Read failing means the process is in no state to serve
		panic(err)
	}
	return "GBX-" + strings.ToUpper(hex.EncodeToString(bytes))
}
