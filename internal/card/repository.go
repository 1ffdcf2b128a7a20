package card

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	CreateCard(card *Card) error
	CreateWebsite(site *Website) error
	GetCard(id uuid.UUID) (*Card, error)
	GetWebsite(id uuid.UUID) (*Website, error)
	OwnsCard(cardID, userID uuid.UUID) (bool, error)
	OwnsWebsite(websiteID, userID uuid.UUID) (bool, error)
	LinkCardGiftBox(cardID, boxID uuid.UUID) error
	LinkWebsiteGiftBox(websiteID, boxID uuid.UUID) error
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

func (r *repository) CreateCard(card *Card) error {
	return r.db.Create(card).Error
}

func (r *repository) CreateWebsite(site *Website) error {
	return r.db.Create(site).Error
}

func (r *repository) GetCard(id uuid.UUID) (*Card, error) {
	var c Card
	if err := r.db.Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) GetWebsite(id uuid.UUID) (*Website, error) {
	var s Website
	if err := r.db.Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) OwnsCard(cardID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.Model(&Card{}).Where("id = ? AND owner_id = ?", cardID, userID).Count(&count).Error
	return count > 0, err
}

func (r *repository) OwnsWebsite(websiteID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.Model(&Website{}).Where("id = ? AND owner_id = ?", websiteID, userID).Count(&count).Error
	return count > 0, err
}

func (r *repository) LinkCardGiftBox(cardID, boxID uuid.UUID) error {
	res := r.db.Model(&Card{}).Where("id = ?", cardID).UpdateColumn("gift_box_id", boxID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("card not found")
	}
	return nil
}

func (r *repository) LinkWebsiteGiftBox(websiteID, boxID uuid.UUID) error {
	res := r.db.Model(&Website{}).Where("id = ?", websiteID).UpdateColumn("gift_box_id", boxID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("website not found")
	}
	return nil
}
