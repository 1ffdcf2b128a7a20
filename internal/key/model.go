package key

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type APIKey struct {
	ID          uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	UserID      uuid.UUID      `gorm:"type:uuid;not null" json:"user_id"`
	Key         string         `gorm:"uniqueIndex;not null" json:"key"`
	MaskedKey   string         `json:"masked_key"`
	Permissions pq.StringArray `gorm:"type:text[]" json:"permissions"`
	Name        string         `json:"name"`
	ExpiresAt   time.Time      `json:"expires_at"`
	IsRevoked   bool           `gorm:"default:false" json:"is_revoked"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (k *APIKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	return nil
}

type Permission string

const (
	PermissionRead     Permission = "READ"
	PermissionFund     Permission = "FUND"
	PermissionPurchase Permission = "PURCHASE"
	PermissionGifting  Permission = "GIFTING"
	PermissionRedeem   Permission = "REDEEM"
)

var AllowedPermissions = []Permission{
	PermissionRead,
	PermissionFund,
	PermissionPurchase,
	PermissionGifting,
	PermissionRedeem,
}
