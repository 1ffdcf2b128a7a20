package card

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Card is a digital greeting card. Only the fields the settlement subsystem
// touches live here: ownership and the gift box back-reference.
type Card struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	OwnerID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_id"`
	Title     string     `json:"title"`
	GiftBoxID *uuid.UUID `gorm:"type:uuid" json:"gift_box_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (c *Card) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Website is a published mini-site. Same shape as Card for the purposes of
// gift box attachment.
type Website struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	OwnerID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_id"`
	Subdomain string     `gorm:"uniqueIndex" json:"subdomain"`
	GiftBoxID *uuid.UUID `gorm:"type:uuid" json:"gift_box_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (s *Website) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
