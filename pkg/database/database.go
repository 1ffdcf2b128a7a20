package database

import (
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Connect(dbUrl string) {
	var err error
	DB, err = gorm.Open(postgres.Open(dbUrl), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Connected to database")
}

// Migrate runs auto-migration for the given models plus the raw indexes
// gorm tags cannot express.
func Migrate(models ...interface{}) {
	if err := DB.AutoMigrate(models...); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// one open box per (sender, card) / (sender, website) pair
	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_open_box_per_card ON gift_boxes (sender_id, card_id) WHERE is_redeemed = false AND card_id IS NOT NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_open_box_per_website ON gift_boxes (sender_id, website_id) WHERE is_redeemed = false AND website_id IS NOT NULL`,
	}
	for _, stmt := range stmts {
		if err := DB.Exec(stmt).Error; err != nil {
			log.Fatalf("Failed to create index: %v", err)
		}
	}
}
