package history

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Record is one committed ledger event as stored in the SQL index.
type Record struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Fingerprint string    `gorm:"size:64;uniqueIndex"`
	Seq         uint64    `gorm:"index"`
	Height      uint64    `gorm:"index"`
	Type        string    `gorm:"size:64;index"`
	Pool        *uint64   `gorm:"index"`
	Account     string    `gorm:"size:96;index"`
	Attributes  string    `gorm:"type:text"`
	CreatedAt   time.Time
}

// TableName pins the table name independent of the struct name.
func (Record) TableName() string { return "stake_events" }

// BeforeCreate assigns a random identifier when none is set.
func (r *Record) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// AutoMigrate performs the schema migrations for the index.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}
