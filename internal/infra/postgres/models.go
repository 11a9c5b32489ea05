package postgres

import (
	"time"
)

// LockModel is the GORM model for the locks table. A row is a lock record;
// it is live while expires_at is in the future according to the database
// clock.
type LockModel struct {
	LockKey    string    `gorm:"column:lock_key;type:varchar(512);primaryKey"`
	Holder     string    `gorm:"type:varchar(64);not null"`
	AcquiredAt time.Time `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// TableName returns the table name for LockModel.
func (LockModel) TableName() string {
	return "locks"
}
