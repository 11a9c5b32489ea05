package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// createLocksTable creates the locks table and its expiry index.
func createLocksTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "001_create_locks",
		Migrate: func(tx *gorm.DB) error {
			err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS locks (
					lock_key VARCHAR(512) PRIMARY KEY,
					holder VARCHAR(64) NOT NULL,
					acquired_at TIMESTAMPTZ NOT NULL DEFAULT now(),
					expires_at TIMESTAMPTZ NOT NULL
				);
			`).Error
			if err != nil {
				return err
			}

			// Sweeper scans by expiry
			return tx.Exec("CREATE INDEX IF NOT EXISTS idx_locks_expires_at ON locks(expires_at);").Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec("DROP TABLE IF EXISTS locks;").Error
		},
	}
}
