package migrations

import (
	"gorm.io/gorm"
)

// Migration002AdminCredentials 管理员凭据表，供 sqlite 凭据存储使用
type Migration002AdminCredentials struct{}

func (m *Migration002AdminCredentials) Version() string {
	return "002_admin_credentials"
}

func (m *Migration002AdminCredentials) Description() string {
	return "Create admin_credentials table for the sqlite credential driver"
}

func (m *Migration002AdminCredentials) Up(db *gorm.DB) error {
	return db.Exec(`
		CREATE TABLE IF NOT EXISTS admin_credentials (
			id INTEGER PRIMARY KEY,
			document JSON NOT NULL,
			updated_at DATETIME
		)
	`).Error
}

func (m *Migration002AdminCredentials) Down(db *gorm.DB) error {
	return db.Exec(`DROP TABLE IF EXISTS admin_credentials`).Error
}
