package migrations

import (
	"gorm.io/gorm"
)

// Migration001Initial 初始迁移 - 创建认证记录与开放应用表
type Migration001Initial struct{}

func (m *Migration001Initial) Version() string {
	return "001_initial"
}

func (m *Migration001Initial) Description() string {
	return "Create auths and apps tables"
}

func (m *Migration001Initial) Up(db *gorm.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS auths (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type VARCHAR(64) NOT NULL,
			info JSON NOT NULL,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_auths_type ON auths(type)`,
		`CREATE TABLE IF NOT EXISTS apps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name VARCHAR(255) NOT NULL,
			scopes JSON NOT NULL DEFAULT '[]',
			command TEXT,
			schedule VARCHAR(255),
			client_id VARCHAR(32) NOT NULL,
			client_secret VARCHAR(64) NOT NULL,
			tokens JSON NOT NULL DEFAULT '[]',
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_apps_client_id ON apps(client_id)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func (m *Migration001Initial) Down(db *gorm.DB) error {
	if err := db.Exec(`DROP TABLE IF EXISTS apps`).Error; err != nil {
		return err
	}
	return db.Exec(`DROP TABLE IF EXISTS auths`).Error
}
