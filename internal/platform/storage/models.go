package storage

import (
	"time"

	"gorm.io/datatypes"
)

// Discriminants of rows in the auths table.
const (
	AuthTypeLoginLog           = "loginLog"
	AuthTypeNotification       = "notification"
	AuthTypeRemoveLogFrequency = "removeLogFrequency"
)

// AuthRecord 认证相关记录，按 type 区分登录日志与各类设置
type AuthRecord struct {
	ID        uint           `gorm:"primaryKey"`
	Type      string         `gorm:"type:varchar(64);index;not null"`
	Info      datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定表名
func (AuthRecord) TableName() string {
	return "auths"
}

// App 开放接口应用
type App struct {
	ID           uint           `gorm:"primaryKey"`
	Name         string         `gorm:"type:varchar(255);not null"`
	Scopes       datatypes.JSON `gorm:"not null"`
	Command      string         `gorm:"type:text"`
	Schedule     string         `gorm:"type:varchar(255)"`
	ClientID     string         `gorm:"column:client_id;type:varchar(32);uniqueIndex;not null"`
	ClientSecret string         `gorm:"column:client_secret;type:varchar(64);not null"`
	Tokens       datatypes.JSON `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName 指定表名
func (App) TableName() string {
	return "apps"
}

// AdminCredentialRow holds the admin credential document for the sqlite driver.
// The table only ever has the row with ID 1.
type AdminCredentialRow struct {
	ID        uint           `gorm:"primaryKey"`
	Document  datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName 指定表名
func (AdminCredentialRow) TableName() string {
	return "admin_credentials"
}
