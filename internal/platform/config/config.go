package config

import (
	"time"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Web      WebConfig      `yaml:"web"`
	Auth     AuthConfig     `yaml:"auth"`
	Open     OpenConfig     `yaml:"open"`
	Database DatabaseConfig `yaml:"database"`
	Update   UpdateConfig   `yaml:"update"`
}

type ServerConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig 管理员认证配置
type AuthConfig struct {
	// Secret signs admin session tokens. Generated and persisted on first run when empty.
	Secret          string      `yaml:"secret"`
	SecretFile      string      `yaml:"secret_file"`
	TwoFactorIssuer string      `yaml:"two_factor_issuer"`
	Store           StoreConfig `yaml:"store"`
}

type StoreConfig struct {
	// Type selects the credential driver: file, memory, sqlite (alias database) or redis.
	Type  string         `yaml:"type"`
	File  AuthFileStore  `yaml:"file,omitempty"`
	Redis AuthRedisStore `yaml:"redis,omitempty"`
}

type AuthFileStore struct {
	Path string `yaml:"path"`
}

type AuthRedisStore struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Key      string `yaml:"key,omitempty"`
}

// OpenConfig 开放接口配置
type OpenConfig struct {
	// EnforceExpiry rejects open-client tokens past their expiration.
	EnforceExpiry bool `yaml:"enforce_expiry"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

type WebConfig struct {
	Enabled   bool     `yaml:"enabled"`
	StaticDir string   `yaml:"static_dir"`
	Origins   []string `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// UpdateConfig 版本检查与系统更新配置
type UpdateConfig struct {
	VersionFile    string        `yaml:"version_file"`
	LastVersionURL string        `yaml:"last_version_url"`
	MirrorPrefix   string        `yaml:"mirror_prefix"`
	PrimaryTimeout time.Duration `yaml:"primary_timeout"`
	MirrorTimeout  time.Duration `yaml:"mirror_timeout"`
	Command        []string      `yaml:"command"`
}
