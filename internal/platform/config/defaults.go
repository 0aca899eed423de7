package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:              "0.0.0.0",
			Port:            5700,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Web: WebConfig{
			Enabled:   true,
			StaticDir: "web",
			Origins:   []string{"*"},
		},
		Auth: AuthConfig{
			SecretFile:      "data/config/secret.key",
			TwoFactorIssuer: "panel",
			Store: StoreConfig{
				Type: "file",
				File: AuthFileStore{Path: "data/config/auth.json"},
				Redis: AuthRedisStore{
					Addr: "127.0.0.1:6379",
					Key:  "panel:auth",
				},
			},
		},
		Open: OpenConfig{
			EnforceExpiry: false,
		},
		Database: DatabaseConfig{
			Path: "data/db/database.sqlite",
		},
		Update: UpdateConfig{
			VersionFile:    "version.ts",
			LastVersionURL: "https://raw.githubusercontent.com/whyour/qinglong/master/version.ts",
			MirrorPrefix:   "https://ghproxy.com/",
			PrimaryTimeout: time.Second,
			MirrorTimeout:  5 * time.Second,
			Command:        []string{"/bin/bash", "-c", "ql -l update"},
		},
	}
}
