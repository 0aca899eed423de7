package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"panel-server-go/internal/platform/errors"
)

const DefaultPath = "config.yaml"

// Loader reads a YAML file over the defaults and applies PANEL_* environment overrides.
type Loader struct {
	useDotEnv bool
	path      string
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a loader reading config.yaml from the working directory.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		path:      DefaultPath,
		lookupEnv: os.LookupEnv,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithSource overrides the configuration file path (useful for tests).
func (l *Loader) WithSource(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// WithEnv overrides the environment lookup (useful for tests).
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookupEnv = lookup
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load returns defaults merged with the YAML file (if present) and environment overrides.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("未找到 .env 文件，使用系统环境变量")
		}
	}

	cfg := DefaultConfig()
	path := l.path

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.KindConfig, "config.load", "解析配置文件失败", err)
		}
	case os.IsNotExist(err):
		path = ""
	default:
		return nil, errors.Wrap(errors.KindConfig, "config.load", "读取配置文件失败", err)
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: path}, nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := l.lookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := l.lookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(errors.KindConfig, "config.env", fmt.Sprintf("%s 不是合法整数", key), err)
		}
		*dst = n
		return nil
	}
	flag := func(key string, dst *bool) error {
		v, ok := l.lookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(errors.KindConfig, "config.env", fmt.Sprintf("%s 不是合法布尔值", key), err)
		}
		*dst = b
		return nil
	}

	str("PANEL_SERVER_IP", &cfg.Server.IP)
	if err := num("PANEL_SERVER_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	str("PANEL_LOG_LEVEL", &cfg.Log.Level)
	str("PANEL_LOG_DIR", &cfg.Log.Dir)
	str("PANEL_AUTH_SECRET", &cfg.Auth.Secret)
	str("PANEL_AUTH_STORE", &cfg.Auth.Store.Type)
	str("PANEL_AUTH_FILE", &cfg.Auth.Store.File.Path)
	str("PANEL_REDIS_ADDR", &cfg.Auth.Store.Redis.Addr)
	str("PANEL_REDIS_PASSWORD", &cfg.Auth.Store.Redis.Password)
	if err := num("PANEL_REDIS_DB", &cfg.Auth.Store.Redis.DB); err != nil {
		return err
	}
	str("PANEL_DB_PATH", &cfg.Database.Path)
	if err := flag("PANEL_OPEN_ENFORCE_EXPIRY", &cfg.Open.EnforceExpiry); err != nil {
		return err
	}
	return nil
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("无效的服务端口: %d", cfg.Server.Port))
	}
	switch strings.ToLower(cfg.Auth.Store.Type) {
	case "", "file", "memory", "sqlite", "database", "redis":
	default:
		return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("不支持的认证存储类型: %s", cfg.Auth.Store.Type))
	}
	if strings.EqualFold(cfg.Auth.Store.Type, "redis") && cfg.Auth.Store.Redis.Addr == "" {
		return errors.New(errors.KindConfig, "config.validate", "redis 存储需要配置 addr")
	}
	return nil
}
