package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr        string
	Port              string
	DatabaseURL       string
	JWTSecret         string
	JWTTTL            time.Duration
	SessionSecret     string
	GinMode           string
	LogLevel          string
	LogFormat         string
	GeoIPDBPath       string
	RedisURL          string
	StatsTimezone     string
	SuperRootEmail    string
	SuperRootPassword string
	ViewRateLimit     int
	ViewRateWindow    time.Duration
	TrustedProxies    []string
}

// Location 返回统计使用的参考时区，无法识别时回退到 UTC。
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.StatsTimezone)
	if err != nil || c.StatsTimezone == "" {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("database_url", "viewisland.db")
	v.SetDefault("jwt_secret", "viewisland-dev-secret")
	v.SetDefault("jwt_ttl", "24h")
	v.SetDefault("session_secret", "viewisland-dev-secret")
	v.SetDefault("gin_mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("stats_timezone", "UTC")
	v.SetDefault("view_rate_limit", 5)
	v.SetDefault("view_rate_window", "1m")
}

// LoadDotEnv 依次加载 .env.local 与 .env，已存在的环境变量不会被覆盖。
func LoadDotEnv() []string {
	var loaded []string
	for _, f := range []string{".env.local", ".env"} {
		if _, err := os.Stat(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	if len(loaded) > 0 {
		_ = godotenv.Load(loaded...)
	}
	return loaded
}

// Load 从环境变量（以及可选的 config.yaml）读取应用配置，并为缺失项提供默认值。
func Load() (AppConfig, error) {
	LoadDotEnv()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return AppConfig{}, fmt.Errorf("read config file: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (AppConfig, error) {
	get := func(key string) string {
		return strings.TrimSpace(v.GetString(key))
	}

	port := get("port")
	if port == "" {
		port = "8080"
	}
	listenAddr := get("listen_addr")
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	jwtTTL, err := time.ParseDuration(get("jwt_ttl"))
	if err != nil || jwtTTL <= 0 {
		return AppConfig{}, fmt.Errorf("invalid JWT_TTL %q", get("jwt_ttl"))
	}
	window, err := time.ParseDuration(get("view_rate_window"))
	if err != nil || window <= 0 {
		return AppConfig{}, fmt.Errorf("invalid VIEW_RATE_WINDOW %q", get("view_rate_window"))
	}
	limit := v.GetInt("view_rate_limit")
	if limit < 1 {
		return AppConfig{}, fmt.Errorf("invalid VIEW_RATE_LIMIT %d", limit)
	}

	cfg := AppConfig{
		ListenAddr:        listenAddr,
		Port:              port,
		DatabaseURL:       get("database_url"),
		JWTSecret:         get("jwt_secret"),
		JWTTTL:            jwtTTL,
		SessionSecret:     get("session_secret"),
		GinMode:           get("gin_mode"),
		LogLevel:          get("log_level"),
		LogFormat:         get("log_format"),
		GeoIPDBPath:       get("geoip_db_path"),
		RedisURL:          get("redis_url"),
		StatsTimezone:     get("stats_timezone"),
		SuperRootEmail:    get("super_root_email"),
		SuperRootPassword: get("super_root_password"),
		ViewRateLimit:     limit,
		ViewRateWindow:    window,
		TrustedProxies:    splitList(get("trusted_proxies")),
	}

	if _, err := time.LoadLocation(cfg.StatsTimezone); err != nil {
		return AppConfig{}, fmt.Errorf("invalid STATS_TIMEZONE %q: %w", cfg.StatsTimezone, err)
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
