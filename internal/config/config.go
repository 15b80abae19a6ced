package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries all environment-driven settings. Values persisted through
// the admin settings endpoints (SMTP, branding, rate limits) take precedence
// at runtime; the fields here act as fallbacks.
type Config struct {
	Addr    string
	BaseURL string

	// Database. Driver is "pgx" (Postgres) or "sqlite".
	DBDriver string
	DBDSN    string

	AuthSecret  string
	AccessTTL   time.Duration
	AdminEmail  string
	FrontendURL string

	// SMTP fallback used until settings rows exist.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// OIDC single sign-on.
	OIDCClientID     string
	OIDCClientSecret string
	OIDCAuthURL      string
	OIDCTokenURL     string
	OIDCUserinfoURL  string
	OIDCRedirectURL  string

	// WebAuthn relying party.
	RPID     string
	RPOrigin string

	RateLimitPerSec int
	RateLimitBurst  int
}

const envPrefix = "KARS_"

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:             getenv("ADDR", ":8080"),
		BaseURL:          getenv("BASE_URL", "http://localhost:8080"),
		DBDriver:         getenv("DB_DRIVER", "sqlite"),
		DBDSN:            getenv("DB_DSN", "kars.db"),
		AuthSecret:       getenv("AUTH_SECRET", ""),
		AdminEmail:       getenv("ADMIN_EMAIL", ""),
		FrontendURL:      getenv("FRONTEND_URL", "http://localhost:5173"),
		SMTPHost:         getenv("SMTP_HOST", ""),
		SMTPUsername:     getenv("SMTP_USERNAME", ""),
		SMTPPassword:     getenv("SMTP_PASSWORD", ""),
		SMTPFrom:         getenv("SMTP_FROM", ""),
		OIDCClientID:     getenv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getenv("OIDC_CLIENT_SECRET", ""),
		OIDCAuthURL:      getenv("OIDC_AUTH_URL", ""),
		OIDCTokenURL:     getenv("OIDC_TOKEN_URL", ""),
		OIDCUserinfoURL:  getenv("OIDC_USERINFO_URL", ""),
		OIDCRedirectURL:  getenv("OIDC_REDIRECT_URL", ""),
		RPID:             getenv("RP_ID", "localhost"),
		RPOrigin:         getenv("RP_ORIGIN", "http://localhost:5173"),
	}

	var err error
	if cfg.SMTPPort, err = getint("SMTP_PORT", 587); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitPerSec, err = getint("RATE_LIMIT_PER_SEC", 20); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitBurst, err = getint("RATE_LIMIT_BURST", 40); err != nil {
		return Config{}, err
	}

	ttl, err := getint("ACCESS_TTL_MINUTES", 60)
	if err != nil {
		return Config{}, err
	}
	cfg.AccessTTL = time.Duration(ttl) * time.Minute

	switch cfg.DBDriver {
	case "pgx", "sqlite":
	default:
		return Config{}, fmt.Errorf("config: unsupported DB driver %q", cfg.DBDriver)
	}
	return cfg, nil
}

// OIDCEnabled reports whether the SSO flow is fully configured.
func (c Config) OIDCEnabled() bool {
	return c.OIDCClientID != "" && c.OIDCAuthURL != "" && c.OIDCTokenURL != "" && c.OIDCRedirectURL != ""
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(envPrefix + key)); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(envPrefix + key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s%s must be an integer", envPrefix, key)
	}
	return v, nil
}
