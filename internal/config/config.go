package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultJWTSecret = "change-me-in-production"

type Config struct {
	Environment    string
	Port           string
	MongoURI       string
	MongoDatabase  string
	RedisURI       string // empty disables Redis-backed features
	JWTSecret      string
	JWTExpiresIn   time.Duration
	FrontendURL    string
	AllowedOrigins []string
	TrustProxy     bool

	CloudinaryName      string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	Mail   MailConfig
	Google GoogleConfig

	LogLevel string
	LogFile  string
}

type MailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// Enabled reports whether Google sign-in is configured.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != "" && g.CallbackURL != ""
}

// Enabled reports whether an SMTP relay is configured.
func (m MailConfig) Enabled() bool {
	return m.Host != ""
}

// Load reads configuration from the environment and an optional config.yaml in
// the working directory. Environment variables take precedence over the file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("ENV", "development")
	v.SetDefault("PORT", "5000")
	v.SetDefault("MONGODB_URI", "mongodb://localhost:27017/babynest")
	v.SetDefault("MONGODB_DATABASE", "babynest")
	v.SetDefault("REDIS_URI", "")
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_EXPIRES_IN", "24h")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("MAIL_PORT", 587)
	v.SetDefault("LOG_LEVEL", "info")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	expiresIn, err := time.ParseDuration(v.GetString("JWT_EXPIRES_IN"))
	if err != nil || expiresIn <= 0 {
		return nil, fmt.Errorf("invalid JWT_EXPIRES_IN %q", v.GetString("JWT_EXPIRES_IN"))
	}

	cfg := &Config{
		Environment:         strings.ToLower(strings.TrimSpace(v.GetString("ENV"))),
		Port:                v.GetString("PORT"),
		MongoURI:            v.GetString("MONGODB_URI"),
		MongoDatabase:       v.GetString("MONGODB_DATABASE"),
		RedisURI:            strings.TrimSpace(v.GetString("REDIS_URI")),
		JWTSecret:           v.GetString("JWT_SECRET"),
		JWTExpiresIn:        expiresIn,
		FrontendURL:         strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
		TrustProxy:          v.GetBool("TRUST_PROXY"),
		CloudinaryName:      v.GetString("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:    v.GetString("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret: v.GetString("CLOUDINARY_API_SECRET"),
		Mail: MailConfig{
			Host:     v.GetString("MAIL_HOST"),
			Port:     v.GetInt("MAIL_PORT"),
			User:     v.GetString("MAIL_USER"),
			Password: v.GetString("MAIL_PASS"),
			From:     v.GetString("MAIL_FROM"),
		},
		Google: GoogleConfig{
			ClientID:     v.GetString("GOOGLE_CLIENT_ID"),
			ClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
			CallbackURL:  v.GetString("GOOGLE_CALLBACK_URL"),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
		LogFile:  v.GetString("LOG_FILE"),
	}

	cfg.AllowedOrigins = parseOrigins(v.GetString("ALLOWED_ORIGINS"))
	if len(cfg.AllowedOrigins) == 0 && cfg.FrontendURL != "" {
		cfg.AllowedOrigins = []string{cfg.FrontendURL}
	}

	if cfg.IsProduction() && cfg.JWTSecret == defaultJWTSecret {
		return nil, errors.New("JWT_SECRET must be set in production")
	}
	return cfg, nil
}

// CloudinaryEnabled reports whether all Cloudinary credentials are present.
func (c *Config) CloudinaryEnabled() bool {
	return c.CloudinaryName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func parseOrigins(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimRight(strings.TrimSpace(part), "/")
		if part != "" && !containsOrigin(out, part) {
			out = append(out, part)
		}
	}
	return out
}

func containsOrigin(list []string, o string) bool {
	for _, v := range list {
		if strings.EqualFold(v, o) {
			return true
		}
	}
	return false
}
