package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                     = "HUDDLE"
	defaultHTTPAddress            = "0.0.0.0:8080"
	defaultDatabasePath           = "huddle.db"
	defaultLogLevel               = "info"
	defaultLogFormat              = "json"
	defaultCookieName             = "auth_session"
	defaultSessionIssuer          = "huddle-auth"
	defaultSessionTTLMinutes      = 60 * 24 * 30
	defaultUploadsDirectory       = "uploads"
	defaultOrphanMaxAgeMinutes    = 60 * 24
	defaultCleanupIntervalMinutes = 60
	defaultChatTokenTTLMinutes    = 60
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	DatabasePath   string
	LogLevel       string
	LogFormat      string
	AllowedOrigins []string

	SessionSigningSecret string
	SessionIssuer        string
	SessionCookieName    string
	SessionTTL           time.Duration

	UploadsDirectory       string
	UploadsPublicBaseURL   string
	UploadsOrphanMaxAge    time.Duration
	UploadsCleanupInterval time.Duration

	ChatBaseURL   string
	ChatAPIKey    string
	ChatAPISecret string
	ChatTokenTTL  time.Duration
}

// ChatEnabled reports whether hosted chat credentials are configured.
func (c AppConfig) ChatEnabled() bool {
	return c.ChatBaseURL != "" && c.ChatAPIKey != "" && c.ChatAPISecret != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("session.ttl_minutes", defaultSessionTTLMinutes)
	configViper.SetDefault("uploads.directory", defaultUploadsDirectory)
	configViper.SetDefault("uploads.public_base_url", "")
	configViper.SetDefault("uploads.orphan_max_age_minutes", defaultOrphanMaxAgeMinutes)
	configViper.SetDefault("uploads.cleanup_interval_minutes", defaultCleanupIntervalMinutes)
	configViper.SetDefault("chat.token_ttl_minutes", defaultChatTokenTTLMinutes)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:            configViper.GetString("http.address"),
		DatabasePath:           configViper.GetString("database.path"),
		LogLevel:               configViper.GetString("log.level"),
		LogFormat:              configViper.GetString("log.format"),
		AllowedOrigins:         splitOrigins(configViper.GetStringSlice("cors.allowed_origins")),
		SessionSigningSecret:   configViper.GetString("session.signing_secret"),
		SessionIssuer:          configViper.GetString("session.issuer"),
		SessionCookieName:      configViper.GetString("session.cookie_name"),
		SessionTTL:             minutes(configViper.GetInt("session.ttl_minutes")),
		UploadsDirectory:       configViper.GetString("uploads.directory"),
		UploadsPublicBaseURL:   strings.TrimRight(configViper.GetString("uploads.public_base_url"), "/"),
		UploadsOrphanMaxAge:    minutes(configViper.GetInt("uploads.orphan_max_age_minutes")),
		UploadsCleanupInterval: minutes(configViper.GetInt("uploads.cleanup_interval_minutes")),
		ChatBaseURL:            strings.TrimRight(configViper.GetString("chat.base_url"), "/"),
		ChatAPIKey:             configViper.GetString("chat.api_key"),
		ChatAPISecret:          configViper.GetString("chat.api_secret"),
		ChatTokenTTL:           minutes(configViper.GetInt("chat.token_ttl_minutes")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionIssuer) == "" {
		return fmt.Errorf("session.issuer is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.UploadsPublicBaseURL != "" && strings.TrimSpace(c.UploadsDirectory) == "" {
		return fmt.Errorf("uploads.directory is required when uploads.public_base_url is set")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session.ttl_minutes must be positive")
	}
	return nil
}

// viper returns comma separated env values as a single element.
func splitOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}

func minutes(value int) time.Duration {
	return time.Duration(value) * time.Minute
}
