package config

import (
	"os"
	"regexp"
	"time"

	"github.com/amoylab/tokenbridge/pkg/helper"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	// TokenBridgeConfig is the root configuration of the token service
	TokenBridgeConfig struct {
		Port                   int            `yaml:"port"`
		URLNamespace           string         `yaml:"url_namespace"`
		ProprietaryBackendName string         `yaml:"proprietary_backend_name"`
		ActivateJWT            bool           `yaml:"activate_jwt"`
		Logger                 LoggerConfig   `yaml:"logger"`
		Database               DatabaseConfig `yaml:"database"`
		Storage                StorageConfig  `yaml:"storage"`
		OAuth2                 OAuth2Config   `yaml:"oauth2"`
		JWT                    JWTConfig      `yaml:"jwt"`
		Social                 SocialConfig   `yaml:"social"`
		Metrics                MetricsConfig  `yaml:"metrics"`
		Tracing                TracingConfig  `yaml:"tracing"`
		I18n                   I18nConfig     `yaml:"i18n"`
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`
		Color      bool   `yaml:"color"`
		Stacktrace bool   `yaml:"stacktrace"`
		TimeZone   string `yaml:"time_zone"`   // e.g. "UTC", default is local
		TimeFormat string `yaml:"time_format"` // default is "2006-01-02 15:04:05"
	}

	// StorageConfig selects the token store
	StorageConfig struct {
		Type  string      `yaml:"type"` // database, redis or memory
		Redis RedisConfig `yaml:"redis"`
	}

	RedisConfig struct {
		ClusterType string `yaml:"cluster_type"` // single, sentinel, cluster
		Addr        string `yaml:"addr"`         // comma or semicolon separated for cluster
		MasterName  string `yaml:"master_name"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		DB          int    `yaml:"db"`
		Prefix      string `yaml:"prefix"`
	}

	// OAuth2Config holds the token lifetimes and the refresh rotation policy
	OAuth2Config struct {
		AccessTokenExpireSeconds       int      `yaml:"access_token_expire_seconds"`
		RefreshTokenExpireSeconds      int      `yaml:"refresh_token_expire_seconds"`
		RotateRefreshToken             bool     `yaml:"rotate_refresh_token"`
		RefreshTokenReuseProtection    bool     `yaml:"refresh_token_reuse_protection"`
		RefreshTokenGracePeriodSeconds int      `yaml:"refresh_token_grace_period_seconds"`
		DefaultScopes                  []string `yaml:"default_scopes"`
		IncludeUser                    bool     `yaml:"include_user"`
		SerializeExchange              bool     `yaml:"serialize_exchange"`
	}

	JWTConfig struct {
		SecretKey string `yaml:"secret_key"`
	}

	// SocialConfig configures the identity provider backends
	SocialConfig struct {
		Timeout          time.Duration     `yaml:"timeout"`
		AssociateByEmail bool              `yaml:"associate_by_email"`
		Google           ProviderConfig    `yaml:"google"`
		GoogleIdentity   ProviderConfig    `yaml:"google_identity"`
		Facebook         ProviderConfig    `yaml:"facebook"`
		GitHub           ProviderConfig    `yaml:"github"`
		LinkedIn         ProviderConfig    `yaml:"linkedin"`
		OIDC             OIDCConfig        `yaml:"oidc"`
		Proprietary      ProprietaryConfig `yaml:"proprietary"`
	}

	ProviderConfig struct {
		Enabled  bool   `yaml:"enabled"`
		ClientID string `yaml:"client_id"` // expected audience, empty skips the check
	}

	OIDCConfig struct {
		Enabled  bool   `yaml:"enabled"`
		Name     string `yaml:"name"`
		Issuer   string `yaml:"issuer"`
		ClientID string `yaml:"client_id"`
	}

	ProprietaryConfig struct {
		Enabled bool `yaml:"enabled"`
	}

	MetricsConfig struct {
		Enabled   bool      `yaml:"enabled"`
		Path      string    `yaml:"path"`
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"`
	}

	// TracingConfig represents OpenTelemetry tracing configuration
	TracingConfig struct {
		Enabled     bool              `yaml:"enabled"`
		ServiceName string            `yaml:"service_name"`
		Endpoint    string            `yaml:"endpoint"`     // e.g. localhost:4317 or http://localhost:4318
		Protocol    string            `yaml:"protocol"`     // grpc or http
		Insecure    bool              `yaml:"insecure"`
		SamplerRate float64           `yaml:"sampler_rate"` // 0.0~1.0
		Environment string            `yaml:"environment"`
		Headers     map[string]string `yaml:"headers"`
	}

	I18nConfig struct {
		DefaultLang string `yaml:"default_lang"`
	}
)

type Type interface {
	TokenBridgeConfig
}

// Default returns a configuration populated with the built-in defaults
func Default() TokenBridgeConfig {
	return TokenBridgeConfig{
		Port:                   5235,
		URLNamespace:           "drf",
		ProprietaryBackendName: "Django",
		Database: DatabaseConfig{
			Type:   "sqlite",
			DBName: "./data/tokenbridge.db",
		},
		Storage: StorageConfig{
			Type: "database",
			Redis: RedisConfig{
				ClusterType: "single",
				Prefix:      "tokenbridge",
			},
		},
		OAuth2: OAuth2Config{
			AccessTokenExpireSeconds:    3600,
			RefreshTokenExpireSeconds:   1209600,
			RotateRefreshToken:          true,
			RefreshTokenReuseProtection: true,
			DefaultScopes:               []string{"read", "write"},
			IncludeUser:                 true,
		},
		Social: SocialConfig{
			Timeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Path:      "/metrics",
			Namespace: "tokenbridge",
		},
		Tracing: TracingConfig{
			ServiceName: "tokenbridge",
			SamplerRate: 1,
		},
		I18n: I18nConfig{
			DefaultLang: "en",
		},
	}
}

// LoadConfig loads configuration from a YAML file with environment variable support.
// Fields missing from the file keep their Default values.
func LoadConfig[T Type](filename string) (*T, string, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfgPath := helper.GetCfgPath(filename)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	data = resolveEnv(data)
	cfg := any(Default()).(T)
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, cfgPath, err
	}

	if tb, ok := any(&cfg).(*TokenBridgeConfig); ok {
		tb.normalize()
	}

	return &cfg, cfgPath, nil
}

// normalize restores defaults for values that were explicitly zeroed or are invalid
func (c *TokenBridgeConfig) normalize() {
	def := Default()
	if c.OAuth2.AccessTokenExpireSeconds <= 0 {
		c.OAuth2.AccessTokenExpireSeconds = def.OAuth2.AccessTokenExpireSeconds
	}
	if c.OAuth2.RefreshTokenExpireSeconds <= 0 {
		c.OAuth2.RefreshTokenExpireSeconds = def.OAuth2.RefreshTokenExpireSeconds
	}
	if c.OAuth2.RefreshTokenGracePeriodSeconds < 0 {
		c.OAuth2.RefreshTokenGracePeriodSeconds = 0
	}
	if len(c.OAuth2.DefaultScopes) == 0 {
		c.OAuth2.DefaultScopes = def.OAuth2.DefaultScopes
	}
	if c.URLNamespace == "" {
		c.URLNamespace = def.URLNamespace
	}
	if c.ProprietaryBackendName == "" {
		c.ProprietaryBackendName = def.ProprietaryBackendName
	}
	if c.Social.Timeout <= 0 {
		c.Social.Timeout = def.Social.Timeout
	}
}

// AccessTokenLifetime returns the access token lifetime as a duration
func (c *OAuth2Config) AccessTokenLifetime() time.Duration {
	return time.Duration(c.AccessTokenExpireSeconds) * time.Second
}

// RefreshTokenLifetime returns the refresh token lifetime as a duration
func (c *OAuth2Config) RefreshTokenLifetime() time.Duration {
	return time.Duration(c.RefreshTokenExpireSeconds) * time.Second
}

// GracePeriod returns the refresh token grace period as a duration
func (c *OAuth2Config) GracePeriod() time.Duration {
	return time.Duration(c.RefreshTokenGracePeriodSeconds) * time.Second
}

// resolveEnv replaces environment variable placeholders in YAML content
func resolveEnv(content []byte) []byte {
	regex := regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

	return regex.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := regex.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}
