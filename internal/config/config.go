package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Services  ServicesConfig  `yaml:"services"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Client    ClientConfig    `yaml:"client"`
	Auth      AuthConfig      `yaml:"auth"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
	Export    ExportConfig    `yaml:"export"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// PublicURL is the externally visible base URL used for OAuth callbacks.
	PublicURL string `yaml:"public_url"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// ServicesConfig holds the base URL of every backend micro-service.
type ServicesConfig struct {
	Users     string `yaml:"users"`
	Contacts  string `yaml:"contacts"`
	Campaigns string `yaml:"campaigns"`
	Emails    string `yaml:"emails"`
	Templates string `yaml:"templates"`
	Gateway   string `yaml:"gateway"`
}

// GatewayConfig holds the backend gateway the BFF proxy forwards to.
type GatewayConfig struct {
	BackendURL     string `yaml:"backend_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c GatewayConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ClientConfig holds settings for the service API client.
type ClientConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// MaxRetries enables retries on transient failures. Zero disables them.
	MaxRetries    int    `yaml:"max_retries"`
	PageSize      int    `yaml:"page_size"`
	DefaultUserID string `yaml:"default_user_id"`
	// TokenURL is the endpoint that answers {"accessToken": "..."}.
	TokenURL string `yaml:"token_url"`
}

// Timeout returns the configured timeout as a duration
func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AuthConfig holds the OIDC identity provider configuration
type AuthConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Domain       string   `yaml:"domain"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Audience     string   `yaml:"audience"`
	Scopes       []string `yaml:"scopes"`
	CookieName   string   `yaml:"cookie_name"`
	CookieMaxAge int      `yaml:"cookie_max_age"`
	// SessionStore is "memory" or "redis".
	SessionStore string `yaml:"session_store"`
	// DevToken is forwarded as the bearer token when auth is disabled.
	DevToken string `yaml:"dev_token"`
}

// AuthURL returns the authorization endpoint of the identity provider.
func (c AuthConfig) AuthURL() string {
	return "https://" + c.Domain + "/authorize"
}

// TokenURL returns the token endpoint of the identity provider.
func (c AuthConfig) TokenURL() string {
	return "https://" + c.Domain + "/oauth/token"
}

// UserInfoURL returns the userinfo endpoint of the identity provider.
func (c AuthConfig) UserInfoURL() string {
	return "https://" + c.Domain + "/userinfo"
}

// SessionTTL returns the session lifetime.
func (c AuthConfig) SessionTTL() time.Duration {
	return time.Duration(c.CookieMaxAge) * time.Second
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	URL string `yaml:"url"`
}

// DatabaseConfig holds the PostgreSQL connection used by the bulk journal.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// ExportConfig holds list export settings
type ExportConfig struct {
	// Sink is "file" or "s3".
	Sink       string `yaml:"sink"`
	LocalPath  string `yaml:"local_path"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Prefix   string `yaml:"s3_prefix"`
	AWSRegion  string `yaml:"aws_region"`
	AWSProfile string `yaml:"aws_profile"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
}

// DashboardConfig holds dashboard aggregation settings
type DashboardConfig struct {
	UserID string `yaml:"user_id"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration with every default applied, for callers
// that run without a config file.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = "http://" + cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
	}

	if cfg.Services.Users == "" {
		cfg.Services.Users = "http://localhost:8081"
	}
	if cfg.Services.Contacts == "" {
		cfg.Services.Contacts = "http://localhost:8082"
	}
	if cfg.Services.Campaigns == "" {
		cfg.Services.Campaigns = "http://localhost:8083"
	}
	if cfg.Services.Emails == "" {
		cfg.Services.Emails = "http://localhost:8084"
	}
	if cfg.Services.Templates == "" {
		cfg.Services.Templates = "http://localhost:8085"
	}
	if cfg.Services.Gateway == "" {
		cfg.Services.Gateway = "http://localhost:8080"
	}

	if cfg.Gateway.BackendURL == "" {
		cfg.Gateway.BackendURL = "http://localhost:8080"
	}
	if cfg.Gateway.TimeoutSeconds == 0 {
		cfg.Gateway.TimeoutSeconds = 30
	}

	if cfg.Client.TimeoutSeconds == 0 {
		cfg.Client.TimeoutSeconds = 30
	}
	if cfg.Client.PageSize == 0 {
		cfg.Client.PageSize = 1000
	}
	if cfg.Client.DefaultUserID == "" {
		cfg.Client.DefaultUserID = "1"
	}

	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "masivos_session"
	}
	if cfg.Auth.CookieMaxAge == 0 {
		cfg.Auth.CookieMaxAge = 8 * 60 * 60
	}
	if len(cfg.Auth.Scopes) == 0 {
		cfg.Auth.Scopes = []string{"openid", "profile", "email", "offline_access"}
	}
	if cfg.Auth.SessionStore == "" {
		cfg.Auth.SessionStore = "memory"
	}
	if cfg.Auth.DevToken == "" {
		cfg.Auth.DevToken = "dev-token"
	}

	if cfg.Export.Sink == "" {
		cfg.Export.Sink = "file"
	}
	if cfg.Export.LocalPath == "" {
		cfg.Export.LocalPath = "./exports"
	}
	if cfg.Export.AWSRegion == "" {
		cfg.Export.AWSRegion = "us-east-1"
	}

	if cfg.Dashboard.UserID == "" {
		cfg.Dashboard.UserID = cfg.Client.DefaultUserID
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars. A missing
// config file is not an error: defaults plus environment are used.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if os.IsNotExist(err) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PUBLIC_URL"); v != "" {
		cfg.Server.PublicURL = v
	}

	if v := os.Getenv("BACKEND_URL"); v != "" {
		cfg.Gateway.BackendURL = v
	}
	if v := os.Getenv("USERS_SERVICE_URL"); v != "" {
		cfg.Services.Users = v
	}
	if v := os.Getenv("CONTACTS_SERVICE_URL"); v != "" {
		cfg.Services.Contacts = v
	}
	if v := os.Getenv("CAMPAIGNS_SERVICE_URL"); v != "" {
		cfg.Services.Campaigns = v
	}
	if v := os.Getenv("EMAILS_SERVICE_URL"); v != "" {
		cfg.Services.Emails = v
	}
	if v := os.Getenv("TEMPLATES_SERVICE_URL"); v != "" {
		cfg.Services.Templates = v
	}
	if v := os.Getenv("GATEWAY_URL"); v != "" {
		cfg.Services.Gateway = v
	}

	// Auth overrides
	if v := os.Getenv("AUTH0_DOMAIN"); v != "" {
		cfg.Auth.Domain = v
	}
	if v := os.Getenv("AUTH0_CLIENT_ID"); v != "" {
		cfg.Auth.ClientID = v
	}
	if v := os.Getenv("AUTH0_CLIENT_SECRET"); v != "" {
		cfg.Auth.ClientSecret = v
	}
	if v := os.Getenv("AUTH0_AUDIENCE"); v != "" {
		cfg.Auth.Audience = v
	}
	if v := os.Getenv("AUTH_ENABLED"); v != "" {
		cfg.Auth.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AUTH_DEV_TOKEN"); v != "" {
		cfg.Auth.DevToken = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		if cfg.Auth.SessionStore == "memory" {
			cfg.Auth.SessionStore = "redis"
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}

	if v := os.Getenv("EXPORT_S3_BUCKET"); v != "" {
		cfg.Export.S3Bucket = v
		cfg.Export.Sink = "s3"
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Export.AWSRegion = v
	}
}
