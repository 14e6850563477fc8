package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/phishdefender/")
	v.AddConfigPath("$HOME/.phishdefender")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("PHISHDEFENDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// HTTP API defaults
	v.SetDefault("server.listen_address", "0.0.0.0:8080")

	// Store defaults
	v.SetDefault("store.type", "sqlite")
	v.SetDefault("store.sqlite_path", "/data/phishdefender.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/phishdefender?parseTime=true")

	// Mail source defaults
	v.SetDefault("source.type", "graph")
	v.SetDefault("graph.tenant_id", "")
	v.SetDefault("graph.client_id", "")
	v.SetDefault("graph.client_secret", "")
	v.SetDefault("graph.base_url", "https://graph.microsoft.com/v1.0")
	v.SetDefault("graph.page_size", 50)
	v.SetDefault("graph.timeout", "30s")

	// Ingestion defaults
	v.SetDefault("ingestion.mailboxes", []string{})
	v.SetDefault("ingestion.poll_interval", "60s")
	v.SetDefault("ingestion.cycle_timeout", "2m")

	// Scoring defaults
	v.SetDefault("scoring.known_domains", []string{})
	v.SetDefault("scoring.protected_brands", []string{
		"paypal.com", "amazon.com", "microsoft.com", "google.com", "apple.com",
	})

	// Classifier defaults (heuristic engine unless explicitly enabled)
	v.SetDefault("classifier.provider", "heuristic")
	v.SetDefault("classifier.openai.api_key", "")
	v.SetDefault("classifier.openai.model_name", "gpt-4o")
	v.SetDefault("classifier.openai.max_tokens", 512)
	v.SetDefault("classifier.openai.temperature", 0.0)
	v.SetDefault("classifier.openai.max_body_size", 2000)

	// SMTP gateway defaults
	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.listen_address", "0.0.0.0:10025")
	v.SetDefault("smtp.mailbox_address", "smtp-gateway")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
