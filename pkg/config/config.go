// Package config provides configuration handling for the automation service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Storage configuration
	Storage StorageConfig `json:"storage"`

	// Engine configuration
	Engine EngineConfig `json:"engine"`

	// Email configuration
	Email EmailConfig `json:"email"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Host to bind to
	Host string `json:"host"`

	// Port to listen on
	Port int `json:"port"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	// Type of storage to use
	Type string `json:"type"` // "memory", "postgresql", "redis"

	// Postgres configuration
	Postgres PostgresConfig `json:"postgres"`

	// Redis configuration
	Redis RedisConfig `json:"redis"`
}

// PostgresConfig contains PostgreSQL settings
type PostgresConfig struct {
	// Host is the database host
	Host string `json:"host"`

	// Port is the database port
	Port int `json:"port"`

	// Database is the database name
	Database string `json:"database"`

	// User is the database user
	User string `json:"user"`

	// Password is the database password
	Password string `json:"password"`

	// SSLMode is the SSL mode
	SSLMode string `json:"ssl_mode"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	// Addr is the host:port of the Redis server
	Addr string `json:"addr"`

	// Password for the Redis server
	Password string `json:"password"`

	// DB is the Redis database number
	DB int `json:"db"`
}

// EngineConfig contains run execution settings
type EngineConfig struct {
	// StepTimeoutSeconds bounds each action step's execution
	StepTimeoutSeconds int `json:"step_timeout_seconds"`

	// ResumePollSeconds is how often due continuations are polled
	ResumePollSeconds int `json:"resume_poll_seconds"`
}

// EmailConfig contains SMTP and IMAP settings. SMTP backs the email
// messenger; IMAP backs the inbound message source. Both are optional.
type EmailConfig struct {
	// Enabled turns the email source and messenger on
	Enabled bool `json:"enabled"`

	// SMTPHost is the SMTP server host
	SMTPHost string `json:"smtp_host"`

	// SMTPPort is the SMTP server port
	SMTPPort int `json:"smtp_port"`

	// IMAPHost is the IMAP server host
	IMAPHost string `json:"imap_host"`

	// IMAPPort is the IMAP server port
	IMAPPort int `json:"imap_port"`

	// Username for both servers
	Username string `json:"username"`

	// Password for both servers
	Password string `json:"password"`

	// FromAddress is the sender address for outbound mail
	FromAddress string `json:"from_address"`

	// PollSeconds is how often the inbox is polled for new messages
	PollSeconds int `json:"poll_seconds"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	// Level is the logging level
	Level string `json:"level"` // "debug", "info", "warning", "error"

	// Output is the log output
	Output string `json:"output"` // "stdout", "file"

	// FilePath is the path to the log file
	FilePath string `json:"file_path"`
}

// LoadConfig loads the configuration from a file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Storage: StorageConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "automation",
				User:     "automation",
				SSLMode:  "disable",
			},
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Engine: EngineConfig{
			StepTimeoutSeconds: 30,
			ResumePollSeconds:  1,
		},
		Email: EmailConfig{
			SMTPPort:    587,
			IMAPPort:    993,
			PollSeconds: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
		},
	}
}

// SaveConfig saves the configuration to a file
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
