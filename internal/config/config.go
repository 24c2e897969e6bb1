package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds server configuration values.
type Config struct {
	// Addr is the TCP listen address for the framed chat protocol.
	Addr string `mapstructure:"addr" yaml:"addr"`
	// HTTPAddr serves the admin API and the WebSocket transport; empty disables it.
	HTTPAddr string `mapstructure:"http_addr" yaml:"http_addr"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	// LogFile receives the server journal; empty disables the file sink.
	LogFile        string `mapstructure:"log_file" yaml:"log_file"`
	LogMaxSizeMB   int    `mapstructure:"log_max_size_mb" yaml:"log_max_size_mb"`
	LogMaxBackups  int    `mapstructure:"log_max_backups" yaml:"log_max_backups"`
	StorageDir     string `mapstructure:"storage_dir" yaml:"storage_dir"`
	DatabasePath   string `mapstructure:"database_path" yaml:"database_path"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
	OutboundQueue  int    `mapstructure:"outbound_queue" yaml:"outbound_queue"`
	MessagesPerMin int    `mapstructure:"messages_per_minute" yaml:"messages_per_minute"`

	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":18956",
		HTTPAddr:          ":8080",
		LogLevel:          "info",
		LogFormat:         "console",
		LogFile:           "server_logs.txt",
		LogMaxSizeMB:      10,
		LogMaxBackups:     3,
		StorageDir:        "uploads",
		DatabasePath:      "streamchat.db",
		MaxUploadBytes:    64 << 20,
		OutboundQueue:     64,
		MessagesPerMin:    120,
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.HTTPAddr != "" {
		c.HTTPAddr = other.HTTPAddr
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.LogFile != "" {
		c.LogFile = other.LogFile
	}
	if other.LogMaxSizeMB != 0 {
		c.LogMaxSizeMB = other.LogMaxSizeMB
	}
	if other.LogMaxBackups != 0 {
		c.LogMaxBackups = other.LogMaxBackups
	}
	if other.StorageDir != "" {
		c.StorageDir = other.StorageDir
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.MaxUploadBytes != 0 {
		c.MaxUploadBytes = other.MaxUploadBytes
	}
	if other.OutboundQueue != 0 {
		c.OutboundQueue = other.OutboundQueue
	}
	if other.MessagesPerMin != 0 {
		c.MessagesPerMin = other.MessagesPerMin
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
}

// Validate reports settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" && c.HTTPAddr == "" {
		errs = append(errs, errors.New("at least one of addr or http_addr must be set"))
	}
	if c.OutboundQueue < 0 {
		errs = append(errs, fmt.Errorf("outbound_queue must not be negative, got %d", c.OutboundQueue))
	}
	if c.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("max_upload_bytes must not be negative, got %d", c.MaxUploadBytes))
	}
	if c.MessagesPerMin < 0 {
		errs = append(errs, fmt.Errorf("messages_per_minute must not be negative, got %d", c.MessagesPerMin))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be positive"))
	}
	return errors.Join(errs...)
}
