package main

import (
	"fmt"
	"time"

	"github.com/yzhelezko/confedit/internal/privexec"
	"github.com/yzhelezko/confedit/internal/remote"
)

const (
	DefaultWindowWidth  = 1024
	DefaultWindowHeight = 768
	DefaultLogLevel     = "info"

	MinWindowWidth  = 800
	MinWindowHeight = 600
	MaxWindowWidth  = 10000 // Arbitrary large value for upper bound
	MaxWindowHeight = 10000 // Arbitrary large value for upper bound

	MaxSSHTimeoutSeconds = 600
	MaxSFTPPacketSize    = 1024 * 1024
	MaxReadChunkSize     = 4 * 1024 * 1024
)

// AllowedLogLevels lists the valid log level names.
var AllowedLogLevels = []string{"debug", "info", "warn", "error"}

// SSHConfig holds transport settings
type SSHConfig struct {
	TimeoutSeconds        int    `yaml:"timeout_seconds"`
	KnownHostsPath        string `yaml:"known_hosts_path,omitempty"` // Empty means ~/.ssh/known_hosts
	StrictHostKeyChecking bool   `yaml:"strict_host_key_checking"`
}

// SFTPConfig holds file-transfer tuning
type SFTPConfig struct {
	MaxPacketSize      int  `yaml:"max_packet_size"`
	ConcurrentRequests int  `yaml:"concurrent_requests"`
	UseConcurrentIO    bool `yaml:"use_concurrent_io"`
	ReadChunkSize      int  `yaml:"read_chunk_size"`
}

// PrivilegeConfig holds the escalation wrapper
type PrivilegeConfig struct {
	Program string `yaml:"program"`
}

// AppConfig holds the application configuration
type AppConfig struct {
	WindowWidth     int  `yaml:"window_width"`
	WindowHeight    int  `yaml:"window_height"`
	WindowMaximized bool `yaml:"window_maximized"`

	DataDir  string `yaml:"data_dir,omitempty"` // Empty means the config directory
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file,omitempty"` // Empty means stderr

	SSH       SSHConfig       `yaml:"ssh"`
	SFTP      SFTPConfig      `yaml:"sftp"`
	Privilege PrivilegeConfig `yaml:"privilege"`

	// Notify the editor when an open local file changes on disk
	WatchLocalFiles bool `yaml:"watch_local_files"`
}

// DefaultConfig returns a new AppConfig with default values
func DefaultConfig() *AppConfig {
	return &AppConfig{
		WindowWidth:     DefaultWindowWidth,
		WindowHeight:    DefaultWindowHeight,
		WindowMaximized: false,
		LogLevel:        DefaultLogLevel,
		SSH: SSHConfig{
			TimeoutSeconds:        int(remote.DefaultSSHTimeout / time.Second),
			StrictHostKeyChecking: false,
		},
		SFTP: SFTPConfig{
			MaxPacketSize:      remote.DefaultSFTPMaxPacketSize,
			ConcurrentRequests: remote.DefaultSFTPConcurrentRequests,
			UseConcurrentIO:    true,
			ReadChunkSize:      32 * 1024,
		},
		Privilege: PrivilegeConfig{
			Program: privexec.DefaultProgram,
		},
		WatchLocalFiles: true,
	}
}

// Validate checks the configuration for basic validity.
func (c *AppConfig) Validate() error {
	if c.WindowWidth < MinWindowWidth || c.WindowWidth > MaxWindowWidth {
		return fmt.Errorf("window width %d is out of range (%d-%d)", c.WindowWidth, MinWindowWidth, MaxWindowWidth)
	}
	if c.WindowHeight < MinWindowHeight || c.WindowHeight > MaxWindowHeight {
		return fmt.Errorf("window height %d is out of range (%d-%d)", c.WindowHeight, MinWindowHeight, MaxWindowHeight)
	}

	validLevel := false
	for _, l := range AllowedLogLevels {
		if c.LogLevel == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log level: '%s'. Allowed levels are: %v", c.LogLevel, AllowedLogLevels)
	}

	if c.SSH.TimeoutSeconds < 1 || c.SSH.TimeoutSeconds > MaxSSHTimeoutSeconds {
		return fmt.Errorf("ssh timeout %ds is out of range (1-%d)", c.SSH.TimeoutSeconds, MaxSSHTimeoutSeconds)
	}
	if c.SFTP.MaxPacketSize < 1024 || c.SFTP.MaxPacketSize > MaxSFTPPacketSize {
		return fmt.Errorf("sftp max packet size %d is out of range (1024-%d)", c.SFTP.MaxPacketSize, MaxSFTPPacketSize)
	}
	if c.SFTP.ConcurrentRequests < 1 {
		return fmt.Errorf("sftp concurrent requests must be positive, got %d", c.SFTP.ConcurrentRequests)
	}
	if c.SFTP.ReadChunkSize < 1024 || c.SFTP.ReadChunkSize > MaxReadChunkSize {
		return fmt.Errorf("read chunk size %d is out of range (1024-%d)", c.SFTP.ReadChunkSize, MaxReadChunkSize)
	}

	if len(c.DataDir) > 1024 || len(c.LogFile) > 1024 { // Arbitrary length limit for sanity
		return fmt.Errorf("path is too long (max 1024 characters)")
	}
	return nil
}

// sshConfig converts the YAML sections into transport settings.
func (c *AppConfig) sshConfig() remote.SSHConfig {
	return remote.SSHConfig{
		Timeout:               time.Duration(c.SSH.TimeoutSeconds) * time.Second,
		KnownHostsPath:        c.SSH.KnownHostsPath,
		StrictHostKeyChecking: c.SSH.StrictHostKeyChecking,
		MaxPacketSize:         c.SFTP.MaxPacketSize,
		ConcurrentRequests:    c.SFTP.ConcurrentRequests,
		UseConcurrentIO:       c.SFTP.UseConcurrentIO,
	}
}
