package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
)

// FileLoggingConfig represents file-based logging configuration
type FileLoggingConfig struct {
	Enabled    bool   `json:"enabled"`      // Whether file logging is enabled
	Filename   string `json:"filename"`     // Log file path (empty = XDG cache path)
	MaxSizeMB  int    `json:"max_size_mb"`  // Max file size in MB before rotation
	MaxBackups int    `json:"max_backups"`  // Max number of backup files to keep
	MaxAgeDays int    `json:"max_age_days"` // Max age in days before deletion
	Compress   bool   `json:"compress"`     // Whether to compress rotated files
}

// TrackingConfig controls the playback history database
type TrackingConfig struct {
	Enabled      bool   `json:"enabled"`
	DatabasePath string `json:"database_path"` // empty = XDG data path
}

// Config represents aural configuration
type Config struct {
	Volume       float64 `json:"volume"`        // Player volume (0.0 to 1.0)
	AudioBackend string  `json:"audio_backend"` // auto, malgo, oto, portaudio, headless
	SampleRate   int     `json:"sample_rate"`   // Output sample rate in Hz
	Channels     int     `json:"channels"`      // Output channels (1 or 2)
	BufferCount  int     `json:"buffer_count"`  // Streaming buffers per music player
	ChunkFrames  int     `json:"chunk_frames"`  // Frames decoded per streaming buffer
	Loop         bool    `json:"loop"`          // Loop music by default
	LogLevel     string  `json:"log_level"`     // debug, info, warn, error

	FileLogging *FileLoggingConfig `json:"file_logging,omitempty"`
	Tracking    *TrackingConfig    `json:"tracking,omitempty"`
}

// XDGInterface defines the interface for XDG directory operations
type XDGInterface interface {
	GetConfigPaths(filename string) []string
	GetSoundPaths() []string
	GetCachePath(purpose string) string
	GetDataPath(filename string) string
}

// ConfigManager handles loading, saving, and validating configuration
type ConfigManager struct {
	fs     afero.Fs
	xdg    XDGInterface
	dotenv map[string]string
}

// NewConfigManager creates a configuration manager on the OS filesystem
func NewConfigManager() *ConfigManager {
	return NewConfigManagerWithFilesystem(afero.NewOsFs())
}

// NewConfigManagerWithFilesystem creates a configuration manager that reads
// and writes through fs
func NewConfigManagerWithFilesystem(fs afero.Fs) *ConfigManager {
	slog.Debug("creating new config manager")
	return &ConfigManager{
		fs:  fs,
		xdg: NewXDGDirs(),
	}
}

// NewConfigManagerWithXDG is used by tests to redirect path discovery
func NewConfigManagerWithXDG(fs afero.Fs, xdg XDGInterface) *ConfigManager {
	return &ConfigManager{fs: fs, xdg: xdg}
}

// XDG exposes the directory layout used by this manager
func (cm *ConfigManager) XDG() XDGInterface {
	return cm.xdg
}

// GetDefaultConfig returns the default configuration
func (cm *ConfigManager) GetDefaultConfig() *Config {
	return &Config{
		Volume:       1.0,
		AudioBackend: "auto",
		SampleRate:   44100,
		Channels:     2,
		BufferCount:  3,
		ChunkFrames:  4096,
		Loop:         false,
		LogLevel:     "warn",
		FileLogging: &FileLoggingConfig{
			Enabled:    false,
			Filename:   "", // Empty = XDG cache path
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Tracking: &TrackingConfig{
			Enabled:      true,
			DatabasePath: "",
		},
	}
}

// LoadFromFile loads configuration from a specific file. Fields missing from
// the file keep their defaults.
func (cm *ConfigManager) LoadFromFile(filePath string) (*Config, error) {
	slog.Debug("loading config from file", "file_path", filePath)

	data, err := afero.ReadFile(cm.fs, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := cm.GetDefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cm.ValidateConfig(config); err != nil {
		return nil, err
	}

	slog.Debug("config loaded successfully",
		"file_path", filePath,
		"volume", config.Volume,
		"audio_backend", config.AudioBackend,
		"sample_rate", config.SampleRate)

	return config, nil
}

// SaveToFile saves configuration to a specific file
func (cm *ConfigManager) SaveToFile(config *Config, filePath string) error {
	if err := cm.ValidateConfig(config); err != nil {
		return fmt.Errorf("cannot save invalid config: %w", err)
	}

	dir := filepath.Dir(filePath)
	if err := cm.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := afero.WriteFile(cm.fs, filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	slog.Info("config saved successfully", "file_path", filePath)
	return nil
}

// LoadConfig loads configuration using XDG path discovery, falling back to
// defaults when no file exists
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	configPaths := cm.xdg.GetConfigPaths("config.json")
	slog.Debug("searching for config file", "paths", configPaths)

	for _, configPath := range configPaths {
		if _, err := cm.fs.Stat(configPath); err == nil {
			slog.Debug("found config file", "path", configPath)
			return cm.LoadFromFile(configPath)
		}
	}

	slog.Debug("no config file found, using defaults")
	return cm.GetDefaultConfig(), nil
}

// Load runs the whole pipeline: explicit file or XDG discovery, then the
// optional dotenv file, then environment overrides
func (cm *ConfigManager) Load(configPath, dotenvPath string) (*Config, error) {
	var (
		config *Config
		err    error
	)
	if configPath != "" {
		config, err = cm.LoadFromFile(configPath)
	} else {
		config, err = cm.LoadConfig()
	}
	if err != nil {
		return nil, err
	}

	if dotenvPath != "" {
		if err := cm.LoadDotEnv(dotenvPath); err != nil {
			return nil, err
		}
	}

	config = cm.ApplyEnvironmentOverrides(config)
	if err := cm.ValidateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadDotEnv reads KEY=VALUE pairs used as a fallback for unset environment
// variables. A missing file is not an error.
func (cm *ConfigManager) LoadDotEnv(path string) error {
	f, err := cm.fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("no dotenv file", "path", path)
			return nil
		}
		return fmt.Errorf("failed to open dotenv file: %w", err)
	}
	defer f.Close()

	values, err := godotenv.Parse(f)
	if err != nil {
		return fmt.Errorf("failed to parse dotenv file %s: %w", path, err)
	}
	cm.dotenv = values

	slog.Debug("dotenv file loaded", "path", path, "keys", len(values))
	return nil
}

func (cm *ConfigManager) getenv(key string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return cm.dotenv[key]
}

// ValidateConfig validates configuration values
func (cm *ConfigManager) ValidateConfig(config *Config) error {
	var errors []string

	if config.Volume < 0.0 || config.Volume > 1.0 {
		errors = append(errors, fmt.Sprintf("volume must be between 0.0 and 1.0, got %f", config.Volume))
	}

	if config.SampleRate < 8000 || config.SampleRate > 192000 {
		errors = append(errors, fmt.Sprintf("sample_rate must be between 8000 and 192000, got %d", config.SampleRate))
	}

	if config.Channels < 1 || config.Channels > 2 {
		errors = append(errors, fmt.Sprintf("channels must be 1 or 2, got %d", config.Channels))
	}

	if config.BufferCount < 2 || config.BufferCount > 8 {
		errors = append(errors, fmt.Sprintf("buffer_count must be between 2 and 8, got %d", config.BufferCount))
	}

	if config.ChunkFrames < 256 || config.ChunkFrames > 65536 {
		errors = append(errors, fmt.Sprintf("chunk_frames must be between 256 and 65536, got %d", config.ChunkFrames))
	}

	if config.LogLevel != "" {
		if _, err := ParseLogLevel(config.LogLevel); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if !cm.IsValidAudioBackend(config.AudioBackend) {
		errors = append(errors, fmt.Sprintf("invalid audio backend '%s', must be one of: %s",
			config.AudioBackend, strings.Join(cm.GetSupportedAudioBackends(), ", ")))
	}

	if fileLogging := config.FileLogging; fileLogging != nil {
		if fileLogging.MaxSizeMB < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_size_mb must be >= 0, got %d", fileLogging.MaxSizeMB))
		}
		if fileLogging.MaxBackups < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_backups must be >= 0, got %d", fileLogging.MaxBackups))
		}
		if fileLogging.MaxAgeDays < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_age_days must be >= 0, got %d", fileLogging.MaxAgeDays))
		}
	}

	if len(errors) > 0 {
		errMsg := strings.Join(errors, "; ")
		slog.Error("config validation failed", "errors", errMsg)
		return fmt.Errorf("config validation failed: %s", errMsg)
	}
	return nil
}

// ApplyEnvironmentOverrides applies AURAL_* variables, falling back to values
// from a loaded dotenv file. Unparseable values are logged and ignored.
func (cm *ConfigManager) ApplyEnvironmentOverrides(config *Config) *Config {
	result := *config
	if config.FileLogging != nil {
		fl := *config.FileLogging
		result.FileLogging = &fl
	}
	if config.Tracking != nil {
		tr := *config.Tracking
		result.Tracking = &tr
	} else {
		result.Tracking = &TrackingConfig{}
	}

	if s := cm.getenv("AURAL_VOLUME"); s != "" {
		if vol, err := strconv.ParseFloat(s, 64); err == nil {
			result.Volume = vol
		} else {
			slog.Warn("invalid AURAL_VOLUME environment variable", "value", s, "error", err)
		}
	}

	if s := cm.getenv("AURAL_AUDIO_BACKEND"); s != "" {
		if cm.IsValidAudioBackend(s) {
			result.AudioBackend = s
		} else {
			slog.Warn("invalid AURAL_AUDIO_BACKEND environment variable", "value", s)
		}
	}

	cm.intOverride("AURAL_SAMPLE_RATE", &result.SampleRate)
	cm.intOverride("AURAL_CHANNELS", &result.Channels)
	cm.intOverride("AURAL_BUFFER_COUNT", &result.BufferCount)
	cm.intOverride("AURAL_CHUNK_FRAMES", &result.ChunkFrames)
	cm.boolOverride("AURAL_LOOP", &result.Loop)
	cm.boolOverride("AURAL_TRACKING", &result.Tracking.Enabled)

	if s := cm.getenv("AURAL_TRACKING_DB"); s != "" {
		result.Tracking.DatabasePath = s
	}

	if s := cm.getenv("AURAL_LOG_LEVEL"); s != "" {
		result.LogLevel = s
	}

	if result.FileLogging != nil {
		cm.boolOverride("AURAL_FILE_LOGGING", &result.FileLogging.Enabled)
	}

	slog.Debug("environment overrides applied")
	return &result
}

func (cm *ConfigManager) intOverride(key string, dst *int) {
	s := cm.getenv(key)
	if s == "" {
		return
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		slog.Warn("invalid integer environment variable", "key", key, "value", s, "error", err)
		return
	}
	*dst = v
	slog.Debug("applied environment override", "key", key, "value", v)
}

func (cm *ConfigManager) boolOverride(key string, dst *bool) {
	s := cm.getenv(key)
	if s == "" {
		return
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		slog.Warn("invalid boolean environment variable", "key", key, "value", s, "error", err)
		return
	}
	*dst = v
	slog.Debug("applied environment override", "key", key, "value", v)
}

// ParseLogLevel maps a configuration log level to a slog level
func ParseLogLevel(logLevel string) (slog.Level, error) {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", logLevel)
	}
}

// ResolveLogFilePath uses the XDG cache directory when filename is empty
func (cm *ConfigManager) ResolveLogFilePath(filename string) string {
	if filename != "" {
		return filename
	}
	return filepath.Join(cm.xdg.GetCachePath("logs"), "aural.log")
}

// ResolveDatabasePath uses the XDG data directory when path is empty
func (cm *ConfigManager) ResolveDatabasePath(path string) string {
	if path != "" {
		return path
	}
	return cm.xdg.GetDataPath("history.db")
}

// GetSupportedAudioBackends returns a list of all supported audio backend types
func (cm *ConfigManager) GetSupportedAudioBackends() []string {
	return []string{"auto", "malgo", "oto", "portaudio", "headless"}
}

// IsValidAudioBackend checks if an audio backend type is supported.
// Empty means auto.
func (cm *ConfigManager) IsValidAudioBackend(backend string) bool {
	if backend == "" {
		return true
	}
	for _, supported := range cm.GetSupportedAudioBackends() {
		if backend == supported {
			return true
		}
	}
	return false
}
