package config

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

// fakeXDG places every directory under /xdg on an in-memory filesystem
type fakeXDG struct{}

func (fakeXDG) GetConfigPaths(filename string) []string {
	return []string{"/xdg/config/aural/" + filename, "/xdg/etc/aural/" + filename}
}
func (fakeXDG) GetSoundPaths() []string            { return []string{"/xdg/data/aural/sounds"} }
func (fakeXDG) GetCachePath(purpose string) string { return "/xdg/cache/aural/" + purpose }
func (fakeXDG) GetDataPath(filename string) string { return "/xdg/data/aural/" + filename }

func newTestManager(t *testing.T) (*ConfigManager, afero.Fs) {
	t.Helper()
	memFS := afero.NewMemMapFs()
	return NewConfigManagerWithXDG(memFS, fakeXDG{}), memFS
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	mgr, _ := newTestManager(t)
	config := mgr.GetDefaultConfig()

	if err := mgr.ValidateConfig(config); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if config.BufferCount != 3 || config.ChunkFrames != 4096 {
		t.Errorf("unexpected streaming defaults: buffers=%d chunk=%d", config.BufferCount, config.ChunkFrames)
	}
	if config.Tracking == nil || !config.Tracking.Enabled {
		t.Error("tracking should be enabled by default")
	}
}

func TestLoadFromFileKeepsDefaultsForMissingFields(t *testing.T) {
	mgr, memFS := newTestManager(t)
	writeFile(t, memFS, "/cfg.json", `{"volume": 0.25, "chunk_frames": 1024, "tracking": {"enabled": false}}`)

	config, err := mgr.LoadFromFile("/cfg.json")
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if config.Volume != 0.25 {
		t.Errorf("expected volume 0.25, got %f", config.Volume)
	}
	if config.ChunkFrames != 1024 {
		t.Errorf("expected chunk_frames 1024, got %d", config.ChunkFrames)
	}
	if config.SampleRate != 44100 {
		t.Errorf("expected default sample rate, got %d", config.SampleRate)
	}
	if config.Tracking.Enabled {
		t.Error("expected tracking disabled by file")
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	mgr, memFS := newTestManager(t)
	writeFile(t, memFS, "/bad.json", `{"volume": `)
	writeFile(t, memFS, "/invalid.json", `{"buffer_count": 1}`)

	testCases := []struct {
		path string
		want string
	}{
		{"/missing.json", "failed to read config file"},
		{"/bad.json", "failed to parse config JSON"},
		{"/invalid.json", "buffer_count must be between 2 and 8"},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			_, err := mgr.LoadFromFile(tc.path)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	mgr, _ := newTestManager(t)
	config := mgr.GetDefaultConfig()
	config.AudioBackend = "oto"
	config.Loop = true

	if err := mgr.SaveToFile(config, "/out/nested/config.json"); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}
	loaded, err := mgr.LoadFromFile("/out/nested/config.json")
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.AudioBackend != "oto" || !loaded.Loop {
		t.Errorf("round trip lost values: %+v", loaded)
	}

	config.Channels = 6
	if err := mgr.SaveToFile(config, "/out/bad.json"); err == nil {
		t.Error("expected invalid config to be rejected on save")
	}
}

func TestLoadConfigDiscovery(t *testing.T) {
	mgr, memFS := newTestManager(t)

	config, err := mgr.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig without files failed: %v", err)
	}
	if config.Volume != 1.0 {
		t.Errorf("expected defaults without files, got volume %f", config.Volume)
	}

	writeFile(t, memFS, "/xdg/etc/aural/config.json", `{"volume": 0.1}`)
	config, _ = mgr.LoadConfig()
	if config.Volume != 0.1 {
		t.Errorf("expected system config, got volume %f", config.Volume)
	}

	// The user file shadows the system one
	writeFile(t, memFS, "/xdg/config/aural/config.json", `{"volume": 0.9}`)
	config, _ = mgr.LoadConfig()
	if config.Volume != 0.9 {
		t.Errorf("expected user config, got volume %f", config.Volume)
	}
}

func TestValidateConfig(t *testing.T) {
	mgr, _ := newTestManager(t)

	testCases := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"volume", func(c *Config) { c.Volume = 1.5 }, "volume"},
		{"sample rate", func(c *Config) { c.SampleRate = 100 }, "sample_rate"},
		{"channels", func(c *Config) { c.Channels = 0 }, "channels"},
		{"buffers", func(c *Config) { c.BufferCount = 9 }, "buffer_count"},
		{"chunk", func(c *Config) { c.ChunkFrames = 16 }, "chunk_frames"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "invalid log level"},
		{"backend", func(c *Config) { c.AudioBackend = "alsa" }, "invalid audio backend"},
		{"log size", func(c *Config) { c.FileLogging.MaxSizeMB = -1 }, "max_size_mb"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := mgr.GetDefaultConfig()
			tc.modify(config)
			err := mgr.ValidateConfig(config)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestApplyEnvironmentOverrides(t *testing.T) {
	mgr, _ := newTestManager(t)
	t.Setenv("AURAL_VOLUME", "0.3")
	t.Setenv("AURAL_AUDIO_BACKEND", "headless")
	t.Setenv("AURAL_CHUNK_FRAMES", "2048")
	t.Setenv("AURAL_LOOP", "true")
	t.Setenv("AURAL_TRACKING", "false")
	t.Setenv("AURAL_TRACKING_DB", "/tmp/h.db")
	t.Setenv("AURAL_BUFFER_COUNT", "many")

	base := mgr.GetDefaultConfig()
	config := mgr.ApplyEnvironmentOverrides(base)

	if config.Volume != 0.3 || config.AudioBackend != "headless" || config.ChunkFrames != 2048 || !config.Loop {
		t.Errorf("overrides not applied: %+v", config)
	}
	if config.Tracking.Enabled || config.Tracking.DatabasePath != "/tmp/h.db" {
		t.Errorf("tracking overrides not applied: %+v", config.Tracking)
	}
	if config.BufferCount != 3 {
		t.Errorf("unparseable value should be ignored, got %d", config.BufferCount)
	}
	if !base.Tracking.Enabled {
		t.Error("overrides must not modify the input config")
	}
}

func TestLoadWithDotEnv(t *testing.T) {
	mgr, memFS := newTestManager(t)
	writeFile(t, memFS, "/xdg/config/aural/config.json", `{"sample_rate": 48000}`)
	writeFile(t, memFS, "/work/.env", "AURAL_CHANNELS=1\nAURAL_LOG_LEVEL=debug\n")
	t.Setenv("AURAL_LOG_LEVEL", "error")

	config, err := mgr.Load("", "/work/.env")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.SampleRate != 48000 {
		t.Errorf("expected sample rate from file, got %d", config.SampleRate)
	}
	if config.Channels != 1 {
		t.Errorf("expected channels from dotenv, got %d", config.Channels)
	}
	if config.LogLevel != "error" {
		t.Errorf("real environment should win over dotenv, got %s", config.LogLevel)
	}

	// A missing dotenv file is fine
	if _, err := mgr.Load("", "/nowhere/.env"); err != nil {
		t.Errorf("missing dotenv should not fail: %v", err)
	}
}

func TestLoadRejectsInvalidOverride(t *testing.T) {
	mgr, _ := newTestManager(t)
	t.Setenv("AURAL_CHANNELS", "3")

	if _, err := mgr.Load("", ""); err == nil {
		t.Error("expected validation error after override")
	}
}

func TestParseLogLevel(t *testing.T) {
	testCases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tc := range testCases {
		got, err := ParseLogLevel(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}
	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestResolvePaths(t *testing.T) {
	mgr, _ := newTestManager(t)

	if got := mgr.ResolveLogFilePath(""); got != "/xdg/cache/aural/logs/aural.log" {
		t.Errorf("unexpected log path %s", got)
	}
	if got := mgr.ResolveLogFilePath("/var/log/a.log"); got != "/var/log/a.log" {
		t.Errorf("explicit log path should win, got %s", got)
	}
	if got := mgr.ResolveDatabasePath(""); got != "/xdg/data/aural/history.db" {
		t.Errorf("unexpected database path %s", got)
	}
}
