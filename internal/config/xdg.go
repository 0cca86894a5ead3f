package config

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

const appDir = "aural"

// XDGDirs provides XDG Base Directory compliant paths
type XDGDirs struct{}

// NewXDGDirs creates a new XDG directory manager
func NewXDGDirs() *XDGDirs {
	return &XDGDirs{}
}

// GetSoundPaths returns the directories searched for named sounds: the user
// data dir first, then the system data dirs
func (x *XDGDirs) GetSoundPaths() []string {
	paths := []string{filepath.Join(xdg.DataHome, appDir, "sounds")}
	for _, dataDir := range xdg.DataDirs {
		paths = append(paths, filepath.Join(dataDir, appDir, "sounds"))
	}

	slog.Debug("generated sound paths",
		"total_paths", len(paths),
		"user_path", paths[0])
	return paths
}

// GetCachePath returns the cache directory path for a specific purpose
func (x *XDGDirs) GetCachePath(purpose string) string {
	return filepath.Join(xdg.CacheHome, appDir, purpose)
}

// GetDataPath returns the path of a file in the user data directory
func (x *XDGDirs) GetDataPath(filename string) string {
	return filepath.Join(xdg.DataHome, appDir, filename)
}

// GetConfigPaths returns prioritized paths where config files can be found:
// user config dir, then system config dirs
func (x *XDGDirs) GetConfigPaths(filename string) []string {
	paths := []string{filepath.Join(xdg.ConfigHome, appDir, filename)}
	for _, configDir := range xdg.ConfigDirs {
		paths = append(paths, filepath.Join(configDir, appDir, filename))
	}
	return paths
}

// SanitizePath cleans a relative sound name and rejects anything that could
// escape the directory it is joined to. It returns "" for rejected input.
func SanitizePath(path string) string {
	path = strings.ReplaceAll(path, "\x00", "")
	path = strings.ReplaceAll(path, "\n", "")
	path = strings.ReplaceAll(path, "\r", "")
	if path == "" {
		return ""
	}

	path = filepath.Clean(path)
	if filepath.IsAbs(path) || path == ".." || strings.HasPrefix(path, ".."+string(filepath.Separator)) {
		slog.Warn("rejecting potentially dangerous path", "path", path)
		return ""
	}
	return path
}
