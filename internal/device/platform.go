package device

import (
	"log/slog"
	"os"
	"strings"
)

// IsWSL checks if the current environment is Windows Subsystem for Linux
func IsWSL() bool {
	return detectWSLFromData(readProcVersion(), os.Getenv("WSL_DISTRO_NAME"))
}

// detectWSLFromData checks for WSL indicators in the provided data (for testing)
func detectWSLFromData(procVersion, wslEnv string) bool {
	if wslEnv != "" {
		slog.Debug("WSL detected via environment variable", "distro", wslEnv)
		return true
	}

	procLower := strings.ToLower(procVersion)
	if strings.Contains(procLower, "microsoft") || strings.Contains(procLower, "wsl") {
		slog.Debug("WSL detected via /proc/version")
		return true
	}

	return false
}

// readProcVersion reads /proc/version file content
func readProcVersion() string {
	content, err := os.ReadFile("/proc/version")
	if err != nil {
		slog.Debug("failed to read /proc/version", "error", err)
		return ""
	}
	return string(content)
}

// DetectOptimalBackend returns the first backend auto mode will try
func DetectOptimalBackend() string {
	return hardwareBackendOrder(IsWSL())[0]
}

// hardwareBackendOrder lists hardware backends in preference order
func hardwareBackendOrder(isWSL bool) []string {
	if isWSL {
		// miniaudio crackles through the WSLg PulseAudio bridge
		return []string{"oto", "portaudio", "malgo"}
	}
	return []string{"malgo", "oto", "portaudio"}
}
