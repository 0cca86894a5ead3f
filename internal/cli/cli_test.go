package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youpy/go-wav"
)

const testRate = 8000

// testEnv is a temporary directory holding a config that selects the
// headless backend and a private history database
type testEnv struct {
	dir        string
	configPath string
	dbPath     string
}

func newTestEnv(t *testing.T, tracking bool) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.json"),
		dbPath:     filepath.Join(dir, "history.db"),
	}
	cfg := fmt.Sprintf(`{
		"audio_backend": "headless",
		"sample_rate": %d,
		"channels": 1,
		"chunk_frames": 512,
		"log_level": "error",
		"tracking": {"enabled": %t, "database_path": %q}
	}`, testRate, tracking, env.dbPath)
	require.NoError(t, os.WriteFile(env.configPath, []byte(cfg), 0644))
	return env
}

// writeWAV writes a mono 16-bit WAV of frames frames and returns its path
func (e *testEnv) writeWAV(t *testing.T, name string, frames int) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, wavBytes(t, frames), 0644))
	return path
}

func wavBytes(t *testing.T, frames int) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := wav.NewWriter(&buf, uint32(frames), 1, testRate, 16)
	samples := make([]wav.Sample, frames)
	for i := range samples {
		samples[i].Values[0] = (i * 13) % 4000
	}
	require.NoError(t, w.WriteSamples(samples))
	return buf.Bytes()
}

type runResult struct {
	code   int
	stdout string
	stderr string
}

func (e *testEnv) run(t *testing.T, stdin []byte, args ...string) runResult {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"aural"}, args...)
	full = append(full, "--config", e.configPath)
	code := NewCLI().Run(full, bytes.NewReader(stdin), &stdout, &stderr)
	return runResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestVersion(t *testing.T) {
	var stdout bytes.Buffer
	code := NewCLI().Run([]string{"aural", "--version"}, nil, &stdout, &bytes.Buffer{})
	assert.Equal(t, 0, code)
	assert.Equal(t, "aural version "+Version+"\n", stdout.String())
}

func TestPlayRecordsHistory(t *testing.T) {
	env := newTestEnv(t, true)
	path := env.writeWAV(t, "tone.wav", 800)

	res := env.run(t, nil, "play", path)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Empty(t, res.stdout, "progress is only drawn on terminals")

	res = env.run(t, nil, "history", "--source", path)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "exhausted")
	assert.Contains(t, res.stdout, "play")
	assert.Contains(t, res.stdout, "music")
}

func TestPlayResolvesExtension(t *testing.T) {
	env := newTestEnv(t, false)
	env.writeWAV(t, "beep.wav", 200)

	res := env.run(t, nil, "play", filepath.Join(env.dir, "beep"))
	assert.Equal(t, 0, res.code, res.stderr)
}

func TestPlayFromStdin(t *testing.T) {
	env := newTestEnv(t, false)

	res := env.run(t, wavBytes(t, 200), "play", "-")
	assert.Equal(t, 0, res.code, res.stderr)
}

func TestPlayErrors(t *testing.T) {
	env := newTestEnv(t, false)
	garbage := filepath.Join(env.dir, "garbage.wav")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not audio"), 0644))

	testCases := []struct {
		name string
		args []string
		want string
	}{
		{"missing file", []string{"play", filepath.Join(env.dir, "nothing")}, "no file found"},
		{"undecodable", []string{"play", garbage}, "cannot play"},
		{"no argument", []string{"play"}, "accepts 1 arg"},
		{"bad volume", []string{"play", garbage, "--volume", "loud"}, "invalid volume"},
		{"bad backend", []string{"play", garbage, "--backend", "alsa"}, "invalid audio backend"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := env.run(t, nil, tc.args...)
			assert.Equal(t, 1, res.code)
			assert.Contains(t, res.stderr, tc.want)
		})
	}
}

func TestSoundInstancesShareOneDecode(t *testing.T) {
	env := newTestEnv(t, true)
	path := env.writeWAV(t, "click.wav", 400)

	res := env.run(t, nil, "sound", path, "--count", "3", "--interval", "5ms")
	require.Equal(t, 0, res.code, res.stderr)

	res = env.run(t, nil, "history", "--stats", "--json")
	require.Equal(t, 0, res.code, res.stderr)

	var stats []struct {
		Source string `json:"source"`
		Plays  int    `json:"plays"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &stats))
	require.Len(t, stats, 1)
	assert.Equal(t, path, stats[0].Source)
	assert.Equal(t, 3, stats[0].Plays)

	res = env.run(t, nil, "sound", path, "--count", "0")
	assert.Equal(t, 1, res.code)
}

func TestInfo(t *testing.T) {
	env := newTestEnv(t, false)
	path := env.writeWAV(t, "info.wav", 1600)

	res := env.run(t, nil, "info", path, "--json")
	require.Equal(t, 0, res.code, res.stderr)

	var info fileInfo
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &info))
	assert.Equal(t, "WAV", info.Format)
	assert.Equal(t, uint32(testRate), info.SampleRate)
	assert.Equal(t, uint32(1), info.Channels)
	assert.Equal(t, int64(1600), info.Frames)
	assert.InDelta(t, 0.2, info.Seconds, 1e-9)

	res = env.run(t, nil, "info", path)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Duration:    00:00")
}

func TestHistoryRequiresTracking(t *testing.T) {
	env := newTestEnv(t, false)
	res := env.run(t, nil, "history")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "tracking is disabled")
}

func TestHistoryEmpty(t *testing.T) {
	env := newTestEnv(t, true)
	res := env.run(t, nil, "history", "--since", "today")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "No playback events recorded.")
}

func TestFormatProgress(t *testing.T) {
	line := formatProgress("song.ogg", 30e9, 120e9, 60)
	assert.True(t, strings.HasPrefix(line, "song.ogg  00:30 / 02:00 ["), line)
	assert.LessOrEqual(t, len(line), 60)
	assert.Equal(t, strings.Count(line, "="), (60-len("00:30 / 02:00")-len("song.ogg")-6)/4)

	assert.Equal(t, "a  00:00 / 00:00", formatProgress("a", 0, 0, 10))
	assert.Equal(t, "1:01:01", formatClock(3661*1e9))
	assert.Equal(t, "00:00", formatClock(-5*1e9))
}

type fakeTerminal struct{ terminal bool }

func (f fakeTerminal) IsTerminal(int) bool { return f.terminal }

func TestIsInteractive(t *testing.T) {
	c := NewCLI()
	c.terminalDetector = fakeTerminal{terminal: true}

	assert.False(t, c.isInteractive(&bytes.Buffer{}), "buffers have no descriptor")
	assert.True(t, c.isInteractive(os.Stdout))

	c.terminalDetector = fakeTerminal{}
	assert.False(t, c.isInteractive(os.Stdout))
}
