package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"aural.click/internal/playback"
)

const progressInterval = 100 * time.Millisecond

type playOptions struct {
	loop    bool
	pitch   float32
	seek    time.Duration
	buffers int
	chunk   int
}

func newPlayCommand() *cobra.Command {
	var opts playOptions

	playCmd := &cobra.Command{
		Use:   "play FILE",
		Short: "Stream an audio file",
		Long: `Stream an audio file from disk through the buffer ring.

FILE may omit its extension, in which case .wav, .mp3, .ogg, .flac, .aiff and
.aif are tried in that order. Names that are not found are also looked up in
the sounds directory under the XDG data directories. "-" reads the file from
standard input.

Examples:
  aural play song.ogg
  aural play intro --loop
  aural play song.mp3 --seek 1m30s --volume 0.5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd, args[0], opts)
		},
	}

	playCmd.Flags().BoolVar(&opts.loop, "loop", false, "Loop until interrupted")
	playCmd.Flags().Float32Var(&opts.pitch, "pitch", 1.0, "Playback rate multiplier")
	playCmd.Flags().DurationVar(&opts.seek, "seek", 0, "Start position")
	playCmd.Flags().IntVar(&opts.buffers, "buffers", 0, "Streaming buffer count (default from config)")
	playCmd.Flags().IntVar(&opts.chunk, "chunk", 0, "Frames per streaming buffer (default from config)")

	return playCmd
}

func runPlay(cmd *cobra.Command, arg string, opts playOptions) error {
	cli, err := cliFromContext(cmd.Context())
	if err != nil {
		return err
	}

	cfg, err := cli.loadConfig(cmd)
	if err != nil {
		return err
	}
	if opts.buffers > 0 {
		cfg.BufferCount = opts.buffers
	}
	if opts.chunk > 0 {
		cfg.ChunkFrames = opts.chunk
	}

	stdin, err := readStdinIfNeeded(cmd, arg)
	if err != nil {
		return err
	}
	src, err := cli.resolveSource(arg, stdin)
	if err != nil {
		return err
	}

	eng, err := cli.newEngine(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			slog.Error("error shutting down audio engine", "error", err)
		}
	}()

	music, err := playback.NewMusic(eng.ctx, src,
		playback.WithBufferCount(cfg.BufferCount),
		playback.WithChunkFrames(cfg.ChunkFrames),
		playback.WithLoop(opts.loop || cfg.Loop),
		playback.WithVolume(float32(cfg.Volume)),
		playback.WithPitch(opts.pitch),
	)
	if err != nil {
		return fmt.Errorf("cannot play %s: %w", src.Name(), err)
	}

	if opts.seek > 0 {
		if err := music.SeekTime(opts.seek); err != nil {
			return fmt.Errorf("cannot seek to %s: %w", opts.seek, err)
		}
	}
	if err := music.Play(); err != nil {
		return fmt.Errorf("cannot play %s: %w", src.Name(), err)
	}

	out := cmd.OutOrStdout()
	var progress func()
	if cli.isInteractive(out) {
		width := terminalWidth(out)
		progress = func() {
			pos, total := music.Position(), music.Duration()
			// Position keeps counting across loop passes
			if music.Looping() && total > 0 {
				pos %= total
			}
			fmt.Fprintf(out, "\r%s", formatProgress(music.Name(), pos, total, width))
		}
		defer fmt.Fprintln(out)
	}

	if err := waitForPlayers(cmd.Context(), progress, music); err != nil {
		return err
	}
	if music.State() == playback.Errored {
		return fmt.Errorf("playback of %s failed: %w", src.Name(), music.Err())
	}
	return nil
}

// waitForPlayers blocks until every player has finished or ctx is done.
// Interruption is a normal way to end playback, not an error.
func waitForPlayers(ctx context.Context, progress func(), players ...playback.Player) error {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		if progress != nil {
			progress()
		}
		if allFinished(players) {
			return nil
		}
		select {
		case <-ctx.Done():
			slog.Info("playback interrupted")
			return nil
		case <-ticker.C:
		}
	}
}

func allFinished(players []playback.Player) bool {
	for _, p := range players {
		switch p.State() {
		case playback.Playing, playback.Paused:
			return false
		}
	}
	return true
}

func readStdinIfNeeded(cmd *cobra.Command, arg string) ([]byte, error) {
	if arg != "-" {
		return nil, nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, fmt.Errorf("error reading from stdin: %w", err)
	}
	return data, nil
}

// formatProgress renders "name  01:02 / 03:04 [=====>    ]" fitted to width
func formatProgress(name string, pos, total time.Duration, width int) string {
	times := fmt.Sprintf("%s / %s", formatClock(pos), formatClock(total))
	barWidth := width - len(times) - len(name) - 6
	if barWidth < 10 {
		return fmt.Sprintf("%s  %s", name, times)
	}

	filled := 0
	if total > 0 {
		filled = int(int64(barWidth) * int64(pos) / int64(total))
	}
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled)
	return fmt.Sprintf("%s  %s [%s]", name, times, bar)
}

func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	if secs >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
