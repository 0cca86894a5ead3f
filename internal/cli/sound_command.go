package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"aural.click/internal/playback"
)

func newSoundCommand() *cobra.Command {
	var count int
	var interval time.Duration

	soundCmd := &cobra.Command{
		Use:   "sound FILE",
		Short: "Play a short sound from memory",
		Long: `Decode a sound once and play it from a static buffer.

With --count, several overlapping instances are started --interval apart.
All of them share a single decoded copy of the sound.

Examples:
  aural sound click.wav
  aural sound ding --count 3 --interval 150ms`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSound(cmd, args[0], count, interval)
		},
	}

	soundCmd.Flags().IntVar(&count, "count", 1, "Number of overlapping instances")
	soundCmd.Flags().DurationVar(&interval, "interval", 100*time.Millisecond, "Delay between instances")

	return soundCmd
}

func runSound(cmd *cobra.Command, arg string, count int, interval time.Duration) error {
	if count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", count)
	}

	cli, err := cliFromContext(cmd.Context())
	if err != nil {
		return err
	}
	cfg, err := cli.loadConfig(cmd)
	if err != nil {
		return err
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

	ctx := cmd.Context()
	players := make([]playback.Player, 0, count)
	for i := 0; i < count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(interval):
			}
		}

		s, err := playback.NewSound(ctx, eng.ctx, src, playback.WithVolume(float32(cfg.Volume)))
		if err != nil {
			return fmt.Errorf("cannot load %s: %w", src.Name(), err)
		}
		if err := s.Play(); err != nil {
			return fmt.Errorf("cannot play %s: %w", src.Name(), err)
		}
		players = append(players, s)
	}

	slog.Debug("sound instances started",
		"source", src.Name(),
		"count", count,
		"decodes", eng.ctx.Cache().Decodes())

	return waitForPlayers(ctx, nil, players...)
}
