package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"aural.click/internal/audio"
	"aural.click/internal/config"
	"aural.click/internal/device"
	"aural.click/internal/fs"
)

const Version = "0.4.0"

// CLI represents the command-line interface
type CLI struct {
	rootCmd          *cobra.Command
	configManager    *config.ConfigManager
	fsFactory        fs.Factory
	backendFactory   device.BackendFactory
	registry         *audio.DecoderRegistry
	terminalDetector TerminalDetector
}

// NewCLI creates a new CLI instance
func NewCLI() *CLI {
	rootCmd := &cobra.Command{
		Use:   "aural",
		Short: "Streaming audio player",
		Long: `aural plays audio files through a small streaming engine: long files are
decoded chunk by chunk into a ring of device buffers, short sounds are decoded
once and shared between every instance that plays them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				printVersion(cmd.OutOrStdout())
				return nil
			}
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("backend", "", "Audio backend (auto, malgo, oto, portaudio, headless)")
	rootCmd.PersistentFlags().String("volume", "", "Volume (0.0 to 1.0)")
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	rootCmd.AddCommand(newPlayCommand())
	rootCmd.AddCommand(newSoundCommand())
	rootCmd.AddCommand(newInfoCommand())
	rootCmd.AddCommand(newHistoryCommand())

	factory := fs.NewDefaultFactory()
	return &CLI{
		rootCmd:          rootCmd,
		fsFactory:        factory,
		configManager:    config.NewConfigManagerWithFilesystem(factory.Production()),
		backendFactory:   device.NewBackendFactory(),
		registry:         audio.NewDefaultRegistry(),
		terminalDetector: &DefaultTerminalDetector{},
	}
}

type cliKey struct{}

// contextWithCLI stores the CLI instance for command handlers
func contextWithCLI(ctx context.Context, cli *CLI) context.Context {
	return context.WithValue(ctx, cliKey{}, cli)
}

// cliFromContext extracts the CLI instance stored by Run
func cliFromContext(ctx context.Context) (*CLI, error) {
	if cli, ok := ctx.Value(cliKey{}).(*CLI); ok {
		return cli, nil
	}
	return nil, fmt.Errorf("CLI instance not found in context")
}

// Run executes the CLI with the given arguments and I/O streams and returns
// the process exit code
func (c *CLI) Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	// Version needs no config, audio device or database
	if len(args) > 1 && (args[1] == "--version" || args[1] == "-v") {
		printVersion(stdout)
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c.rootCmd.SetArgs(args[1:])
	c.rootCmd.SetIn(stdin)
	c.rootCmd.SetOut(stdout)
	c.rootCmd.SetErr(stderr)

	if err := c.rootCmd.ExecuteContext(contextWithCLI(ctx, c)); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		slog.Error("command failed", "error", err)
		return 1
	}
	return 0
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "aural version %s\n", Version)
}

// loadConfig loads configuration, applies environment and flag overrides,
// validates it and configures logging
func (c *CLI) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")

	cfg, err := c.configManager.Load(configFile, ".env")
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	if s, _ := cmd.Flags().GetString("log-level"); s != "" {
		cfg.LogLevel = s
	}
	if s, _ := cmd.Flags().GetString("backend"); s != "" {
		cfg.AudioBackend = s
	}
	if s, _ := cmd.Flags().GetString("volume"); s != "" {
		vol, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid volume value '%s': %w", s, err)
		}
		cfg.Volume = vol
	}

	if err := c.configManager.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogging(cfg, c.configManager, cmd.ErrOrStderr())
	return cfg, nil
}
