package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"aural.click/internal/audio"
	"aural.click/internal/config"
	"aural.click/internal/device"
	"aural.click/internal/playback"
	"aural.click/internal/tracking"
)

// engine bundles everything a playback command needs and tears it down in
// the right order
type engine struct {
	mixer    *device.Mixer
	output   device.Output
	ctx      *playback.Context
	db       *sql.DB
	recorder *tracking.Recorder
}

func (c *CLI) newEngine(cfg *config.Config) (*engine, error) {
	mixer := device.NewMixer(cfg.SampleRate, cfg.Channels)
	output, err := c.backendFactory.CreateOutput(cfg.AudioBackend, mixer, device.OutputConfig{
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create audio backend '%s': %w", cfg.AudioBackend, err)
	}

	pctx, err := playback.NewContext(mixer, output, c.registry)
	if err != nil {
		output.Close()
		return nil, err
	}
	if err := pctx.Init(); err != nil {
		output.Close()
		return nil, fmt.Errorf("failed to start audio output: %w", err)
	}
	pctx.AddHook(tracking.NewSlogHook(slog.Default()).Hook())

	e := &engine{mixer: mixer, output: output, ctx: pctx}
	c.openTracking(e, cfg)

	slog.Info("audio engine started",
		"backend", output.Name(),
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels)
	return e, nil
}

// openTracking attaches the history recorder. Tracking problems never stop
// playback.
func (c *CLI) openTracking(e *engine, cfg *config.Config) {
	if cfg.Tracking == nil || !cfg.Tracking.Enabled {
		return
	}
	dbPath := c.configManager.ResolveDatabasePath(cfg.Tracking.DatabasePath)
	db, err := tracking.NewDatabase(dbPath)
	if err != nil {
		slog.Warn("tracking database unavailable, continuing without history",
			"path", dbPath,
			"error", err)
		return
	}
	e.db = db
	e.recorder = tracking.NewRecorder(db, "")
	e.ctx.AddHook(e.recorder.Hook())
}

func (e *engine) Close() error {
	var errs []error
	if err := e.ctx.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if e.recorder != nil {
		errs = append(errs, e.recorder.Close())
	}
	if e.db != nil {
		errs = append(errs, e.db.Close())
	}
	return errors.Join(errs...)
}

// resolveSource maps a command argument to a source: "-" reads stdin, other
// arguments are file paths, tried with each supported extension and then
// looked up in the XDG sound directories
func (c *CLI) resolveSource(arg string, stdin []byte) (audio.Source, error) {
	if arg == "-" {
		return audio.NewMemorySource("stdin", stdin), nil
	}

	resolver := audio.NewFileResolver(c.fsFactory.ReadOnly(c.fsFactory.Production()), audio.DefaultExtensions)
	src, err := resolver.Resolve(arg)
	if err == nil {
		return src, nil
	}

	if rel := config.SanitizePath(arg); rel != "" {
		for _, dir := range c.configManager.XDG().GetSoundPaths() {
			if found, ferr := resolver.Resolve(filepath.Join(dir, rel)); ferr == nil {
				slog.Debug("sound found in data directory", "name", arg, "path", found.Name())
				return found, nil
			}
		}
	}
	return nil, err
}
