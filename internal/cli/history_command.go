package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"aural.click/internal/tracking"
)

type historyOptions struct {
	limit   int
	since   string
	source  string
	kind    string
	session string
	stats   bool
	asJSON  bool
}

func newHistoryCommand() *cobra.Command {
	var opts historyOptions

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded playback events",
		Long: `Show playback events recorded in the history database.

--since accepts a preset (today, yesterday, week, last-week, month,
last-month, all), an RFC 3339 timestamp or a phrase such as "3 days ago".

Examples:
  aural history
  aural history --since yesterday --kind error
  aural history --stats --limit 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts)
		},
	}

	historyCmd.Flags().IntVar(&opts.limit, "limit", 20, "Maximum number of rows")
	historyCmd.Flags().StringVar(&opts.since, "since", "", "Only events after this time")
	historyCmd.Flags().StringVar(&opts.source, "source", "", "Filter by source name")
	historyCmd.Flags().StringVar(&opts.kind, "kind", "", "Filter by event kind (play, pause, stop, seek, exhausted, error, destroy)")
	historyCmd.Flags().StringVar(&opts.session, "session", "", "Filter by session id")
	historyCmd.Flags().BoolVar(&opts.stats, "stats", false, "Show per-source totals instead of events")
	historyCmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print as JSON")

	return historyCmd
}

func runHistory(cmd *cobra.Command, opts historyOptions) error {
	cli, err := cliFromContext(cmd.Context())
	if err != nil {
		return err
	}
	cfg, err := cli.loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Tracking == nil || !cfg.Tracking.Enabled {
		return fmt.Errorf("playback tracking is disabled in the configuration")
	}

	filter, err := tracking.ParseSince(opts.since, time.Now())
	if err != nil {
		return err
	}
	filter.Limit = opts.limit
	filter.Source = opts.source
	filter.Kind = opts.kind
	filter.SessionID = opts.session

	dbPath := cli.configManager.ResolveDatabasePath(cfg.Tracking.DatabasePath)
	db, err := tracking.NewDatabase(dbPath)
	if err != nil {
		return fmt.Errorf("cannot open history database: %w", err)
	}
	defer db.Close()

	slog.Debug("querying playback history", "path", dbPath, "stats", opts.stats)

	out := cmd.OutOrStdout()
	if opts.stats {
		stats, err := tracking.SourceStats(db, filter)
		if err != nil {
			return err
		}
		if opts.asJSON {
			return writeJSON(out, stats)
		}
		printStats(out, stats)
		return nil
	}

	events, err := tracking.RecentEvents(db, filter)
	if err != nil {
		return err
	}
	if opts.asJSON {
		return writeJSON(out, events)
	}
	printEvents(out, events)
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printEvents(w io.Writer, events []tracking.EventRecord) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No playback events recorded.")
		return
	}
	fmt.Fprintf(w, "%-19s  %-5s  %-9s  %-9s  %8s  %s\n", "TIME", "TYPE", "EVENT", "STATE", "POSITION", "SOURCE")
	for _, ev := range events {
		fmt.Fprintf(w, "%-19s  %-5s  %-9s  %-9s  %8s  %s\n",
			ev.Timestamp.Local().Format("2006-01-02 15:04:05"),
			ev.Player,
			ev.Kind,
			ev.To,
			formatClock(ev.Position),
			ev.Source)
		if ev.Error != "" {
			fmt.Fprintf(w, "%21s%s\n", "", ev.Error)
		}
	}
}

func printStats(w io.Writer, stats []tracking.SourceStat) {
	if len(stats) == 0 {
		fmt.Fprintln(w, "No playback events recorded.")
		return
	}
	fmt.Fprintf(w, "%6s  %9s  %6s  %-19s  %s\n", "PLAYS", "COMPLETED", "ERRORS", "LAST SEEN", "SOURCE")
	for _, s := range stats {
		fmt.Fprintf(w, "%6d  %9d  %6d  %-19s  %s\n",
			s.Plays,
			s.Completions,
			s.Errors,
			s.LastSeen.Local().Format("2006-01-02 15:04:05"),
			s.Source)
	}
}
