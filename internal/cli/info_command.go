package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// fileInfo is what `aural info` reports about a source
type fileInfo struct {
	Name         string  `json:"name"`
	Format       string  `json:"format"`
	SampleRate   uint32  `json:"sample_rate"`
	Channels     uint32  `json:"channels"`
	SampleFormat string  `json:"sample_format"`
	Frames       int64   `json:"frames"`
	Seconds      float64 `json:"seconds"`
}

func newInfoCommand() *cobra.Command {
	var asJSON bool

	infoCmd := &cobra.Command{
		Use:   "info FILE",
		Short: "Show the decoded format of an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd, args[0], asJSON)
		},
	}
	infoCmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return infoCmd
}

func runInfo(cmd *cobra.Command, arg string, asJSON bool) error {
	cli, err := cliFromContext(cmd.Context())
	if err != nil {
		return err
	}
	if _, err := cli.loadConfig(cmd); err != nil {
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

	stream, err := cli.registry.Open(src)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", src.Name(), err)
	}
	defer stream.Close()

	format := stream.Format()
	info := fileInfo{
		Name:         src.Name(),
		SampleRate:   format.SampleRate,
		Channels:     format.Channels,
		SampleFormat: format.SampleFormat.String(),
		Frames:       stream.Len(),
	}
	if decoder := cli.registry.DetectFormat(src.Name()); decoder != nil {
		info.Format = decoder.FormatName()
	}
	if info.Frames >= 0 {
		info.Seconds = format.FramesToDuration(info.Frames).Seconds()
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Fprintf(out, "File:        %s\n", info.Name)
	if info.Format != "" {
		fmt.Fprintf(out, "Format:      %s\n", info.Format)
	}
	fmt.Fprintf(out, "Sample rate: %d Hz\n", info.SampleRate)
	fmt.Fprintf(out, "Channels:    %d\n", info.Channels)
	fmt.Fprintf(out, "Samples:     %s\n", info.SampleFormat)
	if info.Frames >= 0 {
		fmt.Fprintf(out, "Frames:      %d\n", info.Frames)
		fmt.Fprintf(out, "Duration:    %s\n", formatClock(format.FramesToDuration(info.Frames)))
	} else {
		fmt.Fprintf(out, "Frames:      unknown\n")
	}
	return nil
}
