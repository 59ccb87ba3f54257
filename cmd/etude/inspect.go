package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/etudekit/etude/internal/domain/score"
)

var inspectTempo float64

func init() {
	inspectCmd.Flags().Float64Var(&inspectTempo, "tempo", 0, "override tempo in BPM")
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <score.xml>",
	Short: "Print the beat sequence derived from a MusicXML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return inspect(args[0])
	},
}

func inspect(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open score: %w", err)
	}
	defer f.Close()

	parsed, err := score.Parse(f)
	if err != nil {
		return fmt.Errorf("parse score: %w", err)
	}

	builder := score.NewBuilder(score.WithTempoOverride(inspectTempo))
	beats := builder.BuildBeats(parsed)

	fmt.Printf("title:    %s\n", parsed.Title)
	fmt.Printf("measures: %d\n", len(parsed.Measures))
	fmt.Printf("beats:    %d\n\n", len(beats))
	fmt.Println("index  measure  beat  duration_ms  pitches")
	for _, b := range beats {
		pitches := "(rest)"
		if !b.IsRest() {
			parts := make([]string, len(b.ExpectedPitches))
			for i, p := range b.ExpectedPitches {
				parts[i] = fmt.Sprintf("%d", p)
			}
			pitches = strings.Join(parts, " ")
		}
		fmt.Printf("%5d  %7d  %4d  %11.1f  %s\n",
			b.Index, b.MeasureNumber, b.BeatInMeasure, b.DurationMs, pitches)
	}
	return nil
}
