package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "etude",
	Short: "Beat-synchronized piano practice service",
	Long: `etude loads MusicXML scores, derives a tempo-locked beat sequence,
and scores live MIDI or keyboard input against it. The serve command runs
the HTTP API; inspect prints the beat sequence of a score file.`,
}
