package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"
)

func init() {
	rootCmd.AddCommand(portsCmd)
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List available MIDI input ports",
	Run: func(cmd *cobra.Command, args []string) {
		ins := midi.GetInPorts()
		if len(ins) == 0 {
			fmt.Println("no MIDI input ports found")
			return
		}
		for _, in := range ins {
			fmt.Printf("%d: %s\n", in.Number(), in.String())
		}
	},
}
