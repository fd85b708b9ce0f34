package main

import (
	"github.com/spf13/cobra"

	"github.com/laurent-yin/otamatone-roll-sub000/internal/debug"
)

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:   "otaroll",
	Short: "Play, inspect and export music notation on a tempo-invariant timeline",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if debugFlag {
			return debug.Enable()
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		debug.Disable()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "write a diagnostic log to ~/.config/otaroll/debug.log")
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}
