package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	otaroll "github.com/laurent-yin/otamatone-roll-sub000"
	"github.com/laurent-yin/otamatone-roll-sub000/internal/export"
)

var exportOut string

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "out.mid", "output MIDI file path")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export <file.abc>",
	Short: "Export a notation file as a Standard MIDI File",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		if _, err := otaroll.Compile(string(data)); err != nil {
			return fmt.Errorf("notation: %w", err)
		}
		tl := otaroll.PreviewTimeline(string(data))

		f, err := os.Create(exportOut)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := export.Write(tl, f); err != nil {
			return err
		}
		fmt.Printf("wrote %d notes to %s\n", len(tl.Notes), exportOut)
		return nil
	},
}
