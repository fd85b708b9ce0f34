package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	otaroll "github.com/laurent-yin/otamatone-roll-sub000"
)

func init() {
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.abc>",
	Short: "Print the baseline timeline of a notation file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		inspect(string(data))
		return nil
	},
}

func inspect(notation string) {
	tl := otaroll.PreviewTimeline(notation)
	fmt.Printf("meter: %d subdivisions per measure (unit 1/%d, %d per beat)\n",
		tl.SubdivisionsPerMeasure, tl.SubdivisionUnit, tl.SubdivisionsPerBeat)
	fmt.Printf("tempo: %.4f s per subdivision, total %.2f subdivisions (%.2f s)\n",
		tl.SecondsPerSubdivision, tl.TotalSubdivisions, tl.DurationSeconds())
	fmt.Printf("notes: %d\n", len(tl.Notes))

	order := make([]int, len(tl.Notes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return tl.Notes[order[a]].StartSubdivision < tl.Notes[order[b]].StartSubdivision
	})
	for _, i := range order {
		n := tl.Notes[i]
		fmt.Printf("  %8.3f +%6.3f  pitch %6.2f  vel %3d  chars [%d,%d)\n",
			n.StartSubdivision, n.DurationSubdivisions, n.Pitch, n.Velocity,
			n.Source.StartChar, n.Source.EndChar)
	}
	if len(tl.MeasureBoundaries) > 0 {
		fmt.Printf("measures at: %v\n", tl.MeasureBoundaries)
	}
}
