package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	otaroll "github.com/laurent-yin/otamatone-roll-sub000"
	"github.com/laurent-yin/otamatone-roll-sub000/internal/audio"
	"github.com/laurent-yin/otamatone-roll-sub000/internal/debug"
	"github.com/laurent-yin/otamatone-roll-sub000/internal/roll"
)

func init() {
	rootCmd.AddCommand(rollCmd)
}

var rollCmd = &cobra.Command{
	Use:   "roll <file.abc>",
	Short: "Play a notation file with a scrolling piano-roll window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		return runRoll(string(data), filepath.Base(args[0]))
	},
}

func runRoll(notation, title string) error {
	bank := audio.NewToneBank(playSampleRate)
	out, err := audio.NewPlayer(playSampleRate, bank)
	if err != nil {
		return err
	}
	defer out.Stop()

	c := otaroll.NewController(otaroll.WithDebugLog(func(msg string) {
		debug.Log("controller", "%s", msg)
	}))
	defer c.Stop()

	ch := c.Watch()
	go func() {
		for ev := range ch {
			for _, mp := range ev.MidiPitches {
				vol := mp.Volume
				if vol <= 0 {
					vol = 105
				}
				bank.NoteOn(mp.Pitch, vol, ev.DurationSeconds)
			}
		}
	}()

	out.Play()
	if err := c.Play(notation); err != nil {
		return err
	}

	tl := c.Timeline()
	g := roll.New(tl, c.Tempo(), c.PositionSubdivisions)
	g.SetWarp = c.SetWarp
	g.Done = func() bool {
		return c.PositionSubdivisions() > tl.TotalSubdivisions+4
	}

	return roll.Run(g, "otaroll - "+title)
}
