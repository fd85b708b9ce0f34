package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	otaroll "github.com/laurent-yin/otamatone-roll-sub000"
	"github.com/laurent-yin/otamatone-roll-sub000/internal/audio"
	"github.com/laurent-yin/otamatone-roll-sub000/internal/debug"
)

const playSampleRate = 48000

var playWarp int

func init() {
	playCmd.Flags().IntVar(&playWarp, "warp", 100, "playback speed in percent of the notated tempo")
	rootCmd.AddCommand(playCmd)
}

var playCmd = &cobra.Command{
	Use:   "play <file.abc>",
	Short: "Play a notation file through the built-in engine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		return play(string(data))
	},
}

func play(notation string) error {
	bank := audio.NewToneBank(playSampleRate)
	out, err := audio.NewPlayer(playSampleRate, bank)
	if err != nil {
		return fmt.Errorf("audio init: %w", err)
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
	if playWarp != 100 {
		c.SetWarp(playWarp)
	}
	c.Wait()
	// let the last notes ring out of the audio buffer
	time.Sleep(300 * time.Millisecond)
	return nil
}
