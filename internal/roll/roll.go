// Package roll draws a scrolling piano-roll view of a timeline as an ebiten
// game. The playhead is fixed; notes scroll leftward under it at the live
// tempo. A warp change never moves a note rectangle relative to its
// neighbors, only the scroll speed.
package roll

import (
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/laurent-yin/otamatone-roll-sub000/internal/timeline"
)

const (
	windowW = 960
	windowH = 540

	playheadX    = windowW / 4
	pixelsPerSub = 48.0
	noteH        = 5
	lowPitch     = 24
	highPitch    = 108
)

var (
	bgColor       = color.RGBA{24, 24, 32, 255}
	noteColor     = color.RGBA{0, 160, 255, 255}
	activeColor   = color.RGBA{255, 200, 0, 255}
	playheadColor = color.RGBA{255, 64, 64, 255}
	barColor      = color.RGBA{64, 64, 80, 255}
)

// warp steps offered on the +/- keys, in percent.
var warpSteps = []int{25, 50, 65, 85, 100, 130, 150, 200}

// Game renders one timeline. Position and warp flow through callbacks so the
// view never owns playback state.
type Game struct {
	Timeline *timeline.Timeline
	Tempo    *timeline.TempoCell

	// Position reports the current musical position in subdivisions.
	Position func() float64
	// SetWarp applies a warp change; nil disables the +/- keys.
	SetWarp func(percent int)
	// Done reports whether playback finished; the game then exits.
	Done func() bool

	warpIdx int
	started bool
}

func New(tl *timeline.Timeline, cell *timeline.TempoCell, position func() float64) *Game {
	return &Game{Timeline: tl, Tempo: cell, Position: position, warpIdx: warpIndexOf(100)}
}

func warpIndexOf(percent int) int {
	for i, w := range warpSteps {
		if w == percent {
			return i
		}
	}
	return len(warpSteps) / 2
}

func (g *Game) Update() error {
	g.started = true
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) || inpututil.IsKeyJustPressed(ebiten.KeyQ) {
		return ebiten.Termination
	}
	if g.SetWarp != nil {
		if inpututil.IsKeyJustPressed(ebiten.KeyEqual) && g.warpIdx < len(warpSteps)-1 {
			g.warpIdx++
			g.SetWarp(warpSteps[g.warpIdx])
		}
		if inpututil.IsKeyJustPressed(ebiten.KeyMinus) && g.warpIdx > 0 {
			g.warpIdx--
			g.SetWarp(warpSteps[g.warpIdx])
		}
	}
	if g.Done != nil && g.Done() {
		return ebiten.Termination
	}
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(bgColor)
	pos := 0.0
	if g.Position != nil {
		pos = g.Position()
	}

	for _, b := range g.Timeline.MeasureBoundaries {
		x := subToX(b, pos)
		if x < -2 || x > windowW+2 {
			continue
		}
		ebitenutil.DrawRect(screen, x, 0, 1, windowH, barColor)
	}

	for _, n := range g.Timeline.Notes {
		x := subToX(n.StartSubdivision, pos)
		w := n.DurationSubdivisions * pixelsPerSub
		if x+w < 0 || x > windowW {
			continue
		}
		y := pitchToY(n.Pitch)
		c := noteColor
		if pos >= n.StartSubdivision && pos < n.StartSubdivision+n.DurationSubdivisions {
			c = activeColor
		}
		ebitenutil.DrawRect(screen, x, y, w-1, noteH, c)
	}

	ebitenutil.DrawRect(screen, playheadX, 0, 2, windowH, playheadColor)
	g.drawStatus(screen, pos)
}

func (g *Game) drawStatus(screen *ebiten.Image, pos float64) {
	sps := 0.0
	if g.Tempo != nil {
		sps = g.Tempo.Get()
	}
	msg := fmt.Sprintf("pos %.2f sub  |  %.4f s/sub  |  warp %d%%  |  +/- tempo, Q quit",
		pos, sps, warpSteps[g.warpIdx])
	ebitenutil.DebugPrint(screen, msg)
}

func subToX(sub, position float64) float64 {
	return playheadX + (sub-position)*pixelsPerSub
}

func pitchToY(pitch float64) float64 {
	if pitch < lowPitch {
		pitch = lowPitch
	}
	if pitch > highPitch {
		pitch = highPitch
	}
	span := float64(highPitch - lowPitch)
	return (1 - (pitch-float64(lowPitch))/span) * (windowH - 40)
}

func (g *Game) Layout(outsideW, outsideH int) (int, int) {
	return windowW, windowH
}

// Run opens the window and blocks until the user quits or Done reports true.
func Run(g *Game, title string) error {
	ebiten.SetWindowSize(windowW, windowH)
	ebiten.SetWindowTitle(title)
	err := ebiten.RunGame(g)
	if err == ebiten.Termination {
		return nil
	}
	return err
}
