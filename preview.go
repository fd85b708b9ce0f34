package otaroll

import (
	"github.com/laurent-yin/otamatone-roll-sub000/internal/abc"
	"github.com/laurent-yin/otamatone-roll-sub000/internal/timeline"
)

// PreviewTimeline builds the static baseline timeline for notation without
// touching the engine or starting playback. Malformed notation yields the
// empty timeline, never an error, so editors can call this on every
// keystroke.
func PreviewTimeline(notation string) *timeline.Timeline {
	return timeline.BuildBaseline(notation)
}

// Compile parses notation into its structural tree without building a
// timeline. Useful for syntax checking.
func Compile(notation string) (*abc.Tune, error) {
	return abc.Parse(notation)
}

// PreviewTimeline on a controller matches the package-level function; the
// baseline build is pure and shares no state with playback.
func (c *Controller) PreviewTimeline(notation string) *timeline.Timeline {
	return PreviewTimeline(notation)
}
