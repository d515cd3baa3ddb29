// Package border implements the black-border detector: a
// stateful hysteretic detector that observes a sequence of images and
// produces a rectangular inner crop window for the reducer.
package border

import (
	"github.com/edgeflow/ambientled/internal/message"
	"github.com/edgeflow/ambientled/internal/reducer"
)

// Mode selects the sampling policy used to probe for a border.
type Mode int

const (
	// ModeDefault scans rows at 33%, 50% and 66% of the height from the
	// left edge and columns at the same fractions of the width from the
	// top edge; all three probes on each axis must agree.
	ModeDefault Mode = iota
	// ModeClassic scans only the middle row from the left edge and the
	// middle column from the top edge.
	ModeClassic
	// ModeOSD scans like ModeDefault but with probes at 25%, 50% and 75%.
	ModeOSD
	// ModeLetterbox assumes a pure letterbox (horizontal bars only) and
	// only probes vertically.
	ModeLetterbox
)

// Config controls detection sensitivity and hysteresis.
type Config struct {
	Enabled           bool
	Mode              Mode
	ThresholdPercent  float64 // percent of full scale below which a pixel is "black"
	BorderFrameCount  int     // consecutive identical observations to adopt a new known border
	UnknownFrameCount int     // consecutive unknown observations to fall back to unknown
	MaxInconsistent   int     // isolated deviations to ignore before resetting the streak
	BlurRemoveCount   int     // extra padding added to the exposed crop
}

// DefaultConfig matches reasonable common defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		Mode:              ModeDefault,
		ThresholdPercent:  5,
		BorderFrameCount:  50,
		UnknownFrameCount: 600,
		MaxInconsistent:   10,
		BlurRemoveCount:   1,
	}
}

// observation is a per-image candidate estimate: border thickness in
// pixels, or unknown.
type observation struct {
	known   bool
	h, v    int
}

// Detector is the per-instance hysteretic state machine.
type Detector struct {
	cfg Config

	known      bool
	h, v       int
	streakObs  observation
	streakLen  int
	inconsist  int
}

// New creates a detector in the "unknown" state.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Observe feeds one image through the detector and returns the crop
// window that should be used for it. If detection is disabled, the crop
// is always the full frame.
func (d *Detector) Observe(im *message.Image) reducer.Crop {
	if !d.cfg.Enabled || im == nil || im.Width <= 0 || im.Height <= 0 {
		return fullFrame(im)
	}

	obs := d.estimate(im)
	d.advance(obs)

	if !d.known {
		return fullFrame(im)
	}
	pad := d.cfg.BlurRemoveCount
	x0 := clamp(d.h-pad, 0, im.Width/2)
	y0 := clamp(d.v-pad, 0, im.Height/2)
	return reducer.Crop{X0: x0, X1: im.Width - x0, Y0: y0, Y1: im.Height - y0}
}

func fullFrame(im *message.Image) reducer.Crop {
	if im == nil {
		return reducer.Crop{}
	}
	return reducer.Crop{X0: 0, X1: im.Width, Y0: 0, Y1: im.Height}
}

// advance applies the hysteresis rule: a candidate is
// only adopted after BorderFrameCount consecutive identical observations
// (or UnknownFrameCount consecutive unknowns to return to unknown).
// Isolated deviations (up to MaxInconsistent) are ignored without
// resetting the streak.
func (d *Detector) advance(obs observation) {
	if obs == d.streakObs {
		d.streakLen++
		d.inconsist = 0
	} else {
		d.inconsist++
		if d.inconsist > d.cfg.MaxInconsistent {
			d.streakObs = obs
			d.streakLen = 1
			d.inconsist = 0
		}
		// else: ignore the isolated deviation, keep accumulating the streak
	}

	cand := d.streakObs
	threshold := d.cfg.BorderFrameCount
	if !cand.known {
		threshold = d.cfg.UnknownFrameCount
	}
	if d.streakLen < threshold {
		return
	}

	if cand.known {
		d.known = true
		d.h, d.v = cand.h, cand.v
	} else {
		d.known = false
	}
}

// estimate produces one per-image candidate using the configured
// sampling policy. A pixel is "black" when every channel is below the
// configured threshold (percent of full scale).
func (d *Detector) estimate(im *message.Image) observation {
	thresh := uint8(clampF(d.cfg.ThresholdPercent, 0, 100) / 100 * 255)

	isBlack := func(x, y int) bool {
		c := im.At(x, y)
		return c.R <= thresh && c.G <= thresh && c.B <= thresh
	}

	switch d.cfg.Mode {
	case ModeLetterbox:
		v := scanVertical(im, isBlack)
		if v < 0 {
			return observation{known: false}
		}
		return observation{known: true, h: 0, v: v}
	case ModeClassic:
		h := scanHorizontalAt(im, im.Height/2, isBlack)
		v := scanVerticalAt(im, im.Width/2, isBlack)
		if h < 0 || v < 0 {
			return observation{known: false}
		}
		return observation{known: true, h: h, v: v}
	case ModeOSD:
		h := scanHorizontalProbed(im, []float64{0.25, 0.5, 0.75}, isBlack)
		v := scanVerticalProbed(im, []float64{0.25, 0.5, 0.75}, isBlack)
		if h < 0 || v < 0 {
			return observation{known: false}
		}
		return observation{known: true, h: h, v: v}
	default: // ModeDefault
		h := scanHorizontalProbed(im, []float64{0.33, 0.5, 0.66}, isBlack)
		v := scanVerticalProbed(im, []float64{0.33, 0.5, 0.66}, isBlack)
		if h < 0 || v < 0 {
			return observation{known: false}
		}
		return observation{known: true, h: h, v: v}
	}
}

// scanHorizontalAt counts black columns from the left edge at row y.
func scanHorizontalAt(im *message.Image, y int, isBlack func(x, y int) bool) int {
	n := 0
	for x := 0; x < im.Width/2; x++ {
		if !isBlack(x, y) {
			break
		}
		n++
	}
	return n
}

func scanVerticalAt(im *message.Image, x int, isBlack func(x, y int) bool) int {
	n := 0
	for y := 0; y < im.Height/2; y++ {
		if !isBlack(x, y) {
			break
		}
		n++
	}
	return n
}

// scanHorizontalProbed agrees across several probe rows (as fractions of
// height) on the same border thickness, else reports unknown (-1).
func scanHorizontalProbed(im *message.Image, rows []float64, isBlack func(x, y int) bool) int {
	result := -2
	for _, f := range rows {
		y := int(f * float64(im.Height))
		if y >= im.Height {
			y = im.Height - 1
		}
		n := scanHorizontalAt(im, y, isBlack)
		if result == -2 {
			result = n
		} else if result != n {
			return -1
		}
	}
	if result == -2 {
		return -1
	}
	return result
}

func scanVerticalProbed(im *message.Image, cols []float64, isBlack func(x, y int) bool) int {
	result := -2
	for _, f := range cols {
		x := int(f * float64(im.Width))
		if x >= im.Width {
			x = im.Width - 1
		}
		n := scanVerticalAt(im, x, isBlack)
		if result == -2 {
			result = n
		} else if result != n {
			return -1
		}
	}
	if result == -2 {
		return -1
	}
	return result
}

// scanVertical reports the top border thickness agreeing across three
// probe columns, used by the letterbox-only mode.
func scanVertical(im *message.Image, isBlack func(x, y int) bool) int {
	return scanVerticalProbed(im, []float64{0.25, 0.5, 0.75}, isBlack)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
