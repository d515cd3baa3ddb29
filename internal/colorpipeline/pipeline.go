// Package colorpipeline applies per-LED channel gain, gamma, backlight
// boost, and whitepoint correction to a reduced frame before it reaches
// the smoother.
package colorpipeline

import (
	"math"

	"github.com/edgeflow/ambientled/internal/colorutil"
)

// CornerGains holds the seven per-corner gain vectors of the RGB cube,
// indexed by color name: white, red, green, blue, cyan, magenta, yellow.
// Black (the origin) never needs a gain since complement weights vanish
// there.
type CornerGains struct {
	White, Red, Green, Blue, Cyan, Magenta, Yellow colorutil.RGB
}

// DefaultCornerGains returns the identity adjustment: each corner maps
// to its own pure color, so applyCornerGains reconstructs the input
// unchanged (a pure-red input has only wRed nonzero, and gain.Red=(1,0,0)
// reproduces it exactly).
func DefaultCornerGains() CornerGains {
	return CornerGains{
		White:   colorutil.RGB{R: 1, G: 1, B: 1},
		Red:     colorutil.RGB{R: 1, G: 0, B: 0},
		Green:   colorutil.RGB{R: 0, G: 1, B: 0},
		Blue:    colorutil.RGB{R: 0, G: 0, B: 1},
		Cyan:    colorutil.RGB{R: 0, G: 1, B: 1},
		Magenta: colorutil.RGB{R: 1, G: 0, B: 1},
		Yellow:  colorutil.RGB{R: 1, G: 1, B: 0},
	}
}

// Gamma is a per-channel gamma exponent.
type Gamma struct{ R, G, B float64 }

// DefaultGamma is the identity gamma.
func DefaultGamma() Gamma { return Gamma{R: 1, G: 1, B: 1} }

// Backlight controls the floor-substitution boost applied to otherwise
// near-black frames.
type Backlight struct {
	Enabled   bool
	Threshold float64 // 0..1, floor below which boost applies
	Colored   bool    // true: scale the input up; false: substitute grey at Threshold
}

// Brightness holds the 0..100 brightness and brightness-compensation
// dials that scale the per-corner gains.
type Brightness struct {
	Level        float64 // 0..100
	Compensation float64 // 0..100
}

// Adjustment bundles one LED's full parameter set.
type Adjustment struct {
	Gamma      Gamma
	Backlight  Backlight
	Brightness Brightness
	Corners    CornerGains
	Whitepoint colorutil.RGB // target whitepoint; colorutil.SRGBWhite if unset
}

// DefaultAdjustment is the fully-neutral adjustment: every step is a
// no-op.
func DefaultAdjustment() Adjustment {
	return Adjustment{
		Gamma:      DefaultGamma(),
		Backlight:  Backlight{},
		Brightness: Brightness{Level: 100, Compensation: 0},
		Corners:    DefaultCornerGains(),
		Whitepoint: colorutil.SRGBWhite,
	}
}

// Pipeline holds a resolved led_index -> Adjustment mapping built from a
// selector list, plus a fallback for LEDs no selector covers.
type Pipeline struct {
	perLED   []Adjustment
	fallback Adjustment
}

// New builds a pipeline for ledCount LEDs. assignments maps an LED index
// to the Adjustment that should apply to it; LEDs not present use the
// neutral default.
func New(ledCount int, assignments map[int]Adjustment) *Pipeline {
	p := &Pipeline{perLED: make([]Adjustment, ledCount), fallback: DefaultAdjustment()}
	for i := range p.perLED {
		p.perLED[i] = p.fallback
	}
	for idx, adj := range assignments {
		if idx >= 0 && idx < ledCount {
			p.perLED[idx] = adj
		}
	}
	return p
}

// Apply runs the full pipeline over a reduced frame, one Color16 per LED.
func (p *Pipeline) Apply(frame []colorutil.Color16) []colorutil.Color16 {
	out := make([]colorutil.Color16, len(frame))
	for i, c16 := range frame {
		adj := p.fallback
		if i < len(p.perLED) {
			adj = p.perLED[i]
		}
		out[i] = applyOne(adj, c16)
	}
	return out
}

// applyOne runs the four-step algorithm on one LED's color. Steps 1-3
// operate in 8-bit with 16-bit intermediates for precision; step 4 runs
// in 16-bit on the final buffer.
func applyOne(adj Adjustment, c16 colorutil.Color16) colorutil.Color16 {
	c8 := c16.To8()
	rgb := colorutil.RGB{
		R: float64(c8.R) / 255,
		G: float64(c8.G) / 255,
		B: float64(c8.B) / 255,
	}

	rgb = applyGamma(rgb, adj.Gamma)
	rgb = applyBacklight(rgb, adj.Backlight)
	rgb = applyCornerGains(rgb, adj.Brightness, adj.Corners)

	result16 := colorutil.RGB{R: rgb.R, G: rgb.G, B: rgb.B}.ToColor16()
	return applyWhitepoint(result16, adj.Whitepoint)
}

func applyGamma(c colorutil.RGB, g Gamma) colorutil.RGB {
	return colorutil.RGB{
		R: gammaChan(c.R, g.R),
		G: gammaChan(c.G, g.G),
		B: gammaChan(c.B, g.B),
	}
}

func gammaChan(v, gamma float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Pow(v, gamma)
}

func applyBacklight(c colorutil.RGB, bl Backlight) colorutil.RGB {
	if !bl.Enabled {
		return c
	}
	sum := c.R + c.G + c.B
	if sum >= bl.Threshold {
		return c
	}
	if !bl.Colored {
		return colorutil.RGB{R: bl.Threshold / 3, G: bl.Threshold / 3, B: bl.Threshold / 3}
	}
	if sum <= 0 {
		return colorutil.RGB{R: bl.Threshold / 3, G: bl.Threshold / 3, B: bl.Threshold / 3}
	}
	k := bl.Threshold / sum
	return colorutil.RGB{R: clamp01(c.R * k), G: clamp01(c.G * k), B: clamp01(c.B * k)}
}

// applyCornerGains decomposes c into the eight weights of the RGB cube
// (black, R, G, B, C, M, Y, white), each a tri-product of channel
// complements, applies the corner's gain vector scaled by the brightness
// factor, and recombines by summing the weighted contributions.
func applyCornerGains(c colorutil.RGB, br Brightness, g CornerGains) colorutil.RGB {
	r, gc, b := c.R, c.G, c.B
	ir, igc, ib := 1-r, 1-gc, 1-b

	// ir*igc*ib (black) is omitted below: it contributes no gain term.
	wRed := r * igc * ib
	wGreen := ir * gc * ib
	wBlue := ir * igc * b
	wCyan := ir * gc * b
	wMagenta := r * igc * b
	wYellow := r * gc * ib
	wWhite := r * gc * b

	factor := brightnessFactor(br)

	weighted := []struct {
		gain colorutil.RGB
		w    float64
	}{
		{g.Red, wRed},
		{g.Green, wGreen},
		{g.Blue, wBlue},
		{g.Cyan, wCyan},
		{g.Magenta, wMagenta},
		{g.Yellow, wYellow},
		{g.White, wWhite},
	}

	var out colorutil.RGB
	for _, wc := range weighted {
		k := wc.w * factor
		out.R += wc.gain.R * k
		out.G += wc.gain.G * k
		out.B += wc.gain.B * k
	}

	return colorutil.RGB{R: clamp01(out.R), G: clamp01(out.G), B: clamp01(out.B)}
}

// brightnessFactor combines the brightness and brightness-compensation
// dials (each 0..100) into a single multiplicative factor: brightness
// scales linearly, compensation lifts the floor so low brightness never
// reaches pure black.
func brightnessFactor(br Brightness) float64 {
	level := clampPercent(br.Level) / 100
	comp := clampPercent(br.Compensation) / 100
	return comp + (1-comp)*level
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// applyWhitepoint scales c by target/srgb normalized so the brightest
// channel remains at full scale, run in 16-bit on the final buffer.
func applyWhitepoint(c16 colorutil.Color16, target colorutil.RGB) colorutil.Color16 {
	if target == colorutil.SRGBWhite {
		return c16
	}
	c := colorutil.FromColor16(c16)
	adjusted := colorutil.Whitebalance(c, colorutil.SRGBWhite, target)
	return adjusted.ToColor16()
}
