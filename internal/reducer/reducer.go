// Package reducer maps a 2D image onto a 1D sequence of LED colors via
// weighted-area sampling over each LED's rectangular scan region, after
// a crop window has been applied.
package reducer

import (
	"github.com/edgeflow/ambientled/internal/colorutil"
	"github.com/edgeflow/ambientled/internal/message"
)

// Led is one scan rectangle in the unit square, hmin<=hmax, vmin<=vmax,
// both in [0,1].
type Led struct {
	HMin, HMax, VMin, VMax float64
}

// Crop is the inner window (in pixel coordinates) the border detector
// currently reports; an image reducer samples only within it.
type Crop struct {
	X0, X1, Y0, Y1 int // half-open [X0,X1) x [Y0,Y1)
}

// FullFrame returns a crop covering the entire image.
func FullFrame(im *message.Image) Crop {
	return Crop{X0: 0, X1: im.Width, Y0: 0, Y1: im.Height}
}

// Reducer is reusable across frames: it holds no state between calls to
// Reduce, but callers may keep one instance alive to avoid reallocating
// slices per frame.
type Reducer struct {
	leds []Led
}

// New creates a reducer for the given ordered LED layout.
func New(leds []Led) *Reducer {
	return &Reducer{leds: leds}
}

// Count returns the number of LEDs this reducer produces colors for.
func (r *Reducer) Count() int { return len(r.leds) }

// Leds returns the reducer's ordered LED layout, for wire protocols
// (boblight's "get lights") that report scan rectangles to clients.
func (r *Reducer) Leds() []Led { return r.leds }

// Reduce computes one 16-bit color per LED from im, restricted to crop.
// An LED whose rectangle falls entirely outside crop (zero coverage)
// produces black rather than dividing by zero.
func (r *Reducer) Reduce(im *message.Image, crop Crop) []colorutil.Color16 {
	out := make([]colorutil.Color16, len(r.leds))
	if im == nil || im.Width <= 0 || im.Height <= 0 {
		return out
	}

	cw := float64(crop.X1 - crop.X0)
	ch := float64(crop.Y1 - crop.Y0)
	if cw <= 0 || ch <= 0 {
		return out
	}

	for i, led := range r.leds {
		out[i] = r.reduceOne(im, crop, led, cw, ch)
	}
	return out
}

func (r *Reducer) reduceOne(im *message.Image, crop Crop, led Led, cw, ch float64) colorutil.Color16 {
	// LED rectangle in crop-local unit coordinates, translated to pixel
	// coordinates within the crop window.
	xMinF := led.HMin*cw + float64(crop.X0)
	xMaxF := led.HMax*cw + float64(crop.X0)
	yMinF := led.VMin*ch + float64(crop.Y0)
	yMaxF := led.VMax*ch + float64(crop.Y0)

	xStart := clampInt(int(xMinF), crop.X0, crop.X1)
	xEnd := clampInt(ceilInt(xMaxF), crop.X0, crop.X1)
	yStart := clampInt(int(yMinF), crop.Y0, crop.Y1)
	yEnd := clampInt(ceilInt(yMaxF), crop.Y0, crop.Y1)

	var sumR, sumG, sumB, sumW float64

	for y := yStart; y < yEnd; y++ {
		wy := pixelCoverage(float64(y), float64(y+1), yMinF, yMaxF)
		if wy <= 0 {
			continue
		}
		for x := xStart; x < xEnd; x++ {
			wx := pixelCoverage(float64(x), float64(x+1), xMinF, xMaxF)
			if wx <= 0 {
				continue
			}
			w := wx * wy
			c := im.At(x, y)
			sumR += w * float64(c.R)
			sumG += w * float64(c.G)
			sumB += w * float64(c.B)
			sumW += w
		}
	}

	if sumW <= 0 {
		return colorutil.Color16{}
	}

	mean8 := colorutil.Color{
		R: round8(sumR / sumW),
		G: round8(sumG / sumW),
		B: round8(sumB / sumW),
	}
	return mean8.To16()
}

// pixelCoverage returns the fraction of [pxMin,pxMax) (one pixel's span)
// that overlaps [rectMin,rectMax), i.e. the wx/wy weight:
// 1 for fully interior pixels, fractional on the rectangle's borders.
func pixelCoverage(pxMin, pxMax, rectMin, rectMax float64) float64 {
	lo := rectMin
	if pxMin > lo {
		lo = pxMin
	}
	hi := rectMax
	if pxMax < hi {
		hi = pxMax
	}
	if hi <= lo {
		return 0
	}
	return hi - lo
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func ceilInt(v float64) int {
	i := int(v)
	if float64(i) < v {
		i++
	}
	return i
}

func round8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
