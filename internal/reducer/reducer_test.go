package reducer

import (
	"testing"

	"github.com/edgeflow/ambientled/internal/colorutil"
	"github.com/edgeflow/ambientled/internal/message"
)

func solidImage(w, h int, c colorutil.Color) *message.Image {
	pix := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		pix[i*3] = c.R
		pix[i*3+1] = c.G
		pix[i*3+2] = c.B
	}
	return &message.Image{Width: w, Height: h, Pix: pix}
}

func TestReduceConstantImageProducesUniformOutput(t *testing.T) {
	im := solidImage(10, 10, colorutil.Color{R: 200, G: 100, B: 50})
	r := New([]Led{
		{HMin: 0, HMax: 0.3, VMin: 0, VMax: 1},
		{HMin: 0.3, HMax: 0.6, VMin: 0, VMax: 1},
		{HMin: 0.6, HMax: 1, VMin: 0, VMax: 1},
	})
	out := r.Reduce(im, FullFrame(im))
	for i, c := range out {
		c8 := c.To8()
		if c8.R != 200 || c8.G != 100 || c8.B != 50 {
			t.Fatalf("LED %d: expected the constant input color, got %+v", i, c8)
		}
	}
}

func TestReduceBlackOnZeroCoverage(t *testing.T) {
	im := solidImage(10, 10, colorutil.Color{R: 255, G: 255, B: 255})
	// a crop that excludes this LED's rectangle entirely.
	r := New([]Led{{HMin: 0, HMax: 1, VMin: 0, VMax: 1}})
	crop := Crop{X0: 5, X1: 5, Y0: 0, Y1: 10} // zero-width crop: no pixels, no coverage
	out := r.Reduce(im, crop)
	if out[0] != (colorutil.Color16{}) {
		t.Fatalf("zero-coverage LED should be black, got %+v", out[0])
	}
}

func TestReducePartitionConservesArea(t *testing.T) {
	// Two adjacent LEDs splitting the frame in half should each see that
	// half's own color exactly, and a full-width LED over uniform halves
	// sees their average.
	w, h := 20, 4
	pix := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			if x < w/2 {
				pix[i], pix[i+1], pix[i+2] = 100, 0, 0
			} else {
				pix[i], pix[i+1], pix[i+2] = 0, 200, 0
			}
		}
	}
	im := &message.Image{Width: w, Height: h, Pix: pix}

	left := New([]Led{{HMin: 0, HMax: 0.5, VMin: 0, VMax: 1}})
	right := New([]Led{{HMin: 0.5, HMax: 1, VMin: 0, VMax: 1}})
	whole := New([]Led{{HMin: 0, HMax: 1, VMin: 0, VMax: 1}})

	lc := left.Reduce(im, FullFrame(im))[0].To8()
	rc := right.Reduce(im, FullFrame(im))[0].To8()
	wc := whole.Reduce(im, FullFrame(im))[0].To8()

	if lc.R != 100 || lc.G != 0 {
		t.Fatalf("left half: expected pure red, got %+v", lc)
	}
	if rc.G != 200 || rc.R != 0 {
		t.Fatalf("right half: expected pure green, got %+v", rc)
	}
	// area-conservation: the whole-frame LED's mean must equal the
	// arithmetic mean of the two halves (equal-area partition).
	wantR := (int(lc.R) + int(rc.R)) / 2
	wantG := (int(lc.G) + int(rc.G)) / 2
	if int(wc.R) != wantR || int(wc.G) != wantG {
		t.Fatalf("whole-frame mean %+v does not conserve the halves' area-weighted average (want R=%d G=%d)", wc, wantR, wantG)
	}
}

func TestReduceMonotoneWithBrightness(t *testing.T) {
	dim := solidImage(8, 8, colorutil.Color{R: 50, G: 50, B: 50})
	bright := solidImage(8, 8, colorutil.Color{R: 150, G: 150, B: 150})
	r := New([]Led{{HMin: 0, HMax: 1, VMin: 0, VMax: 1}})

	dimOut := r.Reduce(dim, FullFrame(dim))[0]
	brightOut := r.Reduce(bright, FullFrame(bright))[0]

	if !(brightOut.R > dimOut.R && brightOut.G > dimOut.G && brightOut.B > dimOut.B) {
		t.Fatalf("a uniformly brighter frame must reduce to a uniformly brighter LED color: dim=%+v bright=%+v", dimOut, brightOut)
	}
}
