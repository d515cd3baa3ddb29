package border

import (
	"testing"

	"github.com/edgeflow/ambientled/internal/message"
)

// borderedImage is black wherever x<left or y<top, white elsewhere - a
// border whose thickness is identical at every probed row/column.
func borderedImage(w, h, left, top int) *message.Image {
	pix := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			if x < left || y < top {
				pix[i], pix[i+1], pix[i+2] = 0, 0, 0
			} else {
				pix[i], pix[i+1], pix[i+2] = 255, 255, 255
			}
		}
	}
	return &message.Image{Width: w, Height: h, Pix: pix}
}

// inconsistentLeftBorder varies its left border width row by row, so the
// default mode's multi-row probe disagrees and reports "unknown".
func inconsistentLeftBorder(w, h int) *message.Image {
	pix := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		left := 2 + y%5
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			if x < left {
				pix[i], pix[i+1], pix[i+2] = 0, 0, 0
			} else {
				pix[i], pix[i+1], pix[i+2] = 255, 255, 255
			}
		}
	}
	return &message.Image{Width: w, Height: h, Pix: pix}
}

func testConfig() Config {
	return Config{
		Enabled:           true,
		Mode:              ModeDefault,
		ThresholdPercent:  50,
		BorderFrameCount:  5,
		UnknownFrameCount: 5,
		MaxInconsistent:   0,
		BlurRemoveCount:   0,
	}
}

func TestDetectorReportsFullFrameBeforeThresholdReached(t *testing.T) {
	d := New(testConfig())
	im := borderedImage(30, 30, 3, 2)

	for i := 0; i < 4; i++ {
		c := d.Observe(im)
		if c.X0 != 0 || c.Y0 != 0 || c.X1 != 30 || c.Y1 != 30 {
			t.Fatalf("observation %d: expected full frame before the adoption threshold, got %+v", i, c)
		}
	}
}

func TestDetectorAdoptsBorderAfterThresholdFrames(t *testing.T) {
	d := New(testConfig())
	im := borderedImage(30, 30, 3, 2)

	var last = d.Observe(im)
	for i := 0; i < 4; i++ {
		last = d.Observe(im)
	}
	if last.X0 != 3 || last.Y0 != 2 || last.X1 != 27 || last.Y1 != 28 {
		t.Fatalf("expected the adopted border's crop window, got %+v", last)
	}
}

func TestDetectorDisabledAlwaysReturnsFullFrame(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	d := New(cfg)
	im := borderedImage(30, 30, 3, 2)

	for i := 0; i < 10; i++ {
		c := d.Observe(im)
		if c.X0 != 0 || c.Y0 != 0 || c.X1 != 30 || c.Y1 != 30 {
			t.Fatalf("a disabled detector must always report the full frame, got %+v", c)
		}
	}
}

func TestDetectorFallsBackToUnknownAfterSustainedUnknownObservations(t *testing.T) {
	d := New(testConfig())
	known := borderedImage(30, 30, 3, 2)
	unknown := inconsistentLeftBorder(30, 30)

	for i := 0; i < 5; i++ {
		d.Observe(known)
	}
	if !d.known {
		t.Fatalf("expected the detector to have adopted a known border")
	}

	var last = d.Observe(unknown)
	for i := 0; i < 4; i++ {
		last = d.Observe(unknown)
	}
	if last.X0 != 0 || last.Y0 != 0 || last.X1 != 30 || last.Y1 != 30 {
		t.Fatalf("expected a fallback to the full frame after sustained unknown observations, got %+v", last)
	}
}
