// Package message defines the input message model ingested by the muxer:
// a tagged sum over ClearAll / Clear / SolidColor / LedColors / Image /
// Effect, each tagged with its source id, priority and optional duration.
package message

import (
	"fmt"
	"time"

	"github.com/edgeflow/ambientled/internal/colorutil"
)

// IdlePriority is the muxer's reserved internal slot. External producers
// must submit priorities in [0, 255].
const IdlePriority = 256

// MaxPriority is the highest priority value an external producer may use.
const MaxPriority = 255

// ValidatePriority rejects priorities outside the externally-visible range.
func ValidatePriority(p int) error {
	if p < 0 || p > MaxPriority {
		return fmt.Errorf("priority %d out of range [0,%d]", p, MaxPriority)
	}
	return nil
}

// Image is an RGB image view shared by pointer and treated as read-only. Multiple input
// pipelines may fan a single captured frame out to several instances
// without copying; the reducer only ever reads it.
type Image struct {
	Width, Height int
	// Pix holds tightly packed RGB triples, row-major, top-to-bottom.
	Pix []byte
}

// At returns the color of pixel (x, y). Caller must ensure bounds.
func (im *Image) At(x, y int) colorutil.Color {
	i := (y*im.Width + x) * 3
	return colorutil.Color{R: im.Pix[i], G: im.Pix[i+1], B: im.Pix[i+2]}
}

// Data is the sum type of state-carrying and command message bodies.
type Data interface {
	isData()
}

// ClearAll cancels every priority slot, reinstating only the idle slot.
type ClearAll struct{}

// Clear cancels a single priority slot.
type Clear struct {
	Priority int
}

// SolidColor requests a single flat color across every LED.
type SolidColor struct {
	Priority int
	Duration time.Duration // zero means endless
	Color    colorutil.Color
}

// LedColors requests an explicit per-LED color vector.
type LedColors struct {
	Priority int
	Duration time.Duration
	Colors   []colorutil.Color
}

// ImageInput requests that the reducer compute LED colors from an image.
type ImageInput struct {
	Priority int
	Duration time.Duration
	Image    *Image
}

// Effect is a command to launch a scripted effect. It is never delivered
// to the instance core as state; the muxer forwards it to the effect
// runtime, which becomes its own input source once running.
type Effect struct {
	Priority int
	Duration time.Duration
	Name     string
	Args     map[string]any
}

func (ClearAll) isData()   {}
func (Clear) isData()      {}
func (SolidColor) isData() {}
func (LedColors) isData()  {}
func (ImageInput) isData() {}
func (Effect) isData()     {}

// HasDuration reports the duration carried by d, if any.
func HasDuration(d Data) (time.Duration, bool) {
	switch v := d.(type) {
	case SolidColor:
		return v.Duration, v.Duration > 0
	case LedColors:
		return v.Duration, v.Duration > 0
	case ImageInput:
		return v.Duration, v.Duration > 0
	case Effect:
		return v.Duration, v.Duration > 0
	default:
		return 0, false
	}
}

// Priority returns the priority carried by d, if d carries one.
func Priority(d Data) (int, bool) {
	switch v := d.(type) {
	case SolidColor:
		return v.Priority, true
	case LedColors:
		return v.Priority, true
	case ImageInput:
		return v.Priority, true
	case Effect:
		return v.Priority, true
	case Clear:
		return v.Priority, true
	default:
		return 0, false
	}
}

// Input is a fully-tagged message as received by an instance's muxer.
type Input struct {
	SourceID  uint64
	Component string
	Data      Data
}
