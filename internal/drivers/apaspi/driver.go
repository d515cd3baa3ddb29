// Package apaspi drives APA102/SK9822-style LED strips over SPI: a
// start frame of zero bytes, one 4-byte (global-brightness + BGR) word
// per LED, and an end frame long enough to clock out the last LED's
// latch.
package apaspi

import (
	"context"
	"time"

	"github.com/edgeflow/ambientled/internal/colorutil"
	"github.com/edgeflow/ambientled/internal/hal"
)

// Config controls the SPI bus addressing and per-LED brightness.
type Config struct {
	Bus, Device int
	SpeedHz     int
	// GlobalBrightness is APA102's independent 5-bit brightness field
	// (0..31); the color channels carry the actual color.
	GlobalBrightness uint8
	// RefreshInterval, if non-zero, makes Update return periodically so
	// the scheduler can drive a keep-alive rewrite even without a new
	// frame (some APA102 clones reset the latch on their own).
	RefreshInterval time.Duration
}

// DefaultConfig picks a conservative SPI speed and full brightness.
func DefaultConfig() Config {
	return Config{SpeedHz: 4_000_000, GlobalBrightness: 31}
}

// Driver implements scheduler.Driver over a hal.SPIProvider.
type Driver struct {
	cfg Config
	spi hal.SPIProvider
}

// New opens the SPI device described by cfg on the given provider.
func New(cfg Config, spi hal.SPIProvider) (*Driver, error) {
	if cfg.GlobalBrightness > 31 {
		cfg.GlobalBrightness = 31
	}
	if err := spi.Open(cfg.Bus, cfg.Device); err != nil {
		return nil, err
	}
	if cfg.SpeedHz > 0 {
		if err := spi.SetSpeed(cfg.SpeedHz); err != nil {
			return nil, err
		}
	}
	return &Driver{cfg: cfg, spi: spi}, nil
}

// SetLEDData encodes colors into the APA102 frame format and transfers
// it over SPI.
func (d *Driver) SetLEDData(ctx context.Context, colors []colorutil.Color) error {
	_, err := d.spi.Transfer(encodeFrame(colors, d.cfg.GlobalBrightness))
	return err
}

// Update blocks for RefreshInterval (or forever, if unset) and then
// returns nil, giving the scheduler a periodic nudge to rewrite the
// last frame on strips that don't hold their latch indefinitely.
func (d *Driver) Update(ctx context.Context) error {
	if d.cfg.RefreshInterval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	select {
	case <-time.After(d.cfg.RefreshInterval):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the underlying SPI device.
func (d *Driver) Close() error {
	return d.spi.Close()
}

func encodeFrame(colors []colorutil.Color, brightness uint8) []byte {
	n := len(colors)
	startLen := 4
	// end frame needs at least n/2 bits of clock to latch every LED
	endLen := (n/16 + 1) * 4
	buf := make([]byte, startLen+n*4+endLen)

	for i, c := range colors {
		off := startLen + i*4
		buf[off] = 0xE0 | (brightness & 0x1F)
		buf[off+1] = c.B
		buf[off+2] = c.G
		buf[off+3] = c.R
	}
	return buf
}
