package instance

import (
	"strconv"
	"strings"
	"time"

	"github.com/edgeflow/ambientled/internal/border"
	"github.com/edgeflow/ambientled/internal/colorpipeline"
	"github.com/edgeflow/ambientled/internal/colorutil"
	"github.com/edgeflow/ambientled/internal/config"
	"github.com/edgeflow/ambientled/internal/reducer"
	"github.com/edgeflow/ambientled/internal/scheduler"
	"github.com/edgeflow/ambientled/internal/smoother"
)

// FromConfig translates one instance's on-disk configuration into a
// pipeline Config, resolving LED selectors and merging adjustments over
// the neutral default.
func FromConfig(name string, c config.InstanceConfig) Config {
	leds := make([]reducer.Led, len(c.LEDs))
	for i, l := range c.LEDs {
		leds[i] = reducer.Led{HMin: l.HMin, HMax: l.HMax, VMin: l.VMin, VMax: l.VMax}
	}

	borderCfg := border.DefaultConfig()
	borderCfg.Enabled = c.BlackBorder.Enabled
	if c.BlackBorder.ThresholdPct > 0 {
		borderCfg.ThresholdPercent = c.BlackBorder.ThresholdPct
	}

	smoothCfg := smoother.DefaultConfig()
	smoothCfg.Enabled = c.Smoothing.Enable
	if c.Smoothing.TimeMs > 0 {
		smoothCfg.Window = time.Duration(c.Smoothing.TimeMs) * time.Millisecond
	}
	if c.Smoothing.UpdateFrequency > 0 {
		smoothCfg.UpdateFrequency = c.Smoothing.UpdateFrequency
	}

	adjustments := make(map[int]colorpipeline.Adjustment)
	for _, ca := range c.ColorAdjustments {
		adj := colorpipeline.DefaultAdjustment()
		adj.Gamma = colorpipeline.Gamma{R: orOne(ca.Gamma.R), G: orOne(ca.Gamma.G), B: orOne(ca.Gamma.B)}
		adj.Brightness.Level = orHundred(ca.Brightness)
		adj.Backlight = colorpipeline.Backlight{
			Enabled:   ca.Backlight.Enabled,
			Threshold: ca.Backlight.Threshold,
			Colored:   ca.Backlight.Colored,
		}
		adj.Corners = applyCornerOverrides(adj.Corners, ca.Corners)
		for _, idx := range resolveLEDSelector(ca.LEDs, len(leds)) {
			adjustments[idx] = adj
		}
	}

	return Config{
		Name:        name,
		LEDs:        leds,
		Border:      borderCfg,
		ColorLEDs:   len(leds),
		Adjustments: adjustments,
		Smoothing:   smoothCfg,
		Scheduler: scheduler.Config{
			HardwareLEDCount: c.Device.HardwareLEDCount,
			Latency:          time.Duration(c.Device.LatencyMs) * time.Millisecond,
			RewriteTime:      time.Duration(c.Device.RewriteMs) * time.Millisecond,
		},
	}
}

// resolveLEDSelector expands a "*" (all LEDs) or comma-separated index
// list ("0,1,2" or "0-3") into concrete LED indices.
func resolveLEDSelector(sel string, ledCount int) []int {
	if sel == "*" || sel == "" {
		out := make([]int, ledCount)
		for i := range out {
			out[i] = i
		}
		return out
	}
	var out []int
	for _, part := range strings.Split(sel, ",") {
		part = strings.TrimSpace(part)
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			a, errA := strconv.Atoi(strings.TrimSpace(lo))
			b, errB := strconv.Atoi(strings.TrimSpace(hi))
			if errA == nil && errB == nil {
				for i := a; i <= b; i++ {
					out = append(out, i)
				}
				continue
			}
		}
		if n, err := strconv.Atoi(part); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// applyCornerOverrides replaces each corner in base whose config entry
// is set, leaving the rest (and any corner left nil) at base's value.
func applyCornerOverrides(base colorpipeline.CornerGains, c config.CornerGainsConfig) colorpipeline.CornerGains {
	overrides := []struct {
		dst *colorutil.RGB
		src *config.CornerGainConfig
	}{
		{&base.White, c.White},
		{&base.Red, c.Red},
		{&base.Green, c.Green},
		{&base.Blue, c.Blue},
		{&base.Cyan, c.Cyan},
		{&base.Magenta, c.Magenta},
		{&base.Yellow, c.Yellow},
	}
	for _, o := range overrides {
		if o.src != nil {
			*o.dst = colorutil.RGB{R: o.src.R, G: o.src.G, B: o.src.B}
		}
	}
	return base
}

func orOne(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

func orHundred(v float64) float64 {
	if v == 0 {
		return 100
	}
	return v
}
