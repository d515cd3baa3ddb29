package instance

import (
	"testing"

	"github.com/edgeflow/ambientled/internal/colorpipeline"
	"github.com/edgeflow/ambientled/internal/colorutil"
	"github.com/edgeflow/ambientled/internal/config"
)

func TestFromConfigWiresBacklightAndCorners(t *testing.T) {
	cfg := config.InstanceConfig{
		LEDs: []config.LedConfig{{HMin: 0, HMax: 1, VMin: 0, VMax: 1}},
		Device: config.DeviceConfig{
			Driver:           "udp",
			HardwareLEDCount: 1,
			UDPAddr:          "127.0.0.1:1234",
		},
		ColorAdjustments: []config.ColorAdjustmentConfig{
			{
				LEDs:       "*",
				Gamma:      config.GammaConfig{R: 2.2, G: 2.2, B: 2.2},
				Brightness: 80,
				Backlight: config.BacklightConfig{
					Enabled:   true,
					Threshold: 0.05,
					Colored:   true,
				},
				Corners: config.CornerGainsConfig{
					Red: &config.CornerGainConfig{R: 0.8, G: 0, B: 0},
				},
			},
		},
	}

	pc := FromConfig("test", cfg)
	adj, ok := pc.Adjustments[0]
	if !ok {
		t.Fatalf("expected LED 0 to have a configured adjustment")
	}

	if !adj.Backlight.Enabled || adj.Backlight.Threshold != 0.05 || !adj.Backlight.Colored {
		t.Fatalf("backlight settings were not wired from config, got %+v", adj.Backlight)
	}

	wantRed := colorutil.RGB{R: 0.8, G: 0, B: 0}
	if adj.Corners.Red != wantRed {
		t.Fatalf("red corner gain override was not applied, got %+v", adj.Corners.Red)
	}
	// every other corner must keep the pure-color identity default.
	defaults := colorpipeline.DefaultCornerGains()
	if adj.Corners.Green != defaults.Green || adj.Corners.Blue != defaults.Blue || adj.Corners.White != defaults.White {
		t.Fatalf("unconfigured corners should keep their default gain, got %+v", adj.Corners)
	}
}

func TestFromConfigDefaultsCornersWhenUnconfigured(t *testing.T) {
	cfg := config.InstanceConfig{
		LEDs: []config.LedConfig{{HMin: 0, HMax: 1, VMin: 0, VMax: 1}},
		Device: config.DeviceConfig{
			Driver:           "udp",
			HardwareLEDCount: 1,
			UDPAddr:          "127.0.0.1:1234",
		},
		ColorAdjustments: []config.ColorAdjustmentConfig{
			{LEDs: "*"},
		},
	}

	pc := FromConfig("test", cfg)
	adj := pc.Adjustments[0]
	defaults := colorpipeline.DefaultCornerGains()
	if adj.Corners != defaults {
		t.Fatalf("an adjustment entry with no corner overrides should keep the identity corner gains, got %+v", adj.Corners)
	}
}
