package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// RootConfig is the top-level on-disk configuration: global server and
// logging settings, the effect script directory, and one entry per named
// LED instance.
type RootConfig struct {
	Server    ServerConfig              `mapstructure:"server" yaml:"server" validate:"required"`
	Logging   LoggingConfig             `mapstructure:"logging" yaml:"logging"`
	Effects   EffectsConfig             `mapstructure:"effects" yaml:"effects"`
	Instances map[string]InstanceConfig `mapstructure:"instances" yaml:"instances" validate:"required,min=1,dive"`
}

// ServerConfig contains the control/status HTTP API's listen address
// and the optional wire-protocol server addresses (empty disables one).
type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr" yaml:"http_addr" validate:"required"`
	// AuthSecret signs bearer tokens required on /api/v1 routes. Empty
	// leaves the control API open (no auth configured).
	AuthSecret   string `mapstructure:"auth_secret" yaml:"auth_secret"`
	ProtoAddr    string `mapstructure:"proto_addr" yaml:"proto_addr"`
	FlatAddr     string `mapstructure:"flat_addr" yaml:"flat_addr"`
	BoblightAddr string `mapstructure:"boblight_addr" yaml:"boblight_addr"`
	// WireInstance names which instance's muxer the wire-protocol
	// servers feed; defaults to the lexicographically first instance if
	// unset.
	WireInstance string `mapstructure:"wire_instance" yaml:"wire_instance"`

	// InfluxAddr, when set, starts a background exporter that mirrors
	// the process metrics into InfluxDB alongside the Prometheus
	// text endpoint.
	InfluxAddr   string `mapstructure:"influx_addr" yaml:"influx_addr"`
	InfluxToken  string `mapstructure:"influx_token" yaml:"influx_token"`
	InfluxOrg    string `mapstructure:"influx_org" yaml:"influx_org"`
	InfluxBucket string `mapstructure:"influx_bucket" yaml:"influx_bucket"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `mapstructure:"dir" yaml:"dir"`
}

// EffectsConfig points at the directory of effect scripts.
type EffectsConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

// InstanceConfig is one named LED instance's full pipeline configuration.
type InstanceConfig struct {
	LEDs             []LedConfig             `mapstructure:"leds" yaml:"leds" validate:"required,min=1,dive"`
	Device           DeviceConfig            `mapstructure:"device" yaml:"device" validate:"required"`
	Smoothing        SmoothingConfig         `mapstructure:"smoothing" yaml:"smoothing"`
	BlackBorder      BlackBorderConfig       `mapstructure:"black_border" yaml:"black_border"`
	ColorAdjustments []ColorAdjustmentConfig `mapstructure:"color_adjustments" yaml:"color_adjustments" validate:"dive"`
}

// LedConfig is one LED's scan rectangle in the unit square.
type LedConfig struct {
	HMin float64 `mapstructure:"hmin" yaml:"hmin" validate:"gte=0,lte=1"`
	HMax float64 `mapstructure:"hmax" yaml:"hmax" validate:"gte=0,lte=1,gtefield=HMin"`
	VMin float64 `mapstructure:"vmin" yaml:"vmin" validate:"gte=0,lte=1"`
	VMax float64 `mapstructure:"vmax" yaml:"vmax" validate:"gte=0,lte=1,gtefield=VMin"`
}

// DeviceConfig selects the output driver and its refresh behavior.
type DeviceConfig struct {
	Driver           string `mapstructure:"driver" yaml:"driver" validate:"required,oneof=spi udp ws"`
	HardwareLEDCount int    `mapstructure:"hardware_led_count" yaml:"hardware_led_count" validate:"required,min=1"`
	LatencyMs        int    `mapstructure:"latency_ms" yaml:"latency_ms" validate:"gte=0"`
	RewriteMs        int    `mapstructure:"rewrite_ms" yaml:"rewrite_ms" validate:"gte=0"`
	LatchUs          int    `mapstructure:"latch_us" yaml:"latch_us" validate:"gte=0"`

	// SPI addressing, only used when Driver == "spi".
	SPIBus        int `mapstructure:"spi_bus" yaml:"spi_bus"`
	SPIDevice     int `mapstructure:"spi_device" yaml:"spi_device"`
	SPISpeedHz    int `mapstructure:"spi_speed_hz" yaml:"spi_speed_hz"`
	SPIBrightness int `mapstructure:"spi_brightness" yaml:"spi_brightness" validate:"gte=0,lte=31"`

	// UDPAddr, only used when Driver == "udp".
	UDPAddr string `mapstructure:"udp_addr" yaml:"udp_addr" validate:"required_if=Driver udp"`

	// WSURL, only used when Driver == "ws".
	WSURL string `mapstructure:"ws_url" yaml:"ws_url" validate:"required_if=Driver ws"`
}

// SmoothingConfig controls the linear color smoother.
type SmoothingConfig struct {
	Enable          bool    `mapstructure:"enable" yaml:"enable"`
	TimeMs          int     `mapstructure:"time_ms" yaml:"time_ms" validate:"gte=0"`
	UpdateFrequency float64 `mapstructure:"update_frequency" yaml:"update_frequency" validate:"gte=0"`
}

// BlackBorderConfig controls the black-border detector.
type BlackBorderConfig struct {
	Enabled      bool    `mapstructure:"enabled" yaml:"enabled"`
	ThresholdPct float64 `mapstructure:"threshold_pct" yaml:"threshold_pct" validate:"gte=0,lte=100"`
}

// ColorAdjustmentConfig assigns a colorpipeline.Adjustment to a named group of
// LEDs ("*" for all).
type ColorAdjustmentConfig struct {
	LEDs       string            `mapstructure:"leds" yaml:"leds" validate:"required"`
	Gamma      GammaConfig       `mapstructure:"gamma" yaml:"gamma"`
	Brightness float64           `mapstructure:"brightness" yaml:"brightness" validate:"gte=0,lte=100"`
	Backlight  BacklightConfig   `mapstructure:"backlight" yaml:"backlight"`
	Corners    CornerGainsConfig `mapstructure:"corners" yaml:"corners"`
}

// GammaConfig is the per-channel gamma exponent.
type GammaConfig struct {
	R float64 `mapstructure:"r" yaml:"r" validate:"gt=0"`
	G float64 `mapstructure:"g" yaml:"g" validate:"gt=0"`
	B float64 `mapstructure:"b" yaml:"b" validate:"gt=0"`
}

// BacklightConfig controls the floor-substitution boost applied to
// otherwise near-black frames.
type BacklightConfig struct {
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
	Threshold float64 `mapstructure:"threshold" yaml:"threshold" validate:"gte=0,lte=1"`
	Colored   bool    `mapstructure:"colored" yaml:"colored"`
}

// CornerGainConfig is one RGB-cube corner's gain vector, each channel
// in 0..1.
type CornerGainConfig struct {
	R float64 `mapstructure:"r" yaml:"r" validate:"gte=0,lte=1"`
	G float64 `mapstructure:"g" yaml:"g" validate:"gte=0,lte=1"`
	B float64 `mapstructure:"b" yaml:"b" validate:"gte=0,lte=1"`
}

// CornerGainsConfig overrides individual RGB-cube corner gains; a nil
// corner keeps its neutral (pure-color) default.
type CornerGainsConfig struct {
	White   *CornerGainConfig `mapstructure:"white" yaml:"white"`
	Red     *CornerGainConfig `mapstructure:"red" yaml:"red"`
	Green   *CornerGainConfig `mapstructure:"green" yaml:"green"`
	Blue    *CornerGainConfig `mapstructure:"blue" yaml:"blue"`
	Cyan    *CornerGainConfig `mapstructure:"cyan" yaml:"cyan"`
	Magenta *CornerGainConfig `mapstructure:"magenta" yaml:"magenta"`
	Yellow  *CornerGainConfig `mapstructure:"yellow" yaml:"yellow"`
}

// Store loads RootConfig from file and environment, validates it, and
// keeps an atomically-swapped snapshot current across config file
// changes (fsnotify, wired through Viper's WatchConfig).
type Store struct {
	v        *viper.Viper
	validate *validator.Validate
	log      *zap.Logger
	current  atomic.Pointer[RootConfig]
}

// NewStore loads configPath (or the default search locations if empty),
// validates it, and starts watching it for changes.
func NewStore(configPath string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	s := &Store{
		v:        viper.New(),
		validate: validator.New(),
		log:      log,
	}
	setDefaults(s.v)

	if configPath != "" {
		s.v.SetConfigFile(configPath)
	} else {
		s.v.SetConfigName("config")
		s.v.SetConfigType("yaml")
		s.v.AddConfigPath("./configs")
		s.v.AddConfigPath(".")
		s.v.AddConfigPath(getConfigDir())
	}

	s.v.SetEnvPrefix("AMBIENTLED")
	s.v.AutomaticEnv()

	if err := s.load(); err != nil {
		return nil, err
	}

	s.v.OnConfigChange(func(e fsnotify.Event) {
		s.log.Info("config file changed, reloading", zap.String("file", e.Name))
		if err := s.load(); err != nil {
			s.log.Warn("config reload failed, keeping previous snapshot", zap.Error(err))
		}
	})
	s.v.WatchConfig()

	return s, nil
}

func (s *Store) load() error {
	if err := s.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; using defaults.
	}

	var cfg RootConfig
	if err := s.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := s.validate.Struct(&cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	s.current.Store(&cfg)
	return nil
}

// Snapshot returns the current validated configuration. Safe for
// concurrent use; the returned pointer is never mutated in place.
func (s *Store) Snapshot() *RootConfig {
	return s.current.Load()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_addr", "0.0.0.0:8090")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dir", "./logs")
	v.SetDefault("effects.directory", "./effects")
}

func getConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".ambientled")
}
