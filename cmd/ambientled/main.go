// Command ambientled is the process entrypoint: it loads configuration,
// builds one pipeline per configured LED instance, starts their device
// schedulers and the control/status HTTP API, and shuts everything down
// cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/edgeflow/ambientled/internal/api"
	"github.com/edgeflow/ambientled/internal/config"
	"github.com/edgeflow/ambientled/internal/drivers/apaspi"
	"github.com/edgeflow/ambientled/internal/drivers/udpframe"
	"github.com/edgeflow/ambientled/internal/drivers/wsframe"
	"github.com/edgeflow/ambientled/internal/effect"
	"github.com/edgeflow/ambientled/internal/hal"
	"github.com/edgeflow/ambientled/internal/instance"
	"github.com/edgeflow/ambientled/internal/logger"
	"github.com/edgeflow/ambientled/internal/metrics"
	"github.com/edgeflow/ambientled/internal/registry"
	"github.com/edgeflow/ambientled/internal/scheduler"
	"github.com/edgeflow/ambientled/internal/wire/boblight"
	"github.com/edgeflow/ambientled/internal/wire/flat"
	"github.com/edgeflow/ambientled/internal/wire/jsonrpc"
	"github.com/edgeflow/ambientled/internal/wire/proto"
)

// Version is set at release time; left as a dev default otherwise.
var Version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	bootLog, _ := zap.NewProduction()
	store, err := config.NewStore(*configPath, bootLog)
	if err != nil {
		bootLog.Fatal("failed to load configuration", zap.Error(err))
	}
	cfg := store.Snapshot()

	if err := logger.Init(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     "console",
		LogDir:     cfg.Logging.Dir,
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 7,
		Compress:   true,
	}); err != nil {
		bootLog.Fatal("failed to initialize logger", zap.Error(err))
	}
	log := logger.Get()
	defer logger.Sync()

	log.Info("ambientled starting", zap.String("version", Version))

	effectStore, err := effect.NewStore(cfg.Effects.Directory)
	if err != nil {
		log.Fatal("failed to load effect definitions", zap.Error(err))
	}

	reg := registry.New()
	procMetrics := metrics.NewMetrics()
	srv := api.NewServer(procMetrics, cfg.Server.AuthSecret, log)

	var piHAL *hal.RaspberryPiHAL
	var closers []func() error

	instances := make(map[string]*instance.Instance, len(cfg.Instances))
	for name, icfg := range cfg.Instances {
		driver, closeFn, err := buildDriver(icfg.Device, &piHAL)
		if err != nil {
			log.Fatal("failed to build device driver", zap.String("instance", name), zap.Error(err))
		}
		closers = append(closers, closeFn)

		inst := instance.New(instance.FromConfig(name, icfg), driver, effectStore, reg, log)
		instances[name] = inst
		srv.AddInstance(name, inst)
		procMetrics.IncrementInstances()
	}

	wireInst := pickWireInstance(instances, cfg.Server.WireInstance)
	var wireListeners []net.Listener
	if wireInst != nil {
		jsonrpc.New(reg, wireInst.Muxer, log).Register(srv.App())

		if cfg.Server.ProtoAddr != "" {
			ln, err := net.Listen("tcp", cfg.Server.ProtoAddr)
			if err != nil {
				log.Fatal("failed to start protobuf server", zap.Error(err))
			}
			wireListeners = append(wireListeners, ln)
			go func() {
				log.Info("protobuf server listening", zap.String("addr", cfg.Server.ProtoAddr))
				if err := proto.New(reg, wireInst.Muxer, log).Serve(ln); err != nil {
					log.Warn("protobuf server stopped", zap.Error(err))
				}
			}()
		}

		if cfg.Server.FlatAddr != "" {
			ln, err := net.Listen("tcp", cfg.Server.FlatAddr)
			if err != nil {
				log.Fatal("failed to start flatbuffers server", zap.Error(err))
			}
			wireListeners = append(wireListeners, ln)
			go func() {
				log.Info("flatbuffers server listening", zap.String("addr", cfg.Server.FlatAddr))
				if err := flat.New(reg, wireInst.Muxer, log).Serve(ln); err != nil {
					log.Warn("flatbuffers server stopped", zap.Error(err))
				}
			}()
		}

		if cfg.Server.BoblightAddr != "" {
			ln, err := net.Listen("tcp", cfg.Server.BoblightAddr)
			if err != nil {
				log.Fatal("failed to start boblight server", zap.Error(err))
			}
			wireListeners = append(wireListeners, ln)
			go func() {
				log.Info("boblight server listening", zap.String("addr", cfg.Server.BoblightAddr))
				if err := boblight.New(reg, wireInst.Muxer, boblightLeds(wireInst), log).Serve(ln); err != nil {
					log.Warn("boblight server stopped", zap.Error(err))
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var influxExporter *metrics.InfluxExporter
	if cfg.Server.InfluxAddr != "" {
		influxExporter = metrics.NewInfluxExporter(cfg.Server.InfluxAddr, cfg.Server.InfluxToken, cfg.Server.InfluxOrg, cfg.Server.InfluxBucket, log)
		go influxExporter.Run(ctx, procMetrics, 10*time.Second)
	}

	var wg sync.WaitGroup
	for name, inst := range instances {
		wg.Add(1)
		go func(name string, inst *instance.Instance) {
			defer wg.Done()
			log.Info("instance running", zap.String("instance", name))
			inst.Run(ctx)
		}(name, inst)
	}

	go func() {
		log.Info("control API listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.Listen(cfg.Server.HTTPAddr); err != nil {
			log.Warn("control API stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	if err := srv.Shutdown(); err != nil {
		log.Warn("control API shutdown error", zap.Error(err))
	}
	for _, ln := range wireListeners {
		if err := ln.Close(); err != nil {
			log.Warn("wire server listener close error", zap.Error(err))
		}
	}
	if influxExporter != nil {
		influxExporter.Close()
	}

	for _, inst := range instances {
		inst.Close()
	}
	wg.Wait()

	for _, cl := range closers {
		if cl == nil {
			continue
		}
		if err := cl(); err != nil {
			log.Warn("driver close error", zap.Error(err))
		}
	}
	if piHAL != nil {
		if err := piHAL.Close(); err != nil {
			log.Warn("HAL close error", zap.Error(err))
		}
	}

	log.Info("ambientled stopped")
}

// buildDriver constructs the scheduler.Driver named by dc.Driver,
// lazily initializing the shared RaspberryPiHAL the first time an SPI
// device is requested.
func buildDriver(dc config.DeviceConfig, piHAL **hal.RaspberryPiHAL) (scheduler.Driver, func() error, error) {
	switch dc.Driver {
	case "spi":
		if *piHAL == nil {
			h, err := hal.NewRaspberryPiHAL()
			if err != nil {
				return nil, nil, fmt.Errorf("hal: %w", err)
			}
			*piHAL = h
		}
		acfg := apaspi.DefaultConfig()
		acfg.Bus = dc.SPIBus
		acfg.Device = dc.SPIDevice
		if dc.SPISpeedHz > 0 {
			acfg.SpeedHz = dc.SPISpeedHz
		}
		if dc.SPIBrightness > 0 {
			acfg.GlobalBrightness = uint8(dc.SPIBrightness)
		}
		d, err := apaspi.New(acfg, (*piHAL).SPI())
		if err != nil {
			return nil, nil, err
		}
		return d, d.Close, nil

	case "udp":
		d, err := udpframe.New(udpframe.Config{Addr: dc.UDPAddr})
		if err != nil {
			return nil, nil, err
		}
		return d, d.Close, nil

	case "ws":
		wcfg := wsframe.DefaultConfig()
		wcfg.URL = dc.WSURL
		d, err := wsframe.New(wcfg)
		if err != nil {
			return nil, nil, err
		}
		return d, d.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown device driver %q", dc.Driver)
	}
}

// pickWireInstance resolves the instance the wire-protocol servers feed:
// the named instance if configured, otherwise the lexicographically
// first instance name. Returns nil if there are no instances at all.
func pickWireInstance(instances map[string]*instance.Instance, name string) *instance.Instance {
	if name != "" {
		return instances[name]
	}
	if len(instances) == 0 {
		return nil
	}
	names := make([]string, 0, len(instances))
	for n := range instances {
		names = append(names, n)
	}
	sort.Strings(names)
	return instances[names[0]]
}

// boblightLeds translates an instance's reduced LED layout into the
// boblight server's scan-rectangle reply shape.
func boblightLeds(inst *instance.Instance) []boblight.Led {
	leds := inst.Leds()
	out := make([]boblight.Led, len(leds))
	for i, l := range leds {
		out[i] = boblight.Led{HMin: l.HMin, HMax: l.HMax, VMin: l.VMin, VMax: l.VMax}
	}
	return out
}
