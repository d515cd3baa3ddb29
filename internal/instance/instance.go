// Package instance wires one LED instance's full pipeline: reducer,
// border detector, color pipeline, smoother and scheduler, and routes
// muxer effect-launch commands into the effect runtime.
package instance

import (
	"context"

	"go.uber.org/zap"

	"github.com/edgeflow/ambientled/internal/border"
	"github.com/edgeflow/ambientled/internal/colorpipeline"
	"github.com/edgeflow/ambientled/internal/colorutil"
	"github.com/edgeflow/ambientled/internal/effect"
	"github.com/edgeflow/ambientled/internal/message"
	"github.com/edgeflow/ambientled/internal/muxer"
	"github.com/edgeflow/ambientled/internal/reducer"
	"github.com/edgeflow/ambientled/internal/registry"
	"github.com/edgeflow/ambientled/internal/scheduler"
	"github.com/edgeflow/ambientled/internal/smoother"
)

// Config bundles the per-instance configuration needed to build the
// pipeline stages.
type Config struct {
	Name        string
	LEDs        []reducer.Led
	Border      border.Config
	ColorLEDs   int
	Adjustments map[int]colorpipeline.Adjustment
	Smoothing   smoother.Config
	Scheduler   scheduler.Config
}

// Instance owns one named LED output's full runtime: its muxer, the
// reduce/correct/smooth pipeline, and the device scheduler.
type Instance struct {
	Name string

	Muxer *muxer.Muxer

	reducer   *reducer.Reducer
	detector  *border.Detector
	pipeline  *colorpipeline.Pipeline
	smoother  *smoother.Smoother
	scheduler *scheduler.Scheduler
	effects   *effect.Runtime

	log *zap.Logger

	cancel context.CancelFunc
}

// New builds an instance's pipeline and returns it not yet running;
// call Run to start it. The muxer is built first so the effect runtime
// constructed on top of it (effectStore and reg are shared process-wide;
// the muxer sink is this instance's own) publishes into the same muxer
// the instance consumes from.
func New(cfg Config, driver scheduler.Driver, effectStore *effect.Store, reg *registry.Registry, log *zap.Logger) *Instance {
	if log == nil {
		log = zap.NewNop()
	}
	m := muxer.New(log)
	instLog := log.With(zap.String("instance", cfg.Name))
	return &Instance{
		Name:      cfg.Name,
		Muxer:     m,
		reducer:   reducer.New(cfg.LEDs),
		detector:  border.New(cfg.Border),
		pipeline:  colorpipeline.New(cfg.ColorLEDs, cfg.Adjustments),
		smoother:  smoother.New(cfg.Smoothing, cfg.ColorLEDs),
		scheduler: scheduler.New(cfg.Scheduler, driver, log),
		effects:   effect.New(effectStore, reg, m, instLog),
		log:       instLog,
	}
}

// Effects returns the instance's effect runtime, for the control API to
// launch and abort effects against.
func (inst *Instance) Effects() *effect.Runtime { return inst.effects }

// SchedulerStats returns the instance's device scheduler write/skip/error
// counters, for the metrics endpoint.
func (inst *Instance) SchedulerStats() scheduler.Stats { return inst.scheduler.Snapshot() }

// Run starts the instance's muxer-consumer, effect-launch router, and
// scheduler goroutines. It returns once ctx is cancelled or Close is
// called.
func (inst *Instance) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	inst.cancel = cancel

	muxed, unsubMux := inst.Muxer.Subscribe()
	defer unsubMux()

	smoothOut, unsubSmooth := inst.smoother.Output()
	defer unsubSmooth()

	go inst.scheduler.Run(ctx, smoothOut)
	go inst.routeLaunches(ctx)
	go inst.logCompletions(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-muxed:
			if !ok {
				return
			}
			inst.consume(m)
		}
	}
}

// Close stops the instance's goroutines and releases its muxer and
// smoother resources.
func (inst *Instance) Close() {
	if inst.cancel != nil {
		inst.cancel()
	}
	inst.Muxer.Close()
	inst.smoother.Close()
}

// consume turns one muxed winner state into a target frame for the
// smoother, applying the reducer/border/color-pipeline stages for image
// winners and the color pipeline alone for solid/per-LED winners.
func (inst *Instance) consume(m muxer.Muxed) {
	var raw []colorutil.Color16

	switch v := m.Data.(type) {
	case muxer.SolidColor:
		raw = fillColor(v.Color, inst.ledCount())
	case muxer.LedColors:
		raw = make([]colorutil.Color16, len(v.Colors))
		for i, c := range v.Colors {
			raw[i] = c.To16()
		}
	case muxer.Image:
		crop := inst.detector.Observe(v.Image)
		raw = inst.reducer.Reduce(v.Image, crop)
	default:
		return
	}

	adjusted := inst.pipeline.Apply(raw)
	inst.smoother.Submit(adjusted, m.Time)
}

func (inst *Instance) ledCount() int {
	return inst.reducer.Count()
}

// LedCount returns the instance's reduced LED count, for the control
// API's effect-launch handler.
func (inst *Instance) LedCount() int { return inst.ledCount() }

// Leds returns the instance's ordered LED scan-rectangle layout, for
// wire protocols that report it to clients (boblight's "get lights").
func (inst *Instance) Leds() []reducer.Led { return inst.reducer.Leds() }

func fillColor(c colorutil.Color, n int) []colorutil.Color16 {
	c16 := c.To16()
	out := make([]colorutil.Color16, n)
	for i := range out {
		out[i] = c16
	}
	return out
}

// routeLaunches forwards the muxer's effect-launch commands to the
// effect runtime. When a launch fails it logs the error and publishes a
// Clear on the launch's priority; completions are handled by
// logCompletions.
func (inst *Instance) routeLaunches(ctx context.Context) {
	launches := inst.Muxer.Launches()
	for {
		select {
		case <-ctx.Done():
			return
		case l, ok := <-launches:
			if !ok {
				return
			}
			if _, err := inst.effects.Launch(l.Name, l.Args, l.Duration, l.Priority, inst.ledCount()); err != nil {
				inst.log.Warn("effect launch failed", zap.String("effect", l.Name), zap.Error(err))
				inst.Muxer.Publish(message.Input{Data: message.Clear{Priority: l.Priority}})
			}
		}
	}
}

// logCompletions reports EffectCompleted: the source drop on script
// return already issues the usual priority clear, so this only needs to
// surface the outcome for observability.
func (inst *Instance) logCompletions(ctx context.Context) {
	completed := inst.effects.Completed()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-completed:
			if !ok {
				return
			}
			if ev.Err != nil {
				inst.log.Warn("effect completed with error", zap.String("effect", ev.Name), zap.Error(ev.Err))
			} else {
				inst.log.Info("effect completed", zap.String("effect", ev.Name))
			}
		}
	}
}
