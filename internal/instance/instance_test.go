package instance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/edgeflow/ambientled/internal/border"
	"github.com/edgeflow/ambientled/internal/colorutil"
	"github.com/edgeflow/ambientled/internal/effect"
	"github.com/edgeflow/ambientled/internal/message"
	"github.com/edgeflow/ambientled/internal/reducer"
	"github.com/edgeflow/ambientled/internal/registry"
	"github.com/edgeflow/ambientled/internal/scheduler"
	"github.com/edgeflow/ambientled/internal/smoother"
)

type recordingDriver struct {
	mu     sync.Mutex
	frames [][]colorutil.Color
}

func (d *recordingDriver) SetLEDData(ctx context.Context, frame []colorutil.Color) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]colorutil.Color, len(frame))
	copy(cp, frame)
	d.frames = append(d.frames, cp)
	return nil
}

func (d *recordingDriver) Update(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *recordingDriver) last() []colorutil.Color {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.frames) == 0 {
		return nil
	}
	return d.frames[len(d.frames)-1]
}

func newTestInstance(t *testing.T, driver scheduler.Driver) *Instance {
	t.Helper()
	store, err := effect.NewStore("")
	if err != nil {
		t.Fatalf("effect.NewStore: %v", err)
	}
	cfg := Config{
		Name:      "test",
		LEDs:      []reducer.Led{{HMin: 0, HMax: 1, VMin: 0, VMax: 1}},
		Border:    border.Config{Enabled: false},
		ColorLEDs: 1,
		Smoothing: smoother.Config{Enabled: false},
		Scheduler: scheduler.Config{HardwareLEDCount: 1},
	}
	return New(cfg, driver, store, registry.New(), nil)
}

func TestInstanceConsumesSolidColorToTheDriver(t *testing.T) {
	driver := &recordingDriver{}
	inst := newTestInstance(t, driver)

	ctx, cancel := context.WithCancel(context.Background())
	go inst.Run(ctx)
	defer func() {
		cancel()
		inst.Close()
	}()

	inst.Muxer.Publish(message.Input{Data: message.SolidColor{Priority: 10, Color: colorutil.Color{R: 10, G: 20, B: 30}}})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if last := driver.last(); len(last) == 1 && last[0] == (colorutil.Color{R: 10, G: 20, B: 30}) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected the driver to eventually receive the published solid color, got %+v", driver.last())
}

func TestInstanceConsumesImageThroughReducerAndPipeline(t *testing.T) {
	driver := &recordingDriver{}
	inst := newTestInstance(t, driver)

	ctx, cancel := context.WithCancel(context.Background())
	go inst.Run(ctx)
	defer func() {
		cancel()
		inst.Close()
	}()

	pix := make([]byte, 4*4*3)
	for i := 0; i < 4*4; i++ {
		pix[i*3] = 90
		pix[i*3+1] = 60
		pix[i*3+2] = 30
	}
	im := &message.Image{Width: 4, Height: 4, Pix: pix}
	inst.Muxer.Publish(message.Input{Data: message.ImageInput{Priority: 5, Image: im}})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if last := driver.last(); len(last) == 1 && last[0] == (colorutil.Color{R: 90, G: 60, B: 30}) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected the reduced+adjusted image color to reach the driver, got %+v", driver.last())
}
