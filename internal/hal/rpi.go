package hal

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

type RaspberryPiHAL struct {
	mu         sync.Mutex
	pins       map[int]gpio.PinIO
	pwmPins    map[int]*PWMPin
	i2cBuses   map[string]i2c.BusCloser
	spiDevices map[string]spi.PortCloser
}

type PWMPin struct {
	pin       gpio.PinIO
	frequency int
	dutyCycle int
}

func NewRaspberryPiHAL() (*RaspberryPiHAL, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph.io: %w", err)
	}

	return &RaspberryPiHAL{
		pins:       make(map[int]gpio.PinIO),
		pwmPins:    make(map[int]*PWMPin),
		i2cBuses:   make(map[string]i2c.BusCloser),
		spiDevices: make(map[string]spi.PortCloser),
	}, nil
}

// InitGPIO is a no-op: periph.io's host.Init (run in NewRaspberryPiHAL)
// already registers every board pin in gpioreg.
func (h *RaspberryPiHAL) InitGPIO() error {
	return nil
}

func (h *RaspberryPiHAL) SetPinMode(pin int, mode PinMode) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", pin))
	if p == nil {
		return fmt.Errorf("pin %d not found", pin)
	}
	h.pins[pin] = p

	switch mode {
	case Input:
		if err := p.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			return fmt.Errorf("pin %d: %w", pin, err)
		}
	case Output:
		if err := p.Out(gpio.Low); err != nil {
			return fmt.Errorf("pin %d: %w", pin, err)
		}
	case PWM:
		if err := p.Out(gpio.Low); err != nil {
			return fmt.Errorf("pin %d: %w", pin, err)
		}
		h.pwmPins[pin] = &PWMPin{
			pin:       p,
			frequency: 1000,
			dutyCycle: 0,
		}
	default:
		return fmt.Errorf("unsupported pin mode: %v", mode)
	}

	return nil
}

func (h *RaspberryPiHAL) DigitalWrite(pin int, value bool) error {
	h.mu.Lock()
	p, ok := h.pins[pin]
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("pin %d not initialized", pin)
	}

	return p.Out(gpio.Level(value))
}

func (h *RaspberryPiHAL) DigitalRead(pin int) (bool, error) {
	h.mu.Lock()
	p, ok := h.pins[pin]
	h.mu.Unlock()

	if !ok {
		return false, fmt.Errorf("pin %d not initialized", pin)
	}

	return bool(p.Read()), nil
}

func (h *RaspberryPiHAL) PWMWrite(pin int, dutyCycle int) error {
	h.mu.Lock()
	pwm, ok := h.pwmPins[pin]
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("pin %d not configured for PWM", pin)
	}

	pwm.dutyCycle = dutyCycle
	duty := gpio.Duty(dutyCycle) * gpio.DutyMax / 255
	return pwm.pin.PWM(duty, physic.Frequency(pwm.frequency)*physic.Hertz)
}

func (h *RaspberryPiHAL) PWMSetFrequency(pin int, frequency int) error {
	h.mu.Lock()
	pwm, ok := h.pwmPins[pin]
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("pin %d not configured for PWM", pin)
	}

	pwm.frequency = frequency
	duty := gpio.Duty(pwm.dutyCycle) * gpio.DutyMax / 255
	return pwm.pin.PWM(duty, physic.Frequency(frequency)*physic.Hertz)
}

func (h *RaspberryPiHAL) I2COpen(bus string) (I2CBus, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existingBus, ok := h.i2cBuses[bus]; ok {
		return &I2CBusWrapper{bus: existingBus}, nil
	}

	i2cBus, err := i2creg.Open(bus)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", bus, err)
	}

	h.i2cBuses[bus] = i2cBus
	return &I2CBusWrapper{bus: i2cBus}, nil
}

func (h *RaspberryPiHAL) SPIOpen(bus int, device int) (SPIDevice, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := fmt.Sprintf("%d-%d", bus, device)

	if existingDev, ok := h.spiDevices[key]; ok {
		conn, err := existingDev.Connect(physic.MegaHertz, spi.Mode0, 8)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SPI device: %w", err)
		}
		return &SPIDeviceWrapper{dev: conn}, nil
	}

	spiPort, err := spireg.Open(fmt.Sprintf("SPI%d.%d", bus, device))
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI device: %w", err)
	}

	h.spiDevices[key] = spiPort
	conn, err := spiPort.Connect(physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		spiPort.Close()
		return nil, fmt.Errorf("failed to connect to SPI device: %w", err)
	}
	return &SPIDeviceWrapper{dev: conn}, nil
}

func (h *RaspberryPiHAL) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, bus := range h.i2cBuses {
		bus.Close()
	}

	for _, dev := range h.spiDevices {
		dev.Close()
	}

	return nil
}

// SPI returns an SPIProvider bound to h: Open resolves a bus/device pair
// through h.SPIOpen (speed and mode are fixed at periph.io Connect time,
// so SetSpeed/SetMode/SetBitsPerWord are accepted but not re-applied).
func (h *RaspberryPiHAL) SPI() SPIProvider {
	return &spiProvider{hal: h}
}

type spiProvider struct {
	hal *RaspberryPiHAL
	dev SPIDevice
}

func (p *spiProvider) Open(bus, device int) error {
	dev, err := p.hal.SPIOpen(bus, device)
	if err != nil {
		return err
	}
	p.dev = dev
	return nil
}

func (p *spiProvider) Transfer(data []byte) ([]byte, error) {
	if p.dev == nil {
		return nil, fmt.Errorf("spi: device not opened")
	}
	return p.dev.Transfer(data)
}

func (p *spiProvider) SetSpeed(speed int) error       { return nil }
func (p *spiProvider) SetMode(mode byte) error        { return nil }
func (p *spiProvider) SetBitsPerWord(bits byte) error { return nil }

func (p *spiProvider) Close() error {
	if p.dev == nil {
		return nil
	}
	return p.dev.Close()
}

type I2CBusWrapper struct {
	bus i2c.Bus
}

func (w *I2CBusWrapper) Write(addr uint16, data []byte) error {
	return w.bus.Tx(addr, data, nil)
}

func (w *I2CBusWrapper) Read(addr uint16, data []byte) error {
	return w.bus.Tx(addr, nil, data)
}

func (w *I2CBusWrapper) WriteRead(addr uint16, write []byte, read []byte) error {
	return w.bus.Tx(addr, write, read)
}

func (w *I2CBusWrapper) Close() error {
	return nil
}

type SPIDeviceWrapper struct {
	dev spi.Conn
}

func (w *SPIDeviceWrapper) Transfer(data []byte) ([]byte, error) {
	read := make([]byte, len(data))
	if err := w.dev.Tx(data, read); err != nil {
		return nil, err
	}
	return read, nil
}

func (w *SPIDeviceWrapper) Close() error {
	return nil
}
