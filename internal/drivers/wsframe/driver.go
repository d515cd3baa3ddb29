// Package wsframe drives LED devices reachable as a websocket server:
// each frame is sent as a JSON array of [r,g,b] triples.
package wsframe

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/edgeflow/ambientled/internal/colorutil"
)

// Config addresses the target websocket endpoint.
type Config struct {
	URL           string
	WriteTimeout  time.Duration
	PingInterval  time.Duration
}

// DefaultConfig picks conservative timeouts.
func DefaultConfig() Config {
	return Config{WriteTimeout: 2 * time.Second, PingInterval: 30 * time.Second}
}

// Driver implements scheduler.Driver over a client websocket connection.
type Driver struct {
	cfg  Config
	conn *websocket.Conn
}

// New dials url and returns a connected driver.
func New(cfg Config) (*Driver, error) {
	conn, _, err := websocket.DefaultDialer.Dial(cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	return &Driver{cfg: cfg, conn: conn}, nil
}

// SetLEDData marshals colors as a JSON array of [r,g,b] triples and
// writes it as one text frame.
func (d *Driver) SetLEDData(ctx context.Context, colors []colorutil.Color) error {
	triples := make([][3]uint8, len(colors))
	for i, c := range colors {
		triples[i] = [3]uint8{c.R, c.G, c.B}
	}
	payload, err := json.Marshal(triples)
	if err != nil {
		return err
	}
	if d.cfg.WriteTimeout > 0 {
		if err := d.conn.SetWriteDeadline(time.Now().Add(d.cfg.WriteTimeout)); err != nil {
			return err
		}
	}
	return d.conn.WriteMessage(websocket.TextMessage, payload)
}

// Update pings the connection on PingInterval, surfacing dial-level
// failures to the scheduler as the device's own periodic event.
func (d *Driver) Update(ctx context.Context) error {
	interval := d.cfg.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	select {
	case <-time.After(interval):
		return d.conn.WriteMessage(websocket.PingMessage, nil)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the websocket connection.
func (d *Driver) Close() error {
	return d.conn.Close()
}
