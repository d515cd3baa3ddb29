// Package udpframe drives LED devices that accept raw UDP datagrams: a
// one-byte monotonically increasing sequence number followed by the
// tightly packed RGB triples for every LED.
package udpframe

import (
	"context"
	"net"
	"time"

	"github.com/edgeflow/ambientled/internal/colorutil"
)

// Config addresses the target device.
type Config struct {
	Addr            string // host:port
	RefreshInterval time.Duration
}

// Driver implements scheduler.Driver over a UDP socket.
type Driver struct {
	cfg  Config
	conn *net.UDPConn
	seq  byte
}

// New resolves addr and opens a connected UDP socket dialed to it.
func New(cfg Config) (*Driver, error) {
	raddr, err := net.ResolveUDPAddr("udp", cfg.Addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}
	return &Driver{cfg: cfg, conn: conn}, nil
}

// SetLEDData writes one datagram: sequence byte then RGB triples.
func (d *Driver) SetLEDData(ctx context.Context, colors []colorutil.Color) error {
	buf := make([]byte, 1+len(colors)*3)
	buf[0] = d.seq
	d.seq++
	for i, c := range colors {
		off := 1 + i*3
		buf[off] = c.R
		buf[off+1] = c.G
		buf[off+2] = c.B
	}
	_, err := d.conn.Write(buf)
	return err
}

// Update has no device-originated events for a fire-and-forget UDP
// sink; it just waits out RefreshInterval (or ctx) like a no-op timer.
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

// Close closes the underlying socket.
func (d *Driver) Close() error {
	return d.conn.Close()
}
