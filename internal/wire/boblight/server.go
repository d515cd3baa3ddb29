// Package boblight implements the line-oriented boblightd text protocol:
// "hello", "ping", "get version|lights", "set light N color rgb R G B",
// "set priority P", and "sync" accumulate an in-memory per-LED color
// vector and flush it as a single LedColors publish on "sync" or when
// the last LED is written.
package boblight

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/edgeflow/ambientled/internal/colorutil"
	"github.com/edgeflow/ambientled/internal/message"
	"github.com/edgeflow/ambientled/internal/registry"
)

// defaultPriority matches boblight clients that never send "set
// priority": valid priorities for this protocol are [128, 254).
const defaultPriority = 128

// Server accepts boblight text-protocol TCP connections.
type Server struct {
	reg      *registry.Registry
	sink     registry.Sink
	ledCount int
	leds     []Led
	log      *zap.Logger
}

// Led describes one LED's scan rectangle as percentages, for the "get
// lights" reply.
type Led struct {
	HMin, HMax, VMin, VMax float64
}

// New creates a Server publishing accumulated LED colors to sink
// through reg. leds describes the instance's LED layout for "get
// lights" replies.
func New(reg *registry.Registry, sink registry.Sink, leds []Led, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{reg: reg, sink: sink, ledCount: len(leds), leds: leds, log: log}
}

// Serve accepts connections on ln until it returns an error.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

type connState struct {
	handle   *registry.Handle
	priority int
	colors   []colorutil.Color
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	h := s.reg.Register(s.sink, "boblight:"+conn.RemoteAddr().String(), defaultPriority, true)
	defer h.Close()

	st := &connState{handle: h, priority: defaultPriority, colors: make([]colorutil.Color, s.ledCount)}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reply, err := s.handleLine(st, line)
		if err != nil {
			s.log.Warn("boblight: request failed", zap.String("line", line), zap.Error(err))
			continue
		}
		if reply != "" {
			if _, err := conn.Write([]byte(reply + "\n")); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleLine(st *connState, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty request")
	}

	switch fields[0] {
	case "hello":
		return "hello", nil
	case "ping":
		return "ping 1", nil
	case "get":
		if len(fields) < 2 {
			return "", fmt.Errorf("get requires an argument")
		}
		switch fields[1] {
		case "version":
			return "version 5", nil
		case "lights":
			return s.lightsReply(), nil
		default:
			return "", fmt.Errorf("unknown get argument %q", fields[1])
		}
	case "set":
		if len(fields) < 2 {
			return "", fmt.Errorf("set requires an argument")
		}
		return "", s.handleSet(st, fields[1:])
	case "sync":
		s.sync(st)
		return "", nil
	default:
		return "", fmt.Errorf("unknown request %q", fields[0])
	}
}

func (s *Server) handleSet(st *connState, args []string) error {
	switch args[0] {
	case "light":
		if len(args) < 2 {
			return fmt.Errorf("set light requires an index")
		}
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid light index %q", args[1])
		}
		return s.handleLightParam(st, index, args[2:])
	case "priority":
		if len(args) < 2 {
			return fmt.Errorf("set priority requires a value")
		}
		p, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid priority %q", args[1])
		}
		st.priority = clampPriority(p)
		return nil
	default:
		return fmt.Errorf("unknown set argument %q", args[0])
	}
}

func (s *Server) handleLightParam(st *connState, index int, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("light param requires data")
	}
	switch args[0] {
	case "color":
		if len(args) < 5 || args[1] != "rgb" {
			return fmt.Errorf("color requires \"rgb R G B\"")
		}
		r, err1 := strconv.Atoi(args[2])
		g, err2 := strconv.Atoi(args[3])
		b, err3 := strconv.Atoi(args[4])
		if err1 != nil || err2 != nil || err3 != nil {
			return fmt.Errorf("invalid color components")
		}
		if index < 0 || index >= len(st.colors) {
			return nil
		}
		st.colors[index] = colorutil.Color{R: clamp8(r), G: clamp8(g), B: clamp8(b)}
		if index == len(st.colors)-1 {
			s.sync(st)
		}
		return nil
	case "speed", "interpolation", "use", "singlechange":
		return nil
	default:
		return fmt.Errorf("unknown light param %q", args[0])
	}
}

func (s *Server) sync(st *connState) {
	colors := make([]colorutil.Color, len(st.colors))
	copy(colors, st.colors)
	st.handle.Send(message.LedColors{Priority: st.priority, Colors: colors}, "boblight")
}

func (s *Server) lightsReply() string {
	if len(s.leds) == 0 {
		return "lights 0"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "lights %d\n", len(s.leds))
	for i, led := range s.leds {
		fmt.Fprintf(&b, "light %03d scan %g %g %g %g", i, led.HMin*100, led.HMax*100, led.VMin*100, led.VMax*100)
		if i < len(s.leds)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func clampPriority(p int) int {
	if p < 128 || p >= 254 {
		return defaultPriority
	}
	return p
}

func clamp8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
