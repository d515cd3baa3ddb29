// Package proto implements the length-prefixed protobuf-wire input
// server: each TCP frame is a 4-byte big-endian length followed by a
// HyperionRequest-shaped protobuf message, decoded field-by-field with
// protowire rather than generated bindings.
package proto

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/edgeflow/ambientled/internal/colorutil"
	"github.com/edgeflow/ambientled/internal/message"
	"github.com/edgeflow/ambientled/internal/registry"
)

// Top-level HyperionRequest field numbers.
const (
	fieldCommand      = 1
	fieldColorRequest = 2
	fieldImageRequest = 3
	fieldClearRequest = 4
)

// command enum values carried in field 1.
const (
	cmdColor = iota
	cmdImage
	cmdClear
	cmdClearAll
)

// ColorRequest / ImageRequest / ClearRequest field numbers.
const (
	fieldPriority = 1
	fieldDuration = 2
	fieldRGBColor = 3

	fieldImageWidth  = 3
	fieldImageHeight = 4
	fieldImageData   = 5
)

// Server accepts protobuf-framed TCP connections and publishes decoded
// requests to a single sink.
type Server struct {
	reg  *registry.Registry
	sink registry.Sink
	log  *zap.Logger
}

// New creates a Server publishing decoded requests to sink through reg.
func New(reg *registry.Registry, sink registry.Sink, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{reg: reg, sink: sink, log: log}
}

// Serve accepts connections on ln until it returns an error (typically
// because ln was closed by the caller during shutdown).
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	h := s.reg.Register(s.sink, "protobuf:"+conn.RemoteAddr().String(), 0, false)
	defer h.Close()

	lenBuf := make([]byte, 4)
	for {
		if _, err := io.ReadFull(conn, lenBuf); err != nil {
			return
		}
		size := binary.BigEndian.Uint32(lenBuf)
		body := make([]byte, size)
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}

		if err := s.apply(h, body); err != nil {
			s.log.Warn("proto: request failed", zap.Error(err))
		}
	}
}

func (s *Server) apply(h *registry.Handle, body []byte) error {
	var cmd int64 = -1
	var colorBytes, imageBytes, clearBytes []byte

	validatePriority := func(p int) error {
		if p < 100 || p > 199 {
			return fmt.Errorf("proto: priority %d out of range [100,199]", p)
		}
		return nil
	}

	b := body
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("proto: malformed tag")
		}
		b = b[n:]

		switch num {
		case fieldCommand:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("proto: malformed command")
			}
			cmd = int64(v)
			b = b[n:]
		case fieldColorRequest:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("proto: malformed color_request")
			}
			colorBytes = v
			b = b[n:]
		case fieldImageRequest:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("proto: malformed image_request")
			}
			imageBytes = v
			b = b[n:]
		case fieldClearRequest:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("proto: malformed clear_request")
			}
			clearBytes = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("proto: malformed field %d", num)
			}
			b = b[n:]
		}
	}

	switch cmd {
	case cmdClearAll:
		h.Send(message.ClearAll{}, "protobuf")
	case cmdClear:
		priority, err := decodeClearRequest(clearBytes)
		if err != nil {
			return err
		}
		if err := validatePriority(priority); err != nil {
			return err
		}
		h.Send(message.Clear{Priority: priority}, "protobuf")
	case cmdColor:
		req, err := decodeColorRequest(colorBytes)
		if err != nil {
			return err
		}
		if err := validatePriority(req.priority); err != nil {
			return err
		}
		h.Send(message.SolidColor{
			Priority: req.priority,
			Duration: durationMs(req.duration),
			Color:    req.color,
		}, "protobuf")
	case cmdImage:
		req, err := decodeImageRequest(imageBytes)
		if err != nil {
			return err
		}
		if err := validatePriority(req.priority); err != nil {
			return err
		}
		h.Send(message.ImageInput{
			Priority: req.priority,
			Duration: durationMs(req.duration),
			Image:    &message.Image{Width: req.width, Height: req.height, Pix: req.pix},
		}, "protobuf")
	default:
		return fmt.Errorf("proto: unknown command %d", cmd)
	}
	return nil
}

func decodeClearRequest(b []byte) (priority int, err error) {
	for len(b) > 0 {
		num, _, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, fmt.Errorf("proto: malformed clear_request tag")
		}
		b = b[n:]
		if num == fieldPriority {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, fmt.Errorf("proto: malformed priority")
			}
			priority = int(int32(v))
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, protowire.VarintType, b)
		if n < 0 {
			return 0, fmt.Errorf("proto: malformed clear_request field %d", num)
		}
		b = b[n:]
	}
	return priority, nil
}

type colorRequest struct {
	priority int
	duration int32
	color    colorutil.Color
}

func decodeColorRequest(b []byte) (colorRequest, error) {
	var req colorRequest
	var rgb uint32
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return req, fmt.Errorf("proto: malformed color_request tag")
		}
		b = b[n:]
		switch num {
		case fieldPriority:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return req, fmt.Errorf("proto: malformed priority")
			}
			req.priority = int(int32(v))
			b = b[n:]
		case fieldDuration:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return req, fmt.Errorf("proto: malformed duration")
			}
			req.duration = int32(v)
			b = b[n:]
		case fieldRGBColor:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return req, fmt.Errorf("proto: malformed rgb_color")
			}
			rgb = uint32(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return req, fmt.Errorf("proto: malformed color_request field %d", num)
			}
			b = b[n:]
		}
	}
	req.color = colorutil.Color{R: uint8(rgb), G: uint8(rgb >> 8), B: uint8(rgb >> 16)}
	return req, nil
}

type imageRequest struct {
	priority      int
	duration      int32
	width, height int
	pix           []byte
}

func decodeImageRequest(b []byte) (imageRequest, error) {
	var req imageRequest
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return req, fmt.Errorf("proto: malformed image_request tag")
		}
		b = b[n:]
		switch num {
		case fieldPriority:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return req, fmt.Errorf("proto: malformed priority")
			}
			req.priority = int(int32(v))
			b = b[n:]
		case fieldDuration:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return req, fmt.Errorf("proto: malformed duration")
			}
			req.duration = int32(v)
			b = b[n:]
		case fieldImageWidth:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return req, fmt.Errorf("proto: malformed imagewidth")
			}
			req.width = int(v)
			b = b[n:]
		case fieldImageHeight:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return req, fmt.Errorf("proto: malformed imageheight")
			}
			req.height = int(v)
			b = b[n:]
		case fieldImageData:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return req, fmt.Errorf("proto: malformed imagedata")
			}
			req.pix = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return req, fmt.Errorf("proto: malformed image_request field %d", num)
			}
			b = b[n:]
		}
	}
	if req.width*req.height*3 != len(req.pix) {
		return req, fmt.Errorf("proto: image data size %d does not match %dx%d", len(req.pix), req.width, req.height)
	}
	return req, nil
}

func durationMs(ms int32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
