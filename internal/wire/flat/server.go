// Package flat implements the length-prefixed FlatBuffers input server.
// Requests and replies are read and built directly against
// flatbuffers.Table/Builder rather than flatc-generated accessors: the
// wire shape (a Request table holding a Register/Color/Image/Clear
// union, and a Reply table carrying either registered or error) is
// fixed by the field-slot conventions below instead of a .fbs schema.
package flat

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	flatbuffers "github.com/google/flatbuffers/go"
	"go.uber.org/zap"

	"github.com/edgeflow/ambientled/internal/colorutil"
	"github.com/edgeflow/ambientled/internal/message"
	"github.com/edgeflow/ambientled/internal/registry"
)

// Request table field slots. Slot 0 (commandType) selects which of the
// following union tables is populated.
const (
	slotCommandType = 0
	slotRegister    = 1
	slotColor       = 2
	slotImage       = 3
	slotClear       = 4
)

// command type tags stored in slotCommandType.
const (
	cmdNone = iota
	cmdRegister
	cmdColor
	cmdImage
	cmdClear
)

// Register table slots.
const (
	slotRegPriority = 0
)

// ColorCommand table slots.
const (
	slotColorData     = 0
	slotColorDuration = 1
)

// ImageCommand table slots.
const (
	slotImageDuration = 0
	slotImageWidth    = 1
	slotImageHeight   = 2
	slotImageData     = 3
)

// ClearCommand table slots.
const (
	slotClearPriority = 0
)

// Reply table slots.
const (
	slotReplyRegistered = 0
	slotReplyError      = 1
)

// table is a thin wrapper over flatbuffers.Table exposing field access
// by slot index the way flatc-generated accessors would.
type table struct {
	t flatbuffers.Table
}

func rootTable(buf []byte) table {
	n := flatbuffers.GetUOffsetT(buf)
	return table{t: flatbuffers.Table{Bytes: buf, Pos: n}}
}

func (tb table) fieldOffset(slot int) flatbuffers.UOffsetT {
	vtableOffset := flatbuffers.VOffsetT(4 + 2*slot)
	return flatbuffers.UOffsetT(tb.t.Offset(vtableOffset))
}

func (tb table) getInt8(slot int) (int8, bool) {
	o := tb.fieldOffset(slot)
	if o == 0 {
		return 0, false
	}
	return tb.t.GetInt8(o + tb.t.Pos), true
}

func (tb table) getInt32(slot int) (int32, bool) {
	o := tb.fieldOffset(slot)
	if o == 0 {
		return 0, false
	}
	return tb.t.GetInt32(o + tb.t.Pos), true
}

func (tb table) getUint32(slot int) (uint32, bool) {
	o := tb.fieldOffset(slot)
	if o == 0 {
		return 0, false
	}
	return tb.t.GetUint32(o + tb.t.Pos), true
}

func (tb table) getBytes(slot int) ([]byte, bool) {
	o := tb.fieldOffset(slot)
	if o == 0 {
		return nil, false
	}
	uo := o + tb.t.Pos
	return tb.t.ByteVector(uo), true
}

func (tb table) getTable(slot int) (table, bool) {
	o := tb.fieldOffset(slot)
	if o == 0 {
		return table{}, false
	}
	uo := o + tb.t.Pos
	indirect := tb.t.Indirect(uo)
	return table{t: flatbuffers.Table{Bytes: tb.t.Bytes, Pos: indirect}}, true
}

// Server accepts FlatBuffers-framed TCP connections. Each connection
// must send a Register command before Color/Image/Clear commands are
// accepted, establishing the connection's priority.
type Server struct {
	reg  *registry.Registry
	sink registry.Sink
	log  *zap.Logger
}

// New creates a Server publishing decoded commands to sink through reg.
func New(reg *registry.Registry, sink registry.Sink, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{reg: reg, sink: sink, log: log}
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

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	var h *registry.Handle
	var priority int
	defer func() {
		if h != nil {
			h.Close()
		}
	}()

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

		newPriority, newHandle, err := s.apply(h, priority, body)
		if err != nil {
			s.log.Warn("flatbuffers: request failed", zap.Error(err))
		}
		if newHandle != nil {
			h = newHandle
		}
		priority = newPriority

		if err := writeFrame(conn, buildReply(priority, h != nil, err)); err != nil {
			return
		}
	}
}

// apply decodes body and publishes the decoded command. It returns the
// connection's current priority and, on a fresh registration, the new
// handle (the caller replaces any previous handle with it).
func (s *Server) apply(h *registry.Handle, priority int, body []byte) (int, *registry.Handle, error) {
	root := rootTable(body)

	cmdType, ok := root.getInt8(slotCommandType)
	if !ok {
		return priority, nil, fmt.Errorf("flatbuffers: missing command")
	}

	switch int(cmdType) {
	case cmdRegister:
		sub, ok := root.getTable(slotRegister)
		if !ok {
			return priority, nil, fmt.Errorf("flatbuffers: missing register table")
		}
		p, ok := sub.getInt32(slotRegPriority)
		if !ok {
			return priority, nil, fmt.Errorf("flatbuffers: missing priority")
		}
		if err := message.ValidatePriority(int(p)); err != nil {
			return priority, nil, err
		}
		if p < 100 || p > 199 {
			return priority, nil, fmt.Errorf("flatbuffers: priority %d out of range [100,199]", p)
		}
		if h != nil {
			h.Close()
		}
		newHandle := s.reg.Register(s.sink, "flatbuffers", int(p), true)
		return int(p), newHandle, nil

	case cmdClear:
		if h == nil {
			return priority, nil, fmt.Errorf("flatbuffers: unregistered source")
		}
		sub, ok := root.getTable(slotClear)
		if !ok {
			return priority, nil, fmt.Errorf("flatbuffers: missing clear table")
		}
		p, _ := sub.getInt32(slotClearPriority)
		if p < 0 {
			h.Send(message.ClearAll{}, "flatbuffers")
		} else {
			h.Send(message.Clear{Priority: int(p)}, "flatbuffers")
		}
		return priority, nil, nil

	case cmdColor:
		if h == nil {
			return priority, nil, fmt.Errorf("flatbuffers: unregistered source")
		}
		sub, ok := root.getTable(slotColor)
		if !ok {
			return priority, nil, fmt.Errorf("flatbuffers: missing color table")
		}
		rgb, _ := sub.getUint32(slotColorData)
		durMs, _ := sub.getInt32(slotColorDuration)
		h.Send(message.SolidColor{
			Priority: priority,
			Duration: durationMs(durMs),
			Color:    colorutil.Color{R: uint8(rgb), G: uint8(rgb >> 8), B: uint8(rgb >> 16)},
		}, "flatbuffers")
		return priority, nil, nil

	case cmdImage:
		if h == nil {
			return priority, nil, fmt.Errorf("flatbuffers: unregistered source")
		}
		sub, ok := root.getTable(slotImage)
		if !ok {
			return priority, nil, fmt.Errorf("flatbuffers: missing image table")
		}
		durMs, _ := sub.getInt32(slotImageDuration)
		width, _ := sub.getInt32(slotImageWidth)
		height, _ := sub.getInt32(slotImageHeight)
		pix, ok := sub.getBytes(slotImageData)
		if !ok {
			return priority, nil, fmt.Errorf("flatbuffers: missing image data")
		}
		if int(width)*int(height)*3 != len(pix) {
			return priority, nil, fmt.Errorf("flatbuffers: image data size %d does not match %dx%d", len(pix), width, height)
		}
		h.Send(message.ImageInput{
			Priority: priority,
			Duration: durationMs(durMs),
			Image:    &message.Image{Width: int(width), Height: int(height), Pix: pix},
		}, "flatbuffers")
		return priority, nil, nil

	default:
		return priority, nil, fmt.Errorf("flatbuffers: unknown command type %d", cmdType)
	}
}

func writeFrame(w io.Writer, data []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// buildReply constructs a Reply table: registered carries the
// connection's current priority (-1 if not yet registered), error
// carries a message string when apply failed.
func buildReply(priority int, registered bool, applyErr error) []byte {
	b := flatbuffers.NewBuilder(64)

	var errOff flatbuffers.UOffsetT
	if applyErr != nil {
		errOff = b.CreateString(applyErr.Error())
	}

	regValue := int32(-1)
	if registered {
		regValue = int32(priority)
	}

	b.StartObject(2)
	b.PrependInt32Slot(slotReplyRegistered, regValue, -1)
	if errOff != 0 {
		b.PrependUOffsetTSlot(slotReplyError, errOff, 0)
	}
	reply := b.EndObject()
	b.Finish(reply)
	return b.FinishedBytes()
}

func durationMs(ms int32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
