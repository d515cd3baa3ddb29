// Package jsonrpc implements the Hyperion-style JSON input API: a
// single JSON object per request, carried over a plain HTTP POST or a
// WebSocket connection, mapped onto message.Data and forwarded through
// one registered input source per connection.
package jsonrpc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/edgeflow/ambientled/internal/colorutil"
	"github.com/edgeflow/ambientled/internal/message"
	"github.com/edgeflow/ambientled/internal/registry"
)

// command is one decoded JSON-RPC request.
type command struct {
	Command  string       `json:"command"`
	Priority int          `json:"priority"`
	Duration int64        `json:"duration,omitempty"` // ms
	Color    []uint8      `json:"color,omitempty"`
	Colors   []uint8      `json:"colors,omitempty"` // flattened RGB triples
	Effect   *effectField `json:"effect,omitempty"`
}

type effectField struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Server implements the JSON-RPC HTTP and WebSocket input surface
// against a single sink (one LED instance's muxer).
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

// Register mounts the HTTP endpoint and the WebSocket upgrade on app.
func (s *Server) Register(app *fiber.App) {
	app.Post("/json-rpc", s.handleHTTP)
	app.Get("/json-rpc/ws", websocket.New(s.handleWS))
}

func (s *Server) handleHTTP(c *fiber.Ctx) error {
	var cmd command
	if err := json.Unmarshal(c.Body(), &cmd); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON")
	}
	h := s.reg.Register(s.sink, "json-rpc:http", 0, false)
	defer h.Close()
	if err := s.apply(h, cmd); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleWS(conn *websocket.Conn) {
	h := s.reg.Register(s.sink, "json-rpc:ws", 0, false)
	defer h.Close()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			s.reply(conn, false, "invalid JSON")
			continue
		}
		if err := s.apply(h, cmd); err != nil {
			s.reply(conn, false, err.Error())
			continue
		}
		s.reply(conn, true, "")
	}
}

func (s *Server) reply(conn *websocket.Conn, ok bool, errMsg string) {
	resp := map[string]any{"success": ok}
	if errMsg != "" {
		resp["error"] = errMsg
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		s.log.Warn("json-rpc: failed to write reply", zap.Error(err))
	}
}

func (s *Server) apply(h *registry.Handle, cmd command) error {
	switch cmd.Command {
	case "clearall":
		h.Send(message.ClearAll{}, "json-rpc")
	case "clear":
		if err := message.ValidatePriority(cmd.Priority); err != nil {
			return err
		}
		h.Send(message.Clear{Priority: cmd.Priority}, "json-rpc")
	case "color":
		if len(cmd.Color) != 3 {
			return fmt.Errorf("color requires a 3-byte [r,g,b]")
		}
		if err := message.ValidatePriority(cmd.Priority); err != nil {
			return err
		}
		h.Send(message.SolidColor{
			Priority: cmd.Priority,
			Duration: durationMs(cmd.Duration),
			Color:    colorutil.Color{R: cmd.Color[0], G: cmd.Color[1], B: cmd.Color[2]},
		}, "json-rpc")
	case "colors":
		if len(cmd.Colors)%3 != 0 {
			return fmt.Errorf("colors must be a multiple of 3 bytes")
		}
		if err := message.ValidatePriority(cmd.Priority); err != nil {
			return err
		}
		colors := make([]colorutil.Color, 0, len(cmd.Colors)/3)
		for i := 0; i+2 < len(cmd.Colors); i += 3 {
			colors = append(colors, colorutil.Color{R: cmd.Colors[i], G: cmd.Colors[i+1], B: cmd.Colors[i+2]})
		}
		h.Send(message.LedColors{Priority: cmd.Priority, Duration: durationMs(cmd.Duration), Colors: colors}, "json-rpc")
	case "effect":
		if cmd.Effect == nil || cmd.Effect.Name == "" {
			return fmt.Errorf("effect requires a name")
		}
		if err := message.ValidatePriority(cmd.Priority); err != nil {
			return err
		}
		h.Send(message.Effect{
			Priority: cmd.Priority,
			Duration: durationMs(cmd.Duration),
			Name:     cmd.Effect.Name,
			Args:     cmd.Effect.Args,
		}, "json-rpc")
	default:
		return fmt.Errorf("unknown command %q", cmd.Command)
	}
	return nil
}

func durationMs(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }
