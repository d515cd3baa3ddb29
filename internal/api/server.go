// Package api implements the control/status HTTP surface: per-instance
// priority inspection, effect launch/abort, process metrics, and a
// liveness probe. Every handler runs behind the metrics and structured
// request-logging middleware the rest of the process uses.
package api

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/edgeflow/ambientled/internal/instance"
	"github.com/edgeflow/ambientled/internal/message"
	"github.com/edgeflow/ambientled/internal/metrics"
)

// Server owns the Fiber app and the process's named instance table.
type Server struct {
	app        *fiber.App
	log        *zap.Logger
	metrics    *metrics.Metrics
	authSecret string

	mu        sync.RWMutex
	instances map[string]*instance.Instance
}

// NewServer builds the Fiber app and registers every route. Instances
// are added via AddInstance before or after Listen; route handlers
// always read the current table under lock. authSecret gates every
// /api/v1 route behind a bearer token signed with it; an empty secret
// leaves the API open, matching a deployment with no auth configured.
func NewServer(m *metrics.Metrics, authSecret string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		log:       log,
		metrics:   m,
		instances: make(map[string]*instance.Instance),
	}

	app := fiber.New(fiber.Config{
		AppName:      "ambientled",
		ErrorHandler: jsonErrorHandler,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	app.Use(metrics.MetricsMiddleware(m))

	s.app = app
	s.authSecret = authSecret
	s.routes()
	return s
}

// App returns the underlying Fiber app, for mounting additional routes
// (the JSON-RPC wire server shares this app rather than listening on
// its own port).
func (s *Server) App() *fiber.App { return s.app }

// AddInstance registers a running instance under name so the API can
// route status queries and effect launches to it.
func (s *Server) AddInstance(name string, inst *instance.Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[name] = inst
}

// Listen starts the HTTP server; it blocks until the listener stops.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the HTTP server, waiting for in-flight
// requests to finish.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) lookup(name string) (*instance.Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[name]
	return inst, ok
}

func (s *Server) routes() {
	s.app.Get("/healthz", s.handleHealthz)

	v1 := s.app.Group("/api/v1", jwtAuth(s.authSecret))
	v1.Get("/instances", s.handleListInstances)
	v1.Get("/instances/:id/priorities", s.handlePriorities)
	v1.Post("/instances/:id/clear", s.handleClear)
	v1.Post("/effects/:name/launch", s.handleLaunch)
	v1.Post("/effects/:id/abort", s.handleAbort)
	v1.Get("/metrics", s.handleMetrics)
}

func (s *Server) handleHealthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleListInstances(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]fiber.Map, 0, len(s.instances))
	for name, inst := range s.instances {
		stats := inst.SchedulerStats()
		out = append(out, fiber.Map{
			"name":   name,
			"writes": stats.Writes,
			"skips":  stats.Skips,
			"errors": stats.Errors,
		})
	}
	return c.JSON(fiber.Map{"instances": out})
}

func (s *Server) handlePriorities(c *fiber.Ctx) error {
	inst, ok := s.lookup(c.Params("id"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "instance not found")
	}
	slots := inst.Muxer.Snapshot()
	out := make([]fiber.Map, 0, len(slots))
	for _, sl := range slots {
		out = append(out, fiber.Map{
			"priority":  sl.Priority,
			"source_id": sl.SourceID,
			"kind":      sl.Kind,
			"is_winner": sl.IsWinner,
		})
	}
	return c.JSON(fiber.Map{"priorities": out})
}

func (s *Server) handleClear(c *fiber.Ctx) error {
	inst, ok := s.lookup(c.Params("id"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "instance not found")
	}
	inst.Muxer.Publish(message.Input{Data: message.ClearAll{}})
	return c.JSON(fiber.Map{"status": "cleared"})
}

type launchRequest struct {
	Instance   string         `json:"instance"`
	Priority   int            `json:"priority"`
	DurationMs int64          `json:"duration_ms"`
	Args       map[string]any `json:"args"`
}

func (s *Server) handleLaunch(c *fiber.Ctx) error {
	name := c.Params("name")

	var req launchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := message.ValidatePriority(req.Priority); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	inst, ok := s.lookup(req.Instance)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "instance not found")
	}

	duration := time.Duration(req.DurationMs) * time.Millisecond
	handle, err := inst.Effects().Launch(name, req.Args, duration, req.Priority, inst.LedCount())
	if err != nil {
		s.metrics.IncrementFailedEffectLaunches()
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	s.metrics.IncrementEffectLaunches()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"source_id": handle.ID()})
}

func (s *Server) handleAbort(c *fiber.Ctx) error {
	idParam := c.Params("id")
	var id uint64
	if _, err := fmt.Sscanf(idParam, "%d", &id); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid effect id")
	}

	instanceName := c.Query("instance")
	if instanceName == "" {
		return fiber.NewError(fiber.StatusBadRequest, "instance query parameter required")
	}
	inst, ok := s.lookup(instanceName)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "instance not found")
	}

	if !inst.Effects().AbortByID(id) {
		return fiber.NewError(fiber.StatusNotFound, "effect not running")
	}
	return c.JSON(fiber.Map{"status": "aborted"})
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	s.metrics.UpdateSystemMetrics()
	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4")
	return c.SendString(s.metrics.PrometheusFormat())
}

func jsonErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if fe, ok := err.(*fiber.Error); ok {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
