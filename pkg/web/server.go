// Package web serves the launch monitor's status surface: a small JSON API
// over the shot history, a live result feed over websocket, and Prometheus
// metrics. The dashboard frontend consuming it lives elsewhere.
package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/fairwaylab/strobeshot/internal/log"
	"github.com/fairwaylab/strobeshot/internal/store"
	"github.com/fairwaylab/strobeshot/pkg/hub"
	"github.com/fairwaylab/strobeshot/pkg/shot"
)

// Status is the node status payload.
type Status struct {
	Role      string `json:"role"`
	State     string `json:"state"`
	UptimeSec int64  `json:"uptime_sec"`
	FeedConns int    `json:"feed_conns"`
}

// StateFunc reports the node's current coordination state.
type StateFunc func() string

// Server is the status/history web server.
type Server struct {
	app     *fiber.App
	addr    string
	role    string
	state   StateFunc
	shots   *store.Store
	feedHub *hub.Hub
	started time.Time
}

// NewServer assembles the web surface. shots may be nil when history is
// disabled; state may be nil on the strobe-camera node.
func NewServer(addr, role string, state StateFunc, shots *store.Store) *Server {
	s := &Server{
		addr:    addr,
		role:    role,
		state:   state,
		shots:   shots,
		feedHub: hub.New("shots"),
		started: time.Now(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "strobeshot",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", metricsHandler())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/shots", s.handleShots)
	api.Get("/shots/latest", s.handleLatestShot)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/shots", websocket.New(s.handleShotFeed))

	s.app = app
	return s
}

// Start serves until the listener fails. Run it in a goroutine.
func (s *Server) Start() error {
	go s.feedHub.Run()
	log.Info("web surface listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// StartAsync starts the server in a goroutine, logging any listen error.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			log.Error("web server failed", "error", err)
		}
	}()
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Publish implements the reporting sink contract: every published result
// is broadcast to connected feed clients.
func (s *Server) Publish(res shot.Result) error {
	return s.feedHub.BroadcastJSON(res)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	st := Status{
		Role:      s.role,
		UptimeSec: int64(time.Since(s.started).Seconds()),
		FeedConns: s.feedHub.ClientCount(),
	}
	if s.state != nil {
		st.State = s.state()
	}
	return c.JSON(st)
}

func (s *Server) handleShots(c *fiber.Ctx) error {
	if s.shots == nil {
		return fiber.NewError(fiber.StatusNotFound, "shot history disabled")
	}
	limit := c.QueryInt("limit", 20)
	res, err := s.shots.Recent(c.Context(), limit)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(res)
}

func (s *Server) handleLatestShot(c *fiber.Ctx) error {
	if s.shots == nil {
		return fiber.NewError(fiber.StatusNotFound, "shot history disabled")
	}
	res, err := s.shots.Latest(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if res == nil {
		return fiber.NewError(fiber.StatusNotFound, "no shots recorded")
	}
	return c.JSON(res)
}

func (s *Server) handleShotFeed(conn *websocket.Conn) {
	client := hub.NewClient(s.feedHub, conn)
	client.Run() // blocks until the connection closes
}

func metricsHandler() fiber.Handler {
	h := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c *fiber.Ctx) error {
		h(c.Context())
		return nil
	}
}
