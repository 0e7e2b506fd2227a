package server

import (
	"backend-triplog/internal/auth"
	"backend-triplog/internal/config"
	"backend-triplog/internal/db"
	"backend-triplog/internal/device"
	"backend-triplog/internal/history"
	"backend-triplog/internal/mirror"
	"backend-triplog/internal/recorder"
	"backend-triplog/internal/routestore"
	"backend-triplog/internal/stream"
	"backend-triplog/internal/waypoint"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Deps are built by the composition root. DB and Redis may be nil; without
// a database the operator endpoints are not mounted.
type Deps struct {
	DB         db.Querier
	Redis      *redis.Client
	Store      *routestore.Store
	Channel    *mirror.Channel
	Recorder   *recorder.Recorder
	Geolocator *device.PushGeolocator
	Crash      *device.CrashLog
	Stream     *stream.Hub
}

type Server struct {
	App  *fiber.App
	Cfg  config.Config
	Deps Deps

	Stream *stream.Hub
	Auth   *auth.Service

	unsubscribe func()
}

func NewServer(cfg config.Config, deps Deps) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		Deps:   deps,
		Stream: deps.Stream,
	}
	if s.Stream == nil {
		s.Stream = stream.NewHub(deps.Redis)
		if deps.Store != nil {
			s.unsubscribe = stream.Forward(deps.Store, s.Stream)
		}
	}
	if deps.DB != nil {
		s.Auth = auth.NewService(cfg.JWTSecret, deps.DB, cfg.OperatorPinMinLen)
	}

	registerRoutes(s)
	return s
}

// Close releases what NewServer created itself.
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.Deps.Stream == nil {
		s.Stream.Close()
	}
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		body := fiber.Map{"status": "ok"}
		if s.Deps.Recorder != nil {
			body["recorder"] = s.Deps.Recorder.State()
		}
		if s.Deps.Channel != nil {
			body["mirror_pending"] = s.Deps.Channel.Pending()
		}
		return c.JSON(body)
	})
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	if s.Auth != nil {
		auth.RegisterRoutes(s.App.Group("/auth"), s.Auth)
	}
	if s.Deps.Store != nil {
		history.RegisterRoutes(s.App, history.NewService(s.Deps.Store), jwtMiddleware)
	}
	if s.Deps.Recorder != nil {
		var sink recorder.FixSink
		if s.Deps.Geolocator != nil {
			sink = s.Deps.Geolocator
		}
		recorder.RegisterRoutes(s.App, s.Deps.Recorder, sink, jwtMiddleware)
		waypoint.RegisterRoutes(s.App.Group("/waypoints"), waypoint.NewService(s.Deps.Recorder), jwtMiddleware)
	}
	if s.Deps.Crash != nil {
		s.App.Get("/device/crashes", jwtMiddleware, func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"operator_id": auth.OperatorID(c), "reports": s.Deps.Crash.Recent()})
		})
	}
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
