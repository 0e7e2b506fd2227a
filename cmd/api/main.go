package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backend-triplog/internal/config"
	"backend-triplog/internal/db"
	"backend-triplog/internal/device"
	"backend-triplog/internal/geocode"
	"backend-triplog/internal/kv"
	"backend-triplog/internal/mirror"
	"backend-triplog/internal/recorder"
	"backend-triplog/internal/routestore"
	"backend-triplog/internal/server"
	"backend-triplog/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, *pgxpool.Pool, *redis.Client, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		notify:          signal.Notify,
		run:             Run,
	}
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()

	var pg *pgxpool.Pool
	if cfg.PostgresURL != "" {
		var err error
		pg, err = deps.connectPostgres(cfg)
		if err != nil {
			log.Printf("postgres connection failed, operator auth disabled: %v", err)
		}
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = deps.connectRedis(cfg)
	}

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, pg, rdb, signals, nil); err != nil {
		log.Printf("server exited with error: %v", err)
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

var openKVFn = func(path string) (kv.Backend, func() error, error) {
	backend, err := kv.OpenSQLite(path)
	if err != nil {
		return nil, nil, err
	}
	return backend, backend.Close, nil
}

// services is everything Run starts and later tears down.
type services struct {
	server    *server.Server
	store     *routestore.Store
	channel   *mirror.Channel
	transport *mirror.Transport
	recorder  *recorder.Recorder
	hub       *stream.Hub
	closeKV   func() error
	unforward func()
}

func build(cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client) (*services, error) {
	backend, closeKV, err := openKVFn(cfg.KVPath)
	if err != nil {
		return nil, err
	}

	rt := &services{closeKV: closeKV}
	rt.channel = mirror.NewChannel(cfg.MirrorNamespace, mirror.WithRequestTimeout(cfg.MirrorRequestTimeout()))
	if rdb != nil {
		rt.transport = mirror.NewTransport(rt.channel, rdb, cfg.MirrorPingInterval())
	}
	rt.store = routestore.New(kv.New(backend), rt.channel)

	rt.hub = stream.NewHub(rdb)
	rt.unforward = stream.Forward(rt.store, rt.hub)

	geolocator := device.NewPushGeolocator()
	crash := device.NewCrashLog(rdb, cfg.MirrorNamespace)
	deps := recorder.Deps{
		Geolocation: geolocator,
		Permissions: device.StaticPermissions{State: recorder.PermissionState(cfg.GeolocationPermission)},
		WakeLock:    device.NewLeaseWakeLock(),
		Crash:       crash,
		Policy:      policyFromConfig(cfg),
	}
	if cfg.GeocoderURL != "" {
		var cache geocode.Cache
		if rdb != nil {
			cache = geocode.NewRedisCache(rdb, cfg.MirrorNamespace, cfg.GeocoderCacheTTL())
		}
		deps.Geocoder = geocode.NewClient(cfg.GeocoderURL, cfg.GeocoderTimeout(), cache)
	}
	rt.recorder = recorder.New(rt.store, deps)

	srvDeps := server.Deps{
		Redis:      rdb,
		Store:      rt.store,
		Channel:    rt.channel,
		Recorder:   rt.recorder,
		Geolocator: geolocator,
		Crash:      crash,
		Stream:     rt.hub,
	}
	if pg != nil {
		srvDeps.DB = pg
	}
	rt.server = server.NewServer(cfg, srvDeps)
	return rt, nil
}

func policyFromConfig(cfg config.Config) *recorder.Policy {
	p := recorder.DefaultPolicy()
	if cfg.SampleMinDistanceM > 0 {
		p.MinDistanceMeters = cfg.SampleMinDistanceM
	}
	if cfg.SampleMinIntervalMs > 0 {
		p.MinIntervalMs = cfg.SampleMinIntervalMs
	}
	if cfg.SampleMinBearingDeg > 0 {
		p.MinBearingDelta = cfg.SampleMinBearingDeg
	}
	if cfg.GapDistanceM > 0 {
		p.GapDistanceMeters = cfg.GapDistanceM
	}
	if cfg.GapIntervalMs > 0 {
		p.GapIntervalMs = cfg.GapIntervalMs
	}
	return &p
}

// Run starts the HTTP server and the mirror transport and waits for
// termination signals.
func Run(ctx context.Context, cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client, signals <-chan os.Signal, listen ListenFunc) error {
	rt, err := build(cfg, pg, rdb)
	if err != nil {
		return err
	}

	if listen == nil {
		listen = defaultListen
	}

	if rt.server.Auth != nil {
		migrateCtx, migrateCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rt.server.Auth.Migrate(migrateCtx); err != nil {
			log.Printf("operator schema migration failed: %v", err)
		}
		migrateCancel()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if rt.transport != nil {
		g.Go(func() error { return rt.transport.Run(gctx) })
		// bounded by the mirror request timeout; a draft adopted here must be
		// in the store before the recorder looks for one
		if rt.store.RestoreFromBackground(gctx) {
			log.Printf("restored routes from background agent")
		}
	}
	if rt.recorder.RestoreDraft(gctx) {
		log.Printf("resumed unfinished route")
	}

	errCh := make(chan error, 1)
	g.Go(func() error {
		err := listen(rt.server.App, cfg.ServerPort)
		errCh <- err
		return err
	})

	var runErr error
	select {
	case <-signals:
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	shutdownErr := shutdownFn(rt.server.App, shutdownCtx)
	cancel()
	_ = g.Wait()

	rt.close()
	if pg != nil {
		pg.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if runErr != nil {
		return runErr
	}
	return shutdownErr
}

func (rt *services) close() {
	rt.recorder.Wait()
	rt.unforward()
	rt.server.Close()
	rt.hub.Close()
	if err := rt.closeKV(); err != nil {
		log.Printf("kv close error: %v", err)
	}
}
