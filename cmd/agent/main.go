package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"backend-triplog/internal/agent"
	"backend-triplog/internal/archive"
	"backend-triplog/internal/config"
	"backend-triplog/internal/db"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

var (
	errNoDatabase = errors.New("agent requires postgres")
	errNoRedis    = errors.New("agent requires redis")
)

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, db.Querier, *redis.Client, <-chan os.Signal) error
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

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		log.Printf("postgres connection failed: %v", err)
	}
	rdb := deps.connectRedis(cfg)

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	var q db.Querier
	if pg != nil {
		q = pg
		defer pg.Close()
	}
	if rdb != nil {
		defer rdb.Close()
	}
	if err := deps.run(context.Background(), cfg, q, rdb, signals); err != nil {
		log.Printf("agent exited with error: %v", err)
	}
}

// Run archives synced routes and answers page requests until a signal
// arrives or ctx is done.
func Run(ctx context.Context, cfg config.Config, q db.Querier, rdb *redis.Client, signals <-chan os.Signal) error {
	if q == nil {
		return errNoDatabase
	}
	if rdb == nil {
		return errNoRedis
	}

	store := archive.New(q)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate archive: %w", err)
	}

	a := agent.New(cfg.MirrorNamespace, rdb, store)
	if err := a.Load(ctx); err != nil {
		log.Printf("agent state load failed, starting empty: %v", err)
	}

	sched, err := a.Schedule(cfg.AgentSyncSchedule)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return a.Run(gctx) })

	select {
	case <-signals:
	case <-gctx.Done():
	}
	cancel()
	return g.Wait()
}
