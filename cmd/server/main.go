package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"golang.org/x/sync/errgroup"

	allocservice "diocese/internal/allocator/service"
	allocstore "diocese/internal/allocator/store"
	audithandler "diocese/internal/audit/handler"
	auditservice "diocese/internal/audit/service"
	"diocese/internal/audit/sink"
	auditstore "diocese/internal/audit/store"
	dirhandler "diocese/internal/directory/handler"
	dirservice "diocese/internal/directory/service"
	dirstore "diocese/internal/directory/store"
	"diocese/internal/platform/config"
	"diocese/internal/platform/httpserver"
	"diocese/internal/platform/logger"
	"diocese/internal/platform/metrics"
	"diocese/internal/platform/redis"
	transferhandler "diocese/internal/transfer/handler"
	transferservice "diocese/internal/transfer/service"
	transferstore "diocese/internal/transfer/store"
	httptransport "diocese/internal/transport/http"
	"diocese/migrations"
	"diocese/pkg/platform/tx"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal services; without a Postgres DSN everything runs on
// the in-memory stores, which is enough for local development.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		db  *sql.DB
		err error
	)
	if cfg.PostgresDSN != "" {
		db, err = openDatabase(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Error("database setup failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	} else {
		log.Warn("no postgres DSN configured, running on in-memory stores")
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis setup failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Stores: Postgres when configured, in-memory otherwise.
	var (
		seqStore     allocstore.SequenceStore
		dirStores    dirservice.Stores
		codeIndex    allocservice.Directory
		historyStore transferstore.HistoryStore
		auditLedger  auditstore.Store
		runner       tx.Runner
	)
	if db != nil {
		pg := dirstore.NewPostgres(db)
		seqStore = allocstore.NewPostgresSequenceStore(db)
		dirStores = dirservice.Stores{
			Regions:     pg.Regions(),
			Zones:       pg.Zones(),
			People:      pg.People(),
			Departments: pg.Departments(),
		}
		codeIndex = pg
		historyStore = transferstore.NewPostgresHistory(db)
		auditLedger = auditstore.NewPostgresStore(db)
		runner = tx.NewPostgresRunner(db)
	} else {
		mem := dirstore.NewInMemory()
		seqStore = allocstore.NewInMemorySequenceStore()
		dirStores = dirservice.Stores{
			Regions:     mem.Regions(),
			Zones:       mem.Zones(),
			People:      mem.People(),
			Departments: mem.Departments(),
		}
		codeIndex = mem
		historyStore = transferstore.NewInMemoryHistory()
		auditLedger = auditstore.NewInMemoryStore()
		runner = tx.NewShardedRunner()
	}

	auditOpts := []auditservice.Option{
		auditservice.WithQueueSize(cfg.Audit.QueueSize),
		auditservice.WithRetryInterval(cfg.Audit.RetryInterval),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := sink.NewKafkaSink(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Error("kafka sink setup failed", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		auditOpts = append(auditOpts, auditservice.WithSink(kafkaSink))
	}
	auditSvc := auditservice.New(auditLedger, log, m, auditOpts...)

	allocSvc := allocservice.New(seqStore, codeIndex, log, m)
	dirSvc := dirservice.New(dirStores, allocSvc, auditSvc, runner, log)

	transferOpts := []transferservice.Option{transferservice.WithMetrics(m)}
	if redisClient != nil {
		transferOpts = append(transferOpts,
			transferservice.WithIdempotencyStore(transferstore.NewRedisIdempotency(redisClient)))
	} else {
		transferOpts = append(transferOpts,
			transferservice.WithIdempotencyStore(transferstore.NewInMemoryIdempotency()))
	}
	transferSvc := transferservice.New(transferservice.Stores{
		People:      dirStores.People,
		Zones:       dirStores.Zones,
		Departments: dirStores.Departments,
		History:     historyStore,
	}, auditSvc, runner, log, transferOpts...)

	health := map[string]httptransport.HealthChecker{}
	if db != nil {
		health["postgres"] = dbHealth{db}
	}
	if redisClient != nil {
		health["redis"] = redisClient
	}

	router := httptransport.New(httptransport.Config{
		Logger:  log,
		Metrics: m,
		JWTKey:  cfg.JWTKey,
		Handlers: []httptransport.Registrar{
			dirhandler.New(dirSvc, log),
			transferhandler.New(transferSvc, log),
			audithandler.New(auditSvc, log),
		},
		Health: health,
	})
	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting diocese server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		if err := auditSvc.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func openDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		db.Close()
		return nil, err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

type dbHealth struct{ db *sql.DB }

func (h dbHealth) Health(ctx context.Context) error { return h.db.PingContext(ctx) }
