package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"tradebook-core/internal/api"
	"tradebook-core/internal/dashboard"
	"tradebook-core/internal/events"
	"tradebook-core/internal/health"
	"tradebook-core/internal/lifecycle"
	"tradebook-core/internal/monitor"
	"tradebook-core/internal/persistence"
	"tradebook-core/internal/privilege"
	"tradebook-core/internal/refdata"
	"tradebook-core/internal/sequence"
	"tradebook-core/internal/validation"
	"tradebook-core/pkg/config"
	"tradebook-core/pkg/db"
	"tradebook-core/pkg/i18n"
	"tradebook-core/pkg/logging"
)

const redisSequenceKey = "tradebook:seq:trade_id"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf(i18n.Get("ConfigLoadFailed"), err)
	}

	i18n.SetLanguage(i18n.Language(cfg.Language))
	logger := logging.New(cfg.LogLevel)
	log := logging.Component(logger, "main")
	log.Info(i18n.Get("Starting"))
	log.Infof(i18n.Get("ConfigLoaded"), cfg.Port)
	log.Infof(i18n.Get("UsingDBPath"), cfg.DBPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf(i18n.Get("DBInitFailed"), err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf(i18n.Get("DBMigrationsFailed"), err)
	}

	// Reference data and users
	seed, err := refdata.LoadSeed(cfg.RefDataPath)
	if err != nil {
		log.Fatalf(i18n.Get("RefDataSyncFailed"), err)
	}
	if err := refdata.Sync(ctx, database, seed); err != nil {
		log.Fatalf(i18n.Get("RefDataSyncFailed"), err)
	}
	log.Infof(i18n.Get("RefDataSynced"), len(seed.Reference), len(seed.Users))

	store := database.Store()
	resolver := refdata.NewResolver(store, 5*time.Minute)
	access := privilege.NewEngine(resolver)
	validator := validation.New(store, validation.WithMaxTradeAge(cfg.TradeDateMaxAgeDays))
	ids := tradeIDs(ctx, cfg, store, log)

	// Events, audit and alerts
	bus := events.NewBus()
	metrics := monitor.NewSystemMetrics()

	var auditWriter *persistence.BatchWriter
	if cfg.EnableAudit {
		auditWriter = persistence.NewBatchWriter(database.DB, 100,
			time.Duration(cfg.AuditFlushMs)*time.Millisecond, logging.Component(logger, "audit"))
		metrics.SetAuditPending(auditWriter.Pending)
		go persistence.NewAuditWriter(auditWriter).Run(ctx, bus)
		log.Infof(i18n.Get("AuditEnabled"), cfg.AuditFlushMs)
	} else {
		log.Info(i18n.Get("AuditDisabled"))
	}

	if cfg.KafkaBroker != "" {
		producer, err := events.NewKafkaProducer(cfg.KafkaBroker)
		if err != nil {
			log.Warnf(i18n.Get("KafkaInitFailed"), err)
		} else {
			defer producer.Close()
			go events.NewKafkaForwarder(producer, cfg.KafkaTopic, logging.Component(logger, "kafka")).Run(ctx, bus)
			log.Infof(i18n.Get("KafkaForwarding"), cfg.KafkaTopic)
		}
	}

	mon := &monitor.Monitor{
		Bus:    bus,
		Sink:   monitor.LogSink{Logger: logging.Component(logger, "alerts")},
		Logger: logging.Component(logger, "monitor"),
	}
	mon.Start(ctx)
	log.Info(i18n.Get("MonitorStarted"))

	// Lifecycle
	trades := lifecycle.NewManager(lifecycle.Deps{
		DB:         database,
		Refs:       resolver,
		Privileges: access,
		Validator:  validator,
		IDs:        ids,
		Bus:        bus,
		Metrics:    metrics,
		Logger:     logging.Component(logger, "lifecycle"),
	})

	// gRPC health
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Errorf(i18n.Get("HealthServeFailed"), err)
		} else {
			healthSrv := health.NewServer(database, 10*time.Second, logging.Component(logger, "health"))
			go func() {
				if err := healthSrv.Serve(ctx, lis); err != nil {
					log.Errorf(i18n.Get("HealthServeFailed"), err)
				}
			}()
			log.Infof(i18n.Get("HealthListening"), cfg.GRPCAddr)
		}
	}

	// API
	server := api.NewServer(api.Options{
		Trades:         trades,
		Dashboard:      dashboard.New(store, resolver, access, logging.Component(logger, "dashboard"), nil),
		Users:          store,
		Refs:           store,
		DB:             database,
		Bus:            bus,
		Metrics:        metrics,
		Logger:         logging.Component(logger, "api"),
		JWTSecret:      cfg.JWTSecret,
		RequestTimeout: time.Duration(cfg.RequestTimeoutSec) * time.Second,
		CORSOrigins:    cfg.CORSOrigins,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof(i18n.Get("ServerListening"), cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf(i18n.Get("APIServerError"), err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info(i18n.Get("ShuttingDown"))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf(i18n.Get("APIServerError"), err)
	}
	cancel()

	if auditWriter != nil {
		if err := auditWriter.Flush(); err != nil {
			log.Errorf(i18n.Get("AuditFlushFailed"), err)
		}
		_ = auditWriter.Close()
	}
	if closer, ok := ids.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	log.Info(i18n.Get("ShutdownComplete"))
}

// tradeIDs picks the Redis sequence when REDIS_URL is set and reachable,
// otherwise the SQLite one.
func tradeIDs(ctx context.Context, cfg *config.Config, store *db.Store, log *logrus.Entry) sequence.Generator {
	if cfg.RedisURL != "" {
		floor, err := sequence.Floor(ctx, store, cfg.TradeIDBase)
		if err == nil {
			var gen *sequence.Redis
			if gen, err = sequence.NewRedis(ctx, cfg.RedisURL, redisSequenceKey, floor); err == nil {
				log.Infof(i18n.Get("SequenceRedis"), redisSequenceKey)
				return gen
			}
		}
		log.Warnf(i18n.Get("SequenceRedisFailed"), err)
	}

	gen, err := sequence.NewSQLite(ctx, store, cfg.TradeIDBase)
	if err != nil {
		log.Fatalf(i18n.Get("SequenceInitFailed"), err)
	}
	log.Infof(i18n.Get("SequenceSQLite"), cfg.TradeIDBase)
	return gen
}
