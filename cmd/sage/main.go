package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Ramsey-B/sage/config"
	approvalrepo "github.com/Ramsey-B/sage/internal/repositories/approvals"
	branchrepo "github.com/Ramsey-B/sage/internal/repositories/branches"
	diffrepo "github.com/Ramsey-B/sage/internal/repositories/diffs"
	lockrepo "github.com/Ramsey-B/sage/internal/repositories/locks"
	mergerepo "github.com/Ramsey-B/sage/internal/repositories/merges"
	versionrepo "github.com/Ramsey-B/sage/internal/repositories/versions"
	"github.com/Ramsey-B/sage/pkg/approvals"
	"github.com/Ramsey-B/sage/pkg/branches"
	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/events"
	"github.com/Ramsey-B/sage/pkg/kafka"
	"github.com/Ramsey-B/sage/pkg/locks"
	"github.com/Ramsey-B/sage/pkg/merging"
	"github.com/Ramsey-B/sage/pkg/scheduler"
	"github.com/Ramsey-B/sage/pkg/startup"
	"github.com/Ramsey-B/sage/pkg/tracing"
	"github.com/Ramsey-B/sage/pkg/tracing/exporters"
	"github.com/Ramsey-B/sage/pkg/versioning"
)

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	zapLogger := newZapLogger(cfg)
	defer zapLogger.Sync()
	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TracingEnabled {
		shutdown, err := initTracing(ctx, cfg)
		if err != nil {
			logger.WithError(err).Error("Failed to initialize tracing")
			os.Exit(1)
		}
		defer shutdown(context.Background())
	}

	db, err := connectDatabase(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	if err := runMigrations(cfg, logger, db); err != nil {
		logger.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}

	instance := database.NewDatabaseInstance(db, logger)

	var producer *kafka.Producer
	if cfg.KafkaEnabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
	}

	service := buildService(instance, producer, cfg, logger)

	maintenanceScheduler := scheduler.NewScheduler(service, scheduler.Config{
		SweepInterval: cfg.SchedulerSweepInterval,
		DiffRetention: cfg.DiffCacheRetention,
	}, logger)

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: promhttp.Handler(),
	}

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&dependency{
		name: "database",
		start: func(ctx context.Context) error {
			return db.PingContext(ctx)
		},
		stop: func(context.Context) error { return nil },
	})
	boot.AddDependency(&dependency{
		name:      "scheduler",
		dependsOn: []string{"database"},
		start:     maintenanceScheduler.Start,
		stop:      maintenanceScheduler.Stop,
	})
	boot.AddDependency(&dependency{
		name: "metrics",
		start: func(context.Context) error {
			go func() {
				if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.WithError(err).Error("Metrics server failed")
				}
			}()
			return nil
		},
		stop: metricsServer.Shutdown,
	})

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}

	logger.Infof("%s started", cfg.AppName)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("Received signal %s, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.WithError(err).Error("Failed to close kafka producer")
		}
	}
}

func newZapLogger(cfg config.Config) *zap.Logger {
	if cfg.PrettyLogs {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	logger, _ := zap.NewProduction()
	return logger
}

func connectDatabase(cfg config.Config, logger ectologger.Logger) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword,
		cfg.DatabaseName, cfg.DatabaseSSLMode)

	db, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	logger.WithFields(map[string]any{
		"host": cfg.DatabaseHost,
		"name": cfg.DatabaseName,
	}).Info("Connected to database")

	return db, nil
}

func runMigrations(cfg config.Config, logger ectologger.Logger, db *sqlx.DB) error {
	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	return migrations.Migrate(cfg.DatabaseName, driver)
}

func initTracing(ctx context.Context, cfg config.Config) (func(context.Context) error, error) {
	exporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
		Endpoint: cfg.TracingOTLPEndpoint,
		Protocol: cfg.TracingOTLPProtocol,
		Insecure: cfg.TracingInsecure,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.AppName),
		)),
	)
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	return provider.Shutdown, nil
}

func buildService(db database.DB, producer *kafka.Producer, cfg config.Config, logger ectologger.Logger) *versioning.Service {
	versionRepository := versionrepo.NewRepository(db, logger)
	branchRepository := branchrepo.NewRepository(db, logger)
	lockRepository := lockrepo.NewRepository(db, logger)
	diffRepository := diffrepo.NewRepository(db, logger)
	approvalRepository := approvalrepo.NewRepository(db, logger)
	mergeRepository := mergerepo.NewRepository(db, logger)

	branchManager := branches.NewManager(logger, branchRepository, versionRepository)
	lockManager := locks.NewManager(logger, lockRepository, cfg.LockDefaultTTL)
	approvalWorkflow := approvals.NewWorkflow(logger, versionRepository, approvalRepository)
	mergeCoordinator := merging.NewCoordinator(logger, db, branchRepository, versionRepository, mergeRepository)

	var publisher events.Publisher
	if producer != nil {
		publisher = producer
	}
	emitter := events.NewEmitter(publisher, logger)

	return versioning.NewService(
		logger,
		versionRepository,
		diffRepository,
		branchManager,
		lockManager,
		approvalWorkflow,
		mergeCoordinator,
		emitter,
	)
}

// dependency adapts start/stop funcs to the startup sequencing interface.
type dependency struct {
	name      string
	dependsOn []string
	start     func(context.Context) error
	stop      func(context.Context) error
}

func (d *dependency) GetName() string                 { return d.name }
func (d *dependency) DependsOn() []string             { return d.dependsOn }
func (d *dependency) Start(ctx context.Context) error { return d.start(ctx) }
func (d *dependency) Stop(ctx context.Context) error  { return d.stop(ctx) }
