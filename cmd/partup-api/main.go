package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/partup/partup/internal/database"
	"github.com/partup/partup/internal/events"
	"github.com/partup/partup/internal/fflags"
	"github.com/partup/partup/internal/handlers"
	"github.com/partup/partup/internal/networks"
	"github.com/partup/partup/internal/routers"
	"github.com/partup/partup/internal/signalbus"
	"github.com/partup/partup/internal/store"
	"github.com/partup/partup/internal/store/gormstore"
	"github.com/partup/partup/internal/store/mongostore"
	"github.com/partup/partup/internal/util"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.18.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc/credentials"
	"gorm.io/gorm"
)

const (
	dbTypePostgres = "postgres"
	dbTypeSqlite   = "sqlite"
	dbTypeMongo    = "mongodb"
)

var tracer trace.Tracer

func init() {
	tracer = otel.Tracer("partup-api")
}

// @title               Partup API
// @description         Networks, memberships and invitations of Partup uppers.
// @version             1.0
// @BasePath            /api
func main() {
	// Override to capitalize "Show"
	cli.HelpFlag.(*cli.BoolFlag).Usage = "Show help"
	app := &cli.Command{
		Name:  "partup-api",
		Usage: "Serve the Partup networks API",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Value:   false,
				Usage:   "Enable debug logging",
				Sources: cli.EnvVars("PARTUP_DEBUG"),
			},
			&cli.StringFlag{
				Name:    "listen",
				Value:   "0.0.0.0:8080",
				Usage:   "The address and port to listen for HTTP requests on",
				Sources: cli.EnvVars("PARTUP_LISTEN"),
			},
			&cli.StringFlag{
				Name:    "db-type",
				Value:   dbTypePostgres,
				Usage:   "Storage backend: postgres, sqlite or mongodb",
				Sources: cli.EnvVars("PARTUP_DB_TYPE"),
			},
			&cli.StringFlag{
				Name:    "db-host",
				Value:   "partup-db",
				Usage:   "Database host name",
				Sources: cli.EnvVars("PARTUP_DB_HOST"),
			},
			&cli.StringFlag{
				Name:    "db-port",
				Value:   "5432",
				Usage:   "Database port",
				Sources: cli.EnvVars("PARTUP_DB_PORT"),
			},
			&cli.StringFlag{
				Name:    "db-user",
				Value:   "partup",
				Usage:   "Database user",
				Sources: cli.EnvVars("PARTUP_DB_USER"),
			},
			&cli.StringFlag{
				Name:    "db-password",
				Value:   "secret",
				Usage:   "Database password",
				Sources: cli.EnvVars("PARTUP_DB_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "db-name",
				Value:   "partup",
				Usage:   "Database name",
				Sources: cli.EnvVars("PARTUP_DB_NAME"),
			},
			&cli.StringFlag{
				Name:    "db-sslmode",
				Value:   "disable",
				Usage:   "Database ssl mode",
				Sources: cli.EnvVars("PARTUP_DB_SSLMODE"),
			},
			&cli.StringFlag{
				Name:    "sqlite-path",
				Value:   "partup.db",
				Usage:   "Path of the sqlite database file",
				Sources: cli.EnvVars("PARTUP_SQLITE_PATH"),
			},
			&cli.StringFlag{
				Name:    "mongo-uri",
				Value:   "mongodb://localhost:27017",
				Usage:   "MongoDB connection uri",
				Sources: cli.EnvVars("PARTUP_MONGO_URI"),
			},
			&cli.StringFlag{
				Name:    "mongo-database",
				Value:   "partup",
				Usage:   "MongoDB database name",
				Sources: cli.EnvVars("PARTUP_MONGO_DATABASE"),
			},
			&cli.StringFlag{
				Name:    "mongo-replica-set",
				Usage:   "MongoDB replica set name",
				Sources: cli.EnvVars("PARTUP_MONGO_REPLICA_SET"),
			},
			&cli.StringFlag{
				Name:    "jwt-key",
				Usage:   "HMAC secret or PEM encoded RSA public key that signs bearer tokens",
				Sources: cli.EnvVars("PARTUP_JWT_KEY"),
			},
			&cli.StringFlag{
				Name:    "jwt-key-file",
				Usage:   "File holding the bearer token key",
				Sources: cli.EnvVars("PARTUP_JWT_KEY_FILE"),
			},
			&cli.StringFlag{
				Name:    "oidc-url",
				Usage:   "Issuer url of the oidc provider, used when no jwt key is set",
				Sources: cli.EnvVars("PARTUP_OIDC_URL"),
			},
			&cli.StringFlag{
				Name:    "oidc-client-id",
				Usage:   "OIDC client id tokens are issued to",
				Sources: cli.EnvVars("PARTUP_OIDC_CLIENT_ID"),
			},
			&cli.BoolFlag{
				Name:    "insecure-tls",
				Value:   false,
				Usage:   "Trust any TLS certificate",
				Sources: cli.EnvVars("PARTUP_INSECURE_TLS"),
			},
			&cli.BoolFlag{
				Name:    "trace-insecure",
				Value:   false,
				Usage:   "Set OTLP endpoint to insecure mode",
				Sources: cli.EnvVars("PARTUP_TRACE_INSECURE"),
			},
			&cli.StringFlag{
				Name:    "trace-endpoint",
				Value:   "",
				Usage:   "OTLP endpoint for trace data",
				Sources: cli.EnvVars("PARTUP_TRACE_ENDPOINT_OTLP"),
			},
			&cli.StringFlag{
				Name:    "redis-server",
				Usage:   "Redis host:port address, events are published there when set",
				Sources: cli.EnvVars("PARTUP_REDIS_SERVER"),
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database to be selected after connecting to the server.",
				Value:   1,
				Sources: cli.EnvVars("PARTUP_REDIS_DB"),
			},
			&cli.StringFlag{
				Name:    "redis-channel",
				Usage:   "Redis channel events are published on",
				Value:   "partup.events",
				Sources: cli.EnvVars("PARTUP_REDIS_CHANNEL"),
			},
			&cli.StringSliceFlag{
				Name:    "origins",
				Usage:   "Trusted CORS origins",
				Sources: cli.EnvVars("PARTUP_ORIGINS"),
			},
			&cli.DurationFlag{
				Name:    "dispatch-interval",
				Usage:   "How often the outbox is drained without a signal",
				Value:   events.DefaultInterval,
				Sources: cli.EnvVars("PARTUP_DISPATCH_INTERVAL"),
			},
		},

		Action: func(ctx context.Context, command *cli.Command) error {
			ctx, _ = signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT)
			ctx, span := tracer.Start(ctx, "Run")
			defer span.End()
			withLoggerAndStore(ctx, command, func(logger *zap.Logger, s store.Store, db *gorm.DB, dsn string) {
				pprof_init(ctx, command, logger)
				wg := &sync.WaitGroup{}

				var bus signalbus.SignalBus = signalbus.NewSignalBus()
				if command.String("db-type") == dbTypePostgres {
					pgBus := signalbus.NewPgSignalBus(bus, db, dsn, logger.Sugar())
					pgBus.Start(ctx, wg)
					bus = pgBus
				}

				fflags := fflags.NewFFlags(logger.Sugar())
				service := networks.NewService(logger.Sugar(), s, bus, fflags)

				api, err := handlers.NewAPI(ctx, logger.Sugar(), service, s, fflags)
				if err != nil {
					log.Fatal(err)
				}

				verifier, err := newVerifier(ctx, command)
				if err != nil {
					log.Fatal(err)
				}

				router, err := routers.NewAPIRouter(ctx, routers.APIRouterOptions{
					Logger:      logger.Sugar(),
					Api:         api,
					Service:     service,
					Verifier:    verifier,
					CorsOrigins: command.StringSlice("origins"),
				})
				if err != nil {
					log.Fatal(err)
				}

				sinks := []events.Sink{
					events.LogSink{Logger: logger.Sugar()},
					events.NotificationSink{Store: s},
				}
				if addr := command.String("redis-server"); addr != "" {
					redisClient := redis.NewClient(&redis.Options{
						Addr: addr,
						DB:   int(command.Int("redis-db")),
					})
					defer util.IgnoreError(redisClient.Close)
					sinks = append(sinks, events.RedisSink{Client: redisClient, Channel: command.String("redis-channel")})
				}
				dispatcher := events.NewDispatcher(logger.Sugar(), s, bus, command.Duration("dispatch-interval"), sinks...)
				dispatcher.Start(ctx, wg)

				httpServer := &http.Server{
					Addr:              command.String("listen"),
					Handler:           router,
					ReadTimeout:       5 * time.Second,
					ReadHeaderTimeout: 5 * time.Second,
					WriteTimeout:      10 * time.Second,
				}
				defer util.IgnoreError(httpServer.Close)

				serveErrors := make(chan error, 1)
				go func() {
					if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						serveErrors <- err
					}
				}()
				logger.Sugar().Infow("serving", "listen", command.String("listen"), "store", command.String("db-type"))

				// Wait for a shutdown signal or a server error
				select {
				case err = <-serveErrors:
				case <-ctx.Done():
				}

				// Try to do a graceful shutdown of the server for 5 seconds...
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
					err = shutdownErr
				}

				// background loops stop with ctx
				backgroundDone := make(chan struct{})
				go func() {
					wg.Wait()
					close(backgroundDone)
				}()
				select {
				case <-backgroundDone:
				case <-shutdownCtx.Done():
					logger.Warn("background workers did not stop in time")
				}

				if err != nil {
					log.Fatal(err)
				}
			})
			return nil
		},
	}
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "rollback",
		Usage: "Rollback the last database migration",
		Action: func(ctx context.Context, command *cli.Command) error {
			if command.String("db-type") == dbTypeMongo {
				return fmt.Errorf("the %s store has no migrations", dbTypeMongo)
			}
			withLoggerAndStore(ctx, command, func(logger *zap.Logger, s store.Store, db *gorm.DB, dsn string) {
				if err := database.Migrations().RollbackLast(ctx, db); err != nil {
					log.Fatal(err)
				}
			})
			return nil
		},
	})

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newVerifier(ctx context.Context, command *cli.Command) (routers.TokenVerifier, error) {
	key := []byte(command.String("jwt-key"))
	if path := command.String("jwt-key-file"); path != "" {
		var err error
		if key, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("reading --jwt-key-file: %w", err)
		}
	}
	if len(key) > 0 {
		return routers.NewStaticKeyVerifier(key)
	}
	if issuer := command.String("oidc-url"); issuer != "" {
		return routers.NewOIDCVerifier(ctx, issuer, command.String("oidc-client-id"), command.Bool("insecure-tls"))
	}
	return nil, errors.New("one of --jwt-key, --jwt-key-file or --oidc-url is required")
}

func getLogger(command *cli.Command) *zap.Logger {
	var logger *zap.Logger
	var err error
	// set the log level
	if command.Bool("debug") {
		logConfig := zap.NewProductionConfig()
		logConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		logger, err = logConfig.Build()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatal(err)
	}
	return logger
}

// withLoggerAndStore opens the store selected by --db-type. db and dsn are
// only set for the sql stores, whose schema is migrated before f runs.
func withLoggerAndStore(ctx context.Context, command *cli.Command, f func(logger *zap.Logger, s store.Store, db *gorm.DB, dsn string)) {
	logger := getLogger(command)
	defer func() {
		_ = logger.Sync()
	}()
	cleanup := initTracer(logger.Sugar(), command.Bool("trace-insecure"), command.String("trace-endpoint"))
	defer func() {
		if cleanup == nil {
			return
		}
		if err := cleanup(ctx); err != nil {
			logger.Error(err.Error())
		}
	}()

	var (
		db  *gorm.DB
		dsn string
		s   store.Store
		err error
	)
	switch dbType := command.String("db-type"); dbType {
	case dbTypePostgres:
		db, dsn, err = database.NewDatabase(
			ctx,
			logger.Sugar(),
			command.String("db-host"),
			command.String("db-user"),
			command.String("db-password"),
			command.String("db-name"),
			command.String("db-port"),
			command.String("db-sslmode"),
		)
	case dbTypeSqlite:
		db, err = database.NewSqliteDatabase(logger.Sugar(), command.String("sqlite-path"))
	case dbTypeMongo:
		s, err = mongostore.New(ctx, logger.Sugar(), mongostore.Config{
			URI:        command.String("mongo-uri"),
			Database:   command.String("mongo-database"),
			ReplicaSet: command.String("mongo-replica-set"),
		})
	default:
		err = fmt.Errorf("unknown --db-type %q", dbType)
	}
	if err != nil {
		log.Fatal(err)
	}

	if db != nil {
		// rollback must not migrate forward first
		if command.Name != "rollback" {
			if err := database.Migrations().Migrate(ctx, db); err != nil {
				log.Fatal(err)
			}
		}
		if s, err = gormstore.New(db); err != nil {
			log.Fatal(err)
		}
	}
	defer util.IgnoreError(s.Close)

	f(logger, s, db, dsn)
}

func initTracer(logger *zap.SugaredLogger, insecure bool, collector string) func(context.Context) error {
	if collector == "" {
		logger.Info("No collector endpoint configured")
		otel.SetTracerProvider(
			sdktrace.NewTracerProvider(
				sdktrace.WithSampler(sdktrace.AlwaysSample()),
			),
		)
		return nil
	}
	secureOption := otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, ""))
	if insecure {
		secureOption = otlptracegrpc.WithInsecure()
	}
	exporter, err := otlptrace.New(
		context.Background(),
		otlptracegrpc.NewClient(
			secureOption,
			otlptracegrpc.WithEndpoint(collector),
		),
	)
	if err != nil {
		logger.Errorf("Unable to create open telemetry exporter: %s", err.Error())
		return nil
	}

	deployEnvironment := util.Getenv("PARTUP_ENVIRONMENT", "development")

	otel.SetTracerProvider(
		sdktrace.NewTracerProvider(
			sdktrace.WithResource(resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceName("partup-api"),
				semconv.DeploymentEnvironment(deployEnvironment),
				attribute.String("library.language", "go"),
			)),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithBatcher(exporter),
		),
	)
	return exporter.Shutdown
}
