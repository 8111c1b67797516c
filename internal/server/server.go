package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/lexgraph/internal/bootstrap"
	"github.com/OFFIS-RIT/lexgraph/internal/config"
	"github.com/OFFIS-RIT/lexgraph/internal/queue"
	mid "github.com/OFFIS-RIT/lexgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/lexgraph/pkg/leaselock"
	"github.com/OFFIS-RIT/lexgraph/pkg/logger"
	"github.com/OFFIS-RIT/lexgraph/pkg/validation"
	vpgx "github.com/OFFIS-RIT/lexgraph/pkg/validation/pgx"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/golang-migrate/migrate/v4"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// New builds the echo instance serving app.
func New(app *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("16M"))

	RegisterRoutes(e)
	return e
}

// Migrate applies the SQL migrations in dir to databaseURL.
func Migrate(databaseURL, dir string) error {
	m, err := migrate.New("file://"+dir, databaseURL)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if err == nil {
		logger.Info("[Server] Database migrated", "version", version, "dirty", dirty)
	}
	return nil
}

// Init wires the validation API from cfg and serves it until SIGINT or
// SIGTERM.
func Init(cfg config.Config) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.ValidateServer(); err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}

	if err := Migrate(cfg.DatabaseURL, cfg.Server.MigrationsDir); err != nil {
		logger.Fatal("Failed to migrate database", "err", err)
	}

	conn, err := bootstrap.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()

	storage, err := bootstrap.NewGraphStorage(ctx, cfg.Graph, nil)
	if err != nil {
		logger.Fatal("Failed to open graph storage", "err", err)
	}
	defer storage.Close(context.Background())

	opts := validation.Options{
		Locker:    leaselock.New(conn).Guard(leaselock.Options{TTL: time.Minute, Wait: true}),
		AutoApply: cfg.Server.AutoApply,
	}

	if cfg.RabbitMQ.User != "" {
		que, err := queue.Dial(cfg.RabbitMQ)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", "err", err)
		}
		defer que.Close()
		ch, err := que.Channel()
		if err != nil {
			logger.Fatal("Failed to open channel", "err", err)
		}
		defer ch.Close()
		if err := queue.SetupQueues(ch, []string{queue.IngestQueue}); err != nil {
			logger.Fatal("Failed to set up queues", "err", err)
		}
		opts.Publisher = queue.NewGraphPublisher(ch)
	}

	app := &mid.App{
		Validation:     validation.NewService(vpgx.NewRepository(conn), storage, opts),
		Storage:        storage,
		MasterAPIKey:   cfg.Server.MasterAPIKey,
		MasterUserID:   cfg.Server.MasterUserID,
		MasterUserRole: "admin",
	}

	if cfg.Server.AuthURL != "" {
		k, err := keyfunc.NewDefaultCtx(ctx, []string{cfg.Server.AuthURL + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		app.Keyfunc = k.Keyfunc
	}

	e := New(app)

	go func() {
		logger.Info("Starting server", "port", cfg.Server.Port)
		if err := e.Start(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
