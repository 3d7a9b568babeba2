// Package server wires configuration, storage and the auth services together
// and runs the HTTP API next to the gRPC health endpoint until a shutdown
// signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/httpapi"
	"github.com/dmitrijs2005/gophauth/internal/server/notify"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/dmitrijs2005/gophauth/internal/server/storage"

	gs "github.com/dmitrijs2005/gophauth/internal/server/grpc"
)

const shutdownTimeout = 5 * time.Second

// openDB and newRepoManager are swapped in tests.
var (
	openDB         = repomanager.Open
	newRepoManager = repomanager.NewPostgresRepositoryManager
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	notifier notify.Notifier
	http     *httpapi.Server
	health   *gs.HealthServer
}

func newNotifier(c *config.Config, logger logging.Logger) notify.Notifier {
	if len(c.KafkaBrokers) == 0 {
		return notify.NewLogNotifier(logger)
	}
	return notify.NewKafkaNotifier(c.KafkaBrokers, c.KafkaTopic, logger)
}

// NewApp opens and migrates the database and builds every component.
func NewApp(ctx context.Context, c *config.Config, out io.Writer) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger := logging.NewJSON(out, c.LogLevel)
	if names := c.DefaultSecrets(); len(names) > 0 {
		logger.Warn(ctx, "development secrets in use, override them in production", "secrets", names)
	}

	db, err := openDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := newRepoManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	var issuerOpts []auth.IssuerOption
	if c.JWTIssuer != "" {
		issuerOpts = append(issuerOpts, auth.WithIssuerName(c.JWTIssuer))
	}
	issuer := auth.NewIssuer([]byte(c.JWTSecret), issuerOpts...)
	hasher := auth.NewBcryptHasher(c.BcryptCost)
	notifier := newNotifier(c, logger)

	us := services.NewUserService(db, rm, hasher, storage.NewAvatarStore(c), logger)
	ts := services.NewTokenService(db, rm, issuer, c, logger)
	as := services.NewAuthService(db, rm, us, ts, hasher, notifier, logger)
	guard := auth.NewGuard(issuer, us, nil, logger)

	return &App{
		config:   c,
		logger:   logger,
		db:       db,
		notifier: notifier,
		http:     httpapi.NewServer(c.HTTPAddr, c.CORSOrigins, as, us, guard, logger),
		health:   gs.NewHealthServer(c.GRPCAddr, db, logger, 0),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.health.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.http.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	if err := app.http.Start(); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
	<-stopped
}

// Run blocks until ctx is canceled or a termination signal arrives, then
// stops both servers and releases the database and notifier.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.close(context.Background())
}

func (app *App) close(ctx context.Context) {
	if err := app.notifier.Close(); err != nil {
		app.logger.Error(ctx, "notifier close", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
