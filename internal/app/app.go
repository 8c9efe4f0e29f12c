package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aliuyar1234/traineeportal/internal/audit"
	"github.com/aliuyar1234/traineeportal/internal/cohorts"
	"github.com/aliuyar1234/traineeportal/internal/config"
	"github.com/aliuyar1234/traineeportal/internal/db"
	"github.com/aliuyar1234/traineeportal/internal/identity"
	"github.com/aliuyar1234/traineeportal/internal/invites"
	"github.com/aliuyar1234/traineeportal/internal/notifications"
	"github.com/aliuyar1234/traineeportal/internal/notify"
	"github.com/aliuyar1234/traineeportal/internal/profiles"
	"github.com/aliuyar1234/traineeportal/internal/signup"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// App holds the application state
type App struct {
	Config *config.Config
	DB     *pgxpool.Pool
	Router http.Handler

	server *http.Server
}

// Pinger reports database reachability for /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services is everything the HTTP layer depends on.
type Services struct {
	Invites     *invites.Service
	Dispatcher  *invites.Dispatcher
	Identities  *identity.Service
	Profiles    profiles.Store
	Cohorts     *cohorts.Service
	Broadcasts  *notifications.Service
	Registrar   *signup.Registrar
	Auditor     *audit.Writer
	AuditReader *audit.Reader
	DB          Pinger
}

// New creates and initializes a new application instance
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	setupLogger(cfg.LogLevel, cfg.IsDev())

	log.Info().Msg("Initializing trainee portal")
	log.Info().Interface("config", cfg.RedactedValues()).Msg("Configuration loaded")

	log.Info().Msg("Connecting to database...")
	pool, err := db.Connect(ctx, cfg.DBDSN, db.PoolOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info().Msg("Database connection established")

	if cfg.IsDev() {
		log.Info().Msg("Development mode: running migrations automatically")
		if err := db.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	} else {
		pending, err := db.PendingMigrations(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to check migrations: %w", err)
		}
		if len(pending) > 0 {
			log.Warn().Strs("pending", pending).Msg("Production mode: migrations pending, run `traineeportal admin migrate`")
		}
	}

	notifier, err := NewNotifier(ctx, cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	log.Info().Str("notifier", notifier.Name()).Msg("Notifier configured")

	svc := NewServices(cfg, pool, notifier)

	app := &App{
		Config: cfg,
		DB:     pool,
		Router: NewRouter(cfg, svc),
	}

	log.Info().Msg("Application initialized successfully")
	return app, nil
}

// NewServices wires the Postgres-backed stores into the domain services.
func NewServices(cfg *config.Config, pool *pgxpool.Pool, notifier notify.Notifier) *Services {
	auditor := audit.NewWriter(pool)
	profileStore := profiles.NewPostgresStore(pool)

	tokens := invites.NewService(invites.NewPostgresStore(pool), invites.Options{
		DefaultValidityDays: cfg.InviteDays,
		StoreTimeout:        cfg.StoreTimeout(),
		ClaimTTL:            cfg.ClaimTTL(),
	})
	idents := identity.NewService(identity.NewPostgresStore(pool), identity.BcryptCost)

	broadcasts := notifications.NewService(notifications.NewPostgresStore(pool), profileStore, notifier, notifications.Options{
		StoreTimeout: cfg.StoreTimeout(),
	})

	return &Services{
		Invites:     tokens,
		Dispatcher:  invites.NewDispatcher(notifier, cfg.BaseURL, time.UTC),
		Identities:  idents,
		Profiles:    profileStore,
		Cohorts:     cohorts.NewService(cohorts.NewPostgresStore(pool)),
		Broadcasts:  broadcasts,
		Registrar:   signup.NewRegistrar(tokens, idents, profileStore, auditor, cfg.StoreTimeout()),
		Auditor:     auditor,
		AuditReader: audit.NewReader(pool),
		DB:          pool,
	}
}

// NewNotifier builds the delivery backend selected by TP_NOTIFIER.
func NewNotifier(ctx context.Context, cfg *config.Config) (notify.Notifier, error) {
	var n notify.Notifier
	switch cfg.Notifier {
	case config.NotifierWebhook:
		n = notify.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookSecret, cfg.NotifierTimeout())
	case config.NotifierSES:
		ses, err := notify.NewSESNotifier(ctx, cfg.SESRegion, cfg.SESFromEmail, cfg.SESFromName)
		if err != nil {
			return nil, fmt.Errorf("failed to configure SES notifier: %w", err)
		}
		n = ses
	default:
		n = notify.NewLogNotifier()
	}
	return notify.WithTimeout(n, cfg.NotifierTimeout()), nil
}

// Start starts the HTTP server
func (a *App) Start() error {
	addr := a.Config.HTTPAddr
	log.Info().Str("addr", addr).Msg("Starting HTTP server")

	a.server = &http.Server{
		Addr:         addr,
		Handler:      a.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a.server.ListenAndServe()
}

// Shutdown drains in-flight requests, then closes the pool.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	if a.server != nil {
		err = a.server.Shutdown(ctx)
	}
	a.Close()
	return err
}

// Close releases the database pool
func (a *App) Close() {
	log.Info().Msg("Shutting down application")
	if a.DB != nil {
		log.Info().Msg("Closing database connection")
		a.DB.Close()
	}
}

// setupLogger configures the global logger
func setupLogger(level string, dev bool) {
	if dev {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Debug().Str("level", level).Msg("Logger configured")
}
