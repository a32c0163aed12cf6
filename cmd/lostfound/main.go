package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/erazemk/lostfound/internal/api"
	"github.com/erazemk/lostfound/internal/captcha"
	"github.com/erazemk/lostfound/internal/config"
	"github.com/erazemk/lostfound/internal/db"
	"github.com/erazemk/lostfound/internal/metrics"
	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/moderation"
	"github.com/erazemk/lostfound/internal/report"
	"github.com/erazemk/lostfound/internal/session"
	"github.com/erazemk/lostfound/internal/store"
)

const usage = `Usage: lostfound [flags] [serve|migrate|promote]

Commands:
  serve                   run the HTTP server (default)
  migrate                 apply database migrations and exit
  promote -email <addr>   change the role of an account (-role, default: admin)

Flags:
  -c, -config <path>      YAML config file (default: $LOSTFOUND_CONFIG)
  -d, -db <path>          SQLite database path (default: lostfound.sqlite3)
  -a, -addr <host:port>   listen address (default: :8080)
  -u, -user <email>       admin email on first run (default: admin@localhost)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -h, -help               show this help and exit

Every setting can also be given as LOSTFOUND_<SECTION>_<KEY>,
e.g. LOSTFOUND_SERVER_ADDR or LOSTFOUND_STORE_TIMEOUT.
`

func main() {
	fs := flag.NewFlagSet("lostfound", flag.ContinueOnError)

	var configPath string
	fs.StringVar(&configPath, "config", "", "")
	fs.StringVar(&configPath, "c", "", "")

	var dbPath string
	fs.StringVar(&dbPath, "db", "", "")
	fs.StringVar(&dbPath, "d", "", "")

	var addr string
	fs.StringVar(&addr, "addr", "", "")
	fs.StringVar(&addr, "a", "", "")

	var adminEmail string
	fs.StringVar(&adminEmail, "user", "", "")
	fs.StringVar(&adminEmail, "u", "", "")

	var logPath string
	fs.StringVar(&logPath, "log", "", "")
	fs.StringVar(&logPath, "l", "", "")

	fs.Usage = func() { fmt.Fprint(os.Stdout, usage) }

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Flags win over the config file and environment.
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if adminEmail != "" {
		cfg.Auth.AdminEmail = adminEmail
	}
	if logPath != "" {
		cfg.Log.Path = logPath
	}

	closeLog, err := setupLogger(os.Stdout, os.Stderr, cfg.Log.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	command := "serve"
	if fs.NArg() > 0 {
		command = fs.Arg(0)
	}

	switch command {
	case "serve":
		err = serve(cfg)
	case "migrate":
		err = migrate(cfg)
	case "promote":
		err = promote(cfg, fs.Args()[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		fs.Usage()
		os.Exit(1)
	}
	if err != nil {
		slog.Error(command+" failed", "error", err)
		closeLog()
		os.Exit(1)
	}
}

// openDatabase opens the configured database and brings its schema up to date.
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func migrate(cfg *config.Config) error {
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	version, dirty, err := db.Version(database)
	if err != nil {
		return err
	}
	slog.Info("database migrated", "path", cfg.Database.Path, "version", version, "dirty", dirty)
	return nil
}

func promote(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("promote", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	rawRole := fs.String("role", string(model.RoleAdmin), "new role: user, employee or admin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("promote: -email is required")
	}
	role, ok := model.ParseRole(*rawRole)
	if !ok {
		return fmt.Errorf("promote: unknown role %q", *rawRole)
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	updated, err := store.SetRoleByEmail(context.Background(), database, *email, role)
	if err != nil {
		return err
	}
	if !updated {
		return fmt.Errorf("promote: no account registered as %s", *email)
	}

	slog.Info("role changed", "email", *email, "role", role)
	return nil
}

func serve(cfg *config.Config) error {
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	slog.Info("database ready", "path", cfg.Database.Path)

	ctx := context.Background()

	// Load JWT secret from database (auto-generated on first run).
	jwtSecret, err := store.GetJWTSecret(ctx, database)
	if err != nil {
		return fmt.Errorf("getting JWT secret: %w", err)
	}

	sessions := session.NewManager(database, jwtSecret, cfg.Auth.TokenTTL)
	defer sessions.Close()

	password, created, err := sessions.Bootstrap(ctx, cfg.Auth.AdminEmail)
	if err != nil {
		return fmt.Errorf("creating admin account: %w", err)
	}
	if created {
		printInitResult(cfg.Database.Path, cfg.Auth.AdminEmail, password)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)
	defer watchSessions(sessions, collector)()

	items := store.ItemRepo{DB: database}
	objects := store.ObjectRepo{DB: database}

	router := api.NewRouter(api.Deps{
		DB:             database,
		Sessions:       sessions,
		Captcha:        captcha.NewGate(cfg.Captcha.TTL, cfg.Captcha.MaxLive),
		Reports:        report.NewService(items, objects, collector, cfg.Upload.MaxBytes, cfg.Store.Timeout),
		Moderation:     moderation.NewService(items, objects, collector, cfg.Store.Timeout),
		Metrics:        collector,
		Gatherer:       reg,
		InviteTTL:      cfg.Auth.InviteTTL,
		MaxUploadBytes: cfg.Upload.MaxBytes,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		defer close(done)
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	<-done

	slog.Info("server stopped, closing database")
	return nil
}

// watchSessions counts and logs every session event until the returned
// function is called.
func watchSessions(sessions *session.Manager, c *metrics.Collector) func() {
	return sessions.Subscribe(func(e session.Event) {
		c.RecordSessionEvent(string(e.Kind))
		slog.Debug("session event", "kind", e.Kind, "user_id", e.Identity.ID)
	})
}

// printInitResult prints the first-run admin credentials to stdout.
func printInitResult(dbPath, email, password string) {
	fmt.Printf("Database initialized: %s\n", dbPath)
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Email:    %s\n", email)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
	fmt.Println()
}
