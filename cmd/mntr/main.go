// Command mntr runs the page change-detection service: the HTTP API, the
// due-page scheduler, and the check workers, all on one SQLite database.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazyhaar/mntr/dbopen"
	"github.com/hazyhaar/mntr/monitor"
	"github.com/hazyhaar/mntr/notify"
	_ "modernc.org/sqlite"
)

func main() {
	port := getenv("PORT", "8080")
	dbPath := getenv("MNTR_DB", "data/mntr.db")
	configPath := getenv("MNTR_CONFIG", "mntr.yaml")

	var lvl slog.Level
	switch getenv("LOG_LEVEL", "info") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := monitor.LoadConfigFile(configPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	db, err := dbopen.Open(dbPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// The dispatcher looks settings up through the service, which does not
	// exist yet. The closure only runs once checks start, after New returns.
	var svc *monitor.Service
	notifyOpts := []notify.DispatcherOption{
		notify.WithLogger(logger),
		notify.WithSender(monitor.ChannelSlack, notify.NewSlackSender()),
	}
	if addr := os.Getenv("SMTP_ADDR"); addr != "" {
		notifyOpts = append(notifyOpts, notify.WithSender(monitor.ChannelEmail,
			notify.NewEmailSender(notify.EmailConfig{
				Addr:     addr,
				From:     getenv("SMTP_FROM", "mntr@localhost"),
				Username: os.Getenv("SMTP_USERNAME"),
				Password: os.Getenv("SMTP_PASSWORD"),
			})))
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		notifyOpts = append(notifyOpts, notify.WithSender(monitor.ChannelTelegram,
			notify.NewTelegramSender(notify.TelegramConfig{BotToken: token})))
	}
	dispatcher := notify.NewDispatcher(
		func(ctx context.Context, userID string) (*monitor.NotificationSettings, error) {
			return svc.GetNotificationSettings(ctx, userID)
		},
		notifyOpts...,
	)

	svc, err = monitor.New(db, cfg, logger, monitor.WithNotifier(dispatcher))
	if err != nil {
		slog.Error("monitor service", "error", err)
		os.Exit(1)
	}

	svc.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           newRouter(svc),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port, "db", dbPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
