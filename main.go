package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace/auth"
	"marketplace/config"
	"marketplace/database"
	"marketplace/handlers"
	"marketplace/jobs"
	"marketplace/logger"
	"marketplace/media"
	"marketplace/metrics"
	"marketplace/middleware"
	"marketplace/notify"
	"marketplace/payment"
	"marketplace/routes"
	"marketplace/websocket"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("Server exited")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	log.Info("Starting marketplace API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	db, err := database.Connect(connectCtx, cfg.Mongo.URI, cfg.Mongo.Database, log)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Disconnect(); err != nil {
			log.WithError(err).Warn("MongoDB disconnect failed")
		}
	}()

	indexCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = db.EnsureIndexes(indexCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	st := db.Store()

	m := metrics.New()

	allowed := make(map[string]bool, len(cfg.Server.CORSOrigins))
	for _, o := range cfg.Server.CORSOrigins {
		allowed[o] = true
	}
	ws := websocket.NewManager(log, func(origin string) bool { return allowed[origin] })
	go ws.Run(ctx)

	var notifiers []notify.Notifier
	redisPub, err := notify.NewRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, pub/sub notifications disabled")
	} else if redisPub != nil {
		defer redisPub.Close()
		notifiers = append(notifiers, redisPub)
	}
	push := notify.NewWebPush(st.PushSubscriptions, cfg.Push, log)
	if push.Enabled() {
		notifiers = append(notifiers, push)
	} else {
		log.Warn("VAPID keys not set, web push disabled (generate a pair with cmd/vapidgen)")
	}
	dispatcher := notify.NewDispatcher(log, notifiers...)

	deps := &handlers.Deps{
		Store:       st,
		Tokens:      auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Expiry),
		Gateway:     payment.NewGateway(cfg.Payment.KeyID, cfg.Payment.KeySecret),
		Events:      ws,
		Notify:      dispatcher,
		Push:        push,
		Google:      handlers.GoogleOAuthConfig(cfg.Google),
		Payments:    m,
		Log:         log,
		Currency:    cfg.Payment.Currency,
		ReportDelay: cfg.Jobs.ReportDelay,
		ToggleDelay: cfg.Jobs.ToggleDelay,
	}

	cld, err := media.NewCloudinary(cfg.Media)
	if err != nil {
		return err
	}
	if cld != nil {
		deps.Media = cld
	} else {
		log.Warn("CLOUDINARY_URL not set, avatar uploads disabled")
	}

	runner := jobs.NewRunner(st.Jobs, log, jobs.WithRecorder(m), jobs.WithPublisher(ws))
	jobs.NewTasks(st, cfg.Jobs.FailureRate).Register(runner)
	recovered, err := runner.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}
	if recovered > 0 {
		log.WithField("jobs", recovered).Info("Re-armed pending jobs")
	}
	if err := runner.Start(cfg.Jobs.SweepSchedule); err != nil {
		return fmt.Errorf("start job sweeper: %w", err)
	}
	defer runner.Stop()
	deps.Jobs = runner

	gin.SetMode(cfg.Server.GinMode)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, log)
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup(10 * time.Minute)
			}
		}
	}()

	router, err := routes.SetupRouter(deps, routes.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		StaticDir:   cfg.Server.StaticDir,
		Metrics:     m,
		RateLimiter: limiter,
		Realtime:    ws,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Server.Port).Info("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Forced shutdown")
	}
	log.Info("Server stopped")
	return nil
}
