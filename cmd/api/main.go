package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"classcheck/internal/attendance"
	"classcheck/internal/auth"
	"classcheck/internal/config"
	"classcheck/internal/geo"
	"classcheck/internal/handler"
	"classcheck/internal/httpmiddleware"
	"classcheck/internal/logging"
	"classcheck/internal/metrics"
	"classcheck/internal/queue"
	"classcheck/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	issueToken := flag.String("issue-token", "", "print an instructor token for the given name and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Pretty)

	if *issueToken != "" {
		tok, exp, err := auth.NewSigner(cfg.JWT.Issuer, cfg.JWT.SigningKey).IssueInstructor(*issueToken, cfg.JWT.AccessTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("issue token")
		}
		fmt.Println(tok)
		log.Info().Time("expires_at", exp).Msg("instructor token issued")
		return
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

func run(cfg config.App, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.Database.URL)
	if db == nil {
		return fmt.Errorf("open db: %w", err)
	}
	if err != nil {
		log.Warn().Err(err).Msg("db not reachable, starting degraded")
	}
	defer db.Close()

	repo := attendance.NewRepository(db.Client)
	if err == nil {
		if err := repo.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	redisClient := store.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.Queue.Backend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.Queue.Key)
	}

	signer := auth.NewSigner(cfg.JWT.Issuer, cfg.JWT.SigningKey)
	svc := attendance.NewService(repo, attendance.Policy{
		Room:        geo.Coordinate{Lat: cfg.Room.Lat, Lon: cfg.Room.Lon},
		MaxDistance: cfg.Room.MaxDistance,
		TokenSalt:   cfg.Security.TokenSalt,
		TokenSkew:   time.Duration(cfg.Security.TokenSkew) * time.Minute,
		DedupWindow: cfg.Security.DedupWindow,
		Location:    cfg.Location(),
		Accounts:    signer,
	})

	checks := []handler.Check{{Name: "db", OK: db.Healthy}}
	if cfg.Queue.Backend != "memory" {
		checks = append(checks, handler.Check{Name: "redis", OK: redisClient.Healthy})
	}

	h := handler.New(handler.Deps{
		Recorder:   svc,
		Events:     repo,
		Queue:      q,
		Signer:     signer,
		ReceiptTTL: cfg.JWT.ReceiptTTL,
		AccountTTL: cfg.Security.GraceWindow,
		Cache:      store.NewCache(cfg.HTTP.LookupCacheMB, time.Minute),
		Metrics:    metrics.New(prometheus.DefaultRegisterer),
		Checks:     checks,
		Log:        log,
	})

	limiter := httpmiddleware.NewTokenBucket(cfg.HTTP.RateLimitPerMin, cfg.HTTP.RateLimitPerMin, httpmiddleware.ClientIP)
	go sweep(ctx, limiter)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(log, "/healthz", "/metrics"))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:          24 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders(cfg.Production()))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.Routes(r, limiter.GinMiddleware())

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("room", cfg.Room.Name).Msg("record-keeper listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server exited")
	return nil
}

func sweep(ctx context.Context, l *httpmiddleware.TokenBucket) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep(10 * time.Minute)
		}
	}
}
