package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"classcheck/internal/attendance"
	"classcheck/internal/config"
	"classcheck/internal/logging"
	"classcheck/internal/metrics"
	"classcheck/internal/queue"
	"classcheck/internal/store"
)

// Worker consumes accepted submissions and audits each event for
// multi-device use of the same identity.
func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.Queue.Backend == "memory" {
		log.Warn().Msg("memory queue is process-local; the worker will see no messages from the api")
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.Queue.Key)
	}

	auditor := attendance.NewAuditor(attendance.NewRepository(db.Client), cfg.Security.AuditWindow)
	m := metrics.New(prometheus.DefaultRegisterer)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("queue consume init failed")
	}

	log.Info().Str("queue", cfg.Queue.Key).Msg("worker started")
	for msg := range messages {
		if msg.Type != queue.TypeSubmitted {
			log.Debug().Str("type", msg.Type).Msg("skipping message")
			continue
		}
		var body queue.Submitted
		if err := msg.Decode(&body); err != nil {
			log.Warn().Err(err).Msg("undecodable message")
			continue
		}

		status, err := auditor.Audit(ctx, body.EventID)
		if err != nil {
			log.Error().Err(err).Str("event_id", body.EventID).Msg("audit failed")
			m.Processed("error")
			continue
		}
		m.Processed(status)
		ev := log.Info()
		if status == attendance.StatusFlagged {
			ev = log.Warn()
		}
		ev.Str("event_id", body.EventID).Str("roll", body.Roll).Str("status", status).Msg("event audited")
	}

	log.Info().Msg("worker stopped")
}
