package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kapantask/config"
	"kapantask/jobs"
	"kapantask/notify"
	"kapantask/storage"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	config.ConfigureLogging()
	logger := log.StandardLogger()
	log.Info("notification worker starting")

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}
	queueName := config.String("NOTIFICATION_QUEUE", "notifications")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue, err := jobs.NewAzureQueue(connStr, queueName, config.Duration("JOB_VISIBILITY_TIMEOUT", 5*time.Minute))
	if err != nil {
		log.Fatalf("queue: %v", err)
	}

	var deduper jobs.Deduper
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		client := redis.NewClient(config.RedisOptions(redisConn))
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warnf("redis ping: %v", err)
		}
		deduper = jobs.NewRedisDeduper(client, "jobs", config.Duration("DEDUPER_TTL", 24*time.Hour))
	} else {
		log.Warn("REDIS_CONNECTION_STRING not set; redeliveries are not deduplicated")
	}

	var recorder notify.Recorder
	if table := os.Getenv("NOTIFICATION_RESULTS_TABLE"); table != "" {
		tr, err := notify.NewTableRecorder(connStr, table)
		if err != nil {
			log.Fatalf("results table: %v", err)
		}
		recorder = tr
	}

	store, err := storage.Open(config.String("DATABASE_URL", "kapantask.db"), storage.Options{Logger: logger})
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer store.Close()

	dispatcher := notify.NewDispatcher(store, notify.TransportFromEnv(), notify.DefaultsFromEnv(), logger)
	consumer := jobs.NewConsumer(queue, notify.NewRouter(dispatcher, recorder, logger), deduper, jobs.ConsumerConfig{
		PollInterval: config.Duration("JOB_POLL_INTERVAL", time.Second),
		JobTimeout:   config.Duration("JOB_TIMEOUT", 2*time.Minute),
	}, logger)

	log.WithFields(log.Fields{"queue": queueName}).Info("listening for notification jobs")
	if err := consumer.Run(ctx); err != nil {
		log.Fatalf("consumer: %v", err)
	}
}
