package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kapantask/api"
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

	sessionSecret := os.Getenv("SESSION_SECRET")
	if sessionSecret == "" {
		log.Fatal("missing SESSION_SECRET")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue, memQueue := openQueue()
	sender := jobs.NewSender(queue, jobs.SenderConfig{
		Workers:        config.Int("JOB_WORKERS", 2),
		Buffer:         config.Int("JOB_BUFFER", 256),
		EnqueueTimeout: config.Duration("JOB_ENQUEUE_TIMEOUT", 30*time.Second),
		HandoffTimeout: config.Duration("JOB_HANDOFF_TIMEOUT", 25*time.Millisecond),
	}, logger)

	store, err := storage.Open(config.String("DATABASE_URL", "kapantask.db"), storage.Options{Enqueuer: sender, Logger: logger})
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer store.Close()
	if config.Bool("AUTO_MIGRATE", false) {
		if err := store.Migrate(ctx); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	// The embedded consumer outlives the signal context so jobs flushed by
	// sender.Close at shutdown are still delivered.
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	consumerDone := make(chan struct{})
	if memQueue != nil {
		log.Warn("STORAGE_CONNECTION_STRING not set; using in-process job queue")
		dispatcher := notify.NewDispatcher(store, notify.TransportFromEnv(), notify.DefaultsFromEnv(), logger)
		consumer := jobs.NewConsumer(queue, notify.NewRouter(dispatcher, nil, logger), newDeduper(), jobs.ConsumerConfig{
			PollInterval: config.Duration("JOB_POLL_INTERVAL", 500*time.Millisecond),
			JobTimeout:   config.Duration("JOB_TIMEOUT", 2*time.Minute),
		}, logger)
		go func() {
			defer close(consumerDone)
			_ = consumer.Run(consumerCtx)
		}()
	} else {
		close(consumerDone)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	api.Register(e, store, newAuthenticator(), api.NewSessionStore([]byte(sessionSecret), config.Bool("SESSION_SECURE", false)), logger, nil)

	listenAddr := config.String("LISTEN_ADDR", ":8080")
	go func() {
		if err := e.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Errorf("http shutdown: %v", err)
	}
	sender.Close()
	if memQueue != nil {
		drainCtx, cancelDrain := context.WithTimeout(context.Background(), config.Duration("JOB_DRAIN_TIMEOUT", 30*time.Second))
		if err := memQueue.WaitIdle(drainCtx); err != nil {
			log.WithField("jobs", memQueue.Unfinished()).Warn("undelivered notification jobs dropped at shutdown")
		}
		cancelDrain()
	}
	stopConsumer()
	<-consumerDone
}

// openQueue returns the Azure queue when configured and an in-process queue
// otherwise; mem is set only in the latter case.
func openQueue() (q jobs.Queue, mem *jobs.MemoryQueue) {
	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		mem = jobs.NewMemoryQueue()
		return mem, mem
	}
	name := config.String("NOTIFICATION_QUEUE", "notifications")
	aq, err := jobs.NewAzureQueue(connStr, name, config.Duration("JOB_VISIBILITY_TIMEOUT", 5*time.Minute))
	if err != nil {
		log.Fatalf("queue: %v", err)
	}
	return aq, nil
}

// newAuthenticator enables bearer tokens when a shared secret or a JWKS URL
// is configured.
func newAuthenticator() api.Authenticator {
	audience := os.Getenv("AUTH_AUDIENCE")
	issuer := os.Getenv("AUTH_ISSUER")
	ttl := config.Duration("JWKS_CACHE_TTL", 15*time.Minute)
	if secret := os.Getenv("AUTH_JWT_SECRET"); secret != "" {
		return api.NewAuth(nil, []byte(secret), audience, issuer, ttl)
	}
	if jwksURL := os.Getenv("AUTH_JWKS_URL"); jwksURL != "" {
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{RefreshInterval: time.Hour})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		return api.NewAuth(jwks, nil, audience, issuer, ttl)
	}
	return nil
}

// newDeduper returns nil when REDIS_CONNECTION_STRING is unset.
func newDeduper() jobs.Deduper {
	conn := os.Getenv("REDIS_CONNECTION_STRING")
	if conn == "" {
		return nil
	}
	client := redis.NewClient(config.RedisOptions(conn))
	return jobs.NewRedisDeduper(client, "jobs", config.Duration("DEDUPER_TTL", 24*time.Hour))
}
