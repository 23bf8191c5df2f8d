package main

import (
	"context"
	"errors"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"kapantask/config"
	"kapantask/domain"
	"kapantask/jobs"
	"kapantask/notify"
	"kapantask/storage"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	config.ConfigureLogging()
	log.Info("storage init starting")

	ctx, cancel := context.WithTimeout(context.Background(), config.Duration("INIT_TIMEOUT", 5*time.Minute))
	defer cancel()

	store, err := storage.Open(config.String("DATABASE_URL", "kapantask.db"), storage.Options{Logger: log.StandardLogger()})
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Info("schema migrated")

	if connStr := os.Getenv("STORAGE_CONNECTION_STRING"); connStr != "" {
		if err := createQueue(ctx, connStr, config.String("NOTIFICATION_QUEUE", "notifications")); err != nil {
			log.Fatalf("create queue: %v", err)
		}
		if table := os.Getenv("NOTIFICATION_RESULTS_TABLE"); table != "" {
			if err := createTable(ctx, connStr, table); err != nil {
				log.Fatalf("create table: %v", err)
			}
		}
	}

	if err := bootstrapAdmin(ctx, store); err != nil {
		log.Fatalf("bootstrap admin: %v", err)
	}

	log.Info("storage init complete")
}

func createQueue(ctx context.Context, connStr, name string) error {
	q, err := jobs.NewAzureQueue(connStr, name, 0)
	if err != nil {
		return err
	}
	return q.EnsureExists(ctx)
}

func createTable(ctx context.Context, connStr, name string) error {
	r, err := notify.NewTableRecorder(connStr, name)
	if err != nil {
		return err
	}
	return r.EnsureExists(ctx)
}

// bootstrapAdmin creates the first administrator from ADMIN_USERNAME,
// ADMIN_EMAIL and ADMIN_PASSWORD unless that user already exists.
func bootstrapAdmin(ctx context.Context, store *storage.Store) error {
	username := os.Getenv("ADMIN_USERNAME")
	password := os.Getenv("ADMIN_PASSWORD")
	if username == "" || password == "" {
		return nil
	}
	if _, err := store.GetUserByUsername(ctx, username); err == nil {
		log.WithField("username", username).Info("admin already exists")
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	u := &domain.User{Username: username, Email: os.Getenv("ADMIN_EMAIL"), IsAdmin: true}
	if err := store.CreateUser(ctx, u, password); err != nil {
		return err
	}
	log.WithField("username", username).Info("admin created")
	return nil
}
