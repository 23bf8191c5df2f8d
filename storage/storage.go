// Package storage persists departments, users, tasks, comments and email
// configuration with gorm.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"kapantask/domain"
)

// Options configures Open.
type Options struct {
	// Now is the clock used for timestamps and overdue queries.
	Now func() time.Time
	// Enqueuer receives notification jobs for newly created tasks and
	// comments. Nil disables the hooks.
	Enqueuer Enqueuer
	Logger   *log.Logger
}

// Store is the relational persistence layer.
type Store struct {
	db     *gorm.DB
	now    func() time.Time
	logger *log.Logger
}

// Open connects to dsn. Postgres URLs and keyword DSNs select the postgres
// driver; anything else is treated as a sqlite file path.
func Open(dsn string, opts Options) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("storage: empty dsn")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	now := opts.Now

	db, err := gorm.Open(dialector(dsn), &gorm.Config{
		NowFunc:        func() time.Time { return now().UTC() },
		TranslateError: true,
		Logger: gormlogger.New(opts.Logger, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if opts.Enqueuer != nil {
		if err := db.Use(&notificationHooks{enqueuer: opts.Enqueuer, logger: opts.Logger}); err != nil {
			return nil, fmt.Errorf("register notification hooks: %w", err)
		}
	}
	return &Store{db: db, now: now, logger: opts.Logger}, nil
}

func dialector(dsn string) gorm.Dialector {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") || strings.Contains(lower, "host=") {
		return postgres.Open(dsn)
	}
	if !strings.Contains(dsn, "_foreign_keys") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_foreign_keys=on&_busy_timeout=5000"
	}
	return sqlite.Open(dsn)
}

// Migrate creates or updates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&domain.Department{},
		&domain.User{},
		&domain.Task{},
		&domain.Comment{},
		&domain.EmailConfiguration{},
	)
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) utcNow() time.Time {
	return s.now().UTC()
}

// translate maps gorm errors onto domain sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return domain.ErrConflict
	}
	return err
}
