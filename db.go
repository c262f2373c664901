package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"sosmed/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openDB connects to Postgres. TranslateError maps driver unique violations
// to gorm.ErrDuplicatedKey.
func openDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("DB_DSN is not set. This project requires a Postgres DSN in DB_DSN")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres database: %w", err)
	}
	return db, nil
}

// migrate creates or updates every table. Models are migrated one by one so
// the log names the table that failed.
func migrate(db *gorm.DB, log *slog.Logger) error {
	steps := []struct {
		table string
		model any
	}{
		{"users", &models.User{}},
		{"follows", &models.Follow{}},
		{"posts", &models.Post{}},
		{"comments", &models.Comment{}},
		{"notifications", &models.Notification{}},
	}
	for _, s := range steps {
		if err := db.AutoMigrate(s.model); err != nil {
			log.Error("migration failed", slog.String("table", s.table), slog.Any("error", err))
			return fmt.Errorf("migrate %s: %w", s.table, err)
		}
	}
	return nil
}

// isUniqueConstraintError reports whether err is a unique-key violation from
// any of the drivers in use.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") ||
		strings.Contains(s, "unique constraint") ||
		strings.Contains(s, "UNIQUE constraint failed")
}
