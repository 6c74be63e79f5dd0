package db

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jasujm/bridgeapp/internal/models"
)

type DB struct {
	*gorm.DB
}

type Config struct {
	// Path is the SQLite database file, or ":memory:" for tests.
	Path string
}

func New(cfg Config) (*DB, error) {
	gdb, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.Path, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := gdb.AutoMigrate(&models.User{}, &models.GameRecord{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	log.Printf("[DB] Connected to %s", cfg.Path)
	return &DB{gdb}, nil
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
