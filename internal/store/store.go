// Package store persists Sessions and TestCases via gorm, following the
// teacher's database connection-pool setup pattern (sqlite for local/dev,
// postgres for production).
package store

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"apex-diffrun/pkg/models"
)

// Config selects and tunes the backing database connection.
type Config struct {
	Driver          string // "sqlite" or "postgres"
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open establishes the gorm connection and runs AutoMigrate over the
// core tables.
func Open(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "diffrun.db"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: underlying sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(models.Tables()...); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return db, nil
}

// SessionStore reads Sessions and manages the TestCases attached to a run.
type SessionStore struct {
	DB *gorm.DB
}

func (s *SessionStore) LoadSession(sessionID uint) (*models.Session, error) {
	var session models.Session
	if err := s.DB.First(&session, sessionID).Error; err != nil {
		return nil, fmt.Errorf("store: load session %d: %w", sessionID, err)
	}
	return &session, nil
}

// ClearTestCases deletes every TestCase belonging to sessionID, used to
// reset state before a fresh diff run begins.
func (s *SessionStore) ClearTestCases(sessionID uint) error {
	if err := s.DB.Where("session_id = ?", sessionID).Delete(&models.TestCase{}).Error; err != nil {
		return fmt.Errorf("store: clear test cases for session %d: %w", sessionID, err)
	}
	return nil
}

// ListTestCases returns a session's TestCases ordered by creation time,
// used by rerun() to replay stored inputs.
func (s *SessionStore) ListTestCases(sessionID uint) ([]models.TestCase, error) {
	var cases []models.TestCase
	if err := s.DB.Where("session_id = ?", sessionID).Order("created_at asc").Find(&cases).Error; err != nil {
		return nil, fmt.Errorf("store: list test cases for session %d: %w", sessionID, err)
	}
	return cases, nil
}

// SaveTestCase inserts a new TestCase or updates an existing one (rerun
// mutates in place).
func (s *SessionStore) SaveTestCase(tc *models.TestCase) error {
	if err := s.DB.Save(tc).Error; err != nil {
		return fmt.Errorf("store: save test case: %w", err)
	}
	return nil
}
