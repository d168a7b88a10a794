// Package datastore persists final captions with GORM on SQLite or MySQL.
package datastore

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	drivermysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/livecaptions/livecaptions/internal/errors"
	"github.com/livecaptions/livecaptions/internal/logger"
)

// Database types
const (
	TypeSQLite = "sqlite"
	TypeMySQL  = "mysql"
)

const (
	componentDatastore = "datastore"
	slowQueryThreshold = 200 * time.Millisecond
	maxRecent          = 10000
)

// Config selects and locates the database.
type Config struct {
	Type string // sqlite or mysql
	Path string // sqlite file, ":memory:" for tests
	DSN  string // mysql DSN
}

// Store is a caption repository backed by GORM.
type Store struct {
	db   *gorm.DB
	kind string
	log  logger.Logger
}

// Open connects to the configured database and migrates the schema.
func Open(cfg Config) (*Store, error) {
	log := GetLogger()

	var (
		dialector gorm.Dialector
		target    string
	)
	switch strings.ToLower(cfg.Type) {
	case "", TypeSQLite:
		if cfg.Path == "" {
			return nil, errors.Newf("sqlite store requires a path").
				Component(componentDatastore).
				Category(errors.CategoryConfiguration).
				Build()
		}
		cfg.Type = TypeSQLite
		dialector = sqlite.Open(cfg.Path)
		target = filepath.Base(cfg.Path)
	case TypeMySQL:
		dsn, err := normalizeMySQLDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		cfg.Type = TypeMySQL
		dialector = mysql.Open(dsn)
		target = RedactDSN(dsn)
	default:
		return nil, errors.Newf("unsupported database type %q", cfg.Type).
			Component(componentDatastore).
			Category(errors.CategoryConfiguration).
			Context("type", cfg.Type).
			Build()
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log, slowQueryThreshold),
	})
	if err != nil {
		return nil, errors.New(err).
			Component(componentDatastore).
			Category(errors.CategoryDatabase).
			Context("operation", "open").
			Context("db_type", cfg.Type).
			Build()
	}

	start := time.Now()
	if err := db.AutoMigrate(&CaptionRecord{}); err != nil {
		if sqlDB, derr := db.DB(); derr == nil {
			_ = sqlDB.Close()
		}
		return nil, errors.New(err).
			Component(componentDatastore).
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migrate").
			Context("db_type", cfg.Type).
			Build()
	}

	log.Info("caption store opened",
		logger.String("db_type", cfg.Type),
		logger.String("target", target),
		logger.Duration("migration", time.Since(start)))

	return &Store{db: db, kind: cfg.Type, log: log}, nil
}

// normalizeMySQLDSN validates a MySQL DSN and forces parseTime so
// timestamps scan into time.Time.
func normalizeMySQLDSN(dsn string) (string, error) {
	if dsn == "" {
		return "", errors.Newf("mysql store requires a dsn").
			Component(componentDatastore).
			Category(errors.CategoryConfiguration).
			Build()
	}
	parsed, err := drivermysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.New(err).
			Component(componentDatastore).
			Category(errors.CategoryConfiguration).
			Context("dsn", RedactDSN(dsn)).
			Build()
	}
	parsed.ParseTime = true
	if parsed.Params == nil {
		parsed.Params = map[string]string{}
	}
	if _, ok := parsed.Params["charset"]; !ok {
		parsed.Params["charset"] = "utf8mb4"
	}
	return parsed.FormatDSN(), nil
}

// RedactDSN hides the password of a MySQL DSN.
func RedactDSN(dsn string) string {
	parsed, err := drivermysql.ParseDSN(dsn)
	if err != nil {
		return "[REDACTED DSN]"
	}
	if parsed.Passwd != "" {
		parsed.Passwd = "[REDACTED]"
	}
	return parsed.FormatDSN()
}

// Type returns the database type in use.
func (s *Store) Type() string {
	return s.kind
}

// Save inserts a caption record.
func (s *Store) Save(ctx context.Context, rec *CaptionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return errors.New(err).
			Component(componentDatastore).
			Category(errors.CategoryDatabase).
			Context("operation", "save_caption").
			Context("session_id", rec.SessionID).
			Build()
	}
	return nil
}

// Recent returns the latest n records, oldest first.
func (s *Store) Recent(ctx context.Context, n int) ([]CaptionRecord, error) {
	if n <= 0 {
		return nil, errors.Newf("limit must be positive, got %d", n).
			Component(componentDatastore).
			Category(errors.CategoryValidation).
			Build()
	}
	n = min(n, maxRecent)

	var records []CaptionRecord
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(n).
		Find(&records).Error
	if err != nil {
		return nil, errors.New(err).
			Component(componentDatastore).
			Category(errors.CategoryDatabase).
			Context("operation", "recent_captions").
			Build()
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// BySession returns every record of a session in sequence order.
func (s *Store) BySession(ctx context.Context, sessionID string) ([]CaptionRecord, error) {
	var records []CaptionRecord
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&records).Error
	if err != nil {
		return nil, errors.New(err).
			Component(componentDatastore).
			Category(errors.CategoryDatabase).
			Context("operation", "session_captions").
			Context("session_id", sessionID).
			Build()
	}
	return records, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.New(err).
			Component(componentDatastore).
			Category(errors.CategoryDatabase).
			Context("operation", "close").
			Build()
	}
	if err := sqlDB.Close(); err != nil {
		return errors.New(err).
			Component(componentDatastore).
			Category(errors.CategoryDatabase).
			Context("operation", "close").
			Build()
	}
	s.log.Debug("caption store closed", logger.String("db_type", s.kind))
	return nil
}

// GetLogger returns the datastore module logger
func GetLogger() logger.Logger {
	return logger.Global().Module(componentDatastore)
}
