// Package v2 opens the relational store and migrates the alerting schema.
package v2

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/faultwatch/faultwatch/internal/conf"
	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
	"github.com/faultwatch/faultwatch/internal/errors"
)

// defaultSQLiteFile is used when Config names a directory but no file.
const defaultSQLiteFile = "faultwatch.db"

// Config selects and tunes a database connection.
type Config struct {
	// DataDir holds the SQLite file when Path is empty.
	DataDir string
	// Path is an explicit SQLite file path.
	Path string
	// DSN is the MySQL data source name.
	DSN string
	// MaxOpenConns caps the MySQL pool. SQLite always uses one connection.
	MaxOpenConns int
	// Debug logs every statement.
	Debug bool
}

// Manager owns a gorm connection.
type Manager interface {
	// Initialize creates or migrates the schema.
	Initialize() error
	DB() *gorm.DB
	Close() error
	IsMySQL() bool
}

type manager struct {
	db      *gorm.DB
	isMySQL bool
}

func gormConfig(debug bool) *gorm.Config {
	level := gorm_logger.Silent
	if debug {
		level = gorm_logger.Info
	}
	return &gorm.Config{
		Logger:  gorm_logger.Default.LogMode(level),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// NewSQLiteManager opens (creating if needed) a SQLite database.
func NewSQLiteManager(cfg Config) (Manager, error) {
	path := cfg.Path
	if path == "" {
		path = filepath.Join(cfg.DataDir, defaultSQLiteFile)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, dbError(err, "create data directory", "sqlite")
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=ON&_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(cfg.Debug))
	if err != nil {
		return nil, dbError(err, "open", "sqlite")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, dbError(err, "open", "sqlite")
	}
	sqlDB.SetMaxOpenConns(1)
	return &manager{db: db}, nil
}

// NewMySQLManager connects to MySQL or MariaDB.
func NewMySQLManager(cfg Config) (Manager, error) {
	if cfg.DSN == "" {
		return nil, errors.Newf("mysql dsn is empty").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	dsn, err := normalizeMySQLDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(mysql.Open(dsn), gormConfig(cfg.Debug))
	if err != nil {
		return nil, dbError(err, "open", "mysql")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, dbError(err, "open", "mysql")
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	return &manager{db: db, isMySQL: true}, nil
}

// normalizeMySQLDSN makes DATETIME columns scan into time.Time in UTC,
// which alert timestamps and retention cutoffs rely on.
func normalizeMySQLDSN(dsn string) (string, error) {
	parsed, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Newf("invalid mysql dsn: %w", err).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	parsed.ParseTime = true
	parsed.Loc = time.UTC
	return parsed.FormatDSN(), nil
}

// Open picks the driver named by settings.
func Open(s conf.DatabaseSettings, debug bool) (Manager, error) {
	switch s.Type {
	case conf.DatabaseMySQL:
		return NewMySQLManager(Config{DSN: s.DSN, MaxOpenConns: s.MaxOpenConns, Debug: debug})
	case conf.DatabaseSQLite, "":
		return NewSQLiteManager(Config{Path: s.Path, Debug: debug})
	default:
		return nil, errors.Newf("unsupported database type %q", s.Type).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

func (m *manager) Initialize() error {
	if err := m.db.AutoMigrate(entities.All()...); err != nil {
		return dbError(err, "migrate", m.dialect())
	}
	return nil
}

func (m *manager) DB() *gorm.DB {
	return m.db
}

func (m *manager) IsMySQL() bool {
	return m.isMySQL
}

func (m *manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (m *manager) dialect() string {
	if m.isMySQL {
		return "mysql"
	}
	return "sqlite"
}

func dbError(err error, op, dialect string) error {
	return errors.Newf("failed to %s database: %w", op, err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("dialect", dialect).
		Build()
}
