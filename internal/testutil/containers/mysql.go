//go:build integration

package containers

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
	"gorm.io/gorm"

	datastore "github.com/faultwatch/faultwatch/internal/datastore/v2"
	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
)

// validTableNameRe matches valid MySQL identifier names.
var validTableNameRe = regexp.MustCompile(`^[a-zA-Z_$][a-zA-Z0-9_$]*$`)

// MySQLContainer wraps a testcontainers MySQL instance with a migrated
// datastore manager.
type MySQLContainer struct {
	container *mysql.MySQLContainer
	manager   datastore.Manager
	dsn       string
}

// MySQLConfig holds configuration for MySQL container creation.
type MySQLConfig struct {
	// Database name (default: "faultwatch_test")
	Database string
	// Username for non-root user (default: "testuser")
	Username string
	// Password for non-root user (default: "testpass")
	Password string
	// Image tag (default: "8.0")
	ImageTag string
}

// DefaultMySQLConfig returns a MySQLConfig with sensible defaults.
func DefaultMySQLConfig() MySQLConfig {
	return MySQLConfig{
		Database: "faultwatch_test",
		Username: "testuser",
		Password: "testpass",
		ImageTag: "8.0",
	}
}

// NewMySQLContainer starts MySQL and migrates the alerting schema into it.
// If config is nil, uses DefaultMySQLConfig().
func NewMySQLContainer(ctx context.Context, config *MySQLConfig) (*MySQLContainer, error) {
	if config == nil {
		defaultCfg := DefaultMySQLConfig()
		config = &defaultCfg
	}

	mysqlContainer, err := mysql.Run(ctx, "mysql:"+config.ImageTag,
		mysql.WithDatabase(config.Database),
		mysql.WithUsername(config.Username),
		mysql.WithPassword(config.Password),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start MySQL container: %w", err)
	}

	dsn, err := mysqlContainer.ConnectionString(ctx, "parseTime=true", "loc=UTC")
	if err != nil {
		_ = testcontainers.TerminateContainer(mysqlContainer)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	manager, err := datastore.NewMySQLManager(datastore.Config{DSN: dsn, MaxOpenConns: 10})
	if err != nil {
		_ = testcontainers.TerminateContainer(mysqlContainer)
		return nil, err
	}
	if err := manager.Initialize(); err != nil {
		_ = manager.Close()
		_ = testcontainers.TerminateContainer(mysqlContainer)
		return nil, err
	}

	return &MySQLContainer{container: mysqlContainer, manager: manager, dsn: dsn}, nil
}

// DB returns the shared gorm handle. Tests must not close it.
func (c *MySQLContainer) DB() *gorm.DB {
	return c.manager.DB()
}

// GetDSN returns the MySQL DSN (connection string) for the container.
func (c *MySQLContainer) GetDSN() string {
	return c.dsn
}

// HealthCheck performs a health check on the MySQL database.
func (c *MySQLContainer) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := c.DB().WithContext(ctx).Raw("SELECT 1").Scan(&result).Error; err != nil {
		return fmt.Errorf("health check query failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("health check returned unexpected result: %d", result)
	}
	return nil
}

// Reset truncates every alerting table with foreign key checks disabled.
func (c *MySQLContainer) Reset(ctx context.Context) error {
	db := c.DB().WithContext(ctx)
	return db.Connection(func(conn *gorm.DB) error {
		if err := conn.Exec("SET FOREIGN_KEY_CHECKS = 0").Error; err != nil {
			return fmt.Errorf("failed to disable foreign key checks: %w", err)
		}
		defer conn.Exec("SET FOREIGN_KEY_CHECKS = 1")

		for _, model := range entities.All() {
			stmt := &gorm.Statement{DB: conn}
			if err := stmt.Parse(model); err != nil {
				return fmt.Errorf("failed to parse model %T: %w", model, err)
			}
			table := stmt.Schema.Table
			if !validTableNameRe.MatchString(table) {
				return fmt.Errorf("invalid table name: %s", table)
			}
			if err := conn.Exec(fmt.Sprintf("TRUNCATE TABLE `%s`", table)).Error; err != nil {
				return fmt.Errorf("failed to truncate table %s: %w", table, err)
			}
		}
		return nil
	})
}

// Terminate closes the database and removes the container.
func (c *MySQLContainer) Terminate(ctx context.Context) error {
	if c.manager != nil {
		if err := c.manager.Close(); err != nil {
			fmt.Printf("Warning: failed to close database connection: %v\n", err)
		}
		c.manager = nil
	}
	if c.container != nil {
		if err := c.container.Terminate(ctx); err != nil {
			return fmt.Errorf("failed to terminate container: %w", err)
		}
	}
	return nil
}
