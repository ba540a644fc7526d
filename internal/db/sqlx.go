package db

import (
	"context"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/Eiffelllll/Activiti/internal/config"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// NewMySQLConnection opens the MySQL pool that holds executions,
// subscriptions and the outbox.
func NewMySQLConnection(c config.DatabaseConfig) (*sqlx.DB, error) {
	return open("mysql", c, 5*time.Second)
}

// NewClickHouseConnection opens the ClickHouse pool backing the reports.
func NewClickHouseConnection(c config.DatabaseConfig) (*sqlx.DB, error) {
	return open("clickhouse", c, 3*time.Second)
}

func open(driver string, c config.DatabaseConfig, defaultPing time.Duration) (*sqlx.DB, error) {
	if c.DSN == "" {
		return nil, fmt.Errorf("empty %s DSN", driver)
	}
	db, err := sqlx.Open(driver, c.DSN)
	if err != nil {
		return nil, err
	}

	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.MaxIdleConns)
	}
	if c.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(c.ConnMaxLifetime)
	}
	if c.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(c.ConnMaxIdleTime)
	}

	timeout := c.PingTimeout
	if timeout <= 0 {
		timeout = defaultPing
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	return db, nil
}
