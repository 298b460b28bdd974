package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/mbolis/signup/config"
)

// Table holds every join-form submission.
const Table = "form_submissions"

var ErrNotConfigured = errors.New("database: configuration incomplete")

type DB struct {
	*sql.DB
	Driver string
}

// Open connects to the configured database and, when auto_migrate is set, brings the
// schema up to date. It returns ErrNotConfigured when credentials are missing.
func Open(cfg config.DatabaseConfig) (db *DB, err error) {
	if !cfg.Complete() {
		return nil, ErrNotConfigured
	}

	dsn, err := DSN(cfg)
	if err != nil {
		return
	}
	sqlDB, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return
	}
	db = &DB{DB: sqlDB, Driver: cfg.Driver}

	// db tuning options
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(2 * time.Hour)

	if cfg.AutoMigrate {
		err = db.Migrate()
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	return
}

// DSN renders the driver-specific connection string.
func DSN(cfg config.DatabaseConfig) (string, error) {
	switch cfg.Driver {
	case "sqlite3":
		return "file:" + cfg.Path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", nil
	case "mysql":
		port := cfg.Port
		if port == 0 {
			port = 3306
		}
		my := mysql.NewConfig()
		my.Net = "tcp"
		my.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
		my.User = cfg.User
		my.Passwd = cfg.Password
		my.DBName = cfg.Name
		my.ParseTime = true
		my.Loc = time.UTC
		my.MultiStatements = true
		my.Params = map[string]string{"charset": "utf8mb4"}
		return my.FormatDSN(), nil
	}
	return "", fmt.Errorf("database: unsupported driver %q", cfg.Driver)
}

// TableExists reports whether the submissions table has been created.
func (db *DB) TableExists(ctx context.Context) (bool, error) {
	var query string
	switch db.Driver {
	case "mysql":
		query = `
			SELECT COUNT(*) FROM information_schema.tables
			WHERE table_schema = DATABASE()
				AND table_name = ?`
	default:
		query = `
			SELECT COUNT(*) FROM sqlite_master
			WHERE type = 'table'
				AND name = ?`
	}

	var n int
	err := db.QueryRowContext(ctx, query, Table).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
