package database

import (
	"crypto/tls"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Connection wraps the shared *sql.DB.
// sql.DB is already thread-safe and manages its own connection pool, so no
// additional locking is layered on top.
type Connection struct {
	db *sql.DB
}

var (
	instance *Connection
	once     sync.Once
	initErr  error
	tlsOnce  sync.Once // Ensure TLS config is registered only once
)

// GetInstance returns the singleton database connection
func GetInstance() (*Connection, error) {
	once.Do(func() {
		instance, initErr = newConnection()
	})
	return instance, initErr
}

func newConnection() (*Connection, error) {
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	user := os.Getenv("DB_USER")
	password := os.Getenv("DB_PASSWORD")
	name := os.Getenv("DB_NAME")

	if host == "" {
		host = "127.0.0.1"
	}
	if port == "" {
		port = "3306"
	}
	if user == "" {
		user = "root"
	}
	if name == "" {
		name = "backoffice"
	}

	// Remote hosts (managed MySQL/TiDB) require TLS with server-name
	// verification; local development does not
	tlsParam := ""
	if host != "127.0.0.1" && host != "localhost" {
		tlsOnce.Do(func() {
			if err := mysql.RegisterTLSConfig("backoffice", &tls.Config{
				MinVersion: tls.VersionTLS12,
				ServerName: host,
			}); err != nil {
				log.Printf("Failed to register TLS config: %v", err)
			}
		})
		tlsParam = "&tls=backoffice"
	}

	db, err := sql.Open("mysql", buildDSN(user, password, host, port, name, tlsParam))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Connection{db: db}, nil
}

// buildDSN assembles the driver DSN. clientFoundRows switches the driver to
// rows-matched semantics: repositories condition UPDATEs on the loaded
// version and read RowsAffected to detect a stale version, which only works
// when a matched-but-unchanged row still counts as affected. Without it an
// UPDATE that rewrites identical values within the same DATETIME second
// reports zero rows and is indistinguishable from a version conflict.
func buildDSN(user, password, host, port, name, tlsParam string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&clientFoundRows=true%s",
		user, password, host, port, name, tlsParam)
}

// DB exposes the underlying *sql.DB for repositories
func (c *Connection) DB() *sql.DB {
	return c.db
}

// Begin starts a new transaction
func (c *Connection) Begin() (*sql.Tx, error) {
	return c.db.Begin()
}

// Close closes the connection pool
func (c *Connection) Close() error {
	return c.db.Close()
}
