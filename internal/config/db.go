package config

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

var (
	DB   *sql.DB
	dbMu sync.Mutex
)

const (
	connectAttempts = 5
	pingTimeout     = 3 * time.Second
)

// ConnectDB opens the shared MySQL pool. The ping is retried with a growing
// pause so the service can start alongside its database container.
func ConnectDB(dsn string) (*sql.DB, error) {
	dbMu.Lock()
	defer dbMu.Unlock()
	if DB != nil {
		return DB, nil
	}

	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(10 * time.Minute)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		err = conn.PingContext(ctx)
		cancel()
		if err == nil {
			break
		}
		if attempt == connectAttempts {
			_ = conn.Close()
			return nil, fmt.Errorf("ping mysql after %d attempts: %w", attempt, err)
		}
		log.Printf("[DB] ping failed (attempt %d/%d): %v", attempt, connectAttempts, err)
		time.Sleep(time.Duration(attempt) * time.Second)
	}

	DB = conn
	log.Println("[DB] connected to MySQL")
	return DB, nil
}

// EnsureDB pings the shared pool; used by the health check.
func EnsureDB(ctx context.Context) error {
	dbMu.Lock()
	conn := DB
	dbMu.Unlock()
	if conn == nil {
		return sql.ErrConnDone
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return conn.PingContext(ctx)
}

func CloseDB() {
	dbMu.Lock()
	defer dbMu.Unlock()
	if DB != nil {
		_ = DB.Close()
		DB = nil
	}
}
