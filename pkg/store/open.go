package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver for lite mode
)

// Open connects to Postgres when databaseURL is set, otherwise to an embedded
// SQLite file under dataDir. It pings with a short timeout.
func Open(ctx context.Context, databaseURL, dataDir string) (*sql.DB, string, error) {
	driver, dsn := "postgres", databaseURL
	if databaseURL == "" {
		if err := os.MkdirAll(dataDir, 0o750); err != nil {
			return nil, "", fmt.Errorf("create data dir: %w", err)
		}
		driver, dsn = "sqlite", filepath.Join(dataDir, "ezra.db")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// One writer avoids SQLITE_BUSY under concurrent requests.
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, driver, nil
}
