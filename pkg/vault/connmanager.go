package vault

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	_ "github.com/lib/pq" // database/sql driver for db_query credentials
)

const (
	connTTL             = 30 * time.Minute
	connCleanupInterval = 5 * time.Minute
)

// ConnManager hands out pooled database handles keyed by credential
// id, so concurrent runs referencing the same credential share one
// pool. Handles are evicted after a TTL and closed on eviction or
// shutdown.
type ConnManager struct {
	cache  *gocache.Cache
	logger *slog.Logger
	mu     sync.Mutex
}

func NewConnManager(logger *slog.Logger) *ConnManager {
	cache := gocache.New(connTTL, connCleanupInterval)

	manager := &ConnManager{
		cache:  cache,
		logger: logger.With("module", "conn_manager"),
	}

	cache.OnEvicted(func(key string, value any) {
		db, ok := value.(*sql.DB)
		if !ok {
			return
		}

		err := db.Close()
		if err != nil {
			manager.logger.Error("Failed to close evicted connection", "credential_id", key, "error", err)
		}
	})

	return manager
}

// DB implements models.ConnProvider: open-on-first-use, cached until
// TTL eviction or shutdown. The secret must carry a "dsn" entry (or
// "url" as an alias).
func (m *ConnManager) DB(ctx context.Context, credentialID string, secret map[string]any) (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cached, found := m.cache.Get(credentialID); found {
		if db, ok := cached.(*sql.DB); ok {
			return db, nil
		}
	}

	dsn, _ := secret["dsn"].(string)
	if dsn == "" {
		dsn, _ = secret["url"].(string)
	}

	if dsn == "" {
		return nil, fmt.Errorf("credential %s carries no dsn", credentialID)
	}

	driver, _ := secret["driver"].(string)
	if driver == "" {
		driver = "postgres"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection for credential %s: %w", credentialID, err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping connection for credential %s: %w", credentialID, err)
	}

	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(connTTL)

	m.cache.Set(credentialID, db, gocache.DefaultExpiration)
	m.logger.InfoContext(ctx, "Opened pooled connection", "credential_id", credentialID)

	return db, nil
}

// Shutdown closes every cached handle. Safe to call more than once.
func (m *ConnManager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, item := range m.cache.Items() {
		if db, ok := item.Object.(*sql.DB); ok {
			err := db.Close()
			if err != nil {
				m.logger.Error("Failed to close connection", "credential_id", key, "error", err)
			}
		}
	}

	m.cache.Flush()
}
