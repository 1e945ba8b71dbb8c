package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/Kxd395/AxxessWebUI/pkg/observability"
)

// ConnectionManager manages the primary connection and optional read replicas
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*sql.DB
	current  uint32 // Atomic counter for round-robin selection
	mu       sync.RWMutex
	dialect  Dialect
	config   ConnectionConfig
	logger   *observability.Logger
}

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	Driver      string // "sqlite" or "postgres"
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// NewConnectionManager opens the primary (and any replicas) and pings them
func NewConnectionManager(config ConnectionConfig, logger *observability.Logger) (*ConnectionManager, error) {
	dialect, err := DialectFor(config.Driver)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	cm := &ConnectionManager{
		dialect:  dialect,
		config:   config,
		replicas: make([]*sql.DB, 0),
		logger:   logger.WithField("component", "sqlstore"),
	}

	primary, err := cm.open(config.PrimaryURL, config.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to open primary connection: %w", err)
	}
	cm.primary = primary

	// Replicas are optional and only used for aggregate reads
	if dialect.Name() == DialectPostgres {
		for i, replicaURL := range config.ReplicaURLs {
			replicaMaxConns := config.MaxConns / 2
			if replicaMaxConns < 2 {
				replicaMaxConns = 2
			}
			replica, err := cm.open(replicaURL, replicaMaxConns)
			if err != nil {
				cm.logger.WithError(err).WithField("replica", i).Warn("skipping unreachable replica")
				continue
			}
			cm.replicas = append(cm.replicas, replica)
		}
	}

	cm.logger.WithFields(map[string]interface{}{
		"driver":   dialect.Name(),
		"replicas": len(cm.replicas),
	}).Info("connection manager initialized")

	return cm, nil
}

// NewConnectionManagerFromDB wraps an already opened database
func NewConnectionManagerFromDB(db *sql.DB, dialect Dialect) *ConnectionManager {
	return &ConnectionManager{
		primary:  db,
		replicas: make([]*sql.DB, 0),
		dialect:  dialect,
		logger:   observability.NewLogger(observability.InfoLevel, nil).WithField("component", "sqlstore"),
	}
}

func (cm *ConnectionManager) open(dsn string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open(cm.dialect.DriverName(), cm.dialect.DSN(dsn))
	if err != nil {
		return nil, err
	}

	if cm.dialect.Name() == DialectSQLite {
		// One connection serializes every transaction and keeps :memory: databases shared
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(cm.config.MinConns)
	}
	db.SetConnMaxLifetime(cm.config.MaxLifetime)
	db.SetConnMaxIdleTime(cm.config.MaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cm.config.Timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Dialect returns the SQL dialect of the primary
func (cm *ConnectionManager) Dialect() Dialect {
	return cm.dialect
}

// Primary returns the primary database connection
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica returns a read replica using round-robin selection.
// Falls back to primary if no replicas are available.
func (cm *ConnectionManager) Replica() *sql.DB {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if len(cm.replicas) == 0 {
		return cm.primary
	}

	index := atomic.AddUint32(&cm.current, 1)
	return cm.replicas[int(index%uint32(len(cm.replicas)))]
}

// HealthCheck checks the health of primary and all replicas
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}

	cm.mu.RLock()
	replicas := make([]*sql.DB, len(cm.replicas))
	copy(replicas, cm.replicas)
	cm.mu.RUnlock()

	var unhealthy []string
	for i, replica := range replicas {
		if err := replica.PingContext(ctx); err != nil {
			unhealthy = append(unhealthy, fmt.Sprintf("replica-%d", i))
		}
	}

	if len(unhealthy) > 0 && len(unhealthy) == len(replicas) {
		return fmt.Errorf("all replicas unhealthy: %s", strings.Join(unhealthy, ", "))
	}

	return nil
}

// Stats returns connection pool statistics for the primary
func (cm *ConnectionManager) Stats() sql.DBStats {
	return cm.primary.Stats()
}

// Close closes all database connections
func (cm *ConnectionManager) Close() error {
	var errs []error

	if err := cm.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("primary close error: %w", err))
	}

	cm.mu.Lock()
	replicas := cm.replicas
	cm.replicas = nil
	cm.mu.Unlock()

	for i, replica := range replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, fmt.Errorf("replica-%d close error: %w", i, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("connection close errors: %v", errs)
	}

	return nil
}

// ParseReplicaURLs parses a comma-separated list of replica URLs
func ParseReplicaURLs(replicaURLsStr string) []string {
	if replicaURLsStr == "" {
		return nil
	}

	urls := strings.Split(replicaURLsStr, ",")
	result := make([]string, 0, len(urls))

	for _, url := range urls {
		trimmed := strings.TrimSpace(url)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
