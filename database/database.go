package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// ErrConnection marks failures to reach or authenticate against the store.
var ErrConnection = errors.New("database connection unavailable")

// Connection manager states, reported by the /ping probe.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
)

// Opener dials the store. Injectable so tests can substitute sqlmock.
type Opener func(dataSourceName string) (*sql.DB, error)

// ManagerConfig carries the connection knobs for a Manager.
type ManagerConfig struct {
	DatabaseURL    string
	PoolSize       int
	ConnectTimeout time.Duration
	IdleTimeout    time.Duration
}

// Manager maintains one reusable handle to the store, lazily established,
// cached across requests and re-established after failure. At most one
// connection attempt is in flight at a time; other acquirers wait on the
// attempt's completion channel instead of dialing redundantly.
type Manager struct {
	mu          sync.Mutex
	cfg         ManagerConfig
	open        Opener
	db          *sql.DB
	state       string
	attemptDone chan struct{} // non-nil while an attempt is in flight
}

// NewManager creates a Manager. It does not dial; the first Acquire does.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &Manager{
		cfg:   cfg,
		open:  defaultOpen,
		state: StateDisconnected,
	}
}

// NewManagerWithOpener creates a Manager that dials through a custom
// Opener. Tests substitute sqlmock here.
func NewManagerWithOpener(cfg ManagerConfig, open Opener) *Manager {
	m := NewManager(cfg)
	if open != nil {
		m.open = open
	}
	return m
}

func defaultOpen(dataSourceName string) (*sql.DB, error) {
	return sql.Open("postgres", dataSourceName)
}

// Acquire returns the cached handle when connected, waits out a connection
// attempt already in flight, or becomes the dialer itself. A failed dial
// fails this caller with ErrConnection; it does not retry on its own.
func (m *Manager) Acquire(ctx context.Context) (*sql.DB, error) {
	for {
		m.mu.Lock()
		switch m.state {
		case StateConnected:
			db := m.db
			m.mu.Unlock()
			return db, nil
		case StateConnecting:
			done := m.attemptDone
			m.mu.Unlock()
			select {
			case <-done:
				continue // re-check from the top
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrConnection, ctx.Err())
			}
		}

		// Disconnected: this caller dials. Others queue on attemptDone.
		m.state = StateConnecting
		done := make(chan struct{})
		m.attemptDone = done
		stale := m.db
		m.db = nil
		m.mu.Unlock()

		if stale != nil {
			stale.Close()
		}
		db, err := m.dial(ctx)

		m.mu.Lock()
		if err != nil {
			m.state = StateDisconnected
		} else {
			m.db = db
			m.state = StateConnected
		}
		m.attemptDone = nil
		close(done)
		m.mu.Unlock()

		if err != nil {
			return nil, err
		}
		log.Println("Successfully connected to PostgreSQL database!")
		return db, nil
	}
}

func (m *Manager) dial(ctx context.Context) (*sql.DB, error) {
	db, err := m.open(m.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	db.SetMaxOpenConns(m.cfg.PoolSize)
	db.SetMaxIdleConns(m.cfg.PoolSize)
	if m.cfg.IdleTimeout > 0 {
		db.SetConnMaxIdleTime(m.cfg.IdleTimeout)
	}

	pingCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return db, nil
}

// Invalidate is the handle-level error observer: it drops the cached handle
// so the next Acquire reconnects. No-op unless currently connected.
func (m *Manager) Invalidate(cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return
	}
	if m.db != nil {
		m.db.Close()
		m.db = nil
	}
	m.state = StateDisconnected
	log.Printf("Database handle invalidated, will reconnect on next acquire: %v", cause)
}

// State reports the manager's current state without dialing.
func (m *Manager) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Ping acquires (connecting if needed) and verifies the handle end to end.
func (m *Manager) Ping(ctx context.Context) error {
	db, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		m.Invalidate(err)
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return nil
}

// Close shuts the cached handle down. Used on process shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db != nil {
		m.db.Close()
		m.db = nil
	}
	m.state = StateDisconnected
}

// ApplyMigrations applies database migrations from the specified path
func ApplyMigrations(databaseURL, migrationsPath string) error {
	m, err := migrate.New(
		"file://"+migrationsPath,
		databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err = m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	if err == migrate.ErrNoChange {
		log.Println("No database migrations to apply.")
	} else {
		log.Println("Database migrations applied successfully.")
	}
	return nil
}
