// Package pool hands out single database connections to the migration engine.
package pool

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/debug"
)

// Config holds connection pool configuration.
type Config struct {
	// MaxOpenConns is the maximum number of open connections (0 = unlimited).
	MaxOpenConns int
	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int
	// ConnMaxLifetime is the maximum lifetime of a connection.
	ConnMaxLifetime time.Duration
	// ConnMaxIdleTime is the maximum idle time of a connection.
	ConnMaxIdleTime time.Duration
	// HealthCheckInterval is how often to ping the database; zero disables the loop.
	HealthCheckInterval time.Duration
}

// DefaultConfig returns the defaults used when configuration leaves a field unset.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:        4,
		MaxIdleConns:        2,
		ConnMaxLifetime:     30 * time.Minute,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: time.Minute,
	}
}

// Pool manages the connections of one database.
type Pool struct {
	db      *sql.DB
	adaptor dialect.Adaptor
	config  Config

	mu              sync.RWMutex
	observers       []observer
	nextObserver    int
	leased          int64
	health          error
	failedChecks    int64
	lastHealthCheck time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens a pool for the adaptor's driver.
func New(adaptor dialect.Adaptor, dataSourceName string, config Config) (*Pool, error) {
	db, err := sql.Open(adaptor.DriverName(), dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return wrap(db, adaptor, config), nil
}

// FromDB builds a pool around an already opened handle.
func FromDB(db *sql.DB, adaptor dialect.Adaptor, config Config) *Pool {
	return wrap(db, adaptor, config)
}

func wrap(db *sql.DB, adaptor dialect.Adaptor, config Config) *Pool {
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{db: db, adaptor: adaptor, config: config, ctx: ctx, cancel: cancel}
	if config.HealthCheckInterval > 0 {
		p.wg.Add(1)
		go p.healthCheckLoop()
	}
	return p
}

// DB returns the underlying *sql.DB.
func (p *Pool) DB() *sql.DB { return p.db }

// Adaptor returns the dialect the pool speaks.
func (p *Pool) Adaptor() dialect.Adaptor { return p.adaptor }

type observer struct {
	id int
	fn dialect.Observer
}

// Observe registers an observer on every connection acquired afterwards. The
// returned func removes it; connections already leased keep it until released.
func (p *Pool) Observe(o dialect.Observer) (remove func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextObserver++
	id := p.nextObserver
	p.observers = append(p.observers, observer{id: id, fn: o})

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			for i, ob := range p.observers {
				if ob.id == id {
					p.observers = append(p.observers[:i:i], p.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Acquire reserves one connection and applies the dialect's session settings.
// The extra observers see this connection's statements only.
func (p *Pool) Acquire(ctx context.Context, extra ...dialect.Observer) (*dialect.Conn, error) {
	raw, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	p.mu.Lock()
	observers := make([]dialect.Observer, 0, len(p.observers)+len(extra))
	for _, ob := range p.observers {
		observers = append(observers, ob.fn)
	}
	p.leased++
	p.mu.Unlock()
	observers = append(observers, extra...)

	c := dialect.NewConn(raw, p.adaptor.Name(), observers...)
	if err := p.adaptor.PrepareConn(ctx, c); err != nil {
		p.Release(c)
		return nil, fmt.Errorf("prepare connection: %w", err)
	}
	return c, nil
}

// Release returns the connection to the pool.
func (p *Pool) Release(c *dialect.Conn) {
	if c == nil {
		return
	}
	_ = c.Raw().Close()
	p.mu.Lock()
	p.leased--
	p.mu.Unlock()
}

// Commit ends the implicit transaction some drivers keep open on a session.
// Statements are issued in autocommit mode, so this only fails on a dead connection.
func (p *Pool) Commit(ctx context.Context, c *dialect.Conn) error {
	return c.Raw().PingContext(ctx)
}

// Stats is a snapshot of the pool for status output and tests.
type Stats struct {
	Dialect   dialect.Name
	Open      int
	Idle      int
	Leased    int64
	WaitCount int64
	// Health is the outcome of the most recent ping; nil when it succeeded or none ran yet.
	Health        error
	FailedPings   int64
	LastCheckedAt time.Time
}

// Stats reports connection usage and the health check history.
func (p *Pool) Stats() Stats {
	db := p.db.Stats()
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Stats{
		Dialect:       p.adaptor.Name(),
		Open:          db.OpenConnections,
		Idle:          db.Idle,
		Leased:        p.leased,
		WaitCount:     db.WaitCount,
		Health:        p.health,
		FailedPings:   p.failedChecks,
		LastCheckedAt: p.lastHealthCheck,
	}
}

// HealthCheck pings the database and records the result.
func (p *Pool) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		err = fmt.Errorf("%s database unreachable: %w", p.adaptor.Name(), err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastHealthCheck = time.Now()
	p.health = err
	if err != nil {
		p.failedChecks++
	}
	return err
}

// healthCheckLoop pings on every tick until Close; a failure is logged once
// per outage.
func (p *Pool) healthCheckLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	healthy := true
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(p.ctx, p.config.HealthCheckInterval)
			err := p.HealthCheck(ctx)
			cancel()
			switch {
			case err != nil && healthy:
				debug.Warn("health check failed", "error", err)
			case err == nil && !healthy:
				debug.Info("database reachable again", "dialect", string(p.adaptor.Name()))
			}
			healthy = err == nil
		}
	}
}

// Close stops the health check loop and closes the database.
func (p *Pool) Close() error {
	p.cancel()
	p.wg.Wait()
	return p.db.Close()
}
