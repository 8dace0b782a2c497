package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3" // SQLite driver for tenant stores
	"github.com/platinummonkey/tenantd/pkg/async"
	"github.com/platinummonkey/tenantd/pkg/auth"
	"github.com/sirupsen/logrus"
)

const shutdownWorkers = 8

var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Opener opens the database backing a tenant's store
type Opener func(tenantID string) (*sql.DB, error)

// RegistryConfig configures the actor registry
type RegistryConfig struct {
	// DataDir holds one database file per tenant. Empty selects in-memory
	// stores, which do not survive an actor restart.
	DataDir string
	// MaxActors bounds how many actors are live at once
	MaxActors int
	// IdleTimeout is how long an actor may go unused before EvictIdle stops it
	IdleTimeout time.Duration
	// Opener overrides how stores are opened
	Opener Opener
	// Observer receives actor operation callbacks
	Observer Observer
}

// Registry addresses actors by tenant id and manages their lifetime
type Registry struct {
	mu          sync.Mutex
	actors      *lru.Cache[string, *Actor]
	open        Opener
	tokens      *auth.InternalTokens
	idleTimeout time.Duration
	observer    Observer
	log         logrus.FieldLogger
}

// NewRegistry creates an actor registry
func NewRegistry(cfg RegistryConfig, tokens *auth.InternalTokens, log logrus.FieldLogger) (*Registry, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.MaxActors <= 0 {
		cfg.MaxActors = 1024
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 15 * time.Minute
	}
	if cfg.Opener == nil {
		cfg.Opener = SQLiteOpener(cfg.DataDir)
	}

	r := &Registry{
		open:        cfg.Opener,
		tokens:      tokens,
		idleTimeout: cfg.IdleTimeout,
		observer:    cfg.Observer,
		log:         log.WithField("component", "tenant_registry"),
	}

	actors, err := lru.NewWithEvict[string, *Actor](cfg.MaxActors, func(tenantID string, a *Actor) {
		a.Stop()
		r.log.WithField("tenant_id", tenantID).Debug("Stopped tenant actor")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create actor cache: %w", err)
	}
	r.actors = actors
	return r, nil
}

// ValidTenantID reports whether id can name a tenant store
func ValidTenantID(id string) bool {
	return tenantIDPattern.MatchString(id)
}

// Get returns the live actor for tenantID, starting it if needed
func (r *Registry) Get(ctx context.Context, tenantID string) (*Actor, error) {
	if !ValidTenantID(tenantID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTenantID, tenantID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.actors.Get(tenantID); ok {
		return a, nil
	}

	db, err := r.open(tenantID)
	if err != nil {
		return nil, fault("open", err)
	}

	opts := []ActorOption{WithLogger(r.log)}
	if r.observer != nil {
		opts = append(opts, WithObserver(r.observer))
	}
	a := NewActor(tenantID, db, r.tokens, opts...)
	r.actors.Add(tenantID, a)
	r.log.WithField("tenant_id", tenantID).Debug("Started tenant actor")
	return a, nil
}

// Len returns the number of live actors
func (r *Registry) Len() int {
	return r.actors.Len()
}

// EvictIdle stops actors that have been idle longer than the idle timeout
// and returns how many were stopped.
func (r *Registry) EvictIdle() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.idleTimeout)
	evicted := 0
	for _, tenantID := range r.actors.Keys() {
		a, ok := r.actors.Peek(tenantID)
		if !ok || a.IdleSince().After(cutoff) {
			continue
		}
		r.actors.Remove(tenantID)
		evicted++
	}
	return evicted
}

// Close stops every actor and waits for their stores to close
func (r *Registry) Close() {
	_ = r.Shutdown(context.Background())
}

// Shutdown stops every actor, closing their stores concurrently, and returns
// once all are closed or ctx is done.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	var live []*Actor
	for _, tenantID := range r.actors.Keys() {
		if a, ok := r.actors.Peek(tenantID); ok {
			live = append(live, a)
		}
	}
	r.actors.Purge()
	r.mu.Unlock()

	errs := async.Batch(ctx, live, shutdownWorkers, "close tenant actors", 0, r.log,
		func(ctx context.Context, a *Actor) error {
			return a.Shutdown(ctx)
		})
	if len(errs) > 0 {
		return fmt.Errorf("failed to close %d tenant actors: %w", len(errs), errors.Join(errs...))
	}
	r.log.WithField("closed", len(live)).Debug("Closed tenant actors")
	return nil
}

// SQLiteOpener opens one SQLite database per tenant under dataDir, or a
// private in-memory database when dataDir is empty.
func SQLiteOpener(dataDir string) Opener {
	return func(tenantID string) (*sql.DB, error) {
		dsn := ":memory:"
		if dataDir != "" {
			dsn = "file:" + filepath.Join(dataDir, tenantID+".db") + "?_busy_timeout=5000&_journal_mode=WAL"
		}

		db, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, err
		}
		// One connection: the actor is the only writer, and an in-memory
		// database lives exactly as long as its connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
		return db, nil
	}
}
