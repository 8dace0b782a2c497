package tenant

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/platinummonkey/tenantd/pkg/auth"
	"github.com/sirupsen/logrus"
)

// Observer receives one callback per actor operation
type Observer interface {
	ObserveOperation(op string, duration time.Duration, err error)
}

type command struct {
	ctx    context.Context
	op     string
	fn     func(ctx context.Context, db *sql.DB) error
	result chan error
}

// Actor owns the durable state of exactly one tenant. Operations are
// applied sequentially by a single goroutine; the database handle is never
// touched from anywhere else.
type Actor struct {
	tenantID string
	db       *sql.DB
	tokens   *auth.InternalTokens
	log      logrus.FieldLogger
	observer Observer
	now      func() time.Time

	// initialized is only read and written by the loop goroutine
	initialized bool

	commands chan command
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	lastUsed atomic.Int64
}

// ActorOption customizes an actor
type ActorOption func(*Actor)

// WithObserver reports every operation to o
func WithObserver(o Observer) ActorOption {
	return func(a *Actor) { a.observer = o }
}

// WithClock overrides the clock used for timestamps
func WithClock(now func() time.Time) ActorOption {
	return func(a *Actor) { a.now = now }
}

// WithLogger sets the actor's logger
func WithLogger(log logrus.FieldLogger) ActorOption {
	return func(a *Actor) { a.log = log }
}

// NewActor starts an actor over db. The actor takes ownership of db and
// closes it when stopped.
func NewActor(tenantID string, db *sql.DB, tokens *auth.InternalTokens, opts ...ActorOption) *Actor {
	a := &Actor{
		tenantID: tenantID,
		db:       db,
		tokens:   tokens,
		log:      logrus.StandardLogger(),
		now:      time.Now,
		commands: make(chan command),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.WithField("tenant_id", tenantID)
	a.touch()

	go a.loop()
	return a
}

// TenantID returns the tenant this actor serves
func (a *Actor) TenantID() string {
	return a.tenantID
}

// IdleSince returns when the actor last received an operation
func (a *Actor) IdleSince() time.Time {
	return time.Unix(0, a.lastUsed.Load())
}

// Stop asks the actor to exit after the operation in flight, if any. It
// does not wait; use Close for that.
func (a *Actor) Stop() {
	a.stopOnce.Do(func() { close(a.done) })
}

// Close stops the actor and waits until its database is closed
func (a *Actor) Close() {
	a.Stop()
	<-a.stopped
}

// Shutdown stops the actor and waits for its database to close, or for ctx
func (a *Actor) Shutdown(ctx context.Context) error {
	a.Stop()
	select {
	case <-a.stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tenant %s: %w", a.tenantID, ctx.Err())
	}
}

func (a *Actor) touch() {
	a.lastUsed.Store(time.Now().UnixNano())
}

func (a *Actor) loop() {
	defer close(a.stopped)
	defer func() {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close tenant store")
		}
	}()

	for {
		select {
		case <-a.done:
			return
		case cmd := <-a.commands:
			select {
			case <-a.done:
				cmd.result <- ErrActorStopped
				return
			default:
			}
			cmd.result <- a.apply(cmd)
		}
	}
}

func (a *Actor) apply(cmd command) error {
	if err := cmd.ctx.Err(); err != nil {
		return err
	}

	if err := a.ensureInitialized(cmd.ctx); err != nil {
		return err
	}
	return cmd.fn(cmd.ctx, a.db)
}

// ensureInitialized creates the schema and seed row once per actor
// lifetime. The statements themselves are idempotent, so losing the flag on
// restart is harmless.
func (a *Actor) ensureInitialized(ctx context.Context) error {
	if a.initialized {
		return nil
	}

	for _, stmt := range schema {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fault("initialize", err)
		}
	}
	ts := a.now().Unix()
	if _, err := a.db.ExecContext(ctx, seedRecord, recordID, ts, ts); err != nil {
		return fault("initialize", err)
	}

	a.initialized = true
	a.log.Debug("Initialized tenant store")
	return nil
}

// do sends fn to the actor and waits for its result. The observed duration
// covers the wait for earlier commands as well as fn itself.
func (a *Actor) do(ctx context.Context, op string, fn func(ctx context.Context, db *sql.DB) error) error {
	start := time.Now()
	a.touch()
	cmd := command{
		ctx:    ctx,
		op:     op,
		fn:     fn,
		result: make(chan error, 1),
	}

	select {
	case a.commands <- cmd:
	case <-a.done:
		return ErrActorStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.result:
		if a.observer != nil {
			a.observer.ObserveOperation(op, time.Since(start), err)
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Query runs a statement and returns all result rows
func (a *Actor) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	var out []Row
	err := a.do(ctx, "query", func(ctx context.Context, db *sql.DB) error {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return fault("query", err)
		}
		defer rows.Close()

		out, err = scanRows(rows)
		return fault("query", err)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// QueryOne returns the first result row. found is false when the statement
// produced no rows; that is not an error.
func (a *Actor) QueryOne(ctx context.Context, query string, args ...any) (row Row, found bool, err error) {
	rows, err := a.Query(ctx, query, args...)
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

// Execute runs a statement that returns no rows. When it changes any row,
// the tenant record's updated_at advances.
func (a *Actor) Execute(ctx context.Context, query string, args ...any) error {
	return a.do(ctx, "execute", func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return fault("execute", err)
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return nil
		}
		_, err = db.ExecContext(ctx, touchRecord, a.now().Unix(), recordID)
		return fault("execute", err)
	})
}

// Record returns the singleton tenant row
func (a *Actor) Record(ctx context.Context) (*Record, error) {
	rec := &Record{}
	err := a.do(ctx, "record", func(ctx context.Context, db *sql.DB) error {
		var billingID, creatorID, creatorEmail sql.NullString
		err := db.QueryRowContext(ctx, `
			SELECT id, billing_customer_id, creator_user_id, creator_email, created_at, updated_at
			FROM tenant WHERE id = ?`, recordID).
			Scan(&rec.ID, &billingID, &creatorID, &creatorEmail, &rec.CreatedAt, &rec.UpdatedAt)
		if err != nil {
			return fault("record", err)
		}
		rec.BillingCustomerID = billingID.String
		rec.CreatorUserID = creatorID.String
		rec.CreatorEmail = creatorEmail.String
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// BillingCustomerID returns the persisted billing customer id, or "" when
// none has been provisioned.
func (a *Actor) BillingCustomerID(ctx context.Context) (string, error) {
	var id sql.NullString
	err := a.do(ctx, "billing_customer_id", func(ctx context.Context, db *sql.DB) error {
		err := db.QueryRowContext(ctx, `SELECT billing_customer_id FROM tenant WHERE id = ?`, recordID).Scan(&id)
		return fault("billing_customer_id", err)
	})
	if err != nil {
		return "", err
	}
	return id.String, nil
}

// SetBillingCustomerIDIfAbsent stores customerID unless an id is already
// recorded, and returns whichever id is persisted afterwards.
func (a *Actor) SetBillingCustomerIDIfAbsent(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", fmt.Errorf("customer id is required")
	}

	var persisted sql.NullString
	err := a.do(ctx, "set_billing_customer_id", func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			UPDATE tenant SET billing_customer_id = ?, updated_at = ?
			WHERE id = ? AND billing_customer_id IS NULL`,
			customerID, a.now().Unix(), recordID)
		if err != nil {
			return fault("set_billing_customer_id", err)
		}
		err = db.QueryRowContext(ctx, `SELECT billing_customer_id FROM tenant WHERE id = ?`, recordID).Scan(&persisted)
		return fault("set_billing_customer_id", err)
	})
	if err != nil {
		return "", err
	}
	return persisted.String, nil
}

// SetCreatorIfAbsent records the creator on first call only. It reports
// whether it wrote anything; updated_at only advances when it did.
func (a *Actor) SetCreatorIfAbsent(ctx context.Context, userID, email string) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("user id is required")
	}

	var written bool
	err := a.do(ctx, "set_creator", func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			UPDATE tenant SET creator_user_id = ?, creator_email = ?, updated_at = ?
			WHERE id = ? AND creator_user_id IS NULL`,
			userID, nullable(email), a.now().Unix(), recordID)
		if err != nil {
			return fault("set_creator", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fault("set_creator", err)
		}
		written = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return written, nil
}

// GetSetting returns a tenant setting
func (a *Actor) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value sql.NullString
	err := a.do(ctx, "get_setting", func(ctx context.Context, db *sql.DB) error {
		err := db.QueryRowContext(ctx, `SELECT value FROM tenant_settings WHERE key = ?`, key).Scan(&value)
		if err == sql.ErrNoRows {
			return nil
		}
		return fault("get_setting", err)
	})
	if err != nil {
		return "", false, err
	}
	return value.String, value.Valid, nil
}

// SetSetting upserts a tenant setting
func (a *Actor) SetSetting(ctx context.Context, key, value string) error {
	return a.do(ctx, "set_setting", func(ctx context.Context, db *sql.DB) error {
		ts := a.now().Unix()
		_, err := db.ExecContext(ctx, `
			INSERT INTO tenant_settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, ts)
		if err != nil {
			return fault("set_setting", err)
		}
		_, err = db.ExecContext(ctx, `UPDATE tenant SET updated_at = ? WHERE id = ?`, ts, recordID)
		return fault("set_setting", err)
	})
}

// GetStorageStats returns the current size of the tenant store
func (a *Actor) GetStorageStats(ctx context.Context) (StorageStats, error) {
	var pageCount, pageSize int64
	err := a.do(ctx, "storage_stats", func(ctx context.Context, db *sql.DB) error {
		if err := db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
			return fault("storage_stats", err)
		}
		err := db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize)
		return fault("storage_stats", err)
	})
	if err != nil {
		return StorageStats{}, err
	}

	raw := pageCount * pageSize
	return StorageStats{
		RawBytes:       raw,
		Megabytes:      round2(float64(raw) / (1024 * 1024)),
		PercentOfQuota: round2(float64(raw) / float64(StorageQuotaBytes) * 100),
	}, nil
}

// MintInternalToken issues a one-hour internal token for calls this actor
// makes to other actors on behalf of the given identity.
func (a *Actor) MintInternalToken(organizationID, subjectID string) (string, error) {
	if a.tokens == nil {
		return "", auth.ErrNoSecret
	}
	return a.tokens.Mint(organizationID, subjectID)
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	textual := make([]bool, len(types))
	for i, ct := range types {
		textual[i] = hasTextAffinity(ct.DatabaseTypeName())
	}

	out := []Row{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok && textual[i] {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// hasTextAffinity applies SQLite's column affinity rule for TEXT. Other
// columns keep []byte values as is, so BLOBs are not reinterpreted.
func hasTextAffinity(declared string) bool {
	declared = strings.ToUpper(declared)
	return strings.Contains(declared, "CHAR") ||
		strings.Contains(declared, "CLOB") ||
		strings.Contains(declared, "TEXT")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
