package tenant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/platinummonkey/tenantd/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestActor(t *testing.T, opts ...ActorOption) *Actor {
	t.Helper()
	db, err := SQLiteOpener("")("org_test")
	require.NoError(t, err)

	a := NewActor("org_test", db, auth.NewInternalTokens(auth.StaticSecret("test-secret")), opts...)
	t.Cleanup(a.Close)
	return a
}

func countRecords(t *testing.T, a *Actor) int64 {
	t.Helper()
	row, found, err := a.QueryOne(context.Background(), `SELECT COUNT(*) AS n FROM tenant`)
	require.NoError(t, err)
	require.True(t, found)
	return row["n"].(int64)
}

type recordingObserver struct {
	mu        sync.Mutex
	ops       []string
	durations map[string]time.Duration
}

func (o *recordingObserver) ObserveOperation(op string, d time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, op)
	if o.durations == nil {
		o.durations = make(map[string]time.Duration)
	}
	o.durations[op] = d
}

func (o *recordingObserver) duration(op string) time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.durations[op]
}

func TestActor_LazyInitialization(t *testing.T) {
	a := newTestActor(t)
	ctx := context.Background()

	rows, err := a.Query(ctx, `SELECT id FROM tenant`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["id"])

	require.NoError(t, a.Execute(ctx, `UPDATE tenant SET updated_at = updated_at`))
	assert.Equal(t, int64(1), countRecords(t, a))
}

func TestActor_ConcurrentFirstAccess(t *testing.T) {
	a := newTestActor(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Query(ctx, `SELECT * FROM tenant`)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(1), countRecords(t, a))
}

func TestActor_InitializationSurvivesRestart(t *testing.T) {
	open := SQLiteOpener(t.TempDir())
	tokens := auth.NewInternalTokens(nil)
	ctx := context.Background()

	db, err := open("org_restart")
	require.NoError(t, err)
	first := NewActor("org_restart", db, tokens)
	_, err = first.SetCreatorIfAbsent(ctx, "user_1", "one@example.com")
	require.NoError(t, err)
	first.Close()

	db, err = open("org_restart")
	require.NoError(t, err)
	second := NewActor("org_restart", db, tokens)
	defer second.Close()

	assert.Equal(t, int64(1), countRecords(t, second))
	rec, err := second.Record(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user_1", rec.CreatorUserID)
}

func TestActor_SetCreatorIfAbsent(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a := newTestActor(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	rec, err := a.Record(ctx)
	require.NoError(t, err)
	assert.Equal(t, now.Unix(), rec.UpdatedAt)

	now = now.Add(time.Minute)
	written, err := a.SetCreatorIfAbsent(ctx, "user_1", "first@example.com")
	require.NoError(t, err)
	assert.True(t, written)

	now = now.Add(time.Minute)
	written, err = a.SetCreatorIfAbsent(ctx, "user_2", "second@example.com")
	require.NoError(t, err)
	assert.False(t, written)

	rec, err = a.Record(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user_1", rec.CreatorUserID)
	assert.Equal(t, "first@example.com", rec.CreatorEmail)
	assert.Equal(t, now.Add(-time.Minute).Unix(), rec.UpdatedAt, "no-op must not advance updated_at")

	_, err = a.SetCreatorIfAbsent(ctx, "", "x@example.com")
	assert.Error(t, err)
}

func TestActor_SetBillingCustomerIDIfAbsent(t *testing.T) {
	a := newTestActor(t)
	ctx := context.Background()

	id, err := a.BillingCustomerID(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	persisted, err := a.SetBillingCustomerIDIfAbsent(ctx, "cus_abc")
	require.NoError(t, err)
	assert.Equal(t, "cus_abc", persisted)

	persisted, err = a.SetBillingCustomerIDIfAbsent(ctx, "cus_other")
	require.NoError(t, err)
	assert.Equal(t, "cus_abc", persisted)

	id, err = a.BillingCustomerID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cus_abc", id)
}

func TestActor_QueryOneNotFound(t *testing.T) {
	a := newTestActor(t)

	row, found, err := a.QueryOne(context.Background(), `SELECT id FROM tenant WHERE id = ?`, 42)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, row)
}

func TestActor_MalformedStatement(t *testing.T) {
	a := newTestActor(t)

	_, err := a.Query(context.Background(), `SELEC nonsense`)
	var sf *StorageFault
	require.True(t, errors.As(err, &sf))
	assert.Equal(t, "query", sf.Op)

	err = a.Execute(context.Background(), `INSERT INTO missing_table VALUES (1)`)
	assert.True(t, errors.As(err, &sf))
}

func TestActor_Settings(t *testing.T) {
	a := newTestActor(t)
	ctx := context.Background()

	_, found, err := a.GetSetting(ctx, "alias")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, a.SetSetting(ctx, "alias", "acme"))
	require.NoError(t, a.SetSetting(ctx, "alias", "acme-corp"))

	value, found, err := a.GetSetting(ctx, "alias")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "acme-corp", value)
}

func TestActor_GetStorageStats(t *testing.T) {
	a := newTestActor(t)

	stats, err := a.GetStorageStats(context.Background())
	require.NoError(t, err)
	assert.Greater(t, stats.RawBytes, int64(0))
	assert.GreaterOrEqual(t, stats.Megabytes, 0.0)
	assert.Less(t, stats.PercentOfQuota, 1.0)
}

func TestActor_MintInternalToken(t *testing.T) {
	a := newTestActor(t)

	token, err := a.MintInternalToken("org_test", "user_1")
	require.NoError(t, err)

	identity, err := auth.NewInternalTokens(auth.StaticSecret("test-secret")).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "org_test", identity.OrganizationID)
	assert.Equal(t, "user_1", identity.SubjectID)

	db, err := SQLiteOpener("")("org_nokey")
	require.NoError(t, err)
	unkeyed := NewActor("org_nokey", db, nil)
	defer unkeyed.Close()
	_, err = unkeyed.MintInternalToken("org_nokey", "user_1")
	assert.ErrorIs(t, err, auth.ErrNoSecret)
}

func TestActor_Stopped(t *testing.T) {
	db, err := SQLiteOpener("")("org_stop")
	require.NoError(t, err)
	a := NewActor("org_stop", db, nil)
	a.Close()

	_, err = a.Query(context.Background(), `SELECT 1`)
	assert.ErrorIs(t, err, ErrActorStopped)
}

func TestActor_CanceledContext(t *testing.T) {
	a := newTestActor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Query(ctx, `SELECT 1`)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestActor_Observer(t *testing.T) {
	obs := &recordingObserver{}
	a := newTestActor(t, WithObserver(obs))
	ctx := context.Background()

	_, err := a.GetStorageStats(ctx)
	require.NoError(t, err)
	require.NoError(t, a.Execute(ctx, `UPDATE tenant SET updated_at = 1`))

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []string{"storage_stats", "execute"}, obs.ops)
}

func TestActor_ObservedDurationIncludesQueueing(t *testing.T) {
	obs := &recordingObserver{}
	a := newTestActor(t, WithObserver(obs))
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = a.do(ctx, "hold", func(context.Context, *sql.DB) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	done := make(chan error, 1)
	go func() {
		_, err := a.GetStorageStats(ctx)
		done <- err
	}()
	time.Sleep(60 * time.Millisecond)
	close(release)
	require.NoError(t, <-done)

	assert.GreaterOrEqual(t, obs.duration("storage_stats"), 40*time.Millisecond)
}

func TestActor_ExecuteAdvancesUpdatedAt(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	a := newTestActor(t, WithClock(clock))
	ctx := context.Background()

	rec, err := a.Record(ctx)
	require.NoError(t, err)
	created := rec.UpdatedAt

	advance(time.Minute)
	require.NoError(t, a.Execute(ctx,
		`INSERT INTO tenant_settings (key, value, updated_at) VALUES ('theme', 'dark', 0)`))
	rec, err = a.Record(ctx)
	require.NoError(t, err)
	assert.Equal(t, created+60, rec.UpdatedAt)
	assert.Equal(t, created, rec.CreatedAt)

	// A statement that changes nothing leaves updated_at alone.
	advance(time.Minute)
	require.NoError(t, a.Execute(ctx, `DELETE FROM tenant_settings WHERE key = 'missing'`))
	rec, err = a.Record(ctx)
	require.NoError(t, err)
	assert.Equal(t, created+60, rec.UpdatedAt)
}

func TestActor_QueryKeepsBlobs(t *testing.T) {
	a := newTestActor(t)
	ctx := context.Background()
	payload := []byte{0xff, 0x00, 0xfe, 0x80}

	require.NoError(t, a.Execute(ctx, `CREATE TABLE attachments (name TEXT, note VARCHAR(32), data BLOB)`))
	require.NoError(t, a.Execute(ctx, `INSERT INTO attachments (name, note, data) VALUES (?, ?, ?)`,
		"logo", "png", payload))

	row, found, err := a.QueryOne(ctx, `SELECT name, note, data FROM attachments`)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "logo", row["name"])
	assert.Equal(t, "png", row["note"])
	assert.Equal(t, payload, row["data"])

	encoded, err := json.Marshal(row)
	require.NoError(t, err)
	var decoded struct {
		Data []byte `json:"data"`
	}
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, payload, decoded.Data)
}

func expectInit(mock sqlmock.Sqlmock) {
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS tenant ").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS tenant_settings").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT OR IGNORE INTO tenant").
		WithArgs(recordID, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func TestActor_StoreUnavailable(t *testing.T) {
	t.Run("initialization failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS tenant ").WillReturnError(errors.New("disk I/O error"))
		mock.ExpectClose()

		a := NewActor("org_mock", db, nil)
		_, err = a.Query(context.Background(), `SELECT 1`)

		var sf *StorageFault
		require.True(t, errors.As(err, &sf))
		assert.Equal(t, "initialize", sf.Op)

		a.Close()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("initialization retried after failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS tenant ").WillReturnError(errors.New("database is locked"))
		expectInit(mock)
		mock.ExpectExec("UPDATE tenant SET creator_user_id").
			WithArgs("user_1", "a@example.com", sqlmock.AnyArg(), recordID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectClose()

		a := NewActor("org_mock", db, nil)
		ctx := context.Background()

		_, err = a.SetCreatorIfAbsent(ctx, "user_1", "a@example.com")
		assert.Error(t, err)

		written, err := a.SetCreatorIfAbsent(ctx, "user_1", "a@example.com")
		require.NoError(t, err)
		assert.True(t, written)

		a.Close()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("execute failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)

		expectInit(mock)
		mock.ExpectExec("DELETE FROM tenant_settings").WillReturnError(errors.New("database is closed"))
		mock.ExpectClose()

		a := NewActor("org_mock", db, nil)
		err = a.Execute(context.Background(), `DELETE FROM tenant_settings`)

		var sf *StorageFault
		require.True(t, errors.As(err, &sf))
		assert.Equal(t, "execute", sf.Op)

		a.Close()
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
