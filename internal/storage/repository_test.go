package storage

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annotify/annotify/internal/common"
	"github.com/annotify/annotify/internal/config"
	"github.com/annotify/annotify/internal/logging"
	"github.com/annotify/annotify/internal/models"
	"github.com/annotify/annotify/internal/store"
	"github.com/annotify/annotify/internal/timex"

	_ "modernc.org/sqlite"
)

const pageURL = "https://example.com/article"

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.ScanWindow = time.Millisecond
	cfg.ScanRetries = 1
	cfg.CommentScanWindow = time.Millisecond
	cfg.DebounceWindow = 20 * time.Millisecond
	cfg.ProfileRetries = 2
	cfg.ProfileRetryDelay = time.Millisecond
	cfg.PeerFetchAttempts = 1
	cfg.PeerFetchBaseDelay = time.Nanosecond
	return cfg
}

func setupRepository(t *testing.T) (*Repository, *store.Memory) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := timex.NewManualClock(time.UnixMilli(1_000_000))
	mem := store.NewMemory(clock)
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := New(testConfig(), log, mem, db, WithClock(clock))
	require.NoError(t, r.Init(context.Background()))
	return r, mem
}

func TestInit_ConcurrentCallersShareOneInit(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := timex.NewManualClock(time.UnixMilli(1_000_000))
	mem := store.NewMemory(clock)
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := New(testConfig(), log, mem, db, WithClock(clock))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Init(context.Background()))
		}()
	}
	wg.Wait()
	assert.NoError(t, r.Init(context.Background()))
}

func TestIdentityLifecycle(t *testing.T) {
	r, _ := setupRepository(t)
	ctx := context.Background()
	pass := []byte("correct horse")

	// No identity yet: writes are rejected up front.
	err := r.SaveAnnotation(ctx, models.Annotation{ID: "a1", URL: pageURL, Content: "x"}, 0, false)
	assert.ErrorIs(t, err, common.ErrPrecondition)

	did, err := r.CreateIdentity(ctx, pass)
	require.NoError(t, err)
	assert.True(t, models.IsDID(did))
	assert.Equal(t, did, r.CurrentDID())

	require.NoError(t, r.Logout(ctx))
	assert.Empty(t, r.CurrentDID())

	// The sealed keyring survives logout; login restores the same identity.
	got, err := r.Login(ctx, pass)
	require.NoError(t, err)
	assert.Equal(t, did, got)

	_, err = r.Login(ctx, []byte("wrong"))
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestSaveAndGetAnnotations_EndToEnd(t *testing.T) {
	r, _ := setupRepository(t)
	ctx := context.Background()

	did, err := r.CreateIdentity(ctx, []byte("pass"))
	require.NoError(t, err)

	a := models.Annotation{ID: "a1", URL: pageURL + "?utm_source=x", Content: "note"}
	require.NoError(t, r.SaveAnnotation(ctx, a, 0, false))
	require.NoError(t, r.SaveComment(ctx, pageURL, "a1", models.Comment{ID: "c1", Content: "reply"}))

	got, err := r.GetAnnotations(ctx, pageURL, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, did, got[0].Author)
	assert.Equal(t, pageURL, got[0].URL, "URL normalized at the write boundary")
	require.Len(t, got[0].Comments, 1)

	require.NoError(t, r.DeleteAnnotation(ctx, pageURL, "a1"))
	got, err = r.GetAnnotations(ctx, pageURL, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSweepAndInspect(t *testing.T) {
	r, _ := setupRepository(t)
	ctx := context.Background()

	_, err := r.CreateIdentity(ctx, []byte("pass"))
	require.NoError(t, err)

	require.NoError(t, r.SaveAnnotation(ctx, models.Annotation{ID: "a1", URL: pageURL, Content: "x"}, 0, false))
	require.NoError(t, r.DeleteAnnotation(ctx, pageURL, "a1"))

	report, err := r.InspectAnnotations(ctx, pageURL)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, report.Marked)

	n, err := r.SweepURL(ctx, pageURL)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	report, err = r.InspectAnnotations(ctx, pageURL)
	require.NoError(t, err)
	assert.Empty(t, report.Marked)
	assert.Equal(t, []string{"a1"}, report.Tombstoned)
}

func TestMigrateAnnotations_ThroughFacade(t *testing.T) {
	r, mem := setupRepository(t)
	ctx := context.Background()

	require.NoError(t, mem.Put(ctx, []string{"annotations", pageURL, "old"},
		store.Fields{"id": "old", "content": "legacy", "author": "did:key:zAAA", "timestamp": int64(1)}))

	n, err := r.MigrateAnnotations(ctx, pageURL)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := r.GetAnnotations(ctx, pageURL, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "old", got[0].ID)
}

func TestSaveProfile_BoundToActiveIdentity(t *testing.T) {
	r, _ := setupRepository(t)
	ctx := context.Background()

	did, err := r.CreateIdentity(ctx, []byte("pass"))
	require.NoError(t, err)

	require.NoError(t, r.SaveProfile(ctx, models.Profile{Handle: "alice"}))
	p, err := r.GetProfile(ctx, did)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "alice", p.Handle)

	err = r.SaveProfile(ctx, models.Profile{DID: "did:key:zOTHER", Handle: "mallory"})
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestPeerStatus_Exposed(t *testing.T) {
	r, _ := setupRepository(t)
	statuses := r.PeerStatus()
	assert.NotEmpty(t, statuses)
}
