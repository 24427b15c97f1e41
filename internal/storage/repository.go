// Package storage is the facade the rest of the application talks to. It
// owns construction and lifecycle of the managers, the local SQLite cache,
// and the current signing identity, and exposes one cohesive API for
// annotations, comments, profiles, peers and maintenance.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/annotify/annotify/internal/annotations"
	"github.com/annotify/annotify/internal/cleanup"
	"github.com/annotify/annotify/internal/common"
	"github.com/annotify/annotify/internal/config"
	"github.com/annotify/annotify/internal/keys"
	"github.com/annotify/annotify/internal/localstore"
	"github.com/annotify/annotify/internal/logging"
	"github.com/annotify/annotify/internal/models"
	"github.com/annotify/annotify/internal/peers"
	"github.com/annotify/annotify/internal/profiles"
	"github.com/annotify/annotify/internal/store"
	"github.com/annotify/annotify/internal/tabs"
	"github.com/annotify/annotify/internal/timex"
)

// Repository wires the managers together behind one API.
type Repository struct {
	cfg   *config.Config
	log   logging.Logger
	store store.Store
	db    *sql.DB
	cache localstore.KV

	annotations *annotations.Manager
	profiles    *profiles.Manager
	peers       *peers.Manager
	cleanup     *cleanup.Manager

	initGroup   singleflight.Group
	initialized bool
	initMu      sync.Mutex

	idMu    sync.Mutex
	did     string
	keyPair keys.KeyPair
}

// Option customizes Repository construction.
type Option func(*options)

type options struct {
	capturer tabs.Capturer
	clock    timex.Clock
}

// WithCapturer enables best-effort screenshot capture on saves.
func WithCapturer(c tabs.Capturer) Option { return func(o *options) { o.capturer = c } }

// WithClock injects a clock; tests use a manual one.
func WithClock(c timex.Clock) Option { return func(o *options) { o.clock = c } }

// New assembles a Repository over an already-opened store and SQLite handle.
// Call Init before first use; every public method also initializes lazily.
func New(cfg *config.Config, log logging.Logger, s store.Store, db *sql.DB, opts ...Option) *Repository {
	o := options{clock: timex.RealClock{}}
	for _, apply := range opts {
		apply(&o)
	}

	cache := localstore.NewSQLiteKV(db)
	throttled := logging.NewThrottled(log, cfg.LogThrottleInterval, o.clock)

	r := &Repository{
		cfg:   cfg,
		log:   log.With("component", "storage"),
		store: s,
		db:    db,
		cache: cache,
		annotations: annotations.NewManager(s, log, o.clock, o.capturer, annotations.Options{
			ScanWindow:        cfg.ScanWindow,
			ScanRetries:       cfg.ScanRetries,
			CommentScanWindow: cfg.CommentScanWindow,
			DebounceWindow:    cfg.DebounceWindow,
		}),
		profiles: profiles.NewManager(s, cache, log, cfg.ProfileRetries, cfg.ProfileRetryDelay),
		peers: peers.NewManager(s, cache, throttled, o.clock, peers.Options{
			InitialPeers:       cfg.InitialPeers,
			FallbackPeers:      cfg.FallbackPeers,
			TTL:                cfg.PeerTTL,
			ReRegisterInterval: cfg.ReRegisterInterval,
			ConnectionCheck:    cfg.ConnectionCheck,
			FetchAttempts:      cfg.PeerFetchAttempts,
			FetchBaseDelay:     cfg.PeerFetchBaseDelay,
			BreakerThreshold:   cfg.BreakerThreshold,
			BreakerCooldown:    cfg.BreakerCooldown,
		}),
		cleanup: cleanup.NewManager(s, log, cfg.CleanupInterval),
	}
	return r
}

// Init prepares the local cache schema and runs initial peer discovery.
// Concurrent callers share a single in-flight initialization; once it has
// succeeded, Init is a no-op.
func (r *Repository) Init(ctx context.Context) error {
	r.initMu.Lock()
	done := r.initialized
	r.initMu.Unlock()
	if done {
		return nil
	}

	_, err, _ := r.initGroup.Do("init", func() (any, error) {
		if err := localstore.RunMigrations(ctx, r.db); err != nil {
			return nil, fmt.Errorf("preparing local cache: %w", err)
		}
		if err := r.peers.DiscoverPeers(ctx); err != nil {
			// The store may simply be unreachable at startup; the periodic
			// loop keeps trying.
			r.log.Warn(ctx, "initial peer discovery failed", "error", err.Error())
		}
		r.initMu.Lock()
		r.initialized = true
		r.initMu.Unlock()
		return nil, nil
	})
	return err
}

// Run starts the background loops (peer maintenance, cleanup sweep) and
// blocks until ctx is cancelled.
func (r *Repository) Run(ctx context.Context) error {
	if err := r.Init(ctx); err != nil {
		return err
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); r.peers.Run(ctx) }()
	go func() { defer wg.Done(); r.cleanup.Run(ctx) }()
	wg.Wait()
	return nil
}

// identity returns the active signing identity.
func (r *Repository) identity() (string, keys.KeyPair, error) {
	r.idMu.Lock()
	defer r.idMu.Unlock()
	if r.did == "" {
		return "", keys.KeyPair{}, fmt.Errorf("%w: no identity loaded", common.ErrPrecondition)
	}
	return r.did, r.keyPair, nil
}

// CurrentDID returns the active identity's DID, or "" when logged out.
func (r *Repository) CurrentDID() string {
	r.idMu.Lock()
	defer r.idMu.Unlock()
	return r.did
}

// CreateIdentity generates a fresh key pair, seals it under the passphrase
// into the local keyring, and makes it the active identity.
func (r *Repository) CreateIdentity(ctx context.Context, passphrase []byte) (string, error) {
	if err := r.Init(ctx); err != nil {
		return "", err
	}
	kp, err := keys.Generate()
	if err != nil {
		return "", err
	}
	blob, err := keys.SealKeyPair(kp, passphrase)
	if err != nil {
		return "", err
	}
	if err := r.cache.Set(ctx, localstore.KeyKeyring, blob); err != nil {
		return "", fmt.Errorf("storing keyring: %w", err)
	}

	did := kp.DID()
	if err := r.profiles.SetCurrentDID(ctx, did); err != nil {
		return "", err
	}
	r.idMu.Lock()
	r.did, r.keyPair = did, kp
	r.idMu.Unlock()
	return did, nil
}

// Login unseals the stored keyring and activates its identity.
func (r *Repository) Login(ctx context.Context, passphrase []byte) (string, error) {
	if err := r.Init(ctx); err != nil {
		return "", err
	}
	blob, err := r.cache.Get(ctx, localstore.KeyKeyring)
	if err != nil {
		return "", fmt.Errorf("reading keyring: %w", err)
	}
	if blob == nil {
		return "", fmt.Errorf("keyring: %w", common.ErrNotFound)
	}
	kp, err := keys.OpenKeyPair(blob, passphrase)
	if err != nil {
		return "", err
	}

	did := kp.DID()
	if err := r.profiles.SetCurrentDID(ctx, did); err != nil {
		return "", err
	}
	r.idMu.Lock()
	r.did, r.keyPair = did, kp
	r.idMu.Unlock()
	return did, nil
}

// Logout clears the active identity and the cached current DID. The sealed
// keyring stays on disk for the next login.
func (r *Repository) Logout(ctx context.Context) error {
	r.idMu.Lock()
	r.did, r.keyPair = "", keys.KeyPair{}
	r.idMu.Unlock()
	return r.profiles.ClearCurrentDID(ctx)
}

// SaveAnnotation signs and stores an annotation as the active identity.
func (r *Repository) SaveAnnotation(ctx context.Context, a models.Annotation, tabID int, captureScreenshot bool) error {
	if err := r.Init(ctx); err != nil {
		return err
	}
	did, kp, err := r.identity()
	if err != nil {
		return err
	}
	if a.Author == "" {
		a.Author = did
	}
	r.cleanup.Track(a.URL)
	return r.annotations.SaveAnnotation(ctx, a, tabID, captureScreenshot, did, kp)
}

// SaveComment signs and stores a comment as the active identity.
func (r *Repository) SaveComment(ctx context.Context, pageURL, annotationID string, c models.Comment) error {
	if err := r.Init(ctx); err != nil {
		return err
	}
	did, kp, err := r.identity()
	if err != nil {
		return err
	}
	return r.annotations.SaveComment(ctx, pageURL, annotationID, c, did, kp)
}

// DeleteAnnotation soft-deletes an annotation owned by the active identity.
func (r *Repository) DeleteAnnotation(ctx context.Context, pageURL, annotationID string) error {
	if err := r.Init(ctx); err != nil {
		return err
	}
	did, kp, err := r.identity()
	if err != nil {
		return err
	}
	r.cleanup.Track(pageURL)
	return r.annotations.DeleteAnnotation(ctx, pageURL, annotationID, did, kp)
}

// DeleteComment soft-deletes a comment owned by the active identity.
func (r *Repository) DeleteComment(ctx context.Context, pageURL, annotationID, commentID string) error {
	if err := r.Init(ctx); err != nil {
		return err
	}
	did, kp, err := r.identity()
	if err != nil {
		return err
	}
	r.cleanup.Track(pageURL)
	return r.annotations.DeleteComment(ctx, pageURL, annotationID, commentID, did, kp)
}

// GetAnnotations returns a page's active annotations and optionally registers
// a live-update callback. Works without an identity: reading is public.
func (r *Repository) GetAnnotations(ctx context.Context, pageURL string, callback annotations.Callback) ([]models.Annotation, error) {
	if err := r.Init(ctx); err != nil {
		return nil, err
	}
	r.cleanup.Track(pageURL)
	return r.annotations.GetAnnotations(ctx, pageURL, callback)
}

// CleanupListeners detaches live-update state for a page.
func (r *Repository) CleanupListeners(pageURL string) {
	r.annotations.CleanupListeners(pageURL)
}

// GetProfile resolves a DID to a profile; nil means unknown.
func (r *Repository) GetProfile(ctx context.Context, did string) (*models.Profile, error) {
	if err := r.Init(ctx); err != nil {
		return nil, err
	}
	return r.profiles.GetProfile(ctx, did)
}

// SaveProfile stores the active identity's profile.
func (r *Repository) SaveProfile(ctx context.Context, p models.Profile) error {
	if err := r.Init(ctx); err != nil {
		return err
	}
	did, _, err := r.identity()
	if err != nil {
		return err
	}
	if p.DID == "" {
		p.DID = did
	}
	if p.DID != did {
		return fmt.Errorf("%w: profile DID is not the active identity", common.ErrUnauthorized)
	}
	return r.profiles.SaveProfile(ctx, p)
}

// GetCurrentDID reports the persisted current DID, falling back to the local
// cache during store outages.
func (r *Repository) GetCurrentDID(ctx context.Context) (string, error) {
	if err := r.Init(ctx); err != nil {
		return "", err
	}
	return r.profiles.GetCurrentDID(ctx)
}

// PeerStatus reports the best-known state of the replication peers.
func (r *Repository) PeerStatus() []models.PeerStatus {
	return r.peers.PeerStatus()
}

// MigrateAnnotations copies a page's legacy unsharded records into the
// routed shard.
func (r *Repository) MigrateAnnotations(ctx context.Context, pageURL string) (int, error) {
	if err := r.Init(ctx); err != nil {
		return 0, err
	}
	return r.cleanup.MigrateAnnotations(ctx, pageURL)
}

// SweepURL finalizes soft deletes for one page immediately.
func (r *Repository) SweepURL(ctx context.Context, pageURL string) (int, error) {
	if err := r.Init(ctx); err != nil {
		return 0, err
	}
	return r.cleanup.SweepURL(ctx, pageURL)
}

// InspectAnnotations triages a page's records.
func (r *Repository) InspectAnnotations(ctx context.Context, pageURL string) (cleanup.Report, error) {
	if err := r.Init(ctx); err != nil {
		return cleanup.Report{}, err
	}
	return r.cleanup.InspectAnnotations(ctx, pageURL)
}
