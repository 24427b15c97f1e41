// Package profiles resolves author DIDs to display identities and tracks
// the current user's DID across replicated-store outages.
package profiles

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/annotify/annotify/internal/common"
	"github.com/annotify/annotify/internal/localstore"
	"github.com/annotify/annotify/internal/logging"
	"github.com/annotify/annotify/internal/models"
	"github.com/annotify/annotify/internal/retry"
	"github.com/annotify/annotify/internal/store"
)

// Store node layout.
const (
	currentDIDNode    = "current_did"
	profilesNode      = "profiles"
	legacyNodePrefix  = "user_"
	legacyProfileLeaf = "profile"
)

// Manager reads and writes profile records. Lookups retry a bounded number
// of times and resolve to absence rather than error when the store stays
// unreachable: callers render "Unknown" instead of failing.
type Manager struct {
	store      store.Store
	cache      localstore.KV
	log        logging.Logger
	retries    int
	retryDelay time.Duration
}

func NewManager(s store.Store, cache localstore.KV, log logging.Logger, retries int, retryDelay time.Duration) *Manager {
	return &Manager{store: s, cache: cache, log: log.With("component", "profiles"), retries: retries, retryDelay: retryDelay}
}

// GetCurrentDID returns the active user's DID, or "" when none is known.
// The replicated store is tried first with a bounded retry loop; on
// exhaustion the local cache answers, and a cache hit is opportunistically
// written back to the store so it self-heals after an outage.
func (m *Manager) GetCurrentDID(ctx context.Context) (string, error) {
	var did string
	err := retry.Constant(ctx, m.retries, m.retryDelay, func(ctx context.Context) error {
		fields, ok, err := m.store.Once(ctx, []string{currentDIDNode})
		if err != nil {
			return err
		}
		if !ok || fields["did"] == nil {
			return fmt.Errorf("current did: %w", common.ErrNotFound)
		}
		did, _ = fields["did"].(string)
		return nil
	})
	if err == nil && did != "" {
		return did, nil
	}

	cached, cacheErr := m.cache.Get(ctx, localstore.KeyCurrentDID)
	if cacheErr != nil {
		return "", fmt.Errorf("current did cache read: %w", cacheErr)
	}
	if cached == nil {
		m.log.Warn(ctx, "current did unavailable", "storeError", fmt.Sprint(err))
		return "", nil
	}

	did = string(cached)
	// Self-heal: push the cached DID back so other sessions recover too.
	if putErr := m.store.Put(ctx, []string{currentDIDNode}, store.Fields{"did": did}); putErr != nil {
		m.log.Warn(ctx, "current did write-back failed", "error", putErr.Error())
	}
	return did, nil
}

// SetCurrentDID dual-writes the DID to the store and the local cache. Both
// writes must succeed; there is no tolerated partial failure for identity.
func (m *Manager) SetCurrentDID(ctx context.Context, did string) error {
	if !models.IsDID(did) {
		return fmt.Errorf("%w: not a DID: %q", common.ErrPrecondition, did)
	}
	if err := m.store.Put(ctx, []string{currentDIDNode}, store.Fields{"did": did}); err != nil {
		return fmt.Errorf("storing current did: %w", err)
	}
	if err := m.cache.Set(ctx, localstore.KeyCurrentDID, []byte(did)); err != nil {
		return fmt.Errorf("caching current did: %w", err)
	}
	return nil
}

// ClearCurrentDID clears only the local cache. The store's last-known DID is
// retained on purpose so a later session can reattach.
func (m *Manager) ClearCurrentDID(ctx context.Context) error {
	return m.cache.Remove(ctx, localstore.KeyCurrentDID)
}

// GetProfile resolves a DID to a profile, checking the primary location and
// then the legacy pre-sharding location. The whole two-location lookup is
// retried a bounded number of times; exhaustion resolves to nil, not error.
func (m *Manager) GetProfile(ctx context.Context, did string) (*models.Profile, error) {
	var profile *models.Profile
	err := retry.Constant(ctx, m.retries, m.retryDelay, func(ctx context.Context) error {
		for _, path := range [][]string{
			{profilesNode, did},
			{legacyNodePrefix + did, legacyProfileLeaf},
		} {
			fields, ok, err := m.store.Once(ctx, path)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if p, reason := models.ParseProfile(fields); reason == "" {
				profile = &p
				return nil
			}
		}
		return fmt.Errorf("profile %s: %w", did, common.ErrNotFound)
	})
	if err == nil && profile != nil {
		m.cacheProfile(ctx, *profile)
		return profile, nil
	}

	if cached := m.cachedProfile(ctx, did); cached != nil {
		return cached, nil
	}
	m.log.Warn(ctx, "profile lookup exhausted", "did", did)
	return nil, nil
}

// SaveProfile writes the profile to both the primary and the legacy
// location so historical readers keep working.
func (m *Manager) SaveProfile(ctx context.Context, p models.Profile) error {
	if !models.IsDID(p.DID) {
		return fmt.Errorf("%w: profile did is not a DID", common.ErrPrecondition)
	}
	if p.Handle == "" {
		return fmt.Errorf("%w: profile handle is empty", common.ErrPrecondition)
	}
	if err := m.store.Put(ctx, []string{profilesNode, p.DID}, p.Fields()); err != nil {
		return fmt.Errorf("storing profile: %w", err)
	}
	if err := m.store.Put(ctx, []string{legacyNodePrefix + p.DID, legacyProfileLeaf}, p.Fields()); err != nil {
		return fmt.Errorf("storing legacy profile: %w", err)
	}
	m.cacheProfile(ctx, p)
	return nil
}

func (m *Manager) cacheProfile(ctx context.Context, p models.Profile) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := m.cache.Set(ctx, localstore.ProfileKeyPrefix+p.DID, data); err != nil {
		m.log.Warn(ctx, "profile cache write failed", "did", p.DID, "error", err.Error())
	}
}

func (m *Manager) cachedProfile(ctx context.Context, did string) *models.Profile {
	data, err := m.cache.Get(ctx, localstore.ProfileKeyPrefix+did)
	if err != nil || data == nil {
		return nil
	}
	var p models.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil
	}
	return &p
}
