// Package peers keeps the replicated store's peer list populated with live,
// reachable addresses. Discovery is cooperative: every client publishes its
// own presence in a shared registry, merges what others published, and
// garbage-collects entries past their TTL, with no single owner.
package peers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/annotify/annotify/internal/localstore"
	"github.com/annotify/annotify/internal/logging"
	"github.com/annotify/annotify/internal/models"
	"github.com/annotify/annotify/internal/retry"
	"github.com/annotify/annotify/internal/store"
	"github.com/annotify/annotify/internal/timex"
)

const (
	registryNode   = "known_peers"
	keyInitialized = "peers_initialized"
)

// Options bundles the tuning knobs; values come from config.
type Options struct {
	InitialPeers       []string
	FallbackPeers      []string
	TTL                time.Duration
	ReRegisterInterval time.Duration
	ConnectionCheck    time.Duration
	FetchAttempts      int
	FetchBaseDelay     time.Duration
	BreakerThreshold   int
	BreakerCooldown    time.Duration
}

// Manager maintains the working peer set and the shared registry.
type Manager struct {
	store   store.Store
	cache   localstore.KV
	log     logging.Logger
	clock   timex.Clock
	opts    Options
	breaker *retry.Breaker

	mu           sync.Mutex
	currentPeers map[string]time.Time // url -> last seen
	clientID     string
}

func NewManager(s store.Store, cache localstore.KV, log logging.Logger, clock timex.Clock, opts Options) *Manager {
	m := &Manager{
		store:        s,
		cache:        cache,
		log:          log.With("component", "peers"),
		clock:        clock,
		opts:         opts,
		breaker:      retry.NewBreaker(opts.BreakerThreshold, opts.BreakerCooldown, clock),
		currentPeers: make(map[string]time.Time),
	}
	m.seed(append(opts.InitialPeers, opts.FallbackPeers...))
	return m
}

func (m *Manager) seed(urls []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	for _, u := range urls {
		if _, ok := m.currentPeers[u]; !ok {
			m.currentPeers[u] = now
		}
	}
}

// CurrentPeers returns the working peer set, sorted for stable output.
func (m *Manager) CurrentPeers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.currentPeers))
	for u := range m.currentPeers {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// ClientID returns this client's stable registry identifier, generating and
// persisting it on first use.
func (m *Manager) ClientID(ctx context.Context) (string, error) {
	m.mu.Lock()
	cached := m.clientID
	m.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	v, err := m.cache.Get(ctx, localstore.KeyPeerClientID)
	if err != nil {
		return "", fmt.Errorf("reading peer client id: %w", err)
	}
	id := string(v)
	if id == "" {
		id = uuid.NewString()
		if err := m.cache.Set(ctx, localstore.KeyPeerClientID, []byte(id)); err != nil {
			return "", fmt.Errorf("persisting peer client id: %w", err)
		}
	}

	m.mu.Lock()
	m.clientID = id
	m.mu.Unlock()
	return id, nil
}

// FetchKnownPeers reads the shared registry with bounded exponential-backoff
// retries behind the circuit breaker. While the breaker is open the call
// short-circuits with an empty list and no network I/O.
func (m *Manager) FetchKnownPeers(ctx context.Context) ([]models.KnownPeer, error) {
	if !m.breaker.Allow() {
		return nil, nil
	}

	var fetched []models.KnownPeer
	err := retry.Exponential(ctx, m.opts.FetchAttempts, m.opts.FetchBaseDelay, func(ctx context.Context) error {
		children, err := m.store.Children(ctx, []string{registryNode})
		if err != nil {
			return err
		}
		fetched = fetched[:0]
		for id, fields := range children {
			if fields == nil {
				continue // tombstoned registration
			}
			p, reason := models.ParseKnownPeer(fields)
			if reason != "" {
				m.log.Warn(ctx, "dropping malformed peer entry", "id", id, "reason", reason)
				continue
			}
			fetched = append(fetched, p)
		}
		return nil
	})
	if err != nil {
		m.breaker.Failure()
		m.log.Warn(ctx, "known peers fetch failed", "error", err.Error())
		return nil, err
	}

	m.breaker.Success()
	return fetched, nil
}

// DiscoverPeers merges fresh registry entries into the working set, prunes
// stale registry entries, registers our own presence, and pushes the
// resulting peer list to the store.
func (m *Manager) DiscoverPeers(ctx context.Context) error {
	known, err := m.FetchKnownPeers(ctx)
	if err != nil {
		return err
	}

	now := m.clock.Now()
	for _, p := range known {
		if p.Fresh(now, m.opts.TTL) {
			m.mu.Lock()
			m.currentPeers[p.URL] = time.UnixMilli(p.Timestamp)
			m.mu.Unlock()
		} else {
			m.pruneStale(ctx, p)
		}
	}

	if err := m.Register(ctx); err != nil {
		m.log.Warn(ctx, "peer registration failed", "error", err.Error())
	}

	m.store.SetPeers(m.CurrentPeers())
	if err := m.cache.Set(ctx, keyInitialized, []byte("1")); err != nil {
		m.log.Warn(ctx, "marking peers initialized failed", "error", err.Error())
	}
	return nil
}

// pruneStale deletes an expired registry entry. Whoever notices the stale
// entry removes it; failures are tolerable because another client will try.
func (m *Manager) pruneStale(ctx context.Context, p models.KnownPeer) {
	id := m.registryKeyFor(ctx, p)
	if id == "" {
		return
	}
	if err := m.store.PutNull(ctx, []string{registryNode, id}); err != nil {
		m.log.Warn(ctx, "pruning stale peer failed", "url", p.URL, "error", err.Error())
	}
}

// registryKeyFor finds the registry child holding this peer record.
func (m *Manager) registryKeyFor(ctx context.Context, p models.KnownPeer) string {
	children, err := m.store.Children(ctx, []string{registryNode})
	if err != nil {
		return ""
	}
	for id, fields := range children {
		if fields == nil {
			continue
		}
		if url, _ := fields["url"].(string); url == p.URL {
			return id
		}
	}
	return ""
}

// Register publishes this client's presence under its stable id.
func (m *Manager) Register(ctx context.Context) error {
	id, err := m.ClientID(ctx)
	if err != nil {
		return err
	}
	self := models.KnownPeer{
		URL:       m.selfURL(),
		Timestamp: m.clock.Now().UnixMilli(),
	}
	return m.store.Put(ctx, []string{registryNode, id}, self.Fields())
}

// selfURL is the address other peers can reach us at. Without a listening
// relay of our own we republish our primary upstream peer, which keeps the
// registry warm for bootstrap.
func (m *Manager) selfURL() string {
	if len(m.opts.InitialPeers) > 0 {
		return m.opts.InitialPeers[0]
	}
	if len(m.opts.FallbackPeers) > 0 {
		return m.opts.FallbackPeers[0]
	}
	return ""
}

// CheckConnection is one round of the periodic health check: when the link
// is down but we were previously initialized, revert to bootstrap+fallback
// peers and retry discovery, guarding against a permanent lock-out after a
// network blip.
func (m *Manager) CheckConnection(ctx context.Context) {
	if m.store.Connected() {
		return
	}
	initialized, err := m.cache.Get(ctx, keyInitialized)
	if err != nil || initialized == nil {
		return
	}

	m.log.Warn(ctx, "store connection down, reverting to bootstrap peers")
	m.mu.Lock()
	m.currentPeers = make(map[string]time.Time)
	m.mu.Unlock()
	m.seed(append(m.opts.InitialPeers, m.opts.FallbackPeers...))
	m.store.SetPeers(m.CurrentPeers())

	if err := m.DiscoverPeers(ctx); err != nil {
		m.log.Warn(ctx, "rediscovery after disconnect failed", "error", err.Error())
	}
}

// PeerStatus reports the best currently-known per-peer state. This is
// bookkeeping, not a live ping.
func (m *Manager) PeerStatus() []models.PeerStatus {
	connected := m.store.Connected()

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PeerStatus, 0, len(m.currentPeers))
	for url, lastSeen := range m.currentPeers {
		out = append(out, models.PeerStatus{URL: url, Connected: connected, LastSeen: lastSeen})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Run drives periodic re-registration/discovery and connection checks until
// ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	registerTicker := time.NewTicker(m.opts.ReRegisterInterval)
	defer registerTicker.Stop()
	checkTicker := time.NewTicker(m.opts.ConnectionCheck)
	defer checkTicker.Stop()

	if err := m.DiscoverPeers(ctx); err != nil {
		m.log.Warn(ctx, "initial peer discovery failed", "error", err.Error())
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-registerTicker.C:
			if err := m.DiscoverPeers(ctx); err != nil {
				m.log.Warn(ctx, "peer discovery failed", "error", err.Error())
			}
		case <-checkTicker.C:
			m.CheckConnection(ctx)
		}
	}
}
