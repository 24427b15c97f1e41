// Package config holds the runtime settings for the annotation data layer.
//
// Every empirically tuned wait window lives here rather than in code: the
// replicated store gives no bounded-replication-latency guarantee, so these
// values are a tunable waiting budget, not correctness constants.
package config

import "time"

// Config is assembled as defaults -> JSON file -> command-line flags, later
// sources overriding earlier ones.
type Config struct {
	// LocalDBPath is the SQLite file backing the local key/value cache.
	LocalDBPath string

	// InitialPeers seed the replication peer list; FallbackPeers are the
	// hard-coded safety net the list reverts to after connectivity loss.
	InitialPeers  []string
	FallbackPeers []string

	// ScanWindow bounds the initial annotation scan; ScanRetries re-runs the
	// scan when nothing new arrived. CommentScanWindow bounds each
	// per-annotation comment sub-scan.
	ScanWindow        time.Duration
	ScanRetries       int
	CommentScanWindow time.Duration

	// DebounceWindow suppresses duplicate live updates for the same record key.
	DebounceWindow time.Duration

	// ProfileRetries / ProfileRetryDelay bound profile and current-DID lookups.
	ProfileRetries    int
	ProfileRetryDelay time.Duration

	// Peer discovery tuning.
	PeerTTL             time.Duration
	ReRegisterInterval  time.Duration
	ConnectionCheck     time.Duration
	PeerFetchAttempts   int
	PeerFetchBaseDelay  time.Duration
	BreakerThreshold    int
	BreakerCooldown     time.Duration
	LogThrottleInterval time.Duration

	// CleanupInterval drives the marked-deleted -> tombstone sweep.
	CleanupInterval time.Duration
}

// LoadDefaults populates c with the tuned production values.
func (c *Config) LoadDefaults() {
	c.LocalDBPath = "annotify.db"
	c.InitialPeers = []string{
		"https://gun-manhattan.herokuapp.com/gun",
		"https://peer.wallie.io/gun",
	}
	c.FallbackPeers = []string{
		"https://gun-manhattan.herokuapp.com/gun",
	}
	c.ScanWindow = 2 * time.Second
	c.ScanRetries = 2
	c.CommentScanWindow = 500 * time.Millisecond
	c.DebounceWindow = 1500 * time.Millisecond
	c.ProfileRetries = 5
	c.ProfileRetryDelay = 2 * time.Second
	c.PeerTTL = 10 * time.Minute
	c.ReRegisterInterval = 5 * time.Minute
	c.ConnectionCheck = 30 * time.Second
	c.PeerFetchAttempts = 5
	c.PeerFetchBaseDelay = time.Second
	c.BreakerThreshold = 3
	c.BreakerCooldown = 30 * time.Second
	c.LogThrottleInterval = time.Minute
	c.CleanupInterval = time.Hour
}

// LoadConfig constructs a Config, applies defaults, then overlays JSON and
// flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
