package config

import (
	"encoding/json"
	"os"

	"github.com/annotify/annotify/internal/flagx"
	"github.com/annotify/annotify/internal/timex"
)

// JsonConfig is a DTO used only for JSON unmarshalling. timex.Duration lets
// intervals be written either as strings like "2s" or as integer
// nanoseconds.
type JsonConfig struct {
	LocalDBPath         string         `json:"local_db_path"`
	InitialPeers        []string       `json:"initial_peers"`
	FallbackPeers       []string       `json:"fallback_peers"`
	ScanWindow          timex.Duration `json:"scan_window"`
	ScanRetries         *int           `json:"scan_retries"`
	CommentScanWindow   timex.Duration `json:"comment_scan_window"`
	DebounceWindow      timex.Duration `json:"debounce_window"`
	ProfileRetries      *int           `json:"profile_retries"`
	ProfileRetryDelay   timex.Duration `json:"profile_retry_delay"`
	PeerTTL             timex.Duration `json:"peer_ttl"`
	ReRegisterInterval  timex.Duration `json:"re_register_interval"`
	ConnectionCheck     timex.Duration `json:"connection_check"`
	PeerFetchAttempts   *int           `json:"peer_fetch_attempts"`
	PeerFetchBaseDelay  timex.Duration `json:"peer_fetch_base_delay"`
	BreakerThreshold    *int           `json:"breaker_threshold"`
	BreakerCooldown     timex.Duration `json:"breaker_cooldown"`
	LogThrottleInterval timex.Duration `json:"log_throttle_interval"`
	CleanupInterval     timex.Duration `json:"cleanup_interval"`
}

// parseJson overlays cfg with values from the file named by -c/-config.
// Absent file path means no overlay. Read or unmarshal errors panic; the
// caller may recover if a bad config file should not be fatal.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.LocalDBPath != "" {
		cfg.LocalDBPath = jc.LocalDBPath
	}
	if len(jc.InitialPeers) > 0 {
		cfg.InitialPeers = jc.InitialPeers
	}
	if len(jc.FallbackPeers) > 0 {
		cfg.FallbackPeers = jc.FallbackPeers
	}
	if jc.ScanWindow.Duration > 0 {
		cfg.ScanWindow = jc.ScanWindow.Duration
	}
	if jc.ScanRetries != nil {
		cfg.ScanRetries = *jc.ScanRetries
	}
	if jc.CommentScanWindow.Duration > 0 {
		cfg.CommentScanWindow = jc.CommentScanWindow.Duration
	}
	if jc.DebounceWindow.Duration > 0 {
		cfg.DebounceWindow = jc.DebounceWindow.Duration
	}
	if jc.ProfileRetries != nil {
		cfg.ProfileRetries = *jc.ProfileRetries
	}
	if jc.ProfileRetryDelay.Duration > 0 {
		cfg.ProfileRetryDelay = jc.ProfileRetryDelay.Duration
	}
	if jc.PeerTTL.Duration > 0 {
		cfg.PeerTTL = jc.PeerTTL.Duration
	}
	if jc.ReRegisterInterval.Duration > 0 {
		cfg.ReRegisterInterval = jc.ReRegisterInterval.Duration
	}
	if jc.ConnectionCheck.Duration > 0 {
		cfg.ConnectionCheck = jc.ConnectionCheck.Duration
	}
	if jc.PeerFetchAttempts != nil {
		cfg.PeerFetchAttempts = *jc.PeerFetchAttempts
	}
	if jc.PeerFetchBaseDelay.Duration > 0 {
		cfg.PeerFetchBaseDelay = jc.PeerFetchBaseDelay.Duration
	}
	if jc.BreakerThreshold != nil {
		cfg.BreakerThreshold = *jc.BreakerThreshold
	}
	if jc.BreakerCooldown.Duration > 0 {
		cfg.BreakerCooldown = jc.BreakerCooldown.Duration
	}
	if jc.LogThrottleInterval.Duration > 0 {
		cfg.LogThrottleInterval = jc.LogThrottleInterval.Duration
	}
	if jc.CleanupInterval.Duration > 0 {
		cfg.CleanupInterval = jc.CleanupInterval.Duration
	}
}
