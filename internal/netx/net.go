// Package netx has small HTTP helpers for talking to peer relays outside the
// replication protocol itself.
package netx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ProbePeer checks whether a peer relay is reachable over HTTP. Relay
// addresses use websocket schemes; the probe swaps them for their HTTP
// counterparts. Any HTTP response below 500 counts as reachable: relays
// answer their root path with all sorts of statuses.
func ProbePeer(ctx context.Context, peerURL string) error {
	url := httpURL(peerURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("probe failed: %s", resp.Status)
	}
	return nil
}

// httpURL maps ws/wss relay addresses onto http/https.
func httpURL(peerURL string) string {
	switch {
	case strings.HasPrefix(peerURL, "wss://"):
		return "https://" + strings.TrimPrefix(peerURL, "wss://")
	case strings.HasPrefix(peerURL, "ws://"):
		return "http://" + strings.TrimPrefix(peerURL, "ws://")
	default:
		return peerURL
	}
}
