// Package tabs abstracts the optional tab/screenshot capability the host
// environment may provide. Screenshot capture is strictly best-effort:
// failures are logged by callers and never fail a save.
package tabs

import (
	"context"
	"fmt"
	"strings"
)

// Tab identifies a browser tab and the page it shows.
type Tab struct {
	ID  int
	URL string
}

// Capturer is the capability the annotation manager invokes when a caller
// asks for a screenshot alongside a save.
type Capturer interface {
	// ActiveOrGivenTab resolves tabID, or the active tab when tabID is 0.
	ActiveOrGivenTab(ctx context.Context, tabID int) (Tab, error)
	// ActivateTab brings a tab to the foreground before capture.
	ActivateTab(ctx context.Context, tabID int) error
	// CaptureVisibleTab returns encoded image data for the visible tab.
	CaptureVisibleTab(ctx context.Context) (string, error)
}

// restrictedSchemes are browser-internal pages that cannot be captured.
var restrictedSchemes = []string{"chrome://", "chrome-extension://", "about:", "edge://", "devtools://"}

// Restricted reports whether a URL names a page the host refuses to capture.
// Callers skip the screenshot gracefully instead of attempting and failing.
func Restricted(url string) bool {
	for _, scheme := range restrictedSchemes {
		if strings.HasPrefix(url, scheme) {
			return true
		}
	}
	return false
}

// Capture resolves the tab, checks the scheme, activates and captures.
// Returns ("", nil) for restricted pages.
func Capture(ctx context.Context, c Capturer, tabID int) (string, error) {
	tab, err := c.ActiveOrGivenTab(ctx, tabID)
	if err != nil {
		return "", fmt.Errorf("resolving tab: %w", err)
	}
	if Restricted(tab.URL) {
		return "", nil
	}
	if err := c.ActivateTab(ctx, tab.ID); err != nil {
		return "", fmt.Errorf("activating tab %d: %w", tab.ID, err)
	}
	img, err := c.CaptureVisibleTab(ctx)
	if err != nil {
		return "", fmt.Errorf("capturing tab %d: %w", tab.ID, err)
	}
	return img, nil
}
