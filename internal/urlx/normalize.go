// Package urlx implements the URL normalization every storage component
// shares. The normalized form is the sharding and storage key for all
// annotation data, so clients must agree on it byte for byte.
package urlx

import (
	"net/url"
	"strings"
)

// Query parameters that never influence page identity.
var strippedParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"ref":     {},
	"r":       {},
	"session": {},
	"lang":    {},
	"locale":  {},
}

// Normalize returns the canonical form of a page URL:
//
//   - a two-letter locale prefix as the first path segment ("/en/…") is removed
//   - tracking parameters (utm_*, fbclid, gclid, ref, session) and locale
//     parameters (lang, locale) are removed; all other parameters keep their
//     original order
//   - trailing slashes are stripped, except the bare root which collapses to
//     scheme://host
//
// Normalize never fails: input that does not parse as an absolute URL is
// returned unchanged.
func Normalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}

	u.Path = stripLocalePrefix(u.Path)
	u.RawQuery = filterQuery(u.RawQuery)
	u.Fragment = ""
	u.RawFragment = ""

	// Trailing slashes collapse; root becomes scheme://host.
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""

	return u.String()
}

// stripLocalePrefix removes leading two-letter path segments such as /en or
// /fr. Stripping runs to a fixpoint so the transform stays idempotent.
func stripLocalePrefix(path string) string {
	for {
		next := stripOneLocale(path)
		if next == path {
			return path
		}
		path = next
	}
}

func stripOneLocale(path string) string {
	if len(path) < 3 || path[0] != '/' {
		return path
	}
	seg := path[1:]
	rest := ""
	if i := strings.IndexByte(seg, '/'); i >= 0 {
		rest = seg[i:]
		seg = seg[:i]
	}
	if len(seg) == 2 && isAlpha(seg) {
		return rest
	}
	return path
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// filterQuery drops tracking and locale-only parameters while preserving the
// order of everything else. url.Values cannot be used here because it does
// not keep parameter order.
func filterQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	var kept []string
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key := pair
		if i := strings.IndexByte(pair, '='); i >= 0 {
			key = pair[:i]
		}
		key = strings.ToLower(key)
		if strings.HasPrefix(key, "utm_") {
			continue
		}
		if _, drop := strippedParams[key]; drop {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}
