// Package featureflags evaluates on/off and percentage-rollout flags read
// from a single config string such as
//
//	media_thumbnails=on,search_users_regex=25%,live_feed_public=off
package featureflags

import (
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

const (
	// SearchUsersRegex enables the user half of /api/search.
	SearchUsersRegex = "search_users_regex"
	// MediaThumbnails enables webp thumbnails for image uploads.
	MediaThumbnails = "media_thumbnails"
	// LiveFeedPublic serves the live feed to anonymous callers.
	LiveFeedPublic = "live_feed_public"
)

// rule is a parsed flag value. percent is 0..100; anything unparseable
// becomes 0 so a typo disables rather than enables.
type rule struct {
	raw     string
	percent int
}

func parseRule(v string) rule {
	r := rule{raw: v}
	switch v {
	case "on", "true", "1":
		r.percent = 100
		return r
	case "off", "false", "0":
		return r
	}
	if n, ok := strings.CutSuffix(v, "%"); ok {
		if p, err := strconv.Atoi(n); err == nil {
			r.percent = min(max(p, 0), 100)
		}
	}
	return r
}

// Manager is immutable after NewManager and safe for concurrent use. A nil
// Manager reports every flag as off.
type Manager struct {
	rules map[string]rule
}

// NewManager parses comma-separated name=value pairs. Malformed pairs are
// skipped; names and values are case-insensitive.
func NewManager(raw string) *Manager {
	m := &Manager{rules: make(map[string]rule)}
	for _, pair := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		name, value = normalize(name), normalize(value)
		if name == "" || value == "" {
			continue
		}
		m.rules[name] = parseRule(value)
	}
	return m
}

// Enabled reports whether name is on for userID. Partial rollouts hash the
// user into a stable bucket and are never on for an anonymous caller.
func (m *Manager) Enabled(name, userID string) bool {
	if m == nil {
		return false
	}
	name = normalize(name)
	r, ok := m.rules[name]
	switch {
	case !ok || r.percent == 0:
		return false
	case r.percent == 100:
		return true
	case userID == "":
		return false
	}
	return bucket(name, userID) < r.percent
}

// Gate binds name to m, for services that take a per-user toggle.
func (m *Manager) Gate(name string) func(userID string) bool {
	return func(userID string) bool { return m.Enabled(name, userID) }
}

// Raw returns the configured values as written.
func (m *Manager) Raw() map[string]string {
	out := map[string]string{}
	if m == nil {
		return out
	}
	for name, r := range m.rules {
		out[name] = r.raw
	}
	return out
}

func (m *Manager) Names() []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m.rules))
	for name := range m.rules {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Snapshot evaluates every configured flag for one user.
func (m *Manager) Snapshot(userID string) map[string]bool {
	out := map[string]bool{}
	for _, name := range m.Names() {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func bucket(name, userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name + ":" + userID))
	return int(h.Sum32() % 100)
}
