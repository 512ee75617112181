package entities

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// PlatformConfig is the versioned per-platform configuration: browser
// settings, auth strategy, limits and the selector catalog. UI drift is
// fixed by editing this data, never the engines.
type PlatformConfig struct {
	Version    string             `yaml:"version"`
	Platform   Platform           `yaml:"platform"`
	BaseURL    string             `yaml:"base_url"`
	Port       int                `yaml:"port"`
	Auth       AuthConfig         `yaml:"auth"`
	Browser    BrowserConfig      `yaml:"browser"`
	Timeouts   TimeoutConfig      `yaml:"timeouts"`
	Limits     LimitConfig        `yaml:"limits"`
	URLs       URLConfig          `yaml:"urls"`
	Markers    MarkerConfig       `yaml:"markers"`
	Operations []Operation        `yaml:"operations"`
	Targets    map[string]*Target `yaml:"targets"`
}

// AuthConfig - how the credential record is turned into a logged-in session
type AuthConfig struct {
	Strategy      AuthStrategy  `yaml:"strategy"`
	SessionCookie string        `yaml:"session_cookie"`
	CookieDomain  string        `yaml:"cookie_domain"`
	CookiePath    string        `yaml:"cookie_path"`
	// SettleDelay is waited before re-checking a suspected login wall
	SettleDelay   time.Duration `yaml:"settle_delay"`
}

// BrowserConfig - operation-invariant launch settings
type BrowserConfig struct {
	Viewport    ViewportConfig            `yaml:"viewport"`
	UserAgent   string                    `yaml:"user_agent"`
	Locale      string                    `yaml:"locale"`
	SlowMo      time.Duration             `yaml:"slow_mo"`
	Args        []string                  `yaml:"args"`
	DefaultMode BrowserMode               `yaml:"default_mode"`
	Modes       map[Operation]BrowserMode `yaml:"modes"`
}

// ViewportConfig - browser window size
type ViewportConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// TimeoutConfig - navigation wait and per-operation hard ceilings
type TimeoutConfig struct {
	Navigation time.Duration               `yaml:"navigation"`
	Default    time.Duration               `yaml:"default"`
	Operations map[Operation]time.Duration `yaml:"operations"`
	// Settle is the human-speed pause after clicks and typing
	Settle     time.Duration               `yaml:"settle"`
	// Verify bounds how long a post-action state check polls
	Verify     time.Duration               `yaml:"verify"`
}

// LimitConfig - input limits enforced before a session is opened
type LimitConfig struct {
	PostMaxLength    int  `yaml:"post_max_length"`
	CommentMaxLength int  `yaml:"comment_max_length"`
	MessageMaxLength int  `yaml:"message_max_length"`
	MediaRequired    bool `yaml:"media_required"`
	DMRequiresFollow bool `yaml:"dm_requires_follow"`
	DefaultResults   int  `yaml:"default_results"`
	MaxResults       int  `yaml:"max_results"`
	MaxScrolls       int  `yaml:"max_scrolls"`
	ScrollStep       int  `yaml:"scroll_step"`
}

// URLConfig - URL templates; {username}, {id} and {query} are substituted
type URLConfig struct {
	Home     string `yaml:"home"`
	Profile  string `yaml:"profile"`
	Content  string `yaml:"content"`
	Search   string `yaml:"search"`
	Compose  string `yaml:"compose"`
	Messages string `yaml:"messages"`
	// Self opens the signed-in account's own profile
	Self string `yaml:"self"`
}

// MarkerConfig - page states recognized without a selector match
type MarkerConfig struct {
	LoginURLs []string `yaml:"login_urls"`
	NotFound  []string `yaml:"not_found"`
	Blocked   []string `yaml:"blocked"`
}

// Supports - reports whether the platform implements op
func (c *PlatformConfig) Supports(op Operation) bool {
	for _, o := range c.Operations {
		if o == op {
			return true
		}
	}
	return false
}

// Target - returns the named selector target
func (c *PlatformConfig) Target(name string) (Target, error) {
	t, ok := c.Targets[name]
	if !ok || t == nil {
		return Target{}, fmt.Errorf("%s catalog %s has no target %q", c.Platform, c.Version, name)
	}
	out := *t
	out.Name = name
	return out, nil
}

// HasTarget - reports whether the catalog defines name
func (c *PlatformConfig) HasTarget(name string) bool {
	t, ok := c.Targets[name]
	return ok && t != nil && len(t.Strategies) > 0
}

// ModeFor - visible or headless for op
func (c *PlatformConfig) ModeFor(op Operation) BrowserMode {
	if m, ok := c.Browser.Modes[op]; ok && m != "" {
		return m
	}
	if c.Browser.DefaultMode != "" {
		return c.Browser.DefaultMode
	}
	return ModeVisible
}

// TimeoutFor - hard ceiling for op
func (c *PlatformConfig) TimeoutFor(op Operation) time.Duration {
	if d, ok := c.Timeouts.Operations[op]; ok && d > 0 {
		return d
	}
	if c.Timeouts.Default > 0 {
		return c.Timeouts.Default
	}
	return 60 * time.Second
}

// ProfileURL - canonical profile URL for username
func (c *PlatformConfig) ProfileURL(username string) string {
	return expand(c.URLs.Profile, "username", url.PathEscape(username))
}

// ContentURL - canonical content URL for id; full URLs pass through
func (c *PlatformConfig) ContentURL(id string) string {
	if strings.HasPrefix(id, "http://") || strings.HasPrefix(id, "https://") {
		return id
	}
	return expand(c.URLs.Content, "id", url.PathEscape(id))
}

// MessagesURL - direct conversation URL, empty when the platform opens
// conversations from the profile page
func (c *PlatformConfig) MessagesURL(username string) string {
	if c.URLs.Messages == "" {
		return ""
	}
	return expand(c.URLs.Messages, "username", url.PathEscape(username))
}

// SearchURL - tag/keyword search URL for query
func (c *PlatformConfig) SearchURL(query string) string {
	q := strings.TrimPrefix(strings.TrimSpace(query), "#")
	if strings.Contains(c.URLs.Search, "?") {
		q = url.QueryEscape(q)
	} else {
		q = url.PathEscape(q)
	}
	return expand(c.URLs.Search, "query", q)
}

func expand(tmpl, key, value string) string {
	return strings.ReplaceAll(tmpl, "{"+key+"}", value)
}
