// Package extract reads structured data out of page HTML snapshots.
// Engines use it where a live selector is the wrong tool: meta tags,
// marker text and bulk link harvesting.
package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"social_automation/domain/entities"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Snapshot is a parsed page document
type Snapshot struct {
	doc  *goquery.Document
	root *html.Node
	base *url.URL
}

// Parse - parses an HTML snapshot; pageURL resolves relative links
func Parse(pageURL, content string) (*Snapshot, error) {
	root, err := htmlquery.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	base, _ := url.Parse(pageURL)
	return &Snapshot{doc: goquery.NewDocumentFromNode(root), root: root, base: base}, nil
}

// Meta - content of <meta name=...> or <meta property=...>
func (s *Snapshot) Meta(key string) string {
	var out string
	s.doc.Find("meta").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if sel.AttrOr("property", "") == key || sel.AttrOr("name", "") == key {
			out = strings.TrimSpace(sel.AttrOr("content", ""))
			return out == ""
		}
		return true
	})
	return out
}

// OpenGraph - og:* tags without the prefix
func (s *Snapshot) OpenGraph() map[string]string {
	og := make(map[string]string)
	s.doc.Find("meta[property^='og:']").Each(func(i int, sel *goquery.Selection) {
		property := sel.AttrOr("property", "")
		content := sel.AttrOr("content", "")
		if property != "" && content != "" {
			og[strings.TrimPrefix(property, "og:")] = content
		}
	})
	return og
}

// Description - og:description, falling back to the description meta tag
func (s *Snapshot) Description() string {
	if d := s.Meta("og:description"); d != "" {
		return d
	}
	return s.Meta("description")
}

// Title - document title
func (s *Snapshot) Title() string {
	return strings.TrimSpace(s.doc.Find("title").First().Text())
}

// Text - visible body text with whitespace collapsed
func (s *Snapshot) Text() string {
	body := s.doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	return strings.Join(strings.Fields(body.Text()), " ")
}

// ContainsAny - first marker found in the body text, case-insensitive
func (s *Snapshot) ContainsAny(markers []string) (string, bool) {
	if len(markers) == 0 {
		return "", false
	}
	text := strings.ToLower(s.Text())
	for _, m := range markers {
		needle := strings.ToLower(strings.Join(strings.Fields(html.UnescapeString(m)), " "))
		if needle != "" && strings.Contains(text, needle) {
			return m, true
		}
	}
	return "", false
}

// Links - absolute hrefs matching pattern, deduplicated in document order
func (s *Snapshot) Links(pattern *regexp.Regexp) []string {
	seen := make(map[string]bool)
	var out []string
	s.doc.Find("a[href]").Each(func(i int, sel *goquery.Selection) {
		href := s.resolve(sel.AttrOr("href", ""))
		if href == "" || seen[href] {
			return
		}
		if pattern != nil && !pattern.MatchString(href) {
			return
		}
		seen[href] = true
		out = append(out, href)
	})
	return out
}

// XPathText - text of the first node matching expr
func (s *Snapshot) XPathText(expr string) (string, error) {
	node, err := htmlquery.Query(s.root, expr)
	if err != nil {
		return "", fmt.Errorf("xpath query failed: %w", err)
	}
	if node == nil {
		return "", nil
	}
	return strings.TrimSpace(htmlquery.InnerText(node)), nil
}

// XPathAttr - attribute of every node matching expr
func (s *Snapshot) XPathAttr(expr, attr string) ([]string, error) {
	nodes, err := htmlquery.QueryAll(s.root, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath query failed: %w", err)
	}
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if v := htmlquery.SelectAttr(n, attr); v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

// Count - number of nodes a locator strategy matches in the snapshot
func (s *Snapshot) Count(strategy entities.Strategy) (int, error) {
	if css, ok := strategy.CSS(); ok {
		sel, err := cascadia.Compile(css)
		if err != nil {
			return 0, fmt.Errorf("css %q: %w", css, err)
		}
		return s.doc.FindMatcher(sel).Length(), nil
	}
	if expr, ok := strategy.XPath(); ok {
		nodes, err := htmlquery.QueryAll(s.root, expr)
		if err != nil {
			return 0, fmt.Errorf("xpath %q: %w", expr, err)
		}
		return len(nodes), nil
	}
	return 0, fmt.Errorf("unsupported locator kind %q", strategy.Kind)
}

func (s *Snapshot) resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if s.base != nil {
		u = s.base.ResolveReference(u)
	}
	u.Fragment = ""
	return u.String()
}

var countPattern = regexp.MustCompile(`(?i)([\d.,]+\s*[KMB]?)\s+(followers|following|posts|likes|connections)`)

// ProfileCounts - display counts from a profile description such as
// "1,234 Followers, 56 Following, 78 Posts - See Instagram photos..."
// Values are kept verbatim so abbreviations like 1.2M survive.
func ProfileCounts(description string) map[string]string {
	out := make(map[string]string)
	for _, m := range countPattern.FindAllStringSubmatch(description, -1) {
		key := strings.ToLower(m[2])
		if _, ok := out[key]; !ok {
			out[key] = strings.TrimSpace(m[1])
		}
	}
	return out
}

// AuthorFromTitle - "Name (@handle) • Instagram photos" → "Name"
func AuthorFromTitle(title string) string {
	if i := strings.IndexAny(title, "(•|"); i > 0 {
		title = title[:i]
	}
	return strings.TrimSpace(title)
}
