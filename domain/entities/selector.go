package entities

import (
	"fmt"
	"strings"
)

// LocatorKind tags how a strategy value is interpreted
type LocatorKind string

const (
	LocatorCSS    LocatorKind = "css"
	LocatorXPath  LocatorKind = "xpath"
	LocatorText   LocatorKind = "text"
	LocatorTestID LocatorKind = "testid"
	LocatorAria   LocatorKind = "aria"
	LocatorRole   LocatorKind = "role"
)

// Strategy is one concrete way to locate a logical UI element
type Strategy struct {
	Kind  LocatorKind `yaml:"kind" json:"kind"`
	Value string      `yaml:"value" json:"value"`
	// Tag narrows text strategies to an element name (button, span, ...)
	Tag string `yaml:"tag,omitempty" json:"tag,omitempty"`
}

func (s Strategy) String() string {
	if s.Tag != "" {
		return fmt.Sprintf("%s:%s=%s", s.Kind, s.Tag, s.Value)
	}
	return fmt.Sprintf("%s=%s", s.Kind, s.Value)
}

// CSS - CSS equivalent of the strategy, false when the kind has none
func (s Strategy) CSS() (string, bool) {
	switch s.Kind {
	case LocatorCSS:
		return s.Value, true
	case LocatorTestID:
		return fmt.Sprintf(`[data-testid=%s]`, cssString(s.Value)), true
	case LocatorAria:
		return fmt.Sprintf(`[aria-label=%s]`, cssString(s.Value)), true
	case LocatorRole:
		return fmt.Sprintf(`[role=%s]`, cssString(s.Value)), true
	}
	return "", false
}

// XPath - XPath equivalent for xpath and text strategies. Text matches the
// whole normalized text of the element, so "Follow" never matches
// "Following".
func (s Strategy) XPath() (string, bool) {
	switch s.Kind {
	case LocatorXPath:
		return s.Value, true
	case LocatorText:
		tag := s.Tag
		if tag == "" {
			tag = "*"
		}
		return fmt.Sprintf(`//%s[normalize-space(.)=%s]`, tag, xpathLiteral(s.Value)), true
	}
	return "", false
}

func cssString(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}

// xpathLiteral quotes v for XPath 1.0, which has no escape sequences
func xpathLiteral(v string) string {
	if !strings.Contains(v, `"`) {
		return `"` + v + `"`
	}
	if !strings.Contains(v, `'`) {
		return `'` + v + `'`
	}
	parts := strings.Split(v, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// Target is a logical UI element with its ordered strategy list
type Target struct {
	Name       string     `yaml:"-" json:"name"`
	Clickable  bool       `yaml:"clickable" json:"clickable"`
	// Hidden accepts matches that are not rendered, e.g. file inputs
	Hidden     bool       `yaml:"hidden" json:"hidden,omitempty"`
	Strategies []Strategy `yaml:"strategies" json:"strategies"`
}
