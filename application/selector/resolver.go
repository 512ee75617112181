package selector

import (
	"context"
	"fmt"
	"strings"

	"social_automation/domain/entities"
	"social_automation/domain/interfaces"

	"github.com/sirupsen/logrus"
)

// Match is the element accepted for a target and the strategy that found it
type Match struct {
	Element  interfaces.Element
	Strategy entities.Strategy
	// Index is the zero-based position of Strategy in the target's list
	Index int
}

// ResolveError reports that every strategy for a target was exhausted
type ResolveError struct {
	Platform entities.Platform
	Target   string
	Tried    []string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("no strategy matched %s target %q (tried %s)", e.Platform, e.Target, strings.Join(e.Tried, "; "))
}

// OperationError - maps to UnknownUIStateError with the tried list attached
func (e *ResolveError) OperationError() *entities.OperationError {
	opErr := entities.UnknownUI(e.Target, e.Tried)
	opErr.Err = e
	return opErr
}

// Resolver walks a target's ordered strategy list. It only observes the
// page: it never clicks, types or retries.
type Resolver struct {
	platform entities.Platform
	recorder interfaces.Recorder
	logger   *logrus.Logger
}

// NewResolver - creates a resolver for one platform
func NewResolver(platform entities.Platform, recorder interfaces.Recorder, logger *logrus.Logger) *Resolver {
	if recorder == nil {
		recorder = interfaces.NopRecorder{}
	}
	return &Resolver{platform: platform, recorder: recorder, logger: logger}
}

// Resolve - returns the first element that exists, is visible and, for
// clickable targets, is enabled
func (r *Resolver) Resolve(ctx context.Context, page interfaces.Page, target entities.Target) (Match, error) {
	tried := make([]string, 0, len(target.Strategies))

	for i, strategy := range target.Strategies {
		if err := ctx.Err(); err != nil {
			return Match{}, err
		}

		tried = append(tried, strategy.String())

		elements, err := page.Query(ctx, strategy)
		if err != nil {
			r.logger.WithFields(logrus.Fields{
				"platform": r.platform,
				"target":   target.Name,
				"strategy": strategy.String(),
			}).Debugf("query failed: %v", err)
			continue
		}

		for _, el := range elements {
			ok, err := accept(ctx, el, target)
			if err != nil || !ok {
				continue
			}

			r.recorder.SelectorResolved(r.platform, target.Name, i)
			r.logger.WithFields(logrus.Fields{
				"platform": r.platform,
				"target":   target.Name,
				"strategy": strategy.String(),
				"index":    i + 1,
			}).Debug("selector resolved")

			return Match{Element: el, Strategy: strategy, Index: i}, nil
		}
	}

	r.recorder.SelectorExhausted(r.platform, target.Name)
	r.logger.WithFields(logrus.Fields{
		"platform": r.platform,
		"target":   target.Name,
		"tried":    tried,
	}).Warn("selector strategies exhausted")

	return Match{}, &ResolveError{Platform: r.platform, Target: target.Name, Tried: tried}
}

// Peek - like Resolve but reports absence as false instead of an error
func (r *Resolver) Peek(ctx context.Context, page interfaces.Page, target entities.Target) (Match, bool) {
	for i, strategy := range target.Strategies {
		if ctx.Err() != nil {
			return Match{}, false
		}
		elements, err := page.Query(ctx, strategy)
		if err != nil {
			continue
		}
		for _, el := range elements {
			if ok, err := accept(ctx, el, target); err == nil && ok {
				return Match{Element: el, Strategy: strategy, Index: i}, true
			}
		}
	}
	return Match{}, false
}

// All - returns every visible element matched by the first strategy that
// matches anything, preserving document order
func (r *Resolver) All(ctx context.Context, page interfaces.Page, target entities.Target) ([]interfaces.Element, entities.Strategy, error) {
	tried := make([]string, 0, len(target.Strategies))

	for _, strategy := range target.Strategies {
		if err := ctx.Err(); err != nil {
			return nil, entities.Strategy{}, err
		}
		tried = append(tried, strategy.String())

		elements, err := page.Query(ctx, strategy)
		if err != nil {
			continue
		}

		var visible []interfaces.Element
		for _, el := range elements {
			if ok, err := accept(ctx, el, target); err == nil && ok {
				visible = append(visible, el)
			}
		}
		if len(visible) > 0 {
			return visible, strategy, nil
		}
	}

	return nil, entities.Strategy{}, &ResolveError{Platform: r.platform, Target: target.Name, Tried: tried}
}

func accept(ctx context.Context, el interfaces.Element, target entities.Target) (bool, error) {
	if !target.Hidden {
		visible, err := el.IsVisible(ctx)
		if err != nil || !visible {
			return false, err
		}
	}
	if target.Clickable {
		enabled, err := el.IsEnabled(ctx)
		if err != nil || !enabled {
			return false, err
		}
	}
	return true, nil
}
