package engines

import (
	"context"
	"errors"
	"net/url"

	"social_automation/application/selector"
	"social_automation/domain/entities"

	"github.com/sirupsen/logrus"
)

const (
	defaultScrollStep = 1500
	defaultMaxScrolls = 5

	// consecutive scrolls without a new reference before giving up
	idleRounds = 2
)

// Collect - gathers up to max content references matched by name in page
// order, scrolling for more. Items up to and including cursor are skipped
// so a caller can resume a listing where the previous page ended.
func (f *Flow) Collect(ctx context.Context, name string, max int, cursor string) (entities.ListObservation, error) {
	out := entities.ListObservation{Source: f.page.URL()}

	target, err := f.cfg.Target(name)
	if err != nil {
		opErr := entities.UnknownUI(name, nil)
		opErr.Err = err
		return out, opErr.WithStage(entities.StageTargetLocated)
	}

	if _, ok := f.WaitFor(ctx, name, f.cfg.Timeouts.Verify); !ok {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		f.logger.WithField("target", name).Info("no content on page")
		out.Exhausted = true
		f.Observed(ctx)
		return out, nil
	}

	step := f.cfg.Limits.ScrollStep
	if step <= 0 {
		step = defaultScrollStep
	}
	maxScrolls := f.cfg.Limits.MaxScrolls
	if maxScrolls <= 0 {
		maxScrolls = defaultMaxScrolls
	}

	seen := make(map[string]bool)
	passed := cursor == ""
	idle := 0

	for {
		elements, strategy, err := f.resolver.All(ctx, f.page, target)
		if err != nil {
			var rerr *selector.ResolveError
			if !errors.As(err, &rerr) {
				return out, err
			}
		} else {
			f.trace.Strategy(name, strategy.String())
			f.mark(ctx, entities.StageTargetLocated)
		}

		fresh := 0
		for _, el := range elements {
			href, err := el.Attribute(ctx, "href")
			if err != nil || href == "" {
				continue
			}
			link := f.absolute(href)
			id := entities.ContentIDFromURL(link)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			fresh++

			if !passed {
				passed = id == cursor
				continue
			}

			text, _ := el.Text(ctx)
			out.Items = append(out.Items, entities.ContentObservation{ID: id, URL: link, Text: collapse(text)})
			if len(out.Items) >= max {
				break
			}
		}

		if len(out.Items) >= max {
			break
		}
		if fresh == 0 {
			idle++
		} else {
			idle = 0
		}
		if idle >= idleRounds || out.Scrolls >= maxScrolls {
			out.Exhausted = true
			break
		}

		if err := f.page.Scroll(ctx, step); err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			return out, entities.Transient(err, "scroll failed").WithStage(entities.StageActionPerformed)
		}
		out.Scrolls++
		if err := f.settle(ctx); err != nil {
			return out, err
		}
	}

	f.logger.WithFields(logrus.Fields{
		"items":   len(out.Items),
		"scrolls": out.Scrolls,
	}).Debug("collection finished")
	f.mark(ctx, entities.StageStateVerified)
	return out, nil
}

// Links - absolute hrefs of every element name matches right now
func (f *Flow) Links(ctx context.Context, name string) []string {
	target, err := f.cfg.Target(name)
	if err != nil {
		return nil
	}
	elements, _, err := f.resolver.All(ctx, f.page, target)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(elements))
	for _, el := range elements {
		if href, err := el.Attribute(ctx, "href"); err == nil && href != "" {
			out = append(out, f.absolute(href))
		}
	}
	return out
}

// absolute - resolves href against the platform base and drops query and
// fragment so the same item always yields the same reference
func (f *Flow) absolute(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base, err := url.Parse(f.cfg.BaseURL); err == nil {
		ref = base.ResolveReference(ref)
	}
	ref.RawQuery = ""
	ref.Fragment = ""
	return ref.String()
}
