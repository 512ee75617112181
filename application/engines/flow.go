package engines

import (
	"context"
	"errors"
	"strings"
	"time"

	"social_automation/application/selector"
	"social_automation/domain/entities"
	"social_automation/domain/interfaces"
	"social_automation/infrastructure/extract"
	"social_automation/infrastructure/telemetry"

	"github.com/sirupsen/logrus"
)

const (
	minPoll = 10 * time.Millisecond
	maxPoll = 250 * time.Millisecond

	// popups can stack (cookie banner, then notifications prompt)
	maxPopups = 2
)

// Flow drives one operation on one page: navigate, locate, act, verify.
// Every step advances the Trace and every failure is attributed to the
// stage that was being attempted.
type Flow struct {
	cfg      *entities.PlatformConfig
	page     interfaces.Page
	resolver *selector.Resolver
	trace    *Trace
	logger   *logrus.Entry
}

// NewFlow - creates a flow over an acquired page
func NewFlow(cfg *entities.PlatformConfig, page interfaces.Page, resolver *selector.Resolver, trace *Trace, logger *logrus.Entry) *Flow {
	if trace == nil {
		trace = NewTrace()
	}
	return &Flow{cfg: cfg, page: page, resolver: resolver, trace: trace, logger: logger}
}

func (f *Flow) Config() *entities.PlatformConfig {
	return f.cfg
}

func (f *Flow) Page() interfaces.Page {
	return f.page
}

func (f *Flow) Trace() *Trace {
	return f.trace
}

func (f *Flow) mark(ctx context.Context, stage entities.Stage) {
	if f.trace.Stage().Reached(stage) {
		return
	}
	f.trace.Mark(stage)
	telemetry.AddEvent(ctx, "stage", telemetry.AttrStage.String(string(stage)))
	f.logger.WithField("stage", stage).Debug("stage reached")
}

// Pause - waits d unless ctx ends first
func (f *Flow) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (f *Flow) settle(ctx context.Context) error {
	return f.Pause(ctx, f.cfg.Timeouts.Settle)
}

func pollInterval(d time.Duration) time.Duration {
	p := d / 8
	if p < minPoll {
		return minPoll
	}
	if p > maxPoll {
		return maxPoll
	}
	return p
}

// Navigate - loads url and classifies the rendered page. A login wall is
// AuthExpired, a not-found marker is NotFoundError and a rate-limit notice
// is ActionBlocked.
func (f *Flow) Navigate(ctx context.Context, url string) error {
	f.logger.WithField("url", url).Debug("navigating")

	if err := f.page.Goto(ctx, url); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return entities.Transient(err, "navigation to %s failed", url).WithStage(entities.StageNavigated)
	}
	if err := f.settle(ctx); err != nil {
		return err
	}

	if err := f.classify(ctx, url); err != nil {
		return err
	}

	f.dismissPopups(ctx)
	f.mark(ctx, entities.StageNavigated)
	return nil
}

func (f *Flow) classify(ctx context.Context, requested string) error {
	if err := f.checkLoginRedirect(); err != nil {
		return err
	}

	snap, err := f.Snapshot(ctx)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if snap != nil {
		if marker, ok := snap.ContainsAny(f.cfg.Markers.NotFound); ok {
			return entities.NotFound("%s: %s", requested, marker).WithStage(entities.StageNavigated)
		}
		if marker, ok := snap.ContainsAny(f.cfg.Markers.Blocked); ok {
			return entities.Blocked("%s: %s", f.cfg.Platform, marker).WithStage(entities.StageNavigated)
		}
	}

	if !f.looksLoggedOut(ctx) {
		return nil
	}

	// an anonymous-looking render is only trusted after one settle delay
	f.logger.Info("page looks logged out, re-checking")
	if err := f.Pause(ctx, f.cfg.Auth.SettleDelay); err != nil {
		return err
	}
	if err := f.checkLoginRedirect(); err != nil {
		return err
	}
	if f.looksLoggedOut(ctx) {
		return entities.AuthExpired("%s session rendered logged out at %s", f.cfg.Platform, requested).WithStage(entities.StageNavigated)
	}
	return nil
}

func (f *Flow) checkLoginRedirect() error {
	current := f.page.URL()
	for _, marker := range f.cfg.Markers.LoginURLs {
		if marker != "" && strings.Contains(current, marker) {
			return entities.AuthExpired("%s redirected to login (%s)", f.cfg.Platform, current).WithStage(entities.StageNavigated)
		}
	}
	return nil
}

func (f *Flow) looksLoggedOut(ctx context.Context) bool {
	if _, wall := f.Peek(ctx, "login_wall"); !wall {
		return false
	}
	_, in := f.Peek(ctx, "logged_in")
	return !in
}

func (f *Flow) dismissPopups(ctx context.Context) {
	for i := 0; i < maxPopups; i++ {
		el, ok := f.Peek(ctx, "popup_dismiss")
		if !ok {
			return
		}
		if err := el.Click(ctx); err != nil {
			f.logger.Debugf("popup dismiss failed: %v", err)
			return
		}
		f.logger.Debug("popup dismissed")
		if err := f.settle(ctx); err != nil {
			return
		}
	}
}

// Snapshot - parsed HTML of the current page, nil when the driver has none
func (f *Flow) Snapshot(ctx context.Context) (*extract.Snapshot, error) {
	info, err := f.page.Info(ctx)
	if err != nil {
		return nil, err
	}
	if info.HTML == "" {
		return nil, nil
	}
	return extract.Parse(info.URL, info.HTML)
}

// Peek - element for name if it is present right now
func (f *Flow) Peek(ctx context.Context, name string) (interfaces.Element, bool) {
	if !f.cfg.HasTarget(name) {
		return nil, false
	}
	target, err := f.cfg.Target(name)
	if err != nil {
		return nil, false
	}
	m, ok := f.resolver.Peek(ctx, f.page, target)
	return m.Element, ok
}

// WaitFor - polls name for up to d
func (f *Flow) WaitFor(ctx context.Context, name string, d time.Duration) (interfaces.Element, bool) {
	deadline := time.Now().Add(d)
	interval := pollInterval(d)
	for {
		if el, ok := f.Peek(ctx, name); ok {
			return el, true
		}
		if time.Now().After(deadline) || f.Pause(ctx, interval) != nil {
			return nil, false
		}
	}
}

// Locate - resolves name, giving a late render up to the verify window
func (f *Flow) Locate(ctx context.Context, name string) (interfaces.Element, error) {
	target, err := f.cfg.Target(name)
	if err != nil {
		opErr := entities.UnknownUI(name, nil)
		opErr.Err = err
		return nil, opErr.WithStage(entities.StageTargetLocated)
	}

	if _, ok := f.WaitFor(ctx, name, f.cfg.Timeouts.Verify); !ok && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	m, err := f.resolver.Resolve(ctx, f.page, target)
	if err != nil {
		var rerr *selector.ResolveError
		if errors.As(err, &rerr) {
			return nil, rerr.OperationError().WithStage(entities.StageTargetLocated)
		}
		return nil, err
	}

	f.located(ctx, name, m.Strategy)
	return m.Element, nil
}

func (f *Flow) located(ctx context.Context, name string, strategy entities.Strategy) {
	f.trace.Strategy(name, strategy.String())
	telemetry.AddEvent(ctx, "target located",
		telemetry.AttrTarget.String(name),
		telemetry.AttrStrategy.String(strategy.String()),
	)
	f.mark(ctx, entities.StageTargetLocated)
}

// WaitAny - first of names to appear within the verify window
func (f *Flow) WaitAny(ctx context.Context, names ...string) (string, interfaces.Element, error) {
	d := f.cfg.Timeouts.Verify
	deadline := time.Now().Add(d)
	interval := pollInterval(d)

	for {
		for _, name := range names {
			if !f.cfg.HasTarget(name) {
				continue
			}
			target, _ := f.cfg.Target(name)
			if m, ok := f.resolver.Peek(ctx, f.page, target); ok {
				f.located(ctx, name, m.Strategy)
				return name, m.Element, nil
			}
		}
		if time.Now().After(deadline) {
			break
		}
		if err := f.Pause(ctx, interval); err != nil {
			return "", nil, err
		}
	}

	var tried []string
	for _, name := range names {
		if target, err := f.cfg.Target(name); err == nil {
			for _, s := range target.Strategies {
				tried = append(tried, name+": "+s.String())
			}
		}
	}
	return "", nil, entities.UnknownUI(strings.Join(names, "|"), tried).WithStage(entities.StageTargetLocated)
}

// Click - locates and clicks name
func (f *Flow) Click(ctx context.Context, name string) error {
	el, err := f.Locate(ctx, name)
	if err != nil {
		return err
	}
	return f.ClickElement(ctx, name, el)
}

// ClickElement - clicks an already located element
func (f *Flow) ClickElement(ctx context.Context, name string, el interfaces.Element) error {
	if err := el.Click(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return entities.Transient(err, "click on %s failed", name).WithStage(entities.StageActionPerformed)
	}
	f.mark(ctx, entities.StageActionPerformed)
	return f.settle(ctx)
}

// ClickIfPresent - clicks name if it shows up within d
func (f *Flow) ClickIfPresent(ctx context.Context, name string, d time.Duration) (bool, error) {
	el, ok := f.WaitFor(ctx, name, d)
	if !ok {
		return false, ctx.Err()
	}
	return true, f.ClickElement(ctx, name, el)
}

// Fill - types text into name
func (f *Flow) Fill(ctx context.Context, name, text string) error {
	el, err := f.Locate(ctx, name)
	if err != nil {
		return err
	}
	if err := el.Fill(ctx, text); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return entities.Transient(err, "typing into %s failed", name).WithStage(entities.StageActionPerformed)
	}
	f.mark(ctx, entities.StageActionPerformed)
	return f.settle(ctx)
}

// Submit - clicks submit when the catalog has it, otherwise presses Enter
// in the input
func (f *Flow) Submit(ctx context.Context, input, submit string) error {
	if f.cfg.HasTarget(submit) {
		return f.Click(ctx, submit)
	}
	el, err := f.Locate(ctx, input)
	if err != nil {
		return err
	}
	if err := el.Press(ctx, "Enter"); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return entities.Transient(err, "submitting %s failed", input).WithStage(entities.StageActionPerformed)
	}
	f.mark(ctx, entities.StageActionPerformed)
	return f.settle(ctx)
}

// Attach - sets files on a file input
func (f *Flow) Attach(ctx context.Context, name string, paths []string) error {
	el, err := f.Locate(ctx, name)
	if err != nil {
		return err
	}
	if err := el.SetFiles(ctx, paths); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return entities.Transient(err, "attaching media failed").WithStage(entities.StageActionPerformed)
	}
	f.mark(ctx, entities.StageActionPerformed)
	return f.settle(ctx)
}

// Verify - waits for name to confirm the action took effect
func (f *Flow) Verify(ctx context.Context, name string) error {
	if _, ok := f.WaitFor(ctx, name, f.cfg.Timeouts.Verify); !ok {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return entities.Blocked("%s did not appear after the action", name).WithStage(entities.StageStateVerified)
	}
	f.mark(ctx, entities.StageStateVerified)
	return nil
}

// VerifyGone - waits for name to disappear
func (f *Flow) VerifyGone(ctx context.Context, name string) error {
	gone, err := f.gone(ctx, name)
	if err != nil {
		return err
	}
	if !gone {
		return entities.Blocked("%s is still present after the action", name).WithStage(entities.StageStateVerified)
	}
	f.mark(ctx, entities.StageStateVerified)
	return nil
}

// gone - whether name disappears within the verify window
func (f *Flow) gone(ctx context.Context, name string) (bool, error) {
	d := f.cfg.Timeouts.Verify
	deadline := time.Now().Add(d)
	for {
		if _, ok := f.Peek(ctx, name); !ok {
			return true, ctx.Err()
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		if err := f.Pause(ctx, pollInterval(d)); err != nil {
			return false, err
		}
	}
}

// CountText - how many items matched by name carry text. Whitespace is
// collapsed on both sides; case matters.
func (f *Flow) CountText(ctx context.Context, name, text string) int {
	target, err := f.cfg.Target(name)
	if err != nil {
		return 0
	}
	elements, _, err := f.resolver.All(ctx, f.page, target)
	if err != nil {
		return 0
	}
	needle := collapse(text)
	n := 0
	for _, el := range elements {
		if t, err := el.Text(ctx); err == nil && strings.Contains(collapse(t), needle) {
			n++
		}
	}
	return n
}

// VerifyPosted - waits until list holds more items carrying text than the
// before count and the composer no longer holds it. A composer that still
// has the text means the submit was dropped, whatever else the page shows.
func (f *Flow) VerifyPosted(ctx context.Context, composer, list, text string, before int) error {
	d := f.cfg.Timeouts.Verify
	deadline := time.Now().Add(d)
	for {
		if f.cleared(ctx, composer, text) && f.CountText(ctx, list, text) > before {
			f.mark(ctx, entities.StageStateVerified)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			return entities.Blocked("submitted text did not appear in %s", list).WithStage(entities.StageStateVerified)
		}
		if err := f.Pause(ctx, pollInterval(d)); err != nil {
			return err
		}
	}
}

// cleared - composer is gone or emptied of text
func (f *Flow) cleared(ctx context.Context, composer, text string) bool {
	el, ok := f.Peek(ctx, composer)
	if !ok {
		return true
	}
	v, err := el.Value(ctx)
	if err != nil {
		return false
	}
	return !strings.Contains(collapse(v), collapse(text))
}

// Observed - read-only operations verify by reading
func (f *Flow) Observed(ctx context.Context) {
	f.mark(ctx, entities.StageTargetLocated)
	f.mark(ctx, entities.StageStateVerified)
}

// Text - trimmed text of name, empty when absent
func (f *Flow) Text(ctx context.Context, name string) string {
	el, ok := f.Peek(ctx, name)
	if !ok {
		return ""
	}
	text, err := el.Text(ctx)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

// Attr - attribute of name, empty when absent
func (f *Flow) Attr(ctx context.Context, name, attr string) string {
	el, ok := f.Peek(ctx, name)
	if !ok {
		return ""
	}
	v, err := el.Attribute(ctx, attr)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(v)
}

// SideEffect - records an unrequested state change
func (f *Flow) SideEffect(kind, target, detail string) {
	f.trace.SideEffect(entities.SideEffect{Kind: kind, Target: target, Detail: detail})
	f.logger.WithFields(logrus.Fields{"kind": kind, "target": target}).Info("side effect")
}
