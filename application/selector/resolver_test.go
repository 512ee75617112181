package selector

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"social_automation/domain/entities"
	"social_automation/infrastructure/browser/browsertest"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type countingRecorder struct {
	resolved  map[string]int
	exhausted []string
}

func (r *countingRecorder) SessionAcquired(entities.Platform, entities.BrowserMode) {}
func (r *countingRecorder) SessionReleased(entities.Platform) {}
func (r *countingRecorder) OperationRetried(entities.Platform, entities.Operation) {}
func (r *countingRecorder) OperationFinished(entities.Platform, entities.Operation, entities.ErrorKind, time.Duration) {}
func (r *countingRecorder) SelectorResolved(_ entities.Platform, target string, index int) {
	if r.resolved == nil {
		r.resolved = make(map[string]int)
	}
	r.resolved[target] = index
}
func (r *countingRecorder) SelectorExhausted(_ entities.Platform, target string) {
	r.exhausted = append(r.exhausted, target)
}

func likeTarget() entities.Target {
	return entities.Target{
		Name:      "like_button",
		Clickable: true,
		Strategies: []entities.Strategy{
			browsertest.CSS(`svg[aria-label="Like"]`),
			browsertest.Aria("Like"),
			browsertest.Text("button", "Like"),
		},
	}
}

func TestResolveFallsBackToThirdStrategy(t *testing.T) {
	page := browsertest.NewPage()

	// #1 exists but is hidden, #2 exists but is disabled, #3 is usable
	first := browsertest.El("").Hidden()
	second := browsertest.El("").Disabled()
	third := browsertest.El("Like")
	target := likeTarget()
	page.Add(target.Strategies[0], first)
	page.Add(target.Strategies[1], second)
	page.Add(target.Strategies[2], third)

	rec := &countingRecorder{}
	r := NewResolver(entities.PlatformInstagram, rec, quietLogger())

	match, err := r.Resolve(context.Background(), page, target)
	require.NoError(t, err)

	assert.Equal(t, 2, match.Index)
	assert.Equal(t, target.Strategies[2], match.Strategy)
	assert.Same(t, third, match.Element)
	assert.Equal(t, 2, rec.resolved["like_button"])

	assert.Zero(t, first.Clicks())
	assert.Zero(t, second.Clicks())
	assert.Zero(t, third.Clicks())
	assert.Empty(t, first.Filled())
	assert.Empty(t, second.Filled())
}

func TestResolveReportsTriedStrategies(t *testing.T) {
	page := browsertest.NewPage()
	target := likeTarget()

	rec := &countingRecorder{}
	r := NewResolver(entities.PlatformInstagram, rec, quietLogger())

	_, err := r.Resolve(context.Background(), page, target)
	require.Error(t, err)

	var resolveErr *ResolveError
	require.True(t, errors.As(err, &resolveErr))
	assert.Equal(t, "like_button", resolveErr.Target)
	require.Len(t, resolveErr.Tried, 3)
	assert.Equal(t, target.Strategies[0].String(), resolveErr.Tried[0])
	assert.Equal(t, target.Strategies[2].String(), resolveErr.Tried[2])
	assert.Equal(t, []string{"like_button"}, rec.exhausted)

	opErr := resolveErr.OperationError()
	assert.Equal(t, entities.KindUnknownUI, opErr.Kind)
	assert.Equal(t, resolveErr.Tried, opErr.Tried)
	assert.Equal(t, entities.KindUnknownUI, entities.KindOf(opErr))
}

func TestResolveQueriesInPriorityOrderAndStopsAtFirstMatch(t *testing.T) {
	page := browsertest.NewPage()
	target := likeTarget()
	page.Add(target.Strategies[1], browsertest.El("Like"))
	page.Add(target.Strategies[2], browsertest.El("Like"))

	r := NewResolver(entities.PlatformInstagram, nil, quietLogger())
	match, err := r.Resolve(context.Background(), page, target)
	require.NoError(t, err)
	assert.Equal(t, 1, match.Index)

	assert.Equal(t, []string{
		target.Strategies[0].String(),
		target.Strategies[1].String(),
	}, page.Queries())
}

func TestResolveNonClickableIgnoresEnabledState(t *testing.T) {
	page := browsertest.NewPage()
	target := entities.Target{
		Name:       "profile_bio",
		Strategies: []entities.Strategy{browsertest.TestID("UserDescription")},
	}
	page.Add(target.Strategies[0], browsertest.El("bio").Disabled())

	r := NewResolver(entities.PlatformTwitter, nil, quietLogger())
	_, err := r.Resolve(context.Background(), page, target)
	assert.NoError(t, err)
}

func TestResolveHiddenTarget(t *testing.T) {
	page := browsertest.NewPage()
	target := entities.Target{
		Name:       "media_input",
		Hidden:     true,
		Strategies: []entities.Strategy{browsertest.CSS(`input[type="file"]`)},
	}
	page.Add(target.Strategies[0], browsertest.El("").Hidden())

	r := NewResolver(entities.PlatformInstagram, nil, quietLogger())
	_, err := r.Resolve(context.Background(), page, target)
	assert.NoError(t, err)
}

func TestPeek(t *testing.T) {
	page := browsertest.NewPage()
	target := likeTarget()
	r := NewResolver(entities.PlatformInstagram, nil, quietLogger())

	_, ok := r.Peek(context.Background(), page, target)
	assert.False(t, ok)

	page.Add(target.Strategies[0], browsertest.El(""))
	m, ok := r.Peek(context.Background(), page, target)
	assert.True(t, ok)
	assert.Equal(t, 0, m.Index)
}

func TestAll(t *testing.T) {
	page := browsertest.NewPage()
	target := entities.Target{
		Name: "content_link",
		Strategies: []entities.Strategy{
			browsertest.CSS(`main a[href*="/p/"]`),
			browsertest.CSS(`a[href*="/p/"]`),
		},
	}
	page.Add(target.Strategies[1],
		browsertest.Link("/p/A/", ""),
		browsertest.Link("/p/B/", "").Hidden(),
		browsertest.Link("/p/C/", ""),
	)

	r := NewResolver(entities.PlatformInstagram, nil, quietLogger())
	els, strategy, err := r.All(context.Background(), page, target)
	require.NoError(t, err)
	assert.Equal(t, target.Strategies[1], strategy)
	require.Len(t, els, 2)

	href, _ := els[1].Attribute(context.Background(), "href")
	assert.Equal(t, "/p/C/", href)
}

func TestResolveHonorsCancelledContext(t *testing.T) {
	page := browsertest.NewPage()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewResolver(entities.PlatformInstagram, nil, quietLogger())
	_, err := r.Resolve(ctx, page, likeTarget())
	assert.ErrorIs(t, err, context.Canceled)
}
