package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"social_automation/application/engines"
	"social_automation/application/normalize"
	"social_automation/domain/entities"
	"social_automation/infrastructure/browser"
	"social_automation/infrastructure/browser/browsertest"
	"social_automation/infrastructure/catalog"
	"social_automation/infrastructure/logging"
	"social_automation/infrastructure/security"
	"social_automation/infrastructure/telemetry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type memStore struct {
	mu          sync.Mutex
	records     map[entities.Platform]entities.CredentialRecord
	invalidated []entities.Platform
}

func (s *memStore) LoadCredentials(ctx context.Context, platform entities.Platform) (entities.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[platform]
	if !ok {
		return entities.CredentialRecord{}, entities.AuthMissing("no credentials for %s", platform)
	}
	return rec, nil
}

func (s *memStore) Invalidate(platform entities.Platform) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, platform)
}

func (s *memStore) Invalidated() []entities.Platform {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entities.Platform(nil), s.invalidated...)
}

type fixture struct {
	cfg        *entities.PlatformConfig
	driver     *browsertest.Driver
	controller *browser.Controller
	store      *memStore
	runner     *Runner
}

// newFixture - instagram runner over a fake driver with the human-speed
// pauses removed
func newFixture(t *testing.T, setup func(cfg *entities.PlatformConfig, p *browsertest.Page), opts ...Option) *fixture {
	t.Helper()
	logger := logging.Discard()

	cat := catalog.MustLoadEmbedded()
	base, err := cat.Get(entities.PlatformInstagram)
	require.NoError(t, err)
	cfg := *base
	cfg.Timeouts.Settle = 0
	cfg.Timeouts.Verify = 100 * time.Millisecond
	cfg.Auth.SettleDelay = 0
	cfg.Browser.SlowMo = 0
	require.NoError(t, cat.Put(&cfg))

	driver := browsertest.NewDriver(func(p *browsertest.Page) {
		if setup != nil {
			setup(&cfg, p)
		}
	})
	controller := browser.NewController(driver, nil, logger)
	store := &memStore{records: map[entities.Platform]entities.CredentialRecord{
		entities.PlatformInstagram: {
			Platform: entities.PlatformInstagram,
			Account:  "main",
			Secrets:  []entities.Secret{{Name: entities.SessionTokenName, Value: "token"}},
		},
	}}

	opts = append([]Option{WithRetry(3, 0)}, opts...)
	r := New(cat, store, controller, security.NewValidator(cat, logger), logger, opts...)
	return &fixture{cfg: &cfg, driver: driver, controller: controller, store: store, runner: r}
}

func strategy(t *testing.T, cfg *entities.PlatformConfig, target string, i int) entities.Strategy {
	t.Helper()
	tgt, err := cfg.Target(target)
	require.NoError(t, err)
	return tgt.Strategies[i]
}

func profileRequest(username string) entities.Request {
	return entities.Request{
		Platform:  entities.PlatformInstagram,
		Operation: entities.OpGetProfile,
		Params:    map[string]string{entities.ParamUsername: username},
	}
}

func profilePage(t *testing.T) func(cfg *entities.PlatformConfig, p *browsertest.Page) {
	return func(cfg *entities.PlatformConfig, p *browsertest.Page) {
		p.RoutePrefix("https://www.instagram.com/", func(p *browsertest.Page) {
			p.Add(strategy(t, cfg, "profile_header", 0), browsertest.El(""))
			p.Add(strategy(t, cfg, "profile_name", 0), browsertest.El("Instagram"))
			p.Add(strategy(t, cfg, "profile_followers", 0), browsertest.El("672M"))
			p.Add(strategy(t, cfg, "profile_following", 0), browsertest.El("233 following"))
		})
	}
}

func assertBalanced(t *testing.T, fx *fixture) {
	t.Helper()
	stats := fx.controller.Stats()
	assert.Equal(t, stats.Acquired, stats.Released, "every acquired session is released")
	assert.Zero(t, stats.Open)
	assert.Zero(t, fx.driver.Open())
}

func TestProfileHappyPath(t *testing.T) {
	fx := newFixture(t, profilePage(t))

	env := fx.runner.Run(context.Background(), profileRequest("@instagram"))
	require.True(t, env.Success, "%+v", env.Error)

	profile, ok := env.Data.(normalize.Profile)
	require.True(t, ok)
	assert.Equal(t, "instagram", profile.Username)
	assert.Equal(t, "https://www.instagram.com/instagram/", profile.ProfileURL)
	assert.NotEmpty(t, profile.Followers)

	require.NotNil(t, env.Meta)
	assert.NotEmpty(t, env.Meta.RequestID)
	assert.Equal(t, 1, env.Meta.Attempts)
	assert.Contains(t, env.Meta.Strategies, "profile_header")

	assert.Equal(t, 1, fx.driver.Launches())
	assertBalanced(t, fx)
}

func TestValidationFailsFast(t *testing.T) {
	tests := []struct {
		name string
		req  entities.Request
	}{
		{"missing username", profileRequest("  ")},
		{"unknown operation", entities.Request{Platform: entities.PlatformInstagram, Operation: "teleport"}},
		{"unsupported operation", entities.Request{
			Platform:  entities.PlatformInstagram,
			Operation: entities.OpRepost,
			Params:    map[string]string{entities.ParamContentID: "C1"},
		}},
		{"comment too long", entities.Request{
			Platform:  entities.PlatformInstagram,
			Operation: entities.OpComment,
			Params: map[string]string{
				entities.ParamContentID: "C1",
				entities.ParamText:      strings.Repeat("a", 2201),
			},
		}},
		{"post without media", entities.Request{
			Platform:  entities.PlatformInstagram,
			Operation: entities.OpCreatePost,
			Params:    map[string]string{entities.ParamText: "hello"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, nil)

			env := fx.runner.Run(context.Background(), tt.req)
			require.False(t, env.Success)
			assert.Equal(t, entities.KindValidation, env.Error.Kind)
			assert.Equal(t, entities.StageIdle, env.Error.Stage)
			assert.Zero(t, env.Meta.Attempts)
			assert.Zero(t, fx.driver.Launches(), "no browser for invalid input")
		})
	}
}

func TestMissingCredentialsFailFast(t *testing.T) {
	fx := newFixture(t, nil)
	fx.store.records = nil

	env := fx.runner.Run(context.Background(), profileRequest("instagram"))
	require.False(t, env.Success)
	assert.Equal(t, entities.KindAuthMissing, env.Error.Kind)
	assert.Zero(t, fx.driver.Launches())
}

func TestFailureReleasesSession(t *testing.T) {
	// profile page renders nothing the catalog recognizes
	fx := newFixture(t, nil)

	env := fx.runner.Run(context.Background(), profileRequest("instagram"))
	require.False(t, env.Success)
	assert.Equal(t, entities.KindUnknownUI, env.Error.Kind)
	assert.NotEmpty(t, env.Error.Tried)
	assert.Equal(t, 1, env.Meta.Attempts, "UI failures are not retried")
	assertBalanced(t, fx)
}

func TestOneSessionPerCredential(t *testing.T) {
	fx := newFixture(t, func(cfg *entities.PlatformConfig, p *browsertest.Page) {
		p.RoutePrefix("https://www.instagram.com/", func(p *browsertest.Page) {
			time.Sleep(20 * time.Millisecond)
			p.Add(strategy(t, cfg, "profile_header", 0), browsertest.El(""))
		})
	})

	const n = 5
	var wg sync.WaitGroup
	results := make([]entities.Envelope, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = fx.runner.Run(context.Background(), profileRequest("instagram"))
		}(i)
	}
	wg.Wait()

	for _, env := range results {
		assert.True(t, env.Success, "%+v", env.Error)
	}
	assert.Equal(t, n, fx.driver.Launches())
	assert.Equal(t, 1, fx.driver.MaxOpen(), "sessions for one credential never overlap")
	assertBalanced(t, fx)
}

func TestTimeoutReleasesSession(t *testing.T) {
	fx := newFixture(t, func(cfg *entities.PlatformConfig, p *browsertest.Page) {
		p.Hang(cfg.ProfileURL("instagram"))
	}, WithTimeoutOverride(100*time.Millisecond), WithReleaseGrace(time.Second))

	start := time.Now()
	env := fx.runner.Run(context.Background(), profileRequest("instagram"))
	require.False(t, env.Success)
	assert.Equal(t, entities.KindTransient, env.Error.Kind)
	assert.Equal(t, entities.ErrTimeout, env.Error.Message)
	assert.Equal(t, entities.StageNavigated, env.Error.Stage)
	assert.Equal(t, 1, env.Meta.Attempts, "timeouts are not retried")
	assert.Less(t, time.Since(start), 2*time.Second)
	assertBalanced(t, fx)
}

func TestLateBrowserIsClosed(t *testing.T) {
	fx := newFixture(t, profilePage(t), WithTimeoutOverride(100*time.Millisecond))
	fx.driver.LaunchDelay = time.Second

	start := time.Now()
	env := fx.runner.Run(context.Background(), profileRequest("instagram"))
	require.False(t, env.Success)
	assert.Equal(t, entities.KindTransient, env.Error.Kind)
	assert.Equal(t, entities.ErrTimeout, env.Error.Message)
	assert.Equal(t, entities.StageSessionAcquired, env.Error.Stage)
	assert.Less(t, time.Since(start), 700*time.Millisecond, "the deadline does not wait for the launch")

	assert.Eventually(t, func() bool {
		return fx.driver.Launches() == 1 && fx.driver.Closes() == 1
	}, 3*time.Second, 20*time.Millisecond)
	assertBalanced(t, fx)
}

func TestAttemptsAreTraced(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	fx := newFixture(t, profilePage(t))
	env := fx.runner.Run(context.Background(), profileRequest("instagram"))
	require.True(t, env.Success, "%+v", env.Error)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	events := make(map[string][]attribute.KeyValue)
	for _, ev := range spans[0].Events() {
		if _, seen := events[ev.Name]; !seen {
			events[ev.Name] = ev.Attributes
		}
	}

	require.Contains(t, events, "attempt")
	assert.Contains(t, events["attempt"], telemetry.AttrAttempt.Int(1))
	require.Contains(t, events, "target located")
	assert.Contains(t, events["target located"], telemetry.AttrTarget.String("profile_header"))
	assert.Contains(t, events["target located"],
		telemetry.AttrStrategy.String(strategy(t, fx.cfg, "profile_header", 0).String()))
}

func TestCancelledCallerNeverLaunches(t *testing.T) {
	fx := newFixture(t, profilePage(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	env := fx.runner.Run(ctx, profileRequest("instagram"))
	require.False(t, env.Success)
	assert.Equal(t, entities.KindTransient, env.Error.Kind)
	assert.Zero(t, fx.driver.Launches())
}

func TestTransientFailuresAreRetried(t *testing.T) {
	var mu sync.Mutex
	launches := 0
	fx := newFixture(t, func(cfg *entities.PlatformConfig, p *browsertest.Page) {
		mu.Lock()
		launches++
		flaky := launches < 3
		mu.Unlock()
		if flaky {
			p.FailGoto(errors.New("net::ERR_CONNECTION_RESET"))
			return
		}
		profilePage(t)(cfg, p)
	})

	env := fx.runner.Run(context.Background(), profileRequest("instagram"))
	require.True(t, env.Success, "%+v", env.Error)
	assert.Equal(t, 3, env.Meta.Attempts)
	assert.Equal(t, 3, fx.driver.Launches())
	assertBalanced(t, fx)
}

func TestRetriesAreBounded(t *testing.T) {
	fx := newFixture(t, func(cfg *entities.PlatformConfig, p *browsertest.Page) {
		p.FailGoto(errors.New("net::ERR_CONNECTION_RESET"))
	}, WithRetry(2, 0))

	env := fx.runner.Run(context.Background(), profileRequest("instagram"))
	require.False(t, env.Success)
	assert.Equal(t, entities.KindTransient, env.Error.Kind)
	assert.Equal(t, entities.StageNavigated, env.Error.Stage)
	assert.Equal(t, 2, env.Meta.Attempts)
	assertBalanced(t, fx)
}

func TestAuthExpiredInvalidatesCredentials(t *testing.T) {
	fx := newFixture(t, func(cfg *entities.PlatformConfig, p *browsertest.Page) {
		p.RoutePrefix("https://www.instagram.com/", func(p *browsertest.Page) {
			p.SetURL("https://www.instagram.com/accounts/login/?next=%2Finstagram%2F")
		})
	})

	env := fx.runner.Run(context.Background(), profileRequest("instagram"))
	require.False(t, env.Success)
	assert.Equal(t, entities.KindAuthExpired, env.Error.Kind)
	assert.Equal(t, 1, env.Meta.Attempts)
	assert.Equal(t, []entities.Platform{entities.PlatformInstagram}, fx.store.Invalidated())
	assertBalanced(t, fx)
}

func TestRetryable(t *testing.T) {
	located := engines.NewTrace()
	located.Mark(entities.StageTargetLocated)
	acted := engines.NewTrace()
	acted.Mark(entities.StageActionPerformed)

	transient := entities.Transient(errors.New("reset"), "click failed")

	tests := []struct {
		name  string
		err   error
		op    entities.Operation
		trace *engines.Trace
		want  bool
	}{
		{"transient before action", transient, entities.OpLike, located, true},
		{"transient after write action", transient, entities.OpComment, acted, false},
		{"transient after read action", transient, entities.OpListContent, acted, true},
		{"timeout", entities.TimeoutError(entities.StageNavigated), entities.OpGetProfile, located, false},
		{"blocked", entities.Blocked("ignored"), entities.OpLike, located, false},
		{"unknown ui", entities.UnknownUI("like_button", nil), entities.OpLike, located, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err, tt.op, tt.trace))
		})
	}
}

func TestCapabilities(t *testing.T) {
	fx := newFixture(t, nil)

	caps, err := fx.runner.Capabilities(entities.PlatformInstagram)
	require.NoError(t, err)
	assert.Equal(t, entities.PlatformInstagram, caps.Platform)
	assert.Contains(t, caps.Operations, entities.OpGetProfile)
	assert.NotContains(t, caps.Operations, entities.OpRepost)
	assert.True(t, caps.MediaRequired)
}
