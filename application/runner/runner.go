// Package runner executes one operation request end to end: validation,
// credential lookup, per-credential serialization, session acquire and
// release, the hard timeout, retries and normalization.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"social_automation/application/engines"
	"social_automation/application/normalize"
	"social_automation/application/selector"
	"social_automation/domain/entities"
	"social_automation/domain/interfaces"
	"social_automation/infrastructure/browser"
	"social_automation/infrastructure/telemetry"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"
)

const (
	defaultMaxAttempts  = 3
	defaultRetryDelay   = 2 * time.Second
	defaultReleaseGrace = 5 * time.Second
)

// ConfigSource - platform configuration lookup
type ConfigSource interface {
	Get(platform entities.Platform) (*entities.PlatformConfig, error)
}

// Runner replaces free-form agent loops with fixed operation sequences.
// It is safe for concurrent use; requests sharing a credential run one at
// a time.
type Runner struct {
	configs   ConfigSource
	store     interfaces.CredentialStore
	browsers  *browser.Controller
	validator interfaces.Validator
	recorder  interfaces.Recorder
	logger    *logrus.Logger

	maxAttempts     int
	retryDelay      time.Duration
	timeoutOverride time.Duration
	releaseGrace    time.Duration

	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

// Option customizes a Runner
type Option func(*Runner)

// WithRetry - attempts per request and the fixed delay between them
func WithRetry(maxAttempts int, delay time.Duration) Option {
	return func(r *Runner) {
		if maxAttempts > 0 {
			r.maxAttempts = maxAttempts
		}
		if delay >= 0 {
			r.retryDelay = delay
		}
	}
}

// WithTimeoutOverride - one ceiling for every operation instead of the
// catalog's per-operation values
func WithTimeoutOverride(d time.Duration) Option {
	return func(r *Runner) {
		r.timeoutOverride = d
	}
}

// WithReleaseGrace - how long a timed-out engine may take to notice its
// browser is gone
func WithReleaseGrace(d time.Duration) Option {
	return func(r *Runner) {
		r.releaseGrace = d
	}
}

// WithRecorder - report operation metrics
func WithRecorder(rec interfaces.Recorder) Option {
	return func(r *Runner) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// New - creates new runner
func New(configs ConfigSource, store interfaces.CredentialStore, browsers *browser.Controller, validator interfaces.Validator, logger *logrus.Logger, opts ...Option) *Runner {
	r := &Runner{
		configs:      configs,
		store:        store,
		browsers:     browsers,
		validator:    validator,
		recorder:     interfaces.NopRecorder{},
		logger:       logger,
		maxAttempts:  defaultMaxAttempts,
		retryDelay:   defaultRetryDelay,
		releaseGrace: defaultReleaseGrace,
		locks:        make(map[string]*semaphore.Weighted),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Capabilities - what the platform's engine supports on the loaded catalog
func (r *Runner) Capabilities(platform entities.Platform) (engines.Capabilities, error) {
	cfg, err := r.configs.Get(platform)
	if err != nil {
		return engines.Capabilities{}, err
	}
	eng, err := engines.New(cfg)
	if err != nil {
		return engines.Capabilities{}, err
	}
	return eng.Capabilities(), nil
}

// Run - executes req and always returns an envelope; failures are
// classified, never raised
func (r *Runner) Run(ctx context.Context, req entities.Request) entities.Envelope {
	start := time.Now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	ctx, span := telemetry.StartSpan(ctx, "operation."+string(req.Operation),
		telemetry.AttrPlatform.String(string(req.Platform)),
		telemetry.AttrOperation.String(string(req.Operation)),
		telemetry.AttrRequestID.String(req.ID),
	)
	defer span.End()

	logger := r.logger.WithFields(logrus.Fields{
		"platform":   req.Platform,
		"operation":  req.Operation,
		"request_id": req.ID,
	})

	trace := engines.NewTrace()
	attempts := 0
	obs, err := r.run(ctx, req, logger, &trace, &attempts)

	var env entities.Envelope
	if err != nil {
		stage := trace.Pending()
		if attempts == 0 {
			// rejected before any session was opened
			stage = entities.StageIdle
		}
		opErr := entities.AsOperationError(err).WithStage(stage)
		if opErr.Kind == entities.KindAuthExpired {
			r.store.Invalidate(req.Platform)
		}
		env = entities.Fail(opErr)

		span.SetAttributes(telemetry.AttrErrorKind.String(string(opErr.Kind)), telemetry.AttrStage.String(string(opErr.Stage)))
		span.RecordError(opErr)
		span.SetStatus(codes.Error, opErr.Message)
		logger.WithFields(logrus.Fields{
			"kind":  opErr.Kind,
			"stage": opErr.Stage,
			"tried": opErr.Tried,
		}).Warn(opErr.Message)
	} else {
		env = normalize.Normalize(req.Platform, req.Operation, obs)
		span.SetStatus(codes.Ok, "")
	}

	duration := time.Since(start)
	env.SideEffects = trace.SideEffects()
	env.Meta = &entities.Meta{
		RequestID:  req.ID,
		Platform:   req.Platform,
		Operation:  req.Operation,
		Attempts:   attempts,
		DurationMS: duration.Milliseconds(),
		Strategies: trace.Strategies(),
	}

	var kind entities.ErrorKind
	if env.Error != nil {
		kind = env.Error.Kind
	}
	r.recorder.OperationFinished(req.Platform, req.Operation, kind, duration)
	logger.WithFields(logrus.Fields{
		"success":  env.Success,
		"attempts": attempts,
		"duration": duration,
	}).Info("Operation finished")

	return env
}

// run - everything up to the observation. trace points at the trace of the
// latest attempt.
func (r *Runner) run(ctx context.Context, req entities.Request, logger *logrus.Entry, trace **engines.Trace, attempts *int) (entities.Observation, error) {
	if err := r.validator.Validate(ctx, req); err != nil {
		return nil, err
	}
	req.Params = normalizeParams(req.Params)

	cfg, err := r.configs.Get(req.Platform)
	if err != nil {
		return nil, entities.Validation("%v", err)
	}
	eng, err := engines.New(cfg)
	if err != nil {
		return nil, entities.Validation("%v", err)
	}
	if !engines.Implements(eng, req.Operation) {
		return nil, entities.Validation("operation %s is not supported on %s", req.Operation, req.Platform)
	}

	cred, err := r.store.LoadCredentials(ctx, req.Platform)
	if err != nil {
		return nil, err
	}

	lock := r.lock(cred.Key())
	if err := lock.Acquire(ctx, 1); err != nil {
		return nil, entities.Transient(err, "gave up waiting for the %s session", cred.Key())
	}
	defer lock.Release(1)

	timeout := cfg.TimeoutFor(req.Operation)
	if r.timeoutOverride > 0 {
		timeout = r.timeoutOverride
	}
	// a started operation is bounded by its ceiling, not by the caller
	// staying connected
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	resolver := selector.NewResolver(cfg.Platform, r.recorder, r.logger)

	obs, err := backoff.Retry(opCtx, func() (entities.Observation, error) {
		*attempts++
		*trace = engines.NewTrace()
		alogger := logger.WithField("attempt", *attempts)
		telemetry.AddEvent(opCtx, "attempt", telemetry.AttrAttempt.Int(*attempts))

		obs, err := r.attempt(opCtx, cfg, eng, resolver, cred, req, *trace, alogger)
		if err == nil {
			return obs, nil
		}
		if !retryable(err, req.Operation, *trace) {
			return nil, backoff.Permanent(err)
		}
		alogger.WithError(err).Warn("Attempt failed, retrying")
		return nil, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(r.retryDelay)),
		backoff.WithMaxTries(uint(r.maxAttempts)),
		backoff.WithNotify(func(error, time.Duration) {
			r.recorder.OperationRetried(req.Platform, req.Operation)
		}),
	)
	if err != nil && opCtx.Err() != nil && !isOperationError(err) {
		// deadline hit while waiting between attempts
		return nil, entities.TimeoutError((*trace).Pending())
	}
	return obs, err
}

// attempt - one session: acquire, execute under the deadline, release.
// When the deadline passes first the session is released from here, which
// closes the browser and unblocks whatever driver call the engine is in.
func (r *Runner) attempt(ctx context.Context, cfg *entities.PlatformConfig, eng engines.Engine, resolver *selector.Resolver, cred entities.CredentialRecord, req entities.Request, trace *engines.Trace, logger *logrus.Entry) (entities.Observation, error) {
	session, err := r.acquire(ctx, cfg, cred, cfg.ModeFor(req.Operation), logger)
	if err != nil {
		if ctx.Err() != nil {
			return nil, entities.TimeoutError(entities.StageSessionAcquired)
		}
		return nil, entities.AsOperationError(err).WithStage(entities.StageSessionAcquired)
	}
	trace.Mark(entities.StageSessionAcquired)
	telemetry.AddEvent(ctx, "stage", telemetry.AttrStage.String(string(entities.StageSessionAcquired)))
	defer r.release(session, logger)

	flow := engines.NewFlow(cfg, session.Page(), resolver, trace, logger)

	type result struct {
		obs entities.Observation
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("engine panic: %v", p)}
			}
		}()
		obs, err := engines.Execute(ctx, eng, flow, req)
		done <- result{obs: obs, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && ctx.Err() != nil {
			return nil, entities.TimeoutError(trace.Pending())
		}
		return res.obs, res.err

	case <-ctx.Done():
		stage := trace.Pending()
		logger.WithField("stage", stage).Warn("Operation timed out, releasing session")
		r.release(session, logger)

		grace := time.NewTimer(r.releaseGrace)
		defer grace.Stop()
		select {
		case <-done:
		case <-grace.C:
			logger.Error("Engine still running after its session was released")
		}
		return nil, entities.TimeoutError(stage)
	}
}

// acquire - Acquire bounded by ctx. A launch can outlive its context, so a
// session that arrives after the deadline is closed as soon as it exists.
func (r *Runner) acquire(ctx context.Context, cfg *entities.PlatformConfig, cred entities.CredentialRecord, mode entities.BrowserMode, logger *logrus.Entry) (*browser.Session, error) {
	type acquired struct {
		session *browser.Session
		err     error
	}
	got := make(chan acquired, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				got <- acquired{err: fmt.Errorf("browser launch panic: %v", p)}
			}
		}()
		s, err := r.browsers.Acquire(ctx, cfg, cred, mode)
		got <- acquired{session: s, err: err}
	}()

	select {
	case a := <-got:
		return a.session, a.err
	case <-ctx.Done():
		go func() {
			if a := <-got; a.err == nil {
				logger.Warn("Browser arrived after the deadline, closing it")
				r.release(a.session, logger)
			}
		}()
		return nil, ctx.Err()
	}
}

func (r *Runner) release(s *browser.Session, logger *logrus.Entry) {
	if err := r.browsers.Release(s); err != nil {
		logger.WithError(err).Warn("Failed to close browser")
	}
}

// lock - the mutual-exclusion slot for one credential
func (r *Runner) lock(key string) *semaphore.Weighted {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = semaphore.NewWeighted(1)
		r.locks[key] = l
	}
	return l
}

// retryable - transient failures are retried unless the action may already
// have reached the platform; a duplicated post is worse than a failed one
func retryable(err error, op entities.Operation, trace *engines.Trace) bool {
	opErr := entities.AsOperationError(err)
	if !opErr.Kind.Retryable() || opErr.Message == entities.ErrTimeout {
		return false
	}
	return op.ReadOnly() || !trace.Stage().Reached(entities.StageActionPerformed)
}

func isOperationError(err error) bool {
	var opErr *entities.OperationError
	return errors.As(err, &opErr)
}

// normalizeParams - strips the '@' from usernames once, up front
func normalizeParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = v
	}
	if u, ok := out[entities.ParamUsername]; ok {
		out[entities.ParamUsername] = entities.NormalizeUsername(u)
	}
	return out
}
