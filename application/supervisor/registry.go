// Package supervisor owns the bridge processes of a multi-platform
// deployment. The registry maps each platform to its process handle and
// only changes through Start and Stop; a process that dies is reported,
// never restarted.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"social_automation/domain/entities"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// State of a supervised process
type State string

const (
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateUnhealthy State = "unhealthy"
	StateStopping  State = "stopping"
	StateStopped   State = "stopped"
	StateExited    State = "exited"
)

// Spec - what to start
type Spec struct {
	Platform entities.Platform
	Host     string
	Port     int
}

// HealthURL - liveness endpoint of the bridge
func (s Spec) HealthURL() string {
	host := s.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d/health", host, s.Port)
}

// Info is a read-only view of one registry entry
type Info struct {
	Platform    entities.Platform `json:"platform"`
	Port        int               `json:"port"`
	PID         int               `json:"pid,omitempty"`
	State       State             `json:"state"`
	StartedAt   time.Time         `json:"startedAt"`
	LastChecked time.Time         `json:"lastChecked,omitempty"`
	Error       string            `json:"error,omitempty"`
}

type entry struct {
	spec   Spec
	handle Handle
	info   Info
	exited chan struct{}
}

// Registry - platform → process, exclusively owned by the supervisor
type Registry struct {
	spawner     Spawner
	health      *retryablehttp.Client
	watcher     *retryablehttp.Client
	logger      *logrus.Logger
	stopGrace   time.Duration
	readyWithin time.Duration

	mu      sync.Mutex
	entries map[entities.Platform]*entry
}

// Option customizes a Registry
type Option func(*Registry)

// WithStopGrace - how long a bridge may take to exit after the interrupt
func WithStopGrace(d time.Duration) Option {
	return func(r *Registry) {
		r.stopGrace = d
	}
}

// WithReadyTimeout - how long Start waits for the first healthy check
func WithReadyTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.readyWithin = d
	}
}

// NewRegistry - creates an empty registry
func NewRegistry(spawner Spawner, logger *logrus.Logger, opts ...Option) *Registry {
	// readiness polls until the bridge listens
	health := retryablehttp.NewClient()
	health.RetryMax = 30
	health.RetryWaitMin = 100 * time.Millisecond
	health.RetryWaitMax = 500 * time.Millisecond
	health.Logger = nil
	health.HTTPClient.Timeout = 2 * time.Second

	// liveness checks a running bridge
	watcher := retryablehttp.NewClient()
	watcher.RetryMax = 2
	watcher.RetryWaitMin = 100 * time.Millisecond
	watcher.RetryWaitMax = 300 * time.Millisecond
	watcher.Logger = nil
	watcher.HTTPClient.Timeout = 2 * time.Second

	r := &Registry{
		spawner:     spawner,
		health:      health,
		watcher:     watcher,
		logger:      logger,
		stopGrace:   10 * time.Second,
		readyWithin: 15 * time.Second,
		entries:     make(map[entities.Platform]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start - spawns the bridge for spec.Platform and waits until it answers
// its health check. Starting a platform that is already live is an error.
func (r *Registry) Start(ctx context.Context, spec Spec) error {
	r.mu.Lock()
	if e, ok := r.entries[spec.Platform]; ok && e.live() {
		r.mu.Unlock()
		return fmt.Errorf("%s bridge already %s", spec.Platform, e.info.State)
	}

	handle, err := r.spawner.Spawn(spec)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	e := &entry{
		spec:   spec,
		handle: handle,
		exited: make(chan struct{}),
		info: Info{
			Platform:  spec.Platform,
			Port:      spec.Port,
			PID:       handle.PID(),
			State:     StateStarting,
			StartedAt: time.Now(),
		},
	}
	r.entries[spec.Platform] = e
	r.mu.Unlock()

	logger := r.logger.WithFields(logrus.Fields{"platform": spec.Platform, "port": spec.Port, "pid": e.info.PID})
	logger.Info("Bridge process started")

	go r.monitor(e, logger)

	readyCtx, cancel := context.WithTimeout(ctx, r.readyWithin)
	defer cancel()
	go func() {
		// stop polling a process that already died
		select {
		case <-e.exited:
			cancel()
		case <-readyCtx.Done():
		}
	}()
	if err := r.check(readyCtx, r.health, spec); err != nil {
		r.setState(e, StateUnhealthy, err)
		return fmt.Errorf("%s bridge did not become healthy: %w", spec.Platform, err)
	}
	r.setState(e, StateRunning, nil)
	logger.Info("Bridge process healthy")
	return nil
}

// monitor records the exit of a process; it never restarts it
func (r *Registry) monitor(e *entry, logger *logrus.Entry) {
	err := e.handle.Wait()

	r.mu.Lock()
	if e.info.State == StateStopping || e.info.State == StateStopped {
		e.info.State = StateStopped
	} else {
		e.info.State = StateExited
		if err != nil {
			e.info.Error = err.Error()
		}
	}
	r.mu.Unlock()
	close(e.exited)

	if err != nil {
		logger.WithError(err).Warn("Bridge process exited")
	} else {
		logger.Info("Bridge process exited")
	}
}

// Stop - interrupts the platform's bridge and waits for it to exit
func (r *Registry) Stop(ctx context.Context, platform entities.Platform) error {
	r.mu.Lock()
	e, ok := r.entries[platform]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("no %s bridge registered", platform)
	}
	if !e.live() {
		r.mu.Unlock()
		return nil
	}
	e.info.State = StateStopping
	r.mu.Unlock()

	if err := e.handle.Stop(r.stopGrace); err != nil {
		return err
	}
	select {
	case <-e.exited:
	case <-ctx.Done():
		return ctx.Err()
	}
	r.logger.WithField("platform", platform).Info("Bridge process stopped")
	return nil
}

// StartAll - starts every spec in parallel; the first failure is returned
// after all starts have finished
func (r *Registry) StartAll(ctx context.Context, specs []Spec) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, spec := range specs {
		spec := spec
		g.Go(func() error {
			return r.Start(ctx, spec)
		})
	}
	return g.Wait()
}

// StopAll - stops every live process in parallel
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	platforms := make([]entities.Platform, 0, len(r.entries))
	for p, e := range r.entries {
		if e.live() {
			platforms = append(platforms, p)
		}
	}
	r.mu.Unlock()

	var g errgroup.Group
	for _, p := range platforms {
		p := p
		g.Go(func() error {
			return r.Stop(ctx, p)
		})
	}
	return g.Wait()
}

// Status - every registry entry, ordered by platform
func (r *Registry) Status() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out
}

// Logs - recent output of the platform's bridge
func (r *Registry) Logs(platform entities.Platform) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[platform]
	if !ok {
		return "", fmt.Errorf("no %s bridge registered", platform)
	}
	return e.handle.Logs(), nil
}

// Watch - checks every running bridge each interval until ctx ends and
// records the outcome. Failing bridges are marked unhealthy, not restarted.
func (r *Registry) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.CheckAll(ctx)
		}
	}
}

// CheckAll - one liveness round over running and unhealthy bridges
func (r *Registry) CheckAll(ctx context.Context) {
	r.mu.Lock()
	var targets []*entry
	for _, e := range r.entries {
		if e.info.State == StateRunning || e.info.State == StateUnhealthy {
			targets = append(targets, e)
		}
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range targets {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			err := r.check(ctx, r.watcher, e.spec)
			state := StateRunning
			if err != nil {
				state = StateUnhealthy
				r.logger.WithField("platform", e.spec.Platform).WithError(err).Warn("Bridge failed liveness check")
			}
			r.setState(e, state, err)
		}(e)
	}
	wg.Wait()
}

type healthBody struct {
	Status   string `json:"status"`
	Platform string `json:"platform"`
}

func (r *Registry) check(ctx context.Context, client *retryablehttp.Client, spec Spec) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, spec.HealthURL(), nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned %d", resp.StatusCode)
	}
	var body healthBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode health response: %w", err)
	}
	if body.Status != "ok" {
		return fmt.Errorf("health status %q", body.Status)
	}
	if body.Platform != "" && body.Platform != string(spec.Platform) {
		return fmt.Errorf("port %d serves %s, not %s", spec.Port, body.Platform, spec.Platform)
	}
	return nil
}

func (r *Registry) setState(e *entry, state State, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// exits and stops recorded meanwhile win over health check results
	if !e.live() || e.info.State == StateStopping {
		return
	}
	e.info.State = state
	e.info.LastChecked = time.Now()
	e.info.Error = ""
	if err != nil {
		e.info.Error = err.Error()
	}
}

func (e *entry) live() bool {
	switch e.info.State {
	case StateStarting, StateRunning, StateUnhealthy, StateStopping:
		return true
	}
	return false
}
