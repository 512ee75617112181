// Package client is a Go client for a platform bridge's HTTP API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"social_automation/domain/entities"

	"github.com/go-resty/resty/v2"
)

const (
	defaultTimeout = 5 * time.Minute
	defaultPoll    = 2 * time.Second
)

// Client talks to one bridge
type Client struct {
	http *resty.Client
}

// Option customizes a Client
type Option func(*resty.Client)

// WithTimeout - per-request ceiling; operations can take minutes
func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) {
		c.SetTimeout(d)
	}
}

// WithRetries - retries on transport errors and 503 only; operation
// failures are final as far as the client is concerned
func WithRetries(n int) Option {
	return func(c *resty.Client) {
		c.SetRetryCount(n).
			SetRetryWaitTime(time.Second).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return err != nil || r.StatusCode() == http.StatusServiceUnavailable
			})
	}
}

// New - client for the bridge at baseURL, e.g. http://127.0.0.1:5002
func New(baseURL string, opts ...Option) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetHeader("Accept", "application/json")
	for _, opt := range opts {
		opt(c)
	}
	return &Client{http: c}
}

// Health is the bridge's liveness response
type Health struct {
	Status   string            `json:"status"`
	Platform entities.Platform `json:"platform"`
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	resp, err := c.http.R().SetContext(ctx).SetResult(&h).Get("/health")
	if err != nil {
		return h, err
	}
	if resp.IsError() {
		return h, fmt.Errorf("health: status %d", resp.StatusCode())
	}
	return h, nil
}

// Do - runs op with params through the generic endpoint
func (c *Client) Do(ctx context.Context, op entities.Operation, params map[string]string) (entities.Envelope, error) {
	return c.envelope(c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"operation": op, "params": params}).
		Post("/operations"))
}

func (c *Client) GetProfile(ctx context.Context, username string) (entities.Envelope, error) {
	return c.envelope(c.http.R().SetContext(ctx).
		SetPathParam("username", username).
		Get("/user/{username}"))
}

func (c *Client) ListContent(ctx context.Context, username string, max int, cursor string) (entities.Envelope, error) {
	return c.envelope(c.http.R().SetContext(ctx).
		SetPathParam("username", username).
		SetQueryParams(listParams(max, cursor)).
		Get("/user/{username}/posts"))
}

func (c *Client) Search(ctx context.Context, query string, max int, cursor string) (entities.Envelope, error) {
	return c.envelope(c.http.R().SetContext(ctx).
		SetPathParam("query", query).
		SetQueryParams(listParams(max, cursor)).
		Get("/search/{query}"))
}

func (c *Client) GetContent(ctx context.Context, contentID string) (entities.Envelope, error) {
	return c.envelope(c.http.R().SetContext(ctx).
		SetPathParam("id", contentID).
		Get("/content/{id}"))
}

func (c *Client) Like(ctx context.Context, contentID string) (entities.Envelope, error) {
	return c.Do(ctx, entities.OpLike, map[string]string{entities.ParamContentID: contentID})
}

func (c *Client) Follow(ctx context.Context, username string) (entities.Envelope, error) {
	return c.Do(ctx, entities.OpFollow, map[string]string{entities.ParamUsername: username})
}

func (c *Client) Comment(ctx context.Context, contentID, text string) (entities.Envelope, error) {
	return c.Do(ctx, entities.OpComment, map[string]string{
		entities.ParamContentID: contentID,
		entities.ParamText:      text,
	})
}

func (c *Client) SendMessage(ctx context.Context, username, text string) (entities.Envelope, error) {
	return c.Do(ctx, entities.OpSendMessage, map[string]string{
		entities.ParamUsername: username,
		entities.ParamText:     text,
	})
}

// SubmitJob - queues op; callbackURL may be empty
func (c *Client) SubmitJob(ctx context.Context, op entities.Operation, params map[string]string, callbackURL string) (entities.Task, error) {
	var task entities.Task
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]any{"operation": op, "params": params, "callbackUrl": callbackURL}).
		SetResult(&task).
		Post("/jobs")
	if err != nil {
		return task, err
	}
	if resp.StatusCode() != http.StatusAccepted {
		return task, statusError(resp)
	}
	return task, nil
}

func (c *Client) GetJob(ctx context.Context, id string) (entities.Task, error) {
	var task entities.Task
	resp, err := c.http.R().SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&task).
		Get("/jobs/{id}")
	if err != nil {
		return task, err
	}
	if resp.IsError() {
		return task, statusError(resp)
	}
	return task, nil
}

// WaitJob - polls until the task finishes or ctx is done
func (c *Client) WaitJob(ctx context.Context, id string, interval time.Duration) (entities.Task, error) {
	if interval <= 0 {
		interval = defaultPoll
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		task, err := c.GetJob(ctx, id)
		if err != nil {
			return task, err
		}
		if task.Status.Done() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Decode - re-decodes env.Data into out, e.g. a normalize.Profile
func Decode(env entities.Envelope, out any) error {
	if !env.Success {
		return EnvelopeError(env)
	}
	raw, err := json.Marshal(env.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// EnvelopeError - the failure of env as an *entities.OperationError
func EnvelopeError(env entities.Envelope) error {
	if env.Success {
		return nil
	}
	if env.Error == nil {
		return errors.New("operation failed without error body")
	}
	return &entities.OperationError{
		Kind:    env.Error.Kind,
		Message: env.Error.Message,
		Stage:   env.Error.Stage,
		Tried:   env.Error.Tried,
	}
}

// envelope - every bridge answer other than routing errors is an envelope,
// whatever the status code
func (c *Client) envelope(resp *resty.Response, err error) (entities.Envelope, error) {
	var env entities.Envelope
	if err != nil {
		return env, err
	}
	if jerr := json.Unmarshal(resp.Body(), &env); jerr != nil || (!env.Success && env.Error == nil) {
		return env, statusError(resp)
	}
	return env, nil
}

func statusError(resp *resty.Response) error {
	var env entities.Envelope
	if json.Unmarshal(resp.Body(), &env) == nil && env.Error != nil {
		return fmt.Errorf("status %d: %w", resp.StatusCode(), EnvelopeError(env))
	}
	return fmt.Errorf("unexpected status %d", resp.StatusCode())
}

func listParams(max int, cursor string) map[string]string {
	params := make(map[string]string)
	if max > 0 {
		params[entities.ParamMaxResults] = strconv.Itoa(max)
	}
	if cursor != "" {
		params[entities.ParamCursor] = cursor
	}
	return params
}
