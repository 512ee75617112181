package jobs

import (
	"context"
	"fmt"
	"time"

	"social_automation/application/normalize"

	"github.com/go-resty/resty/v2"
)

// HTTPNotifier posts callback payloads as JSON
type HTTPNotifier struct {
	client *resty.Client
}

// NewHTTPNotifier - creates notifier with bounded retries on transport
// errors and 5xx responses
func NewHTTPNotifier(timeout time.Duration, retries int) *HTTPNotifier {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	return &HTTPNotifier{client: client}
}

func (n *HTTPNotifier) Notify(ctx context.Context, url string, payload normalize.CallbackPayload) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(url)
	if err != nil {
		return fmt.Errorf("callback to %s: %w", url, err)
	}
	if resp.IsError() {
		return fmt.Errorf("callback to %s: status %d", url, resp.StatusCode())
	}
	return nil
}
