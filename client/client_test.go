package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"social_automation/application/engines"
	"social_automation/application/jobs"
	"social_automation/application/normalize"
	"social_automation/domain/entities"
	"social_automation/infrastructure/logging"
	"social_automation/infrastructure/metrics"
	"social_automation/presentation/bridge"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct {
	mu   sync.Mutex
	last entities.Request
}

func (e *stubExecutor) Run(ctx context.Context, req entities.Request) entities.Envelope {
	e.mu.Lock()
	e.last = req
	e.mu.Unlock()

	switch req.Operation {
	case entities.OpGetProfile:
		if req.Param(entities.ParamUsername) == "ghost" {
			return entities.Fail(entities.NotFound("user ghost does not exist"))
		}
		return entities.Succeed(normalize.Profile{Username: req.Param(entities.ParamUsername), Followers: "1.2M"})
	case entities.OpListContent:
		return entities.Succeed(normalize.ContentList{
			Items:     []normalize.ContentRef{{ID: "1"}},
			Exhausted: true,
		})
	}
	return entities.Succeed(normalize.LikeResult{Liked: true, Changed: true})
}

func (e *stubExecutor) Capabilities(entities.Platform) (engines.Capabilities, error) {
	return engines.Capabilities{}, nil
}

func (e *stubExecutor) lastRequest() entities.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func newBridge(t *testing.T) (*Client, *stubExecutor) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	exec := &stubExecutor{}
	queue := jobs.NewQueue(exec, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	go queue.Run(ctx)

	srv := bridge.NewServer(bridge.Config{Platform: entities.PlatformInstagram}, exec, queue, metrics.New(), logging.Discard())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return New(ts.URL, WithTimeout(5*time.Second)), exec
}

func TestHealth(t *testing.T) {
	c, _ := newBridge(t)

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, entities.PlatformInstagram, h.Platform)
}

func TestGetProfileDecodes(t *testing.T) {
	c, _ := newBridge(t)

	env, err := c.GetProfile(context.Background(), "nasa")
	require.NoError(t, err)
	require.True(t, env.Success)

	var p normalize.Profile
	require.NoError(t, Decode(env, &p))
	assert.Equal(t, "nasa", p.Username)
	assert.Equal(t, "1.2M", p.Followers)
}

func TestFailureIsAnEnvelopeNotAnError(t *testing.T) {
	c, _ := newBridge(t)

	env, err := c.GetProfile(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, env.Success)

	var p normalize.Profile
	err = Decode(env, &p)
	var opErr *entities.OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, entities.KindNotFound, opErr.Kind)
}

func TestListParams(t *testing.T) {
	c, exec := newBridge(t)

	env, err := c.ListContent(context.Background(), "nasa", 5, "abc")
	require.NoError(t, err)
	require.True(t, env.Success)

	req := exec.lastRequest()
	assert.Equal(t, "5", req.Params[entities.ParamMaxResults])
	assert.Equal(t, "abc", req.Params[entities.ParamCursor])

	var list normalize.ContentList
	require.NoError(t, Decode(env, &list))
	assert.True(t, list.Exhausted)
	assert.Len(t, list.Items, 1)
}

func TestGenericOperation(t *testing.T) {
	c, exec := newBridge(t)

	env, err := c.Like(context.Background(), "C1a2b3")
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.Equal(t, entities.OpLike, exec.lastRequest().Operation)
	assert.Equal(t, "C1a2b3", exec.lastRequest().Params[entities.ParamContentID])
}

func TestJobRoundTrip(t *testing.T) {
	c, _ := newBridge(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	task, err := c.SubmitJob(ctx, entities.OpFollow, map[string]string{entities.ParamUsername: "nasa"}, "")
	require.NoError(t, err)
	require.NotEmpty(t, task.ID)

	done, err := c.WaitJob(ctx, task.ID, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, entities.TaskStatusCompleted, done.Status)
	require.NotNil(t, done.Result)
	assert.True(t, done.Result.Success)

	_, err = c.GetJob(ctx, "missing")
	assert.Error(t, err)
}
