package bridge

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"social_automation/application/jobs"
	"social_automation/domain/entities"

	"github.com/gin-gonic/gin"
)

type operationBody struct {
	Operation   string         `json:"operation" binding:"required"`
	Platform    string         `json:"platform"`
	Params      map[string]any `json:"params"`
	CallbackURL string         `json:"callbackUrl"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"platform": s.cfg.Platform,
	})
}

func (s *Server) capabilities(c *gin.Context) {
	caps, err := s.exec.Capabilities(s.cfg.Platform)
	if err != nil {
		s.fail(c, entities.Validation("%v", err))
		return
	}
	c.JSON(http.StatusOK, entities.Succeed(caps))
}

// operation - the generic entry point: {operation, platform?, params}
func (s *Server) operation(c *gin.Context) {
	req, _, err := s.bindOperation(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.run(c, req)
}

func (s *Server) getProfile(c *gin.Context) {
	s.run(c, s.request(entities.OpGetProfile, map[string]string{
		entities.ParamUsername: c.Param("username"),
	}))
}

func (s *Server) listContent(c *gin.Context) {
	params := queryParams(c, entities.ParamMaxResults, entities.ParamCursor)
	params[entities.ParamUsername] = c.Param("username")
	s.run(c, s.request(entities.OpListContent, params))
}

func (s *Server) search(c *gin.Context) {
	params := queryParams(c, entities.ParamMaxResults, entities.ParamCursor)
	params[entities.ParamQuery] = c.Param("query")
	s.run(c, s.request(entities.OpSearch, params))
}

func (s *Server) getContent(c *gin.Context) {
	s.run(c, s.request(entities.OpGetContent, map[string]string{
		entities.ParamContentID: c.Param("id"),
	}))
}

// convenience - POST routes whose JSON body is the parameter map
func (s *Server) convenience(op entities.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			s.fail(c, entities.Validation("invalid JSON body: %v", err))
			return
		}
		params, err := stringParams(body)
		if err != nil {
			s.fail(c, err)
			return
		}
		s.run(c, s.request(op, params))
	}
}

func (s *Server) submitJob(c *gin.Context) {
	req, callbackURL, err := s.bindOperation(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	task, err := s.jobs.Submit(req, callbackURL)
	if err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			c.JSON(http.StatusServiceUnavailable, entities.Fail(entities.Transient(err, "job queue is full")))
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, task)
}

func (s *Server) getJob(c *gin.Context) {
	task, ok := s.jobs.Get(c.Param("id"))
	if !ok {
		s.fail(c, entities.NotFound("no job %s", c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) run(c *gin.Context, req entities.Request) {
	if req.ID == "" {
		req.ID = requestID(c)
	}
	env := s.exec.Run(c.Request.Context(), req)
	c.JSON(HTTPStatus(env), env)
}

func (s *Server) fail(c *gin.Context, err error) {
	env := entities.Fail(err)
	env.Meta = &entities.Meta{RequestID: requestID(c), Platform: s.cfg.Platform}
	c.JSON(HTTPStatus(env), env)
}

func (s *Server) request(op entities.Operation, params map[string]string) entities.Request {
	return entities.Request{Operation: op, Platform: s.cfg.Platform, Params: params}
}

// bindOperation - decodes an operation body; a bridge only serves its own
// platform
func (s *Server) bindOperation(c *gin.Context) (entities.Request, string, error) {
	var body operationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		return entities.Request{}, "", entities.Validation("invalid operation body: %v", err)
	}
	op, err := entities.ParseOperation(body.Operation)
	if err != nil {
		return entities.Request{}, "", entities.Validation("%v", err)
	}
	if body.Platform != "" && !strings.EqualFold(body.Platform, string(s.cfg.Platform)) {
		return entities.Request{}, "", entities.Validation("this bridge serves %s, not %s", s.cfg.Platform, body.Platform)
	}
	params, err := stringParams(body.Params)
	if err != nil {
		return entities.Request{}, "", err
	}

	req := s.request(op, params)
	req.ID = requestID(c)
	return req, body.CallbackURL, nil
}

func queryParams(c *gin.Context, keys ...string) map[string]string {
	out := make(map[string]string)
	for _, k := range keys {
		if v := c.Query(k); v != "" {
			out[k] = v
		}
	}
	return out
}

// stringParams - flattens JSON values; lists become comma separated
func stringParams(in map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				s, ok := item.(string)
				if !ok {
					return nil, entities.Validation("%s must be a list of strings", k)
				}
				parts = append(parts, s)
			}
			out[k] = strings.Join(parts, ",")
		default:
			return nil, entities.Validation("unsupported value for %s", k)
		}
	}
	return out, nil
}
