// Package engines implements the per-platform operation sequences on top of
// an authenticated page. Selectors, URLs and limits come from the platform
// catalog; engines only encode the order of steps.
package engines

import (
	"context"
	"fmt"
	"strings"

	"social_automation/domain/entities"
	"social_automation/infrastructure/security"
)

// Post is the content of a create_post request
type Post struct {
	Text  string
	Media []string
	// Thread holds every part when more than one post is chained
	Thread []string
}

// Engine is the capability surface every platform implements
type Engine interface {
	Platform() entities.Platform
	Capabilities() Capabilities

	GetProfile(ctx context.Context, f *Flow, username string) (entities.ProfileObservation, error)
	CreatePost(ctx context.Context, f *Flow, post Post) (entities.PostObservation, error)
	SetLike(ctx context.Context, f *Flow, contentRef string, liked bool) (entities.ToggleObservation, error)
	SetFollow(ctx context.Context, f *Flow, username string, follow bool) (entities.ToggleObservation, error)
	Comment(ctx context.Context, f *Flow, contentRef, text string) (entities.CommentObservation, error)
	SendMessage(ctx context.Context, f *Flow, username, text string) (entities.MessageObservation, error)
	ListContent(ctx context.Context, f *Flow, username string, max int, cursor string) (entities.ListObservation, error)
	Search(ctx context.Context, f *Flow, query string, max int, cursor string) (entities.ListObservation, error)
	GetContent(ctx context.Context, f *Flow, contentRef string) (entities.ContentObservation, error)
}

// Reposter is implemented by platforms with a native share/retweet
type Reposter interface {
	SetRepost(ctx context.Context, f *Flow, contentRef string, reposted bool) (entities.ToggleObservation, error)
}

// Deleter is implemented by platforms that can remove own content
type Deleter interface {
	DeleteContent(ctx context.Context, f *Flow, contentRef string) (entities.DeleteObservation, error)
}

// Connector is implemented by platforms with connection requests
type Connector interface {
	Connect(ctx context.Context, f *Flow, username string) (entities.ToggleObservation, error)
}

// Capabilities - what an engine can do on its current catalog
type Capabilities struct {
	Platform         entities.Platform    `json:"platform"`
	Version          string               `json:"version"`
	Operations       []entities.Operation `json:"operations"`
	MediaRequired    bool                 `json:"mediaRequired"`
	DMRequiresFollow bool                 `json:"dmRequiresFollow"`
	Modes            map[string]string    `json:"modes,omitempty"`
}

// New - engine for the platform named in cfg
func New(cfg *entities.PlatformConfig) (Engine, error) {
	base := Base{cfg: cfg}
	switch cfg.Platform {
	case entities.PlatformTwitter:
		return &Twitter{Base: base}, nil
	case entities.PlatformInstagram:
		return &Instagram{Base: base}, nil
	case entities.PlatformTikTok:
		return &TikTok{Base: base}, nil
	case entities.PlatformFacebook:
		return &Facebook{Base: base}, nil
	case entities.PlatformLinkedIn:
		return &LinkedIn{Base: base}, nil
	}
	return nil, fmt.Errorf("no engine for platform %q", cfg.Platform)
}

// Implements - whether e has the code path for op, regardless of catalog
func Implements(e Engine, op entities.Operation) bool {
	switch op {
	case entities.OpRepost, entities.OpUnrepost:
		_, ok := e.(Reposter)
		return ok
	case entities.OpDeleteContent:
		_, ok := e.(Deleter)
		return ok
	case entities.OpConnect:
		_, ok := e.(Connector)
		return ok
	}
	return true
}

func capabilities(e Engine, cfg *entities.PlatformConfig) Capabilities {
	c := Capabilities{
		Platform:         cfg.Platform,
		Version:          cfg.Version,
		MediaRequired:    cfg.Limits.MediaRequired,
		DMRequiresFollow: cfg.Limits.DMRequiresFollow,
		Modes:            make(map[string]string),
	}
	for _, op := range cfg.Operations {
		if Implements(e, op) {
			c.Operations = append(c.Operations, op)
			c.Modes[string(op)] = string(cfg.ModeFor(op))
		}
	}
	return c
}

// Execute - dispatches a validated request to the engine
func Execute(ctx context.Context, e Engine, f *Flow, req entities.Request) (entities.Observation, error) {
	cfg := f.Config()
	username := entities.NormalizeUsername(req.Param(entities.ParamUsername))
	contentRef := req.Param(entities.ParamContentID, entities.ParamPostURL)
	text := req.Param(entities.ParamText, entities.ParamCaption)
	cursor := req.Param(entities.ParamCursor)

	switch req.Operation {
	case entities.OpGetProfile:
		return e.GetProfile(ctx, f, username)

	case entities.OpCreatePost:
		post := Post{Text: text, Media: security.MediaPaths(req)}
		if thread := req.Param(entities.ParamThread); thread != "" {
			post.Thread = security.SplitThread(thread)
			if post.Text == "" && len(post.Thread) > 0 {
				post.Text = post.Thread[0]
			}
		}
		return e.CreatePost(ctx, f, post)

	case entities.OpLike, entities.OpUnlike:
		return e.SetLike(ctx, f, contentRef, req.Operation == entities.OpLike)

	case entities.OpFollow, entities.OpUnfollow:
		return e.SetFollow(ctx, f, username, req.Operation == entities.OpFollow)

	case entities.OpComment:
		return e.Comment(ctx, f, contentRef, text)

	case entities.OpSendMessage:
		return e.SendMessage(ctx, f, username, text)

	case entities.OpListContent:
		max, err := req.IntParam(entities.ParamMaxResults, cfg.Limits.DefaultResults)
		if err != nil {
			return nil, entities.Validation("%v", err)
		}
		return e.ListContent(ctx, f, username, max, cursor)

	case entities.OpSearch:
		max, err := req.IntParam(entities.ParamMaxResults, cfg.Limits.DefaultResults)
		if err != nil {
			return nil, entities.Validation("%v", err)
		}
		return e.Search(ctx, f, req.Param(entities.ParamQuery), max, cursor)

	case entities.OpGetContent:
		return e.GetContent(ctx, f, contentRef)

	case entities.OpRepost, entities.OpUnrepost:
		if r, ok := e.(Reposter); ok {
			return r.SetRepost(ctx, f, contentRef, req.Operation == entities.OpRepost)
		}

	case entities.OpDeleteContent:
		if d, ok := e.(Deleter); ok {
			return d.DeleteContent(ctx, f, contentRef)
		}

	case entities.OpConnect:
		if c, ok := e.(Connector); ok {
			return c.Connect(ctx, f, username)
		}
	}

	return nil, entities.Validation("operation %s is not supported on %s", req.Operation, e.Platform())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
