package security

import (
	"context"
	"os"
	"strings"
	"unicode/utf8"

	"social_automation/domain/entities"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
)

// ThreadDelimiter separates tweets in a thread parameter
const ThreadDelimiter = "---"

// ConfigSource - platform configuration lookup
type ConfigSource interface {
	Get(platform entities.Platform) (*entities.PlatformConfig, error)
}

// Validator rejects bad input before any browser session is opened
type Validator struct {
	configs ConfigSource
	logger  *logrus.Logger
}

func NewValidator(configs ConfigSource, logger *logrus.Logger) *Validator {
	return &Validator{configs: configs, logger: logger}
}

// Validate - returns a ValidationError for the first bad parameter
func (v *Validator) Validate(ctx context.Context, req entities.Request) error {
	if _, err := entities.ParsePlatform(string(req.Platform)); err != nil {
		return entities.Validation("%v", err)
	}
	if _, err := entities.ParseOperation(string(req.Operation)); err != nil {
		return entities.Validation("%v", err)
	}
	cfg, err := v.configs.Get(req.Platform)
	if err != nil {
		return entities.Validation("%v", err)
	}
	if !cfg.Supports(req.Operation) {
		return entities.Validation("operation %s is not supported on %s", req.Operation, req.Platform)
	}

	if v.IsDestructive(req.Operation) {
		v.logger.WithFields(logrus.Fields{
			"platform":  req.Platform,
			"operation": req.Operation,
		}).Warn("Destructive operation requested")
	}

	switch req.Operation {
	case entities.OpGetProfile, entities.OpFollow, entities.OpUnfollow, entities.OpConnect:
		return validateUsername(req)

	case entities.OpListContent:
		if err := validateUsername(req); err != nil {
			return err
		}
		return validateMaxResults(req, cfg)

	case entities.OpSearch:
		if req.Param(entities.ParamQuery) == "" {
			return entities.Validation("query is required")
		}
		return validateMaxResults(req, cfg)

	case entities.OpLike, entities.OpUnlike, entities.OpGetContent,
		entities.OpRepost, entities.OpUnrepost, entities.OpDeleteContent:
		return validateContentRef(req)

	case entities.OpComment:
		if err := validateContentRef(req); err != nil {
			return err
		}
		return validateText(req.Param(entities.ParamText), "comment", cfg.Limits.CommentMaxLength)

	case entities.OpSendMessage:
		if err := validateUsername(req); err != nil {
			return err
		}
		return validateText(req.Param(entities.ParamText), "message", cfg.Limits.MessageMaxLength)

	case entities.OpCreatePost:
		return validatePost(req, cfg)
	}
	return nil
}

// IsDestructive - operations that remove content
func (v *Validator) IsDestructive(op entities.Operation) bool {
	return op == entities.OpDeleteContent
}

func validateUsername(req entities.Request) error {
	username := entities.NormalizeUsername(req.Param(entities.ParamUsername))
	if username == "" {
		return entities.Validation("username is required")
	}
	if strings.ContainsAny(username, " \t\n/?#") {
		return entities.Validation("invalid username %q", username)
	}
	return nil
}

func validateContentRef(req entities.Request) error {
	ref := req.Param(entities.ParamContentID, entities.ParamPostURL)
	if ref == "" {
		return entities.Validation("content_id or post_url is required")
	}
	if entities.ContentIDFromURL(ref) == "" {
		return entities.Validation("cannot extract a content id from %q", ref)
	}
	return nil
}

func validateText(text, what string, max int) error {
	if text == "" {
		return entities.Validation("%s text is required", what)
	}
	if max > 0 && utf8.RuneCountInString(text) > max {
		return entities.Validation("%s text is %d characters, limit is %d", what, utf8.RuneCountInString(text), max)
	}
	return nil
}

func validateMaxResults(req entities.Request, cfg *entities.PlatformConfig) error {
	n, err := req.IntParam(entities.ParamMaxResults, cfg.Limits.DefaultResults)
	if err != nil {
		return entities.Validation("%v", err)
	}
	if n < 1 {
		return entities.Validation("max_results must be at least 1")
	}
	if cfg.Limits.MaxResults > 0 && n > cfg.Limits.MaxResults {
		return entities.Validation("max_results %d exceeds limit %d", n, cfg.Limits.MaxResults)
	}
	return nil
}

func validatePost(req entities.Request, cfg *entities.PlatformConfig) error {
	max := cfg.Limits.PostMaxLength

	if thread := req.Param(entities.ParamThread); thread != "" {
		parts := SplitThread(thread)
		if len(parts) == 0 {
			return entities.Validation("thread has no posts")
		}
		for i, p := range parts {
			if max > 0 && utf8.RuneCountInString(p) > max {
				return entities.Validation("thread post %d is %d characters, limit is %d", i+1, utf8.RuneCountInString(p), max)
			}
		}
	} else {
		text := req.Param(entities.ParamText, entities.ParamCaption)
		if text == "" && req.Param(entities.ParamMediaPath) == "" {
			return entities.Validation("text or media_path is required")
		}
		if max > 0 && utf8.RuneCountInString(text) > max {
			return entities.Validation("post text is %d characters, limit is %d", utf8.RuneCountInString(text), max)
		}
	}

	paths := MediaPaths(req)
	if cfg.Limits.MediaRequired && len(paths) == 0 {
		return entities.Validation("%s posts require media_path", cfg.Platform)
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			return entities.Validation("media file %s does not exist", p)
		}
		mime, err := mimetype.DetectFile(p)
		if err != nil {
			return entities.Validation("cannot read media file %s", p)
		}
		if !strings.HasPrefix(mime.String(), "image/") && !strings.HasPrefix(mime.String(), "video/") {
			return entities.Validation("media file %s has unsupported type %s", p, mime.String())
		}
	}
	return nil
}

// MediaPaths - comma separated media_path values
func MediaPaths(req entities.Request) []string {
	raw := req.Param(entities.ParamMediaPath)
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SplitThread - splits a thread parameter into trimmed non-empty posts
func SplitThread(thread string) []string {
	var out []string
	for _, part := range strings.Split(thread, ThreadDelimiter) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
