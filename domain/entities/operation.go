package entities

import (
	"fmt"
	"strconv"
	"strings"
)

// Operation names one request type the bridge understands
type Operation string

const (
	OpGetProfile    Operation = "get_profile"
	OpCreatePost    Operation = "create_post"
	OpLike          Operation = "like"
	OpUnlike        Operation = "unlike"
	OpFollow        Operation = "follow"
	OpUnfollow      Operation = "unfollow"
	OpComment       Operation = "comment"
	OpSendMessage   Operation = "send_message"
	OpListContent   Operation = "list_content"
	OpSearch        Operation = "search"
	OpGetContent    Operation = "get_content"
	OpRepost        Operation = "repost"
	OpUnrepost      Operation = "unrepost"
	OpDeleteContent Operation = "delete_content"
	OpConnect       Operation = "connect"
)

// Operations - every operation in a stable order
func Operations() []Operation {
	return []Operation{
		OpGetProfile, OpCreatePost, OpLike, OpUnlike, OpFollow, OpUnfollow,
		OpComment, OpSendMessage, OpListContent, OpSearch,
		OpGetContent, OpRepost, OpUnrepost, OpDeleteContent, OpConnect,
	}
}

// ParseOperation - validates an operation name
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Operations() {
		if op == known {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

// ReadOnly - operations that never change platform state
func (o Operation) ReadOnly() bool {
	switch o {
	case OpGetProfile, OpListContent, OpSearch, OpGetContent:
		return true
	}
	return false
}

// Parameter keys accepted in Request.Params
const (
	ParamUsername   = "username"
	ParamText       = "text"
	ParamCaption    = "caption"
	ParamMediaPath  = "media_path"
	ParamContentID  = "content_id"
	ParamPostURL    = "post_url"
	ParamMaxResults = "max_results"
	ParamQuery      = "query"
	ParamThread     = "thread"
	ParamCursor     = "cursor"
)

// Request is the inbound operation request
type Request struct {
	ID        string            `json:"id,omitempty"`
	Operation Operation         `json:"operation"`
	Platform  Platform          `json:"platform"`
	Params    map[string]string `json:"params"`
}

// Param - returns the first non-empty value among keys
func (r Request) Param(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r.Params[k]); v != "" {
			return v
		}
	}
	return ""
}

// IntParam - parses an integer parameter, falling back to def
func (r Request) IntParam(key string, def int) (int, error) {
	v := r.Param(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

// NormalizeUsername - strips whitespace and a leading '@'
func NormalizeUsername(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "@")
	return strings.TrimSpace(s)
}

// ContentIDFromURL - extracts a content id from a platform URL path
// (/p/<id>, /status/<id>, /video/<id>, /feed/update/urn:li:activity:<id>) or returns
// the input unchanged when it is already a bare id.
func ContentIDFromURL(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "/") {
		return strings.TrimPrefix(s, "urn:li:activity:")
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	segments := strings.Split(strings.Trim(s, "/"), "/")
	for i := 0; i < len(segments)-1; i++ {
		switch segments[i] {
		case "p", "reel", "status", "video", "posts", "update":
			return strings.TrimPrefix(segments[i+1], "urn:li:activity:")
		}
	}
	return strings.TrimPrefix(segments[len(segments)-1], "urn:li:activity:")
}
