package security

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"social_automation/domain/entities"
	"social_automation/infrastructure/catalog"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallest valid PNG
var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0a, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}

func newValidator(t *testing.T) *Validator {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewValidator(catalog.MustLoadEmbedded(), l)
}

func req(p entities.Platform, op entities.Operation, params map[string]string) entities.Request {
	return entities.Request{Platform: p, Operation: op, Params: params}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(image, pngBytes, 0644))
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("plain text"), 0644))

	tests := []struct {
		name    string
		req     entities.Request
		wantErr string
	}{
		{"profile ok", req(entities.PlatformInstagram, entities.OpGetProfile, map[string]string{"username": "@nasa"}), ""},
		{"profile empty", req(entities.PlatformInstagram, entities.OpGetProfile, map[string]string{"username": "  @ "}), "username is required"},
		{"profile bad chars", req(entities.PlatformInstagram, entities.OpGetProfile, map[string]string{"username": "a/b"}), "invalid username"},
		{"unknown platform", req("myspace", entities.OpGetProfile, nil), "unknown platform"},
		{"unknown operation", req(entities.PlatformTwitter, "poke", nil), "unknown operation"},
		{"unsupported", req(entities.PlatformTwitter, entities.OpSendMessage, map[string]string{"username": "a", "text": "hi"}), "not supported"},
		{"like needs ref", req(entities.PlatformInstagram, entities.OpLike, nil), "content_id or post_url"},
		{"like by url", req(entities.PlatformInstagram, entities.OpLike, map[string]string{"post_url": "https://www.instagram.com/p/ABC/"}), ""},
		{"comment text", req(entities.PlatformInstagram, entities.OpComment, map[string]string{"content_id": "ABC"}), "comment text is required"},
		{"tweet too long", req(entities.PlatformTwitter, entities.OpCreatePost, map[string]string{"text": strings.Repeat("x", 281)}), "limit is 280"},
		{"tweet at limit", req(entities.PlatformTwitter, entities.OpCreatePost, map[string]string{"text": strings.Repeat("é", 280)}), ""},
		{"thread part too long", req(entities.PlatformTwitter, entities.OpCreatePost, map[string]string{"thread": "one\n---\n" + strings.Repeat("x", 300)}), "thread post 2"},
		{"instagram needs media", req(entities.PlatformInstagram, entities.OpCreatePost, map[string]string{"caption": "hi"}), "require media_path"},
		{"media missing", req(entities.PlatformInstagram, entities.OpCreatePost, map[string]string{"caption": "hi", "media_path": filepath.Join(dir, "nope.jpg")}), "does not exist"},
		{"media wrong type", req(entities.PlatformInstagram, entities.OpCreatePost, map[string]string{"caption": "hi", "media_path": notes}), "unsupported type"},
		{"media ok", req(entities.PlatformInstagram, entities.OpCreatePost, map[string]string{"caption": "hi", "media_path": image}), ""},
		{"max results range", req(entities.PlatformTikTok, entities.OpListContent, map[string]string{"username": "a", "max_results": "500"}), "exceeds limit"},
		{"max results nan", req(entities.PlatformTikTok, entities.OpListContent, map[string]string{"username": "a", "max_results": "many"}), "must be an integer"},
		{"search query", req(entities.PlatformInstagram, entities.OpSearch, nil), "query is required"},
		{"dm message length", req(entities.PlatformInstagram, entities.OpSendMessage, map[string]string{"username": "a", "text": strings.Repeat("x", 1001)}), "limit is 1000"},
		{"connect ok", req(entities.PlatformLinkedIn, entities.OpConnect, map[string]string{"username": "jane-doe"}), ""},
	}

	v := newValidator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(context.Background(), tt.req)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, entities.KindValidation, entities.KindOf(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSplitThread(t *testing.T) {
	assert.Equal(t, []string{"first", "second"}, SplitThread("first\n---\n\nsecond\n---\n  "))
	assert.Nil(t, SplitThread("---"))
}

func TestMediaPaths(t *testing.T) {
	r := req(entities.PlatformFacebook, entities.OpCreatePost, map[string]string{"media_path": "a.jpg, b.png,,"})
	assert.Equal(t, []string{"a.jpg", "b.png"}, MediaPaths(r))
}
