package engines

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"social_automation/domain/entities"
)

var repostSwitch = Switch{
	Activate:          "repost_button",
	ConfirmActivate:   "repost_confirm",
	Deactivate:        "unrepost_button",
	ConfirmDeactivate: "unrepost_confirm",
}

// Twitter adds threads, reposts and deletion to the shared flows
type Twitter struct {
	Base
}

func (t *Twitter) Capabilities() Capabilities {
	return capabilities(t, t.cfg)
}

// CreatePost - a single tweet, or a thread where every part replies to the
// previous one
func (t *Twitter) CreatePost(ctx context.Context, f *Flow, post Post) (entities.PostObservation, error) {
	if len(post.Thread) < 2 {
		return t.publish(ctx, f, post.Text, post.Media)
	}

	head, err := t.publish(ctx, f, post.Thread[0], post.Media)
	if err != nil {
		return head, err
	}
	obs := entities.PostObservation{ID: head.ID, URL: head.URL, Thread: []string{head.ID}}
	parent := head.ID
	for _, part := range post.Thread[1:] {
		id, err := t.reply(ctx, f, parent, part)
		if err != nil {
			return obs, partialThread(err, obs.Thread)
		}
		obs.Thread = append(obs.Thread, id)
		parent = id
	}
	return obs, nil
}

func (t *Twitter) reply(ctx context.Context, f *Flow, parentID, text string) (string, error) {
	if err := f.Navigate(ctx, f.Config().ContentURL(parentID)); err != nil {
		return "", err
	}
	if err := f.Fill(ctx, "reply_input", text); err != nil {
		return "", err
	}
	if err := f.Click(ctx, "reply_submit"); err != nil {
		return "", err
	}
	if err := f.Verify(ctx, "post_confirmation"); err != nil {
		return "", err
	}

	href := f.Attr(ctx, "latest_content_link", "href")
	if href == "" {
		return "", entities.Blocked("reply to %s was posted but its id could not be read", parentID).WithStage(entities.StageStateVerified)
	}
	return entities.ContentIDFromURL(href), nil
}

// partialThread - keeps the ids already published visible in the failure
func partialThread(err error, posted []string) error {
	opErr := *entities.AsOperationError(err)
	opErr.Message = fmt.Sprintf("%s; thread stopped after %d posts (%s)", opErr.Message, len(posted), strings.Join(posted, ","))
	return &opErr
}

// SetRepost - idempotent retweet/undo retweet through the confirm menu
func (t *Twitter) SetRepost(ctx context.Context, f *Flow, contentRef string, reposted bool) (entities.ToggleObservation, error) {
	op := entities.OpUnrepost
	if reposted {
		op = entities.OpRepost
	}
	obs := entities.ToggleObservation{Operation: op, Target: entities.ContentIDFromURL(contentRef)}

	if err := f.Navigate(ctx, contentURL(f.Config(), contentRef)); err != nil {
		return obs, err
	}
	changed, err := f.Flip(ctx, repostSwitch, reposted)
	if err != nil {
		return obs, err
	}
	obs.State, obs.Changed = reposted, changed
	return obs, nil
}

// DeleteContent - caret menu, Delete, confirm
func (t *Twitter) DeleteContent(ctx context.Context, f *Flow, contentRef string) (entities.DeleteObservation, error) {
	obs := entities.DeleteObservation{ContentID: entities.ContentIDFromURL(contentRef)}

	if err := f.Navigate(ctx, contentURL(f.Config(), contentRef)); err != nil {
		return obs, err
	}
	for _, step := range []string{"content_menu", "delete_menu_item", "delete_confirm"} {
		if err := f.Click(ctx, step); err != nil {
			return obs, err
		}
	}
	if err := f.VerifyGone(ctx, "content_menu"); err != nil {
		return obs, err
	}
	return obs, nil
}

// GetContent - the author link holds the handle; its text is the display name
func (t *Twitter) GetContent(ctx context.Context, f *Flow, contentRef string) (entities.ContentObservation, error) {
	obs, err := t.Base.GetContent(ctx, f, contentRef)
	if err != nil {
		return obs, err
	}
	if href := f.Attr(ctx, "content_author", "href"); href != "" {
		if u, err := url.Parse(href); err == nil {
			if handle := strings.Trim(u.Path, "/"); handle != "" && !strings.Contains(handle, "/") {
				obs.Author = handle
			}
		}
	}
	return obs, nil
}
