package engines

import (
	"context"
	"regexp"
	"strings"
	"time"

	"social_automation/domain/entities"
	"social_automation/infrastructure/extract"
)

var (
	likeSwitch   = Switch{Activate: "like_button", Deactivate: "unlike_button"}
	followSwitch = Switch{Activate: "follow_button", Deactivate: "following_button", ConfirmDeactivate: "unfollow_confirm"}
)

// countToken matches display counts such as "1,234", "1.2K" or "3 M"
var countToken = regexp.MustCompile(`\d[\d.,]*\s?[KMBkmb]?`)

// Base implements the operation sequences shared by every platform. The
// differences between platforms live in the catalog; platform engines only
// override steps whose order differs.
type Base struct {
	cfg *entities.PlatformConfig
}

func (b *Base) Platform() entities.Platform {
	return b.cfg.Platform
}

// contentURL - page for a content id or URL
func contentURL(cfg *entities.PlatformConfig, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return cfg.ContentURL(entities.ContentIDFromURL(ref))
}

// GetProfile - reads the profile header, falling back to meta tags for
// counts the live DOM does not expose
func (b *Base) GetProfile(ctx context.Context, f *Flow, username string) (entities.ProfileObservation, error) {
	cfg := f.Config()
	profileURL := cfg.ProfileURL(username)

	if err := f.Navigate(ctx, profileURL); err != nil {
		return entities.ProfileObservation{}, err
	}
	if _, err := f.Locate(ctx, "profile_header"); err != nil {
		return entities.ProfileObservation{}, err
	}

	obs := entities.ProfileObservation{
		Username:  username,
		URL:       profileURL,
		Name:      f.Text(ctx, "profile_name"),
		Bio:       f.Text(ctx, "profile_bio"),
		Followers: readCount(ctx, f, "profile_followers"),
		Following: readCount(ctx, f, "profile_following"),
		Posts:     readCount(ctx, f, "profile_posts"),
		Likes:     readCount(ctx, f, "profile_likes"),
	}
	fillProfileFromMeta(ctx, f, &obs)

	f.Observed(ctx)
	return obs, nil
}

// readCount - display count of name; a title attribute holds the exact
// figure on some platforms while the text is abbreviated
func readCount(ctx context.Context, f *Flow, name string) string {
	if title := f.Attr(ctx, name, "title"); countToken.MatchString(title) {
		return countToken.FindString(title)
	}
	return strings.TrimSpace(countToken.FindString(f.Text(ctx, name)))
}

func fillProfileFromMeta(ctx context.Context, f *Flow, obs *entities.ProfileObservation) {
	snap, err := f.Snapshot(ctx)
	if err != nil || snap == nil {
		return
	}

	counts := extract.ProfileCounts(snap.Description())
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = counts[key]
		}
	}
	fill(&obs.Followers, "followers")
	fill(&obs.Following, "following")
	fill(&obs.Posts, "posts")
	fill(&obs.Likes, "likes")
	if obs.Following == "" {
		obs.Following = counts["connections"]
	}
	if obs.Name == "" {
		obs.Name = extract.AuthorFromTitle(snap.Meta("og:title"))
	}
}

// CreatePost - compose, attach, caption, submit, confirm
func (b *Base) CreatePost(ctx context.Context, f *Flow, post Post) (entities.PostObservation, error) {
	return b.publish(ctx, f, post.Text, post.Media)
}

func (b *Base) publish(ctx context.Context, f *Flow, text string, media []string) (entities.PostObservation, error) {
	cfg := f.Config()
	var obs entities.PostObservation

	// without a link to the new post the id is read back from the own
	// profile: whatever is listed there now is not the new post
	var own ownContent
	if !cfg.HasTarget("latest_content_link") {
		var err error
		if own, err = b.ownContent(ctx, f); err != nil {
			return obs, err
		}
	}

	if err := f.Navigate(ctx, cfg.URLs.Compose); err != nil {
		return obs, err
	}
	if cfg.HasTarget("compose_open") {
		if err := f.Click(ctx, "compose_open"); err != nil {
			return obs, err
		}
	}
	if cfg.HasTarget("compose_source") {
		if _, err := f.ClickIfPresent(ctx, "compose_source", cfg.Timeouts.Verify/2); err != nil {
			return obs, err
		}
	}

	if len(media) > 0 {
		if err := f.Attach(ctx, "media_input", media); err != nil {
			return obs, err
		}
		// crop and filter screens precede the caption on some platforms
		if cfg.HasTarget("next_button") {
			for i := 0; i < 2; i++ {
				clicked, err := f.ClickIfPresent(ctx, "next_button", cfg.Timeouts.Verify)
				if err != nil {
					return obs, err
				}
				if !clicked {
					break
				}
			}
		}
	}

	if text != "" {
		if err := f.Fill(ctx, "caption_input", text); err != nil {
			return obs, err
		}
	}
	if err := f.Click(ctx, "submit_post"); err != nil {
		return obs, err
	}

	if cfg.HasTarget("post_confirmation") {
		if err := f.Verify(ctx, "post_confirmation"); err != nil {
			return obs, err
		}
	} else if err := f.VerifyGone(ctx, "submit_post"); err != nil {
		return obs, err
	}

	link := f.Attr(ctx, "latest_content_link", "href")
	if link != "" {
		link = f.absolute(link)
	} else if own.profile != "" {
		var err error
		if link, err = b.newContent(ctx, f, own); err != nil {
			return obs, err
		}
	}
	if link == "" || entities.ContentIDFromURL(link) == "" {
		return obs, entities.Blocked("post was submitted but its id could not be read").WithStage(entities.StageStateVerified)
	}
	obs.URL = link
	obs.ID = entities.ContentIDFromURL(link)
	return obs, nil
}

// ownContent is the signed-in account's profile and the content listed on
// it before a post
type ownContent struct {
	profile string
	before  map[string]bool
}

func (b *Base) ownContent(ctx context.Context, f *Flow) (ownContent, error) {
	cfg := f.Config()
	own := ownContent{profile: cfg.URLs.Self, before: make(map[string]bool)}

	if own.profile == "" {
		if err := f.Navigate(ctx, cfg.URLs.Home); err != nil {
			return own, err
		}
		el, err := f.Locate(ctx, "own_profile_link")
		if err != nil {
			return own, err
		}
		href, err := el.Attribute(ctx, "href")
		if err != nil || href == "" {
			return own, entities.UnknownUI("own_profile_link", []string{"href"}).WithStage(entities.StageTargetLocated)
		}
		own.profile = f.absolute(href)
	}

	if err := f.Navigate(ctx, own.profile); err != nil {
		return own, err
	}
	// an account with no posts yet shows no links at all
	f.WaitFor(ctx, "content_link", cfg.Timeouts.Verify)
	for _, link := range f.Links(ctx, "content_link") {
		own.before[entities.ContentIDFromURL(link)] = true
	}
	return own, ctx.Err()
}

// newContent - first link on the own profile that was not there before
func (b *Base) newContent(ctx context.Context, f *Flow, own ownContent) (string, error) {
	if err := f.Navigate(ctx, own.profile); err != nil {
		return "", err
	}
	d := f.Config().Timeouts.Verify
	deadline := time.Now().Add(d)
	for {
		for _, link := range f.Links(ctx, "content_link") {
			if id := entities.ContentIDFromURL(link); id != "" && !own.before[id] {
				return link, nil
			}
		}
		if time.Now().After(deadline) {
			return "", nil
		}
		if err := f.Pause(ctx, pollInterval(d)); err != nil {
			return "", err
		}
	}
}

// SetLike - idempotent like/unlike
func (b *Base) SetLike(ctx context.Context, f *Flow, contentRef string, liked bool) (entities.ToggleObservation, error) {
	op := entities.OpUnlike
	if liked {
		op = entities.OpLike
	}
	obs := entities.ToggleObservation{Operation: op, Target: entities.ContentIDFromURL(contentRef)}

	if err := f.Navigate(ctx, contentURL(f.Config(), contentRef)); err != nil {
		return obs, err
	}
	changed, err := f.Flip(ctx, likeSwitch, liked)
	if err != nil {
		return obs, err
	}
	obs.State, obs.Changed = liked, changed
	return obs, nil
}

// SetFollow - idempotent follow/unfollow, confirming the unfollow dialog
func (b *Base) SetFollow(ctx context.Context, f *Flow, username string, follow bool) (entities.ToggleObservation, error) {
	return b.follow(ctx, f, username, follow, followSwitch)
}

func (b *Base) follow(ctx context.Context, f *Flow, username string, follow bool, sw Switch) (entities.ToggleObservation, error) {
	op := entities.OpUnfollow
	if follow {
		op = entities.OpFollow
	}
	obs := entities.ToggleObservation{Operation: op, Target: username}

	if err := f.Navigate(ctx, f.Config().ProfileURL(username)); err != nil {
		return obs, err
	}
	changed, err := f.Flip(ctx, sw, follow)
	if err != nil {
		return obs, err
	}
	obs.State, obs.Changed = follow, changed
	return obs, nil
}

// Comment - opens the composer when needed, submits and waits for one more
// comment carrying the text
func (b *Base) Comment(ctx context.Context, f *Flow, contentRef, text string) (entities.CommentObservation, error) {
	cfg := f.Config()
	obs := entities.CommentObservation{ContentID: entities.ContentIDFromURL(contentRef), Text: text}

	if err := f.Navigate(ctx, contentURL(cfg, contentRef)); err != nil {
		return obs, err
	}
	if cfg.HasTarget("comment_open") {
		if err := f.Click(ctx, "comment_open"); err != nil {
			return obs, err
		}
	}
	before := f.CountText(ctx, "comment_item", text)
	if err := f.Fill(ctx, "comment_input", text); err != nil {
		return obs, err
	}
	if err := f.Submit(ctx, "comment_input", "comment_submit"); err != nil {
		return obs, err
	}
	if err := f.VerifyPosted(ctx, "comment_input", "comment_item", text, before); err != nil {
		return obs, err
	}
	return obs, nil
}

// SendMessage - follows first where the platform demands it, then opens a
// conversation from the profile or the messages URL
func (b *Base) SendMessage(ctx context.Context, f *Flow, username, text string) (entities.MessageObservation, error) {
	cfg := f.Config()
	obs := entities.MessageObservation{Recipient: username, Text: text}

	if err := f.Navigate(ctx, cfg.ProfileURL(username)); err != nil {
		return obs, err
	}

	if cfg.Limits.DMRequiresFollow {
		changed, err := f.Flip(ctx, followSwitch, true)
		if err != nil {
			return obs, err
		}
		if changed {
			f.SideEffect("follow", username, "messaging requires following")
		}
	}

	if messagesURL := cfg.MessagesURL(username); messagesURL != "" {
		if err := f.Navigate(ctx, messagesURL); err != nil {
			return obs, err
		}
	} else {
		el, ok := f.WaitFor(ctx, "message_button", cfg.Timeouts.Verify)
		if !ok {
			if ctx.Err() != nil {
				return obs, ctx.Err()
			}
			return obs, entities.Blocked("%s offers no way to message %s", cfg.Platform, username).WithStage(entities.StageTargetLocated)
		}
		if err := f.ClickElement(ctx, "message_button", el); err != nil {
			return obs, err
		}
	}

	if _, ok := f.WaitFor(ctx, "message_input", cfg.Timeouts.Verify); !ok {
		if ctx.Err() != nil {
			return obs, ctx.Err()
		}
		return obs, entities.Blocked("message composer unavailable for %s", username).WithStage(entities.StageTargetLocated)
	}
	before := f.CountText(ctx, "message_item", text)
	if err := f.Fill(ctx, "message_input", text); err != nil {
		return obs, err
	}
	if err := f.Submit(ctx, "message_input", "message_send"); err != nil {
		return obs, err
	}
	if err := f.VerifyPosted(ctx, "message_input", "message_item", text, before); err != nil {
		return obs, err
	}
	return obs, nil
}

// ListContent - the user's content references, newest first as rendered
func (b *Base) ListContent(ctx context.Context, f *Flow, username string, max int, cursor string) (entities.ListObservation, error) {
	if err := f.Navigate(ctx, f.Config().ProfileURL(username)); err != nil {
		return entities.ListObservation{}, err
	}
	if _, private := f.Peek(ctx, "private_marker"); private {
		return entities.ListObservation{}, entities.Blocked("account %s is private", username).WithStage(entities.StageTargetLocated)
	}
	return f.Collect(ctx, "content_link", max, cursor)
}

// Search - content references for a tag or keyword
func (b *Base) Search(ctx context.Context, f *Flow, query string, max int, cursor string) (entities.ListObservation, error) {
	if err := f.Navigate(ctx, f.Config().SearchURL(query)); err != nil {
		return entities.ListObservation{}, err
	}
	return f.Collect(ctx, "content_link", max, cursor)
}

// GetContent - one post as rendered, with meta-tag fallbacks
func (b *Base) GetContent(ctx context.Context, f *Flow, contentRef string) (entities.ContentObservation, error) {
	cfg := f.Config()
	obs := entities.ContentObservation{ID: entities.ContentIDFromURL(contentRef)}

	if err := f.Navigate(ctx, contentURL(cfg, contentRef)); err != nil {
		return obs, err
	}
	_, _, located := f.WaitAny(ctx, "content_text", "content_author", "like_button", "unlike_button")
	if located != nil && ctx.Err() != nil {
		return obs, ctx.Err()
	}

	obs.URL = f.Page().URL()
	obs.Text = collapse(f.Text(ctx, "content_text"))
	obs.Author = f.Text(ctx, "content_author")
	obs.Likes = readCount(ctx, f, "content_likes")
	obs.Comments = readCount(ctx, f, "content_replies")
	obs.Reposts = readCount(ctx, f, "content_reposts")

	if snap, err := f.Snapshot(ctx); err == nil && snap != nil {
		if obs.Text == "" {
			obs.Text = snap.Description()
		}
		if obs.Author == "" {
			obs.Author = extract.AuthorFromTitle(snap.Meta("og:title"))
		}
	}

	if located != nil && obs.Text == "" && obs.Author == "" {
		return obs, located
	}
	f.Observed(ctx)
	return obs, nil
}
