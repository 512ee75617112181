package engines

import (
	"context"
	"errors"
	"testing"
	"time"

	"social_automation/application/selector"
	"social_automation/domain/entities"
	"social_automation/infrastructure/browser/browsertest"
	"social_automation/infrastructure/catalog"
	"social_automation/infrastructure/logging"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig - catalog config with the human-speed pauses removed
func testConfig(t *testing.T, platform entities.Platform) *entities.PlatformConfig {
	t.Helper()
	cfg, err := catalog.MustLoadEmbedded().Get(platform)
	require.NoError(t, err)

	cp := *cfg
	cp.Timeouts.Settle = 0
	cp.Timeouts.Verify = 100 * time.Millisecond
	cp.Auth.SettleDelay = 0
	cp.Browser.SlowMo = 0
	return &cp
}

// strategy - the i-th catalog strategy of target
func strategy(t *testing.T, cfg *entities.PlatformConfig, target string, i int) entities.Strategy {
	t.Helper()
	tgt, err := cfg.Target(target)
	require.NoError(t, err)
	require.Greater(t, len(tgt.Strategies), i)
	return tgt.Strategies[i]
}

func newFlow(cfg *entities.PlatformConfig, page *browsertest.Page) *Flow {
	logger := logging.Discard()
	resolver := selector.NewResolver(cfg.Platform, nil, logger)
	return NewFlow(cfg, page, resolver, NewTrace(), logrus.NewEntry(logger))
}

func newEngine(t *testing.T, cfg *entities.PlatformConfig) Engine {
	t.Helper()
	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

func requireKind(t *testing.T, err error, kind entities.ErrorKind) *entities.OperationError {
	t.Helper()
	require.Error(t, err)
	var opErr *entities.OperationError
	require.True(t, errors.As(err, &opErr), "expected OperationError, got %v", err)
	require.Equal(t, kind, opErr.Kind, opErr.Error())
	return opErr
}

func TestLikeIsIdempotent(t *testing.T) {
	cfg := testConfig(t, entities.PlatformInstagram)
	like := strategy(t, cfg, "like_button", 0)
	unlike := strategy(t, cfg, "unlike_button", 0)

	liked := false
	setup := func(p *browsertest.Page) {
		if liked {
			p.Add(unlike, browsertest.El(""))
			return
		}
		p.Add(like, browsertest.El("").OnClick(func(p *browsertest.Page) {
			liked = true
			p.Remove(like)
			p.Add(unlike, browsertest.El(""))
		}))
	}

	var results []entities.ToggleObservation
	for i := 0; i < 2; i++ {
		page := browsertest.NewPage().RoutePrefix("https://www.instagram.com/p/", setup)
		f := newFlow(cfg, page)

		obs, err := newEngine(t, cfg).SetLike(context.Background(), f, "https://www.instagram.com/p/C0ffee/", true)
		require.NoError(t, err)
		assert.Equal(t, entities.StageStateVerified, f.Trace().Stage())
		results = append(results, obs)
	}

	assert.True(t, results[0].State)
	assert.True(t, results[0].Changed)
	assert.Equal(t, results[0].State, results[1].State)
	assert.False(t, results[1].Changed)
	assert.Equal(t, "C0ffee", results[1].Target)
}

func TestLikeSilentlyIgnoredIsBlocked(t *testing.T) {
	cfg := testConfig(t, entities.PlatformInstagram)
	like := strategy(t, cfg, "like_button", 0)

	page := browsertest.NewPage().RoutePrefix("https://www.instagram.com/p/", func(p *browsertest.Page) {
		p.Add(like, browsertest.El(""))
	})
	f := newFlow(cfg, page)

	_, err := newEngine(t, cfg).SetLike(context.Background(), f, "C0ffee", true)
	opErr := requireKind(t, err, entities.KindBlocked)
	assert.Equal(t, entities.StageStateVerified, opErr.Stage)
}

func TestIgnoredUnlikeIsBlocked(t *testing.T) {
	cfg := testConfig(t, entities.PlatformTikTok)
	heart := browsertest.El("12.3K")
	page := browsertest.NewPage().RoutePrefix("https://www.tiktok.com/video/", func(p *browsertest.Page) {
		p.Mount(cfg, `<button aria-pressed="true" aria-label="Like video 12.3K likes">
			<span data-e2e="like-icon"></span><strong>12.3K</strong></button>`, heart)
	})
	f := newFlow(cfg, page)

	_, err := newEngine(t, cfg).SetLike(context.Background(), f, "7301", false)
	opErr := requireKind(t, err, entities.KindBlocked)
	assert.Equal(t, entities.StageStateVerified, opErr.Stage)
	assert.Equal(t, 1, heart.Clicks())
}

func TestIgnoredUnfollowIsBlocked(t *testing.T) {
	cases := []struct {
		platform entities.Platform
		username string
		markup   string
	}{
		{
			platform: entities.PlatformLinkedIn,
			username: "janedoe",
			markup:   `<main><button aria-label="Following Jane Doe"><span>Following</span></button></main>`,
		},
		{
			platform: entities.PlatformInstagram,
			username: "janedoe",
			markup: `<main><header><section><button type="button"><div>Following</div></button></section></header>
				<div><span>Suggested for you</span><button type="button">Follow</button></div></main>`,
		},
		{
			platform: entities.PlatformTwitter,
			username: "janedoe",
			markup: `<div data-testid="placementTracking"><button data-testid="1234-unfollow"><span>Following</span></button></div>
				<aside><button data-testid="5678-follow"><span>Follow</span></button></aside>`,
		},
	}

	for _, tc := range cases {
		t.Run(string(tc.platform), func(t *testing.T) {
			cfg := testConfig(t, tc.platform)
			following := browsertest.El("Following")
			page := browsertest.NewPage().Route(cfg.ProfileURL(tc.username), func(p *browsertest.Page) {
				p.Mount(cfg, tc.markup, following)
			})
			f := newFlow(cfg, page)

			_, err := newEngine(t, cfg).SetFollow(context.Background(), f, tc.username, false)
			opErr := requireKind(t, err, entities.KindBlocked)
			assert.Equal(t, entities.StageStateVerified, opErr.Stage)
			assert.Equal(t, 1, following.Clicks())
		})
	}
}

func TestUnfollowThroughRenderedMarkup(t *testing.T) {
	cfg := testConfig(t, entities.PlatformLinkedIn)
	follow := browsertest.El("Follow")
	following := browsertest.El("Following")
	following.OnClick(func(p *browsertest.Page) {
		p.Unmount(following)
		p.Mount(cfg, `<main><button aria-label="Follow Jane Doe"><span>Follow</span></button></main>`, follow)
	})
	page := browsertest.NewPage().Route(cfg.ProfileURL("janedoe"), func(p *browsertest.Page) {
		p.Mount(cfg, `<main><button aria-label="Following Jane Doe"><span>Following</span></button></main>`, following)
	})
	f := newFlow(cfg, page)

	obs, err := newEngine(t, cfg).SetFollow(context.Background(), f, "janedoe", false)
	require.NoError(t, err)
	assert.False(t, obs.State)
	assert.True(t, obs.Changed)
	assert.Zero(t, follow.Clicks())
}

func TestIgnoredUnrepostIsBlocked(t *testing.T) {
	cfg := testConfig(t, entities.PlatformTwitter)
	confirm := browsertest.El("Undo repost")
	undo := browsertest.El("").OnClick(func(p *browsertest.Page) {
		p.Add(strategy(t, cfg, "unrepost_confirm", 0), confirm)
	})
	page := browsertest.NewPage().RoutePrefix("https://x.com/i/status/", func(p *browsertest.Page) {
		p.Mount(cfg, `<article data-testid="tweet" tabindex="-1"><button data-testid="unretweet"></button></article>`, undo)
	})
	f := newFlow(cfg, page)

	_, err := newEngine(t, cfg).(Reposter).SetRepost(context.Background(), f, "42", false)
	opErr := requireKind(t, err, entities.KindBlocked)
	assert.Equal(t, entities.StageStateVerified, opErr.Stage)
	assert.Equal(t, 1, confirm.Clicks())
}

func TestMissingControlIsUnknownUI(t *testing.T) {
	cfg := testConfig(t, entities.PlatformInstagram)
	page := browsertest.NewPage()
	f := newFlow(cfg, page)

	_, err := newEngine(t, cfg).SetLike(context.Background(), f, "C0ffee", true)
	opErr := requireKind(t, err, entities.KindUnknownUI)
	assert.Equal(t, entities.StageTargetLocated, opErr.Stage)
	assert.NotEmpty(t, opErr.Tried)
	assert.Equal(t, entities.StageNavigated, f.Trace().Stage())
}

func TestGetProfileHappyPath(t *testing.T) {
	cfg := testConfig(t, entities.PlatformInstagram)
	page := browsertest.NewPage().Route(cfg.ProfileURL("nasa"), func(p *browsertest.Page) {
		p.SetHTML(`<html><head>
			<meta property="og:title" content="NASA (@nasa) • Instagram photos and videos">
			<meta property="og:description" content="97M Followers, 77 Following, 4,102 Posts - See Instagram photos and videos from NASA (@nasa)">
			</head><body></body></html>`)
		p.Add(strategy(t, cfg, "profile_header", 0), browsertest.El(""))
		p.Add(strategy(t, cfg, "profile_name", 0), browsertest.El(" NASA "))
		p.Add(strategy(t, cfg, "profile_bio", 0), browsertest.El("Exploring the universe"))
		p.Add(strategy(t, cfg, "profile_followers", 0), browsertest.El("97.4M").Attr("title", "97,412,345"))
		p.Add(strategy(t, cfg, "profile_following", 0), browsertest.El("77 following"))
	})
	f := newFlow(cfg, page)

	obs, err := newEngine(t, cfg).GetProfile(context.Background(), f, "nasa")
	require.NoError(t, err)

	assert.Equal(t, "nasa", obs.Username)
	assert.Equal(t, "NASA", obs.Name)
	assert.Equal(t, "Exploring the universe", obs.Bio)
	assert.Equal(t, "97,412,345", obs.Followers)
	assert.Equal(t, "77", obs.Following)
	assert.Equal(t, "4,102", obs.Posts, "posts come from og:description")
	assert.Equal(t, "https://www.instagram.com/nasa/", obs.URL)
	assert.Equal(t, entities.StageStateVerified, f.Trace().Stage())
	assert.Contains(t, f.Trace().Strategies(), "profile_header")
}

func TestProfileLoginRedirectIsAuthExpired(t *testing.T) {
	cfg := testConfig(t, entities.PlatformTwitter)
	page := browsertest.NewPage().Route(cfg.ProfileURL("jack"), func(p *browsertest.Page) {
		p.SetURL("https://x.com/i/flow/login?redirect_after_login=%2Fjack")
	})
	f := newFlow(cfg, page)

	_, err := newEngine(t, cfg).GetProfile(context.Background(), f, "jack")
	opErr := requireKind(t, err, entities.KindAuthExpired)
	assert.Equal(t, entities.StageNavigated, opErr.Stage)
}

func TestLoginWallWithoutSessionIsAuthExpired(t *testing.T) {
	cfg := testConfig(t, entities.PlatformInstagram)
	page := browsertest.NewPage().Route(cfg.ProfileURL("nasa"), func(p *browsertest.Page) {
		p.Add(strategy(t, cfg, "login_wall", 0), browsertest.El(""))
		p.Add(strategy(t, cfg, "profile_header", 0), browsertest.El(""))
	})
	f := newFlow(cfg, page)

	_, err := newEngine(t, cfg).GetProfile(context.Background(), f, "nasa")
	requireKind(t, err, entities.KindAuthExpired)
}

func TestLoginPromptOnLoggedInPageIsIgnored(t *testing.T) {
	cfg := testConfig(t, entities.PlatformInstagram)
	page := browsertest.NewPage().Route(cfg.ProfileURL("nasa"), func(p *browsertest.Page) {
		p.Add(strategy(t, cfg, "login_wall", 1), browsertest.El("Log in"))
		p.Add(strategy(t, cfg, "logged_in", 0), browsertest.El(""))
		p.Add(strategy(t, cfg, "profile_header", 0), browsertest.El(""))
	})
	f := newFlow(cfg, page)

	_, err := newEngine(t, cfg).GetProfile(context.Background(), f, "nasa")
	assert.NoError(t, err)
}

func TestPopupIsDismissed(t *testing.T) {
	cfg := testConfig(t, entities.PlatformInstagram)
	popup := strategy(t, cfg, "popup_dismiss", 0)
	notNow := browsertest.El("Not Now").OnClick(func(p *browsertest.Page) {
		p.Remove(popup)
	})
	page := browsertest.NewPage().Route(cfg.ProfileURL("nasa"), func(p *browsertest.Page) {
		p.Add(popup, notNow)
		p.Add(strategy(t, cfg, "profile_header", 0), browsertest.El(""))
	})
	f := newFlow(cfg, page)

	_, err := newEngine(t, cfg).GetProfile(context.Background(), f, "nasa")
	require.NoError(t, err)
	assert.Equal(t, 1, notNow.Clicks())
}

func TestSendMessageToMissingUserIsNotFound(t *testing.T) {
	cfg := testConfig(t, entities.PlatformTikTok)
	follow := browsertest.El("Follow")
	page := browsertest.NewPage().Route(cfg.ProfileURL("ghost"), func(p *browsertest.Page) {
		p.SetHTML(`<html><body><main><p>Couldn't find this account</p></main></body></html>`)
		p.Add(strategy(t, cfg, "follow_button", 0), follow)
	})
	f := newFlow(cfg, page)

	_, err := newEngine(t, cfg).SendMessage(context.Background(), f, "ghost", "hello")
	opErr := requireKind(t, err, entities.KindNotFound)
	assert.Equal(t, entities.StageNavigated, opErr.Stage)
	assert.Zero(t, follow.Clicks())
	assert.Empty(t, f.Trace().SideEffects())
}

func TestSendMessageFollowsFirstWhenRequired(t *testing.T) {
	cfg := testConfig(t, entities.PlatformTikTok)
	require.True(t, cfg.Limits.DMRequiresFollow)

	followS := strategy(t, cfg, "follow_button", 0)
	followingS := strategy(t, cfg, "following_button", 0)
	inputS := strategy(t, cfg, "message_input", 0)
	sendS := strategy(t, cfg, "message_send", 0)
	itemS := strategy(t, cfg, "message_item", 0)

	input := browsertest.El("")
	page := browsertest.NewPage().Route(cfg.ProfileURL("creator"), func(p *browsertest.Page) {
		p.Add(followS, browsertest.El("Follow").OnClick(func(p *browsertest.Page) {
			p.Remove(followS)
			p.Add(followingS, browsertest.El("Following"))
		}))
		p.Add(strategy(t, cfg, "message_button", 0), browsertest.El("Message").OnClick(func(p *browsertest.Page) {
			p.Add(itemS, browsertest.El("hey, are you around?"))
			p.Add(inputS, input)
			p.Add(sendS, browsertest.El("").OnClick(func(p *browsertest.Page) {
				input.SetValue("")
				p.Add(itemS, browsertest.El("see you at 5"))
			}))
		}))
	})
	f := newFlow(cfg, page)

	obs, err := newEngine(t, cfg).SendMessage(context.Background(), f, "creator", "see you at 5")
	require.NoError(t, err)
	assert.Equal(t, "creator", obs.Recipient)
	assert.Equal(t, []string{"see you at 5"}, input.Filled())
	assert.Equal(t, entities.StageStateVerified, f.Trace().Stage())
	assert.Equal(t, []entities.SideEffect{{Kind: "follow", Target: "creator", Detail: "messaging requires following"}}, f.Trace().SideEffects())
}
func TestSendMessageWithoutComposerIsBlocked(t *testing.T) {
	cfg := testConfig(t, entities.PlatformTikTok)
	page := browsertest.NewPage().Route(cfg.ProfileURL("creator"), func(p *browsertest.Page) {
		p.Add(strategy(t, cfg, "following_button", 0), browsertest.El("Following"))
		p.Add(strategy(t, cfg, "message_button", 0), browsertest.El("Message"))
	})
	f := newFlow(cfg, page)

	_, err := newEngine(t, cfg).SendMessage(context.Background(), f, "creator", "hi")
	requireKind(t, err, entities.KindBlocked)
	assert.Empty(t, f.Trace().SideEffects(), "already following")
}

func TestUnfollowConfirmsDialog(t *testing.T) {
	cfg := testConfig(t, entities.PlatformInstagram)
	followS := strategy(t, cfg, "follow_button", 0)
	followingS := strategy(t, cfg, "following_button", 0)
	confirmS := strategy(t, cfg, "unfollow_confirm", 0)

	confirm := browsertest.El("Unfollow").OnClick(func(p *browsertest.Page) {
		p.Remove(confirmS)
		p.Remove(followingS)
		p.Add(followS, browsertest.El("Follow"))
	})
	page := browsertest.NewPage().Route(cfg.ProfileURL("someone"), func(p *browsertest.Page) {
		p.Add(followingS, browsertest.El("Following").OnClick(func(p *browsertest.Page) {
			p.Add(confirmS, confirm)
		}))
	})
	f := newFlow(cfg, page)

	obs, err := newEngine(t, cfg).SetFollow(context.Background(), f, "someone", false)
	require.NoError(t, err)
	assert.False(t, obs.State)
	assert.True(t, obs.Changed)
	assert.Equal(t, 1, confirm.Clicks())
}

func TestCommentVerifiesRenderedText(t *testing.T) {
	cfg := testConfig(t, entities.PlatformFacebook)
	itemS := strategy(t, cfg, "comment_item", 0)
	input := browsertest.El("")
	page := browsertest.NewPage().RoutePrefix("https://www.facebook.com/", func(p *browsertest.Page) {
		// someone else already left the same words
		p.Add(itemS, browsertest.El("Ana Silva Great shot & view 2h Like Reply"))
		p.Add(strategy(t, cfg, "comment_open", 0), browsertest.El("Comment"))
		p.Add(strategy(t, cfg, "comment_input", 0), input)
		p.OnPress("Enter", func(p *browsertest.Page) {
			input.SetValue("")
			p.Add(itemS, browsertest.El("Jane Doe Great shot &\n view Just now Like Reply"))
		})
	})
	f := newFlow(cfg, page)

	obs, err := newEngine(t, cfg).Comment(context.Background(), f, "10150", "Great shot & view")
	require.NoError(t, err)
	assert.Equal(t, "10150", obs.ContentID)
	assert.Equal(t, []string{"Great shot & view"}, input.Filled())
	assert.Equal(t, []string{"Enter"}, page.Pressed())
	assert.Equal(t, entities.StageStateVerified, f.Trace().Stage())
}

func TestCommentDroppedIsBlocked(t *testing.T) {
	cfg := testConfig(t, entities.PlatformFacebook)
	input := browsertest.El("")
	page := browsertest.NewPage().RoutePrefix("https://www.facebook.com/", func(p *browsertest.Page) {
		// the text shows up in the page, but only inside the composer
		p.SetHTML(`<html><head><title>Facebook</title></head><body>
			<div aria-label="Write a comment…" contenteditable="true">ok</div></body></html>`)
		p.Add(strategy(t, cfg, "comment_open", 0), browsertest.El("Comment"))
		p.Add(strategy(t, cfg, "comment_input", 0), input)
	})
	f := newFlow(cfg, page)

	_, err := newEngine(t, cfg).Comment(context.Background(), f, "10150", "ok")
	opErr := requireKind(t, err, entities.KindBlocked)
	assert.Equal(t, entities.StageStateVerified, opErr.Stage)
	assert.Equal(t, []string{"Enter"}, page.Pressed())
}

func TestCommentClearedWithoutNewItemIsBlocked(t *testing.T) {
	cfg := testConfig(t, entities.PlatformFacebook)
	itemS := strategy(t, cfg, "comment_item", 0)
	input := browsertest.El("")
	page := browsertest.NewPage().RoutePrefix("https://www.facebook.com/", func(p *browsertest.Page) {
		p.Add(itemS, browsertest.El("Ana Silva nice 2h Like Reply"))
		p.Add(strategy(t, cfg, "comment_open", 0), browsertest.El("Comment"))
		p.Add(strategy(t, cfg, "comment_input", 0), input)
		// the composer empties but nothing is added to the list
		p.OnPress("Enter", func(p *browsertest.Page) {
			input.SetValue("")
		})
	})
	f := newFlow(cfg, page)

	_, err := newEngine(t, cfg).Comment(context.Background(), f, "10150", "nice")
	opErr := requireKind(t, err, entities.KindBlocked)
	assert.Equal(t, entities.StageStateVerified, opErr.Stage)
	assert.Contains(t, opErr.Message, "comment_item")
}

func TestSendMessageDroppedIsBlocked(t *testing.T) {
	cfg := testConfig(t, entities.PlatformInstagram)
	input := browsertest.El("")
	send := browsertest.El("Send")
	page := browsertest.NewPage().Route(cfg.ProfileURL("friend"), func(p *browsertest.Page) {
		p.Add(strategy(t, cfg, "message_button", 0), browsertest.El("Message").OnClick(func(p *browsertest.Page) {
			p.Add(strategy(t, cfg, "message_item", 0), browsertest.El("lunch?"))
			p.Add(strategy(t, cfg, "message_input", 0), input)
			p.Add(strategy(t, cfg, "message_send", 0), send)
		}))
	})
	f := newFlow(cfg, page)

	_, err := newEngine(t, cfg).SendMessage(context.Background(), f, "friend", "lunch at 1")
	opErr := requireKind(t, err, entities.KindBlocked)
	assert.Equal(t, entities.StageStateVerified, opErr.Stage)
	assert.Equal(t, 1, send.Clicks())
	assert.Equal(t, []string{"lunch at 1"}, input.Filled())
}
func TestListContentScrollsAndDeduplicates(t *testing.T) {
	cfg := testConfig(t, entities.PlatformInstagram)
	link := strategy(t, cfg, "content_link", 0)

	links := func(ids ...string) []*browsertest.Element {
		var out []*browsertest.Element
		for _, id := range ids {
			out = append(out, browsertest.Link("/p/"+id+"/?img_index=1", ""))
		}
		return out
	}

	page := browsertest.NewPage().Route(cfg.ProfileURL("nasa"), func(p *browsertest.Page) {
		p.Set(link, links("A1", "A2", "A3")...)
		p.OnScroll(func(p *browsertest.Page) {
			p.Set(link, links("A2", "A3", "A4", "A5", "A6")...)
		})
	})
	f := newFlow(cfg, page)

	obs, err := newEngine(t, cfg).ListContent(context.Background(), f, "nasa", 5, "")
	require.NoError(t, err)

	var ids []string
	for _, item := range obs.Items {
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []string{"A1", "A2", "A3", "A4", "A5"}, ids)
	assert.Equal(t, "https://www.instagram.com/p/A1/", obs.Items[0].URL)
	assert.Equal(t, 1, obs.Scrolls)
	assert.False(t, obs.Exhausted)
}

func TestListContentResumesAfterCursor(t *testing.T) {
	cfg := testConfig(t, entities.PlatformInstagram)
	link := strategy(t, cfg, "content_link", 0)

	page := browsertest.NewPage().Route(cfg.ProfileURL("nasa"), func(p *browsertest.Page) {
		p.Set(link,
			browsertest.Link("/p/A1/", ""),
			browsertest.Link("/p/A2/", ""),
			browsertest.Link("/p/A3/", ""),
		)
	})
	f := newFlow(cfg, page)

	obs, err := newEngine(t, cfg).ListContent(context.Background(), f, "nasa", 10, "A1")
	require.NoError(t, err)
	require.Len(t, obs.Items, 2)
	assert.Equal(t, "A2", obs.Items[0].ID)
	assert.True(t, obs.Exhausted)
	assert.LessOrEqual(t, obs.Scrolls, cfg.Limits.MaxScrolls)
}

func TestPrivateAccountListingIsBlocked(t *testing.T) {
	cfg := testConfig(t, entities.PlatformInstagram)
	page := browsertest.NewPage().Route(cfg.ProfileURL("hidden"), func(p *browsertest.Page) {
		p.Add(strategy(t, cfg, "private_marker", 0), browsertest.El("This account is private"))
	})
	f := newFlow(cfg, page)

	_, err := newEngine(t, cfg).ListContent(context.Background(), f, "hidden", 5, "")
	requireKind(t, err, entities.KindBlocked)
}

func TestInstagramContentFromMeta(t *testing.T) {
	cfg := testConfig(t, entities.PlatformInstagram)
	page := browsertest.NewPage().RoutePrefix("https://www.instagram.com/p/", func(p *browsertest.Page) {
		p.SetHTML(`<html><head>
			<meta property="og:description" content="1,234 likes, 56 comments - nasa on June 1, 2024: &quot;Saturn, up close.&quot;">
			</head><body></body></html>`)
		p.Add(strategy(t, cfg, "like_button", 0), browsertest.El(""))
	})
	f := newFlow(cfg, page)

	obs, err := newEngine(t, cfg).GetContent(context.Background(), f, "https://www.instagram.com/p/Sat1/")
	require.NoError(t, err)
	assert.Equal(t, "Sat1", obs.ID)
	assert.Equal(t, "1,234", obs.Likes)
	assert.Equal(t, "56", obs.Comments)
	assert.Equal(t, "nasa", obs.Author)
	assert.Equal(t, "Saturn, up close.", obs.Text)
}

func TestCreatePostAttachesMediaAndConfirms(t *testing.T) {
	cfg := testConfig(t, entities.PlatformInstagram)
	require.Equal(t, cfg.URLs.Home, cfg.URLs.Compose)
	nextS := strategy(t, cfg, "next_button", 0)
	linkS := strategy(t, cfg, "content_link", 0)
	media := browsertest.El("").Hidden()
	caption := browsertest.El("")

	shared := false
	nextClicks := 0
	next := browsertest.El("Next").OnClick(func(p *browsertest.Page) {
		nextClicks++
		if nextClicks < 2 {
			return
		}
		// crop, then filters, then the caption screen
		p.Remove(nextS)
		p.Add(strategy(t, cfg, "caption_input", 0), caption)
		p.Add(strategy(t, cfg, "submit_post", 0), browsertest.El("Share").OnClick(func(p *browsertest.Page) {
			shared = true
			p.Add(strategy(t, cfg, "post_confirmation", 0), browsertest.El("Your post has been shared."))
		}))
	})

	page := browsertest.NewPage().
		Route(cfg.URLs.Compose, func(p *browsertest.Page) {
			p.Clear()
			p.Add(strategy(t, cfg, "own_profile_link", 0), browsertest.Link("/me_account/", "Profile"))
			p.Add(strategy(t, cfg, "compose_open", 0), browsertest.El("").OnClick(func(p *browsertest.Page) {
				p.Add(strategy(t, cfg, "media_input", 0), media)
				p.Add(nextS, next)
			}))
		}).
		Route("https://www.instagram.com/me_account/", func(p *browsertest.Page) {
			p.Clear()
			if shared {
				p.Set(linkS, browsertest.Link("/p/NEW1/", ""), browsertest.Link("/p/A1/", ""))
				return
			}
			p.Set(linkS, browsertest.Link("/p/A1/", ""))
		})
	f := newFlow(cfg, page)

	files := []string{"/tmp/a.jpg"}
	obs, err := newEngine(t, cfg).CreatePost(context.Background(), f, Post{Text: "hello", Media: files})
	require.NoError(t, err)
	assert.Equal(t, "NEW1", obs.ID)
	assert.Equal(t, "https://www.instagram.com/p/NEW1/", obs.URL)
	assert.Equal(t, files, media.Files())
	assert.Equal(t, []string{"hello"}, caption.Filled())
	assert.Equal(t, 2, nextClicks)
	assert.Equal(t, entities.StageStateVerified, f.Trace().Stage())
}

func TestCreatePostReadsIDFromSelfURL(t *testing.T) {
	cfg := testConfig(t, entities.PlatformFacebook)
	require.NotEmpty(t, cfg.URLs.Self)
	linkS := strategy(t, cfg, "content_link", 0)

	shared := false
	page := browsertest.NewPage().
		Route(cfg.URLs.Compose, func(p *browsertest.Page) {
			p.Clear()
			p.Add(strategy(t, cfg, "compose_open", 0), browsertest.El("What's on your mind?").OnClick(func(p *browsertest.Page) {
				p.Add(strategy(t, cfg, "caption_input", 0), browsertest.El(""))
				p.Add(strategy(t, cfg, "submit_post", 0), browsertest.El("Post").OnClick(func(p *browsertest.Page) {
					shared = true
					p.Add(strategy(t, cfg, "post_confirmation", 0), browsertest.El("Your post is now published."))
				}))
			}))
		}).
		Route(cfg.URLs.Self, func(p *browsertest.Page) {
			p.Clear()
			if shared {
				p.Set(linkS, browsertest.Link("/jane/posts/pfbid02new/", ""), browsertest.Link("/jane/posts/pfbid01old/", ""))
				return
			}
			p.Set(linkS, browsertest.Link("/jane/posts/pfbid01old/", ""))
		})
	f := newFlow(cfg, page)

	obs, err := newEngine(t, cfg).CreatePost(context.Background(), f, Post{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "pfbid02new", obs.ID)
	assert.Equal(t, []string{cfg.URLs.Self, cfg.URLs.Compose, cfg.URLs.Self}, page.Visits())
}

func TestCreatePostWithoutReadableIDIsBlocked(t *testing.T) {
	cfg := testConfig(t, entities.PlatformTwitter)
	page := browsertest.NewPage().Route(cfg.URLs.Compose, func(p *browsertest.Page) {
		p.Add(strategy(t, cfg, "caption_input", 0), browsertest.El(""))
		p.Add(strategy(t, cfg, "submit_post", 0), browsertest.El("Post").OnClick(func(p *browsertest.Page) {
			p.Add(strategy(t, cfg, "post_confirmation", 0), browsertest.El("Your post was sent."))
		}))
	})
	f := newFlow(cfg, page)

	obs, err := newEngine(t, cfg).CreatePost(context.Background(), f, Post{Text: "hello"})
	opErr := requireKind(t, err, entities.KindBlocked)
	assert.Equal(t, entities.StageStateVerified, opErr.Stage)
	assert.Empty(t, obs.ID)
}

func TestOwnProfileWithoutHrefIsUnknownUI(t *testing.T) {
	cfg := testConfig(t, entities.PlatformInstagram)
	page := browsertest.NewPage().Route(cfg.URLs.Home, func(p *browsertest.Page) {
		p.Add(strategy(t, cfg, "own_profile_link", 0), browsertest.El("Profile"))
	})
	f := newFlow(cfg, page)

	_, err := newEngine(t, cfg).CreatePost(context.Background(), f, Post{Text: "hello", Media: []string{"/tmp/a.jpg"}})
	opErr := requireKind(t, err, entities.KindUnknownUI)
	assert.Equal(t, entities.StageTargetLocated, opErr.Stage)
	assert.Equal(t, []string{cfg.URLs.Home}, page.Visits(), "nothing is composed before the profile is known")
}
func TestTwitterThreadChainsReplies(t *testing.T) {
	cfg := testConfig(t, entities.PlatformTwitter)
	confirmS := strategy(t, cfg, "post_confirmation", 0)
	latestS := strategy(t, cfg, "latest_content_link", 0)

	published := func(id string) func(p *browsertest.Page) {
		return func(p *browsertest.Page) {
			p.Add(confirmS, browsertest.El("Your post was sent."))
			p.Add(latestS, browsertest.Link("/me/status/"+id, "View"))
		}
	}

	var replies []string
	page := browsertest.NewPage().
		Route(cfg.URLs.Compose, func(p *browsertest.Page) {
			p.Clear()
			p.Add(strategy(t, cfg, "caption_input", 0), browsertest.El(""))
			p.Add(strategy(t, cfg, "submit_post", 0), browsertest.El("Post").OnClick(published("100")))
		}).
		RoutePrefix("https://x.com/i/status/", func(p *browsertest.Page) {
			p.Clear()
			parent := entities.ContentIDFromURL(p.URL())
			next := map[string]string{"100": "101", "101": "102"}[parent]
			input := browsertest.El("").OnFill(func(p *browsertest.Page, text string) {
				replies = append(replies, parent+":"+text)
			})
			p.Add(strategy(t, cfg, "reply_input", 0), input)
			p.Add(strategy(t, cfg, "reply_submit", 0), browsertest.El("Reply").OnClick(published(next)))
		})
	f := newFlow(cfg, page)

	obs, err := newEngine(t, cfg).CreatePost(context.Background(), f, Post{Thread: []string{"one", "two", "three"}})
	require.NoError(t, err)
	assert.Equal(t, "100", obs.ID)
	assert.Equal(t, []string{"100", "101", "102"}, obs.Thread)
	assert.Equal(t, []string{"100:two", "101:three"}, replies)
}

func TestTwitterRepostIsIdempotent(t *testing.T) {
	cfg := testConfig(t, entities.PlatformTwitter)
	page := browsertest.NewPage().RoutePrefix("https://x.com/i/status/", func(p *browsertest.Page) {
		p.Add(strategy(t, cfg, "unrepost_button", 0), browsertest.El(""))
	})
	f := newFlow(cfg, page)

	obs, err := newEngine(t, cfg).(Reposter).SetRepost(context.Background(), f, "42", true)
	require.NoError(t, err)
	assert.True(t, obs.State)
	assert.False(t, obs.Changed)
}

func TestTwitterDeleteWalksMenu(t *testing.T) {
	cfg := testConfig(t, entities.PlatformTwitter)
	menuS := strategy(t, cfg, "content_menu", 0)
	itemS := strategy(t, cfg, "delete_menu_item", 0)
	confirmS := strategy(t, cfg, "delete_confirm", 0)

	page := browsertest.NewPage().RoutePrefix("https://x.com/i/status/", func(p *browsertest.Page) {
		p.Add(menuS, browsertest.El("").OnClick(func(p *browsertest.Page) {
			p.Add(itemS, browsertest.El("Delete").OnClick(func(p *browsertest.Page) {
				p.Add(confirmS, browsertest.El("Delete").OnClick(func(p *browsertest.Page) {
					p.Clear()
				}))
			}))
		}))
	})
	f := newFlow(cfg, page)

	obs, err := newEngine(t, cfg).(Deleter).DeleteContent(context.Background(), f, "https://x.com/me/status/42")
	require.NoError(t, err)
	assert.Equal(t, "42", obs.ContentID)
	assert.Equal(t, entities.StageStateVerified, f.Trace().Stage())
}

func TestLinkedInConnectThroughMoreMenu(t *testing.T) {
	cfg := testConfig(t, entities.PlatformLinkedIn)
	connectS := strategy(t, cfg, "connect_button", 0)
	sendS := strategy(t, cfg, "connect_send", 0)
	pendingS := strategy(t, cfg, "pending_button", 0)

	page := browsertest.NewPage().Route(cfg.ProfileURL("satya"), func(p *browsertest.Page) {
		p.Add(strategy(t, cfg, "more_actions", 0), browsertest.El("More").OnClick(func(p *browsertest.Page) {
			p.Add(connectS, browsertest.El("Connect").OnClick(func(p *browsertest.Page) {
				p.Add(sendS, browsertest.El("Send without a note").OnClick(func(p *browsertest.Page) {
					p.Remove(sendS)
					p.Remove(connectS)
					p.Add(pendingS, browsertest.El("Pending"))
				}))
			}))
		}))
	})
	f := newFlow(cfg, page)

	obs, err := newEngine(t, cfg).(Connector).Connect(context.Background(), f, "satya")
	require.NoError(t, err)
	assert.Equal(t, entities.OpConnect, obs.Operation)
	assert.True(t, obs.State)
	assert.True(t, obs.Changed)
}

func TestCapabilities(t *testing.T) {
	twitter := newEngine(t, testConfig(t, entities.PlatformTwitter)).Capabilities()
	assert.Contains(t, twitter.Operations, entities.OpRepost)
	assert.Contains(t, twitter.Operations, entities.OpDeleteContent)
	assert.NotContains(t, twitter.Operations, entities.OpSendMessage)
	assert.Equal(t, "headless", twitter.Modes["get_profile"])

	tiktok := newEngine(t, testConfig(t, entities.PlatformTikTok)).Capabilities()
	assert.True(t, tiktok.MediaRequired)
	assert.True(t, tiktok.DMRequiresFollow)
	assert.NotContains(t, tiktok.Operations, entities.OpConnect)
}

func TestExecuteRejectsUnimplementedOperation(t *testing.T) {
	cfg := testConfig(t, entities.PlatformFacebook)
	f := newFlow(cfg, browsertest.NewPage())

	_, err := Execute(context.Background(), newEngine(t, cfg), f, entities.Request{
		Operation: entities.OpRepost,
		Platform:  entities.PlatformFacebook,
		Params:    map[string]string{entities.ParamContentID: "1"},
	})
	requireKind(t, err, entities.KindValidation)
	assert.Empty(t, f.Page().(*browsertest.Page).Visits())
}

func TestTracePending(t *testing.T) {
	tr := NewTrace()
	assert.Equal(t, entities.StageSessionAcquired, tr.Pending())

	tr.Mark(entities.StageSessionAcquired)
	assert.Equal(t, entities.StageNavigated, tr.Pending())

	tr.Mark(entities.StageActionPerformed)
	tr.Mark(entities.StageNavigated)
	assert.Equal(t, entities.StageActionPerformed, tr.Stage(), "stages never move backwards")
}
