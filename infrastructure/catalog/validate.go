package catalog

import (
	"errors"
	"fmt"
	"sort"

	"social_automation/domain/entities"
)

// requiredTargets lists the selector targets each operation cannot run without
var requiredTargets = map[entities.Operation][]string{
	entities.OpGetProfile:    {"profile_header", "profile_followers"},
	entities.OpCreatePost:    {"caption_input", "submit_post"},
	entities.OpLike:          {"like_button", "unlike_button"},
	entities.OpUnlike:        {"like_button", "unlike_button"},
	entities.OpFollow:        {"follow_button", "following_button"},
	entities.OpUnfollow:      {"follow_button", "following_button"},
	entities.OpComment:       {"comment_input", "comment_item"},
	entities.OpSendMessage:   {"message_input", "message_item"},
	entities.OpListContent:   {"content_link"},
	entities.OpSearch:        {"content_link"},
	entities.OpRepost:        {"repost_button", "repost_confirm", "unrepost_button"},
	entities.OpUnrepost:      {"repost_button", "unrepost_button", "unrepost_confirm"},
	entities.OpDeleteContent: {"content_menu", "delete_menu_item", "delete_confirm"},
	entities.OpConnect:       {"connect_button", "connect_send", "pending_button"},
}

var knownKinds = map[entities.LocatorKind]bool{
	entities.LocatorCSS:    true,
	entities.LocatorXPath:  true,
	entities.LocatorText:   true,
	entities.LocatorTestID: true,
	entities.LocatorAria:   true,
	entities.LocatorRole:   true,
}

// Validate - checks a platform configuration for structural errors
func Validate(cfg *entities.PlatformConfig) error {
	var errs []error

	if _, err := entities.ParsePlatform(string(cfg.Platform)); err != nil {
		errs = append(errs, err)
	}
	if cfg.Version == "" {
		errs = append(errs, errors.New("version is required"))
	}
	if cfg.BaseURL == "" {
		errs = append(errs, errors.New("base_url is required"))
	}
	if cfg.Port <= 0 {
		errs = append(errs, errors.New("port must be positive"))
	}

	switch cfg.Auth.Strategy {
	case entities.AuthCookieInjection, entities.AuthPersistentProfile:
	default:
		errs = append(errs, fmt.Errorf("unknown auth strategy %q", cfg.Auth.Strategy))
	}
	if cfg.Auth.SessionCookie == "" {
		errs = append(errs, errors.New("auth.session_cookie is required"))
	}

	if cfg.URLs.Profile == "" {
		errs = append(errs, errors.New("urls.profile is required"))
	}

	names := make([]string, 0, len(cfg.Targets))
	for name := range cfg.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t := cfg.Targets[name]
		if t == nil || len(t.Strategies) == 0 {
			errs = append(errs, fmt.Errorf("target %s has no strategies", name))
			continue
		}
		for i, s := range t.Strategies {
			if !knownKinds[s.Kind] {
				errs = append(errs, fmt.Errorf("target %s strategy #%d: unknown kind %q", name, i+1, s.Kind))
			}
			if s.Value == "" {
				errs = append(errs, fmt.Errorf("target %s strategy #%d: empty value", name, i+1))
			}
		}
	}

	for _, op := range cfg.Operations {
		if _, err := entities.ParseOperation(string(op)); err != nil {
			errs = append(errs, err)
			continue
		}
		for _, name := range requiredTargets[op] {
			if !cfg.HasTarget(name) {
				errs = append(errs, fmt.Errorf("operation %s requires target %s", op, name))
			}
		}
	}

	if cfg.Supports(entities.OpSendMessage) && !cfg.HasTarget("message_button") && cfg.URLs.Messages == "" {
		errs = append(errs, errors.New("send_message needs a message_button target or urls.messages"))
	}
	if cfg.Supports(entities.OpCreatePost) && !cfg.HasTarget("latest_content_link") {
		ownProfile := cfg.URLs.Self != "" || cfg.HasTarget("own_profile_link")
		if !ownProfile || !cfg.HasTarget("content_link") {
			errs = append(errs, errors.New("create_post needs latest_content_link, or content_link plus urls.self or own_profile_link, to read back the post id"))
		}
	}
	if cfg.Supports(entities.OpSearch) && cfg.URLs.Search == "" {
		errs = append(errs, errors.New("search requires urls.search"))
	}

	return errors.Join(errs...)
}
