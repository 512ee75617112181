package browser

import (
	"context"
	"fmt"

	"social_automation/domain/entities"
	"social_automation/domain/interfaces"
	"social_automation/infrastructure/storage"
)

// Authenticator turns a credential record into an authenticated browser.
// Prepare runs before launch, Apply after.
type Authenticator interface {
	Prepare(opts *interfaces.LaunchOptions, cfg *entities.PlatformConfig, cred entities.CredentialRecord) error
	Apply(ctx context.Context, b interfaces.Browser, cfg *entities.PlatformConfig, cred entities.CredentialRecord) error
}

// PersistentProfile reuses an on-disk profile so cookies, storage and
// fingerprint stay identical between calls. Credential cookies are only
// injected when the profile has lost its session cookie.
type PersistentProfile struct {
	Profiles *storage.ProfileStore
}

func (a PersistentProfile) Prepare(opts *interfaces.LaunchOptions, cfg *entities.PlatformConfig, cred entities.CredentialRecord) error {
	dir, err := a.Profiles.Dir(cfg.Platform, cred.Account)
	if err != nil {
		return err
	}
	if _, err := a.Profiles.Touch(cfg.Platform, cred.Account); err != nil {
		return err
	}
	opts.ProfileDir = dir
	return nil
}

func (a PersistentProfile) Apply(ctx context.Context, b interfaces.Browser, cfg *entities.PlatformConfig, cred entities.CredentialRecord) error {
	existing, err := b.Cookies(ctx, cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to read profile cookies: %w", err)
	}
	for _, c := range existing {
		if c.Name == cfg.Auth.SessionCookie && c.Value != "" {
			return nil
		}
	}
	return b.AddCookies(ctx, CookiesFor(cfg, cred))
}

// CookieInjection launches a clean context and injects the minimal
// cookie set every call
type CookieInjection struct{}

func (CookieInjection) Prepare(opts *interfaces.LaunchOptions, cfg *entities.PlatformConfig, cred entities.CredentialRecord) error {
	opts.ProfileDir = ""
	return nil
}

func (CookieInjection) Apply(ctx context.Context, b interfaces.Browser, cfg *entities.PlatformConfig, cred entities.CredentialRecord) error {
	cookies := CookiesFor(cfg, cred)
	if len(cookies) == 0 {
		return entities.AuthMissing("credential for %s has no cookies", cfg.Platform)
	}
	return b.AddCookies(ctx, cookies)
}

// NewAuthenticator - picks the implementation configured for the platform
func NewAuthenticator(strategy entities.AuthStrategy, profiles *storage.ProfileStore) (Authenticator, error) {
	switch strategy {
	case entities.AuthCookieInjection:
		return CookieInjection{}, nil
	case entities.AuthPersistentProfile:
		if profiles == nil {
			return nil, fmt.Errorf("persistent profile strategy needs a profile store")
		}
		return PersistentProfile{Profiles: profiles}, nil
	}
	return nil, fmt.Errorf("unknown auth strategy %q", strategy)
}

// CookiesFor - builds the cookie set for a credential record. An opaque
// session token becomes the platform's session cookie; scope comes from
// the record, falling back to the platform defaults.
func CookiesFor(cfg *entities.PlatformConfig, cred entities.CredentialRecord) []interfaces.Cookie {
	domain := cred.Domain
	if domain == "" {
		domain = cfg.Auth.CookieDomain
	}
	path := cred.Path
	if path == "" {
		path = cfg.Auth.CookiePath
	}
	if path == "" {
		path = "/"
	}

	cookies := make([]interfaces.Cookie, 0, len(cred.Secrets))
	for _, s := range cred.Secrets {
		name := s.Name
		if name == entities.SessionTokenName {
			name = cfg.Auth.SessionCookie
		}
		if name == "" || s.Value == "" {
			continue
		}
		cookies = append(cookies, interfaces.Cookie{
			Name:     name,
			Value:    s.Value,
			Domain:   domain,
			Path:     path,
			Secure:   true,
			HTTPOnly: name == cfg.Auth.SessionCookie,
		})
	}
	return cookies
}
