package entities

import (
	"fmt"
	"strings"
)

// Platform identifies one automated social network
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTwitter   Platform = "twitter"
	PlatformTikTok    Platform = "tiktok"
	PlatformFacebook  Platform = "facebook"
	PlatformLinkedIn  Platform = "linkedin"
)

// Platforms - all supported platforms in bridge port order
func Platforms() []Platform {
	return []Platform{
		PlatformTwitter,
		PlatformInstagram,
		PlatformTikTok,
		PlatformFacebook,
		PlatformLinkedIn,
	}
}

// ParsePlatform - parses platform id, accepts "x" as an alias for twitter
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if p == "x" {
		return PlatformTwitter, nil
	}
	for _, known := range Platforms() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

func (p Platform) String() string {
	return string(p)
}

// BrowserMode - visible or headless rendering
type BrowserMode string

const (
	ModeVisible  BrowserMode = "visible"
	ModeHeadless BrowserMode = "headless"
)

// AuthStrategy - how credential material gets into the browser
type AuthStrategy string

const (
	AuthPersistentProfile AuthStrategy = "persistent_profile"
	AuthCookieInjection   AuthStrategy = "cookie_injection"
)
