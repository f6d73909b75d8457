package geo

import (
	"regexp"
	"strings"
)

// PlatformRule matches a browser/OS combination where a denied location permission can only
// be granted again from OS settings.
type PlatformRule struct {
	Name  string
	Match func(userAgent string) bool
}

// PlatformPolicy is an ordered table of settings-only rules. User agent sniffing drifts as
// browsers evolve, so the table is meant to be replaced through WithPlatformPolicy.
type PlatformPolicy []PlatformRule

// SettingsOnly returns the name of the first rule matching userAgent.
func (p PlatformPolicy) SettingsOnly(userAgent string) (string, bool) {
	if userAgent == "" {
		return "", false
	}
	for _, rule := range p {
		if rule.Match != nil && rule.Match(userAgent) {
			return rule.Name, true
		}
	}
	return "", false
}

const PlatformIOSSafari = "ios-safari"

var (
	iosDevicePattern     = regexp.MustCompile(`iP(hone|od|ad)`)
	iosOtherBrowsers     = regexp.MustCompile(`CriOS|FxiOS|OPiOS|EdgiOS`)
	defaultPlatformRules = PlatformPolicy{
		{Name: PlatformIOSSafari, Match: IsIOSSafari},
	}
)

// IsIOSSafari reports whether userAgent is Safari itself on an iPhone, iPod or iPad. Other
// iOS browsers embed WebKit and also say "Safari", so they are excluded by their own tokens.
func IsIOSSafari(userAgent string) bool {
	if !iosDevicePattern.MatchString(userAgent) {
		return false
	}
	return strings.Contains(userAgent, "Safari") && !iosOtherBrowsers.MatchString(userAgent)
}

// DefaultPlatformPolicy returns a copy of the built-in rule table.
func DefaultPlatformPolicy() PlatformPolicy {
	policy := make(PlatformPolicy, len(defaultPlatformRules))
	copy(policy, defaultPlatformRules)
	return policy
}
