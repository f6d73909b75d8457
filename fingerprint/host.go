package fingerprint

import (
	"fmt"
	"runtime"

	"github.com/formationdesk/checkin/utils"
)

// HostEnvironment describes the device the agent runs on. Empty fields are resolved from
// the host when read.
type HostEnvironment struct {
	Agent        string
	ScreenWidth  int
	ScreenHeight int
	Zone         string
	Lang         string
}

// DefaultUserAgent identifies the agent build and platform.
func DefaultUserAgent(version string) string {
	if version == "" {
		version = "dev"
	}
	return fmt.Sprintf("checkin/%s (%s; %s)", version, runtime.GOOS, runtime.GOARCH)
}

func (h HostEnvironment) UserAgent() string {
	if h.Agent != "" {
		return h.Agent
	}
	return DefaultUserAgent("")
}

func (h HostEnvironment) ScreenSize() (int, int) {
	return h.ScreenWidth, h.ScreenHeight
}

func (h HostEnvironment) TimeZone() string {
	if h.Zone != "" {
		if name, err := utils.NormalizeTimezone(h.Zone); err == nil {
			return name
		}
	}
	return utils.LocalTimezoneName()
}

func (h HostEnvironment) Language() string {
	if lang := utils.NormalizeLanguage(h.Lang); lang != "" {
		return lang
	}
	return utils.HostLanguage()
}
