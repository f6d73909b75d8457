package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

var gmtOffsetPattern = regexp.MustCompile(`^GMT([+-])(\d{1,2})(?::(\d{2}))?$`)

// GetLocation returns a location for an IANA name or a GMT-X format timezone.
func GetLocation(timezone string) *time.Location {
	timezone = strings.TrimSpace(timezone)
	if timezone == "" || strings.EqualFold(timezone, "Local") {
		return nil
	}

	if m := gmtOffsetPattern.FindStringSubmatch(strings.ToUpper(timezone)); m != nil {
		hours, _ := strconv.Atoi(m[2])
		minutes := 0
		if m[3] != "" {
			minutes, _ = strconv.Atoi(m[3])
		}
		if hours > 14 || minutes >= 60 {
			return nil
		}
		offset := hours*3600 + minutes*60
		if m[1] == "-" {
			offset = -offset
		}
		return time.FixedZone(strings.ToUpper(timezone), offset)
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil
	}
	return loc
}

// NormalizeTimezone returns the IANA name for timezone. Whole-hour GMT offsets map to the
// Etc/GMT zones, whose sign is inverted by POSIX convention. Offsets without an Etc/GMT zone
// (fractional hours, or west of GMT-12) keep their fixed-offset name.
func NormalizeTimezone(timezone string) (string, error) {
	loc := GetLocation(timezone)
	if loc == nil {
		return "", fmt.Errorf("unknown timezone %q", timezone)
	}

	m := gmtOffsetPattern.FindStringSubmatch(loc.String())
	if m == nil {
		return loc.String(), nil
	}
	if m[3] != "" && m[3] != "00" {
		return loc.String(), nil
	}

	hours, _ := strconv.Atoi(m[2])
	if hours == 0 {
		return "Etc/GMT", nil
	}
	sign := "-"
	if m[1] == "-" {
		sign = "+"
	}
	name := fmt.Sprintf("Etc/GMT%s%d", sign, hours)
	if _, err := time.LoadLocation(name); err != nil {
		return loc.String(), nil
	}
	return name, nil
}

// LocalTimezoneName resolves the IANA name of the host timezone the way a browser's
// resolved options would report it.
func LocalTimezoneName() string {
	if tz := strings.TrimPrefix(os.Getenv("TZ"), ":"); tz != "" {
		if name, err := NormalizeTimezone(tz); err == nil {
			return name
		}
	}

	if target, err := filepath.EvalSymlinks("/etc/localtime"); err == nil {
		if i := strings.Index(target, "zoneinfo/"); i >= 0 {
			if name, err := NormalizeTimezone(target[i+len("zoneinfo/"):]); err == nil {
				return name
			}
		}
	}

	if b, err := os.ReadFile("/etc/timezone"); err == nil {
		if name, err := NormalizeTimezone(strings.TrimSpace(string(b))); err == nil {
			return name
		}
	}

	if name := time.Local.String(); name != "Local" && name != "" {
		return name
	}
	return "UTC"
}
