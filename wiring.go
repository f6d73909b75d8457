package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/formationdesk/checkin/external/backend"
	"github.com/formationdesk/checkin/fingerprint"
	"github.com/formationdesk/checkin/geo"
	"github.com/formationdesk/checkin/store"
	"github.com/formationdesk/checkin/utils"
)

// listenAddr is the address serve binds to. The host defaults to loopback since the API
// signs submissions with this machine's device digest.
func listenAddr() string {
	return net.JoinHostPort(viper.GetString("server.host"), strconv.Itoa(viper.GetInt("server.port")))
}

// gateOptions reads the location gate settings.
func gateOptions() geo.Options {
	opts := geo.DefaultOptions()
	opts.HighAccuracy = viper.GetBool("location.high_accuracy")
	opts.Timeout = viper.GetDuration("location.timeout")
	opts.MaximumAge = viper.GetDuration("location.max_age")
	opts.RequiredAccuracy = viper.GetFloat64("location.required_accuracy")
	opts.UserAgent = viper.GetString("device.user_agent")
	return opts
}

// newPositioner returns the configured location source. A nil positioner means the device
// has none, which the gate reports as UNSUPPORTED.
func newPositioner() (geo.Positioner, error) {
	switch source := strings.ToLower(viper.GetString("location.source")); source {
	case "static":
		if !viper.IsSet("location.static.latitude") || !viper.IsSet("location.static.longitude") {
			return nil, nil
		}
		return geo.StaticPositioner{
			Latitude:  viper.GetFloat64("location.static.latitude"),
			Longitude: viper.GetFloat64("location.static.longitude"),
			Accuracy:  viper.GetFloat64("location.static.accuracy"),
		}, nil
	case "nmea":
		return geo.NewNMEADevicePositioner(viper.GetString("location.nmea.device"), viper.GetFloat64("location.nmea.uere")), nil
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown location source %q", source)
	}
}

// newEnvironment describes this device for fingerprinting.
func newEnvironment() fingerprint.HostEnvironment {
	agent := viper.GetString("device.user_agent")
	if agent == "" {
		agent = fingerprint.DefaultUserAgent(version)
	}

	return fingerprint.HostEnvironment{
		Agent:        agent,
		ScreenWidth:  viper.GetInt("device.screen.width"),
		ScreenHeight: viper.GetInt("device.screen.height"),
		Zone:         viper.GetString("device.timezone"),
		Lang:         viper.GetString("device.language"),
	}
}

func newBackend() *backend.Client {
	return backend.New(
		viper.GetString("backend.url"),
		viper.GetDuration("backend.timeout"),
		viper.GetDuration("backend.cache_ttl"),
	)
}

func openJournal(ctx context.Context) (*store.Journal, error) {
	j, err := store.Open(viper.GetString("journal.path"))
	if err != nil {
		return nil, err
	}
	if err := j.InitSchema(ctx); err != nil {
		_ = j.Close()
		return nil, err
	}
	return j, nil
}

func newCatalog() (*utils.Catalog, error) {
	return utils.NewCatalog(viper.GetString("i18n.dir"))
}

// uiLanguage is the language remediation copy is printed in on the command line.
func uiLanguage() string {
	if lang := utils.NormalizeLanguage(viper.GetString("device.language")); lang != "" {
		return lang
	}
	return utils.HostLanguage()
}
