package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/formationdesk/checkin/external/backend"
	"github.com/formationdesk/checkin/geo"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var configFile string

func initLog() {
	logLevel, err := log.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		log.SetLevel(log.InfoLevel)
	} else {
		log.SetLevel(logLevel)
	}

	// stdout carries command output
	log.SetOutput(os.Stderr)

	log.SetFormatter(&prefixed.TextFormatter{
		ForceFormatting: true,
		FullTimestamp:   true,
	})
}

func setDefaults() {
	gate := geo.DefaultOptions()

	viper.SetDefault("log.level", "info")
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.version", version)
	viper.SetDefault("backend.timeout", backend.DefaultTimeout)
	viper.SetDefault("backend.cache_ttl", backend.DefaultCacheTTL)
	viper.SetDefault("location.source", "static")
	viper.SetDefault("location.high_accuracy", gate.HighAccuracy)
	viper.SetDefault("location.timeout", gate.Timeout)
	viper.SetDefault("location.max_age", gate.MaximumAge)
	viper.SetDefault("location.required_accuracy", gate.RequiredAccuracy)
	viper.SetDefault("location.nmea.uere", geo.DefaultUERE)
	viper.SetDefault("journal.path", "./data/journal.db")
}

func loadConfig(file string) {
	setDefaults()

	// Config from file
	viper.SetConfigType("yaml")
	if file != "" {
		viper.SetConfigFile(file)
	}

	viper.AddConfigPath("/.config/")
	viper.AddConfigPath(".")
	err := viper.ReadInConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "No config file. Read config from env.")
		viper.AllowEmptyEnv(false)
	}

	// Config from env if possible
	viper.AutomaticEnv()
	viper.SetEnvPrefix("checkin")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
}

func initSentry() {
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              viper.GetString("sentry.dsn"),
		AttachStacktrace: true,
		Environment:      viper.GetString("sentry.environment"),
		Dist:             viper.GetString("sentry.dist"),
		Release:          viper.GetString("server.version"),
	}); err != nil {
		log.WithField("prefix", "init").Error(err)
		return
	}
	log.WithField("prefix", "init").Debug("Initialized sentry")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCommand().ExecuteContext(ctx)
	sentry.Flush(2 * time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "checkin: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkin",
		Short: "Formation check-in agent",
		Long: `checkin runs on an attendance kiosk or staff device. It captures a location that passes
the accuracy gate, derives the device fingerprint and submits attendance, device registrations
and visit requests to the formation backend.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loadConfig(configFile)
			initLog()
			initSentry()
		},
	}
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config.yaml", "[optional] path of configuration file")
	cmd.AddCommand(
		newServeCmd(),
		newLocateCmd(),
		newFingerprintCmd(),
		newAttendCmd(),
		newRegisterDeviceCmd(),
		newVisitCmd(),
		newJournalCmd(),
	)
	return cmd
}
