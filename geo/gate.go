package geo

import (
	"context"
	"errors"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/formationdesk/checkin/schema"
)

const (
	logPrefix = "geo"

	DefaultTimeout          = 20 * time.Second
	DefaultMaximumAge       = 30 * time.Second
	DefaultRequiredAccuracy = 50.0
)

// Options configure a single AcquireLocation call.
type Options struct {
	HighAccuracy     bool
	Timeout          time.Duration
	MaximumAge       time.Duration
	RequiredAccuracy float64

	// UserAgent identifies the browser/OS the request is made for. It is only used to
	// compute the platform hint on DENIED.
	UserAgent      string
	PlatformPolicy PlatformPolicy
}

// DefaultOptions returns high accuracy, a 20s timeout, 30s cache reuse and a 50m floor.
func DefaultOptions() Options {
	return Options{
		HighAccuracy:     true,
		Timeout:          DefaultTimeout,
		MaximumAge:       DefaultMaximumAge,
		RequiredAccuracy: DefaultRequiredAccuracy,
		PlatformPolicy:   DefaultPlatformPolicy(),
	}
}

// Option mutates Options
type Option func(*Options)

func WithHighAccuracy(enabled bool) Option {
	return func(o *Options) { o.HighAccuracy = enabled }
}

// WithTimeout sets the deadline for a fix. Zero is honoured as "fail fast", not replaced by
// the default.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

func WithMaximumAge(d time.Duration) Option {
	return func(o *Options) { o.MaximumAge = d }
}

func WithRequiredAccuracy(meters float64) Option {
	return func(o *Options) { o.RequiredAccuracy = meters }
}

func WithUserAgent(userAgent string) Option {
	return func(o *Options) { o.UserAgent = userAgent }
}

func WithPlatformPolicy(policy PlatformPolicy) Option {
	return func(o *Options) { o.PlatformPolicy = policy }
}

// WithOptions replaces all settings at once, e.g. with values loaded from configuration.
func WithOptions(opts Options) Option {
	return func(o *Options) { *o = opts }
}

type positionResult struct {
	pos Position
	err error
}

// AcquireLocation makes one position request and returns a reading whose accuracy radius is
// within the required accuracy. Every failure is a *Failure. There are no retries; callers
// invoke it again after the user acted on the failure.
func AcquireLocation(ctx context.Context, p Positioner, opts ...Option) (schema.GeoReading, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if p == nil || !p.Available() {
		return schema.GeoReading{}, failureOf(ErrUnsupported)
	}

	timeout := o.Timeout
	if timeout < 0 {
		timeout = 0
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// buffered so a provider resolving after the deadline never blocks
	results := make(chan positionResult, 1)
	go func() {
		pos, err := p.CurrentPosition(reqCtx, PositionRequest{
			HighAccuracy: o.HighAccuracy,
			MaximumAge:   o.MaximumAge,
			Timeout:      timeout,
		})
		results <- positionResult{pos: pos, err: err}
	}()

	select {
	case r := <-results:
		if r.err != nil {
			return schema.GeoReading{}, o.classify(r.err)
		}
		return o.validate(r.pos)
	case <-reqCtx.Done():
		if err := ctx.Err(); err != nil {
			return schema.GeoReading{}, &Failure{Kind: KindUnknown, Message: "location request abandoned", cause: err}
		}
		log.WithFields(log.Fields{
			"prefix":  logPrefix,
			"timeout": timeout,
		}).Debug("location request timed out")
		return schema.GeoReading{}, failureOf(ErrTimeout)
	}
}

func (o Options) validate(pos Position) (schema.GeoReading, error) {
	if !present(pos.Latitude) || !present(pos.Longitude) || !present(pos.Accuracy) {
		var accuracy *float64
		if present(pos.Accuracy) {
			accuracy = pos.Accuracy
		}
		return schema.GeoReading{}, accuracyFailure(accuracy, o.RequiredAccuracy)
	}

	if *pos.Accuracy > o.RequiredAccuracy {
		log.WithFields(log.Fields{
			"prefix":   logPrefix,
			"accuracy": *pos.Accuracy,
			"required": o.RequiredAccuracy,
		}).Info("reject inaccurate location")
		return schema.GeoReading{}, accuracyFailure(pos.Accuracy, o.RequiredAccuracy)
	}

	return schema.GeoReading{
		Latitude:  *pos.Latitude,
		Longitude: *pos.Longitude,
		Accuracy:  *pos.Accuracy,
	}, nil
}

func (o Options) classify(err error) *Failure {
	var pe *PositionError
	if !errors.As(err, &pe) {
		if errors.Is(err, context.DeadlineExceeded) {
			return &Failure{Kind: KindTimeout, Message: ErrTimeout.Message, cause: err}
		}
		return &Failure{Kind: KindUnknown, Message: messageOr(err.Error()), cause: err}
	}

	var f *Failure
	switch pe.Code {
	case PermissionDenied:
		f = failureOf(ErrDenied)
		f.Platform, f.PlatformHint = o.PlatformPolicy.SettingsOnly(o.UserAgent)
	case PositionUnavailable:
		f = failureOf(ErrUnavailable)
	case PositionTimeout:
		f = failureOf(ErrTimeout)
	default:
		f = failureOf(ErrUnknown)
	}
	if pe.Message != "" {
		f.Message = pe.Message
	}
	f.cause = err

	log.WithFields(log.Fields{
		"prefix":        logPrefix,
		"kind":          f.Kind,
		"platform_hint": f.PlatformHint,
	}).Info("location request failed: ", pe.Message)

	return f
}

func present(v *float64) bool {
	return v != nil && !math.IsNaN(*v)
}

func messageOr(msg string) string {
	if msg == "" {
		return ErrUnknown.Message
	}
	return msg
}
