package geo

import (
	"fmt"
)

// Kind classifies why a location could not be acquired.
type Kind string

const (
	KindUnsupported    Kind = "UNSUPPORTED"
	KindDenied         Kind = "DENIED"
	KindUnavailable    Kind = "UNAVAILABLE"
	KindTimeout        Kind = "TIMEOUT"
	KindAccuracyTooLow Kind = "ACCURACY_TOO_LOW"
	KindUnknown        Kind = "UNKNOWN"
)

// Retryable reports whether asking again without any out-of-band action can succeed.
// DENIED needs the user to change a permission first and UNSUPPORTED never changes on
// the same device.
func (k Kind) Retryable() bool {
	switch k {
	case KindUnsupported, KindDenied:
		return false
	default:
		return true
	}
}

// Failure is the single error type returned by AcquireLocation.
type Failure struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`

	// PlatformHint is set on DENIED when the environment is known to keep the location
	// permission in OS settings, so an in-page retry cannot bring the prompt back.
	PlatformHint bool   `json:"platform_hint,omitempty"`
	Platform     string `json:"platform,omitempty"`

	// Accuracy is the measured accuracy radius in meters of a rejected fix, nil when the
	// platform did not report one.
	Accuracy         *float64 `json:"accuracy,omitempty"`
	RequiredAccuracy float64  `json:"required_accuracy,omitempty"`

	cause error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Unwrap returns the platform error behind the failure, if any.
func (f *Failure) Unwrap() error {
	return f.cause
}

// Is matches failures by kind so callers can write errors.Is(err, geo.ErrDenied).
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	if !ok {
		return false
	}
	return t.Kind == f.Kind
}

var (
	ErrUnsupported    = &Failure{Kind: KindUnsupported, Message: "geolocation is not supported on this device"}
	ErrDenied         = &Failure{Kind: KindDenied, Message: "location permission denied"}
	ErrUnavailable    = &Failure{Kind: KindUnavailable, Message: "location is unavailable"}
	ErrTimeout        = &Failure{Kind: KindTimeout, Message: "timed out waiting for a location fix"}
	ErrAccuracyTooLow = &Failure{Kind: KindAccuracyTooLow, Message: "location accuracy is too low"}
	ErrUnknown        = &Failure{Kind: KindUnknown, Message: "failed to get location"}
)

// failureOf returns a fresh copy of a sentinel so callers never share one instance.
func failureOf(sentinel *Failure) *Failure {
	f := *sentinel
	return &f
}

func accuracyFailure(accuracy *float64, required float64) *Failure {
	var msg string
	if accuracy == nil {
		msg = fmt.Sprintf("location accuracy is unknown, need <= %gm. Move closer to a window and try again", required)
	} else {
		msg = fmt.Sprintf("location accuracy is too low: measured %gm, need <= %gm. Move closer to a window and try again", *accuracy, required)
	}

	return &Failure{
		Kind:             KindAccuracyTooLow,
		Message:          msg,
		Accuracy:         accuracy,
		RequiredAccuracy: required,
	}
}
