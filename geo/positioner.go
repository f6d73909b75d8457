package geo

import (
	"context"
	"fmt"
	"time"
)

// PositionErrorCode mirrors the W3C GeolocationPositionError codes.
type PositionErrorCode int

const (
	PermissionDenied    PositionErrorCode = 1
	PositionUnavailable PositionErrorCode = 2
	PositionTimeout     PositionErrorCode = 3
)

func (c PositionErrorCode) String() string {
	switch c {
	case PermissionDenied:
		return "PERMISSION_DENIED"
	case PositionUnavailable:
		return "POSITION_UNAVAILABLE"
	case PositionTimeout:
		return "TIMEOUT"
	default:
		return fmt.Sprintf("CODE_%d", int(c))
	}
}

// PositionError is a typed error reported by a positioning provider.
type PositionError struct {
	Code    PositionErrorCode
	Message string
}

func (e *PositionError) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Position is a raw fix as reported by the platform. Any field may be missing.
type Position struct {
	Latitude  *float64
	Longitude *float64
	Accuracy  *float64
	Timestamp time.Time
}

// PositionRequest carries the one-shot request settings down to the provider.
type PositionRequest struct {
	HighAccuracy bool
	MaximumAge   time.Duration
	Timeout      time.Duration
}

// Positioner - a platform positioning service
type Positioner interface {
	// Available reports whether the platform offers positioning at all.
	Available() bool
	// CurrentPosition resolves one fix. Implementations should return when ctx is done.
	CurrentPosition(ctx context.Context, req PositionRequest) (Position, error)
}

// PositionerFunc adapts a function to a Positioner that is always available.
type PositionerFunc func(ctx context.Context, req PositionRequest) (Position, error)

func (f PositionerFunc) Available() bool {
	return f != nil
}

func (f PositionerFunc) CurrentPosition(ctx context.Context, req PositionRequest) (Position, error) {
	return f(ctx, req)
}

// StaticPositioner reports a configured fixed position, e.g. for a wall-mounted kiosk.
type StaticPositioner struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
}

func (s StaticPositioner) Available() bool {
	return true
}

func (s StaticPositioner) CurrentPosition(_ context.Context, _ PositionRequest) (Position, error) {
	return NewPosition(s.Latitude, s.Longitude, s.Accuracy), nil
}

// NewPosition builds a complete Position stamped with the current time.
func NewPosition(lat, lng, accuracy float64) Position {
	return NewPositionAt(lat, lng, accuracy, time.Now())
}

func NewPositionAt(lat, lng, accuracy float64, at time.Time) Position {
	return Position{
		Latitude:  &lat,
		Longitude: &lng,
		Accuracy:  &accuracy,
		Timestamp: at.UTC(),
	}
}
