package geo

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const (
	// GeoPositionHeader carries a fix from the kiosk browser as "lat;lng[;accuracy]".
	GeoPositionHeader = "Geo-Position"
	// GeoPositionErrorHeader carries the browser's GeolocationPositionError code instead.
	GeoPositionErrorHeader = "Geo-Position-Error"
)

// ParseGeoPosition parses latitude, longitude and the optional accuracy from a geo-position
// string. A missing accuracy is left nil so the gate rejects the fix.
func ParseGeoPosition(geoPosition string) (Position, error) {
	parts := strings.Split(strings.TrimSpace(geoPosition), ";")
	if len(parts) != 2 && len(parts) != 3 {
		return Position{}, fmt.Errorf("invalid geo-position value")
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Position{}, err
	}

	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Position{}, err
	}

	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return Position{}, fmt.Errorf("geo-position out of range")
	}

	pos := Position{Latitude: &lat, Longitude: &lng}
	if len(parts) == 3 && strings.TrimSpace(parts[2]) != "" {
		accuracy, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return Position{}, err
		}
		if accuracy < 0 {
			return Position{}, fmt.Errorf("negative geo-position accuracy")
		}
		pos.Accuracy = &accuracy
	}

	return pos, nil
}

// HeaderPositioner replays what the kiosk browser reported in its request headers. It is
// unavailable when the browser sent neither a position nor an error.
type HeaderPositioner struct {
	Position string
	Error    string
}

func (h HeaderPositioner) Available() bool {
	return h.Position != "" || h.Error != ""
}

func (h HeaderPositioner) CurrentPosition(_ context.Context, _ PositionRequest) (Position, error) {
	if h.Error != "" {
		code, err := strconv.Atoi(strings.TrimSpace(h.Error))
		if err != nil {
			return Position{}, fmt.Errorf("invalid geo-position error code %q", h.Error)
		}
		return Position{}, &PositionError{Code: PositionErrorCode(code)}
	}

	pos, err := ParseGeoPosition(h.Position)
	if err != nil {
		return Position{}, &PositionError{Code: PositionUnavailable, Message: err.Error()}
	}
	return pos, nil
}
