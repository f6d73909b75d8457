package geo

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"
	log "github.com/sirupsen/logrus"
)

// DefaultUERE is the user equivalent range error in meters used to turn HDOP into an
// accuracy radius.
const DefaultUERE = 5.0

var errNoFix = &PositionError{Code: PositionUnavailable, Message: "gps receiver has no fix"}

// NMEAPositioner reads NMEA 0183 sentences from a GPS receiver. A GGA sentence with a valid
// fix yields a position whose accuracy is HDOP times UERE.
type NMEAPositioner struct {
	open      func() (io.ReadCloser, error)
	available func() bool
	uere      float64
	now       func() time.Time

	mu   sync.Mutex
	last *Position
}

// NewNMEAPositioner reads sentences from whatever open returns on every request.
func NewNMEAPositioner(open func() (io.ReadCloser, error), uere float64) *NMEAPositioner {
	if uere <= 0 {
		uere = DefaultUERE
	}
	return &NMEAPositioner{
		open:      open,
		available: func() bool { return open != nil },
		uere:      uere,
		now:       time.Now,
	}
}

// NewNMEADevicePositioner reads sentences from a serial device such as /dev/ttyACM0.
func NewNMEADevicePositioner(path string, uere float64) *NMEAPositioner {
	p := NewNMEAPositioner(func() (io.ReadCloser, error) {
		return os.Open(path)
	}, uere)
	p.available = func() bool {
		if path == "" {
			return false
		}
		_, err := os.Stat(path)
		return err == nil || errors.Is(err, fs.ErrPermission)
	}
	return p
}

func (n *NMEAPositioner) Available() bool {
	return n.available()
}

func (n *NMEAPositioner) CurrentPosition(ctx context.Context, req PositionRequest) (Position, error) {
	if cached, ok := n.cached(req.MaximumAge); ok {
		return cached, nil
	}

	rc, err := n.open()
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return Position{}, &PositionError{Code: PermissionDenied, Message: err.Error()}
		}
		return Position{}, &PositionError{Code: PositionUnavailable, Message: err.Error()}
	}

	// closing the reader is the only way to unblock a pending serial read
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = rc.Close()
	}()

	pos, err := n.scan(rc, req.HighAccuracy)
	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		return Position{}, &PositionError{Code: PositionTimeout, Message: ctxErr.Error()}
	}
	if err != nil {
		return Position{}, err
	}

	n.mu.Lock()
	n.last = &pos
	n.mu.Unlock()

	return pos, nil
}

func (n *NMEAPositioner) cached(maxAge time.Duration) (Position, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.last == nil || maxAge <= 0 {
		return Position{}, false
	}
	if n.now().Sub(n.last.Timestamp) > maxAge {
		return Position{}, false
	}
	return *n.last, true
}

func (n *NMEAPositioner) scan(r io.Reader, highAccuracy bool) (Position, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			log.WithField("prefix", logPrefix).Debugf("skip nmea sentence: %s", err)
			continue
		}

		switch s := sentence.(type) {
		case nmea.GGA:
			if s.FixQuality == nmea.Invalid || s.HDOP <= 0 {
				continue
			}
			return NewPositionAt(s.Latitude, s.Longitude, s.HDOP*n.uere, n.now()), nil
		case nmea.RMC:
			// RMC carries no dilution of precision, so the fix has no accuracy radius
			if highAccuracy || s.Validity != nmea.ValidRMC {
				continue
			}
			lat, lng := s.Latitude, s.Longitude
			return Position{Latitude: &lat, Longitude: &lng, Timestamp: n.now().UTC()}, nil
		}
	}

	if err := scanner.Err(); err != nil {
		return Position{}, &PositionError{Code: PositionUnavailable, Message: err.Error()}
	}

	return Position{}, errNoFix
}
