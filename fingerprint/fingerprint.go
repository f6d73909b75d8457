// Package fingerprint derives a stable, non-reversible identifier for the current device from
// a closed set of low-entropy signals. No hardware serial, IMEI or MAC address is ever read:
// Environment deliberately has no method that could return one.
package fingerprint

import (
	"context"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	logPrefix = "fingerprint"

	// Delimiter joins the signals. It does not occur in any of them naturally.
	Delimiter = "||"
)

// Environment exposes the ambient values a browser would observe.
type Environment interface {
	UserAgent() string
	ScreenSize() (width, height int)
	TimeZone() string
	Language() string
}

// Signals is the ordered signal tuple the digest is computed over.
type Signals struct {
	UserAgent    string
	ScreenWidth  string
	ScreenHeight string
	TimeZone     string
	Language     string
	Canvas       string
}

// List returns the signals in their canonical order.
func (s Signals) List() []string {
	return []string{s.UserAgent, s.ScreenWidth, s.ScreenHeight, s.TimeZone, s.Language, s.Canvas}
}

// Raw returns the canonical raw fingerprint string.
func (s Signals) Raw() string {
	return strings.Join(s.List(), Delimiter)
}

// Fingerprinter computes device digests. It holds no state between calls.
type Fingerprinter struct {
	env      Environment
	surface  SurfaceFactory
	digester Digester
}

// Option configures a Fingerprinter
type Option func(*Fingerprinter)

// WithSurface replaces the canvas surface. A nil factory means no canvas is available.
func WithSurface(factory SurfaceFactory) Option {
	return func(f *Fingerprinter) { f.surface = factory }
}

// WithDigester replaces the hash primitive. A nil digester means none is available.
func WithDigester(d Digester) Option {
	return func(f *Fingerprinter) { f.digester = d }
}

// New returns a Fingerprinter rendering on a raster surface and hashing with SHA-256.
func New(env Environment, opts ...Option) *Fingerprinter {
	f := &Fingerprinter{
		env:      env,
		surface:  NewRasterSurface,
		digester: DefaultDigester,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Signals collects the signal tuple. A missing signal becomes an empty string.
func (f *Fingerprinter) Signals() Signals {
	var s Signals
	if f.env != nil {
		width, height := f.env.ScreenSize()
		s.UserAgent = f.env.UserAgent()
		s.ScreenWidth = dimension(width)
		s.ScreenHeight = dimension(height)
		s.TimeZone = f.env.TimeZone()
		s.Language = f.env.Language()
	}
	s.Canvas = CanvasSignature(f.surface)
	return s
}

// Digest returns the lowercase hex SHA-256 of the raw fingerprint string, or an
// *UnsupportedCryptoError when no strong digest is available. It never returns a weaker
// identifier.
func (f *Fingerprinter) Digest(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	digest, err := hashHex(f.digester, f.Signals().Raw())
	if err != nil {
		log.WithField("prefix", logPrefix).Warn(err)
		return "", err
	}

	return digest, nil
}

func dimension(v int) string {
	if v <= 0 {
		return ""
	}
	return strconv.Itoa(v)
}
