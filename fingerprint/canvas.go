package fingerprint

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/fogleman/gg"
	"github.com/mazznoer/csscolorparser"
	"golang.org/x/image/font/basicfont"
)

const (
	CanvasWidth  = 200
	CanvasHeight = 50

	// NoCanvas stands in for the signature when no drawing surface exists.
	NoCanvas = "no-canvas"
	// CanvasError stands in for the signature when rendering failed.
	CanvasError = "canvas-error"

	canvasText = "NYSC-ATTENDANCE-FP"
	canvasFont = "14px 'Arial'"
)

// Surface is a 2D drawing surface with canvas semantics.
type Surface interface {
	SetFont(font string)
	SetFillStyle(style string) error
	SetStrokeStyle(style string) error
	FillRect(x, y, w, h float64)
	StrokeRect(x, y, w, h float64)
	FillText(text string, x, y float64)
	DataURL() (string, error)
}

// SurfaceFactory creates a surface of the given size, or returns nil if drawing is not
// supported.
type SurfaceFactory func(width, height int) Surface

// CanvasSignature renders the fixed pattern and returns the serialized bitmap. It never
// fails: absence and rendering errors yield distinct sentinels.
func CanvasSignature(factory SurfaceFactory) (signature string) {
	if factory == nil {
		return NoCanvas
	}

	defer func() {
		if r := recover(); r != nil {
			signature = CanvasError
		}
	}()

	s := factory(CanvasWidth, CanvasHeight)
	if s == nil {
		return NoCanvas
	}

	if err := drawPattern(s); err != nil {
		return CanvasError
	}

	url, err := s.DataURL()
	if err != nil || url == "" {
		return CanvasError
	}
	return url
}

func drawPattern(s Surface) error {
	s.SetFont(canvasFont)
	if err := s.SetFillStyle("#f60"); err != nil {
		return err
	}
	s.FillRect(0, 0, CanvasWidth, CanvasHeight)
	if err := s.SetFillStyle("#069"); err != nil {
		return err
	}
	s.FillText(canvasText, 2, 15)
	if err := s.SetStrokeStyle("rgba(120, 186, 176, 0.5)"); err != nil {
		return err
	}
	s.StrokeRect(5, 5, 180, 40)
	return nil
}

// rasterSurface renders with gg. Text uses a fixed bitmap face whatever font is requested,
// so output only varies with the rasterizer.
type rasterSurface struct {
	dc     *gg.Context
	fill   csscolorparser.Color
	stroke csscolorparser.Color
}

// NewRasterSurface is the default SurfaceFactory.
func NewRasterSurface(width, height int) Surface {
	if width <= 0 || height <= 0 {
		return nil
	}
	black := csscolorparser.Color{A: 1}
	return &rasterSurface{dc: gg.NewContext(width, height), fill: black, stroke: black}
}

func (r *rasterSurface) SetFont(string) {
	r.dc.SetFontFace(basicfont.Face7x13)
}

func (r *rasterSurface) SetFillStyle(style string) error {
	c, err := csscolorparser.Parse(style)
	if err != nil {
		return fmt.Errorf("fill style %q: %w", style, err)
	}
	r.fill = c
	return nil
}

func (r *rasterSurface) SetStrokeStyle(style string) error {
	c, err := csscolorparser.Parse(style)
	if err != nil {
		return fmt.Errorf("stroke style %q: %w", style, err)
	}
	r.stroke = c
	return nil
}

func (r *rasterSurface) FillRect(x, y, w, h float64) {
	r.dc.DrawRectangle(x, y, w, h)
	r.dc.SetRGBA(r.fill.R, r.fill.G, r.fill.B, r.fill.A)
	r.dc.Fill()
}

func (r *rasterSurface) StrokeRect(x, y, w, h float64) {
	r.dc.DrawRectangle(x, y, w, h)
	r.dc.SetRGBA(r.stroke.R, r.stroke.G, r.stroke.B, r.stroke.A)
	r.dc.SetLineWidth(1)
	r.dc.Stroke()
}

func (r *rasterSurface) FillText(text string, x, y float64) {
	r.dc.SetRGBA(r.fill.R, r.fill.G, r.fill.B, r.fill.A)
	r.dc.DrawString(text, x, y)
}

func (r *rasterSurface) DataURL() (string, error) {
	var buf bytes.Buffer
	if err := r.dc.EncodePNG(&buf); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
