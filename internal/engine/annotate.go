package engine

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"cvcounter/internal/geo"
	"cvcounter/internal/tracker"
)

const annotationQuality = 85

var (
	areaFillColor  = color.RGBA{R: 30, G: 144, B: 255, A: 255}
	countedColor   = color.RGBA{R: 0, G: 200, B: 0, A: 255}
	uncountedColor = color.RGBA{R: 220, G: 0, B: 220, A: 255}
	circleRadius   = 6
	areaAlpha      = 0.4
)

// annotate draws the counting-area polygon (alpha-blended) and a marker per
// track (green if already counted, magenta otherwise) onto a JPEG frame,
// following this codebase's own box/label overlay drawing
// (internal/stream/mjpeg.go's drawOverlays/drawBox) generalized from
// rectangle boxes to a filled polygon and per-track centroid markers.
func (e *Engine) annotate(jpegData []byte, tracks []tracker.Track) []byte {
	img, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return jpegData
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	drawPolygonFill(rgba, e.area, areaFillColor, areaAlpha)

	e.mu.Lock()
	tracked := make(map[int]bool, len(e.trackedIDs))
	for id := range e.trackedIDs {
		tracked[id] = true
	}
	e.mu.Unlock()

	for _, tr := range tracks {
		c := geo.Centroid(tr.X1, tr.Y1, tr.X2, tr.Y2)
		col := uncountedColor
		if tracked[tr.ID] {
			col = countedColor
		}
		drawFilledCircle(rgba, c.X, c.Y, circleRadius, col)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: annotationQuality}); err != nil {
		return jpegData
	}
	return buf.Bytes()
}

// overlayFPS draws the most recently observed ingestion rate in the
// top-left corner, gated behind the debug flag the same way this
// codebase's stream package only pays for text rendering when requested.
func (e *Engine) overlayFPS(jpegData []byte, fps float64) []byte {
	img, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return jpegData
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	label := fmt.Sprintf("%.1f fps", fps)
	drawer := &font.Drawer{
		Dst:  rgba,
		Src:  image.NewUniform(color.RGBA{R: 255, G: 255, B: 0, A: 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(bounds.Min.X+8, bounds.Min.Y+16),
	}
	drawer.DrawString(label)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: annotationQuality}); err != nil {
		return jpegData
	}
	return buf.Bytes()
}

// drawPolygonFill alpha-blends fillColor over every pixel inside poly's
// bounding box that the point-in-polygon predicate accepts.
func drawPolygonFill(img *image.RGBA, poly geo.Polygon, fillColor color.RGBA, alpha float64) {
	if len(poly) == 0 {
		return
	}
	minX, minY, maxX, maxY := poly[0].X, poly[0].Y, poly[0].X, poly[0].Y
	for _, p := range poly {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}

	bounds := img.Bounds()
	for y := minY; y <= maxY; y++ {
		if y < bounds.Min.Y || y >= bounds.Max.Y {
			continue
		}
		for x := minX; x <= maxX; x++ {
			if x < bounds.Min.X || x >= bounds.Max.X {
				continue
			}
			if !geo.Contains(geo.Point{X: x, Y: y}, poly) {
				continue
			}
			blendPixel(img, x, y, fillColor, alpha)
		}
	}
}

func blendPixel(img *image.RGBA, x, y int, c color.RGBA, alpha float64) {
	existing := img.RGBAAt(x, y)
	blend := func(bg, fg uint8) uint8 {
		return uint8(float64(bg)*(1-alpha) + float64(fg)*alpha)
	}
	img.SetRGBA(x, y, color.RGBA{
		R: blend(existing.R, c.R),
		G: blend(existing.G, c.G),
		B: blend(existing.B, c.B),
		A: 255,
	})
}

func drawFilledCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	bounds := img.Bounds()
	r2 := radius * radius
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy > r2 {
				continue
			}
			x, y := cx+dx, cy+dy
			if x < bounds.Min.X || x >= bounds.Max.X || y < bounds.Min.Y || y >= bounds.Max.Y {
				continue
			}
			img.Set(x, y, c)
		}
	}
}
