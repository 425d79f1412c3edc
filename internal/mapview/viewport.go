package mapview

import (
	"fmt"
	"math"
	"sync"

	"github.com/example/trip-capture/internal/geo"
)

const tileSize = 256.0

// Viewport is a server-side View backed by the spherical (Web) Mercator
// projection. It mirrors the state the browser widget reports over the wire:
// screen size, center and zoom. It stays not-ready until the client sends its
// first layout frame, which reproduces the widget's own first-layout gap.
type Viewport struct {
	mu     sync.RWMutex
	width  float64
	height float64
	center geo.Coordinate
	zoom   float64
	ready  bool
}

// NewViewport returns an unlaid-out viewport. Transforms fail with
// ErrNotReady until Layout is called.
func NewViewport() *Viewport {
	return &Viewport{}
}

// Layout records the widget's reported screen size and initial camera, and
// marks the viewport ready.
func (v *Viewport) Layout(width, height float64, center geo.Coordinate, zoom float64) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("viewport layout: non-positive size %gx%g", width, height)
	}
	if err := center.Validate(); err != nil {
		return fmt.Errorf("viewport layout: %w", err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.width, v.height = width, height
	v.center, v.zoom = center, zoom
	v.ready = true
	return nil
}

func (v *Viewport) Ready() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.ready
}

func (v *Viewport) Center() geo.Coordinate {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.center
}

func (v *Viewport) Zoom() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.zoom
}

func (v *Viewport) SetCenter(c geo.Coordinate) error {
	if err := c.Validate(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.center = c
	return nil
}

func (v *Viewport) SetZoom(z float64) error {
	if z < 0 || z > 22 {
		return fmt.Errorf("zoom %g out of range", z)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.zoom = z
	return nil
}

// Project converts a ground coordinate to a viewport pixel, origin top-left.
func (v *Viewport) Project(c geo.Coordinate) (geo.Pixel, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.ready {
		return geo.Pixel{}, ErrNotReady
	}
	if err := c.Validate(); err != nil {
		return geo.Pixel{}, err
	}
	world := worldPixel(c, v.zoom)
	origin := worldPixel(v.center, v.zoom)
	return geo.Pixel{
		X: world.X - origin.X + v.width/2,
		Y: world.Y - origin.Y + v.height/2,
	}, nil
}

// Unproject converts a viewport pixel back to a ground coordinate.
func (v *Viewport) Unproject(p geo.Pixel) (geo.Coordinate, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.ready {
		return geo.Coordinate{}, ErrNotReady
	}
	origin := worldPixel(v.center, v.zoom)
	world := geo.Pixel{
		X: p.X + origin.X - v.width/2,
		Y: p.Y + origin.Y - v.height/2,
	}
	return worldCoordinate(world, v.zoom), nil
}

// worldPixel maps a coordinate into the global Mercator pixel plane at the
// given zoom (tileSize * 2^zoom pixels per world edge).
func worldPixel(c geo.Coordinate, zoom float64) geo.Pixel {
	scale := tileSize * math.Pow(2, zoom)
	latRad := c.Lat * math.Pi / 180
	x := (c.Lng + 180) / 360 * scale
	y := (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * scale
	return geo.Pixel{X: x, Y: y}
}

func worldCoordinate(p geo.Pixel, zoom float64) geo.Coordinate {
	scale := tileSize * math.Pow(2, zoom)
	lng := p.X/scale*360 - 180
	n := math.Pi - 2*math.Pi*p.Y/scale
	lat := 180 / math.Pi * math.Atan(0.5*(math.Exp(n)-math.Exp(-n)))
	return geo.Coordinate{Lat: lat, Lng: lng}
}
