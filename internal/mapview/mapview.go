package mapview

import (
	"errors"

	"github.com/example/trip-capture/internal/geo"
)

// ErrNotReady is returned by coordinate transforms before the map widget has
// reported its first layout. Callers defer the operation; they do not retry
// in a loop and they do not treat this as a failure.
var ErrNotReady = errors.New("map view not ready")

// View is the capability set the capture subsystem needs from a map widget.
// The widget is externally owned; nothing here assumes exclusive access or a
// particular projection.
type View interface {
	Center() geo.Coordinate
	Zoom() float64
	// Project converts a ground coordinate to a screen pixel for the current
	// viewport. Returns ErrNotReady before the first layout pass.
	Project(geo.Coordinate) (geo.Pixel, error)
	// Unproject is the inverse of Project.
	Unproject(geo.Pixel) (geo.Coordinate, error)
	Ready() bool
	SetCenter(geo.Coordinate) error
	SetZoom(float64) error
}
