// Package projector resolves the ground coordinate a visually-offset marker
// glyph stands for. The picker glyph is drawn with its anchor on its bottom
// edge and its tip a few pixels above the map's true center, so the
// coordinate the user perceives as selected is not the widget's reported
// center. All corrections here are screen-pixel quantities: they compensate
// for a fixed-size glyph, so they must never be converted to lat/lng deltas
// (a geo delta would drift with zoom).
package projector

import (
	"github.com/example/trip-capture/internal/geo"
	"github.com/example/trip-capture/internal/mapview"
)

// Pixel offsets for the production marker asset. Negative Y is up.
const (
	// MarkerTipOffsetY is the vertical distance between the glyph's visual
	// tip and the map center it is drawn over.
	MarkerTipOffsetY = -6.0

	// MarkerAnchorOffsetY is the distance between the glyph's bottom-edge
	// anchor and its visual tip, used when placing a marker for an already
	// captured coordinate.
	MarkerAnchorOffsetY = -34.0
)

// CenterPixel returns the screen pixel of the view's current center.
func CenterPixel(v mapview.View) (geo.Pixel, error) {
	return v.Project(v.Center())
}

// ResolveCaptureCoordinate computes the ground coordinate under the marker
// tip: the center pixel shifted by tipOffsetY, unprojected. The offset is
// applied in pixel space so the correction is identical at every zoom level.
func ResolveCaptureCoordinate(v mapview.View, tipOffsetY float64) (geo.Coordinate, error) {
	center, err := v.Project(v.Center())
	if err != nil {
		return geo.Coordinate{}, err
	}
	tip := geo.Pixel{X: center.X, Y: center.Y + tipOffsetY}
	return v.Unproject(tip)
}

// GlyphPlacement is the inverse use: given a confirmed coordinate, the
// coordinate at which to anchor a drawn glyph so its tip visually lands on
// the captured point.
func GlyphPlacement(v mapview.View, captured geo.Coordinate, anchorOffsetY float64) (geo.Coordinate, error) {
	p, err := v.Project(captured)
	if err != nil {
		return geo.Coordinate{}, err
	}
	anchor := geo.Pixel{X: p.X, Y: p.Y - anchorOffsetY}
	return v.Unproject(anchor)
}
