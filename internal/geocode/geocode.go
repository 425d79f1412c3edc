package geocode

import (
	"context"

	"github.com/example/trip-capture/internal/geo"
)

// Result is one forward-search candidate, in provider order.
type Result struct {
	Title    string         `json:"title"`
	Address  string         `json:"address"`
	Location geo.Coordinate `json:"location"`
	Category string         `json:"category"`
}

// Geocoder is the provider boundary used by the search coordinator and the
// capture session. Both calls honor context cancellation: aborting the
// context aborts the underlying transport request.
type Geocoder interface {
	// Search performs a forward lookup for term, biased around bias.
	Search(ctx context.Context, term string, bias geo.Coordinate) ([]Result, error)
	// Reverse resolves a coordinate to a human-readable address.
	Reverse(ctx context.Context, c geo.Coordinate) (string, error)
}
