package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/example/trip-capture/internal/geo"
)

// HTTPGeocoder talks to a JSON geocoding provider over HTTP.
// No client-side timeout is set: cancellation comes from the caller's
// context, which is how the search coordinator aborts superseded requests.
type HTTPGeocoder struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

func NewHTTPGeocoder(endpoint, apiKey string) *HTTPGeocoder {
	return &HTTPGeocoder{Endpoint: endpoint, APIKey: apiKey, Client: &http.Client{}}
}

type searchResponse struct {
	Count int      `json:"count"`
	Items []Result `json:"items"`
}

type reverseResponse struct {
	FormattedAddress string `json:"formatted_address"`
}

func (g *HTTPGeocoder) Search(ctx context.Context, term string, bias geo.Coordinate) ([]Result, error) {
	q := url.Values{}
	q.Set("term", term)
	q.Set("lat", fmt.Sprintf("%.6f", bias.Lat))
	q.Set("lng", fmt.Sprintf("%.6f", bias.Lng))
	var out searchResponse
	if err := g.get(ctx, "/v1/search", q, &out); err != nil {
		return nil, err
	}
	// provider order preserved, never re-sorted
	return out.Items, nil
}

func (g *HTTPGeocoder) Reverse(ctx context.Context, c geo.Coordinate) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.6f", c.Lat))
	q.Set("lng", fmt.Sprintf("%.6f", c.Lng))
	var out reverseResponse
	if err := g.get(ctx, "/v1/reverse", q, &out); err != nil {
		return "", err
	}
	return out.FormattedAddress, nil
}

func (g *HTTPGeocoder) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.Endpoint+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	if g.APIKey != "" {
		req.Header.Set("Api-Key", g.APIKey)
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("geocode provider status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
