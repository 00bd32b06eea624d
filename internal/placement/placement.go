// Package placement talks to the local placement provider that tells which
// pixels still have to be painted on each tile.
package placement

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sunbk201/tilespoof/internal/common"
)

// Placement is the pending work on one tile. Coords holds interleaved x/y
// pairs, so len(Coords) == 2*len(Colors).
type Placement struct {
	Coords []int `json:"coords"`
	Colors []int `json:"colors"`
}

// Map is keyed by tile row then column, both as decimal strings.
type Map map[string]map[string]Placement

func (m Map) Lookup(row, col string) (Placement, error) {
	cols, ok := m[row]
	if !ok {
		return Placement{}, &common.IndexError{Row: row, Col: col}
	}
	p, ok := cols[col]
	if !ok {
		return Placement{}, &common.IndexError{Row: row, Col: col}
	}
	return p, nil
}

// Add appends one pixel to the placement of tile (row, col).
func (m Map) Add(row, col string, x, y, color int) {
	cols, ok := m[row]
	if !ok {
		cols = make(map[string]Placement)
		m[row] = cols
	}
	p := cols[col]
	p.Coords = append(p.Coords, x, y)
	p.Colors = append(p.Colors, color)
	cols[col] = p
}

// Pixels returns the total number of pending pixels.
func (m Map) Pixels() int {
	n := 0
	for _, cols := range m {
		for _, p := range cols {
			n += len(p.Colors)
		}
	}
	return n
}

// Client queries the provider. It must be given a client whose transport is
// not itself intercepted.
type Client struct {
	url    string
	client *http.Client
}

func NewClient(rawURL string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{url: rawURL, client: client}
}

func (c *Client) URL() string { return c.url }

// Fetch returns the full placement map. Every failure, including a body that
// is not a placement map, is a *common.ProviderUnavailableError.
func (c *Client) Fetch(ctx context.Context) (Map, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, &common.ProviderUnavailableError{URL: c.url, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &common.ProviderUnavailableError{URL: c.url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &common.ProviderUnavailableError{URL: c.url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	var m Map
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, &common.ProviderUnavailableError{URL: c.url, Err: fmt.Errorf("decode placement map: %w", err)}
	}
	if m == nil {
		return nil, &common.ProviderUnavailableError{URL: c.url, Err: fmt.Errorf("placement map is null")}
	}
	return m, nil
}
