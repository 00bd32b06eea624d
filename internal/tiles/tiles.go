// Package tiles loads the list of spoof-eligible tile coordinates.
package tiles

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/sunbk201/tilespoof/internal/common"
)

// Provider fetches the coordinate list from the configuration endpoint.
type Provider struct {
	url    string
	client *http.Client
}

func NewProvider(rawURL string, client *http.Client) *Provider {
	if client == nil {
		client = http.DefaultClient
	}
	return &Provider{url: rawURL, client: client}
}

// Load fetches the list with cache-busting headers and query, so no HTTP
// cache on the way can answer with a stale copy.
func (p *Provider) Load(ctx context.Context) ([]common.TileCoordinate, error) {
	u, err := url.Parse(p.url)
	if err != nil {
		return nil, fmt.Errorf("parse tiles config url: %w", err)
	}
	q := u.Query()
	q.Set("_", strconv.FormatInt(time.Now().UnixNano(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch tiles config: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch tiles config: unexpected status %s", resp.Status)
	}

	coords, err := Decode(resp.Body)
	if err != nil {
		return nil, err
	}
	slog.Info("Loaded tiles config", slog.String("url", p.url), slog.Int("tiles", len(coords)))
	return coords, nil
}

// LoadFile reads the same format from a local file.
func LoadFile(path string) ([]common.TileCoordinate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

// Decode parses `[[x, y], ...]`. Only the shape is checked: each entry needs
// at least two integral numbers, extra elements are ignored.
func Decode(r io.Reader) ([]common.TileCoordinate, error) {
	var raw [][]float64
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode tiles config: %w", err)
	}

	coords := make([]common.TileCoordinate, 0, len(raw))
	for i, pair := range raw {
		if len(pair) < 2 {
			return nil, fmt.Errorf("decode tiles config: entry %d has %d elements, want 2", i, len(pair))
		}
		if pair[0] != math.Trunc(pair[0]) || pair[1] != math.Trunc(pair[1]) {
			return nil, fmt.Errorf("decode tiles config: entry %d is not an integer pair", i)
		}
		coords = append(coords, common.TileCoordinate{X: int(pair[0]), Y: int(pair[1])})
	}
	return coords, nil
}
