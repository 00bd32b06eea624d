// Package mirror serves local copies of the configured tiles, with every
// pixel that differs from the stored blueprint highlighted, and reports
// those pixels as the placement map.
package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sunbk201/tilespoof/internal/common"
	"github.com/sunbk201/tilespoof/internal/placement"
	"github.com/sunbk201/tilespoof/internal/tiles"
)

const (
	highlightMargin = 4
	tileCacheSize   = 128
	browserUA       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

var highlight = color.NRGBA{R: 255, G: 0, B: 255, A: 80}

// Summary is the outcome of one update.
type Summary struct {
	Tiles   int `json:"tiles"`
	Missing int `json:"missing"`
	// Placeable counts the missing pixels whose color is in the palette.
	Placeable int     `json:"placeable"`
	Hours     float64 `json:"hours"`
}

type UpdaterOptions struct {
	DataDir   string
	TilesFile string
	// Upstream is the origin the current tiles are downloaded from.
	Upstream string
	Client   *http.Client
	CacheTTL time.Duration
}

// Updater downloads the configured tiles and diffs them against their
// blueprints. Updates are serialized.
type Updater struct {
	opts  UpdaterOptions
	cache *expirable.LRU[string, []byte]

	mu        sync.Mutex
	placement placement.Map
	summary   Summary
}

func NewUpdater(opts UpdaterOptions) *Updater {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.TilesFile == "" {
		opts.TilesFile = "config.json"
	}
	u := &Updater{
		opts:      opts,
		placement: placement.Map{},
	}
	if opts.CacheTTL > 0 {
		u.cache = expirable.NewLRU[string, []byte](tileCacheSize, nil, opts.CacheTTL)
	}
	return u
}

func (u *Updater) TilesPath() string {
	return filepath.Join(u.opts.DataDir, u.opts.TilesFile)
}

func (u *Updater) tilePath(c common.TileCoordinate) string {
	return filepath.Join(u.opts.DataDir, filepath.FromSlash(c.Path()))
}

func (u *Updater) blueprintPath(c common.TileCoordinate) string {
	return filepath.Join(u.opts.DataDir, "blueprints", strconv.Itoa(c.X), strconv.Itoa(c.Y)+"blueprint.png")
}

// Placement returns the map computed by the last update.
func (u *Updater) Placement() placement.Map {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.placement
}

// ErrTilesFile marks an update that failed before any tile was processed,
// leaving the previous placement in place.
var ErrTilesFile = errors.New("load tiles file")

// Update refreshes every tile of the tiles file. A tile that fails is logged
// and skipped; the joined errors are returned after the remaining tiles are
// processed.
func (u *Updater) Update(ctx context.Context) (Summary, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	coords, err := tiles.LoadFile(u.TilesPath())
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %w", ErrTilesFile, err)
	}

	m := placement.Map{}
	summary := Summary{Tiles: len(coords)}
	var errs []error
	for _, c := range coords {
		missing, err := u.updateTile(ctx, c, m)
		if err != nil {
			slog.Warn("Tile update failed", slog.Any("tile", c), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("tile %s: %w", c, err))
			continue
		}
		summary.Missing += missing
	}
	summary.Placeable = m.Pixels()
	summary.Hours = math.Round(float64(summary.Missing)/2/60*10) / 10

	u.placement = m
	u.summary = summary
	slog.Info("Updated diff", slog.Int("missing_pixels", summary.Missing), slog.Float64("hours_to_regenerate", summary.Hours))
	return summary, errors.Join(errs...)
}

func (u *Updater) updateTile(ctx context.Context, c common.TileCoordinate, m placement.Map) (int, error) {
	data, err := u.download(ctx, c)
	if err != nil {
		return 0, err
	}

	tilePath := u.tilePath(c)
	if err := writeFile(tilePath, data); err != nil {
		return 0, err
	}
	bpPath := u.blueprintPath(c)
	if _, err := os.Stat(bpPath); errors.Is(err, os.ErrNotExist) {
		if err := writeFile(bpPath, data); err != nil {
			return 0, err
		}
		slog.Info("Created blueprint", slog.Any("tile", c), slog.String("path", bpPath))
	}

	current, err := decodePNG(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("decode tile: %w", err)
	}
	f, err := os.Open(bpPath)
	if err != nil {
		return 0, err
	}
	blueprint, err := decodePNG(f)
	_ = f.Close()
	if err != nil {
		return 0, fmt.Errorf("decode blueprint: %w", err)
	}

	row, col := strconv.Itoa(c.X), strconv.Itoa(c.Y)
	d := Diff(current, blueprint)
	for _, p := range d.Pixels {
		if id, ok := ColorID(p.Color.R, p.Color.G, p.Color.B); ok {
			m.Add(row, col, p.X, p.Y, id)
		}
	}
	if len(d.Pixels) == 0 {
		return 0, nil
	}

	Highlight(current, d)
	var buf bytes.Buffer
	if err := png.Encode(&buf, current); err != nil {
		return 0, fmt.Errorf("encode tile: %w", err)
	}
	if err := writeFile(tilePath, buf.Bytes()); err != nil {
		return 0, err
	}
	return len(d.Pixels), nil
}

func (u *Updater) download(ctx context.Context, c common.TileCoordinate) ([]byte, error) {
	url := u.opts.Upstream + c.Path()
	if u.cache != nil {
		if data, ok := u.cache.Get(url); ok {
			return data, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", "image/png,image/*;q=0.8")

	resp, err := u.opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	if u.cache != nil {
		u.cache.Add(url, data)
	}
	return data, nil
}

// Run updates once right away and then every interval until ctx is done.
func (u *Updater) Run(ctx context.Context, interval time.Duration) {
	if _, err := u.Update(ctx); err != nil {
		slog.Error("Initial update failed", slog.Any("error", err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := u.Update(ctx); err != nil {
				slog.Error("Periodic update failed", slog.Any("error", err))
			}
		}
	}
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func decodePNG(r io.Reader) (*image.NRGBA, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, err
	}
	return toNRGBA(img), nil
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.SetNRGBA(x-b.Min.X, y-b.Min.Y, color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA))
		}
	}
	return out
}
