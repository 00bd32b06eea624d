package match

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/sunbk201/tilespoof/internal/common"
)

// Tile matches requests for one of the configured tiles on the upstream host.
type Tile struct {
	action     common.Action
	host       string
	configPath string
	paths      map[string]struct{}
}

func (t *Tile) Type() common.RuleType {
	return common.RuleTypeTileSpoof
}

func (t *Tile) Match(metadata *common.Metadata) bool {
	if metadata.Request == nil {
		return false
	}
	return t.MatchURL(metadata.Request.URL)
}

// MatchURL reports whether u is a tile of the set. The tiles config endpoint
// itself never matches.
func (t *Tile) MatchURL(u *url.URL) bool {
	if u == nil || u.Path == t.configPath {
		return false
	}
	if !strings.EqualFold(u.Hostname(), t.host) {
		return false
	}
	_, ok := t.paths[u.Path]
	return ok
}

func (t *Tile) Action() common.Action {
	return t.action
}

func (t *Tile) Len() int {
	return len(t.paths)
}

func (t *Tile) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("type", string(t.Type())),
		slog.String("host", t.host),
		slog.Int("tiles", len(t.paths)),
		slog.Any("action", t.action),
	)
}

func NewTile(host, configPath string, tiles []common.TileCoordinate, action common.Action) *Tile {
	paths := make(map[string]struct{}, len(tiles))
	for _, c := range tiles {
		paths[c.Path()] = struct{}{}
	}
	return &Tile{
		action:     action,
		host:       host,
		configPath: configPath,
		paths:      paths,
	}
}
