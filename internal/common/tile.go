package common

import (
	"fmt"
	"log/slog"
)

// TilePathFormat is the upstream path template of a tile image.
const TilePathFormat = "/files/s0/tiles/%d/%d.png"

type TileCoordinate struct {
	X int
	Y int
}

func (t TileCoordinate) Path() string {
	return fmt.Sprintf(TilePathFormat, t.X, t.Y)
}

func (t TileCoordinate) String() string {
	return fmt.Sprintf("(%d,%d)", t.X, t.Y)
}

func (t TileCoordinate) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("x", t.X),
		slog.Int("y", t.Y),
	)
}
