// Package rule builds the tile spoof and paint override rules.
package rule

import (
	"fmt"
	"log/slog"

	"github.com/sunbk201/tilespoof/internal/common"
	"github.com/sunbk201/tilespoof/internal/rule/action"
	"github.com/sunbk201/tilespoof/internal/rule/match"
	"github.com/sunbk201/tilespoof/internal/statistics"
)

type Options struct {
	UpstreamHost string
	ConfigPath   string
	MirrorOrigin string
	PaintMarker  string
	Tiles        []common.TileCoordinate
	Rewriter     action.PayloadRewriter
	Recorder     *statistics.Recorder
}

// Set holds the two rules consulted for every request.
type Set struct {
	Spoof    *match.Tile
	Override *match.Paint
}

func NewSet(opts Options) (*Set, error) {
	redirect, err := action.NewRedirectOrigin(opts.Recorder, opts.MirrorOrigin)
	if err != nil {
		return nil, err
	}
	if opts.Rewriter == nil {
		return nil, fmt.Errorf("no payload rewriter")
	}
	paint, err := match.NewPaint(opts.PaintMarker, action.NewOverridePayload(opts.Recorder, opts.Rewriter))
	if err != nil {
		return nil, err
	}

	set := &Set{
		Spoof:    match.NewTile(opts.UpstreamHost, opts.ConfigPath, opts.Tiles, redirect),
		Override: paint,
	}
	slog.Info("Rules loaded", slog.Any("spoof", set.Spoof), slog.Any("override", set.Override))
	return set, nil
}
