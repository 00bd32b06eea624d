// Package rewrite replaces the pixel list of a paint request with the
// pending pixels reported by the placement provider.
package rewrite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/sunbk201/tilespoof/internal/common"
	"github.com/sunbk201/tilespoof/internal/placement"
	"github.com/sunbk201/tilespoof/internal/prompt"
)

// Provider returns a fresh placement map on every call.
type Provider interface {
	Fetch(ctx context.Context) (placement.Map, error)
}

type Rewriter struct {
	provider Provider
	prompter prompt.Prompter
}

func New(provider Provider, prompter prompt.Prompter) *Rewriter {
	return &Rewriter{provider: provider, prompter: prompter}
}

type Result struct {
	Body      []byte
	Row       string
	Col       string
	Count     int
	Available int
}

func (r *Result) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("row", r.Row),
		slog.String("col", r.Col),
		slog.Int("pixels", r.Count),
		slog.Int("available", r.Available),
	)
}

// Rewrite returns body with its coords and colors fields replaced. The
// remaining fields are kept byte for byte. body itself is never modified.
func (r *Rewriter) Rewrite(ctx context.Context, path string, body []byte) (*Result, error) {
	if !gjson.ValidBytes(body) {
		return nil, &common.PayloadParseError{Err: errors.New("malformed JSON")}
	}
	if !gjson.ParseBytes(body).IsObject() {
		return nil, &common.PayloadParseError{Err: errors.New("not an object")}
	}

	row, col := PathIndex(path)

	m, err := r.provider.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	p, err := m.Lookup(row, col)
	if err != nil {
		return nil, err
	}

	answer, err := r.prompter.PixelCount(ctx, prompt.Request{Row: row, Col: col, Available: len(p.Colors)})
	if err != nil {
		return nil, fmt.Errorf("prompt pixel count: %w", err)
	}
	count := prompt.ParseCount(answer)

	coords := p.Coords[:min(2*count, len(p.Coords))]
	colors := p.Colors[:min(count, len(p.Colors))]

	out, err := setIntArray(body, "coords", coords)
	if err != nil {
		return nil, err
	}
	out, err = setIntArray(out, "colors", colors)
	if err != nil {
		return nil, err
	}

	return &Result{
		Body:      out,
		Row:       row,
		Col:       col,
		Count:     len(colors),
		Available: len(p.Colors),
	}, nil
}

// PathIndex returns the last two segments of path, used as row and column
// of the placement map.
func PathIndex(path string) (row, col string) {
	segs := strings.Split(path, "/")
	if len(segs) < 2 {
		return "", segs[len(segs)-1]
	}
	return segs[len(segs)-2], segs[len(segs)-1]
}

func setIntArray(body []byte, key string, values []int) ([]byte, error) {
	if values == nil {
		values = []int{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	out, err := sjson.SetRawBytes(body, key, raw)
	if err != nil {
		return nil, fmt.Errorf("set %s: %w", key, err)
	}
	return out, nil
}
