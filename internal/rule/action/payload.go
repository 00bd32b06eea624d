package action

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sunbk201/tilespoof/internal/common"
	"github.com/sunbk201/tilespoof/internal/rewrite"
	"github.com/sunbk201/tilespoof/internal/statistics"
)

type PayloadRewriter interface {
	Rewrite(ctx context.Context, path string, body []byte) (*rewrite.Result, error)
}

// OverridePayload replaces the pixels of a paint request body.
type OverridePayload struct {
	recorder *statistics.Recorder
	rewriter PayloadRewriter
}

func (o *OverridePayload) Type() common.ActionType {
	return common.ActionOverridePayload
}

func (o *OverridePayload) Execute(ctx context.Context, metadata *common.Metadata) error {
	body, err := metadata.RequestBody()
	if err != nil {
		return &common.PayloadParseError{Err: err}
	}

	res, err := o.rewriter.Rewrite(ctx, metadata.Path(), body)
	if err != nil {
		return err
	}
	metadata.UpdateRequestBody(res.Body)

	o.recorder.AddRecord(&statistics.Record{
		Kind:   statistics.KindOverridden,
		Host:   metadata.Host(),
		Path:   metadata.Path(),
		Detail: fmt.Sprintf("%d/%d", res.Count, res.Available),
	})
	slog.Info("Paint payload overridden", slog.Any("request", metadata), slog.Any("placement", res))
	return nil
}

func (o *OverridePayload) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("type", string(o.Type())),
	)
}

func NewOverridePayload(recorder *statistics.Recorder, rewriter PayloadRewriter) *OverridePayload {
	return &OverridePayload{
		recorder: recorder,
		rewriter: rewriter,
	}
}
