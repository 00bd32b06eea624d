package action

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/sunbk201/tilespoof/internal/common"
	"github.com/sunbk201/tilespoof/internal/statistics"
)

// RedirectOrigin points the request at another scheme and host, keeping path
// and query.
type RedirectOrigin struct {
	recorder *statistics.Recorder
	origin   *url.URL
}

func (r *RedirectOrigin) Type() common.ActionType {
	return common.ActionRedirectOrigin
}

func (r *RedirectOrigin) Execute(ctx context.Context, metadata *common.Metadata) error {
	req := metadata.Request
	if req == nil || req.URL == nil {
		return &common.InvalidInputError{Reason: "missing request URL"}
	}
	original := req.URL.String()
	host := req.URL.Hostname()

	u := *req.URL
	u.Scheme = r.origin.Scheme
	u.Host = r.origin.Host
	req.URL = &u
	// let the transport derive Host from the new URL
	req.Host = ""

	r.recorder.AddRecord(&statistics.Record{
		Kind:   statistics.KindSpoofed,
		Host:   host,
		Path:   u.Path,
		Detail: r.origin.Host,
	})
	slog.Info("Spoofed tile request", slog.String("from", original), slog.String("to", u.String()))
	return nil
}

func (r *RedirectOrigin) Origin() string {
	return r.origin.String()
}

func (r *RedirectOrigin) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("type", string(r.Type())),
		slog.String("origin", r.origin.String()),
	)
}

func NewRedirectOrigin(recorder *statistics.Recorder, origin string) (*RedirectOrigin, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse mirror origin: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("mirror origin %q needs a scheme and host", origin)
	}
	return &RedirectOrigin{
		recorder: recorder,
		origin:   &url.URL{Scheme: u.Scheme, Host: u.Host},
	}, nil
}
