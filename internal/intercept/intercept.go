// Package intercept wraps an http.RoundTripper with the tile spoof and paint
// override rules.
package intercept

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/sunbk201/tilespoof/internal/common"
	"github.com/sunbk201/tilespoof/internal/state"
	"github.com/sunbk201/tilespoof/internal/statistics"
)

// Interceptor applies at most the two rules to every request and then calls
// the wrapped transport exactly once. Its result is returned as is.
type Interceptor struct {
	next     http.RoundTripper
	state    *state.InterceptState
	spoof    common.Rule
	override common.Rule
	recorder *statistics.Recorder
	base     *url.URL
}

// New builds an Interceptor. documentURL is the location relative targets are
// resolved against; when empty, relative targets are rejected.
func New(next http.RoundTripper, st *state.InterceptState, spoof, override common.Rule, recorder *statistics.Recorder, documentURL string) (*Interceptor, error) {
	if next == nil {
		next = http.DefaultTransport
	}
	if st == nil {
		return nil, errors.New("intercept: nil state")
	}
	i := &Interceptor{
		next:     next,
		state:    st,
		spoof:    spoof,
		override: override,
		recorder: recorder,
	}
	if documentURL != "" {
		base, err := url.Parse(documentURL)
		if err != nil || !base.IsAbs() {
			return nil, fmt.Errorf("intercept: invalid document url %q", documentURL)
		}
		i.base = base
	}
	return i, nil
}

func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, &common.InvalidInputError{Reason: "nil request"}
	}
	if req.URL == nil || req.URL.String() == "" {
		closeBody(req)
		return nil, &common.InvalidInputError{Reason: "empty URL"}
	}
	target, err := i.resolve(req.URL)
	if err != nil {
		closeBody(req)
		return nil, &common.InvalidURLError{URL: req.URL.String(), Err: err}
	}

	ctx := req.Context()
	out := req.Clone(ctx)
	out.URL = target
	out.RequestURI = ""
	metadata := common.NewMetadata(out)

	rewritten := false
	if i.spoof != nil && i.state.SpoofEnabled() && i.spoof.Match(metadata) {
		if err := i.spoof.Action().Execute(ctx, metadata); err != nil {
			slog.Warn("Tile spoof failed", slog.Any("request", metadata), slog.Any("error", err))
		} else {
			rewritten = true
		}
	}

	if i.override != nil && i.state.OverrideArmed() && i.override.Match(metadata) {
		if i.applyOverride(ctx, metadata) {
			rewritten = true
		}
	}

	if !rewritten {
		i.recorder.AddRecord(&statistics.Record{Kind: statistics.KindPassThrough, Host: metadata.Host()})
	}
	return i.next.RoundTrip(metadata.Request)
}

// applyOverride runs the override action when this request wins the armed
// override. On failure the override is released back to armed.
func (i *Interceptor) applyOverride(ctx context.Context, metadata *common.Metadata) bool {
	if !i.state.ClaimOverride() {
		slog.Info("Paint override busy, request passed through", slog.Any("request", metadata))
		return false
	}
	if err := i.override.Action().Execute(ctx, metadata); err != nil {
		i.state.ReleaseOverride()
		i.recorder.AddRecord(&statistics.Record{
			Kind:   statistics.KindOverrideFailed,
			Host:   metadata.Host(),
			Path:   metadata.Path(),
			Detail: err.Error(),
		})
		slog.Error("Paint override failed, sending original request", slog.Any("request", metadata), slog.Any("error", err))
		return false
	}
	i.state.ConsumeOverride()
	return true
}

// closeBody honours the RoundTripper contract on requests that are never sent.
func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

func (i *Interceptor) resolve(u *url.URL) (*url.URL, error) {
	if u.Scheme == "" {
		if i.base == nil {
			return nil, errors.New("relative URL without document location")
		}
		u = i.base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

// Do builds a request for target, which may be relative to the document
// location, and sends it through the interceptor.
func (i *Interceptor) Do(ctx context.Context, method, target string, body io.Reader) (*http.Response, error) {
	if target == "" {
		return nil, &common.InvalidInputError{Reason: "empty URL"}
	}
	if _, err := url.Parse(target); err != nil {
		return nil, &common.InvalidURLError{URL: target, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &common.InvalidURLError{URL: target, Err: err}
	}
	return i.RoundTrip(req)
}

// Client returns an http.Client sending through the interceptor.
func (i *Interceptor) Client() *http.Client {
	return &http.Client{Transport: i}
}

func (i *Interceptor) State() *state.InterceptState {
	return i.state
}

func (i *Interceptor) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Any("state", i.state),
		slog.Any("spoof", i.spoof),
		slog.Any("override", i.override),
	}
	if i.base != nil {
		attrs = append(attrs, slog.String("document", i.base.String()))
	}
	return slog.GroupValue(attrs...)
}
