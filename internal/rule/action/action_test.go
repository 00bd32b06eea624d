package action

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunbk201/tilespoof/internal/common"
	"github.com/sunbk201/tilespoof/internal/rewrite"
	"github.com/sunbk201/tilespoof/internal/statistics"
)

type rewriterFunc func(ctx context.Context, path string, body []byte) (*rewrite.Result, error)

func (f rewriterFunc) Rewrite(ctx context.Context, path string, body []byte) (*rewrite.Result, error) {
	return f(ctx, path, body)
}

func TestRedirectOrigin(t *testing.T) {
	recorder := statistics.New("", 0)
	a, err := NewRedirectOrigin(recorder, "http://localhost:8000/ignored")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", a.Origin())

	req, err := http.NewRequest(http.MethodGet, "https://backend.wplace.live/files/s0/tiles/3/5.png?v=2", nil)
	require.NoError(t, err)
	meta := common.NewMetadata(req)

	require.NoError(t, a.Execute(context.Background(), meta))
	assert.Equal(t, "http://localhost:8000/files/s0/tiles/3/5.png?v=2", meta.Request.URL.String())
	assert.Empty(t, meta.Request.Host)
}

func TestNewRedirectOriginInvalid(t *testing.T) {
	for _, origin := range []string{"localhost", "", "://x"} {
		_, err := NewRedirectOrigin(nil, origin)
		assert.Error(t, err, origin)
	}
}

func TestOverridePayload(t *testing.T) {
	var gotPath string
	var gotBody []byte
	a := NewOverridePayload(nil, rewriterFunc(func(ctx context.Context, path string, body []byte) (*rewrite.Result, error) {
		gotPath, gotBody = path, body
		return &rewrite.Result{Body: []byte(`{"coords":[1,1],"colors":[10]}`), Count: 1, Available: 3}, nil
	}))

	req, err := http.NewRequest(http.MethodPost, "https://backend.wplace.live/s0/pixel/7/2", bytes.NewReader([]byte(`{"coords":[],"colors":[]}`)))
	require.NoError(t, err)
	meta := common.NewMetadata(req)

	require.NoError(t, a.Execute(context.Background(), meta))
	assert.Equal(t, "/s0/pixel/7/2", gotPath)
	assert.Equal(t, `{"coords":[],"colors":[]}`, string(gotBody))

	sent, err := io.ReadAll(meta.Request.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"coords":[1,1],"colors":[10]}`, string(sent))
	assert.Equal(t, int64(len(sent)), meta.Request.ContentLength)
}

func TestOverridePayloadFailureKeepsBody(t *testing.T) {
	cause := &common.IndexError{Row: "7", Col: "2"}
	a := NewOverridePayload(nil, rewriterFunc(func(ctx context.Context, path string, body []byte) (*rewrite.Result, error) {
		return nil, cause
	}))

	original := `{"coords":[5,5],"colors":[1]}`
	req, err := http.NewRequest(http.MethodPost, "https://backend.wplace.live/s0/pixel/7/2", bytes.NewReader([]byte(original)))
	require.NoError(t, err)
	meta := common.NewMetadata(req)

	err = a.Execute(context.Background(), meta)
	assert.True(t, errors.Is(err, cause))

	sent, err := io.ReadAll(meta.Request.Body)
	require.NoError(t, err)
	assert.Equal(t, original, string(sent))
}
