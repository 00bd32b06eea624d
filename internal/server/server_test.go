package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/elazarl/goproxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunbk201/tilespoof/internal/common"
	"github.com/sunbk201/tilespoof/internal/intercept"
	"github.com/sunbk201/tilespoof/internal/mitm"
	"github.com/sunbk201/tilespoof/internal/placement"
	"github.com/sunbk201/tilespoof/internal/prompt"
	"github.com/sunbk201/tilespoof/internal/rewrite"
	"github.com/sunbk201/tilespoof/internal/rule"
	"github.com/sunbk201/tilespoof/internal/state"
)

type staticPlacement placement.Map

func (p staticPlacement) Fetch(ctx context.Context) (placement.Map, error) {
	return placement.Map(p), nil
}

func echoServer(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_, _ = io.WriteString(w, name+" "+r.Method+" "+r.URL.Path+" "+string(body))
	})
}

func newInterceptor(t *testing.T, next http.RoundTripper, upstreamHost, mirrorOrigin string) (*intercept.Interceptor, *state.InterceptState) {
	t.Helper()
	set, err := rule.NewSet(rule.Options{
		UpstreamHost: upstreamHost,
		ConfigPath:   "/config.json",
		MirrorOrigin: mirrorOrigin,
		PaintMarker:  "/pixel/",
		Tiles:        []common.TileCoordinate{{X: 3, Y: 5}},
		Rewriter: rewrite.New(staticPlacement{
			"7": {"2": {Coords: []int{1, 1, 2, 2}, Colors: []int{10, 20}}},
		}, prompt.Fixed(1)),
	})
	require.NoError(t, err)
	st := state.New(false)
	i, err := intercept.New(next, st, set.Spoof, set.Override, nil, "")
	require.NoError(t, err)
	return i, st
}

func fetch(t *testing.T, client *http.Client, method, target, body string) string {
	t.Helper()
	req, err := http.NewRequest(method, target, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestPlainHTTPSpoof(t *testing.T) {
	upstream := httptest.NewServer(echoServer("upstream"))
	defer upstream.Close()
	mirror := httptest.NewServer(echoServer("mirror"))
	defer mirror.Close()

	i, st := newInterceptor(t, http.DefaultTransport, "127.0.0.1", mirror.URL)
	s := New("127.0.0.1:0", i, nil, nil)
	require.NoError(t, s.Start())
	defer func() { _ = s.Shutdown(context.Background()) }()

	proxyURL, err := url.Parse("http://" + s.Addr())
	require.NoError(t, err)
	client := &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)}}

	tile := upstream.URL + "/files/s0/tiles/3/5.png"
	assert.Equal(t, "upstream GET /files/s0/tiles/3/5.png ", fetch(t, client, http.MethodGet, tile, ""))

	st.SetSpoof(true)
	assert.Equal(t, "mirror GET /files/s0/tiles/3/5.png ", fetch(t, client, http.MethodGet, tile, ""))
	assert.Equal(t, "upstream GET /files/s0/tiles/9/9.png ", fetch(t, client, http.MethodGet, upstream.URL+"/files/s0/tiles/9/9.png", ""))
}

func TestMitmPaintOverride(t *testing.T) {
	upstream := httptest.NewTLSServer(echoServer("upstream"))
	defer upstream.Close()

	ca, err := mitm.GenerateCA()
	require.NoError(t, err)
	filter, err := mitm.NewHostnameFilter("127.0.0.1:0")
	require.NoError(t, err)

	i, st := newInterceptor(t, upstream.Client().Transport, "127.0.0.1", "http://127.0.0.1:1")
	s := New("127.0.0.1:0", i, mitm.NewCertManager(ca), filter)
	require.NoError(t, s.Start())
	defer func() { _ = s.Shutdown(context.Background()) }()

	pool := x509.NewCertPool()
	pool.AddCert(ca.Certificate)
	proxyURL, err := url.Parse("http://" + s.Addr())
	require.NoError(t, err)
	client := &http.Client{Transport: &http.Transport{
		Proxy:           http.ProxyURL(proxyURL),
		TLSClientConfig: &tls.Config{RootCAs: pool},
	}}

	target := upstream.URL + "/s0/pixel/7/2"
	body := `{"coords":[0,0],"colors":[0]}`

	assert.Equal(t, "upstream POST /s0/pixel/7/2 "+body, fetch(t, client, http.MethodPost, target, body))

	st.ArmOverride(true)
	assert.Equal(t, `upstream POST /s0/pixel/7/2 {"coords":[1,1],"colors":[10]}`, fetch(t, client, http.MethodPost, target, body))
	assert.False(t, st.OverrideArmed())

	assert.Equal(t, "upstream POST /s0/pixel/7/2 "+body, fetch(t, client, http.MethodPost, target, body))
}

func TestHandleConnectTunnelsUnlistedHosts(t *testing.T) {
	ca, err := mitm.GenerateCA()
	require.NoError(t, err)
	filter, err := mitm.NewHostnameFilter("backend.wplace.live")
	require.NoError(t, err)
	s := New("127.0.0.1:0", http.DefaultTransport, mitm.NewCertManager(ca), filter)

	action, host := s.handleConnect("example.com:443", nil)
	assert.Equal(t, "example.com:443", host)
	assert.Equal(t, goproxy.ConnectActionLiteral(goproxy.ConnectAccept), action.Action)

	action, _ = s.handleConnect("backend.wplace.live:443", nil)
	assert.Equal(t, goproxy.ConnectActionLiteral(goproxy.ConnectMitm), action.Action)
	cfg, err := action.TLSConfig("backend.wplace.live", nil)
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)
}
