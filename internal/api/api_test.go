package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunbk201/tilespoof/internal/common"
	"github.com/sunbk201/tilespoof/internal/config"
	applog "github.com/sunbk201/tilespoof/internal/log"
	"github.com/sunbk201/tilespoof/internal/mitm"
	"github.com/sunbk201/tilespoof/internal/prompt"
	"github.com/sunbk201/tilespoof/internal/state"
	"github.com/sunbk201/tilespoof/internal/statistics"
)

type testEnv struct {
	api     *APIServer
	srv     *httptest.Server
	state   *state.InterceptState
	prompts *prompt.Queue
	logs    *applog.Broadcaster
}

func newEnv(t *testing.T, secret string, ca *mitm.CA) *testEnv {
	t.Helper()
	cfg := &config.Config{API: config.APIConfig{Secret: secret}, MITM: config.MITMConfig{Passphrase: "hidden"}}
	env := &testEnv{
		state:   state.New(false),
		prompts: prompt.NewQueue(5 * time.Second),
		logs:    applog.NewBroadcaster(),
	}
	recorder := statistics.New("", 0)
	recorder.Add(&statistics.Record{Kind: statistics.KindSpoofed, Host: "backend.wplace.live", Path: "/files/s0/tiles/3/5.png"})

	env.api = New("127.0.0.1:0", "v1.2.3", cfg, Options{
		State:    env.state,
		Prompts:  env.prompts,
		Recorder: recorder,
		Tiles:    []common.TileCoordinate{{X: 3, Y: 5}, {X: 4, Y: 5}},
		CA:       ca,
		Logs:     env.logs,
	})
	env.srv = httptest.NewServer(env.api.Router())
	t.Cleanup(func() {
		env.srv.Close()
		_ = env.api.Close()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestVersionAndConfig(t *testing.T) {
	env := newEnv(t, "", nil)

	code, out := env.do(t, http.MethodGet, "/version", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "v1.2.3", out["version"])

	code, out = env.do(t, http.MethodGet, "/config", "")
	assert.Equal(t, http.StatusOK, code)
	mitmCfg := out["MITM"].(map[string]any)
	assert.Empty(t, mitmCfg["Passphrase"])
}

func TestSpoofRoutes(t *testing.T) {
	env := newEnv(t, "", nil)

	code, out := env.do(t, http.MethodPost, "/spoof/toggle", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["spoof_enabled"])
	assert.True(t, env.state.SpoofEnabled())

	code, out = env.do(t, http.MethodPut, "/spoof", `{"enabled":false}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["spoof_enabled"])

	code, _ = env.do(t, http.MethodPut, "/spoof", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestOverrideRoutes(t *testing.T) {
	env := newEnv(t, "", nil)

	_, out := env.do(t, http.MethodPost, "/override/arm", `{"confirmed":false}`)
	assert.Equal(t, false, out["override_armed"])

	_, out = env.do(t, http.MethodPost, "/override/arm", `{"confirmed":true}`)
	assert.Equal(t, true, out["override_armed"])
	assert.True(t, env.state.OverrideArmed())

	_, out = env.do(t, http.MethodGet, "/state", "")
	assert.Equal(t, true, out["override_armed"])

	_, out = env.do(t, http.MethodDelete, "/override", "")
	assert.Equal(t, false, out["override_armed"])

	code, _ := env.do(t, http.MethodPost, "/override/arm", `nope`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPromptRoutes(t *testing.T) {
	env := newEnv(t, "", nil)

	answer := make(chan string, 1)
	go func() {
		v, _ := env.prompts.PixelCount(context.Background(), prompt.Request{Row: "7", Col: "2", Available: 3})
		answer <- v
	}()

	var pending []prompt.Pending
	require.Eventually(t, func() bool {
		resp, err := http.Get(env.srv.URL + "/prompts")
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		pending = nil
		_ = json.NewDecoder(resp.Body).Decode(&pending)
		return len(pending) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, pending[0].Request.Available)

	code, out := env.do(t, http.MethodPost, "/prompts/"+pending[0].ID, `{"value":"2"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), out["count"])
	assert.Equal(t, "2", <-answer)

	code, _ = env.do(t, http.MethodPost, "/prompts/"+pending[0].ID, `{"value":"2"}`)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStatsAndTiles(t *testing.T) {
	env := newEnv(t, "", nil)

	_, out := env.do(t, http.MethodGet, "/stats", "")
	totals := out["totals"].(map[string]any)
	assert.Equal(t, float64(1), totals["spoofed"])

	resp, err := http.Get(env.srv.URL + "/tiles")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[[3,5],[4,5]]`, string(data))
}

func TestCA(t *testing.T) {
	env := newEnv(t, "", nil)
	code, _ := env.do(t, http.MethodGet, "/ca.pem", "")
	assert.Equal(t, http.StatusNotFound, code)

	ca, err := mitm.GenerateCA()
	require.NoError(t, err)
	env = newEnv(t, "", ca)
	resp, err := http.Get(env.srv.URL + "/ca.pem")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, string(ca.CertPEM()), string(data))
}

func TestAuth(t *testing.T) {
	env := newEnv(t, "s3cret", nil)

	code, _ := env.do(t, http.MethodGet, "/state", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = env.do(t, http.MethodGet, "/state?secret=s3cret", "")
	assert.Equal(t, http.StatusOK, code)

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/state", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEventsWebSocket(t *testing.T) {
	env := newEnv(t, "", nil)

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool { return env.api.events.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	env.state.ToggleSpoof()
	env.state.ArmOverride(true)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e event
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(msg, &e))
	assert.Equal(t, eventSpoof, e.Type)
	require.NotNil(t, e.Enabled)
	assert.True(t, *e.Enabled)

	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(msg, &e))
	assert.Equal(t, eventOverride, e.Type)
	require.NotNil(t, e.Armed)
	assert.True(t, *e.Armed)
}

func TestLogsChunked(t *testing.T) {
	env := newEnv(t, "", nil)

	resp, err := http.Get(env.srv.URL + "/logs")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return env.logs.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	_, _ = env.logs.Write([]byte("level=INFO msg=hello\n"))

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "level=INFO msg=hello\n", line)
}
