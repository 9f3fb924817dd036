package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-maskwatch/internal/log"
	"github.com/teslashibe/go-maskwatch/pkg/camera"
	"github.com/teslashibe/go-maskwatch/pkg/decision"
	"github.com/teslashibe/go-maskwatch/pkg/maskloop"
)

func decode(t *testing.T, body io.Reader, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(body).Decode(v))
}

func TestStateEndpoint(t *testing.T) {
	s := NewServer("0", log.Discard())

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/state", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var view map[string]any
	decode(t, resp.Body, &view)
	assert.Equal(t, "unknown", view["state"])
	assert.Equal(t, "Loading...", view["label"])
	assert.Equal(t, false, view["ready"])

	s.SetReady(true)
	scores := decision.ClassScores{Mask: 0.1, NoMask: 0.9}
	s.Publish(maskloop.Snapshot{LoopID: "abc", Seq: 7, State: decision.Unmasked, Scores: &scores})

	resp, err = s.App().Test(httptest.NewRequest("GET", "/api/state", nil))
	require.NoError(t, err)
	decode(t, resp.Body, &view)
	assert.Equal(t, "unmasked", view["state"])
	assert.Equal(t, "Wear Mask!", view["label"])
	assert.Equal(t, "#aa0000", view["color"])
	assert.Equal(t, "abc", view["loop_id"])
	assert.Equal(t, float64(7), view["seq"])
	assert.Equal(t, true, view["ready"])
}

func TestHealthEndpoint(t *testing.T) {
	s := NewServer("0", log.Discard())

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)

	s.SetReady(true)
	resp, err = s.App().Test(httptest.NewRequest("GET", "/api/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestIndexPage(t *testing.T) {
	s := NewServer("0", log.Discard())

	resp, err := s.App().Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "/ws/state")
}

func TestStatsEndpoint(t *testing.T) {
	s := NewServer("0", log.Discard())

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/stats", nil))
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)

	s.OnGetStats = func() interface{} { return maskloop.StatsSnapshot{Iterations: 12, Masked: 10} }
	resp, err = s.App().Test(httptest.NewRequest("GET", "/api/stats", nil))
	require.NoError(t, err)

	var stats maskloop.StatsSnapshot
	decode(t, resp.Body, &stats)
	assert.Equal(t, int64(12), stats.Iterations)
}

func TestCameraEndpoints(t *testing.T) {
	s := NewServer("0", log.Discard())
	m := camera.NewManager(camera.DefaultConfig())
	s.OnGetCameraConfig = func() interface{} { return m.GetConfigJSON() }
	s.OnSetCameraConfig = m.UpdateConfig

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/camera", nil))
	require.NoError(t, err)
	var cfg map[string]any
	decode(t, resp.Body, &cfg)
	assert.Equal(t, float64(270), cfg["width"])

	put := func(body string) (int, map[string]any) {
		req := httptest.NewRequest("PUT", "/api/camera", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.App().Test(req)
		require.NoError(t, err)
		var out map[string]any
		decode(t, resp.Body, &out)
		return resp.StatusCode, out
	}

	code, out := put(`{"preset":"square"}`)
	assert.Equal(t, 200, code)
	assert.Equal(t, float64(480), out["width"])
	assert.Equal(t, 480, m.GetConfig().Height)

	code, out = put(`{"width":2}`)
	assert.Equal(t, 400, code)
	assert.Contains(t, out["error"], "validation failed")

	m.OnConfigChange = func(camera.Config) error { return errors.New("device busy") }
	code, out = put(`{"framerate":15}`)
	assert.Equal(t, 400, code)
	assert.Contains(t, out["error"], "device busy")
}

func TestCameraEndpointsUnconfigured(t *testing.T) {
	s := NewServer("0", log.Discard())

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/camera", nil))
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)

	req := httptest.NewRequest("PUT", "/api/camera", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = s.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s := NewServer("0", log.Discard())

	resp, err := s.App().Test(httptest.NewRequest("GET", "/ws/state", nil))
	require.NoError(t, err)
	assert.Equal(t, 426, resp.StatusCode)
}

func TestWebSocketStateFeed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewServer("0", log.Discard())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.Serve(ctx, ln)

	s.SetReady(true)
	s.Publish(maskloop.Snapshot{Seq: 1, State: decision.Masked})

	url := "ws://" + ln.Addr().String() + "/ws/state"
	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		conn, _, err = websocket.DefaultDialer.Dial(url, nil)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	defer conn.Close()

	read := func() StateView {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var v StateView
		require.NoError(t, conn.ReadJSON(&v))
		return v
	}

	// The retained state arrives on connect.
	first := read()
	assert.Equal(t, decision.Masked, first.State)
	assert.Equal(t, "Mask On", first.Label)

	s.Publish(maskloop.Snapshot{Seq: 2, State: decision.Unknown, Err: "bad frame"})
	second := read()
	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, "Uncertain", second.Label)
	assert.Equal(t, "bad frame", second.Err)
}

func TestWebSocketDisconnectWhilePublishing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewServer("0", log.Discard())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.Serve(ctx, ln)
	s.SetReady(true)

	stop := make(chan struct{})
	published := make(chan struct{})
	go func() {
		defer close(published)
		var seq uint64
		for {
			select {
			case <-stop:
				return
			default:
			}
			seq++
			s.Publish(maskloop.Snapshot{Seq: seq, State: decision.Masked})
			time.Sleep(100 * time.Microsecond)
		}
	}()

	url := "ws://" + ln.Addr().String() + "/ws/state"
	for i := 0; i < 20; i++ {
		var conn *websocket.Conn
		require.Eventually(t, func() bool {
			conn, _, err = websocket.DefaultDialer.Dial(url, nil)
			return err == nil
		}, 2*time.Second, 10*time.Millisecond)

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var v StateView
		require.NoError(t, conn.ReadJSON(&v))
		assert.Equal(t, decision.Masked, v.State)
		require.NoError(t, conn.Close())
	}

	close(stop)
	<-published
	assert.Eventually(t, func() bool { return s.stateHub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
