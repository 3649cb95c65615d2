package keymerge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*Pipeline, http.Handler) {
	t.Helper()
	p, err := NewPipeline(testConfig())
	require.NoError(t, err)
	t.Cleanup(p.Close)

	reg := prometheus.NewRegistry()
	require.NoError(t, registerPipelineMetrics(reg, p))
	return p, newStatusHandler(p, reg)
}

func TestHealthz(t *testing.T) {
	_, router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, bootID, body["boot_id"])
}

func TestStateReportsActiveKeys(t *testing.T) {
	p, router := newTestRouter(t)

	scan(p, 5, true)
	scan(p, 2, true)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/state", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var state PipelineState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, []uint32{2}, state.Positions.Active)
	assert.Equal(t, []uint32{encodedSpace}, state.Keycodes.Active)
	assert.Equal(t, uint64(1), state.Positions.Stats.Forwarded)
	assert.Equal(t, uint64(1), state.Positions.Stats.Suppressed)
	assert.Equal(t, uint64(2), state.Scan.Queued)
	assert.Len(t, state.MergeMap, 1)
}

func TestMetricsEndpoint(t *testing.T) {
	p, router := newTestRouter(t)

	scan(p, 5, true)
	scan(p, 2, true)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, `keymerge_events_suppressed_total{stage="position"} 1`)
	assert.Contains(t, body, `keymerge_registry_active_keys{stage="position"} 1`)
	assert.Contains(t, body, `keymerge_registry_active_keys{stage="keycode"} 1`)
}

func TestEventStream(t *testing.T) {
	p, router := newTestRouter(t)

	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool {
		return len(p.Bus().Stats().Subscribers) == 1
	}, time.Second, 5*time.Millisecond)

	scan(p, 5, true)

	var msg struct {
		Type  string         `json:"type"`
		Event map[string]any `json:"event"`
	}
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "position_state_changed", msg.Type)
	assert.Equal(t, float64(2), msg.Event["position"])
	assert.Equal(t, "local", msg.Event["source"])
	assert.Equal(t, true, msg.Event["state"])

	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "keycode_state_changed", msg.Type)
	assert.Equal(t, float64(0x2C), msg.Event["keycode"])

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	assert.Eventually(t, func() bool {
		return len(p.Bus().Stats().Subscribers) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestEventStreamRequiresUpgrade(t *testing.T) {
	_, router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusUpgradeRequired, w.Code)
}
