package keymerge

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	ginlogger "github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"
	"github.com/jetkvm/keymerge/internal/eventbus"
	"github.com/jetkvm/keymerge/internal/events"
	"github.com/jetkvm/keymerge/internal/kscan"
	"github.com/jetkvm/keymerge/internal/merge"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
)

const (
	eventStreamBuffer  = 64
	eventWriteTimeout  = 5 * time.Second
	serverShutdownWait = 5 * time.Second
)

type StageState struct {
	Active []uint32         `json:"active"`
	Stats  merge.StageStats `json:"stats"`
}

type PipelineState struct {
	BootID    string         `json:"boot_id"`
	UptimeMs  int64          `json:"uptime_ms"`
	MergeMap  []merge.Pair   `json:"merge_map"`
	Positions StageState     `json:"positions"`
	Keycodes  StageState     `json:"keycodes"`
	Scan      kscan.Stats    `json:"scan"`
	Bus       eventbus.Stats `json:"bus"`
}

// State snapshots the pipeline for diagnostics.
func (p *Pipeline) State() PipelineState {
	return PipelineState{
		BootID:   bootID,
		UptimeMs: p.uptime(),
		MergeMap: p.positions.Table().Pairs(),
		Positions: StageState{
			Active: p.positions.Registry().Keys(),
			Stats:  p.positions.Stats(),
		},
		Keycodes: StageState{
			Active: p.keycodes.Registry().Keys(),
			Stats:  p.keycodes.Stats(),
		},
		Scan: p.scanner.Stats(),
		Bus:  p.bus.Stats(),
	}
}

type eventMessage struct {
	Type  string       `json:"type"`
	Event events.Event `json:"event"`
}

func setupRouter(p *Pipeline, gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ginlogger.SetLogger(
		ginlogger.WithLogger(func(_ *gin.Context, _ zerolog.Logger) zerolog.Logger {
			return *webLogger
		}),
		ginlogger.WithSkipPath([]string{"/metrics", "/healthz"}),
	))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"boot_id":   bootID,
			"uptime_ms": p.uptime(),
		})
	})

	r.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, p.State())
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}

// newStatusHandler routes /events around gin: gin's response writer refuses
// the hijack once websocket.Accept has flushed the upgrade headers.
func newStatusHandler(p *Pipeline, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /events", func(w http.ResponseWriter, r *http.Request) {
		handleEventStream(w, r, p.Bus())
	})
	mux.Handle("/", setupRouter(p, gatherer))
	return mux
}

// handleEventStream streams every bus event to a websocket client as JSON.
func handleEventStream(w http.ResponseWriter, r *http.Request, bus *eventbus.Bus) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		webLogger.Warn().Err(err).Msg("failed to accept websocket")
		return
	}
	defer conn.CloseNow()

	id := "ws-" + xid.New().String()
	scopedLogger := webLogger.With().Str("subscriber", id).Logger()

	ch := make(chan events.Event, eventStreamBuffer)
	if err := bus.Subscribe(id, ch); err != nil {
		scopedLogger.Warn().Err(err).Msg("failed to subscribe to event bus")
		_ = conn.Close(websocket.StatusTryAgainLater, "event bus unavailable")
		return
	}
	defer func() { _ = bus.Unsubscribe(id) }()

	scopedLogger.Info().Str("remote", r.RemoteAddr).Msg("event stream opened")

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			scopedLogger.Info().Msg("event stream closed")
			return
		case ev := <-ch:
			wctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
			err := wsjson.Write(wctx, conn, eventMessage{Type: ev.Name(), Event: ev})
			cancel()
			if err != nil {
				scopedLogger.Warn().Err(err).Msg("failed to write event")
				return
			}
		}
	}
}

// startStatusServer serves the diagnostics router until ctx is done.
func startStatusServer(ctx context.Context, addr string, p *Pipeline, gatherer prometheus.Gatherer) {
	if addr == "" {
		webLogger.Info().Msg("status server disabled")
		return
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           newStatusHandler(p, gatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), serverShutdownWait)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	go func() {
		webLogger.Info().Str("addr", addr).Msg("starting status server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			webLogger.Error().Err(err).Msg("status server failed")
		}
	}()
}
