package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/glosar/internal/engine"
	"github.com/loykin/glosar/internal/guide"
)

// Controller is the operator-facing surface of a running engine.
type Controller interface {
	Pause()
	Resume()
	SkipCurrent()
	Stop()
	Summary() engine.Summary
}

// RecordSource exposes the status records of the run so far.
type RecordSource interface {
	Snapshot() []guide.StatusRecord
}

// Router provides embeddable HTTP handlers for controlling a run.
// Endpoints:
//
//	POST {basePath}/pause
//	POST {basePath}/resume
//	POST {basePath}/skip
//	POST {basePath}/stop
//	GET  {basePath}/status
//	GET  {basePath}/records   query: status=SUCCESS|ERROR, since=<seq> (both optional)
//
// Commands against a run that already ended answer 409.
type Router struct {
	ctrl     Controller
	records  RecordSource
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/pause, /api/status, ...
func NewRouter(ctrl Controller, records RecordSource, basePath string) *Router {
	return &Router{ctrl: ctrl, records: records, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/pause", r.command(r.ctrl.Pause))
	group.POST("/resume", r.command(r.ctrl.Resume))
	group.POST("/skip", r.command(r.ctrl.SkipCurrent))
	group.POST("/stop", r.command(r.ctrl.Stop))
	group.GET("/status", r.handleStatus)
	group.GET("/records", r.handleRecords)
	return g
}

// NewServer binds addr and serves the router in the background. Bind errors
// are returned; Shutdown on the result stops serving.
func NewServer(addr string, r *Router) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.Serve(ln) }()
	return server, nil
}

// Shutdown stops srv, waiting at most five seconds for in-flight requests.
func Shutdown(srv *http.Server) error {
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK    bool         `json:"ok"`
	State engine.State `json:"state"`
}

func (r *Router) command(fn func()) gin.HandlerFunc {
	return func(c *gin.Context) {
		if st := r.ctrl.Summary().State; st.Terminal() {
			writeJSON(c, http.StatusConflict, errorResp{Error: "run already ended: " + st.String()})
			return
		}
		fn()
		writeJSON(c, http.StatusOK, okResp{OK: true, State: r.ctrl.Summary().State})
	}
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.ctrl.Summary())
}

func (r *Router) handleRecords(c *gin.Context) {
	status := guide.Status(c.Query("status"))
	if status != "" && status != guide.StatusSuccess && status != guide.StatusError {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid status: want SUCCESS or ERROR"})
		return
	}
	since := 0
	if s := c.Query("since"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid since: want a non-negative sequence number"})
			return
		}
		since = n
	}
	out := []guide.StatusRecord{}
	if r.records != nil {
		for _, rec := range r.records.Snapshot() {
			if rec.Seq <= since || (status != "" && rec.Status != status) {
				continue
			}
			out = append(out, rec)
		}
	}
	writeJSON(c, http.StatusOK, out)
}
