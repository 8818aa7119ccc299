package grid

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/eleven-am/gridboot/internal/domain"
	"github.com/eleven-am/gridboot/internal/readiness"
	"github.com/eleven-am/gridboot/internal/xjson"
)

const (
	pathReady    = "/ready"
	pathCluster  = "/v1/cluster"
	pathDatasets = "/v1/datasets"
	pathCommands = "/v1/commands"
	pathBaseline = "/v1/cluster/baseline"

	leaderHeader = "X-Gridboot-Leader"
)

// ClusterStatus is served on /v1/cluster.
type ClusterStatus struct {
	NodeID          domain.NodeID           `json:"node_id"`
	Leader          domain.NodeID           `json:"leader,omitempty"`
	LeaderConnector string                  `json:"leader_connector,omitempty"`
	Active          bool                    `json:"active"`
	Baseline        domain.BaselineTopology `json:"baseline"`
	Servers         domain.NodeSet          `json:"servers"`
	TopologyVersion uint64                  `json:"topology_version"`
	Attributes      map[string]string       `json:"attributes,omitempty"`
}

// baselineRequest carries either a topology version or an explicit node set.
type baselineRequest struct {
	Version uint64         `json:"version,omitempty"`
	Nodes   domain.NodeSet `json:"nodes,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type connectorBackend interface {
	isLeader() bool
	leaderConnectorAddr() string
	applyLocal(ctx context.Context, cmd *domain.Command) (*domain.CommandResult, error)
	setBaselineLocal(ctx context.Context, req baselineRequest) (domain.BaselineTopology, error)
	status(ctx context.Context) (ClusterStatus, error)
	CacheNames(ctx context.Context) ([]string, error)
}

// connector is the node's client and peer endpoint. Mutations only run on the
// leader; other nodes answer 421 with the leader's connector address.
type connector struct {
	backend connectorBackend
	ready   *readiness.Manager
	logger  *slog.Logger
}

func newConnector(backend connectorBackend, ready *readiness.Manager, logger *slog.Logger) *connector {
	if ready == nil {
		ready = readiness.NewManager()
	}
	return &connector{
		backend: backend,
		ready:   ready,
		logger:  logger.With("component", "connector"),
	}
}

func (c *connector) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+pathReady, c.handleReady)
	mux.HandleFunc("GET "+pathCluster, c.handleStatus)
	mux.HandleFunc("GET "+pathDatasets, c.handleDatasets)
	mux.HandleFunc("POST "+pathCommands, c.handleCommand)
	mux.HandleFunc("POST "+pathBaseline, c.handleBaseline)
	return c.withLogging(mux)
}

func (c *connector) server() *http.Server {
	return &http.Server{
		Handler:      c.handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func (c *connector) handleReady(w http.ResponseWriter, r *http.Request) {
	if !c.ready.IsReady() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (c *connector) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := c.backend.status(r.Context())
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (c *connector) handleDatasets(w http.ResponseWriter, r *http.Request) {
	names, err := c.backend.CacheNames(r.Context())
	if err != nil {
		c.writeError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"datasets": names})
}

func (c *connector) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd domain.Command
	if err := xjson.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed command: " + err.Error()})
		return
	}

	if !c.backend.isLeader() {
		c.misdirected(w)
		return
	}

	result, err := c.backend.applyLocal(r.Context(), &cmd)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (c *connector) handleBaseline(w http.ResponseWriter, r *http.Request) {
	var req baselineRequest
	if err := xjson.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed baseline request: " + err.Error()})
		return
	}

	if !c.backend.isLeader() {
		c.misdirected(w)
		return
	}

	baseline, err := c.backend.setBaselineLocal(r.Context(), req)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, baseline)
}

func (c *connector) misdirected(w http.ResponseWriter) {
	if leader := c.backend.leaderConnectorAddr(); leader != "" {
		w.Header().Set(leaderHeader, leader)
	}
	writeJSON(w, http.StatusMisdirectedRequest, errorResponse{
		Error: domain.ErrNotLeader.Error(),
		Code:  "NOT_LEADER",
	})
}

func (c *connector) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnknownNode):
		status = http.StatusConflict
	case domain.GetErrorCategory(err) == domain.CategoryValidation:
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNoLeader), errors.Is(err, domain.ErrNotLeader):
		status = http.StatusServiceUnavailable
	}

	resp := errorResponse{Error: err.Error()}
	var de *domain.DomainError
	if errors.As(err, &de) {
		resp.Code = de.Code
	}

	c.logger.Warn("connector request failed", "status", status, "error", err)
	writeJSON(w, status, resp)
}

func (c *connector) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		c.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = xjson.NewEncoder(w).Encode(body)
}
