package ipc

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/heytcass/jasper/internal/jasperr"
	"github.com/heytcass/jasper/internal/middleware"
	"github.com/heytcass/jasper/internal/model"
	"github.com/heytcass/jasper/internal/registry"
	"github.com/heytcass/jasper/internal/store"
)

// ForceRefreshFunc enqueues an out-of-cycle aggregate+evaluate+analyze pass
// on the lifecycle controller and reports whether the request was accepted.
// Per the IPC contract, it returns immediately after enqueuing; it does not
// wait for the analysis to complete. Frontends learn the outcome via the
// InsightUpdated signal, not via this call's return value.
type ForceRefreshFunc func() bool

// OnlineFunc reports whether the lifecycle controller's most recent tick
// completed without error, backing GetStatus.online.
type OnlineFunc func() bool

// Service is the daemon's single IPC surface: an HTTP+WebSocket API that
// serves every frontend-facing operation the frontend registry and insight
// store expose. One gorilla/mux router, one rate limiter guarding the
// expensive endpoint, one hub fanning out push notifications.
type Service struct {
	store    store.Store
	registry *registry.Registry
	refresh  ForceRefreshFunc
	online   OnlineFunc
	limiter  *middleware.RateLimiter
	hub      *hub
	log      *zap.Logger

	router *mux.Router
}

// New builds the IPC service and its router. refreshPerMinute bounds how
// often any frontend may trigger ForceRefresh.
func New(st store.Store, reg *registry.Registry, refresh ForceRefreshFunc, online OnlineFunc, refreshPerMinute int, log *zap.Logger) *Service {
	s := &Service{
		store:    st,
		registry: reg,
		refresh:  refresh,
		online:   online,
		limiter:  middleware.NewRateLimiter(refreshPerMinute),
		log:      log,
	}
	s.hub = newHub(log, func(id string) (model.NotifyPreference, bool) {
		fe, ok := reg.Get(id)
		return fe.NotifyPreference, ok
	})
	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP handler to serve, so the daemon owns the
// net/http.Server lifecycle (listen address, TLS, shutdown) itself.
func (s *Service) Handler() http.Handler {
	return s.router
}

// BroadcastInsightUpdated pushes the latest insight to every attached
// frontend. Called by the daemon's lifecycle controller immediately after
// the analysis pipeline commits a new insight.
func (s *Service) BroadcastInsightUpdated(insight model.Insight) {
	s.hub.broadcast(Signal{Kind: SignalInsightUpdated, Payload: insight})
}

// BroadcastDaemonStopping signals every attached frontend that the daemon
// is shutting down, then tears down the hub so the graceful-shutdown
// sequence doesn't wait on open sockets.
func (s *Service) BroadcastDaemonStopping() {
	s.hub.broadcast(Signal{Kind: SignalDaemonStopping})
	s.hub.closeAll()
}

// Close stops the service's background resources (the rate limiter's
// cleanup goroutine). It does not close the underlying net/http.Server;
// the daemon owns that.
func (s *Service) Close() {
	s.limiter.Stop()
}

func (s *Service) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestID(s.log))
	r.HandleFunc("/v1/insight/current", s.handleCurrentInsight).Methods(http.MethodGet)
	r.HandleFunc("/v1/insight/{id:[0-9]+}", s.handleInsightByID).Methods(http.MethodGet)
	r.HandleFunc("/v1/insights", s.handleListInsights).Methods(http.MethodGet)
	r.HandleFunc("/v1/frontends", s.handleRegisterFrontend).Methods(http.MethodPost)
	r.HandleFunc("/v1/frontends/{id}", s.handleUnregisterFrontend).Methods(http.MethodDelete)
	r.HandleFunc("/v1/frontends/{id}/heartbeat", s.handleHeartbeat).Methods(http.MethodPost)
	r.HandleFunc("/v1/refresh", s.limiter.Middleware(s.handleForceRefresh)).Methods(http.MethodPost)
	r.HandleFunc("/v1/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/v1/ws", s.hub.serveWS)
	return r
}

func (s *Service) handleCurrentInsight(w http.ResponseWriter, r *http.Request) {
	insight, err := s.store.Current(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, insight)
}

func (s *Service) handleInsightByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, jasperr.New(jasperr.NotFound, "ipc.InsightByID", "malformed insight id"))
		return
	}
	insight, err := s.store.ByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, insight)
}

func (s *Service) handleListInsights(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	var sinceID int64
	if raw := r.URL.Query().Get("since_id"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n >= 0 {
			sinceID = n
		}
	}
	insights, err := s.store.List(r.Context(), sinceID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, insights)
}

type registerFrontendRequest struct {
	FrontendID       string                 `json:"frontend_id"`
	PID              int                    `json:"pid"`
	NotifyPreference model.NotifyPreference `json:"notify_preference,omitempty"`
}

func (s *Service) handleRegisterFrontend(w http.ResponseWriter, r *http.Request) {
	var req registerFrontendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, jasperr.Wrap(jasperr.ResponseMalformed, "ipc.RegisterFrontend", err))
		return
	}
	if req.FrontendID == "" {
		writeError(w, jasperr.New(jasperr.ResponseMalformed, "ipc.RegisterFrontend", "frontend_id is required"))
		return
	}
	reg, err := s.registry.Register(req.FrontendID, req.PID, req.NotifyPreference)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

func (s *Service) handleUnregisterFrontend(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.registry.Unregister(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.registry.Heartbeat(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleForceRefresh(w http.ResponseWriter, r *http.Request) {
	accepted := s.refresh()
	status := http.StatusAccepted
	if !accepted {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, struct {
		Accepted bool `json:"accepted"`
	}{accepted})
}

// statusResponse mirrors the wire-level GetStatus tuple: (online,
// frontend_count, last_insight_id).
type statusResponse struct {
	Online         bool  `json:"online"`
	FrontendCount  int   `json:"frontend_count"`
	LastInsightID  int64 `json:"last_insight_id"`
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	var lastInsightID int64
	if current, err := s.store.Current(r.Context()); err == nil {
		lastInsightID = current.ID
	}
	online := true
	if s.online != nil {
		online = s.online()
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Online:        online,
		FrontendCount: s.registry.Count(),
		LastInsightID: lastInsightID,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case jasperr.Is(err, jasperr.NotFound):
		status = http.StatusNotFound
	case jasperr.Is(err, jasperr.FrontendUnknown):
		status = http.StatusNotFound
	case jasperr.Is(err, jasperr.AlreadyRegistered):
		status = http.StatusConflict
	case jasperr.Is(err, jasperr.ResponseMalformed):
		status = http.StatusBadRequest
	case jasperr.Is(err, jasperr.LLMRateLimited):
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{err.Error()})
}
