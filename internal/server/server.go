package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ogulcanaydogan/opsalert/pkg/alerts"
	"github.com/ogulcanaydogan/opsalert/pkg/batch"
	"github.com/ogulcanaydogan/opsalert/pkg/model"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Store is the part of the alert store the API reads and writes.
type Store interface {
	InsertIfAbsent(ctx context.Context, in *model.NewAlert) (*model.Alert, error)
	GetAlert(ctx context.Context, id string) (*model.Alert, error)
	ListAlerts(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error)
}

// Dispatcher delivers stored alerts on demand.
type Dispatcher interface {
	Dispatch(ctx context.Context, id string) (*model.Alert, error)
	DispatchPending(ctx context.Context) (*alerts.BulkResult, error)
}

// Runner triggers a batch run.
type Runner interface {
	Run(ctx context.Context) (*batch.RunReport, error)
}

// Server exposes health, metrics and the alert trigger API.
type Server struct {
	store      Store
	dispatcher Dispatcher
	runner     Runner
	mux        *http.ServeMux
	logger     *zap.Logger
}

// NewServer creates an API server.
func NewServer(store Store, d Dispatcher, r Runner, logger *zap.Logger) *Server {
	s := &Server{
		store:      store,
		dispatcher: d,
		runner:     r,
		mux:        http.NewServeMux(),
		logger:     logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /api/v1/alerts", s.handleListAlerts)
	s.mux.HandleFunc("POST /api/v1/alerts", s.handleCreateAlert)
	s.mux.HandleFunc("GET /api/v1/alerts/{id}", s.handleGetAlert)
	s.mux.HandleFunc("POST /api/v1/alerts/dispatch-pending", s.handleDispatchPending)
	s.mux.HandleFunc("POST /api/v1/alerts/{id}/dispatch", s.handleDispatch)
	s.mux.HandleFunc("POST /api/v1/runs", s.handleRun)
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	q := r.URL.Query()
	filter := model.AlertFilter{
		Status: model.Status(q.Get("status")),
		Type:   model.AlertType(q.Get("type")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if filter.Type != "" && !filter.Type.Valid() {
		writeError(w, http.StatusBadRequest, "invalid alert type")
		return
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	list, err := s.store.ListAlerts(ctx, filter)
	if err != nil {
		s.logger.Error("list alerts", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if list == nil {
		list = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, list)
}

type createRequest struct {
	Type           model.AlertType `json:"alert_type"`
	ConditionKey   string          `json:"condition_key"`
	Title          string          `json:"title"`
	Message        string          `json:"message"`
	ClientID       string          `json:"client_id"`
	SubscriptionID string          `json:"subscription_id"`
	InstallmentID  string          `json:"installment_id"`
	Metadata       model.Metadata  `json:"metadata"`
}

type createResponse struct {
	Created bool         `json:"created"`
	Alert   *model.Alert `json:"alert,omitempty"`
}

// handleCreateAlert records an alert raised outside the rule set, such as a
// new sale. Repeating a condition key is not an error and creates nothing.
func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !req.Type.Valid() {
		writeError(w, http.StatusBadRequest, "invalid alert type")
		return
	}
	if req.ConditionKey == "" {
		writeError(w, http.StatusBadRequest, "condition_key is required")
		return
	}

	a, err := s.store.InsertIfAbsent(r.Context(), &model.NewAlert{
		Type:           req.Type,
		ConditionKey:   req.ConditionKey,
		Title:          req.Title,
		Message:        req.Message,
		ClientID:       req.ClientID,
		SubscriptionID: req.SubscriptionID,
		InstallmentID:  req.InstallmentID,
		Metadata:       req.Metadata,
	})
	if err != nil {
		s.logger.Error("create alert", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if a == nil {
		writeJSON(w, http.StatusOK, createResponse{Created: false})
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{Created: true, Alert: a})
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetAlert(r.Context(), r.PathValue("id"))
	if errors.Is(err, model.ErrNotFound) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	if err != nil {
		s.logger.Error("get alert", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type dispatchResponse struct {
	Alert *model.Alert `json:"alert,omitempty"`
	Error string       `json:"error,omitempty"`
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, err := s.dispatcher.Dispatch(r.Context(), id)
	if err == nil {
		writeJSON(w, http.StatusOK, dispatchResponse{Alert: a})
		return
	}

	code := dispatchStatus(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("dispatch alert", zap.String("alert_id", id), zap.Error(err))
	}
	writeJSON(w, code, dispatchResponse{Alert: a, Error: err.Error()})
}

// dispatchStatus maps a dispatch error to an HTTP status. A store write
// failure wins over a delivery failure because the recorded state is suspect.
func dispatchStatus(err error) int {
	switch {
	case errors.Is(err, alerts.ErrStoreWrite):
		return http.StatusInternalServerError
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrAlreadyProcessed):
		return http.StatusConflict
	case errors.Is(err, alerts.ErrWebhookDelivery):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) handleDispatchPending(w http.ResponseWriter, r *http.Request) {
	res, err := s.dispatcher.DispatchPending(r.Context())
	if err != nil {
		s.logger.Error("dispatch pending", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	report, err := s.runner.Run(r.Context())
	if errors.Is(err, batch.ErrRunInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("batch run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
