package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/helioscrm/walink/internal/connect"
	"github.com/helioscrm/walink/internal/instances"
	"github.com/helioscrm/walink/internal/provider"
)

const callbackTimeout = 5 * time.Second

type connectBody struct {
	DisplayName string `json:"displayName,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

type connectResponse struct {
	InstanceID string `json:"instanceId"`
	AttemptID  string `json:"attemptId"`
	Phase      string `json:"phase"`
	ScanCode   string `json:"scanCode,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.handler())
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /ws", s.hub)
	mux.HandleFunc("GET /api/instances", s.handleListInstances)
	mux.HandleFunc("GET /api/instances/{id}", s.handleGetInstance)
	mux.HandleFunc("POST /api/instances/{id}/connect", s.handleConnect)
	mux.HandleFunc("DELETE /api/instances/{id}/connect", s.handleCancel)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("list instances", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "registry unavailable", Kind: "internal"})
		return
	}
	if records == nil {
		records = []instances.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.store.Get(r.Context(), id)
	if errors.Is(err, instances.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "instance not found", Kind: "not_found"})
		return
	}
	if err != nil {
		s.logger.Error("get instance", "instance_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "registry unavailable", Kind: "internal"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body connectBody
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body", Kind: "bad_request"})
		return
	}

	if err := s.store.Upsert(r.Context(), instances.Record{
		ID:          id,
		DisplayName: body.DisplayName,
		PhoneNumber: body.PhoneNumber,
	}); err != nil {
		s.logger.Error("register instance", "instance_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "registry unavailable", Kind: "internal"})
		return
	}

	s.metrics.attemptsStarted.Inc()
	attempt, err := s.coordinator.Start(r.Context(), provider.ConnectRequest{
		InstanceID:  id,
		DisplayName: body.DisplayName,
		PhoneNumber: body.PhoneNumber,
	}, s.attemptCallbacks())
	if err != nil {
		status, kind := classifyError(err)
		writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
		return
	}

	writeJSON(w, http.StatusAccepted, connectResponse{
		InstanceID: id,
		AttemptID:  attempt.ID,
		Phase:      string(attempt.Phase()),
		ScanCode:   attempt.ScanCode(),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, active := s.coordinator.Active(id); active {
		s.metrics.attemptsCanceled.Inc()
		s.hub.Broadcast("canceled", map[string]string{"instanceId": id})
	}
	// Cancel is a no-op without an active attempt, never an error.
	s.coordinator.Cancel(id)
	w.WriteHeader(http.StatusNoContent)
}

// attemptCallbacks bridges coordinator transitions to the registry, the
// websocket stream, and metrics. Callbacks run on coordinator goroutines, so
// registry writes get their own bounded context.
func (s *Server) attemptCallbacks() connect.Callbacks {
	return connect.Callbacks{
		OnScanCode: func(instanceID, scanCode string) {
			s.hub.Broadcast("scan_code", map[string]string{
				"instanceId": instanceID,
				"scanCode":   scanCode,
			})
		},
		OnConnected: func(instanceID string, source connect.Source) {
			s.metrics.attemptsConnected.WithLabelValues(string(source)).Inc()
			ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
			defer cancel()
			if err := s.store.SetStatus(ctx, instanceID, "connected", string(source)); err != nil {
				s.logger.Error("record connected status", "instance_id", instanceID, "error", err)
			}
			s.hub.Broadcast("connected", map[string]string{
				"instanceId": instanceID,
				"source":     string(source),
			})
		},
		OnFailed: func(instanceID string, err error) {
			_, kind := classifyError(err)
			s.metrics.attemptsFailed.WithLabelValues(kind).Inc()
			s.hub.Broadcast("failed", map[string]string{
				"instanceId": instanceID,
				"reason":     err.Error(),
				"kind":       kind,
			})
		},
	}
}

// classifyError maps coordinator errors to an HTTP status and a stable kind
// token the UI can branch on ("try again" vs "contact support").
func classifyError(err error) (int, string) {
	var invalid *provider.InvalidResponseError
	if errors.As(err, &invalid) {
		return http.StatusBadGateway, "invalid_response"
	}
	var transport *provider.TransportError
	if errors.As(err, &transport) {
		return http.StatusBadGateway, "transport"
	}
	if errors.Is(err, connect.ErrClosed) {
		return http.StatusServiceUnavailable, "shutting_down"
	}
	return http.StatusInternalServerError, "internal"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
