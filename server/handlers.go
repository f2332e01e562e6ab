package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hupe1980/agentruntime/core"
)

type errorResponse struct {
	Error string `json:"error"`
}

type createSessionRequest struct {
	State map[string]any `json:"state"`
}

type runRequest struct {
	AppName    string       `json:"app_name"`
	UserID     string       `json:"user_id"`
	SessionID  string       `json:"session_id"`
	NewMessage core.Content `json:"new_message"`
	Streaming  bool         `json:"streaming"`
}

// searchUnavailableResponse is the empty-with-error shape returned when the
// memory backend cannot be reached.
type searchUnavailableResponse struct {
	Memories []*core.MemoryResult `json:"memories"`
	Error    string               `json:"error"`
}

// storeStatus maps store sentinel errors onto HTTP status codes.
func storeStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrSessionExists):
		return http.StatusConflict
	case errors.Is(err, core.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrMemoryUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes value as JSON into w. If encoding fails (typically
// because the client disconnected) the error is logged; the caller cannot
// send a corrective response to a dead client.
func (s *Server) writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(value); err != nil {
		s.logger.Warn("server.response.write_failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// checkApp rejects requests addressed to an application this server does not
// host. Sessions are strictly app-scoped, so a wrong app name is a 404, not
// an empty result.
func (s *Server) checkApp(w http.ResponseWriter, app string) bool {
	if app != s.runtime.AppName() {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("app not found: %s", app))
		return false
	}

	return true
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if !s.checkApp(w, r.PathValue("app")) {
		return
	}

	// The body is optional; an absent body creates a session without state.
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %v", err))
		return
	}

	sess, err := s.runtime.CreateSession(r.Context(), r.PathValue("user"), r.PathValue("session"), req.State)
	if err != nil {
		s.writeError(w, storeStatus(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if !s.checkApp(w, r.PathValue("app")) {
		return
	}

	sess, err := s.runtime.GetSession(r.Context(), r.PathValue("user"), r.PathValue("session"))
	if err != nil {
		s.writeError(w, storeStatus(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.checkApp(w, r.PathValue("app")) {
		return
	}

	if err := s.runtime.DeleteSession(r.Context(), r.PathValue("user"), r.PathValue("session")); err != nil {
		s.writeError(w, storeStatus(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if !s.checkApp(w, r.PathValue("app")) {
		return
	}

	sessions, err := s.runtime.ListSessions(r.Context(), r.PathValue("user"))
	if err != nil {
		s.writeError(w, storeStatus(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleAddSessionToMemory(w http.ResponseWriter, r *http.Request) {
	if !s.checkApp(w, r.PathValue("app")) {
		return
	}

	if err := s.runtime.AddSessionToMemory(r.Context(), r.PathValue("user"), r.PathValue("session")); err != nil {
		s.writeError(w, storeStatus(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearchMemory(w http.ResponseWriter, r *http.Request) {
	if !s.checkApp(w, r.PathValue("app")) {
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("missing query parameter q"))
		return
	}

	resp, err := s.runtime.SearchMemory(r.Context(), r.PathValue("user"), query)
	if err != nil {
		if errors.Is(err, core.ErrMemoryUnavailable) {
			s.writeJSON(w, http.StatusServiceUnavailable, searchUnavailableResponse{
				Memories: []*core.MemoryResult{},
				Error:    err.Error(),
			})

			return
		}

		s.writeError(w, storeStatus(err), err)

		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// checkRunRequest validates the shared body of /run and /run_sse.
func (s *Server) checkRunRequest(req runRequest) (int, error) {
	if req.AppName != s.runtime.AppName() {
		return http.StatusNotFound, fmt.Errorf("app not found: %s", req.AppName)
	}

	if req.UserID == "" || req.SessionID == "" {
		return http.StatusBadRequest, errors.New("user_id and session_id are required")
	}

	return 0, nil
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %v", err))
		return
	}

	if status, err := s.checkRunRequest(req); err != nil {
		s.writeError(w, status, err)
		return
	}

	events, err := s.runtime.Run(r.Context(), req.UserID, req.SessionID, req.NewMessage)
	if err != nil {
		s.writeError(w, storeStatus(err), err)
		return
	}

	if events == nil {
		events = []core.Event{}
	}

	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleRunSSE(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %v", err))
		return
	}

	if status, err := s.checkRunRequest(req); err != nil {
		s.writeError(w, status, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, errors.New("streaming not supported"))
		return
	}

	// The request context cancels the run when the client disconnects.
	runID, eventsCh, errorsCh, err := s.runtime.RunStream(r.Context(), req.UserID, req.SessionID, req.NewMessage, req.Streaming)
	if err != nil {
		s.writeError(w, storeStatus(err), err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range eventsCh {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("server.run_sse.marshal_failed", "run_id", runID, "error", err)
			continue
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			s.logger.Warn("server.run_sse.client_gone", "run_id", runID, "error", err)
			return
		}

		flusher.Flush()
	}

	if err := <-errorsCh; err != nil {
		s.logger.Warn("server.run_sse.terminal_error", "run_id", runID, "error", err)

		payload, _ := json.Marshal(errorResponse{Error: err.Error()})
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
}
