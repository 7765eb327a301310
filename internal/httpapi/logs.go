package httpapi

import (
	"net/http"
	"strconv"
	"time"
)

type activityView struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	IP        string    `json:"ip_address"`
	CreatedAt time.Time `json:"created_at"`
}

type testLogView struct {
	ID             int64     `json:"id"`
	APIName        string    `json:"api_name"`
	Status         string    `json:"status"`
	ResponseTimeMs *int64    `json:"response_time_ms"`
	ErrorMessage   *string   `json:"error_message"`
	TestedAt       time.Time `json:"tested_at"`
}

func limitParam(r *http.Request) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func (s *Server) handleActivityLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.GetActivityLogs(r.Context(), limitParam(r))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	out := make([]activityView, 0, len(entries))
	for _, e := range entries {
		out = append(out, activityView{
			ID:        e.ID,
			Action:    e.Action,
			Details:   e.Details,
			IP:        e.IP,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTestLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.GetTestLogs(r.Context(), limitParam(r))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	out := make([]testLogView, 0, len(entries))
	for _, e := range entries {
		out = append(out, testLogView{
			ID:             e.ID,
			APIName:        e.APIName,
			Status:         e.Status,
			ResponseTimeMs: e.ResponseTimeMs,
			ErrorMessage:   e.ErrorMessage,
			TestedAt:       e.TestedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
