package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"botpanel/internal/metrics"
)

func (s *Server) handleListUserModels(w http.ResponseWriter, r *http.Request) {
	overrides, err := s.store.GetAllUserModels(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overrides)
}

type setUserModelRequest struct {
	UserID  string `json:"user_id"`
	ModelID string `json:"model_id"`
}

func (s *Server) handleSetUserModel(w http.ResponseWriter, r *http.Request) {
	var req setUserModelRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.store.SetUserModel(r.Context(), req.UserID, req.ModelID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	metrics.Global().AdminActions.Inc()
	if err := s.store.AddActivityLog(r.Context(), "user_model_set", req.UserID+" -> "+req.ModelID, remoteIP(r)); err != nil {
		s.log.Error().Err(err).Msg("record user model set")
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDeleteUserModel(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	if err := s.store.DeleteUserModel(r.Context(), userID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	metrics.Global().AdminActions.Inc()
	if err := s.store.AddActivityLog(r.Context(), "user_model_deleted", userID, remoteIP(r)); err != nil {
		s.log.Error().Err(err).Msg("record user model delete")
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
