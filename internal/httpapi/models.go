package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"botpanel/internal/metrics"
	"botpanel/internal/storage"
)

type modelView struct {
	ID          string    `json:"id"`
	Emoji       string    `json:"emoji"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Provider    string    `json:"provider"`
	ModelName   string    `json:"model_name"`
	IsEnabled   bool      `json:"is_enabled"`
	IsDefault   bool      `json:"is_default"`
	Priority    int       `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
}

func toModelView(m storage.Model) modelView {
	return modelView{
		ID:          m.ID,
		Emoji:       m.Emoji,
		Name:        m.Name,
		Description: m.Description,
		Category:    m.Category,
		Provider:    m.Provider,
		ModelName:   m.ModelName,
		IsEnabled:   m.IsEnabled,
		IsDefault:   m.IsDefault,
		Priority:    m.Priority,
		CreatedAt:   m.CreatedAt,
	}
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.store.GetAllModels(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	out := make([]modelView, 0, len(models))
	for _, m := range models {
		out = append(out, toModelView(m))
	}
	writeJSON(w, http.StatusOK, out)
}

type addModelRequest struct {
	ID          string `json:"id"`
	Emoji       string `json:"emoji"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Provider    string `json:"provider"`
	ModelName   string `json:"model_name"`
	IsEnabled   *bool  `json:"is_enabled"`
	IsDefault   bool   `json:"is_default"`
	Priority    int    `json:"priority"`
}

func (s *Server) handleAddModel(w http.ResponseWriter, r *http.Request) {
	var req addModelRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// New models are enabled unless the request says otherwise.
	enabled := true
	if req.IsEnabled != nil {
		enabled = *req.IsEnabled
	}
	m := storage.Model{
		ID:          req.ID,
		Emoji:       req.Emoji,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Provider:    req.Provider,
		ModelName:   req.ModelName,
		IsEnabled:   enabled,
		IsDefault:   req.IsDefault,
		Priority:    req.Priority,
	}
	if err := s.store.AddModel(r.Context(), m); err != nil {
		s.writeStoreError(w, err)
		return
	}
	metrics.Global().AdminActions.Inc()
	if err := s.store.AddActivityLog(r.Context(), "model_added", req.ID, remoteIP(r)); err != nil {
		s.log.Error().Err(err).Msg("record model add")
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type updateModelRequest struct {
	Emoji       *string `json:"emoji"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Provider    *string `json:"provider"`
	ModelName   *string `json:"model_name"`
	IsEnabled   *bool   `json:"is_enabled"`
	IsDefault   *bool   `json:"is_default"`
	Priority    *int    `json:"priority"`
}

func (s *Server) handleUpdateModel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req updateModelRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	patch := storage.ModelPatch{
		Emoji:       req.Emoji,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Provider:    req.Provider,
		ModelName:   req.ModelName,
		IsEnabled:   req.IsEnabled,
		IsDefault:   req.IsDefault,
		Priority:    req.Priority,
	}
	if err := s.store.UpdateModel(r.Context(), id, patch); err != nil {
		s.writeStoreError(w, err)
		return
	}
	metrics.Global().AdminActions.Inc()
	if err := s.store.AddActivityLog(r.Context(), "model_updated", id, remoteIP(r)); err != nil {
		s.log.Error().Err(err).Msg("record model update")
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.DeleteModel(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	metrics.Global().AdminActions.Inc()
	if err := s.store.AddActivityLog(r.Context(), "model_deleted", id, remoteIP(r)); err != nil {
		s.log.Error().Err(err).Msg("record model delete")
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleToggleModel flips is_enabled. Unknown ids are 404 here, unlike
// the silent-no-op partial update, because the read happens first.
func (s *Server) handleToggleModel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m, err := s.store.GetModel(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	enabled := !m.IsEnabled
	if err := s.store.UpdateModel(r.Context(), id, storage.ModelPatch{IsEnabled: &enabled}); err != nil {
		s.writeStoreError(w, err)
		return
	}
	metrics.Global().AdminActions.Inc()
	if err := s.store.AddActivityLog(r.Context(), "model_toggled", id, remoteIP(r)); err != nil {
		s.log.Error().Err(err).Msg("record model toggle")
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "is_enabled": enabled})
}

func (s *Server) handleSetDefaultModel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.SetDefaultModel(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	metrics.Global().AdminActions.Inc()
	if err := s.store.AddActivityLog(r.Context(), "default_model_set", id, remoteIP(r)); err != nil {
		s.log.Error().Err(err).Msg("record default model change")
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleResetModels(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ResetModels(r.Context()); err != nil {
		s.writeStoreError(w, err)
		return
	}
	metrics.Global().AdminActions.Inc()
	if err := s.store.AddActivityLog(r.Context(), "models_reset", "", remoteIP(r)); err != nil {
		s.log.Error().Err(err).Msg("record models reset")
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
