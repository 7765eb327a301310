package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"botpanel/internal/metrics"
	"botpanel/internal/storage"
)

// apiKeyView is the admin-facing key shape. The raw secret never leaves
// the store; only the masked rendering does.
type apiKeyView struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	KeyMasked  string     `json:"key_masked"`
	Provider   string     `json:"provider"`
	IsActive   bool       `json:"is_active"`
	LastTested *time.Time `json:"last_tested"`
	TestStatus *string    `json:"test_status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.ListApiKeys(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	out := make([]apiKeyView, 0, len(keys))
	for _, k := range keys {
		out = append(out, apiKeyView{
			ID:         k.ID,
			Name:       k.Name,
			KeyMasked:  storage.MaskSecret(k.KeyValue),
			Provider:   k.Provider,
			IsActive:   k.IsActive,
			LastTested: k.LastTested,
			TestStatus: k.TestStatus,
			CreatedAt:  k.CreatedAt,
			UpdatedAt:  k.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type addKeyRequest struct {
	Name     string `json:"name"`
	KeyValue string `json:"key_value"`
	Provider string `json:"provider"`
}

func (s *Server) handleAddKey(w http.ResponseWriter, r *http.Request) {
	var req addKeyRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.store.AddApiKey(r.Context(), req.Name, req.KeyValue, req.Provider); err != nil {
		s.writeStoreError(w, err)
		return
	}
	metrics.Global().AdminActions.Inc()
	if err := s.store.AddActivityLog(r.Context(), "key_added", req.Name, remoteIP(r)); err != nil {
		s.log.Error().Err(err).Msg("record key add")
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type updateKeyRequest struct {
	KeyValue *string `json:"key_value"`
	IsActive *bool   `json:"is_active"`
}

func (s *Server) handleUpdateKey(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid key id")
		return
	}
	var req updateKeyRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	patch := storage.ApiKeyPatch{KeyValue: req.KeyValue, IsActive: req.IsActive}
	if err := s.store.UpdateApiKey(r.Context(), id, patch); err != nil {
		s.writeStoreError(w, err)
		return
	}
	metrics.Global().AdminActions.Inc()
	if err := s.store.AddActivityLog(r.Context(), "key_updated", strconv.FormatInt(id, 10), remoteIP(r)); err != nil {
		s.log.Error().Err(err).Msg("record key update")
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid key id")
		return
	}
	if err := s.store.DeleteApiKey(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	metrics.Global().AdminActions.Inc()
	if err := s.store.AddActivityLog(r.Context(), "key_deleted", strconv.FormatInt(id, 10), remoteIP(r)); err != nil {
		s.log.Error().Err(err).Msg("record key delete")
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleTestKey probes the provider outside any store lock; only the
// result write re-enters the store.
func (s *Server) handleTestKey(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	key, err := s.store.GetActiveKeyValue(r.Context(), name)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	res := s.prober.Probe(r.Context(), name, key)
	metrics.Global().ProviderProbes.Inc()

	var responseTime *int64
	if !res.Skipped {
		responseTime = &res.ElapsedMs
	}
	var errorMessage *string
	if !res.Success && res.Message != "" {
		errorMessage = &res.Message
	}
	if err := s.store.RecordTestResult(r.Context(), name, res.Status(), responseTime, errorMessage); err != nil {
		s.writeStoreError(w, err)
		return
	}
	if err := s.store.AddActivityLog(r.Context(), "key_tested", name+": "+res.Status(), remoteIP(r)); err != nil {
		s.log.Error().Err(err).Msg("record key test")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          res.Success,
		"status":           res.Status(),
		"message":          res.Message,
		"response_time_ms": res.ElapsedMs,
	})
}
