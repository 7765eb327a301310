package httpapi

import (
	"net/http"

	"botpanel/internal/metrics"
	"botpanel/internal/storage"
)

// botConfig is the single snapshot the bot polls. Keys carry the raw
// secrets; this surface is gated by the shared-secret middleware.
type botConfig struct {
	Keys       map[string]string                  `json:"keys"`
	Models     map[string]storage.ModelDescriptor `json:"models"`
	Settings   storage.Settings                   `json:"settings"`
	UserModels map[string]string                  `json:"user_models"`
}

func (s *Server) handleBotConfig(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.ActiveKeyValues(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	models, err := s.store.GetEnabledModels(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	settings, err := s.store.LoadSettings(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	userModels, err := s.store.GetAllUserModels(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	metrics.Global().BotConfigFetches.Inc()
	writeJSON(w, http.StatusOK, botConfig{
		Keys:       keys,
		Models:     models,
		Settings:   settings,
		UserModels: userModels,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.ListApiKeys(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	models, err := s.store.GetAllModels(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	userModels, err := s.store.GetAllUserModels(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	activeKeys := 0
	for _, k := range keys {
		if k.IsActive {
			activeKeys++
		}
	}
	enabledModels := 0
	for _, m := range models {
		if m.IsEnabled {
			enabledModels++
		}
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"total_keys":     len(keys),
		"active_keys":    activeKeys,
		"total_models":   len(models),
		"enabled_models": enabledModels,
		"user_overrides": len(userModels),
	})
}
