package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"botpanel/internal/metrics"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetAllSettings(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handlePutSettings accepts a flat object and stores every value as a
// string. Numbers keep their literal form via UseNumber so "25" does not
// come back as "25.000000".
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	values := make(map[string]string, len(body))
	for key, v := range body {
		switch t := v.(type) {
		case string:
			values[key] = t
		case json.Number:
			values[key] = t.String()
		case bool:
			values[key] = fmt.Sprintf("%t", t)
		case nil:
			values[key] = ""
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("setting %q must be a scalar", key))
			return
		}
	}

	if err := s.store.SetSettings(r.Context(), values); err != nil {
		s.writeStoreError(w, err)
		return
	}
	metrics.Global().AdminActions.Inc()
	if err := s.store.AddActivityLog(r.Context(), "settings_updated", "", remoteIP(r)); err != nil {
		s.log.Error().Err(err).Msg("record settings update")
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
