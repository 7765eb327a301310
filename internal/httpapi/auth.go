package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"botpanel/internal/metrics"
	"botpanel/internal/storage"
)

const minPasswordLength = 6

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	hash, err := s.store.GetSetting(r.Context(), storage.SettingAdminPasswordHash, "")
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	if !constantTimeEqual(req.Username, s.adminUser) || hash == "" ||
		bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		metrics.Global().AuthFailures.Inc()
		if err := s.store.AddActivityLog(r.Context(), "login_failed", "user "+req.Username, remoteIP(r)); err != nil {
			s.log.Error().Err(err).Msg("record failed login")
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.store.CreateSession(r.Context(), s.sessionTTL)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(s.sessionTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	if err := s.store.AddActivityLog(r.Context(), "login", "", remoteIP(r)); err != nil {
		s.log.Error().Err(err).Msg("record login")
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	if token != "" {
		if err := s.store.DeleteSession(r.Context(), token); err != nil {
			s.writeStoreError(w, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	ok, err := s.store.ValidateSession(r.Context(), sessionToken(r))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": ok})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("new password must be at least %d characters", minPasswordLength))
		return
	}

	hash, err := s.store.GetSetting(r.Context(), storage.SettingAdminPasswordHash, "")
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.CurrentPassword)) != nil {
		metrics.Global().AuthFailures.Inc()
		writeError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		s.log.Error().Err(err).Msg("hash new password")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := s.store.SetSetting(r.Context(), storage.SettingAdminPasswordHash, string(newHash)); err != nil {
		s.writeStoreError(w, err)
		return
	}

	metrics.Global().AdminActions.Inc()
	if err := s.store.AddActivityLog(r.Context(), "password_changed", "", remoteIP(r)); err != nil {
		s.log.Error().Err(err).Msg("record password change")
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
