package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"botpanel/internal/config"
	"botpanel/internal/providers"
	"botpanel/internal/storage"
)

// Server owns the admin and bot HTTP surfaces. All state lives in the
// store; the server itself only carries credentials and wiring.
type Server struct {
	store  *storage.Store
	prober *providers.Prober
	log    zerolog.Logger

	authMode   string
	adminUser  string
	adminPass  string
	botSecret  string
	sessionTTL time.Duration
}

type Options struct {
	Store         *storage.Store
	Prober        *providers.Prober
	Logger        zerolog.Logger
	AuthMode      string
	AdminUser     string
	AdminPassword string
	BotSecret     string
	SessionTTL    time.Duration
}

func New(opts Options) *Server {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if opts.AuthMode == "" {
		opts.AuthMode = config.AuthModeSession
	}
	return &Server{
		store:      opts.Store,
		prober:     opts.Prober,
		log:        opts.Logger,
		authMode:   opts.AuthMode,
		adminUser:  opts.AdminUser,
		adminPass:  opts.AdminPassword,
		botSecret:  opts.BotSecret,
		sessionTTL: opts.SessionTTL,
	}
}

// Router builds the full route table. Open routes and the bot subrouter
// are registered before the admin subrouter so its auth middleware never
// sees them.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter().UseEncodedPath()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/keepalive", s.handleKeepalive).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if s.authMode == config.AuthModeSession {
		auth := r.PathPrefix("/api/auth").Subrouter()
		auth.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
		auth.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
		auth.HandleFunc("/check", s.handleAuthCheck).Methods(http.MethodGet)
		auth.Handle("/change-password", s.requireAdmin(http.HandlerFunc(s.handleChangePassword))).Methods(http.MethodPost)
	}

	bot := r.PathPrefix("/api/bot").Subrouter()
	bot.Use(s.requireBotSecret)
	bot.HandleFunc("/config", s.handleBotConfig).Methods(http.MethodGet)

	admin := r.PathPrefix("/api").Subrouter()
	admin.Use(s.requireAdmin)

	admin.HandleFunc("/keys", s.handleListKeys).Methods(http.MethodGet)
	admin.HandleFunc("/keys", s.handleAddKey).Methods(http.MethodPost)
	admin.HandleFunc("/keys/test/{name}", s.handleTestKey).Methods(http.MethodPost)
	admin.HandleFunc("/keys/{id:[0-9]+}", s.handleUpdateKey).Methods(http.MethodPut)
	admin.HandleFunc("/keys/{id:[0-9]+}", s.handleDeleteKey).Methods(http.MethodDelete)

	admin.HandleFunc("/models", s.handleListModels).Methods(http.MethodGet)
	admin.HandleFunc("/models", s.handleAddModel).Methods(http.MethodPost)
	admin.HandleFunc("/models/reset", s.handleResetModels).Methods(http.MethodPost)
	admin.HandleFunc("/models/{id}/toggle", s.handleToggleModel).Methods(http.MethodPost)
	admin.HandleFunc("/models/{id}/set-default", s.handleSetDefaultModel).Methods(http.MethodPost)
	admin.HandleFunc("/models/{id}", s.handleUpdateModel).Methods(http.MethodPut)
	admin.HandleFunc("/models/{id}", s.handleDeleteModel).Methods(http.MethodDelete)

	admin.HandleFunc("/user-models", s.handleListUserModels).Methods(http.MethodGet)
	admin.HandleFunc("/user-models", s.handleSetUserModel).Methods(http.MethodPost)
	admin.HandleFunc("/user-models/{user_id}", s.handleDeleteUserModel).Methods(http.MethodDelete)

	admin.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	admin.HandleFunc("/settings", s.handlePutSettings).Methods(http.MethodPut)

	admin.HandleFunc("/logs/activity", s.handleActivityLogs).Methods(http.MethodGet)
	admin.HandleFunc("/logs/tests", s.handleTestLogs).Methods(http.MethodGet)

	admin.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleKeepalive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
