// Package dashboard exposes the engine's state over HTTP. It renders
// nothing; every endpoint returns JSON for an external front end.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/tianyi-liu/premiumdiff/internal/catalog"
	"github.com/tianyi-liu/premiumdiff/internal/engine"
	"github.com/tianyi-liu/premiumdiff/internal/models"
)

const requestTimeout = 15 * time.Second

// Server serves the JSON API.
type Server struct {
	engine    *engine.Engine
	catalog   *catalog.Catalog
	log       *logrus.Logger
	authToken string
	srv       *http.Server
}

// NewServer creates a dashboard server. An empty authToken disables auth.
func NewServer(port int, e *engine.Engine, cat *catalog.Catalog, log *logrus.Logger, authToken string) *Server {
	s := &Server{
		engine:    e,
		catalog:   cat,
		log:       log,
		authToken: authToken,
	}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/result", s.handleResult)
		r.Get("/history", s.handleHistory)
		r.Get("/months", s.handleMonths)
		r.Get("/strikes", s.handleStrikes)
		r.Post("/selection", s.handleSelection)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/auto-refresh", s.handleAutoRefresh)
	})
	return r
}

// authMiddleware checks X-Auth-Token when a token is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" && r.Header.Get("X-Auth-Token") != s.authToken {
			s.writeError(w, http.StatusUnauthorized, "invalid auth token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start blocks serving HTTP until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.log.Infof("dashboard listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleResult(w http.ResponseWriter, _ *http.Request) {
	res := s.engine.LastResult()
	if res == nil {
		s.writeError(w, http.StatusNotFound, "no refresh completed yet")
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	res := s.engine.LastResult()
	history := []models.PremiumSnapshot{}
	if res != nil {
		history = res.History
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (s *Server) handleMonths(w http.ResponseWriter, r *http.Request) {
	class := s.selectedClass()
	if class == "" {
		s.writeError(w, http.StatusConflict, "no underlying selected")
		return
	}
	months, err := s.catalog.Months(r.Context(), class)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"class":  class,
		"months": months,
	})
}

func (s *Server) handleStrikes(w http.ResponseWriter, r *http.Request) {
	class := s.selectedClass()
	if class == "" {
		s.writeError(w, http.StatusConflict, "no underlying selected")
		return
	}
	month := models.ContractMonth(r.URL.Query().Get("month"))
	if !month.Valid() {
		s.writeError(w, http.StatusBadRequest, "month query parameter must be YYMM")
		return
	}
	strikes, err := s.catalog.Strikes(r.Context(), class, month)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"class":   class,
		"month":   month,
		"strikes": strikes,
	})
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	var sel engine.Selection
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid selection body")
		return
	}
	if err := s.engine.SetSelection(sel); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"selection": s.engine.Selection()})
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	s.engine.TriggerRefresh()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh requested"})
}

func (s *Server) handleAutoRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.engine.SetAutoRefresh(body.Enabled)
	s.writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.engine.AutoRefresh()})
}

func (s *Server) selectedClass() models.UnderlyingClass {
	return s.engine.Selection().Class
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
