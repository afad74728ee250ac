// Package docserver serves per-user movie and profile documents over HTTP.
package docserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"gosyncmovies/backend"
	"gosyncmovies/backend/badgerdoc"
	"gosyncmovies/internal/metrics"
	"gosyncmovies/internal/utils"
)

// Server exposes a badgerdoc.Store as a document API.
type Server struct {
	store      *badgerdoc.Store
	token      string
	addr       string
	rateLimit  int
	rateWindow time.Duration
	log        zerolog.Logger
}

// Options configures a Server.
type Options struct {
	// Addr is the listen address for Serve.
	Addr string
	// Token, when set, is required as a bearer token on /v1 routes.
	Token string
	// RateLimit caps /v1 requests per client IP within RateWindow. Zero disables it.
	RateLimit  int
	RateWindow time.Duration
}

// New creates a server over store.
func New(store *badgerdoc.Store, opts Options) *Server {
	window := opts.RateWindow
	if window <= 0 {
		window = time.Minute
	}
	return &Server{
		store:      store,
		token:      opts.Token,
		addr:       opts.Addr,
		rateLimit:  opts.RateLimit,
		rateWindow: window,
		log:        utils.Component("docserver"),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1/users/{uid}", func(r chi.Router) {
		if s.rateLimit > 0 {
			r.Use(httprate.LimitByIP(s.rateLimit, s.rateWindow))
		}
		r.Use(s.authenticate)

		r.Get("/movies", s.listMovies)
		r.Put("/movies/{id}", s.putMovie)
		r.Delete("/movies/{id}", s.deleteMovie)

		r.Get("/profile", s.getProfile)
		r.Put("/profile", s.putProfile)
		r.Post("/profile/credits", s.adjustCredits)
	})
	return r
}

// String names the server for the supervisor.
func (s *Server) String() string {
	return "docserver"
}

// Serve listens on the configured address until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("document server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("document server shutdown")
		}
		return ctx.Err()
	}
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		elapsed := time.Since(start)
		metrics.RecordAPIRequest(r.Method, route, strconv.Itoa(ww.Status()), elapsed)
		s.log.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", ww.Status()).
			Dur("duration", elapsed).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got != s.token {
				writeError(w, http.StatusUnauthorized, "missing or invalid token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listMovies(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.Documents(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		s.serverError(w, err)
		return
	}
	if docs == nil {
		docs = []backend.MovieDocument{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func movieID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) putMovie(w http.ResponseWriter, r *http.Request) {
	id, ok := movieID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid movie id")
		return
	}
	var doc backend.MovieDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid document: "+err.Error())
		return
	}
	if doc.ID != id {
		writeError(w, http.StatusBadRequest, "document id does not match path")
		return
	}
	if err := s.store.PutDocument(r.Context(), chi.URLParam(r, "uid"), doc); err != nil {
		s.serverError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteMovie(w http.ResponseWriter, r *http.Request) {
	id, ok := movieID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid movie id")
		return
	}
	err := s.store.Delete(r.Context(), chi.URLParam(r, "uid"), id)
	switch {
	case backend.IsRemoteNotFound(err):
		writeError(w, http.StatusNotFound, "document not found")
	case err != nil:
		s.serverError(w, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProfile(r.Context(), chi.URLParam(r, "uid"))
	if s.profileError(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, backend.ToProfileDocument(*p))
}

// putProfile creates or updates the profile. With "If-None-Match: *" an
// existing profile is left alone and 412 is returned.
func (s *Server) putProfile(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	var doc backend.ProfileDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile: "+err.Error())
		return
	}
	doc.ID = uid
	profile := doc.Profile()

	if r.Header.Get("If-None-Match") == "*" {
		if _, err := s.store.GetProfile(r.Context(), uid); err == nil {
			writeError(w, http.StatusPreconditionFailed, "profile already exists")
			return
		}
		created, err := s.store.CreateProfile(r.Context(), profile)
		if s.profileError(w, err) {
			return
		}
		writeJSON(w, http.StatusCreated, backend.ToProfileDocument(*created))
		return
	}

	updated, err := s.store.UpdateProfile(r.Context(), profile)
	if errors.Is(err, backend.ErrProfileNotFound) {
		created, err := s.store.CreateProfile(r.Context(), profile)
		if s.profileError(w, err) {
			return
		}
		writeJSON(w, http.StatusCreated, backend.ToProfileDocument(*created))
		return
	}
	if s.profileError(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, backend.ToProfileDocument(*updated))
}

func (s *Server) adjustCredits(w http.ResponseWriter, r *http.Request) {
	var delta backend.CreditDelta
	if err := json.NewDecoder(r.Body).Decode(&delta); err != nil {
		writeError(w, http.StatusBadRequest, "invalid credit delta: "+err.Error())
		return
	}
	p, err := s.store.AdjustCredits(r.Context(), chi.URLParam(r, "uid"), delta.Delta)
	if s.profileError(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, backend.ToProfileDocument(*p))
}

// profileError writes the response for err and reports whether it did.
func (s *Server) profileError(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, backend.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, backend.ErrInsufficientCredits):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, new(validator.ValidationErrors)):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.serverError(w, err)
	}
	return true
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log := utils.Component("docserver")
		log.Warn().Err(err).Msg("failed to write response")
	}
}
