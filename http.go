package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
)

// statusServer exposes the store and scheduler counters over HTTP.
type statusServer struct {
	params *Params
	sched  *Scheduler
	router *chi.Mux
	log    *slog.Logger
}

func newStatusServer(params *Params, sched *Scheduler, log *slog.Logger) *statusServer {
	s := &statusServer{
		params: params,
		sched:  sched,
		router: chi.NewRouter(),
		log:    log.With("component", "http"),
	}
	s.setupRoutes()
	return s
}

func (s *statusServer) setupRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)

	r.Route("/params", func(r chi.Router) {
		r.Get("/", s.handleSnapshot)
		r.Delete("/", s.handleReset)
		r.Get("/{name}", s.handleGet)
		r.Put("/{name}", s.handleSet)
	})
}

// Run serves on addr until ctx is done.
func (s *statusServer) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("shutdown error", slog.Any("error", err))
		}
	}()

	s.log.Info("status server starting", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return errors.Wrap(err, "status server")
	}
	<-done
	return nil
}

func (s *statusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *statusServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Stats())
}

func (s *statusServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.params.Snapshot())
}

func (s *statusServer) handleReset(w http.ResponseWriter, r *http.Request) {
	s.params.Reset()
	s.log.Info("parameters reset to defaults")
	writeJSON(w, http.StatusOK, s.params.Snapshot())
}

type paramValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func (s *statusServer) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := ParamByName(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, paramValue{Name: p.String(), Value: s.params.Get(p)})
}

func (s *statusServer) handleSet(w http.ResponseWriter, r *http.Request) {
	p, err := ParamByName(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	var body struct {
		Value *float64 `json:"value"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<10)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode body"))
		return
	}
	if body.Value == nil {
		writeError(w, http.StatusBadRequest, errors.New(`body must carry a numeric "value"`))
		return
	}

	s.params.Set(p, *body.Value)
	s.log.Debug("parameter set over http", "param", p.String(), "value", *body.Value)
	writeJSON(w, http.StatusOK, paramValue{Name: p.String(), Value: s.params.Get(p)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
