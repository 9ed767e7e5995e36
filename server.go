package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"listing-hunter/pkg/api"
	"listing-hunter/pkg/pipeline"
	"listing-hunter/pkg/tickets"
	"log/slog"
	"net/http"
	"strings"
	"time"

	scalargo "github.com/bdpiprava/scalar-go"
)

var errUnknownSource = errors.New("unknown source")

type runner interface {
	Sources() []string
	RunSource(ctx context.Context, name string) (pipeline.Result, error)
	CheckTickets(ctx context.Context) (tickets.Status, error)
}

type runResult struct {
	Status string `json:"status"`
	pipeline.Result
	Error string `json:"error,omitempty"`
}

func runResponse(res pipeline.Result, err error) runResult {
	out := runResult{Status: "ok", Result: res}
	if err != nil {
		out.Status = "failed"
		out.Error = err.Error()
	}
	return out
}

type server struct {
	runner runner
	logger *slog.Logger
}

func newServer(r runner, logger *slog.Logger) http.Handler {
	s := &server{runner: r, logger: logger.With("component", "http")}
	return http.HandlerFunc(s.rootHandler)
}

func (s *server) rootHandler(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/sources/"):
		s.runHandler(w, r)
		return
	case r.URL.Path == "/tickets/checks":
		s.ticketsHandler(w, r)
		return
	case r.URL.Path == "/healthz":
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sources": s.runner.Sources()})
		return
	case r.URL.Path != "/":
		api.WriteNotFound(w, "No such endpoint", r.URL.Path)
		return
	}

	html, err := scalargo.NewV2(
		scalargo.WithSpecDir("./"),
		scalargo.WithMetaDataOpts(
			scalargo.WithTitle("Listing Hunter API"),
		),
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, html)
}

func (s *server) runHandler(w http.ResponseWriter, r *http.Request) {
	// Path expected: /sources/{source}/runs
	parts := strings.Split(strings.TrimSuffix(r.URL.Path, "/"), "/")
	if len(parts) != 4 || parts[3] != "runs" || parts[2] == "" {
		api.WriteBadRequest(w, "Invalid path. Expected /sources/{source}/runs", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		api.WriteMethodNotAllowed(w, http.MethodPost, r.URL.Path)
		return
	}

	name := strings.ToLower(parts[2])
	res, err := s.runner.RunSource(r.Context(), name)
	if err != nil {
		s.logger.Error("run failed", "source", name, "error", err)
		writeRunError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse(res, nil))
}

func writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errUnknownSource):
		api.WriteNotFound(w, err.Error(), r.URL.Path)
	case pipeline.Unreachable(err):
		api.WriteBadGateway(w, err, r.URL.Path)
	case errors.Is(err, context.DeadlineExceeded):
		api.WriteGatewayTimeout(w, "Run exceeded its time budget: "+err.Error(), r.URL.Path)
	default:
		api.WriteInternalServerError(w, err, r.URL.Path)
	}
}

func (s *server) ticketsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.WriteMethodNotAllowed(w, http.MethodPost, r.URL.Path)
		return
	}
	status, err := s.runner.CheckTickets(r.Context())
	if err != nil {
		s.logger.Error("ticket check failed", "error", err)
		api.WriteBadGateway(w, err, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status.String()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
