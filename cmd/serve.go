package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/statement-flow/internal/blob"
	"github.com/sells-group/statement-flow/internal/document"
	"github.com/sells-group/statement-flow/internal/model"
	"github.com/sells-group/statement-flow/internal/pipeline"
	"github.com/sells-group/statement-flow/internal/response"
	"github.com/sells-group/statement-flow/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the statement processing HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		srv := newServer(ctx, env.Pipeline, env.Store, env.Blobs, cfg.Server.MaxUploadMB)
		defer srv.wait()

		return startServer(ctx, srv.routes(cfg.Server.AllowedOrigins), resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag value over the config value.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler on port until ctx is cancelled, then shuts
// down gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- eris.Wrap(err, "server listen")
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return <-errCh
}

// signatureVerifier checks signed blob URLs.
type signatureVerifier interface {
	Verify(path, expires, sig string) error
}

// server exposes the pipeline and run history over HTTP.
type server struct {
	runner    pipeline.Runner
	store     store.Store
	blobs     blob.Store
	signer    signatureVerifier
	maxUpload int64
	ttl       time.Duration

	// runCtx outlives request contexts so accepted runs finish after the
	// response is written.
	runCtx context.Context
	wg     sync.WaitGroup
}

func newServer(ctx context.Context, runner pipeline.Runner, st store.Store, blobs blob.Store, maxUploadMB int) *server {
	if maxUploadMB <= 0 {
		maxUploadMB = 25
	}
	s := &server{
		runner:    runner,
		store:     st,
		blobs:     blobs,
		maxUpload: int64(maxUploadMB) << 20,
		ttl:       urlTTL(),
		runCtx:    context.WithoutCancel(ctx),
	}
	if v, ok := blobs.(signatureVerifier); ok {
		s.signer = v
	}
	return s
}

// wait blocks until every accepted run has finished.
func (s *server) wait() {
	s.wg.Wait()
}

func (s *server) routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/statements", s.handleSubmit)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Delete("/runs/{id}", s.handleDeleteRun)
	})
	if s.signer != nil {
		r.Get("/blobs/*", s.handleBlob)
	}
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSubmit accepts a statement as a multipart "file" field or as the
// raw request body. With ?wait=true the run completes before responding;
// otherwise a pending run is created and 202 returned.
func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	data, err := s.readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, model.ErrCodePDF, model.StageParsing,
				fmt.Sprintf("statement exceeds %d bytes", s.maxUpload))
			return
		}
		writeError(w, http.StatusBadRequest, model.ErrCodePDF, model.StageParsing, err.Error())
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, model.ErrCodePDF, model.StageParsing, "statement is empty")
		return
	}
	if !document.LooksLikePDF(data) {
		writeError(w, http.StatusBadRequest, model.ErrCodePDF, model.StageParsing, "statement is not a PDF")
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		result := s.runner.Run(r.Context(), data)
		resp := response.FormatResult(result)
		resp.Diagram = nil
		attachDiagramURL(r.Context(), s.blobs, &resp, s.ttl)
		status := http.StatusOK
		if result.Error != nil {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, resp)
		return
	}

	run, err := s.store.CreateRun(r.Context(), model.RunStatusPending)
	if err != nil {
		zap.L().Error("create pending run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, model.ErrCodeUnknown, model.StageParsing, "could not record run")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		result := s.runner.Run(s.runCtx, data, pipeline.WithRunID(run.ID))
		zap.L().Info("statement run finished",
			zap.String("run_id", run.ID),
			zap.Bool("success", result.Success),
			zap.Float64("accuracy", result.Accuracy),
		)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": string(model.RunStatusPending),
		"runId":  run.ID,
	})
}

func (s *server) readUpload(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return io.ReadAll(r.Body)
	}

	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return nil, err
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, eris.Wrap(err, "missing form field \"file\"")
	}
	defer f.Close() //nolint:errcheck
	return io.ReadAll(f)
}

func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{Status: model.RunStatus(q.Get("status")), Limit: 50}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		filter.Offset = v
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, model.ErrCodeUnknown, "", "could not list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	resp, err := storedResponse(r.Context(), s.store, s.blobs, run)
	if err != nil {
		zap.L().Error("load run", zap.String("run_id", run.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, model.ErrCodeUnknown, "", "could not load run")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	if !run.Status.Terminal() {
		writeError(w, http.StatusConflict, model.ErrCodeUnknown, "", "run is still in progress")
		return
	}
	if err := purgeRun(r.Context(), s.store, s.blobs, run); err != nil {
		zap.L().Error("delete run", zap.String("run_id", run.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, model.ErrCodeUnknown, "", "could not delete run")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// lookupRun resolves {id} and writes a 404 or 500 when it cannot.
func (s *server) lookupRun(w http.ResponseWriter, r *http.Request) (*model.Run, bool) {
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		zap.L().Error("get run", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, model.ErrCodeUnknown, "", "could not load run")
		return nil, false
	}
	if run == nil {
		writeError(w, http.StatusNotFound, model.ErrCodeUnknown, "", "run not found")
		return nil, false
	}
	return run, true
}

// handleBlob serves objects behind a signed URL.
func (s *server) handleBlob(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	q := r.URL.Query()
	if err := s.signer.Verify(key, q.Get("expires"), q.Get("sig")); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	data, err := s.blobs.GetObject(r.Context(), key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		zap.L().Error("read blob", zap.String("key", key), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "private, max-age=60")
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code model.ErrorCode, st model.Stage, msg string) {
	writeJSON(w, status, response.FormatError(response.ErrorInfo{
		Code:    code,
		Message: msg,
		Stage:   st,
	}, nil))
}
