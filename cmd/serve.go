package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/venturesignal/internal/model"
	"github.com/sells-group/venturesignal/internal/monitoring"
	"github.com/sells-group/venturesignal/internal/store"
)

const (
	maxBatchSize    = 100
	maxPageLimit    = 200
	maxPage         = 100000
	shutdownTimeout = 30 * time.Second
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard API and pipeline trigger server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		env.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		handler := buildMux(ctx, env.Store, env.Pipeline, env.Registry, cfg.Server.AllowedOrigins)
		return startServer(ctx, handler, resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the --port flag over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler on port until ctx is canceled, then shuts
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
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	case <-ctx.Done():
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "server shutdown")
		}
		return nil
	}
}

// api serves the dashboard reads and the pipeline triggers.
type api struct {
	// ctx scopes trigger runs to the server lifetime, not the request.
	ctx       context.Context
	store     store.Store
	runner    operationRunner
	collector *monitoring.Collector

	// triggerMu serializes pipeline operations.
	triggerMu sync.Mutex
}

// buildMux wires the HTTP routes. A nil gatherer serves the default
// Prometheus registry.
func buildMux(ctx context.Context, st store.Store, runner operationRunner, gatherer prometheus.Gatherer, allowedOrigins []string) http.Handler {
	a := &api{
		ctx:       ctx,
		store:     st,
		runner:    runner,
		collector: monitoring.NewCollector(st),
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", a.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(rt chi.Router) {
		rt.Post("/ingest", a.wrap(a.handleTrigger(model.OperationIngest)))
		rt.Post("/enrich", a.wrap(a.handleTrigger(model.OperationEnrich)))
		rt.Post("/score", a.wrap(a.handleTrigger(model.OperationScore)))
		rt.Post("/rescore", a.wrap(a.handleTrigger(model.OperationRescore)))

		rt.Get("/companies", a.wrap(a.handleListCompanies))
		rt.Get("/companies/{id}", a.wrap(a.handleGetCompany))
		rt.Get("/stats", a.wrap(a.handleStats))
		rt.Get("/runs", a.wrap(a.handleListRuns))
		rt.Get("/runs/summary", a.wrap(a.handleRunSummary))
	})

	return r
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequestError marks a client input error.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

func (a *api) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}

		var bad *badRequestError
		switch {
		case errors.As(err, &bad):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": bad.msg})
		case errors.Is(err, store.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		default:
			zap.L().Error("request failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			zap.L().Warn("health check: database unreachable", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTrigger runs op synchronously and reports the success count.
func (a *api) handleTrigger(op model.Operation) handlerFunc {
	batched := op == model.OperationScore || op == model.OperationRescore
	return func(w http.ResponseWriter, r *http.Request) error {
		// Zero defers to the configured scoring.batch_size.
		batchSize := 0
		if batched {
			var err error
			batchSize, err = intParam(r, "batch_size", 0, 1, maxBatchSize)
			if err != nil {
				return err
			}
		}

		a.triggerMu.Lock()
		defer a.triggerMu.Unlock()

		n, err := runOperation(a.ctx, a.runner, op, batchSize)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, operationResult(op, n))
		return nil
	}
}

func (a *api) handleListCompanies(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	page, err := intParam(r, "page", 1, 1, maxPage)
	if err != nil {
		return err
	}
	limit, err := intParam(r, "limit", store.DefaultCompanyLimit, 1, maxPageLimit)
	if err != nil {
		return err
	}

	filter := store.CompanyFilter{
		Stage:    q.Get("stage"),
		Industry: q.Get("industry"),
		Batch:    q.Get("batch"),
		Search:   q.Get("search"),
		Page:     page,
		Limit:    limit,
	}
	if raw := q.Get("min_score"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return badRequest("min_score must be an integer")
		}
		filter.MinScore = &n
	}

	list, err := a.store.ListCompanies(r.Context(), filter)
	if err != nil {
		return err
	}
	if list == nil {
		list = []model.CompanyView{}
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

func (a *api) handleGetCompany(w http.ResponseWriter, r *http.Request) error {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return badRequest("company id must be an integer")
	}

	detail, err := a.store.GetCompany(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, detail)
	return nil
}

func (a *api) handleStats(w http.ResponseWriter, r *http.Request) error {
	stats, err := a.store.Stats(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, stats)
	return nil
}

func (a *api) handleListRuns(w http.ResponseWriter, r *http.Request) error {
	limit, err := intParam(r, "limit", store.DefaultRunLimit, 1, maxPageLimit)
	if err != nil {
		return err
	}

	op := model.Operation(r.URL.Query().Get("operation"))
	if op != "" {
		if _, ok := resultKeys[op]; !ok {
			return badRequest("unknown operation %q", op)
		}
	}

	runs, err := a.store.ListRuns(r.Context(), store.RunFilter{Operation: op, Limit: limit})
	if err != nil {
		return err
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
	return nil
}

func (a *api) handleRunSummary(w http.ResponseWriter, r *http.Request) error {
	hours, err := intParam(r, "lookback_hours", 24, 0, 0)
	if err != nil {
		return err
	}

	snap, err := a.collector.Collect(r.Context(), hours)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, snap)
	return nil
}

// intParam reads an integer query parameter, returning def when it is
// absent. A max of zero leaves the upper bound open.
func intParam(r *http.Request, name string, def, minVal, maxVal int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("%s must be an integer", name)
	}
	if n < minVal || (maxVal > 0 && n > maxVal) {
		if maxVal > 0 {
			return 0, badRequest("%s must be between %d and %d", name, minVal, maxVal)
		}
		return 0, badRequest("%s must be >= %d", name, minVal)
	}
	return n, nil
}

// validateBatchSize checks a --batch-size flag value. Zero selects the
// configured default.
func validateBatchSize(n int) error {
	if n < 0 || n > maxBatchSize {
		return eris.Errorf("batch size must be between 0 and %d, got %d", maxBatchSize, n)
	}
	return nil
}
