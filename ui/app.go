package ui

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"immunetrial/app"
	domstats "immunetrial/domain/stats"
	"immunetrial/internal"
)

// App serves the analysis dashboard: JSON endpoints over the latest report
// plus a rendered HTML view
type App struct {
	router   *chi.Mux
	analysis *app.AnalysisService
	log      *internal.Logger

	mu     sync.RWMutex
	report *domstats.AnalysisReport
}

// Config holds dashboard configuration
type Config struct {
	Port string
}

// NewApp creates the dashboard over an analysis service and an optional
// initial report
func NewApp(analysis *app.AnalysisService, report *domstats.AnalysisReport, logger *internal.Logger) *App {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	a := &App{
		router:   chi.NewRouter(),
		analysis: analysis,
		log:      logger,
		report:   report,
	}
	a.setupMiddleware()
	a.setupRoutes()
	return a
}

func (a *App) setupMiddleware() {
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Compress(5))
}

func (a *App) setupRoutes() {
	a.router.Get("/healthz", a.handleHealth)
	a.router.Get("/api/manifest", a.handleManifest)
	a.router.Get("/api/strata", a.handleStrata)
	a.router.Get("/api/results/{stratum}", a.handleStratumResults)
	a.router.Get("/api/baseline", a.handleBaseline)
	a.router.Get("/api/frequencies", a.handleFrequencies)
	a.router.Post("/api/run", a.handleRun)
	a.router.Get("/report", a.handleReport)
}

// Router exposes the configured handler for serving and tests
func (a *App) Router() http.Handler {
	return a.router
}

// Start starts the HTTP server
func (a *App) Start(cfg Config) error {
	addr := ":" + cfg.Port
	a.log.Info("starting dashboard on %s", addr)
	return http.ListenAndServe(addr, a.router)
}

func (a *App) currentReport() *domstats.AnalysisReport {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.report
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) handleManifest(w http.ResponseWriter, r *http.Request) {
	report := a.currentReport()
	if report == nil {
		writeError(w, http.StatusNotFound, "no analysis run available")
		return
	}
	writeJSON(w, http.StatusOK, report.Manifest)
}

func (a *App) handleStrata(w http.ResponseWriter, r *http.Request) {
	strata := domstats.AllStrata()
	names := make([]string, 0, len(strata))
	for _, s := range strata {
		names = append(names, string(s))
	}
	writeJSON(w, http.StatusOK, map[string][]string{"strata": names})
}

func (a *App) handleStratumResults(w http.ResponseWriter, r *http.Request) {
	report := a.currentReport()
	if report == nil {
		writeError(w, http.StatusNotFound, "no analysis run available")
		return
	}

	stratum, err := domstats.ParseStratum(chi.URLParam(r, "stratum"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	set, ok := report.StratumResults(stratum)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no results for stratum %s", stratum))
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (a *App) handleBaseline(w http.ResponseWriter, r *http.Request) {
	report := a.currentReport()
	if report == nil {
		writeError(w, http.StatusNotFound, "no analysis run available")
		return
	}
	writeJSON(w, http.StatusOK, report.Baseline)
}

func (a *App) handleFrequencies(w http.ResponseWriter, r *http.Request) {
	report := a.currentReport()
	if report == nil {
		writeError(w, http.StatusNotFound, "no analysis run available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"frequencies": report.Frequencies})
}

// handleRun triggers a fresh analysis over the stored trial and swaps the
// served report on success
func (a *App) handleRun(w http.ResponseWriter, r *http.Request) {
	if a.analysis == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis service not configured")
		return
	}
	report, err := a.analysis.Run(r.Context())
	if err != nil {
		a.log.Error("analysis run failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.mu.Lock()
	a.report = report
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, report.Manifest)
}

func (a *App) handleReport(w http.ResponseWriter, r *http.Request) {
	report := a.currentReport()
	if report == nil {
		writeError(w, http.StatusNotFound, "no analysis run available")
		return
	}

	md := app.BuildMarkdownReport(report)
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.CompletePage})
	body := markdown.ToHTML([]byte(md), p, renderer)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
