package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/moodtrack/internal/pipeline"
	"github.com/kalambet/moodtrack/internal/storage"
)

// Deps holds the dependencies of the HTTP handlers.
type Deps struct {
	Store    *storage.Store
	Analyzer *pipeline.Analyzer
	Token    string // bearer token for mutating routes; empty disables auth
}

// NewRouter returns the moodtrack REST API.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/entries", handleListEntries(deps))
	r.Get("/entries/{id}", handleGetEntry(deps))
	r.Get("/analytics/summary", handleSummary(deps))
	r.Get("/analytics/insights", handleInsights(deps))
	r.Get("/ml/predict", handlePredict(deps))
	r.Get("/ml/clusters", handleClusters(deps))

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/entries", handleCreateEntry(deps))
		r.Put("/entries/{id}", handleUpdateEntry(deps))
		r.Delete("/entries/{id}", handleDeleteEntry(deps))
		r.Post("/ml/retrain", handleRetrain(deps))
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleSummary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := parseWindow(w, r)
		if !ok {
			return
		}
		s, err := deps.Analyzer.Summary(r.Context(), f)
		if err != nil {
			storeError(w, "summary", err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handleInsights(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := deps.Analyzer.Insights(r.Context())
		if err != nil {
			storeError(w, "insights", err)
			return
		}
		writeJSON(w, http.StatusOK, in)
	}
}

func handleRetrain(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta, err := deps.Analyzer.Retrain(r.Context())
		if errors.Is(err, pipeline.ErrRetrainTimeout) {
			httpError(w, http.StatusServiceUnavailable, "api_error", "%v", err)
			return
		}
		if err != nil {
			storeError(w, "retrain", err)
			return
		}
		writeJSON(w, http.StatusOK, meta)
	}
}

func handlePredict(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var asOf *time.Time
		if s := r.URL.Query().Get("date"); s != "" {
			d, err := storage.ParseDate(s)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "date must be YYYY-MM-DD")
				return
			}
			asOf = &d
		}
		p, err := deps.Analyzer.Predict(r.Context(), asOf)
		if err != nil {
			storeError(w, "predict", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleClusters(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := deps.Analyzer.Clusters(r.Context())
		if err != nil {
			storeError(w, "clusters", err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}
