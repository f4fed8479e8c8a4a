package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"adapterd/internal/experiment"
	"adapterd/internal/metrics"
	"adapterd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Infer(ctx context.Context, req types.InferRequest) (types.InferResponse, error)

	ListAdapters() []types.AdapterDescriptor
	RegisterAdapter(d types.AdapterDescriptor, force bool) error
	DeregisterAdapter(id string) error

	AdapterMetrics(id string) (metrics.AdapterSnapshot, bool)
	TopAdapters(metric string, limit int) ([]metrics.AdapterSnapshot, error)
	CompareAdapters(ids []string) []metrics.AdapterSnapshot

	CreateExperiment(cfg types.ExperimentConfig) error
	StartExperiment(id string) error
	StopExperiment(id string) error
	AssignVariant(id string, req types.AssignRequest) (types.AssignResponse, error)
	RecordImpression(id string, imp types.ImpressionRequest) error
	ExperimentResults(id string) (experiment.Results, error)

	SwapAdapter(ctx context.Context, oldID, newID string, warm bool) error
	Prefetch(ids []string, strategy types.Strategy) error
	CacheStats() types.CacheStats

	Status() types.StatusResponse
	Ready() bool
}

// NewMux builds the chi router for the daemon's full HTTP surface.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}

	r.Post("/infer", handleInfer(svc))

	r.Get("/adapters", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.AdaptersResponse{Adapters: svc.ListAdapters()})
	})
	r.Post("/adapters", func(w http.ResponseWriter, r *http.Request) {
		var d types.AdapterDescriptor
		if !decodeBody(w, r, &d) {
			return
		}
		force := r.URL.Query().Get("force") == "1"
		if err := svc.RegisterAdapter(d, force); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, d)
	})
	r.Delete("/adapters/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeregisterAdapter(chi.URLParam(r, "id")); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/adapters/{id}/metrics", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		snap, ok := svc.AdapterMetrics(id)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "no metrics for adapter: "+id)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})
	r.Get("/adapters/top", func(w http.ResponseWriter, r *http.Request) {
		metric := r.URL.Query().Get("metric")
		limit := 10
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}
		top, err := svc.TopAdapters(metric, limit)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"adapters": top})
	})
	r.Post("/adapters/compare", func(w http.ResponseWriter, r *http.Request) {
		var req types.CompareRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if len(req.AdapterIDs) == 0 {
			writeJSONError(w, http.StatusBadRequest, "adapter_ids is required")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"adapters": svc.CompareAdapters(req.AdapterIDs)})
	})

	r.Post("/experiments", func(w http.ResponseWriter, r *http.Request) {
		var cfg types.ExperimentConfig
		if !decodeBody(w, r, &cfg) {
			return
		}
		if err := svc.CreateExperiment(cfg); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, cfg)
	})
	r.Post("/experiments/{id}/start", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.StartExperiment(chi.URLParam(r, "id")); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/experiments/{id}/stop", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.StopExperiment(chi.URLParam(r, "id")); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/experiments/{id}/assign", func(w http.ResponseWriter, r *http.Request) {
		var req types.AssignRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.SubjectID) == "" {
			writeJSONError(w, http.StatusBadRequest, "subject_id is required")
			return
		}
		resp, err := svc.AssignVariant(chi.URLParam(r, "id"), req)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})
	r.Post("/experiments/{id}/impressions", func(w http.ResponseWriter, r *http.Request) {
		var imp types.ImpressionRequest
		if !decodeBody(w, r, &imp) {
			return
		}
		if err := svc.RecordImpression(chi.URLParam(r, "id"), imp); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/experiments/{id}/results", func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.ExperimentResults(chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	r.Post("/swap", func(w http.ResponseWriter, r *http.Request) {
		var req types.SwapRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.OldID == "" || req.NewID == "" {
			writeJSONError(w, http.StatusBadRequest, "old_id and new_id are required")
			return
		}
		joined, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if err := svc.SwapAdapter(joined, req.OldID, req.NewID, req.Warm); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/prefetch", func(w http.ResponseWriter, r *http.Request) {
		var req types.PrefetchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if len(req.AdapterIDs) == 0 {
			writeJSONError(w, http.StatusBadRequest, "adapter_ids is required")
			return
		}
		if err := svc.Prefetch(req.AdapterIDs, req.Strategy); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	r.Get("/cache/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.CacheStats())
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("draining"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	return r
}

func handleInfer(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.InferRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeJSONError(w, http.StatusBadRequest, "prompt is required")
			return
		}
		lvl := requestLogLevel(r)
		start := time.Now()
		if lvl >= LevelInfo && zlog != nil {
			z := zlog.Info().Str("path", r.URL.Path).Str("task", req.Task)
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				z = z.Str("request_id", rid)
			}
			z.Msg("infer start")
		}

		// Join server base context with request context so shutdown cancels work too.
		joined, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		resp, err := svc.Infer(joined, req)
		if err != nil {
			// Client went away; nothing to report.
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status := writeDomainError(w, err)
			if lvl >= LevelError && zlog != nil {
				z := zlog.Error().Int("status", status).Dur("dur", time.Since(start))
				if rid := middleware.GetReqID(r.Context()); rid != "" {
					z = z.Str("request_id", rid)
				}
				z.Err(err).Msg("infer end")
			}
			return
		}
		writeJSON(w, http.StatusOK, resp)
		if lvl >= LevelInfo && zlog != nil {
			z := zlog.Info().Int("status", http.StatusOK).Dur("dur", time.Since(start)).
				Strs("adapters", resp.AdaptersUsed)
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				z = z.Str("request_id", rid)
			}
			z.Msg("infer end")
		}
	}
}

// decodeBody enforces the content type and body limit, then decodes JSON
// into v. It writes the error response itself and reports success.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
