package router

import (
	"context"
	"time"

	"adapterd/internal/experiment"
	"adapterd/internal/metrics"
	"adapterd/pkg/types"
)

// The methods below delegate to the Router's collaborators so a single value
// can back the HTTP layer's Service interface.

var processStart = time.Now()

func (r *Router) ListAdapters() []types.AdapterDescriptor { return r.reg.All() }

func (r *Router) RegisterAdapter(d types.AdapterDescriptor, force bool) error {
	return r.reg.Register(d, force)
}

func (r *Router) DeregisterAdapter(id string) error { return r.reg.Deregister(id) }

func (r *Router) AdapterMetrics(id string) (metrics.AdapterSnapshot, bool) {
	return r.metrics.Snapshot(id)
}

func (r *Router) TopAdapters(metric string, limit int) ([]metrics.AdapterSnapshot, error) {
	return r.metrics.TopAdapters(metric, limit)
}

func (r *Router) CompareAdapters(ids []string) []metrics.AdapterSnapshot {
	return r.metrics.Compare(ids)
}

func (r *Router) RecordFeedback(adapterID string, rating float64, taskType string) {
	r.metrics.RecordFeedback(adapterID, rating, taskType)
}

func (r *Router) CreateExperiment(cfg types.ExperimentConfig) error { return r.assign.Create(cfg) }

func (r *Router) StartExperiment(id string) error { return r.assign.Start(id) }

func (r *Router) StopExperiment(id string) error { return r.assign.Stop(id) }

func (r *Router) AssignVariant(id string, req types.AssignRequest) (types.AssignResponse, error) {
	return r.assign.Assign(id, req.SubjectID, req.Task, req.Retailer)
}

func (r *Router) RecordImpression(id string, imp types.ImpressionRequest) error {
	return r.assign.RecordImpression(id, imp)
}

func (r *Router) ExperimentResults(id string) (experiment.Results, error) {
	return r.assign.Results(id)
}

func (r *Router) SwapAdapter(ctx context.Context, oldID, newID string, warm bool) error {
	return r.comp.SwapAdapter(ctx, oldID, newID, warm)
}

func (r *Router) Prefetch(ids []string, strategy types.Strategy) error {
	if strategy == "" {
		strategy = types.StrategySequential
	}
	return r.comp.Prefetch(ids, strategy)
}

func (r *Router) CacheStats() types.CacheStats { return r.comp.Stats() }

func (r *Router) InvalidateAdapter(id string) int { return r.comp.Cache().InvalidateAdapter(id) }

func (r *Router) Status() types.StatusResponse {
	now := r.clk.Now()
	return types.StatusResponse{
		Adapters:       r.reg.Count(),
		Cache:          r.comp.Stats(),
		QueueLen:       r.comp.QueueLen(),
		QueueDepth:     r.comp.QueueDepth(),
		Workers:        r.comp.Workers(),
		Engine:         r.comp.EngineKind(),
		UptimeSeconds:  int64(time.Since(processStart).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
}

// Ready reports whether the daemon can serve inference. The registry may be
// legitimately empty on a fresh install, so readiness only requires the
// compositor to be accepting work.
func (r *Router) Ready() bool { return r.comp.QueueLen() < r.comp.QueueDepth() }
