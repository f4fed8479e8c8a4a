// Package router is the composition root for inference requests: it
// resolves adapter ids, applies experiment assignment, obtains a composed
// handle and fans results out to metrics and experiment counters.
package router

import (
	"context"

	"github.com/rs/zerolog"

	"adapterd/internal/clock"
	"adapterd/internal/compose"
	"adapterd/internal/experiment"
	"adapterd/internal/metrics"
	"adapterd/internal/registry"
	"adapterd/pkg/types"
)

// noAdapterMatchError signals that registry resolution produced an empty
// adapter stack for the request.
type noAdapterMatchError struct{ task string }

func (e noAdapterMatchError) Error() string { return "no adapters match task: " + e.task }

// IsNoAdapterMatch reports whether err indicates an unroutable request.
func IsNoAdapterMatch(err error) bool {
	_, ok := err.(noAdapterMatchError)
	return ok
}

// Router wires the registry, compositor, experiment assignor, metrics
// collector and clock together. All collaborators are explicit constructor
// dependencies; there are no package-level singletons.
type Router struct {
	reg     *registry.Registry
	comp    *compose.Compositor
	assign  *experiment.Assignor
	metrics *metrics.Collector
	clk     clock.Clock
	log     zerolog.Logger
}

// New constructs a Router. clk may be nil, defaulting to real time.
func New(reg *registry.Registry, comp *compose.Compositor, assign *experiment.Assignor, mc *metrics.Collector, clk clock.Clock, log zerolog.Logger) *Router {
	if clk == nil {
		clk = clock.Real()
	}
	return &Router{reg: reg, comp: comp, assign: assign, metrics: mc, clk: clk, log: log}
}

// Infer serves one inference request end to end.
func (r *Router) Infer(ctx context.Context, req types.InferRequest) (types.InferResponse, error) {
	start := r.clk.Now()
	strategy := req.Strategy
	if strategy == "" {
		strategy = types.StrategySequential
	}

	ids, experimentID, variantID, err := r.resolveStack(req)
	if err != nil {
		return types.InferResponse{}, err
	}

	record := func(used []string, success bool) float64 {
		latency := float64(r.clk.Now().Sub(start).Microseconds()) / 1000
		for _, id := range used {
			r.metrics.RecordRequest(id, latency, success, req.Task)
		}
		if experimentID != "" {
			if err := r.assign.RecordImpression(experimentID, types.ImpressionRequest{
				VariantID: variantID,
				Success:   success,
				LatencyMS: latency,
			}); err != nil {
				r.log.Warn().Err(err).Str("experiment", experimentID).Msg("record impression")
			}
		}
		return latency
	}

	ref, err := r.comp.ComposeSync(ctx, ids, strategy)
	if err != nil {
		// Attribute the failure to the ids the composition actually
		// targeted, so post-swap failures land on the replacement
		// adapter rather than the retired one.
		record(r.comp.EffectiveIDs(ids), false)
		return types.InferResponse{}, err
	}
	defer ref.Release()

	out, err := ref.Handle().Generate(ctx, req.Prompt)
	used := ref.Key().IDs
	latency := record(used, err == nil)
	if err != nil {
		return types.InferResponse{}, err
	}
	return types.InferResponse{
		Output:       out,
		AdaptersUsed: used,
		VariantID:    variantID,
		LatencyMS:    latency,
	}, nil
}

// resolveStack picks the adapter ids for the request: forced ids win, then
// a running experiment's variant, then registry search by scope tags.
func (r *Router) resolveStack(req types.InferRequest) (ids []string, experimentID, variantID string, err error) {
	if len(req.ForceAdapterIDs) > 0 {
		return req.ForceAdapterIDs, "", "", nil
	}

	if expID, ok := r.assign.Match(req.Task, req.RetailerID); ok && req.SubjectID != "" {
		ar, aerr := r.assign.Assign(expID, req.SubjectID, req.Task, req.RetailerID)
		if aerr == nil && !ar.Control {
			variants, verr := r.assign.Variants(expID)
			if verr == nil {
				for _, v := range variants {
					if v.ID == ar.VariantID && len(v.AdapterIDs) > 0 {
						return v.AdapterIDs, expID, ar.VariantID, nil
					}
				}
			}
		}
	}

	// Scope resolution: industry adapters are tagged with the tenant,
	// retailer/brand adapters with their ids, task adapters with the task.
	// General-to-specific order so sequential merges layer correctly.
	if req.TenantID != "" {
		ids = appendFirst(ids, r.reg.Find([]string{req.TenantID}, types.AdapterIndustry))
	}
	if req.RetailerID != "" {
		ids = appendFirst(ids, r.reg.Find([]string{req.RetailerID}, types.AdapterRetailer))
	}
	if req.BrandID != "" {
		ids = appendFirst(ids, r.reg.Find([]string{req.BrandID}, types.AdapterBrand))
	}
	ids = appendFirst(ids, r.reg.Find([]string{req.Task}, types.AdapterTask))
	if len(ids) == 0 {
		return nil, "", "", noAdapterMatchError{task: req.Task}
	}
	return ids, "", "", nil
}

func appendFirst(ids []string, found []types.AdapterDescriptor) []string {
	if len(found) == 0 {
		return ids
	}
	return append(ids, found[0].ID)
}
