// Package experiment implements A/B experiment lifecycle, deterministic
// variant assignment, impression counting and significance evaluation.
package experiment

import (
	"hash/fnv"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"adapterd/internal/clock"
	"adapterd/pkg/types"
)

const (
	// trafficEpsilon tolerates float drift when variant shares are summed.
	trafficEpsilon = 1e-6

	defaultMinSampleSize   = 100
	defaultConfidenceLevel = 0.95
)

type variantCounter struct {
	mu            sync.Mutex
	impressions   uint64
	successes     uint64
	latencySum    float64
	feedbackSum   float64
	feedbackCount uint64
}

func (c *variantCounter) snapshot() CounterSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CounterSnapshot{
		Impressions:   c.impressions,
		Successes:     c.successes,
		LatencySum:    c.latencySum,
		FeedbackSum:   c.feedbackSum,
		FeedbackCount: c.feedbackCount,
	}
}

type experiment struct {
	cfg       types.ExperimentConfig
	status    types.ExperimentStatus
	startedAt time.Time
	stoppedAt time.Time
	counters  map[string]*variantCounter
}

// Assignor owns experiment state: creation, lifecycle, deterministic
// assignment and per-variant counters. All state is write-through to the
// Store so definitions and counters survive restart.
type Assignor struct {
	mu    sync.RWMutex
	exps  map[string]*experiment
	store Store
	clk   clock.Clock
	log   zerolog.Logger
}

// New constructs an Assignor, loading any persisted experiments from store.
func New(store Store, clk clock.Clock, log zerolog.Logger) (*Assignor, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	if clk == nil {
		clk = clock.Real()
	}
	a := &Assignor{
		exps:  make(map[string]*experiment),
		store: store,
		clk:   clk,
		log:   log,
	}
	loaded, err := store.Load()
	if err != nil {
		return nil, err
	}
	for _, se := range loaded {
		e := &experiment{
			cfg:      se.Config,
			status:   se.Status,
			counters: make(map[string]*variantCounter, len(se.Config.Variants)),
		}
		for _, v := range se.Config.Variants {
			vc := &variantCounter{}
			if c, ok := se.Counters[v.ID]; ok {
				vc.impressions = c.Impressions
				vc.successes = c.Successes
				vc.latencySum = c.LatencySum
				vc.feedbackSum = c.FeedbackSum
				vc.feedbackCount = c.FeedbackCount
			}
			e.counters[v.ID] = vc
		}
		a.exps[se.Config.ID] = e
	}
	if len(loaded) > 0 {
		log.Info().Int("experiments", len(loaded)).Msg("restored experiment state")
	}
	return a, nil
}

// Create registers a new draft experiment. Variant traffic shares must sum
// to 1 within epsilon and at least two variants are required.
func (a *Assignor) Create(cfg types.ExperimentConfig) error {
	if cfg.ID == "" {
		return invalidConfigError{reason: "empty id"}
	}
	if len(cfg.Variants) < 2 {
		return invalidConfigError{reason: "need at least 2 variants"}
	}
	sum := 0.0
	seen := make(map[string]bool, len(cfg.Variants))
	for _, v := range cfg.Variants {
		if v.ID == "" {
			return invalidConfigError{reason: "variant with empty id"}
		}
		if seen[v.ID] {
			return invalidConfigError{reason: "duplicate variant id: " + v.ID}
		}
		seen[v.ID] = true
		if v.TrafficPct < 0 || v.TrafficPct > 1 {
			return invalidConfigError{reason: "variant " + v.ID + " traffic share outside [0,1]"}
		}
		sum += v.TrafficPct
	}
	if math.Abs(sum-1.0) > trafficEpsilon {
		return invalidConfigError{reason: "variant traffic shares must sum to 1.0"}
	}
	if cfg.MinSampleSize <= 0 {
		cfg.MinSampleSize = defaultMinSampleSize
	}
	if cfg.ConfidenceLevel <= 0 || cfg.ConfidenceLevel >= 1 {
		cfg.ConfidenceLevel = defaultConfidenceLevel
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.exps[cfg.ID]; ok {
		return invalidConfigError{reason: "experiment already exists: " + cfg.ID}
	}
	e := &experiment{
		cfg:      cfg,
		status:   types.ExperimentDraft,
		counters: make(map[string]*variantCounter, len(cfg.Variants)),
	}
	for _, v := range cfg.Variants {
		e.counters[v.ID] = &variantCounter{}
	}
	if err := a.store.SaveExperiment(cfg, e.status); err != nil {
		return err
	}
	a.exps[cfg.ID] = e
	return nil
}

// Start moves a draft experiment to running.
func (a *Assignor) Start(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.exps[id]
	if !ok {
		return experimentNotFoundError{id: id}
	}
	switch e.status {
	case types.ExperimentRunning:
		return nil
	case types.ExperimentStopped:
		return invalidStateError{id: id, status: string(e.status), op: "start"}
	}
	e.status = types.ExperimentRunning
	e.startedAt = a.clk.Now()
	return a.store.SaveExperiment(e.cfg, e.status)
}

// Stop ends a running experiment. Stopped is terminal and Stop is
// idempotent.
func (a *Assignor) Stop(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.exps[id]
	if !ok {
		return experimentNotFoundError{id: id}
	}
	if e.status == types.ExperimentStopped {
		return nil
	}
	e.status = types.ExperimentStopped
	e.stoppedAt = a.clk.Now()
	return a.store.SaveExperiment(e.cfg, e.status)
}

// Assign deterministically maps a subject into a variant of a running
// experiment. Subjects outside the targeting filter get the control
// sentinel and no impression is ever recorded for them.
func (a *Assignor) Assign(experimentID, subjectID, task, retailer string) (types.AssignResponse, error) {
	a.mu.RLock()
	e, ok := a.exps[experimentID]
	a.mu.RUnlock()
	if !ok {
		return types.AssignResponse{}, experimentNotFoundError{id: experimentID}
	}
	if e.status != types.ExperimentRunning {
		return types.AssignResponse{}, invalidStateError{id: experimentID, status: string(e.status), op: "assign"}
	}
	if !e.cfg.Targeting.Matches(task, retailer) {
		return types.AssignResponse{Control: true}, nil
	}
	u := subjectUnit(experimentID, subjectID)
	cum := 0.0
	for _, v := range e.cfg.Variants {
		cum += v.TrafficPct
		if u < cum {
			return types.AssignResponse{VariantID: v.ID}, nil
		}
	}
	// Float drift can leave u marginally above the last cumulative bound.
	last := e.cfg.Variants[len(e.cfg.Variants)-1]
	return types.AssignResponse{VariantID: last.ID}, nil
}

// subjectUnit hashes (experiment, subject) into [0,1). FNV-1a is stable
// across processes and well distributed for this purpose.
func subjectUnit(experimentID, subjectID string) float64 {
	h := fnv.New64a()
	h.Write([]byte(experimentID))
	h.Write([]byte{':'})
	h.Write([]byte(subjectID))
	return float64(h.Sum64()) / float64(1<<64)
}

// RecordImpression atomically updates a variant's counters and writes the
// new snapshot through to the store.
func (a *Assignor) RecordImpression(experimentID string, imp types.ImpressionRequest) error {
	a.mu.RLock()
	e, ok := a.exps[experimentID]
	a.mu.RUnlock()
	if !ok {
		return experimentNotFoundError{id: experimentID}
	}
	vc, ok := e.counters[imp.VariantID]
	if !ok {
		return variantNotFoundError{id: experimentID, variant: imp.VariantID}
	}
	// The write-through happens under vc.mu so persisted snapshots are
	// ordered: a slow save can not overwrite a newer one. The store is a
	// single-row upsert, so the lock is held only briefly.
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.impressions++
	if imp.Success {
		vc.successes++
	}
	vc.latencySum += imp.LatencyMS
	if imp.FeedbackScore != nil {
		vc.feedbackSum += *imp.FeedbackScore
		vc.feedbackCount++
	}
	snap := CounterSnapshot{
		Impressions:   vc.impressions,
		Successes:     vc.successes,
		LatencySum:    vc.latencySum,
		FeedbackSum:   vc.feedbackSum,
		FeedbackCount: vc.feedbackCount,
	}
	return a.store.SaveCounters(experimentID, imp.VariantID, snap)
}

// Variants returns the variant definitions of an experiment.
func (a *Assignor) Variants(experimentID string) ([]types.Variant, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.exps[experimentID]
	if !ok {
		return nil, experimentNotFoundError{id: experimentID}
	}
	out := make([]types.Variant, len(e.cfg.Variants))
	copy(out, e.cfg.Variants)
	return out, nil
}

// Match returns the id of a running experiment whose targeting admits the
// given task/retailer pair. When several match, the lowest experiment id
// wins so routing stays deterministic.
func (a *Assignor) Match(task, retailer string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var ids []string
	for id, e := range a.exps {
		if e.status == types.ExperimentRunning && e.cfg.Targeting.Matches(task, retailer) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", false
	}
	sort.Strings(ids)
	return ids[0], true
}

// Status returns the lifecycle status of an experiment.
func (a *Assignor) Status(id string) (types.ExperimentStatus, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.exps[id]
	if !ok {
		return "", experimentNotFoundError{id: id}
	}
	return e.status, nil
}
