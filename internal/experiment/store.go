package experiment

import (
	"sync"

	"adapterd/pkg/types"
)

// CounterSnapshot is the durable form of one variant's cumulative counters.
type CounterSnapshot struct {
	Impressions   uint64
	Successes     uint64
	LatencySum    float64
	FeedbackSum   float64
	FeedbackCount uint64
}

// StoredExperiment is one experiment as loaded from the store.
type StoredExperiment struct {
	Config   types.ExperimentConfig
	Status   types.ExperimentStatus
	Counters map[string]CounterSnapshot
}

// Store persists experiment definitions and cumulative counters across
// restarts. Writes must be atomic per record: a crash leaves either the old
// or the new row visible, never a partial variant set.
type Store interface {
	SaveExperiment(cfg types.ExperimentConfig, status types.ExperimentStatus) error
	SaveCounters(experimentID, variantID string, c CounterSnapshot) error
	Load() ([]StoredExperiment, error)
	Close() error
}

// MemoryStore keeps experiment state in-process for tests and
// persistence-free deployments.
type MemoryStore struct {
	mu   sync.Mutex
	exps map[string]*StoredExperiment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{exps: make(map[string]*StoredExperiment)}
}

func (s *MemoryStore) SaveExperiment(cfg types.ExperimentConfig, status types.ExperimentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.exps[cfg.ID]
	if !ok {
		cur = &StoredExperiment{Counters: make(map[string]CounterSnapshot)}
		s.exps[cfg.ID] = cur
	}
	cur.Config = cfg
	cur.Status = status
	return nil
}

func (s *MemoryStore) SaveCounters(experimentID, variantID string, c CounterSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.exps[experimentID]
	if !ok {
		return experimentNotFoundError{id: experimentID}
	}
	cur.Counters[variantID] = c
	return nil
}

func (s *MemoryStore) Load() ([]StoredExperiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StoredExperiment, 0, len(s.exps))
	for _, e := range s.exps {
		cp := StoredExperiment{Config: e.Config, Status: e.Status, Counters: make(map[string]CounterSnapshot, len(e.Counters))}
		for k, v := range e.Counters {
			cp.Counters[k] = v
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
