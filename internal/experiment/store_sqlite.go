package experiment

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"adapterd/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
	id     TEXT PRIMARY KEY,
	config TEXT NOT NULL,
	status TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS variant_counters (
	experiment_id  TEXT NOT NULL,
	variant_id     TEXT NOT NULL,
	impressions    INTEGER NOT NULL,
	successes      INTEGER NOT NULL,
	latency_sum    REAL NOT NULL,
	feedback_sum   REAL NOT NULL,
	feedback_count INTEGER NOT NULL,
	PRIMARY KEY (experiment_id, variant_id)
);
`

// SQLiteStore persists experiments in a single SQLite file. Counter updates
// are single-row upserts, so a crash never exposes a partial variant write.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the experiment database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// SQLite allows a single writer; serialize access at the pool level.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveExperiment(cfg types.ExperimentConfig, status types.ExperimentStatus) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO experiments (id, config, status) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET config = excluded.config, status = excluded.status`,
		cfg.ID, string(b), string(status))
	return err
}

func (s *SQLiteStore) SaveCounters(experimentID, variantID string, c CounterSnapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO variant_counters
			(experiment_id, variant_id, impressions, successes, latency_sum, feedback_sum, feedback_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(experiment_id, variant_id) DO UPDATE SET
			impressions = excluded.impressions,
			successes = excluded.successes,
			latency_sum = excluded.latency_sum,
			feedback_sum = excluded.feedback_sum,
			feedback_count = excluded.feedback_count`,
		experimentID, variantID, c.Impressions, c.Successes, c.LatencySum, c.FeedbackSum, c.FeedbackCount)
	return err
}

func (s *SQLiteStore) Load() ([]StoredExperiment, error) {
	rows, err := s.db.Query(`SELECT id, config, status FROM experiments`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byID := make(map[string]*StoredExperiment)
	var out []StoredExperiment
	var order []string
	for rows.Next() {
		var id, cfgJSON, status string
		if err := rows.Scan(&id, &cfgJSON, &status); err != nil {
			return nil, err
		}
		var cfg types.ExperimentConfig
		if err := json.Unmarshal([]byte(cfgJSON), &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal experiment %s: %w", id, err)
		}
		byID[id] = &StoredExperiment{
			Config:   cfg,
			Status:   types.ExperimentStatus(status),
			Counters: make(map[string]CounterSnapshot),
		}
		order = append(order, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	crows, err := s.db.Query(`SELECT experiment_id, variant_id, impressions, successes, latency_sum, feedback_sum, feedback_count FROM variant_counters`)
	if err != nil {
		return nil, err
	}
	defer crows.Close()
	for crows.Next() {
		var expID, varID string
		var c CounterSnapshot
		if err := crows.Scan(&expID, &varID, &c.Impressions, &c.Successes, &c.LatencySum, &c.FeedbackSum, &c.FeedbackCount); err != nil {
			return nil, err
		}
		if e, ok := byID[expID]; ok {
			e.Counters[varID] = c
		}
	}
	if err := crows.Err(); err != nil {
		return nil, err
	}
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
