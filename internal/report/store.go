package report

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"roadsafety/internal/experiment"
	"roadsafety/internal/pipeline"
)

// Store keeps every run's results in a SQLite file so runs can be compared
// over time.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	created_at  TEXT NOT NULL,
	dataset     TEXT NOT NULL,
	target      TEXT NOT NULL,
	task        TEXT NOT NULL,
	samples     INTEGER NOT NULL,
	fingerprint TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	model       TEXT NOT NULL,
	algorithm   TEXT NOT NULL,
	score       REAL NOT NULL,
	accuracy    REAL,
	f1          REAL,
	rmse        REAL,
	r2          REAL,
	cv_mean     REAL,
	cv_std      REAL,
	training_ms INTEGER NOT NULL,
	PRIMARY KEY (run_id, model)
);
CREATE TABLE IF NOT EXISTS importances (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	model      TEXT NOT NULL,
	feature    TEXT NOT NULL,
	importance REAL NOT NULL,
	method     TEXT NOT NULL,
	PRIMARY KEY (run_id, model, feature)
);`

func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open results store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init results store: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveRun records one run and all of its backends in a single transaction
// and returns the new run id.
func (s *Store) SaveRun(prep *pipeline.Prepared, results []*pipeline.Result) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}

	_, err = tx.Exec(`INSERT INTO runs (id, created_at, dataset, target, task, samples, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339), prep.Config.Dataset.Path, prep.Dataset.Target,
		string(prep.Task()), prep.Dataset.NumSamples(), fmt.Sprintf("%016x", prep.Partition.Fingerprint()))
	if err != nil {
		tx.Rollback()
		return "", err
	}

	resStmt, err := tx.Prepare(`INSERT INTO results
		(run_id, model, algorithm, score, accuracy, f1, rmse, r2, cv_mean, cv_std, training_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return "", err
	}
	defer resStmt.Close()

	impStmt, err := tx.Prepare(`INSERT INTO importances (run_id, model, feature, importance, method)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return "", err
	}
	defer impStmt.Close()

	for _, res := range results {
		row := experiment.NewRow(res)
		if _, err := resStmt.Exec(id, row.Model, row.Algorithm, row.Score, row.Accuracy, row.F1Score,
			row.RMSE, row.R2, row.CVMean, row.CVStd, row.TrainingTimeMs); err != nil {
			tx.Rollback()
			return "", err
		}
		for _, fi := range res.Ranking {
			if _, err := impStmt.Exec(id, res.Name, fi.Feature, fi.Importance, res.ImportanceBy); err != nil {
				tx.Rollback()
				return "", err
			}
		}
	}

	return id, tx.Commit()
}

type StoredResult struct {
	Model     string
	Algorithm string
	Score     float64
}

// Results lists a run's backends, best score first.
func (s *Store) Results(runID string) ([]StoredResult, error) {
	rows, err := s.db.Query(`SELECT model, algorithm, score FROM results
		WHERE run_id = ? ORDER BY score DESC, model ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredResult
	for rows.Next() {
		var r StoredResult
		if err := rows.Scan(&r.Model, &r.Algorithm, &r.Score); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Importance returns the stored normalized importance of one feature.
func (s *Store) Importance(runID, model, feature string) (float64, bool, error) {
	var v float64
	err := s.db.QueryRow(`SELECT importance FROM importances
		WHERE run_id = ? AND model = ? AND feature = ?`, runID, model, feature).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// LatestRun returns the id of the most recently saved run.
func (s *Store) LatestRun() (string, bool, error) {
	var id string
	err := s.db.QueryRow(`SELECT id FROM runs ORDER BY created_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (s *Store) RunCount() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&n)
	return n, err
}

func (s *Store) Close() error {
	return s.db.Close()
}
