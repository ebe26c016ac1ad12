// Package storage keeps simulation runs on disk, one directory per run:
// metadata.json plus q.txt, dq.txt, ddq.txt, u.txt and t.txt matrices.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/store"
)

const (
	metadataFile = "metadata.json"
	qFile        = "q.txt"
	dqFile       = "dq.txt"
	ddqFile      = "ddq.txt"
	uFile        = "u.txt"
	tFile        = "t.txt"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// RunMetadata is written next to the trajectory of every saved run.
type RunMetadata struct {
	ID          string             `json:"id"`
	Kind        string             `json:"kind"`
	Mechanism   string             `json:"mechanism"`
	Timestamp   time.Time          `json:"timestamp"`
	Seed        int64              `json:"seed"`
	Dt          float64            `json:"dt"`
	Duration    float64            `json:"duration"`
	Integrator  string             `json:"integrator"`
	Controller  string             `json:"controller"`
	Coordinates []string           `json:"coordinates"`
	Steps       int                `json:"steps"`
	Errors      int                `json:"errors"`
	Metrics     map[string]float64 `json:"metrics"`
}

// Save writes a run and returns its ID. ID, Timestamp and Steps in meta
// are filled in.
func (s *Store) Save(meta RunMetadata, result *dynamo.Result) (string, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s_%s", meta.Mechanism, now.Format("20060102-150405.000000"))
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta.ID = runID
	meta.Timestamp = now
	meta.Steps = result.StepsTaken
	meta.Errors = len(result.Errors)
	if meta.Metrics == nil {
		meta.Metrics = result.Metrics
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(runDir, metadataFile), data, 0644); err != nil {
		return "", err
	}

	q := make([][]float64, len(result.States))
	dq := make([][]float64, len(result.States))
	for i, x := range result.States {
		qi, dqi := x.Split()
		q[i], dq[i] = qi, dqi
	}
	tables := map[string][][]float64{
		qFile:  q,
		dqFile: dq,
		tFile:  store.Column(result.Times),
	}
	if len(result.Accelerations) > 0 {
		tables[ddqFile] = toRows(result.Accelerations)
	}
	if len(result.Controls) > 0 && len(result.Controls[0]) > 0 {
		u := make([][]float64, len(result.Controls))
		for i, c := range result.Controls {
			u[i] = c
		}
		tables[uFile] = u
	}
	for name, rows := range tables {
		if err := store.SaveMatrix(filepath.Join(runDir, name), rows); err != nil {
			return "", errors.Wrapf(err, "run %s", runID)
		}
	}
	return runID, nil
}

func toRows(states []dynamo.State) [][]float64 {
	rows := make([][]float64, len(states))
	for i, s := range states {
		rows[i] = s
	}
	return rows
}

// List returns the metadata of every run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(err, "run %s metadata", runID)
	}
	return &meta, nil
}

// LoadTrajectory rebuilds the stacked states, accelerations, controls and
// times of a saved run.
func (s *Store) LoadTrajectory(runID string) (*dynamo.Result, error) {
	dir := filepath.Join(s.baseDir, runID)
	q, err := store.LoadMatrix(filepath.Join(dir, qFile))
	if err != nil {
		return nil, err
	}
	dq, err := store.LoadMatrix(filepath.Join(dir, dqFile))
	if err != nil {
		return nil, err
	}
	ts, err := store.LoadMatrix(filepath.Join(dir, tFile))
	if err != nil {
		return nil, err
	}
	if len(q) != len(dq) || len(q) != len(ts) {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "run %s: %d q rows, %d dq rows, %d times", runID, len(q), len(dq), len(ts))
	}

	res := &dynamo.Result{Metrics: map[string]float64{}}
	for i := range q {
		res.States = append(res.States, dynamo.Stack(q[i], dq[i]))
		res.Times = append(res.Times, ts[i][0])
	}
	if ddq, err := store.LoadMatrix(filepath.Join(dir, ddqFile)); err == nil {
		for _, row := range ddq {
			res.Accelerations = append(res.Accelerations, row)
		}
	}
	if u, err := store.LoadMatrix(filepath.Join(dir, uFile)); err == nil {
		for _, row := range u {
			res.Controls = append(res.Controls, row)
		}
	}
	if len(res.States) > 0 {
		res.StepsTaken = len(res.States) - 1
	}
	if meta, err := s.Load(runID); err == nil && meta.Metrics != nil {
		res.Metrics = meta.Metrics
	}
	return res, nil
}

// Latest returns the ID of the most recent run.
func (s *Store) Latest() (string, error) {
	runs, err := s.List()
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", errors.Errorf("storage: no runs in %s", s.baseDir)
	}
	return runs[len(runs)-1].ID, nil
}
