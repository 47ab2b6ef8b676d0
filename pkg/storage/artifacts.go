// Package storage persists pipeline outputs: the interim combined table, the
// train/test split and the per-feature scaler, model and metrics artifacts.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/synaptica-ai/rigcast/pkg/common/logger"
	"github.com/synaptica-ai/rigcast/pkg/dataset"
	"github.com/synaptica-ai/rigcast/pkg/ml/scaler"
	"github.com/synaptica-ai/rigcast/pkg/training"
)

const (
	InterimFile  = "interim_data.csv"
	FeaturesFile = "all_features.json"
	TrainFile    = "train.csv"
	TestFile     = "test.csv"
)

var ErrNoArtifact = errors.New("artifact not found")

// ArtifactSet locates the artifacts written for one feature of one run.
type ArtifactSet struct {
	Feature     string    `json:"feature"`
	RunID       string    `json:"run_id"`
	ScalerPath  string    `json:"scaler_path"`
	ModelPath   string    `json:"model_path"`
	MetricsPath string    `json:"metrics_path"`
	CreatedAt   time.Time `json:"created_at"`
}

// Bundle is a loaded scaler and model pair ready for inference.
type Bundle struct {
	Set    ArtifactSet
	Scaler scaler.MinMax
	Model  *training.ModelArtifact
}

type ArtifactStore struct {
	interimDir  string
	artifactDir string
}

func NewArtifactStore(interimDir, artifactDir string) (*ArtifactStore, error) {
	for _, dir := range []string{interimDir, artifactDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &ArtifactStore{interimDir: interimDir, artifactDir: artifactDir}, nil
}

func (s *ArtifactStore) InterimDir() string  { return s.interimDir }
func (s *ArtifactStore) ArtifactDir() string { return s.artifactDir }

// WriteInterim stores the combined table with UNIT and TEST as the last
// columns, plus the JSON list of every column name.
func (s *ArtifactStore) WriteInterim(t *dataset.Table) (string, error) {
	view := t.MoveToEnd(dataset.UnitColumn, dataset.TestColumn)
	path := filepath.Join(s.interimDir, InterimFile)
	if err := writeTable(path, view); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(s.interimDir, FeaturesFile), view.Columns); err != nil {
		return "", err
	}
	logger.WithFields(map[string]interface{}{
		"path":    path,
		"rows":    view.Len(),
		"columns": len(view.Columns),
	}).Info("Wrote interim table")
	return path, nil
}

func (s *ArtifactStore) ReadInterim() (*dataset.Table, error) {
	return readTable(filepath.Join(s.interimDir, InterimFile))
}

func (s *ArtifactStore) ReadFeatureList() ([]string, error) {
	var cols []string
	if err := readJSON(filepath.Join(s.interimDir, FeaturesFile), &cols); err != nil {
		return nil, err
	}
	return cols, nil
}

// WriteSplit stores both halves of a split next to the interim table.
func (s *ArtifactStore) WriteSplit(train, test *dataset.Table) (trainPath, testPath string, err error) {
	trainPath = filepath.Join(s.interimDir, TrainFile)
	testPath = filepath.Join(s.interimDir, TestFile)
	if err := writeTable(trainPath, train); err != nil {
		return "", "", err
	}
	if err := writeTable(testPath, test); err != nil {
		return "", "", err
	}
	return trainPath, testPath, nil
}

func (s *ArtifactStore) ReadTrain() (*dataset.Table, error) {
	return readTable(filepath.Join(s.interimDir, TrainFile))
}

func (s *ArtifactStore) ReadTest() (*dataset.Table, error) {
	return readTable(filepath.Join(s.interimDir, TestFile))
}

// SaveResult writes the scaler, model and metrics of one trained feature
// under the run's directory and moves the feature's latest pointer to them.
func (s *ArtifactStore) SaveResult(runID string, res *training.Result) (ArtifactSet, error) {
	dir := s.artifactDir
	if runID != "" {
		dir = filepath.Join(s.artifactDir, runID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ArtifactSet{}, err
	}

	tag := FileTag(res.Feature)
	set := ArtifactSet{
		Feature:     res.Feature,
		RunID:       runID,
		ScalerPath:  filepath.Join(dir, fmt.Sprintf("scaler_%s.json", tag)),
		ModelPath:   filepath.Join(dir, fmt.Sprintf("model_%s.json", tag)),
		MetricsPath: filepath.Join(dir, fmt.Sprintf("metrics_%s.json", tag)),
		CreatedAt:   time.Now().UTC(),
	}
	if err := writeJSON(set.ScalerPath, res.Scaler); err != nil {
		return ArtifactSet{}, fmt.Errorf("writing scaler: %w", err)
	}
	if err := writeJSON(set.ModelPath, res.Model); err != nil {
		return ArtifactSet{}, fmt.Errorf("writing model: %w", err)
	}
	if err := writeJSON(set.MetricsPath, res.History); err != nil {
		return ArtifactSet{}, fmt.Errorf("writing metrics: %w", err)
	}
	if err := writeJSON(s.latestPath(res.Feature), set); err != nil {
		return ArtifactSet{}, fmt.Errorf("writing latest pointer: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"feature": res.Feature,
		"run_id":  runID,
		"model":   set.ModelPath,
	}).Info("Saved training artifacts")
	return set, nil
}

// Latest reads the feature's latest pointer written by SaveResult.
func (s *ArtifactStore) Latest(feature string) (ArtifactSet, error) {
	var set ArtifactSet
	if err := readJSON(s.latestPath(feature), &set); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ArtifactSet{}, fmt.Errorf("%s: %w", feature, ErrNoArtifact)
		}
		return ArtifactSet{}, err
	}
	return set, nil
}

// Load reads the scaler and model an ArtifactSet points at.
func (s *ArtifactStore) Load(set ArtifactSet) (*Bundle, error) {
	b := &Bundle{Set: set, Model: &training.ModelArtifact{}}
	if err := readJSON(set.ScalerPath, &b.Scaler); err != nil {
		return nil, fmt.Errorf("reading scaler: %w", err)
	}
	if err := readJSON(set.ModelPath, b.Model); err != nil {
		return nil, fmt.Errorf("reading model: %w", err)
	}
	if err := b.Model.Validate(); err != nil {
		return nil, err
	}
	if !b.Scaler.Fitted {
		return nil, fmt.Errorf("scaler for %s: %w", set.Feature, scaler.ErrNotFitted)
	}
	return b, nil
}

// LoadHistory reads a metrics file.
func (s *ArtifactStore) LoadHistory(set ArtifactSet) (*training.History, error) {
	h := &training.History{}
	if err := readJSON(set.MetricsPath, h); err != nil {
		return nil, err
	}
	return h, nil
}

func (s *ArtifactStore) latestPath(feature string) string {
	return filepath.Join(s.artifactDir, fmt.Sprintf("%s_latest.json", FileTag(feature)))
}

// FileTag makes a feature name safe to embed in a file name.
func FileTag(feature string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, feature)
}

func writeTable(path string, t *dataset.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := dataset.WriteCSV(f, t); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func readTable(path string) (*dataset.Table, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := dataset.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return t, nil
}

// writeJSON writes through a temp file so readers never see a partial file.
func writeJSON(path string, v interface{}) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v interface{}) error {
	payload, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}
