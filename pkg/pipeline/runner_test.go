package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/rigcast/pkg/common/config"
	"github.com/synaptica-ai/rigcast/pkg/dataset"
	"github.com/synaptica-ai/rigcast/pkg/ingestion"
	"github.com/synaptica-ai/rigcast/pkg/storage"
	"github.com/synaptica-ai/rigcast/pkg/training"
)

func writeRawFile(t *testing.T, dir, name string, offset, rows int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("TIME,PRESSURE,FLOW\n")
	for i := 0; i < rows; i++ {
		x := float64(offset + i)
		fmt.Fprintf(&b, "%d,%.4f,%.4f\n", offset+i, 50+10*math.Sin(x/4), 3+0.1*x)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0o644))
}

type fixture struct {
	raw    string
	runner *Runner
	store  *storage.ArtifactStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	raw := filepath.Join(root, "raw")
	require.NoError(t, os.MkdirAll(raw, 0o755))
	writeRawFile(t, raw, "U013-RAW-a.csv", 0, 15)
	writeRawFile(t, raw, "U013-RAW-b.csv", 15, 15)
	writeRawFile(t, raw, "U042-RAW-a.csv", 30, 15)
	require.NoError(t, os.WriteFile(filepath.Join(raw, "notes.txt"), []byte("ignore me"), 0o644))

	store, err := storage.NewArtifactStore(filepath.Join(root, "interim"), filepath.Join(root, "artifacts"))
	require.NoError(t, err)
	ing := ingestion.NewIngestor(ingestion.Options{})
	return &fixture{raw: raw, store: store, runner: NewRunner(ing, store, storage.NewFileRegistry(store))}
}

func smallParams(features ...string) config.RunParams {
	p := config.DefaultRunParams()
	p.Features = features
	p.Lookback = 3
	p.LSTMUnits = 3
	p.Epochs = 2
	p.BatchSize = 8
	p.Patience = 2
	return p
}

func TestRunEndToEnd(t *testing.T) {
	f := newFixture(t)
	report, err := f.runner.Run(context.Background(), Request{
		RunID:  "run-1",
		RawDir: f.raw,
		Params: smallParams("PRESSURE", "FLOW"),
	})
	require.NoError(t, err)

	assert.Len(t, report.Files, 4)
	assert.Equal(t, 45, report.Rows)
	// k = floor(45*0.8) = 36; row 36 sits in both halves
	assert.Equal(t, 37, report.TrainRows)
	assert.Equal(t, 9, report.TestRows)
	require.Len(t, report.Features, 2)

	for _, fr := range report.Features {
		assert.FileExists(t, fr.Artifacts.ScalerPath)
		assert.FileExists(t, fr.Artifacts.ModelPath)
		assert.FileExists(t, fr.Artifacts.MetricsPath)
		assert.Equal(t, "run-1", fr.Artifacts.RunID)
		assert.LessOrEqual(t, fr.History.Len(), 2)
		// 37 rows, lookback 3: 34 windows split 27/7
		assert.Equal(t, 27, fr.TrainSamples)
		assert.Equal(t, 7, fr.ValidationSamples)
	}

	combined, err := f.store.ReadInterim()
	require.NoError(t, err)
	assert.Equal(t, []string{"TIME", "PRESSURE", "FLOW", dataset.UnitColumn, dataset.TestColumn}, combined.Columns)
	assert.Equal(t, "13", combined.Rows[0][dataset.UnitColumn])
	assert.Equal(t, "2", combined.Rows[15][dataset.TestColumn])
	assert.Equal(t, "42", combined.Rows[30][dataset.UnitColumn])
	assert.Equal(t, "1", combined.Rows[30][dataset.TestColumn])

	latest, err := f.store.Latest("PRESSURE")
	require.NoError(t, err)
	assert.Equal(t, "run-1", latest.RunID)
}

func TestRunValidatesBeforeIngesting(t *testing.T) {
	f := newFixture(t)

	_, err := f.runner.Run(context.Background(), Request{RawDir: f.raw, Params: smallParams()})
	stage, ok := StageOf(err)
	require.True(t, ok)
	assert.Equal(t, StageValidate, stage)
	assert.True(t, errors.Is(err, ErrNoFeatures))

	p := smallParams("PRESSURE")
	p.TrainFraction = 1
	_, err = f.runner.Run(context.Background(), Request{RawDir: f.raw, Params: p})
	assert.True(t, errors.Is(err, dataset.ErrInvalidFraction))

	p = smallParams("PRESSURE")
	p.Lookback = 0
	_, err = f.runner.Run(context.Background(), Request{RawDir: f.raw, Params: p})
	assert.True(t, training.IsConfigError(err))

	_, statErr := os.Stat(filepath.Join(f.store.InterimDir(), storage.InterimFile))
	assert.True(t, os.IsNotExist(statErr), "validation failures must not write interim data")
}

func TestRunReportsFailingStage(t *testing.T) {
	f := newFixture(t)

	_, err := f.runner.Run(context.Background(), Request{RawDir: f.raw, Params: smallParams("TORQUE")})
	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageTrain, se.Stage)
	assert.Equal(t, "TORQUE", se.Feature)
	assert.True(t, errors.Is(err, dataset.ErrUnknownColumn))

	empty := t.TempDir()
	report, err := f.runner.Run(context.Background(), Request{RawDir: empty, Params: smallParams("PRESSURE")})
	stage, _ := StageOf(err)
	assert.Equal(t, StageIngest, stage)
	assert.True(t, errors.Is(err, ingestion.ErrNoData))
	assert.Empty(t, report.Features)
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.runner.Run(ctx, Request{RawDir: f.raw, Params: smallParams("PRESSURE")})
	assert.True(t, errors.Is(err, context.Canceled))
}
