package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sync/atomic"
)

var (
	filesAccepted  atomic.Int64
	filesRejected  atomic.Int64
	filesSkipped   atomic.Int64
	rowsIngested   atomic.Int64
	runsCompleted  atomic.Int64
	runsFailed     atomic.Int64
	runsInFlight   atomic.Int64
	forecastsTotal atomic.Int64
	lastValLoss    atomic.Uint64
	lastEpochs     atomic.Int64
)

func Init() {
	lastValLoss.Store(math.Float64bits(math.NaN()))
}

// ObserveIngestion records the outcome of the latest directory scan.
func ObserveIngestion(accepted, rejected, skipped, rows int) {
	filesAccepted.Store(int64(accepted))
	filesRejected.Store(int64(rejected))
	filesSkipped.Store(int64(skipped))
	rowsIngested.Store(int64(rows))
}

func RunStarted() {
	runsInFlight.Add(1)
}

func RunFinished(ok bool) {
	runsInFlight.Add(-1)
	if ok {
		runsCompleted.Add(1)
	} else {
		runsFailed.Add(1)
	}
}

// ObserveTraining records the final validation loss of the latest trained feature.
func ObserveTraining(valLoss float64, epochs int) {
	lastValLoss.Store(math.Float64bits(valLoss))
	lastEpochs.Store(int64(epochs))
}

func ForecastServed() {
	forecastsTotal.Add(1)
}

func Handler(w http.ResponseWriter, _ *http.Request) {
	WritePrometheus(w)
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP rigcast_ingestion_files_accepted Raw files ingested in the latest scan.\n")
	fmt.Fprintf(w, "# TYPE rigcast_ingestion_files_accepted gauge\n")
	fmt.Fprintf(w, "rigcast_ingestion_files_accepted %d\n", filesAccepted.Load())

	fmt.Fprintf(w, "# HELP rigcast_ingestion_files_rejected Files in the latest scan without the raw marker or a known extension.\n")
	fmt.Fprintf(w, "# TYPE rigcast_ingestion_files_rejected gauge\n")
	fmt.Fprintf(w, "rigcast_ingestion_files_rejected %d\n", filesRejected.Load())

	fmt.Fprintf(w, "# HELP rigcast_ingestion_files_skipped Accepted files that could not be labeled or parsed in the latest scan.\n")
	fmt.Fprintf(w, "# TYPE rigcast_ingestion_files_skipped gauge\n")
	fmt.Fprintf(w, "rigcast_ingestion_files_skipped %d\n", filesSkipped.Load())

	fmt.Fprintf(w, "# HELP rigcast_ingestion_rows Rows in the latest combined table.\n")
	fmt.Fprintf(w, "# TYPE rigcast_ingestion_rows gauge\n")
	fmt.Fprintf(w, "rigcast_ingestion_rows %d\n", rowsIngested.Load())

	fmt.Fprintf(w, "# HELP rigcast_runs_completed_total Pipeline runs that finished successfully.\n")
	fmt.Fprintf(w, "# TYPE rigcast_runs_completed_total counter\n")
	fmt.Fprintf(w, "rigcast_runs_completed_total %d\n", runsCompleted.Load())

	fmt.Fprintf(w, "# HELP rigcast_runs_failed_total Pipeline runs that failed.\n")
	fmt.Fprintf(w, "# TYPE rigcast_runs_failed_total counter\n")
	fmt.Fprintf(w, "rigcast_runs_failed_total %d\n", runsFailed.Load())

	fmt.Fprintf(w, "# HELP rigcast_runs_in_flight Pipeline runs currently executing.\n")
	fmt.Fprintf(w, "# TYPE rigcast_runs_in_flight gauge\n")
	fmt.Fprintf(w, "rigcast_runs_in_flight %d\n", runsInFlight.Load())

	fmt.Fprintf(w, "# HELP rigcast_training_last_val_loss Final validation loss of the most recently trained feature.\n")
	fmt.Fprintf(w, "# TYPE rigcast_training_last_val_loss gauge\n")
	fmt.Fprintf(w, "rigcast_training_last_val_loss %g\n", math.Float64frombits(lastValLoss.Load()))

	fmt.Fprintf(w, "# HELP rigcast_training_last_epochs Epochs run for the most recently trained feature.\n")
	fmt.Fprintf(w, "# TYPE rigcast_training_last_epochs gauge\n")
	fmt.Fprintf(w, "rigcast_training_last_epochs %d\n", lastEpochs.Load())

	fmt.Fprintf(w, "# HELP rigcast_forecasts_total Forecasts served.\n")
	fmt.Fprintf(w, "# TYPE rigcast_forecasts_total counter\n")
	fmt.Fprintf(w, "rigcast_forecasts_total %d\n", forecastsTotal.Load())
}
