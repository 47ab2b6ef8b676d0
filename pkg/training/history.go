package training

import (
	"encoding/json"
	"fmt"
	"math"
)

// EpochMetrics is one row of the metrics history.
type EpochMetrics struct {
	Epoch        int
	Loss         float64
	RMSE         float64
	ValLoss      float64
	ValRMSE      float64
	LearningRate float64
}

func (m EpochMetrics) finite() bool {
	for _, v := range []float64{m.Loss, m.ValLoss} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// History is the ordered per-epoch record of a training run. It serialises
// column-wise, one array per metric, indexed by epoch.
type History struct {
	Feature string
	Epochs  []EpochMetrics
}

func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.Epochs)
}

// Last returns the final epoch's metrics.
func (h *History) Last() (EpochMetrics, bool) {
	if h.Len() == 0 {
		return EpochMetrics{}, false
	}
	return h.Epochs[len(h.Epochs)-1], true
}

// Summary flattens the best and final epochs into a map for run bookkeeping.
// Non-finite values are left out.
func (h *History) Summary(bestEpoch int) map[string]interface{} {
	out := map[string]interface{}{"epochs": h.Len()}
	put := func(key string, v float64) {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[key] = v
		}
	}
	if last, ok := h.Last(); ok {
		put("loss", last.Loss)
		put("val_loss", last.ValLoss)
		put("val_root_mean_squared_error", last.ValRMSE)
		put("lr", last.LearningRate)
	}
	if bestEpoch >= 0 && bestEpoch < h.Len() {
		out["best_epoch"] = bestEpoch
		put("best_val_loss", h.Epochs[bestEpoch].ValLoss)
	}
	return out
}

type historyJSON struct {
	Feature string    `json:"feature"`
	Epoch   []int     `json:"epoch"`
	Loss    []float64 `json:"loss"`
	RMSE    []float64 `json:"root_mean_squared_error"`
	ValLoss []float64 `json:"val_loss"`
	ValRMSE []float64 `json:"val_root_mean_squared_error"`
	Rate    []float64 `json:"lr"`
}

func (h History) MarshalJSON() ([]byte, error) {
	n := len(h.Epochs)
	out := historyJSON{
		Feature: h.Feature,
		Epoch:   make([]int, n),
		Loss:    make([]float64, n),
		RMSE:    make([]float64, n),
		ValLoss: make([]float64, n),
		ValRMSE: make([]float64, n),
		Rate:    make([]float64, n),
	}
	for i, m := range h.Epochs {
		if !m.finite() {
			return nil, fmt.Errorf("epoch %d: %w", m.Epoch, ErrDiverged)
		}
		out.Epoch[i] = m.Epoch
		out.Loss[i] = m.Loss
		out.RMSE[i] = m.RMSE
		out.ValLoss[i] = m.ValLoss
		out.ValRMSE[i] = m.ValRMSE
		out.Rate[i] = m.LearningRate
	}
	return json.Marshal(out)
}

func (h *History) UnmarshalJSON(data []byte) error {
	var in historyJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	n := len(in.Loss)
	for _, col := range [][]float64{in.RMSE, in.ValLoss, in.ValRMSE, in.Rate} {
		if len(col) != n {
			return fmt.Errorf("history columns have different lengths")
		}
	}
	h.Feature = in.Feature
	h.Epochs = make([]EpochMetrics, n)
	for i := 0; i < n; i++ {
		epoch := i
		if i < len(in.Epoch) {
			epoch = in.Epoch[i]
		}
		h.Epochs[i] = EpochMetrics{
			Epoch:        epoch,
			Loss:         in.Loss[i],
			RMSE:         in.RMSE[i],
			ValLoss:      in.ValLoss[i],
			ValRMSE:      in.ValRMSE[i],
			LearningRate: in.Rate[i],
		}
	}
	return nil
}
