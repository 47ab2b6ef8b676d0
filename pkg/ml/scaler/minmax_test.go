package scaler

import (
	"errors"
	"math"
	"testing"
)

func TestFitTransform(t *testing.T) {
	s, err := Fit("TEMP", []float64{2, 4, 6, 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Min != 2 || s.Max != 10 {
		t.Fatalf("unexpected bounds %v..%v", s.Min, s.Max)
	}
	got, err := s.Transform([]float64{2, 6, 10})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	want := []float64{0, 0.5, 1}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	values := []float64{-3.25, 0, 1e-3, 17.5, 99.125}
	s, err := Fit("PRESSURE", values)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	scaled, _ := s.Transform(values)
	back, _ := s.Inverse(scaled)
	for i := range values {
		if math.Abs(back[i]-values[i]) > 1e-9 {
			t.Fatalf("round trip mismatch at %d: %v != %v", i, back[i], values[i])
		}
		if math.Abs(s.InverseValue(s.TransformValue(values[i]))-values[i]) > 1e-9 {
			t.Fatalf("scalar round trip mismatch at %d", i)
		}
	}
}

func TestConstantColumn(t *testing.T) {
	s, err := Fit("FLOW", []float64{5, 5, 5})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	got, err := s.Transform([]float64{5, 5, 7})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	for _, v := range got {
		if v != 0 || math.IsNaN(v) {
			t.Fatalf("expected zeros, got %v", got)
		}
	}
	back, _ := s.Inverse(got)
	if back[0] != 5 {
		t.Fatalf("expected inverse of constant column to be 5, got %v", back[0])
	}
}

func TestErrors(t *testing.T) {
	if _, err := Fit("X", nil); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if _, err := (MinMax{}).Transform([]float64{1}); !errors.Is(err, ErrNotFitted) {
		t.Fatalf("expected ErrNotFitted, got %v", err)
	}
}
