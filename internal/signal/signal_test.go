package signal

import (
	"math"
	"testing"

	"chasebtc/internal/domain"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name      string
		p         float64
		threshold float64
		want      domain.Signal
	}{
		{"above", 0.9, 0.6, domain.SignalBuy},
		{"equal is inclusive", 0.6, 0.6, domain.SignalBuy},
		{"just below", math.Nextafter(0.6, 0), 0.6, domain.SignalHold},
		{"zero threshold", 0, 0, domain.SignalBuy},
		{"one threshold", 0.99, 1, domain.SignalHold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Generate(tt.p, tt.threshold); got != tt.want {
				t.Errorf("Generate(%v, %v) = %s, want %s", tt.p, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	for _, v := range []float64{0, 0.5, 1} {
		if err := Validate("threshold", v); err != nil {
			t.Errorf("Validate(%v) = %v, want nil", v, err)
		}
	}
	for _, v := range []float64{-0.01, 1.01, math.NaN(), math.Inf(1)} {
		err := Validate("threshold", v)
		if !domain.IsValidation(err) {
			t.Errorf("Validate(%v) = %v, want ValidationError", v, err)
		}
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 0},
		{0.35, 50},
		{0.7, 100},
		{0.95, 100},
		{0.1, 14.29},
	}
	for _, tt := range tests {
		if got := Confidence(tt.p); got != tt.want {
			t.Errorf("Confidence(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}
