package lgptune

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldPrune(t *testing.T) {
	table := DefaultThresholds()

	tests := []struct {
		env   string
		score float64
		want  bool
	}{
		{"iris_baseline", 0.95, false},
		{"iris_baseline", 0.5, true},
		{"iris_baseline", 0.9, false},
		{"mountain_car_lgp", -100, false},
		{"mountain_car_lgp", -200, true},
		{"cart_pole_lgp", 399, true},
		{"cart_pole_with_q", 500, false},
		{"cart-pole-q", 450, false},
		{"unknown_env", 0, false},
		{"unknown_env", -0.1, true},
		{"iris_baseline", math.NaN(), true},
		{"unknown_env", math.NaN(), true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, table.ShouldPrune(tt.env, tt.score), "%s %v", tt.env, tt.score)
	}
}

func TestThresholdResolution(t *testing.T) {
	table := DefaultThresholds()

	assert.Equal(t, 0.9, table.Threshold("iris_baseline"))
	assert.Equal(t, -150.0, table.Threshold("mountain_car_lgp"))
	assert.Equal(t, 400.0, table.Threshold("cart"))
	assert.Equal(t, 0.0, table.Threshold("irises"))

	custom := ThresholdTable{Default: -1}
	assert.Equal(t, -1.0, custom.Threshold("iris_baseline"))
}
