package trigger

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/polyalert/internal/domain"
)

func TestShouldFire(t *testing.T) {
	tests := []struct {
		name    string
		current float64
		target  int
		cond    domain.Condition
		want    bool
	}{
		{"le below", 40, 50, domain.ConditionLE, true},
		{"le equal", 50, 50, domain.ConditionLE, true},
		{"le above", 50.01, 50, domain.ConditionLE, false},
		{"ge above", 60, 50, domain.ConditionGE, true},
		{"ge equal", 50, 50, domain.ConditionGE, true},
		{"ge below", 49.99, 50, domain.ConditionGE, false},
		{"le zero target", 0, 0, domain.ConditionLE, true},
		{"ge full target", 100, 100, domain.ConditionGE, true},
		{"unknown condition", 50, 50, domain.Condition("eq"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldFire(tt.current, tt.target, tt.cond))
		})
	}
}

func TestInferConditionExhaustive(t *testing.T) {
	// current prices on a 0.5 grid so both strict and equal cases are covered
	for target := 0; target <= 100; target++ {
		for step := 0; step <= 200; step++ {
			current := float64(step) / 2
			got := InferCondition(target, current)
			if float64(target) > current {
				assert.Equal(t, domain.ConditionGE, got, "target=%d current=%v", target, current)
			} else {
				assert.Equal(t, domain.ConditionLE, got, "target=%d current=%v", target, current)
			}
		}
	}
}

func TestInferredConditionDoesNotFireImmediatelyUnlessEqual(t *testing.T) {
	assert.False(t, ShouldFire(30, 60, InferCondition(60, 30)))
	assert.False(t, ShouldFire(80, 60, InferCondition(60, 80)))
	assert.True(t, ShouldFire(60, 60, InferCondition(60, 60)))
}

func TestToPercent(t *testing.T) {
	assert.InDelta(t, 45.5, ToPercent(0.455), 1e-9)
	assert.Equal(t, 0.0, ToPercent(0))
}

func TestValidTarget(t *testing.T) {
	for v := -5; v <= 105; v++ {
		assert.Equal(t, v >= 0 && v <= 100, ValidTarget(v), "value %d", v)
	}
}

func TestInferredConditionFiresExactlyAtOrPastTarget(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("inferred direction waits for the target", prop.ForAll(
		func(target int, start, later float64) bool {
			cond := InferCondition(target, start)
			want := later >= float64(target)
			if cond == domain.ConditionLE {
				want = later <= float64(target)
			}
			return ShouldFire(later, target, cond) == want
		},
		gen.IntRange(0, 100),
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
	))

	properties.TestingRun(t)
}
