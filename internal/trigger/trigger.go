// Package trigger decides when a tracked price has crossed its target.
package trigger

import "github.com/alanyoungcy/polyalert/internal/domain"

// ToPercent converts a [0,1] probability into a percentage.
func ToPercent(price float64) float64 {
	return price * 100
}

// ShouldFire reports whether current (percent) satisfies cond against target.
// Both boundaries are inclusive. Unknown conditions never fire.
func ShouldFire(current float64, target int, cond domain.Condition) bool {
	t := float64(target)
	switch cond {
	case domain.ConditionLE:
		return current <= t
	case domain.ConditionGE:
		return current >= t
	default:
		return false
	}
}

// InferCondition picks the crossing direction from where the price sits now:
// a target above the current price waits for a rise, anything else for a fall.
func InferCondition(target int, current float64) domain.Condition {
	if float64(target) > current {
		return domain.ConditionGE
	}
	return domain.ConditionLE
}

// ValidTarget reports whether target is an acceptable percentage.
func ValidTarget(target int) bool {
	return target >= 0 && target <= 100
}
