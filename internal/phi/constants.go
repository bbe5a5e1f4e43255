// Package phi provides the tuning constants shared by behavior, evolution, and
// encounter resolution. Rates derive from powers of the golden ratio so that
// drift, bonuses, and decay stay in proportion to each other.
package phi

import "math"

// Phi is the golden ratio.
const Phi = 1.6180339887498948

var (
	// Agnosis (Φ⁻³): base rate of imperfection. Scales attribute drift.
	Agnosis = math.Pow(Phi, -3) // 0.23606...

	// Psyche (Φ⁻²): threshold of meaningful connection.
	Psyche = math.Pow(Phi, -2) // 0.38197...

	// Matter (Φ⁻¹): the fraction that persists through transformation.
	Matter = math.Pow(Phi, -1) // 0.61803...
)

// Behavior selection.
const (
	// BaselineFrequency centers the resonance curve when a world does not set one.
	BaselineFrequency = 40.0

	// AttributeReference is the "average person" attribute value. An energy
	// proxy equals the baseline when a character's mean attribute sits here.
	AttributeReference = 10.0

	// CoherenceMultiplier converts consciousness coherence into selection weight.
	CoherenceMultiplier = 0.5

	// GoalMatchBonus is added when an interaction names one of a character's active goals.
	GoalMatchBonus = 0.3

	// MemoryInfluenceCap bounds the memory term in both directions.
	MemoryInfluenceCap = 0.5

	// MemoryDecay is the per-turn recency discount applied to remembered outcomes.
	MemoryDecay = 0.9
)

// Resolution.
const (
	DieSides  = 20
	DefaultDC = 10
)

// ResonanceWidth returns the standard deviation of the resonance curve for a
// baseline frequency.
func ResonanceWidth(baseline float64) float64 {
	if baseline <= 0 {
		baseline = BaselineFrequency
	}
	return baseline / 4
}

// Clamp01 clamps v to [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
