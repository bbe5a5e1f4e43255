// Post-outcome trait drift. Succeeding at something sharpens the attributes it
// leans on and steadies coherence; failing erodes both a little.
package agents

import (
	"fmt"
	"math"

	"github.com/talgya/turnworld/internal/history"
	"github.com/talgya/turnworld/internal/phi"
	"github.com/talgya/turnworld/internal/simerr"
	"github.com/talgya/turnworld/internal/world"
)

// EvolutionService applies drift to characters after a resolved interaction.
type EvolutionService struct {
	// DriftRate is the attribute change per success.
	DriftRate float64
	// FrequencyPull is the fraction of the gap to the branch energy closed per resolution.
	FrequencyPull float64
	// Baseline is the energy a branch requires when it does not declare one.
	Baseline float64
}

// NewEvolutionService returns a service with the default drift constants.
func NewEvolutionService(baseline float64) *EvolutionService {
	if baseline <= 0 {
		baseline = phi.BaselineFrequency
	}
	return &EvolutionService{
		DriftRate:     phi.Agnosis * 0.1, // ~0.024
		FrequencyPull: 0.1,
		Baseline:      baseline,
	}
}

// coherenceDelta is the consciousness change per outcome.
func coherenceDelta(o history.Outcome) float64 {
	switch o {
	case history.OutcomeCriticalSuccess:
		return 0.02
	case history.OutcomeSuccess:
		return 0.01
	case history.OutcomeFailure:
		return -0.005
	case history.OutcomeCriticalFailure:
		return -0.01
	default:
		return 0
	}
}

// Evolve returns a drifted copy of c. The input is never modified.
func (e *EvolutionService) Evolve(c world.Character, in *world.Interaction, br *world.Branch, outcome history.Outcome) (world.Character, error) {
	out := c.Clone()
	if out.Attributes == nil {
		out.Attributes = make(map[string]float64)
	}

	drift := 0.0
	switch outcome {
	case history.OutcomeCriticalSuccess:
		drift = e.DriftRate * 2
	case history.OutcomeSuccess:
		drift = e.DriftRate
	case history.OutcomeFailure:
		drift = -e.DriftRate / 2
	case history.OutcomeCriticalFailure:
		drift = -e.DriftRate
	}
	for attr, weight := range in.Modifiers {
		if weight == 0 {
			continue
		}
		out.Attributes[attr] = math.Max(0, out.Attributes[attr]+drift)
	}

	coherence := out.Consciousness.Coherence + coherenceDelta(outcome)
	if outcome.Succeeded() && br != nil {
		for attr, d := range br.Effects.Attributes {
			out.Attributes[attr] = math.Max(0, out.Attributes[attr]+d)
		}
		coherence += br.Effects.Coherence
		out.Consciousness.Frequency += br.Effects.Frequency
	}
	out.Consciousness.Coherence = phi.Clamp01(coherence)

	target := e.Baseline
	if br != nil && br.RequiredEnergy > 0 {
		target = br.RequiredEnergy
	}
	if out.Consciousness.Frequency > 0 {
		out.Consciousness.Frequency += (target - out.Consciousness.Frequency) * e.FrequencyPull
	}

	if err := checkFinite(&out); err != nil {
		return c, simerr.Runtime("evolve", err)
	}
	return out, nil
}

func checkFinite(c *world.Character) error {
	bad := func(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }
	for attr, v := range c.Attributes {
		if bad(v) {
			return fmt.Errorf("attribute %q of %s is not finite", attr, c.ID)
		}
	}
	if bad(c.Consciousness.Coherence) || bad(c.Consciousness.Frequency) {
		return fmt.Errorf("consciousness of %s is not finite", c.ID)
	}
	return nil
}
