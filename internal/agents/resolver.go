// Interaction resolution — pick a branch, roll against its DC.
package agents

import (
	"math"

	"github.com/talgya/turnworld/internal/entropy"
	"github.com/talgya/turnworld/internal/history"
	"github.com/talgya/turnworld/internal/phi"
	"github.com/talgya/turnworld/internal/simerr"
	"github.com/talgya/turnworld/internal/world"
)

// Resolution is the dice outcome of one branch attempt.
type Resolution struct {
	Outcome  history.Outcome `json:"outcome"`
	Natural  int             `json:"natural"`  // Raw die face
	Modifier int             `json:"modifier"` // Attribute bonus
	Roll     int             `json:"roll"`     // Natural + Modifier
	DC       int             `json:"dc"`
}

// InteractionResolver selects and resolves branches.
type InteractionResolver struct {
	rand entropy.Source
}

// NewInteractionResolver returns a resolver drawing from src.
func NewInteractionResolver(src entropy.Source) *InteractionResolver {
	return &InteractionResolver{rand: entropy.OrDefault(src)}
}

// EligibleBranches returns the branches whose condition c meets.
func EligibleBranches(c *world.Character, in *world.Interaction) []*world.Branch {
	var out []*world.Branch
	for i := range in.Branches {
		b := &in.Branches[i]
		if b.Condition != nil && c.Attributes[b.Condition.Attribute] < b.Condition.Min {
			continue
		}
		out = append(out, b)
	}
	return out
}

// SelectBranch draws one eligible branch weighted by probability. When every
// eligible branch has zero probability the draw is uniform.
func (r *InteractionResolver) SelectBranch(c *world.Character, in *world.Interaction) (*world.Branch, error) {
	eligible := EligibleBranches(c, in)
	if len(eligible) == 0 {
		return nil, simerr.NotFound("selectBranch", "branch", in.ID)
	}
	weights := make([]float64, len(eligible))
	for i, b := range eligible {
		weights[i] = b.Probability
	}
	return eligible[entropy.Pick(r.rand, weights)], nil
}

// Modifier sums each weighted attribute's d20-style bonus ⌊(attr−10)/2⌋.
func Modifier(c *world.Character, in *world.Interaction) int {
	total := 0.0
	for attr, weight := range in.Modifiers {
		bonus := math.Floor((c.Attributes[attr] - phi.AttributeReference) / 2)
		total += weight * bonus
	}
	return int(math.Round(total))
}

// Resolve rolls a d20 for c against the branch DC.
func (r *InteractionResolver) Resolve(c *world.Character, in *world.Interaction, br *world.Branch) Resolution {
	dc := br.DC
	if dc <= 0 {
		dc = phi.DefaultDC
	}
	natural := entropy.Roll(r.rand, phi.DieSides)
	mod := Modifier(c, in)
	res := Resolution{
		Natural:  natural,
		Modifier: mod,
		Roll:     natural + mod,
		DC:       dc,
	}
	switch {
	case natural == phi.DieSides:
		res.Outcome = history.OutcomeCriticalSuccess
	case natural == 1:
		res.Outcome = history.OutcomeCriticalFailure
	case res.Roll >= dc:
		res.Outcome = history.OutcomeSuccess
	default:
		res.Outcome = history.OutcomeFailure
	}
	return res
}
