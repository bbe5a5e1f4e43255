// Package agents decides what characters do each turn: perceive the
// interactions around them, weigh them, resolve the chosen one, and learn
// from the result.
package agents

import (
	"math"
	"strings"

	"github.com/talgya/turnworld/internal/entropy"
	"github.com/talgya/turnworld/internal/history"
	"github.com/talgya/turnworld/internal/phi"
	"github.com/talgya/turnworld/internal/simerr"
	"github.com/talgya/turnworld/internal/world"
)

// Action is what a character did this turn. Character is the evolved copy;
// ResourceEffects are the pool changes the caller folds into world state.
type Action struct {
	Interaction     world.Interaction  `json:"interaction"`
	BranchID        string             `json:"branch_id"`
	Resolution      Resolution         `json:"resolution"`
	Character       world.Character    `json:"character"`
	NodeID          string             `json:"node_id"`
	ResourceEffects map[string]float64 `json:"resource_effects,omitempty"`
	Event           history.Event      `json:"event"`
}

// BehaviorGenerator runs the perceive → decide → act → learn cycle for one
// character. It reads world state but never writes to it.
type BehaviorGenerator struct {
	Resolver  *InteractionResolver
	Memory    *MemoryService
	Evolution *EvolutionService
	History   *history.Generator

	rand     entropy.Source
	baseline float64
}

// NewBehaviorGenerator wires a generator around shared collaborators.
// Baseline is the resonance center frequency; 0 selects the default.
func NewBehaviorGenerator(src entropy.Source, mem *MemoryService, hist *history.Generator, baseline float64) *BehaviorGenerator {
	src = entropy.OrDefault(src)
	if hist == nil {
		hist = history.NewGenerator(nil)
	}
	if baseline <= 0 {
		baseline = phi.BaselineFrequency
	}
	return &BehaviorGenerator{
		Resolver:  NewInteractionResolver(src),
		Memory:    mem,
		Evolution: NewEvolutionService(baseline),
		History:   hist,
		rand:      src,
		baseline:  baseline,
	}
}

// Generate produces at most one action for c. A nil action with nil error is
// an idle turn.
func (g *BehaviorGenerator) Generate(c *world.Character, s *world.State) (*Action, error) {
	if !c.Valid() {
		id := ""
		if c != nil {
			id = c.ID
		}
		return nil, simerr.InvalidInput("generateBehavior", "invalid character "+id)
	}

	// Perceive.
	options, node, err := g.Perceive(c, s)
	if err != nil {
		return nil, err
	}
	if len(options) == 0 {
		return nil, nil
	}

	// Decide.
	turn := s.Time + 1
	chosen := g.Decide(c, options, turn)

	// Act.
	branch, err := g.Resolver.SelectBranch(c, chosen)
	if err != nil {
		return nil, err
	}
	res := g.Resolver.Resolve(c, chosen, branch)

	// Learn.
	evolved, err := g.Evolution.Evolve(*c, chosen, branch, res.Outcome)
	if err != nil {
		return nil, err
	}
	ev := g.History.Append(history.Event{
		Turn:            turn,
		CharacterID:     c.ID,
		CharacterName:   c.Name,
		InteractionID:   chosen.ID,
		InteractionName: chosen.Name,
		BranchID:        branch.ID,
		Outcome:         res.Outcome,
		Roll:            res.Roll,
		DC:              res.DC,
	})
	if g.Memory != nil {
		g.Memory.RecordEvent(ev)
	}

	act := &Action{
		Interaction: chosen.Clone(),
		BranchID:    branch.ID,
		Resolution:  res,
		Character:   evolved,
		NodeID:      node.ID,
		Event:       ev,
	}
	if res.Outcome.Succeeded() && len(branch.Effects.Resources) > 0 {
		act.ResourceEffects = branch.Effects.Clone().Resources
	}
	return act, nil
}

// Perceive returns the interactions c can attempt on the turn being
// processed (s.Time+1), along with the node c stands on. An interaction
// counts only if at least one of its branches is open to c.
func (g *BehaviorGenerator) Perceive(c *world.Character, s *world.State) ([]*world.Interaction, *world.Node, error) {
	node, ok := s.Node(c.CurrentNodeID)
	if !ok {
		return nil, nil, simerr.NotFound("perceive", "node", c.CurrentNodeID)
	}
	turn := s.Time + 1
	var out []*world.Interaction
	for _, in := range world.Candidates(s, c, node) {
		if !world.Available(in, turn) {
			continue
		}
		if !world.Satisfies(c, in, node, s.Resources) {
			continue
		}
		if len(EligibleBranches(c, in)) == 0 {
			continue
		}
		out = append(out, in)
	}
	return out, node, nil
}

// Decide draws one option weighted by Weigh.
func (g *BehaviorGenerator) Decide(c *world.Character, options []*world.Interaction, turn int) *world.Interaction {
	weights := make([]float64, len(options))
	for i, in := range options {
		weights[i] = g.Weigh(c, in, turn)
	}
	return options[entropy.Pick(g.rand, weights)]
}

// Weigh scores an interaction for c as resonance + coherence bonus + memory
// influence + goal match bonus, clamped at zero.
func (g *BehaviorGenerator) Weigh(c *world.Character, in *world.Interaction, turn int) float64 {
	w := g.Resonance(c, in)
	w += c.Consciousness.Coherence * phi.CoherenceMultiplier
	if g.Memory != nil {
		w += g.Memory.Influence(c.ID, in.ID, turn)
	}
	if matchesGoal(c, in) {
		w += phi.GoalMatchBonus
	}
	if w < 0 {
		return 0
	}
	return w
}

// EnergyProxy derives the energy a character brings to an interaction: the
// baseline scaled by mean attribute, averaged with the character's own
// frequency when it has one.
func (g *BehaviorGenerator) EnergyProxy(c *world.Character) float64 {
	energy := g.baseline
	if len(c.Attributes) > 0 {
		sum := 0.0
		for _, v := range c.Attributes {
			sum += v
		}
		mean := sum / float64(len(c.Attributes))
		energy = g.baseline * mean / phi.AttributeReference
	}
	if f := c.Consciousness.Frequency; f > 0 {
		energy = (energy + f) / 2
	}
	return energy
}

// Resonance is the best Gaussian similarity between c's energy and any
// branch's required energy, in (0, 1].
func (g *BehaviorGenerator) Resonance(c *world.Character, in *world.Interaction) float64 {
	energy := g.EnergyProxy(c)
	sigma := phi.ResonanceWidth(g.baseline)
	best := 0.0
	for _, b := range in.Branches {
		required := b.RequiredEnergy
		if required <= 0 {
			required = g.baseline
		}
		d := energy - required
		r := math.Exp(-(d * d) / (2 * sigma * sigma))
		if r > best {
			best = r
		}
	}
	return best
}

func matchesGoal(c *world.Character, in *world.Interaction) bool {
	name := strings.ToLower(in.Name)
	for _, id := range c.ActiveGoals() {
		if strings.Contains(name, strings.ToLower(id)) {
			return true
		}
	}
	return false
}
