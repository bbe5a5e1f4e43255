// Package encounter models time-bounded templated events: when they can
// trigger, how they unfold over turns, and how they resolve. Active
// encounters are projected into ordinary interactions so characters can act
// on them like anything else in the world.
package encounter

import (
	"maps"
	"strconv"

	"github.com/talgya/turnworld/internal/entropy"
	"github.com/talgya/turnworld/internal/world"
)

// TriggerType enumerates trigger conditions.
type TriggerType string

const (
	TriggerProbability TriggerType = "probability" // Roll under Probability
	TriggerLocation    TriggerType = "location"    // Context node equals NodeID
	TriggerAttribute   TriggerType = "attribute"   // Character Attribute >= Min
	TriggerPeriodic    TriggerType = "periodic"    // CurrentTurn divisible by Every
	TriggerProximity   TriggerType = "proximity"   // Context position within Radius of Position
)

// Trigger is one condition that must hold for an encounter to start.
type Trigger struct {
	Type        TriggerType    `json:"type"`
	Probability float64        `json:"probability,omitempty"`
	NodeID      string         `json:"nodeId,omitempty"`
	Attribute   string         `json:"attribute,omitempty"`
	Min         float64        `json:"min,omitempty"`
	Every       int            `json:"every,omitempty"`
	Position    world.HexCoord `json:"position,omitempty"`
	Radius      int            `json:"radius,omitempty"`
}

// PrerequisiteType enumerates prerequisite checks against the context character.
type PrerequisiteType string

const (
	PrerequisiteAttribute PrerequisiteType = "attribute"
	PrerequisiteLevel     PrerequisiteType = "level"
)

// Prerequisite is a threshold the context character must meet.
type Prerequisite struct {
	Type      PrerequisiteType `json:"type"`
	Attribute string           `json:"attribute,omitempty"`
	Min       float64          `json:"min"`
}

// Outcome is one way an encounter can end.
type Outcome struct {
	ID          string        `json:"id"`
	Name        string        `json:"name,omitempty"`
	Description string        `json:"description,omitempty"`
	Probability float64       `json:"probability"`
	Effects     world.Effects `json:"effects"`
}

// Encounter is a template for a time-bounded event.
type Encounter struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Type             string             `json:"type"`
	Description      string             `json:"description,omitempty"`
	Triggers         []Trigger          `json:"triggers,omitempty"`
	Prerequisites    []Prerequisite     `json:"prerequisites,omitempty"`
	TurnBased        world.TurnBased    `json:"turnBased"`
	Outcomes         []Outcome          `json:"outcomes"`
	Modifiers        map[string]float64 `json:"modifiers,omitempty"`
	Cooldown         int                `json:"cooldown,omitempty"` // Turns
	Once             bool               `json:"once,omitempty"`     // Not repeatable
	NodeRestrictions []string           `json:"nodeRestrictions,omitempty"`
	LastTriggered    *int               `json:"lastTriggered,omitempty"`
}

// Context is the situation an encounter is evaluated against.
type Context struct {
	CurrentTurn int
	NodeID      string
	Position    world.HexCoord
	Character   *world.Character
	Rand        entropy.Source

	// Draws, when set, memoizes probability rolls by encounter and trigger so
	// repeated checks at one node share a single roll.
	Draws map[string]float64
}

func (ctx Context) draw(key string) float64 {
	if ctx.Draws == nil {
		return ctx.Rand.Float64()
	}
	if v, ok := ctx.Draws[key]; ok {
		return v
	}
	v := ctx.Rand.Float64()
	ctx.Draws[key] = v
	return v
}

// InteractionPrefix namespaces interactions projected from encounters.
const InteractionPrefix = "encounter:"

// InteractionID returns the id of the interaction projected from an encounter.
func InteractionID(encounterID string) string {
	return InteractionPrefix + encounterID
}

// CanTrigger reports whether the encounter may start in ctx: prerequisites
// hold, every trigger holds, the cooldown has elapsed, and the node is allowed.
func (e *Encounter) CanTrigger(ctx Context) bool {
	if e.LastTriggered != nil {
		if e.Once {
			return false
		}
		if ctx.CurrentTurn-*e.LastTriggered < e.Cooldown {
			return false
		}
	}
	if !e.allowsNode(ctx.NodeID) {
		return false
	}
	if !e.prerequisitesMet(ctx.Character) {
		return false
	}
	for i, t := range e.Triggers {
		if !t.holds(ctx, e.ID+"#"+strconv.Itoa(i)) {
			return false
		}
	}
	return true
}

// MarkTriggered records the turn the encounter last started.
func (e *Encounter) MarkTriggered(turn int) {
	e.LastTriggered = &turn
}

func (e *Encounter) allowsNode(nodeID string) bool {
	if len(e.NodeRestrictions) == 0 {
		return true
	}
	for _, id := range e.NodeRestrictions {
		if id == nodeID {
			return true
		}
	}
	return false
}

func (e *Encounter) prerequisitesMet(c *world.Character) bool {
	if len(e.Prerequisites) == 0 {
		return true
	}
	if c == nil {
		return false
	}
	for _, p := range e.Prerequisites {
		switch p.Type {
		case PrerequisiteLevel:
			if float64(c.Level) < p.Min {
				return false
			}
		case PrerequisiteAttribute:
			if c.Attributes[p.Attribute] < p.Min {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func (t Trigger) holds(ctx Context, key string) bool {
	switch t.Type {
	case TriggerProbability:
		if ctx.Rand == nil {
			return t.Probability >= 1
		}
		return ctx.draw(key) < t.Probability
	case TriggerLocation:
		return ctx.NodeID == t.NodeID
	case TriggerAttribute:
		return ctx.Character != nil && ctx.Character.Attributes[t.Attribute] >= t.Min
	case TriggerPeriodic:
		return t.Every > 0 && ctx.CurrentTurn%t.Every == 0
	case TriggerProximity:
		return world.Distance(ctx.Position, t.Position) <= t.Radius
	default:
		return false
	}
}

// ResolveOutcome draws one outcome weighted by probability, or nil when the
// encounter has no outcomes.
func (e *Encounter) ResolveOutcome(ctx Context) *Outcome {
	if len(e.Outcomes) == 0 {
		return nil
	}
	weights := make([]float64, len(e.Outcomes))
	for i, o := range e.Outcomes {
		weights[i] = o.Probability
	}
	o := e.Outcomes[entropy.Pick(entropy.OrDefault(ctx.Rand), weights)]
	o.Effects = o.Effects.Clone()
	return &o
}

// GenerateInteractions projects the encounter into an interaction with one
// branch per outcome. Prerequisites become requirements; cooldown, the once
// flag, and the turn-based block are copied as is.
func (e *Encounter) GenerateInteractions() []world.Interaction {
	in := world.Interaction{
		ID:       InteractionID(e.ID),
		Name:     e.Name,
		Type:     world.InteractionEncounter,
		Cooldown: e.Cooldown,
		Once:     e.Once,
		Source:   e.ID,
	}
	tb := e.TurnBased
	in.TurnBased = &tb

	for _, p := range e.Prerequisites {
		switch p.Type {
		case PrerequisiteLevel:
			in.Requirements.MinLevel = int(p.Min)
		case PrerequisiteAttribute:
			if in.Requirements.Attributes == nil {
				in.Requirements.Attributes = make(map[string]float64)
			}
			in.Requirements.Attributes[p.Attribute] = p.Min
		}
	}
	in.Modifiers = maps.Clone(e.Modifiers)

	in.Branches = make([]world.Branch, len(e.Outcomes))
	for i, o := range e.Outcomes {
		in.Branches[i] = world.Branch{
			ID:          o.ID,
			Name:        o.Name,
			Probability: o.Probability,
			Effects:     o.Effects.Clone(),
		}
	}
	return []world.Interaction{in}
}

// Clone returns a deep copy of e.
func (e Encounter) Clone() Encounter {
	e.Triggers = append([]Trigger(nil), e.Triggers...)
	e.Prerequisites = append([]Prerequisite(nil), e.Prerequisites...)
	outcomes := make([]Outcome, len(e.Outcomes))
	for i, o := range e.Outcomes {
		o.Effects = o.Effects.Clone()
		outcomes[i] = o
	}
	e.Outcomes = outcomes
	e.Modifiers = maps.Clone(e.Modifiers)
	e.NodeRestrictions = append([]string(nil), e.NodeRestrictions...)
	if e.LastTriggered != nil {
		t := *e.LastTriggered
		e.LastTriggered = &t
	}
	return e
}

// Validate returns the reasons e cannot be registered, if any.
func (e *Encounter) Validate() []string {
	var reasons []string
	if e.ID == "" {
		reasons = append(reasons, "encounter id is required")
	}
	if e.Name == "" {
		reasons = append(reasons, "encounter "+e.ID+": name is required")
	}
	if e.TurnBased.Duration < 1 {
		reasons = append(reasons, "encounter "+e.ID+": turnBased.duration must be at least 1")
	}
	if e.Cooldown < 0 {
		reasons = append(reasons, "encounter "+e.ID+": cooldown must not be negative")
	}
	seen := make(map[string]bool)
	for _, o := range e.Outcomes {
		if o.ID == "" {
			reasons = append(reasons, "encounter "+e.ID+": outcome id is required")
		} else if seen[o.ID] {
			reasons = append(reasons, "encounter "+e.ID+": duplicate outcome "+o.ID)
		}
		seen[o.ID] = true
		if o.Probability < 0 {
			reasons = append(reasons, "encounter "+e.ID+": outcome "+o.ID+" has negative probability")
		}
	}
	return reasons
}
