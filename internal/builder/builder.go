// Package builder assembles a WorldConfig in six gated steps and decides when
// it is complete enough to simulate.
//
// Steps:
//
//	1 world properties   name, description, rules, initial conditions
//	2 nodes              at least one structurally valid node
//	3 interactions       at least one valid interaction, node references resolve
//	4 characters         at least one valid character, assignments resolve
//	5 node population    every character stands on a known node
//	6 final validation   no errors across the whole config
//
// A step can be entered only when every earlier step is complete.
package builder

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/turnworld/internal/encounter"
	"github.com/talgya/turnworld/internal/simerr"
	"github.com/talgya/turnworld/internal/world"
)

// Step numbers.
const (
	StepProperties = iota + 1
	StepNodes
	StepInteractions
	StepCharacters
	StepPopulation
	StepFinal
	StepCount = StepFinal
)

// Completeness weights per category. They sum to 1.
const (
	WeightProperties   = 0.25
	WeightNodes        = 0.25
	WeightCharacters   = 0.20
	WeightInteractions = 0.20
	WeightEvents       = 0.10
)

// Result is the outcome of validating a config.
type Result struct {
	IsValid      bool     `json:"isValid"`
	Errors       []string `json:"errors"`
	Warnings     []string `json:"warnings"`
	Completeness float64  `json:"completeness"`
}

// WorldBuilder accumulates a WorldConfig through its add/remove/set methods.
type WorldBuilder struct {
	cfg WorldConfig
	now func() time.Time
}

// New returns an empty builder. now may be nil.
func New(now func() time.Time) *WorldBuilder {
	if now == nil {
		now = time.Now
	}
	return &WorldBuilder{now: now}
}

// FromConfig returns a builder seeded with a copy of cfg.
func FromConfig(cfg WorldConfig, now func() time.Time) *WorldBuilder {
	b := New(now)
	b.cfg = cfg.Clone()
	b.cfg.IsValid, b.cfg.IsComplete = false, false
	return b
}

// Config returns a copy of the config under construction.
func (b *WorldBuilder) Config() WorldConfig {
	return b.cfg.Clone()
}

// Reset discards everything built so far.
func (b *WorldBuilder) Reset() {
	b.cfg = WorldConfig{}
}

// SetProperties sets the step 1 identity fields.
func (b *WorldBuilder) SetProperties(name, description string, dims Dimensions) {
	b.cfg.Name = name
	b.cfg.Description = description
	b.cfg.Dimensions = dims
	b.touch()
}

func (b *WorldBuilder) SetRules(r Rules) {
	b.cfg.Rules = r
	b.touch()
}

func (b *WorldBuilder) SetInitialConditions(ic InitialConditions) {
	b.cfg.InitialConditions = ic
	b.cfg.InitialConditions.Resources = maps.Clone(ic.Resources)
	b.touch()
}

// AddNode adds a node. Ids must be unique.
func (b *WorldBuilder) AddNode(n world.Node) error {
	if n.ID == "" {
		return simerr.InvalidInput("addNode", "node id is required")
	}
	if b.cfg.node(n.ID) != nil {
		return simerr.InvalidInput("addNode", "node "+n.ID+" already exists")
	}
	b.cfg.Nodes = append(b.cfg.Nodes, n.Clone())
	b.touch()
	return nil
}

// RemoveNode removes a node and every connection to it.
func (b *WorldBuilder) RemoveNode(id string) bool {
	i := slices.IndexFunc(b.cfg.Nodes, func(n world.Node) bool { return n.ID == id })
	if i < 0 {
		return false
	}
	b.cfg.Nodes = slices.Delete(b.cfg.Nodes, i, i+1)
	for k := range b.cfg.Nodes {
		b.cfg.Nodes[k].Connections = slices.DeleteFunc(b.cfg.Nodes[k].Connections, func(c string) bool { return c == id })
	}
	b.touch()
	return true
}

// Connect links two nodes in both directions.
func (b *WorldBuilder) Connect(a, c string) error {
	na, nc := b.cfg.node(a), b.cfg.node(c)
	if na == nil {
		return simerr.NotFound("connect", "node", a)
	}
	if nc == nil {
		return simerr.NotFound("connect", "node", c)
	}
	if !slices.Contains(na.Connections, c) {
		na.Connections = append(na.Connections, c)
	}
	if !slices.Contains(nc.Connections, a) {
		nc.Connections = append(nc.Connections, a)
	}
	b.touch()
	return nil
}

// AddInteraction adds an interaction. Ids must be unique.
func (b *WorldBuilder) AddInteraction(in world.Interaction) error {
	if in.ID == "" {
		return simerr.InvalidInput("addInteraction", "interaction id is required")
	}
	if b.cfg.interaction(in.ID) != nil {
		return simerr.InvalidInput("addInteraction", "interaction "+in.ID+" already exists")
	}
	b.cfg.Interactions = append(b.cfg.Interactions, in.Clone())
	b.touch()
	return nil
}

// RemoveInteraction removes an interaction and every reference to it.
func (b *WorldBuilder) RemoveInteraction(id string) bool {
	i := slices.IndexFunc(b.cfg.Interactions, func(in world.Interaction) bool { return in.ID == id })
	if i < 0 {
		return false
	}
	b.cfg.Interactions = slices.Delete(b.cfg.Interactions, i, i+1)
	drop := func(s string) bool { return s == id }
	for k := range b.cfg.Nodes {
		b.cfg.Nodes[k].Interactions = slices.DeleteFunc(b.cfg.Nodes[k].Interactions, drop)
	}
	for k := range b.cfg.Characters {
		b.cfg.Characters[k].AssignedInteractions = slices.DeleteFunc(b.cfg.Characters[k].AssignedInteractions, drop)
	}
	b.touch()
	return true
}

// AttachInteraction makes an interaction reachable from a node.
func (b *WorldBuilder) AttachInteraction(nodeID, interactionID string) error {
	n := b.cfg.node(nodeID)
	if n == nil {
		return simerr.NotFound("attachInteraction", "node", nodeID)
	}
	if b.cfg.interaction(interactionID) == nil {
		return simerr.NotFound("attachInteraction", "interaction", interactionID)
	}
	if !slices.Contains(n.Interactions, interactionID) {
		n.Interactions = append(n.Interactions, interactionID)
	}
	b.touch()
	return nil
}

// AddCharacter adds a character. Ids must be unique.
func (b *WorldBuilder) AddCharacter(c world.Character) error {
	if c.ID == "" {
		return simerr.InvalidInput("addCharacter", "character id is required")
	}
	if b.cfg.character(c.ID) != nil {
		return simerr.InvalidInput("addCharacter", "character "+c.ID+" already exists")
	}
	b.cfg.Characters = append(b.cfg.Characters, c.Clone())
	b.touch()
	return nil
}

func (b *WorldBuilder) RemoveCharacter(id string) bool {
	i := slices.IndexFunc(b.cfg.Characters, func(c world.Character) bool { return c.ID == id })
	if i < 0 {
		return false
	}
	b.cfg.Characters = slices.Delete(b.cfg.Characters, i, i+1)
	for k := range b.cfg.Groups {
		b.cfg.Groups[k].Members = slices.DeleteFunc(b.cfg.Groups[k].Members, func(m string) bool { return m == id })
	}
	b.touch()
	return true
}

// PlaceCharacter puts a character on a node (step 5).
func (b *WorldBuilder) PlaceCharacter(characterID, nodeID string) error {
	c := b.cfg.character(characterID)
	if c == nil {
		return simerr.NotFound("placeCharacter", "character", characterID)
	}
	if b.cfg.node(nodeID) == nil {
		return simerr.NotFound("placeCharacter", "node", nodeID)
	}
	c.CurrentNodeID = nodeID
	b.touch()
	return nil
}

// AddEvent registers an encounter template with the world.
func (b *WorldBuilder) AddEvent(e encounter.Encounter) error {
	if e.ID == "" {
		return simerr.InvalidInput("addEvent", "event id is required")
	}
	if slices.ContainsFunc(b.cfg.Events, func(x encounter.Encounter) bool { return x.ID == e.ID }) {
		return simerr.InvalidInput("addEvent", "event "+e.ID+" already exists")
	}
	b.cfg.Events = append(b.cfg.Events, e.Clone())
	b.touch()
	return nil
}

func (b *WorldBuilder) RemoveEvent(id string) bool {
	i := slices.IndexFunc(b.cfg.Events, func(e encounter.Encounter) bool { return e.ID == id })
	if i < 0 {
		return false
	}
	b.cfg.Events = slices.Delete(b.cfg.Events, i, i+1)
	b.touch()
	return true
}

func (b *WorldBuilder) AddGroup(g Group) error {
	if g.ID == "" {
		return simerr.InvalidInput("addGroup", "group id is required")
	}
	if slices.ContainsFunc(b.cfg.Groups, func(x Group) bool { return x.ID == g.ID }) {
		return simerr.InvalidInput("addGroup", "group "+g.ID+" already exists")
	}
	g.Members = append([]string(nil), g.Members...)
	b.cfg.Groups = append(b.cfg.Groups, g)
	b.touch()
	return nil
}

func (b *WorldBuilder) AddItem(it Item) error {
	if it.ID == "" {
		return simerr.InvalidInput("addItem", "item id is required")
	}
	if slices.ContainsFunc(b.cfg.Items, func(x Item) bool { return x.ID == it.ID }) {
		return simerr.InvalidInput("addItem", "item "+it.ID+" already exists")
	}
	it.Properties = maps.Clone(it.Properties)
	b.cfg.Items = append(b.cfg.Items, it)
	b.touch()
	return nil
}

// touch invalidates any earlier build stamp.
func (b *WorldBuilder) touch() {
	b.cfg.IsValid = false
	b.cfg.IsComplete = false
}

// StepComplete reports whether step k's completion predicate holds.
func (b *WorldBuilder) StepComplete(k int) bool {
	return len(stepErrors(&b.cfg, k)) == 0
}

// CanProceedToStep reports whether steps 1..k-1 are all complete.
func (b *WorldBuilder) CanProceedToStep(k int) bool {
	if k < StepProperties || k > StepCount {
		return false
	}
	for s := StepProperties; s < k; s++ {
		if !b.StepComplete(s) {
			return false
		}
	}
	return true
}

// CurrentStep returns the first incomplete step, or StepCount+1 when all are done.
func (b *WorldBuilder) CurrentStep() int {
	for s := StepProperties; s <= StepCount; s++ {
		if !b.StepComplete(s) {
			return s
		}
	}
	return StepCount + 1
}

// Validate checks the whole config.
func (b *WorldBuilder) Validate() Result {
	return ValidateConfig(b.cfg)
}

// Build returns the finished config stamped valid and complete, or a
// validation error listing every problem.
func (b *WorldBuilder) Build() (WorldConfig, error) {
	res := b.Validate()
	if !res.IsValid {
		return WorldConfig{}, simerr.Validation("build", res.Errors...)
	}
	out := b.cfg.Clone()
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	out.IsValid = true
	out.IsComplete = true
	out.CreatedAt = b.now().UTC()
	return out, nil
}

// ValidateConfig runs every step predicate over cfg and scores it.
func ValidateConfig(cfg WorldConfig) Result {
	res := Result{Errors: []string{}, Warnings: []string{}}
	for s := StepProperties; s <= StepPopulation; s++ {
		res.Errors = append(res.Errors, stepErrors(&cfg, s)...)
	}
	res.Errors = append(res.Errors, eventErrors(&cfg)...)
	res.Warnings = warnings(&cfg)
	res.IsValid = len(res.Errors) == 0
	res.Completeness = completeness(&cfg)
	return res
}

func stepErrors(cfg *WorldConfig, k int) []string {
	switch k {
	case StepProperties:
		return propertyErrors(cfg)
	case StepNodes:
		return nodeErrors(cfg)
	case StepInteractions:
		return interactionErrors(cfg)
	case StepCharacters:
		return characterErrors(cfg)
	case StepPopulation:
		return populationErrors(cfg)
	case StepFinal:
		var errs []string
		for s := StepProperties; s < StepFinal; s++ {
			errs = append(errs, stepErrors(cfg, s)...)
		}
		return append(errs, eventErrors(cfg)...)
	default:
		return []string{fmt.Sprintf("unknown step %d", k)}
	}
}

func propertyErrors(cfg *WorldConfig) []string {
	var errs []string
	if cfg.Name == "" {
		errs = append(errs, "world name is required")
	}
	if cfg.Description == "" {
		errs = append(errs, "world description is required")
	}
	if cfg.Rules.Description == "" {
		errs = append(errs, "world rules are required")
	}
	if cfg.InitialConditions.empty() {
		errs = append(errs, "initial conditions are required")
	}
	if cfg.Dimensions.Width < 0 || cfg.Dimensions.Height < 0 {
		errs = append(errs, "dimensions must not be negative")
	}
	if cfg.Rules.MaxTurns < 0 || cfg.Rules.HistoryLimit < 0 || cfg.Rules.BaselineFrequency < 0 {
		errs = append(errs, "rules must not hold negative limits")
	}
	return errs
}

func nodeErrors(cfg *WorldConfig) []string {
	if len(cfg.Nodes) == 0 {
		return []string{"at least one node is required"}
	}
	var errs []string
	seen := make(map[string]bool)
	for _, n := range cfg.Nodes {
		if n.ID == "" {
			errs = append(errs, "node id is required")
			continue
		}
		if seen[n.ID] {
			errs = append(errs, "duplicate node "+n.ID)
		}
		seen[n.ID] = true
		if n.Name == "" {
			errs = append(errs, "node "+n.ID+": name is required")
		}
		for _, c := range n.Connections {
			if c == n.ID {
				errs = append(errs, "node "+n.ID+": connects to itself")
			} else if cfg.node(c) == nil {
				errs = append(errs, "node "+n.ID+": unknown connection "+c)
			}
		}
	}
	return errs
}

func interactionErrors(cfg *WorldConfig) []string {
	if len(cfg.Interactions) == 0 {
		return []string{"at least one interaction is required"}
	}
	var errs []string
	seen := make(map[string]bool)
	for _, in := range cfg.Interactions {
		if in.ID == "" {
			errs = append(errs, "interaction id is required")
			continue
		}
		if seen[in.ID] {
			errs = append(errs, "duplicate interaction "+in.ID)
		}
		seen[in.ID] = true
		if in.Name == "" {
			errs = append(errs, "interaction "+in.ID+": name is required")
		}
		if in.Cooldown < 0 {
			errs = append(errs, "interaction "+in.ID+": cooldown must not be negative")
		}
		if len(in.Branches) == 0 {
			errs = append(errs, "interaction "+in.ID+": at least one branch is required")
		}
		branches := make(map[string]bool)
		for _, br := range in.Branches {
			switch {
			case br.ID == "":
				errs = append(errs, "interaction "+in.ID+": branch id is required")
			case branches[br.ID]:
				errs = append(errs, "interaction "+in.ID+": duplicate branch "+br.ID)
			}
			branches[br.ID] = true
			if br.Probability < 0 {
				errs = append(errs, "interaction "+in.ID+": branch "+br.ID+" has negative probability")
			}
			if br.DC < 0 {
				errs = append(errs, "interaction "+in.ID+": branch "+br.ID+" has negative dc")
			}
		}
		if w := in.Requirements.Window; w != nil && w.Until > 0 && w.Until < w.From {
			errs = append(errs, "interaction "+in.ID+": window ends before it starts")
		}
	}
	for _, n := range cfg.Nodes {
		for _, id := range n.Interactions {
			if cfg.interaction(id) == nil {
				errs = append(errs, "node "+n.ID+": unknown interaction "+id)
			}
		}
	}
	return errs
}

func characterErrors(cfg *WorldConfig) []string {
	if len(cfg.Characters) == 0 {
		return []string{"at least one character is required"}
	}
	var errs []string
	seen := make(map[string]bool)
	for i := range cfg.Characters {
		c := &cfg.Characters[i]
		if c.ID == "" {
			errs = append(errs, "character id is required")
			continue
		}
		if seen[c.ID] {
			errs = append(errs, "duplicate character "+c.ID)
		}
		seen[c.ID] = true
		if !c.Valid() {
			errs = append(errs, "character "+c.ID+": needs a name and coherence between 0 and 1")
		}
		for _, id := range c.AssignedInteractions {
			if cfg.interaction(id) == nil {
				errs = append(errs, "character "+c.ID+": unknown interaction "+id)
			}
		}
	}
	return errs
}

func populationErrors(cfg *WorldConfig) []string {
	var errs []string
	for _, c := range cfg.Characters {
		switch {
		case c.CurrentNodeID == "":
			errs = append(errs, "character "+c.ID+" is not placed on a node")
		case cfg.node(c.CurrentNodeID) == nil:
			errs = append(errs, "character "+c.ID+" stands on unknown node "+c.CurrentNodeID)
		}
	}
	for _, g := range cfg.Groups {
		for _, m := range g.Members {
			if cfg.character(m) == nil {
				errs = append(errs, "group "+g.ID+": unknown member "+m)
			}
		}
	}
	return errs
}

func eventErrors(cfg *WorldConfig) []string {
	var errs []string
	seen := make(map[string]bool)
	for i := range cfg.Events {
		e := &cfg.Events[i]
		errs = append(errs, e.Validate()...)
		if e.ID != "" && seen[e.ID] {
			errs = append(errs, "duplicate event "+e.ID)
		}
		seen[e.ID] = true
		for _, id := range e.NodeRestrictions {
			if cfg.node(id) == nil {
				errs = append(errs, "event "+e.ID+": unknown node "+id)
			}
		}
	}
	return errs
}

func warnings(cfg *WorldConfig) []string {
	var out []string
	if len(cfg.Events) == 0 {
		out = append(out, "world has no events")
	}
	for _, n := range cfg.Nodes {
		if len(n.Interactions) == 0 {
			out = append(out, "node "+n.ID+" offers no interactions")
		}
		if len(cfg.Nodes) > 1 && len(n.Connections) == 0 {
			out = append(out, "node "+n.ID+" is not connected")
		}
		for _, c := range n.Connections {
			if other := cfg.node(c); other != nil && !world.Adjacent(n.Position, other.Position) {
				out = append(out, "node "+n.ID+": connection "+c+" is not hex-adjacent")
			}
		}
	}
	for _, c := range cfg.Characters {
		if len(c.ActiveGoals()) == 0 {
			out = append(out, "character "+c.ID+" has no active goals")
		}
	}
	return out
}

// completeness scores how much of the world has been filled in, from 0 to 1.
func completeness(cfg *WorldConfig) float64 {
	props := 0
	for _, ok := range []bool{cfg.Name != "", cfg.Description != "", cfg.Rules.Description != "", !cfg.InitialConditions.empty()} {
		if ok {
			props++
		}
	}
	score := WeightProperties * float64(props) / 4
	if len(cfg.Nodes) > 0 && len(nodeErrors(cfg)) == 0 {
		score += WeightNodes
	}
	if len(cfg.Characters) > 0 && len(characterErrors(cfg)) == 0 {
		score += WeightCharacters
	}
	if len(cfg.Interactions) > 0 && len(interactionErrors(cfg)) == 0 {
		score += WeightInteractions
	}
	if len(cfg.Events) > 0 && len(eventErrors(cfg)) == 0 {
		score += WeightEvents
	}
	return score
}
