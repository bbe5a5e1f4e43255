// Package engine owns the world state and advances it one turn at a time.
// Turns only happen when a caller asks for one.
package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/turnworld/internal/agents"
	"github.com/talgya/turnworld/internal/builder"
	"github.com/talgya/turnworld/internal/encounter"
	"github.com/talgya/turnworld/internal/entropy"
	"github.com/talgya/turnworld/internal/history"
	"github.com/talgya/turnworld/internal/simerr"
	"github.com/talgya/turnworld/internal/world"
)

const (
	// DefaultHistoryLimit is how many turn summaries are kept when neither
	// the world rules nor an option say otherwise.
	DefaultHistoryLimit = 100

	// EventLimit caps the in-memory history log.
	EventLimit = 1000
)

// Persistence saves and loads world state. Load returns nil, nil when
// nothing has been saved.
type Persistence interface {
	Save(*world.State) error
	Load() (*world.State, error)
}

// EventStore receives each turn's history events. A Persistence that also
// implements it gets events written alongside state.
type EventStore interface {
	SaveEvents([]history.Event) error
}

// Option configures a Simulation.
type Option func(*Simulation)

// WithPersistence sets the persistence collaborator. If p also implements
// encounter.Store or EventStore those are used too.
func WithPersistence(p Persistence) Option {
	return func(s *Simulation) { s.persist = p }
}

// WithRand sets the randomness source shared by behavior and encounters.
func WithRand(src entropy.Source) Option {
	return func(s *Simulation) { s.rand = src }
}

// WithClock sets the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Simulation) { s.now = now }
}

// WithHistoryLimit caps the number of turn summaries kept. Rules in the
// world config take precedence when set.
func WithHistoryLimit(n int) Option {
	return func(s *Simulation) { s.defaultLimit = n }
}

// Simulation is the turn processor. It is the only writer of its world state
// and is not safe for concurrent use.
type Simulation struct {
	state   *world.State
	config  *builder.WorldConfig
	turns   []TurnSummary
	latest  *TurnSummary
	limit   int
	maxTurn int

	behavior   *agents.BehaviorGenerator
	memory     *agents.MemoryService
	events     *history.Generator
	encounters *encounter.Service

	persist      Persistence
	rand         entropy.Source
	now          func() time.Time
	defaultLimit int
}

// NewSimulation creates an uninitialized simulation.
func NewSimulation(opts ...Option) *Simulation {
	s := &Simulation{defaultLimit: DefaultHistoryLimit}
	for _, opt := range opts {
		opt(s)
	}
	s.rand = entropy.OrDefault(s.rand)
	if s.now == nil {
		s.now = time.Now
	}
	if s.defaultLimit <= 0 {
		s.defaultLimit = DefaultHistoryLimit
	}
	s.encounters = encounter.NewService(s.rand, s.encounterStore())
	s.memory = agents.NewMemoryService()
	s.events = history.NewGenerator(s.now)
	return s
}

func (s *Simulation) encounterStore() encounter.Store {
	if st, ok := s.persist.(encounter.Store); ok {
		return st
	}
	return nil
}

// Initialize replaces any current world with one built from cfg. cfg must
// come from a successful WorldBuilder.Build. On error the previous world is
// left untouched.
func (s *Simulation) Initialize(cfg builder.WorldConfig) (*world.State, error) {
	state := &world.State{
		Time:      0,
		WorldName: cfg.Name,
		Resources: cloneAmounts(cfg.InitialConditions.Resources),
	}
	for _, n := range cfg.Nodes {
		state.Nodes = append(state.Nodes, n.Clone())
	}
	for _, c := range cfg.Characters {
		state.NPCs = append(state.NPCs, c.Clone())
	}
	for _, in := range cfg.Interactions {
		state.Interactions = append(state.Interactions, in.Clone())
	}
	if cfg.InitialConditions.GenerateResources {
		world.SeedResources(state.Nodes, cfg.InitialConditions.Resources, world.DefaultResourceGenConfig(cfg.InitialConditions.Seed))
	}

	if err := s.start("initialize", cfg, state, false); err != nil {
		return nil, err
	}
	slog.Info("simulation initialized",
		"world", cfg.Name,
		"nodes", len(state.Nodes),
		"characters", len(state.NPCs),
		"interactions", len(state.Interactions),
		"events", len(cfg.Events),
	)
	return s.state.Clone(), nil
}

// Restore resumes a saved world. cfg supplies rules and encounter templates;
// saved supplies the state. Encounter progress is reloaded from the
// persistence collaborator when it keeps one.
func (s *Simulation) Restore(cfg builder.WorldConfig, saved *world.State) (*world.State, error) {
	if saved == nil {
		return nil, simerr.Initialization("restore", simerr.InvalidInput("restore", "no saved state"))
	}
	if err := s.start("restore", cfg, saved.Clone(), true); err != nil {
		return nil, err
	}
	slog.Info("simulation restored", "world", saved.WorldName, "turn", saved.Time)
	return s.state.Clone(), nil
}

// start validates cfg and swaps in a fresh set of services around state.
func (s *Simulation) start(op string, cfg builder.WorldConfig, state *world.State, restore bool) error {
	if !cfg.IsValid || !cfg.IsComplete {
		return simerr.Initialization(op, simerr.Validation(op, "world config has not been built"))
	}
	if res := builder.ValidateConfig(cfg); !res.IsValid {
		return simerr.Initialization(op, simerr.Validation(op, res.Errors...))
	}

	encounters := encounter.NewService(s.rand, s.encounterStore())
	for _, e := range cfg.Events {
		if _, err := encounters.CreateEncounter(e); err != nil {
			return simerr.Initialization(op, err)
		}
	}
	if restore {
		encounters.LoadEncounters()
	}

	memory := agents.NewMemoryService()
	events := history.NewGenerator(s.now)

	limit := s.defaultLimit
	if cfg.Rules.HistoryLimit > 0 {
		limit = cfg.Rules.HistoryLimit
	}

	built := cfg.Clone()
	s.config = &built
	s.state = state
	s.turns = nil
	s.latest = nil
	s.limit = limit
	s.maxTurn = cfg.Rules.MaxTurns
	s.memory = memory
	s.events = events
	s.encounters = encounters
	s.behavior = agents.NewBehaviorGenerator(s.rand, memory, events, cfg.Rules.BaselineFrequency)
	return nil
}

// Initialized reports whether a world is loaded.
func (s *Simulation) Initialized() bool {
	return s.state != nil
}

// Finished reports whether the world has reached its rules' turn limit.
func (s *Simulation) Finished() bool {
	return s.state != nil && s.maxTurn > 0 && s.state.Time >= s.maxTurn
}

// ProcessTurn advances the world by exactly one turn.
func (s *Simulation) ProcessTurn() (TurnResult, error) {
	if s.state == nil {
		return TurnResult{}, simerr.NotInitialized("processTurn")
	}

	start := time.Now()
	turn := s.state.Time + 1
	firstEvent := s.events.Len()
	tc := newTurnChanges()

	s.triggerEncounters(turn, tc)

	var actions []CharacterAction
	for i := range s.state.NPCs {
		c := &s.state.NPCs[i]
		act, err := s.behavior.Generate(c, s.state)
		if err != nil {
			slog.Warn("character skipped turn", "character", c.ID, "turn", turn, "error", err)
			continue
		}
		if act == nil {
			continue
		}
		actions = append(actions, s.applyAction(c, act, turn, tc))
	}

	results := s.encounters.ProcessTurn(turn)
	for _, r := range results {
		if r.Type == encounter.ResultCompleted {
			s.completeEncounter(r, turn, tc)
		}
	}

	s.state.Time = turn

	all := s.events.Events()
	turnEvents := append([]history.Event(nil), all[firstEvent:]...)
	s.events.Trim(EventLimit)

	summary := TurnSummary{
		Turn:             turn,
		Timestamp:        s.now().UTC(),
		Events:           turnEvents,
		CharacterActions: actions,
		EncounterResults: results,
		Changes:          tc.changes(),
	}
	summary.Summary = summarize(summary, s.events.Chronicle(turn))
	summary.ProcessingTime = time.Since(start)

	s.record(summary)
	s.persistTurn(summary)

	return TurnResult{Success: true, State: s.state.Clone(), Summary: summary}, nil
}

// applyAction folds one character's action into the world.
func (s *Simulation) applyAction(c *world.Character, act *agents.Action, turn int, tc *turnChanges) CharacterAction {
	if in, ok := s.state.Interaction(act.Interaction.ID); ok {
		t := turn
		in.LastTriggered = &t
	}
	*c = act.Character
	tc.character(c.ID)
	if world.ApplyResources(s.state, act.NodeID, act.ResourceEffects) {
		tc.resources(act.ResourceEffects)
	}
	branchName := act.BranchID
	if br, ok := act.Interaction.Branch(act.BranchID); ok && br.Name != "" {
		branchName = br.Name
	}
	return CharacterAction{
		CharacterID:     c.ID,
		CharacterName:   c.Name,
		NodeID:          act.NodeID,
		InteractionID:   act.Interaction.ID,
		InteractionName: act.Interaction.Name,
		BranchID:        act.BranchID,
		BranchName:      branchName,
		Outcome:         act.Resolution.Outcome,
		Roll:            act.Resolution.Roll,
		DC:              act.Resolution.DC,
		EventID:         act.Event.ID,
	}
}

// triggerEncounters starts at most one encounter per node, checked from the
// point of view of each character standing there. Probability triggers are
// rolled once per node and template, however many characters stand there.
func (s *Simulation) triggerEncounters(turn int, tc *turnChanges) {
	started := make(map[string]bool)
	draws := make(map[string]map[string]float64)
	for i := range s.state.NPCs {
		c := &s.state.NPCs[i]
		node, ok := s.state.Node(c.CurrentNodeID)
		if !ok || started[node.ID] {
			continue
		}
		if draws[node.ID] == nil {
			draws[node.ID] = make(map[string]float64)
		}
		ctx := encounter.Context{
			CurrentTurn: turn,
			NodeID:      node.ID,
			Position:    node.Position,
			Character:   c,
			Draws:       draws[node.ID],
		}
		available := s.encounters.GetAvailableEncounters(node.ID, ctx)
		if len(available) == 0 {
			continue
		}
		inst, err := s.encounters.TriggerEncounter(available[0].ID, ctx)
		if err != nil {
			slog.Warn("encounter failed to start", "encounter", available[0].ID, "node", node.ID, "error", err)
			continue
		}
		started[node.ID] = true
		for _, gi := range inst.GeneratedInteractions {
			s.addInteraction(node, gi)
		}
		tc.encounterStarted()
	}
}

// addInteraction puts an encounter interaction into the world and makes it
// reachable from node.
func (s *Simulation) addInteraction(node *world.Node, in world.Interaction) {
	if existing, ok := s.state.Interaction(in.ID); ok {
		*existing = in
	} else {
		s.state.Interactions = append(s.state.Interactions, in)
	}
	for _, id := range node.Interactions {
		if id == in.ID {
			return
		}
	}
	node.Interactions = append(node.Interactions, in.ID)
}

// completeEncounter removes a finished encounter's interactions, applies its
// outcome, and logs it.
func (s *Simulation) completeEncounter(r encounter.Result, turn int, tc *turnChanges) {
	for _, id := range r.Interactions {
		s.removeInteraction(id)
	}

	ev := history.Event{
		Turn:            turn,
		InteractionID:   encounter.InteractionID(r.EncounterID),
		InteractionName: r.Name,
		Outcome:         history.OutcomeEncounter,
	}
	if o := r.Outcome; o != nil {
		ev.BranchID = o.ID
		if !o.Effects.Empty() && world.ApplyResources(s.state, r.NodeID, o.Effects.Resources) {
			tc.resources(o.Effects.Resources)
		}
	}
	s.events.Append(ev)
}

func (s *Simulation) removeInteraction(id string) {
	kept := s.state.Interactions[:0]
	for _, in := range s.state.Interactions {
		if in.ID != id {
			kept = append(kept, in)
		}
	}
	s.state.Interactions = kept
	for i := range s.state.Nodes {
		s.state.Nodes[i].Interactions = without(s.state.Nodes[i].Interactions, id)
	}
	for i := range s.state.NPCs {
		s.state.NPCs[i].AssignedInteractions = without(s.state.NPCs[i].AssignedInteractions, id)
	}
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

// record appends a summary, dropping the oldest once the limit is reached.
func (s *Simulation) record(summary TurnSummary) {
	s.turns = append(s.turns, summary)
	if len(s.turns) > s.limit {
		s.turns = append([]TurnSummary(nil), s.turns[len(s.turns)-s.limit:]...)
	}
	latest := summary
	s.latest = &latest
}

// persistTurn saves state, events, and encounters. Failures are logged only.
func (s *Simulation) persistTurn(summary TurnSummary) {
	if s.persist == nil {
		return
	}
	if err := s.persist.Save(s.state); err != nil {
		slog.Warn("failed to persist world state", "turn", summary.Turn, "error", err)
	}
	if es, ok := s.persist.(EventStore); ok {
		if err := es.SaveEvents(summary.Events); err != nil {
			slog.Warn("failed to persist events", "turn", summary.Turn, "error", err)
		}
	}
	s.encounters.SaveEncounters()
}

// Reset discards the world, turn history, and encounter state.
func (s *Simulation) Reset() {
	s.state = nil
	s.config = nil
	s.turns = nil
	s.latest = nil
	s.maxTurn = 0
	s.encounters.Clear()
	s.memory.Reset()
	s.events.Clear()
	slog.Debug("simulation reset")
}

// CurrentTurn returns the number of turns processed, or 0 when uninitialized.
func (s *Simulation) CurrentTurn() int {
	if s.state == nil {
		return 0
	}
	return s.state.Time
}

// TurnHistory returns up to n of the most recent summaries, oldest first.
// n <= 0 returns all of them.
func (s *Simulation) TurnHistory(n int) []TurnSummary {
	list := s.turns
	if n > 0 && n < len(list) {
		list = list[len(list)-n:]
	}
	return append([]TurnSummary(nil), list...)
}

// LatestTurnSummary returns the last summary, or nil before the first turn.
func (s *Simulation) LatestTurnSummary() *TurnSummary {
	if s.latest == nil {
		return nil
	}
	latest := *s.latest
	return &latest
}

// State returns a copy of the world state, or nil when uninitialized.
func (s *Simulation) State() *world.State {
	return s.state.Clone()
}

// Config returns the config the world was built from.
func (s *Simulation) Config() (builder.WorldConfig, error) {
	if s.config == nil {
		return builder.WorldConfig{}, simerr.NotInitialized("config")
	}
	return s.config.Clone(), nil
}

// Encounters exposes the encounter service for queries.
func (s *Simulation) Encounters() *encounter.Service {
	return s.encounters
}

// History exposes the event log for queries.
func (s *Simulation) History() *history.Generator {
	return s.events
}

// Memories returns a character's most significant memories.
func (s *Simulation) Memories(characterID string, n int) []agents.Memory {
	return s.memory.Important(characterID, n)
}

func cloneAmounts(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// String describes the simulation for logs.
func (s *Simulation) String() string {
	if s.state == nil {
		return "simulation(uninitialized)"
	}
	return fmt.Sprintf("simulation(%s, turn %d)", s.state.WorldName, s.state.Time)
}
