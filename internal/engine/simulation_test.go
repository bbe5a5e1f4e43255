package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/talgya/turnworld/internal/builder"
	"github.com/talgya/turnworld/internal/encounter"
	"github.com/talgya/turnworld/internal/entropy"
	"github.com/talgya/turnworld/internal/history"
	"github.com/talgya/turnworld/internal/simerr"
	"github.com/talgya/turnworld/internal/world"
)

func clock() time.Time { return time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC) }

type memPersistence struct {
	saved  *world.State
	saves  int
	events []history.Event
	snap   *encounter.Snapshot
	err    error
}

func (m *memPersistence) Save(s *world.State) error {
	m.saves++
	if m.err != nil {
		return m.err
	}
	m.saved = s.Clone()
	return nil
}

func (m *memPersistence) Load() (*world.State, error) {
	return m.saved.Clone(), m.err
}

func (m *memPersistence) SaveEvents(evs []history.Event) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, evs...)
	return nil
}

func (m *memPersistence) SaveEncounters(snap encounter.Snapshot) error {
	if m.err != nil {
		return m.err
	}
	m.snap = &snap
	return nil
}

func (m *memPersistence) LoadEncounters() (*encounter.Snapshot, error) {
	return m.snap, m.err
}

// crossroads builds a one-node world with a single trader.
func crossroads(t *testing.T, edit func(b *builder.WorldBuilder)) builder.WorldConfig {
	t.Helper()
	b := builder.New(clock)
	b.SetProperties("Crossroads", "A trading village", builder.Dimensions{Width: 2, Height: 2})
	b.SetRules(builder.Rules{Description: "Barter until dusk"})
	b.SetInitialConditions(builder.InitialConditions{Description: "Market day", Resources: map[string]float64{"gold": 10}})
	must(t, b.AddNode(world.Node{ID: "market", Name: "Market", Type: "settlement"}))
	must(t, b.AddInteraction(world.Interaction{
		ID:           "barter",
		Name:         "Barter for wealth",
		Type:         world.InteractionEconomic,
		Requirements: world.Requirements{Attributes: map[string]float64{"charisma": 10}},
		Branches: []world.Branch{{
			ID: "haggle", Probability: 1, DC: 10,
			Effects: world.Effects{Resources: map[string]float64{"gold": 5}},
		}},
		Modifiers: map[string]float64{"charisma": 1},
	}))
	must(t, b.AttachInteraction("market", "barter"))
	must(t, b.AddCharacter(world.Character{
		ID: "aria", Name: "Aria", Level: 1,
		Attributes:    map[string]float64{"charisma": 14},
		Consciousness: world.Consciousness{Coherence: 0.5},
		Goals:         []world.Goal{{ID: "wealth", Active: true}},
		CurrentNodeID: "market",
	}))
	if edit != nil {
		edit(b)
	}
	cfg, err := b.Build()
	if err != nil {
		t.Fatalf("build world: %v (%v)", err, simerr.ReasonsOf(err))
	}
	return cfg
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func newSim(opts ...Option) *Simulation {
	return NewSimulation(append([]Option{WithRand(entropy.NewSeeded(7)), WithClock(clock)}, opts...)...)
}

func TestSingleTurn(t *testing.T) {
	sim := newSim()
	if _, err := sim.Initialize(crossroads(t, nil)); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	res, err := sim.ProcessTurn()
	if err != nil {
		t.Fatalf("process turn: %v", err)
	}
	if !res.Success || res.State.Time != 1 {
		t.Fatalf("result = success %v, time %d", res.Success, res.State.Time)
	}
	if n := len(sim.History().ForCharacter("aria")); n != 1 {
		t.Fatalf("aria has %d events, want 1", n)
	}
	if len(res.Summary.CharacterActions) != 1 || res.Summary.CharacterActions[0].InteractionID != "barter" {
		t.Fatalf("actions = %+v", res.Summary.CharacterActions)
	}
	if len(res.Summary.Events) != 1 || res.Summary.Summary == "" {
		t.Fatalf("summary = %+v", res.Summary)
	}
	in, _ := res.State.Interaction("barter")
	if in.LastTriggered == nil || *in.LastTriggered != 1 {
		t.Fatalf("last triggered = %v", in.LastTriggered)
	}

	res.State.Time = 99
	if sim.CurrentTurn() != 1 {
		t.Fatal("returned state aliases the simulation")
	}
}

func TestTurnsAreContiguous(t *testing.T) {
	sim := newSim()
	if _, err := sim.Initialize(crossroads(t, nil)); err != nil {
		t.Fatal(err)
	}
	for n := 1; n <= 7; n++ {
		if _, err := sim.ProcessTurn(); err != nil {
			t.Fatalf("turn %d: %v", n, err)
		}
		if sim.CurrentTurn() != n {
			t.Fatalf("current turn = %d, want %d", sim.CurrentTurn(), n)
		}
	}
	for i, ts := range sim.TurnHistory(0) {
		if ts.Turn != i+1 {
			t.Fatalf("history[%d].Turn = %d", i, ts.Turn)
		}
	}
	if latest := sim.LatestTurnSummary(); latest == nil || latest.Turn != 7 {
		t.Fatalf("latest = %+v", latest)
	}
}

func TestHistoryLimit(t *testing.T) {
	sim := newSim(WithHistoryLimit(3))
	if _, err := sim.Initialize(crossroads(t, nil)); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, err := sim.ProcessTurn(); err != nil {
			t.Fatal(err)
		}
	}
	all := sim.TurnHistory(0)
	if len(all) != 3 || all[0].Turn != 3 || all[2].Turn != 5 {
		t.Fatalf("history = %d entries starting at %d", len(all), all[0].Turn)
	}
	last := sim.TurnHistory(2)
	if len(last) != 2 || last[0].Turn != 4 {
		t.Fatalf("last two = %+v", last)
	}

	ruled := newSim(WithHistoryLimit(3))
	cfg := crossroads(t, func(b *builder.WorldBuilder) {
		b.SetRules(builder.Rules{Description: "Short memory", HistoryLimit: 1})
	})
	if _, err := ruled.Initialize(cfg); err != nil {
		t.Fatal(err)
	}
	ruled.ProcessTurn()
	ruled.ProcessTurn()
	if n := len(ruled.TurnHistory(0)); n != 1 {
		t.Fatalf("rules history limit ignored: %d entries", n)
	}
}

func TestReset(t *testing.T) {
	sim := newSim()
	sim.Reset()
	if sim.CurrentTurn() != 0 {
		t.Fatal("reset of fresh simulation changed turn")
	}

	cfg := crossroads(t, nil)
	if _, err := sim.Initialize(cfg); err != nil {
		t.Fatal(err)
	}
	if got, err := sim.Config(); err != nil || got.ID != cfg.ID || !sim.Initialized() {
		t.Fatalf("config after initialize = %q, %v", got.ID, err)
	}
	sim.ProcessTurn()
	sim.ProcessTurn()
	sim.Reset()
	sim.Reset()

	if sim.Initialized() {
		t.Fatal("reset left the simulation initialized")
	}
	if _, err := sim.Config(); !errors.Is(err, simerr.ErrNotInitialized) {
		t.Fatalf("config after reset = %v", err)
	}

	if sim.CurrentTurn() != 0 || len(sim.TurnHistory(0)) != 0 || sim.LatestTurnSummary() != nil {
		t.Fatal("reset left state behind")
	}
	if sim.History().Len() != 0 {
		t.Fatal("reset left history events behind")
	}
	if _, err := sim.ProcessTurn(); !errors.Is(err, simerr.ErrNotInitialized) {
		t.Fatalf("process after reset = %v", err)
	}
}

func TestProcessTurnRequiresInitialize(t *testing.T) {
	_, err := newSim().ProcessTurn()
	if !errors.Is(err, simerr.ErrNotInitialized) {
		t.Fatalf("err = %v", err)
	}
}

func TestFailedInitializeKeepsWorld(t *testing.T) {
	sim := newSim()
	if _, err := sim.Initialize(crossroads(t, nil)); err != nil {
		t.Fatal(err)
	}
	sim.ProcessTurn()

	_, err := sim.Initialize(builder.WorldConfig{Name: "Empty"})
	if !errors.Is(err, simerr.ErrInitialization) || !errors.Is(err, simerr.ErrValidation) {
		t.Fatalf("unbuilt config err = %v", err)
	}

	forged := crossroads(t, nil)
	forged.Nodes = nil
	_, err = sim.Initialize(forged)
	if !errors.Is(err, simerr.ErrInitialization) {
		t.Fatalf("forged config err = %v", err)
	}
	if len(simerr.ReasonsOf(err)) == 0 {
		t.Fatal("initialization error carries no reasons")
	}

	if sim.CurrentTurn() != 1 || sim.State().WorldName != "Crossroads" {
		t.Fatal("failed initialize changed the world")
	}
}

func TestReinitializeReplacesWorld(t *testing.T) {
	sim := newSim()
	if _, err := sim.Initialize(crossroads(t, nil)); err != nil {
		t.Fatal(err)
	}
	sim.ProcessTurn()
	sim.ProcessTurn()

	cfg := crossroads(t, func(b *builder.WorldBuilder) {
		b.SetProperties("Harbor", "A fishing town", builder.Dimensions{})
	})
	st, err := sim.Initialize(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if st.Time != 0 || st.WorldName != "Harbor" || len(sim.TurnHistory(0)) != 0 {
		t.Fatalf("world not replaced: %+v", st)
	}
}

func TestCharacterFailureIsIsolated(t *testing.T) {
	cfg := crossroads(t, func(b *builder.WorldBuilder) {
		must(t, b.AddInteraction(world.Interaction{
			ID:   "lift",
			Name: "Lift the boulder",
			Type: world.InteractionExploration,
			Branches: []world.Branch{{
				ID: "heave", Probability: 1,
				Effects: world.Effects{Attributes: map[string]float64{"strength": math.Inf(1)}},
			}},
		}))
		must(t, b.AddCharacter(world.Character{
			ID: "bran", Name: "Bran", Level: 1,
			Attributes:           map[string]float64{"strength": 12},
			AssignedInteractions: []string{"lift"},
			CurrentNodeID:        "market",
		}))
	})

	// Every roll is a natural 20, so Bran's evolution overflows.
	sim := newSim(WithRand(entropy.NewSequence(0.99)))
	if _, err := sim.Initialize(cfg); err != nil {
		t.Fatal(err)
	}
	res, err := sim.ProcessTurn()
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if !res.Success || len(res.Summary.CharacterActions) != 1 || res.Summary.CharacterActions[0].CharacterID != "aria" {
		t.Fatalf("actions = %+v", res.Summary.CharacterActions)
	}
	if sim.CurrentTurn() != 1 {
		t.Fatal("turn did not advance")
	}
}

func TestGatedInteractionDoesNotCostTheTurn(t *testing.T) {
	cfg := crossroads(t, func(b *builder.WorldBuilder) {
		must(t, b.AddInteraction(world.Interaction{
			ID:   "arm",
			Name: "Arm wrestle",
			Type: world.InteractionCombat,
			Branches: []world.Branch{{
				ID: "pin", Probability: 1,
				Condition: &world.Condition{Attribute: "strength", Min: 18},
			}},
		}))
		must(t, b.AttachInteraction("market", "arm"))
	})

	sim := newSim(WithRand(entropy.NewSequence(0.99)))
	if _, err := sim.Initialize(cfg); err != nil {
		t.Fatal(err)
	}
	res, err := sim.ProcessTurn()
	if err != nil {
		t.Fatal(err)
	}
	acts := res.Summary.CharacterActions
	if len(acts) != 1 || acts[0].InteractionID != "barter" || acts[0].BranchName != "haggle" {
		t.Fatalf("actions = %+v", acts)
	}
}

func TestProbabilityTriggerRolledOncePerNode(t *testing.T) {
	cfg := crossroads(t, func(b *builder.WorldBuilder) {
		must(t, b.AddCharacter(world.Character{ID: "bran", Name: "Bran", Level: 1, CurrentNodeID: "market"}))
		must(t, b.AddEvent(encounter.Encounter{
			ID: "storm", Name: "Storm", Type: "weather",
			Triggers:  []encounter.Trigger{{Type: encounter.TriggerProbability, Probability: 0.5}},
			TurnBased: world.TurnBased{Duration: 1},
			Outcomes:  []encounter.Outcome{{ID: "passes", Probability: 1}},
		}))
	})

	// The node's single roll misses; a second roll for Bran would hit.
	sim := newSim(WithRand(entropy.NewSequence(0.9, 0.1)))
	if _, err := sim.Initialize(cfg); err != nil {
		t.Fatal(err)
	}
	res, err := sim.ProcessTurn()
	if err != nil {
		t.Fatal(err)
	}
	if n := res.Summary.Changes.EncountersStarted; n != 0 {
		t.Fatalf("encounters started = %d", n)
	}
	if len(sim.Encounters().GetActiveEncounters()) != 0 {
		t.Fatal("storm should not be active")
	}
}

func TestPersistence(t *testing.T) {
	p := &memPersistence{}
	sim := newSim(WithPersistence(p))
	cfg := crossroads(t, nil)
	if _, err := sim.Initialize(cfg); err != nil {
		t.Fatal(err)
	}
	sim.ProcessTurn()
	sim.ProcessTurn()

	if p.saves != 2 || p.saved == nil || p.saved.Time != 2 {
		t.Fatalf("saves = %d, saved = %+v", p.saves, p.saved)
	}
	if len(p.events) != 2 {
		t.Fatalf("persisted %d events", len(p.events))
	}
	if p.snap == nil {
		t.Fatal("encounters not persisted")
	}

	saved, _ := p.Load()
	restored := newSim(WithPersistence(p))
	st, err := restored.Restore(cfg, saved)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if st.Time != 2 || restored.CurrentTurn() != 2 {
		t.Fatalf("restored at turn %d", restored.CurrentTurn())
	}
	res, err := restored.ProcessTurn()
	if err != nil || res.Summary.Turn != 3 {
		t.Fatalf("resumed turn = %d, %v", res.Summary.Turn, err)
	}

	if _, err := restored.Restore(cfg, nil); !errors.Is(err, simerr.ErrInitialization) {
		t.Fatalf("restore nil = %v", err)
	}
}

func TestPersistenceFailureIsSwallowed(t *testing.T) {
	p := &memPersistence{err: errors.New("disk full")}
	sim := newSim(WithPersistence(p))
	if _, err := sim.Initialize(crossroads(t, nil)); err != nil {
		t.Fatal(err)
	}
	res, err := sim.ProcessTurn()
	if err != nil || !res.Success {
		t.Fatalf("persistence failure surfaced: %v", err)
	}
	if p.saves != 1 || sim.CurrentTurn() != 1 {
		t.Fatalf("saves %d, turn %d", p.saves, sim.CurrentTurn())
	}
}

func TestEncounterRunsThroughTurns(t *testing.T) {
	cfg := crossroads(t, func(b *builder.WorldBuilder) {
		must(t, b.AddEvent(encounter.Encounter{
			ID:        "fair",
			Name:      "Harvest fair",
			Type:      "social",
			Triggers:  []encounter.Trigger{{Type: encounter.TriggerLocation, NodeID: "market"}},
			TurnBased: world.TurnBased{Duration: 2},
			Outcomes: []encounter.Outcome{{
				ID: "profit", Probability: 1,
				Effects: world.Effects{Resources: map[string]float64{"gold": 7}},
			}},
			Cooldown: 10,
		}))
	})
	sim := newSim()
	if _, err := sim.Initialize(cfg); err != nil {
		t.Fatal(err)
	}

	first, err := sim.ProcessTurn()
	if err != nil {
		t.Fatal(err)
	}
	if first.Summary.Changes.EncountersStarted != 1 {
		t.Fatalf("encounters started = %d", first.Summary.Changes.EncountersStarted)
	}
	if len(first.Summary.EncounterResults) != 1 || first.Summary.EncounterResults[0].Type != encounter.ResultTurn {
		t.Fatalf("turn 1 results = %+v", first.Summary.EncounterResults)
	}
	if _, ok := first.State.Interaction(encounter.InteractionID("fair")); !ok {
		t.Fatal("encounter interaction not folded into the world")
	}
	node, _ := first.State.Node("market")
	found := false
	for _, id := range node.Interactions {
		found = found || id == encounter.InteractionID("fair")
	}
	if !found {
		t.Fatal("encounter interaction not reachable from its node")
	}

	second, err := sim.ProcessTurn()
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Summary.EncounterResults) != 1 || second.Summary.EncounterResults[0].Type != encounter.ResultCompleted {
		t.Fatalf("turn 2 results = %+v", second.Summary.EncounterResults)
	}
	if _, ok := second.State.Interaction(encounter.InteractionID("fair")); ok {
		t.Fatal("completed encounter interaction left in the world")
	}
	var ended bool
	for _, ev := range second.Summary.Events {
		ended = ended || (ev.Outcome == history.OutcomeEncounter && ev.BranchID == "profit")
	}
	if !ended {
		t.Fatalf("no encounter event in %+v", second.Summary.Events)
	}
	if n := len(sim.Encounters().GetEncounterHistory()); n != 1 {
		t.Fatalf("encounter history = %d", n)
	}

	third, _ := sim.ProcessTurn()
	if len(third.Summary.EncounterResults) != 0 || third.Summary.Changes.EncountersStarted != 0 {
		t.Fatal("encounter restarted during cooldown")
	}
}

func TestGeneratedResources(t *testing.T) {
	cfg := crossroads(t, func(b *builder.WorldBuilder) {
		b.SetInitialConditions(builder.InitialConditions{
			Description:       "Fertile land",
			Resources:         map[string]float64{"grain": 10},
			Seed:              42,
			GenerateResources: true,
		})
	})
	st, err := newSim().Initialize(cfg)
	if err != nil {
		t.Fatal(err)
	}
	node, _ := st.Node("market")
	if g := node.Resources["grain"]; g < 2 || g > 10 {
		t.Fatalf("seeded grain = %v", g)
	}
	if st.Resources["grain"] != 10 {
		t.Fatalf("world pool = %v", st.Resources)
	}
}

func TestRunner(t *testing.T) {
	cfg := crossroads(t, func(b *builder.WorldBuilder) {
		b.SetRules(builder.Rules{Description: "Three turns", MaxTurns: 3})
	})
	sim := newSim()
	if _, err := sim.Initialize(cfg); err != nil {
		t.Fatal(err)
	}
	r := NewRunner(sim)
	turns := 0
	r.OnTurn = func(TurnResult) { turns++ }
	n, err := r.Step(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || turns != 3 || !sim.Finished() {
		t.Fatalf("stepped %d turns, callbacks %d", n, turns)
	}

	open := newSim()
	if _, err := open.Initialize(crossroads(t, nil)); err != nil {
		t.Fatal(err)
	}
	r = NewRunner(open)
	chronicles := 0
	r.OnChronicle = func(TurnResult) { chronicles++ }
	if _, err := r.Step(context.Background(), TurnsPerChronicle*2); err != nil {
		t.Fatal(err)
	}
	if chronicles != 2 {
		t.Fatalf("chronicle callbacks = %d", chronicles)
	}

	if _, err := NewRunner(newSim()).Step(context.Background(), 1); !errors.Is(err, simerr.ErrNotInitialized) {
		t.Fatalf("uninitialized step = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if n, err := NewRunner(open).Step(ctx, 5); n != 0 || !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled step = %d, %v", n, err)
	}
}
