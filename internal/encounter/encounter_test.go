package encounter

import (
	"errors"
	"testing"

	"github.com/talgya/turnworld/internal/entropy"
	"github.com/talgya/turnworld/internal/simerr"
	"github.com/talgya/turnworld/internal/world"
)

func ambush() Encounter {
	return Encounter{
		ID:        "ambush",
		Name:      "Roadside ambush",
		Type:      "combat",
		TurnBased: world.TurnBased{Duration: 2, Initiative: "dexterity"},
		Outcomes: []Outcome{
			{ID: "repelled", Name: "Bandits repelled", Probability: 0.7, Effects: world.Effects{Resources: map[string]float64{"gold": 3}}},
			{ID: "robbed", Name: "Robbed", Probability: 0.3, Effects: world.Effects{Resources: map[string]float64{"gold": -5}}},
		},
		Prerequisites: []Prerequisite{{Type: PrerequisiteLevel, Min: 2}, {Type: PrerequisiteAttribute, Attribute: "strength", Min: 12}},
		Modifiers:     map[string]float64{"strength": 1},
		Cooldown:      3,
	}
}

func fighter() *world.Character {
	return &world.Character{
		ID:         "bran",
		Name:       "Bran",
		Level:      3,
		Attributes: map[string]float64{"strength": 15},
	}
}

func TestCanTriggerRespectsCooldown(t *testing.T) {
	e := ambush()
	ctx := Context{CurrentTurn: 5, Character: fighter()}
	if !e.CanTrigger(ctx) {
		t.Fatal("fresh encounter should trigger")
	}
	e.MarkTriggered(5)
	for turn := 5; turn < 8; turn++ {
		ctx.CurrentTurn = turn
		if e.CanTrigger(ctx) {
			t.Fatalf("turn %d: cooldown of 3 from turn 5 should block", turn)
		}
	}
	ctx.CurrentTurn = 8
	if !e.CanTrigger(ctx) {
		t.Fatal("cooldown elapsed at turn 8")
	}
}

func TestCanTriggerOnce(t *testing.T) {
	e := ambush()
	e.Once = true
	e.Cooldown = 0
	e.MarkTriggered(1)
	if e.CanTrigger(Context{CurrentTurn: 100, Character: fighter()}) {
		t.Fatal("one-shot encounter fired twice")
	}
}

func TestCanTriggerPrerequisites(t *testing.T) {
	e := ambush()
	weak := fighter()
	weak.Attributes["strength"] = 9
	if e.CanTrigger(Context{Character: weak}) {
		t.Fatal("strength prerequisite ignored")
	}
	novice := fighter()
	novice.Level = 1
	if e.CanTrigger(Context{Character: novice}) {
		t.Fatal("level prerequisite ignored")
	}
	if e.CanTrigger(Context{}) {
		t.Fatal("prerequisites need a character")
	}
}

func TestTriggers(t *testing.T) {
	tests := []struct {
		name    string
		trigger Trigger
		ctx     Context
		want    bool
	}{
		{"location match", Trigger{Type: TriggerLocation, NodeID: "road"}, Context{NodeID: "road"}, true},
		{"location miss", Trigger{Type: TriggerLocation, NodeID: "road"}, Context{NodeID: "market"}, false},
		{"periodic", Trigger{Type: TriggerPeriodic, Every: 4}, Context{CurrentTurn: 8}, true},
		{"periodic off", Trigger{Type: TriggerPeriodic, Every: 4}, Context{CurrentTurn: 9}, false},
		{"periodic zero", Trigger{Type: TriggerPeriodic}, Context{CurrentTurn: 0}, false},
		{"attribute", Trigger{Type: TriggerAttribute, Attribute: "strength", Min: 14}, Context{Character: fighter()}, true},
		{"attribute no character", Trigger{Type: TriggerAttribute, Attribute: "strength", Min: 1}, Context{}, false},
		{"proximity", Trigger{Type: TriggerProximity, Position: world.HexCoord{Q: 0, R: 0}, Radius: 2}, Context{Position: world.HexCoord{Q: 1, R: 1}}, true},
		{"proximity far", Trigger{Type: TriggerProximity, Radius: 1}, Context{Position: world.HexCoord{Q: 3, R: 0}}, false},
		{"probability hit", Trigger{Type: TriggerProbability, Probability: 0.5}, Context{Rand: entropy.NewSequence(0.2)}, true},
		{"probability miss", Trigger{Type: TriggerProbability, Probability: 0.5}, Context{Rand: entropy.NewSequence(0.8)}, false},
		{"probability certain without rand", Trigger{Type: TriggerProbability, Probability: 1}, Context{}, true},
		{"unknown", Trigger{Type: "weather"}, Context{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.trigger.holds(tt.ctx, "t"); got != tt.want {
				t.Fatalf("holds = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNodeRestrictions(t *testing.T) {
	e := ambush()
	e.NodeRestrictions = []string{"road"}
	if e.CanTrigger(Context{NodeID: "market", Character: fighter()}) {
		t.Fatal("restricted node allowed")
	}
	if !e.CanTrigger(Context{NodeID: "road", Character: fighter()}) {
		t.Fatal("allowed node rejected")
	}
}

func TestGenerateInteractions(t *testing.T) {
	e := ambush()
	list := e.GenerateInteractions()
	if len(list) != 1 {
		t.Fatalf("got %d interactions, want 1", len(list))
	}
	in := list[0]
	if in.ID != "encounter:ambush" || in.Source != "ambush" || in.Type != world.InteractionEncounter {
		t.Fatalf("unexpected interaction header: %+v", in)
	}
	if len(in.Branches) != len(e.Outcomes) {
		t.Fatalf("got %d branches, want %d", len(in.Branches), len(e.Outcomes))
	}
	for i, br := range in.Branches {
		if br.ID != e.Outcomes[i].ID || br.Probability != e.Outcomes[i].Probability {
			t.Fatalf("branch %d = %+v, want outcome %+v", i, br, e.Outcomes[i])
		}
	}
	if in.Requirements.MinLevel != 2 || in.Requirements.Attributes["strength"] != 12 {
		t.Fatalf("prerequisites not mapped: %+v", in.Requirements)
	}
	if in.Cooldown != 3 || in.TurnBased == nil || in.TurnBased.Duration != 2 || in.TurnBased.Initiative != "dexterity" {
		t.Fatalf("turn-based block not copied: %+v", in)
	}

	in.Branches[0].Effects.Resources["gold"] = 99
	if e.Outcomes[0].Effects.Resources["gold"] != 3 {
		t.Fatal("generated interaction shares effects with the template")
	}
}

func TestResolveOutcome(t *testing.T) {
	e := ambush()
	if o := e.ResolveOutcome(Context{Rand: entropy.NewSequence(0.1)}); o == nil || o.ID != "repelled" {
		t.Fatalf("low draw = %+v, want repelled", o)
	}
	if o := e.ResolveOutcome(Context{Rand: entropy.NewSequence(0.9)}); o == nil || o.ID != "robbed" {
		t.Fatalf("high draw = %+v, want robbed", o)
	}
	e.Outcomes = nil
	if o := e.ResolveOutcome(Context{}); o != nil {
		t.Fatalf("no outcomes resolved to %+v", o)
	}
}

func TestValidate(t *testing.T) {
	e := Encounter{Outcomes: []Outcome{{ID: "a"}, {ID: "a", Probability: -1}}}
	reasons := e.Validate()
	if len(reasons) != 5 {
		t.Fatalf("got %d reasons, want 5: %v", len(reasons), reasons)
	}
	good := ambush()
	if reasons := good.Validate(); len(reasons) != 0 {
		t.Fatalf("valid encounter rejected: %v", reasons)
	}
}

type memStore struct {
	snap *Snapshot
	err  error
}

func (m *memStore) SaveEncounters(s Snapshot) error {
	if m.err != nil {
		return m.err
	}
	m.snap = &s
	return nil
}

func (m *memStore) LoadEncounters() (*Snapshot, error) {
	return m.snap, m.err
}

func TestServiceLifecycle(t *testing.T) {
	svc := NewService(entropy.NewSequence(0.1), nil)
	if _, err := svc.CreateEncounter(ambush()); err != nil {
		t.Fatalf("create: %v", err)
	}

	inst, err := svc.TriggerEncounter("ambush", Context{CurrentTurn: 1, NodeID: "road", Character: fighter()})
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if inst.CurrentTurn != 0 || inst.MaxTurns != 2 || inst.Status != StatusActive || inst.CharacterID != "bran" {
		t.Fatalf("unexpected instance: %+v", inst)
	}
	if len(inst.GeneratedInteractions) != 1 {
		t.Fatalf("instance carries %d interactions", len(inst.GeneratedInteractions))
	}

	first := svc.ProcessTurn(2)
	if len(first) != 1 || first[0].Type != ResultTurn || first[0].CurrentTurn != 1 {
		t.Fatalf("first turn results = %+v", first)
	}
	if len(svc.GetActiveEncounters()) != 1 || len(svc.GetEncounterHistory()) != 0 {
		t.Fatal("instance left active set too early")
	}

	second := svc.ProcessTurn(3)
	if len(second) != 1 || second[0].Type != ResultCompleted {
		t.Fatalf("second turn results = %+v", second)
	}
	if second[0].Outcome == nil || second[0].Outcome.ID != "repelled" {
		t.Fatalf("outcome = %+v", second[0].Outcome)
	}
	if len(svc.GetActiveEncounters()) != 0 {
		t.Fatal("completed instance still active")
	}
	hist := svc.GetEncounterHistory()
	if len(hist) != 1 || hist[0].ID != inst.ID || hist[0].CompletedTurn != 3 {
		t.Fatalf("history = %+v", hist)
	}

	if res := svc.ProcessTurn(4); len(res) != 0 {
		t.Fatalf("completed instance processed again: %+v", res)
	}
	if len(svc.GetEncounterHistory()) != 1 {
		t.Fatal("instance appended to history twice")
	}
}

func TestServiceErrors(t *testing.T) {
	svc := NewService(nil, nil)
	if _, err := svc.GetEncounter("missing"); !errors.Is(err, simerr.ErrNotFound) {
		t.Fatalf("get missing = %v", err)
	}
	if _, err := svc.TriggerEncounter("missing", Context{}); !errors.Is(err, simerr.ErrNotFound) {
		t.Fatalf("trigger missing = %v", err)
	}
	if _, err := svc.CreateEncounter(Encounter{ID: "bad"}); !errors.Is(err, simerr.ErrInvalidInput) {
		t.Fatalf("create invalid = %v", err)
	}
	if _, err := svc.CreateEncounter(ambush()); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateEncounter(ambush()); !errors.Is(err, simerr.ErrInvalidInput) {
		t.Fatalf("duplicate create = %v", err)
	}
}

func TestAvailableEncounters(t *testing.T) {
	svc := NewService(nil, nil)
	road := ambush()
	road.NodeRestrictions = []string{"road"}
	road.Prerequisites = nil
	if _, err := svc.CreateEncounter(road); err != nil {
		t.Fatal(err)
	}
	festival := Encounter{
		ID:        "festival",
		Name:      "Harvest festival",
		Type:      "social",
		TurnBased: world.TurnBased{Duration: 1},
		Triggers:  []Trigger{{Type: TriggerPeriodic, Every: 10}},
		Outcomes:  []Outcome{{ID: "merry", Probability: 1}},
	}
	if _, err := svc.CreateEncounter(festival); err != nil {
		t.Fatal(err)
	}

	got := svc.GetAvailableEncounters("road", Context{CurrentTurn: 10})
	if len(got) != 2 {
		t.Fatalf("available at road turn 10 = %d, want 2", len(got))
	}
	got = svc.GetAvailableEncounters("market", Context{CurrentTurn: 3})
	if len(got) != 0 {
		t.Fatalf("available at market turn 3 = %+v", got)
	}

	if _, err := svc.TriggerEncounter("festival", Context{CurrentTurn: 10}); err != nil {
		t.Fatal(err)
	}
	got = svc.GetAvailableEncounters("road", Context{CurrentTurn: 20})
	if len(got) != 1 || got[0].ID != "ambush" {
		t.Fatalf("running encounter offered again: %+v", got)
	}

	if n := len(svc.GetEncountersByType("social")); n != 1 {
		t.Fatalf("social encounters = %d", n)
	}
}

func TestStatistics(t *testing.T) {
	svc := NewService(entropy.NewSequence(0.95), nil)
	e := ambush()
	e.TurnBased.Duration = 1
	if _, err := svc.CreateEncounter(e); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.TriggerEncounter("ambush", Context{CurrentTurn: 1}); err != nil {
		t.Fatal(err)
	}
	svc.ProcessTurn(2)

	st := svc.GetEncounterStatistics()
	if st.Templates != 1 || st.Active != 0 || st.Completed != 1 {
		t.Fatalf("counts = %+v", st)
	}
	if st.ByType["combat"] != 1 || st.Triggered["ambush"] != 1 || st.Outcomes["robbed"] != 1 {
		t.Fatalf("breakdown = %+v", st)
	}
}

func TestSaveLoadEncounters(t *testing.T) {
	store := &memStore{}
	svc := NewService(nil, store)
	if svc.LoadEncounters() {
		t.Fatal("load from empty store reported success")
	}
	if _, err := svc.CreateEncounter(ambush()); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.TriggerEncounter("ambush", Context{CurrentTurn: 4}); err != nil {
		t.Fatal(err)
	}
	if !svc.SaveEncounters() {
		t.Fatal("save failed")
	}

	restored := NewService(nil, store)
	if !restored.LoadEncounters() {
		t.Fatal("load failed")
	}
	if len(restored.GetAllEncounters()) != 1 || len(restored.GetActiveEncounters()) != 1 {
		t.Fatal("snapshot not restored")
	}
	got, _ := restored.GetEncounter("ambush")
	if got.LastTriggered == nil || *got.LastTriggered != 4 {
		t.Fatalf("last triggered = %v", got.LastTriggered)
	}

	store.err = errors.New("disk full")
	if svc.SaveEncounters() {
		t.Fatal("save reported success on store error")
	}
	if restored.LoadEncounters() {
		t.Fatal("load reported success on store error")
	}
	if len(restored.GetActiveEncounters()) != 1 {
		t.Fatal("failed load changed the service")
	}
}

func TestSharedDrawsRollOnce(t *testing.T) {
	e := Encounter{
		ID: "storm", Name: "Storm",
		Triggers:  []Trigger{{Type: TriggerProbability, Probability: 0.5}},
		TurnBased: world.TurnBased{Duration: 1},
	}

	src := entropy.NewSequence(0.9, 0.1)
	ctx := Context{Rand: src, Draws: make(map[string]float64)}
	if e.CanTrigger(ctx) || e.CanTrigger(ctx) {
		t.Fatal("a shared miss must hold for every check at the node")
	}

	fresh := Context{Rand: entropy.NewSequence(0.9, 0.1)}
	if e.CanTrigger(fresh) || !e.CanTrigger(fresh) {
		t.Fatal("without shared draws each check rolls again")
	}
}
