package encounter

import (
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/talgya/turnworld/internal/entropy"
	"github.com/talgya/turnworld/internal/simerr"
	"github.com/talgya/turnworld/internal/world"
)

// Status is the lifecycle state of an encounter instance.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Instance is a running (or finished) encounter.
type Instance struct {
	ID                    string              `json:"id"`
	EncounterID           string              `json:"encounterId"`
	Name                  string              `json:"name"`
	Type                  string              `json:"type"`
	Status                Status              `json:"status"`
	NodeID                string              `json:"nodeId,omitempty"`
	CharacterID           string              `json:"characterId,omitempty"`
	StartedTurn           int                 `json:"startedTurn"`
	CurrentTurn           int                 `json:"currentTurn"`
	MaxTurns              int                 `json:"maxTurns"`
	CompletedTurn         int                 `json:"completedTurn,omitempty"`
	GeneratedInteractions []world.Interaction `json:"generatedInteractions"`
	Outcome               *Outcome            `json:"outcome,omitempty"`
}

// InteractionIDs returns the ids of the interactions the instance projected.
func (in *Instance) InteractionIDs() []string {
	ids := make([]string, len(in.GeneratedInteractions))
	for i, gi := range in.GeneratedInteractions {
		ids[i] = gi.ID
	}
	return ids
}

// ResultType tags a per-turn instance result.
type ResultType string

const (
	ResultTurn      ResultType = "encounter_turn"
	ResultCompleted ResultType = "encounter_completed"
)

// Result reports what happened to one active instance during a turn.
type Result struct {
	Type         ResultType `json:"type"`
	InstanceID   string     `json:"instanceId"`
	EncounterID  string     `json:"encounterId"`
	Name         string     `json:"name"`
	NodeID       string     `json:"nodeId,omitempty"`
	Turn         int        `json:"turn"`
	CurrentTurn  int        `json:"currentTurn"`
	MaxTurns     int        `json:"maxTurns"`
	Outcome      *Outcome   `json:"outcome,omitempty"`
	Interactions []string   `json:"interactions,omitempty"`
}

// Statistics summarizes the registry and instance lifecycle.
type Statistics struct {
	Templates int            `json:"templates"`
	Active    int            `json:"active"`
	Completed int            `json:"completed"`
	ByType    map[string]int `json:"byType"`
	Triggered map[string]int `json:"triggered"` // encounter id → instances started
	Outcomes  map[string]int `json:"outcomes"`  // outcome id → completions
}

// Snapshot is the persisted form of the service.
type Snapshot struct {
	Templates []Encounter `json:"templates"`
	Active    []Instance  `json:"active"`
	History   []Instance  `json:"history"`
}

// Store persists encounter snapshots.
type Store interface {
	SaveEncounters(Snapshot) error
	LoadEncounters() (*Snapshot, error)
}

// Service keeps the encounter registry, the active instances, and the
// completed history. An instance is in exactly one of active or history.
type Service struct {
	templates map[string]*Encounter
	active    []*Instance
	history   []*Instance

	rand  entropy.Source
	store Store
}

// NewService creates an empty service. store may be nil.
func NewService(src entropy.Source, store Store) *Service {
	return &Service{
		templates: make(map[string]*Encounter),
		rand:      entropy.OrDefault(src),
		store:     store,
	}
}

// CreateEncounter validates and registers a template.
func (s *Service) CreateEncounter(e Encounter) (Encounter, error) {
	if reasons := e.Validate(); len(reasons) > 0 {
		return Encounter{}, simerr.InvalidInput("createEncounter", reasons...)
	}
	if _, exists := s.templates[e.ID]; exists {
		return Encounter{}, simerr.InvalidInput("createEncounter", "encounter "+e.ID+" already exists")
	}
	stored := e.Clone()
	s.templates[e.ID] = &stored
	return stored.Clone(), nil
}

// GetEncounter returns a template by id.
func (s *Service) GetEncounter(id string) (Encounter, error) {
	e, ok := s.templates[id]
	if !ok {
		return Encounter{}, simerr.NotFound("getEncounter", "encounter", id)
	}
	return e.Clone(), nil
}

// GetAllEncounters returns every template ordered by id.
func (s *Service) GetAllEncounters() []Encounter {
	ids := make([]string, 0, len(s.templates))
	for id := range s.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Encounter, len(ids))
	for i, id := range ids {
		out[i] = s.templates[id].Clone()
	}
	return out
}

// GetEncountersByType returns the templates of one type ordered by id.
func (s *Service) GetEncountersByType(typ string) []Encounter {
	var out []Encounter
	for _, e := range s.GetAllEncounters() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// GetAvailableEncounters returns the templates that can trigger at nodeID in
// ctx and have no instance already running.
func (s *Service) GetAvailableEncounters(nodeID string, ctx Context) []Encounter {
	ctx.NodeID = nodeID
	if ctx.Rand == nil {
		ctx.Rand = s.rand
	}
	var out []Encounter
	for _, e := range s.GetAllEncounters() {
		if s.isActive(e.ID) {
			continue
		}
		if s.templates[e.ID].CanTrigger(ctx) {
			out = append(out, e)
		}
	}
	return out
}

func (s *Service) isActive(encounterID string) bool {
	for _, in := range s.active {
		if in.EncounterID == encounterID {
			return true
		}
	}
	return false
}

// TriggerEncounter starts an instance of a template and marks the template
// triggered at ctx.CurrentTurn.
func (s *Service) TriggerEncounter(id string, ctx Context) (Instance, error) {
	e, ok := s.templates[id]
	if !ok {
		return Instance{}, simerr.NotFound("triggerEncounter", "encounter", id)
	}
	e.MarkTriggered(ctx.CurrentTurn)

	maxTurns := e.TurnBased.Duration
	if maxTurns < 1 {
		maxTurns = 1
	}
	in := &Instance{
		ID:                    uuid.New().String(),
		EncounterID:           e.ID,
		Name:                  e.Name,
		Type:                  e.Type,
		Status:                StatusActive,
		NodeID:                ctx.NodeID,
		StartedTurn:           ctx.CurrentTurn,
		CurrentTurn:           0,
		MaxTurns:              maxTurns,
		GeneratedInteractions: e.GenerateInteractions(),
	}
	if ctx.Character != nil {
		in.CharacterID = ctx.Character.ID
	}
	s.active = append(s.active, in)

	slog.Info("encounter triggered", "encounter", e.ID, "instance", in.ID, "node", in.NodeID, "turn", ctx.CurrentTurn)
	return in.clone(), nil
}

// ProcessTurn advances every active instance by one turn. Instances reaching
// their turn limit resolve an outcome and move to history.
func (s *Service) ProcessTurn(turn int) []Result {
	var results []Result
	remaining := s.active[:0]
	for _, in := range s.active {
		in.CurrentTurn++
		r := Result{
			Type:         ResultTurn,
			InstanceID:   in.ID,
			EncounterID:  in.EncounterID,
			Name:         in.Name,
			NodeID:       in.NodeID,
			Turn:         turn,
			CurrentTurn:  in.CurrentTurn,
			MaxTurns:     in.MaxTurns,
			Interactions: in.InteractionIDs(),
		}
		if in.CurrentTurn < in.MaxTurns {
			remaining = append(remaining, in)
			results = append(results, r)
			continue
		}

		if e, ok := s.templates[in.EncounterID]; ok {
			in.Outcome = e.ResolveOutcome(Context{CurrentTurn: turn, NodeID: in.NodeID, Rand: s.rand})
		}
		in.Status = StatusCompleted
		in.CompletedTurn = turn
		s.history = append(s.history, in)

		r.Type = ResultCompleted
		r.Outcome = in.Outcome
		results = append(results, r)

		outcomeID := ""
		if in.Outcome != nil {
			outcomeID = in.Outcome.ID
		}
		slog.Info("encounter completed", "encounter", in.EncounterID, "instance", in.ID, "outcome", outcomeID, "turn", turn)
	}
	// Clear the tail so completed instances are only referenced from history.
	for i := len(remaining); i < len(s.active); i++ {
		s.active[i] = nil
	}
	s.active = remaining
	return results
}

// GetActiveEncounters returns copies of the running instances.
func (s *Service) GetActiveEncounters() []Instance {
	return cloneAll(s.active)
}

// GetEncounterHistory returns copies of the completed instances in completion order.
func (s *Service) GetEncounterHistory() []Instance {
	return cloneAll(s.history)
}

// GetEncounterStatistics summarizes templates and instances.
func (s *Service) GetEncounterStatistics() Statistics {
	st := Statistics{
		Templates: len(s.templates),
		Active:    len(s.active),
		Completed: len(s.history),
		ByType:    make(map[string]int),
		Triggered: make(map[string]int),
		Outcomes:  make(map[string]int),
	}
	for _, e := range s.templates {
		st.ByType[e.Type]++
	}
	for _, in := range s.active {
		st.Triggered[in.EncounterID]++
	}
	for _, in := range s.history {
		st.Triggered[in.EncounterID]++
		if in.Outcome != nil {
			st.Outcomes[in.Outcome.ID]++
		}
	}
	return st
}

// Clear drops every template and instance.
func (s *Service) Clear() {
	s.templates = make(map[string]*Encounter)
	s.active = nil
	s.history = nil
}

// Snapshot captures templates and instances.
func (s *Service) Snapshot() Snapshot {
	return Snapshot{
		Templates: s.GetAllEncounters(),
		Active:    s.GetActiveEncounters(),
		History:   s.GetEncounterHistory(),
	}
}

// Restore replaces the service contents with a snapshot.
func (s *Service) Restore(snap Snapshot) {
	s.Clear()
	for _, e := range snap.Templates {
		stored := e.Clone()
		s.templates[e.ID] = &stored
	}
	for _, in := range snap.Active {
		c := in.clone()
		s.active = append(s.active, &c)
	}
	for _, in := range snap.History {
		c := in.clone()
		s.history = append(s.history, &c)
	}
}

// SaveEncounters persists the service through its store. Failures are logged.
func (s *Service) SaveEncounters() bool {
	if s.store == nil {
		return false
	}
	if err := s.store.SaveEncounters(s.Snapshot()); err != nil {
		slog.Warn("failed to save encounters", "error", err)
		return false
	}
	return true
}

// LoadEncounters restores the service from its store. A missing snapshot or a
// failed load leaves the service unchanged and returns false.
func (s *Service) LoadEncounters() bool {
	if s.store == nil {
		return false
	}
	snap, err := s.store.LoadEncounters()
	if err != nil {
		slog.Warn("failed to load encounters", "error", err)
		return false
	}
	if snap == nil {
		return false
	}
	s.Restore(*snap)
	return true
}

func (in *Instance) clone() Instance {
	c := *in
	c.GeneratedInteractions = make([]world.Interaction, len(in.GeneratedInteractions))
	for i, gi := range in.GeneratedInteractions {
		c.GeneratedInteractions[i] = gi.Clone()
	}
	if in.Outcome != nil {
		o := *in.Outcome
		o.Effects = o.Effects.Clone()
		c.Outcome = &o
	}
	return c
}

func cloneAll(list []*Instance) []Instance {
	out := make([]Instance, len(list))
	for i, in := range list {
		out[i] = in.clone()
	}
	return out
}
