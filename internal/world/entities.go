package world

// InteractionType classifies an interaction.
type InteractionType string

const (
	InteractionSocial      InteractionType = "social"
	InteractionCombat      InteractionType = "combat"
	InteractionEconomic    InteractionType = "economic"
	InteractionExploration InteractionType = "exploration"
	InteractionEncounter   InteractionType = "encounter"
)

// Node is a location characters occupy.
type Node struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Type         string             `json:"type"` // "settlement", "wilderness", "dungeon", ...
	Position     HexCoord           `json:"position"`
	Connections  []string           `json:"connections,omitempty"`
	Properties   map[string]string  `json:"properties,omitempty"`
	Resources    map[string]float64 `json:"resources,omitempty"` // Local pool
	Interactions []string           `json:"interactions,omitempty"`
}

// Consciousness holds the two behavior-biasing scalars of a character.
type Consciousness struct {
	Frequency float64 `json:"frequency"` // Energy the character resonates at; 0 = derive from attributes
	Coherence float64 `json:"coherence"` // 0.0–1.0
}

// Goal is something a character is pursuing.
type Goal struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
}

// Character is a simulated person.
type Character struct {
	ID                   string             `json:"id"`
	Name                 string             `json:"name"`
	Level                int                `json:"level"`
	Attributes           map[string]float64 `json:"attributes"`
	Consciousness        Consciousness      `json:"consciousness"`
	Goals                []Goal             `json:"goals,omitempty"`
	AssignedInteractions []string           `json:"assignedInteractions,omitempty"`
	CurrentNodeID        string             `json:"currentNodeId"`
}

// Valid reports whether c is a usable character entity.
func (c *Character) Valid() bool {
	if c == nil || c.ID == "" || c.Name == "" {
		return false
	}
	return c.Consciousness.Coherence >= 0 && c.Consciousness.Coherence <= 1
}

// ActiveGoals returns the ids of the character's active goals.
func (c *Character) ActiveGoals() []string {
	var ids []string
	for _, g := range c.Goals {
		if g.Active && g.ID != "" {
			ids = append(ids, g.ID)
		}
	}
	return ids
}

// Condition gates a branch on a character attribute.
type Condition struct {
	Attribute string  `json:"attribute"`
	Min       float64 `json:"min"`
}

// Effects describe what a resolved branch or encounter outcome changes.
type Effects struct {
	Attributes map[string]float64 `json:"attributes,omitempty"`
	Resources  map[string]float64 `json:"resources,omitempty"`
	Coherence  float64            `json:"coherence,omitempty"`
	Frequency  float64            `json:"frequency,omitempty"`
}

// Empty reports whether the effects change nothing.
func (e Effects) Empty() bool {
	return len(e.Attributes) == 0 && len(e.Resources) == 0 && e.Coherence == 0 && e.Frequency == 0
}

// Branch is one resolvable path of an interaction.
type Branch struct {
	ID             string     `json:"id"`
	Name           string     `json:"name,omitempty"`
	Probability    float64    `json:"probability"`
	Condition      *Condition `json:"condition,omitempty"`
	RequiredEnergy float64    `json:"requiredEnergy,omitempty"` // 0 = baseline frequency
	DC             int        `json:"dc,omitempty"`             // 0 = default DC
	Effects        Effects    `json:"effects"`
}

// Window restricts an interaction to a turn range. Until 0 is open ended.
type Window struct {
	From  int `json:"from"`
	Until int `json:"until,omitempty"`
}

// Requirements gate which characters can attempt an interaction.
type Requirements struct {
	Attributes map[string]float64 `json:"attributes,omitempty"` // Minimums
	MinLevel   int                `json:"minLevel,omitempty"`
	Resources  map[string]float64 `json:"resources,omitempty"` // Minimum node+world pool
	Window     *Window            `json:"window,omitempty"`
}

// TurnBased describes how a time-bounded event unfolds.
type TurnBased struct {
	Duration   int    `json:"duration"`
	Initiative string `json:"initiative,omitempty"`
	Timing     string `json:"timing,omitempty"`
	Sequencing string `json:"sequencing,omitempty"`
}

// Interaction is a parameterized action with requirements and branches.
type Interaction struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Type          InteractionType    `json:"type"`
	Requirements  Requirements       `json:"requirements"`
	Branches      []Branch           `json:"branches"`
	Modifiers     map[string]float64 `json:"modifiers,omitempty"` // Attribute → roll weight
	Cooldown      int                `json:"cooldown,omitempty"`  // Turns
	LastTriggered *int               `json:"lastTriggered,omitempty"`
	Once          bool               `json:"once,omitempty"` // Not repeatable
	TurnBased     *TurnBased         `json:"turnBased,omitempty"`
	Source        string             `json:"source,omitempty"` // Encounter id when projected
}

// Branch returns the branch with the given id.
func (i *Interaction) Branch(id string) (*Branch, bool) {
	for k := range i.Branches {
		if i.Branches[k].ID == id {
			return &i.Branches[k], true
		}
	}
	return nil, false
}
