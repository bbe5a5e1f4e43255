package builder

import (
	"maps"
	"time"

	"github.com/talgya/turnworld/internal/encounter"
	"github.com/talgya/turnworld/internal/world"
)

// Dimensions bound the hex map the nodes are laid out on.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rules tune how the simulation runs.
type Rules struct {
	Description       string  `json:"description"`
	MaxTurns          int     `json:"maxTurns,omitempty"`          // 0 = unbounded
	BaselineFrequency float64 `json:"baselineFrequency,omitempty"` // 0 = default
	HistoryLimit      int     `json:"historyLimit,omitempty"`      // Turn summaries kept; 0 = default
}

// InitialConditions describe the world pool at turn zero.
type InitialConditions struct {
	Description       string             `json:"description"`
	Resources         map[string]float64 `json:"resources,omitempty"`
	Seed              int64              `json:"seed,omitempty"`
	GenerateResources bool               `json:"generateResources,omitempty"`
}

func (ic InitialConditions) empty() bool {
	return ic.Description == "" && len(ic.Resources) == 0
}

// Group is a named set of characters.
type Group struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members,omitempty"`
}

// Item is a named object with free-form properties.
type Item struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Properties map[string]string `json:"properties,omitempty"`
}

// WorldConfig is everything needed to initialize a simulation.
type WorldConfig struct {
	ID                string                `json:"id,omitempty"`
	Name              string                `json:"name"`
	Description       string                `json:"description"`
	Dimensions        Dimensions            `json:"dimensions"`
	Rules             Rules                 `json:"rules"`
	InitialConditions InitialConditions     `json:"initialConditions"`
	Nodes             []world.Node          `json:"nodes"`
	Characters        []world.Character     `json:"characters"`
	Interactions      []world.Interaction   `json:"interactions"`
	Events            []encounter.Encounter `json:"events,omitempty"`
	Groups            []Group               `json:"groups,omitempty"`
	Items             []Item                `json:"items,omitempty"`
	IsValid           bool                  `json:"isValid"`
	IsComplete        bool                  `json:"isComplete"`
	CreatedAt         time.Time             `json:"createdAt,omitzero"`
}

// Clone returns a deep copy of c.
func (c WorldConfig) Clone() WorldConfig {
	c.InitialConditions.Resources = maps.Clone(c.InitialConditions.Resources)

	nodes := make([]world.Node, len(c.Nodes))
	for i, n := range c.Nodes {
		nodes[i] = n.Clone()
	}
	c.Nodes = nodes

	chars := make([]world.Character, len(c.Characters))
	for i, ch := range c.Characters {
		chars[i] = ch.Clone()
	}
	c.Characters = chars

	ins := make([]world.Interaction, len(c.Interactions))
	for i, in := range c.Interactions {
		ins[i] = in.Clone()
	}
	c.Interactions = ins

	if c.Events != nil {
		events := make([]encounter.Encounter, len(c.Events))
		for i, e := range c.Events {
			events[i] = e.Clone()
		}
		c.Events = events
	}
	if c.Groups != nil {
		groups := make([]Group, len(c.Groups))
		for i, g := range c.Groups {
			g.Members = append([]string(nil), g.Members...)
			groups[i] = g
		}
		c.Groups = groups
	}
	if c.Items != nil {
		items := make([]Item, len(c.Items))
		for i, it := range c.Items {
			it.Properties = maps.Clone(it.Properties)
			items[i] = it
		}
		c.Items = items
	}
	return c
}

func (c *WorldConfig) node(id string) *world.Node {
	for i := range c.Nodes {
		if c.Nodes[i].ID == id {
			return &c.Nodes[i]
		}
	}
	return nil
}

func (c *WorldConfig) interaction(id string) *world.Interaction {
	for i := range c.Interactions {
		if c.Interactions[i].ID == id {
			return &c.Interactions[i]
		}
	}
	return nil
}

func (c *WorldConfig) character(id string) *world.Character {
	for i := range c.Characters {
		if c.Characters[i].ID == id {
			return &c.Characters[i]
		}
	}
	return nil
}
