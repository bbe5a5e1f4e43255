package world

import "maps"

// State is the single mutable world of an active simulation session.
type State struct {
	Time         int                `json:"time"`
	WorldName    string             `json:"worldName"`
	Nodes        []Node             `json:"nodes"`
	NPCs         []Character        `json:"npcs"`
	Interactions []Interaction      `json:"interactions"`
	Resources    map[string]float64 `json:"resources"`
}

// Node returns the node with the given id.
func (s *State) Node(id string) (*Node, bool) {
	for i := range s.Nodes {
		if s.Nodes[i].ID == id {
			return &s.Nodes[i], true
		}
	}
	return nil, false
}

// Interaction returns the interaction with the given id.
func (s *State) Interaction(id string) (*Interaction, bool) {
	for i := range s.Interactions {
		if s.Interactions[i].ID == id {
			return &s.Interactions[i], true
		}
	}
	return nil, false
}

// Character returns the character with the given id.
func (s *State) Character(id string) (*Character, bool) {
	for i := range s.NPCs {
		if s.NPCs[i].ID == id {
			return &s.NPCs[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := &State{
		Time:      s.Time,
		WorldName: s.WorldName,
		Resources: maps.Clone(s.Resources),
	}
	out.Nodes = make([]Node, len(s.Nodes))
	for i, n := range s.Nodes {
		out.Nodes[i] = n.Clone()
	}
	out.NPCs = make([]Character, len(s.NPCs))
	for i, c := range s.NPCs {
		out.NPCs[i] = c.Clone()
	}
	out.Interactions = make([]Interaction, len(s.Interactions))
	for i, in := range s.Interactions {
		out.Interactions[i] = in.Clone()
	}
	return out
}

// Clone returns a deep copy of n.
func (n Node) Clone() Node {
	n.Connections = append([]string(nil), n.Connections...)
	n.Interactions = append([]string(nil), n.Interactions...)
	n.Properties = maps.Clone(n.Properties)
	n.Resources = maps.Clone(n.Resources)
	return n
}

// Clone returns a deep copy of c.
func (c Character) Clone() Character {
	c.Attributes = maps.Clone(c.Attributes)
	c.Goals = append([]Goal(nil), c.Goals...)
	c.AssignedInteractions = append([]string(nil), c.AssignedInteractions...)
	return c
}

// Clone returns a deep copy of i.
func (i Interaction) Clone() Interaction {
	i.Requirements.Attributes = maps.Clone(i.Requirements.Attributes)
	i.Requirements.Resources = maps.Clone(i.Requirements.Resources)
	if i.Requirements.Window != nil {
		w := *i.Requirements.Window
		i.Requirements.Window = &w
	}
	branches := make([]Branch, len(i.Branches))
	for k, b := range i.Branches {
		branches[k] = b.Clone()
	}
	i.Branches = branches
	i.Modifiers = maps.Clone(i.Modifiers)
	if i.LastTriggered != nil {
		t := *i.LastTriggered
		i.LastTriggered = &t
	}
	if i.TurnBased != nil {
		tb := *i.TurnBased
		i.TurnBased = &tb
	}
	return i
}

// Clone returns a deep copy of b.
func (b Branch) Clone() Branch {
	if b.Condition != nil {
		c := *b.Condition
		b.Condition = &c
	}
	b.Effects = b.Effects.Clone()
	return b
}

// Clone returns a deep copy of e.
func (e Effects) Clone() Effects {
	e.Attributes = maps.Clone(e.Attributes)
	e.Resources = maps.Clone(e.Resources)
	return e
}
