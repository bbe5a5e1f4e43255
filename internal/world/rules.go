package world

// Available reports whether an interaction can be attempted at turn t: its
// cooldown has elapsed, a one-shot interaction has not fired, and t falls
// inside its window.
func Available(in *Interaction, t int) bool {
	if in.LastTriggered != nil {
		if in.Once {
			return false
		}
		if t-*in.LastTriggered < in.Cooldown {
			return false
		}
	}
	if w := in.Requirements.Window; w != nil {
		if t < w.From {
			return false
		}
		if w.Until > 0 && t > w.Until {
			return false
		}
	}
	return true
}

// Satisfies reports whether c meets the requirements of in while standing at
// node. Resource minimums are checked against the node pool plus the world pool.
func Satisfies(c *Character, in *Interaction, node *Node, worldResources map[string]float64) bool {
	req := in.Requirements
	if c.Level < req.MinLevel {
		return false
	}
	for attr, min := range req.Attributes {
		if c.Attributes[attr] < min {
			return false
		}
	}
	for res, min := range req.Resources {
		have := worldResources[res]
		if node != nil {
			have += node.Resources[res]
		}
		if have < min {
			return false
		}
	}
	return true
}

// Candidates returns the interactions a character could consider: those
// reachable from its node plus its assigned interactions, deduplicated, in
// that order. Unknown ids are skipped.
func Candidates(s *State, c *Character, node *Node) []*Interaction {
	seen := make(map[string]bool)
	var out []*Interaction
	add := func(ids []string) {
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			if in, ok := s.Interaction(id); ok {
				out = append(out, in)
			}
		}
	}
	if node != nil {
		add(node.Interactions)
	}
	add(c.AssignedInteractions)
	return out
}

// ApplyResources adds deltas to the node pool when the node already tracks a
// resource, otherwise to the world pool. Pools never go below zero.
func ApplyResources(s *State, nodeID string, deltas map[string]float64) bool {
	changed := false
	node, _ := s.Node(nodeID)
	for res, d := range deltas {
		if d == 0 {
			continue
		}
		if node != nil {
			if v, ok := node.Resources[res]; ok {
				node.Resources[res] = nonNegative(v + d)
				changed = true
				continue
			}
		}
		if s.Resources == nil {
			s.Resources = make(map[string]float64)
		}
		s.Resources[res] = nonNegative(s.Resources[res] + d)
		changed = true
	}
	return changed
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
