// Package history records what happened in the world as an append-only log of
// events and turns them into narrative text.
package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcome is the result category of a resolved interaction or encounter.
type Outcome string

const (
	OutcomeCriticalSuccess Outcome = "critical_success"
	OutcomeSuccess         Outcome = "success"
	OutcomeFailure         Outcome = "failure"
	OutcomeCriticalFailure Outcome = "critical_failure"
	OutcomeEncounter       Outcome = "encounter"
)

// Succeeded reports whether o counts as a success.
func (o Outcome) Succeeded() bool {
	return o == OutcomeSuccess || o == OutcomeCriticalSuccess
}

// Score maps an outcome to a signed memory weight.
func (o Outcome) Score() float64 {
	switch o {
	case OutcomeCriticalSuccess:
		return 0.2
	case OutcomeSuccess:
		return 0.1
	case OutcomeFailure:
		return -0.1
	case OutcomeCriticalFailure:
		return -0.2
	default:
		return 0
	}
}

// Event is an immutable record of something that happened.
type Event struct {
	ID              string    `json:"id" db:"id"`
	Turn            int       `json:"turn" db:"turn"`
	Timestamp       time.Time `json:"timestamp" db:"timestamp"`
	CharacterID     string    `json:"character" db:"character_id"`
	CharacterName   string    `json:"characterName" db:"character_name"`
	InteractionID   string    `json:"interaction" db:"interaction_id"`
	InteractionName string    `json:"interactionName" db:"interaction_name"`
	BranchID        string    `json:"branch" db:"branch_id"`
	Outcome         Outcome   `json:"outcome" db:"outcome"`
	Roll            int       `json:"roll" db:"roll"`
	DC              int       `json:"dc" db:"dc"`
	Significance    float64   `json:"significance" db:"significance"`
	Narrative       string    `json:"narrative" db:"narrative"`
}

// Generator appends events and produces narrative text. It is not safe for
// concurrent use; the simulation drives it from a single goroutine.
type Generator struct {
	events []Event
	now    func() time.Time
}

// NewGenerator creates an empty log. A nil clock defaults to time.Now.
func NewGenerator(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// Append stamps ev with an id, timestamp, significance, and narrative (when
// unset) and appends it. The stored copy is returned.
func (g *Generator) Append(ev Event) Event {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = g.now().UTC()
	}
	if ev.Significance == 0 {
		ev.Significance = Significance(ev.Outcome)
	}
	if ev.Narrative == "" {
		ev.Narrative = Narrate(ev)
	}
	g.events = append(g.events, ev)
	return ev
}

// Events returns a copy of the full log in append order.
func (g *Generator) Events() []Event {
	return append([]Event(nil), g.events...)
}

// Len returns the number of recorded events.
func (g *Generator) Len() int {
	return len(g.events)
}

// ForCharacter returns every event involving a character.
func (g *Generator) ForCharacter(characterID string) []Event {
	var out []Event
	for _, e := range g.events {
		if e.CharacterID == characterID {
			out = append(out, e)
		}
	}
	return out
}

// ForInteraction returns a character's past events with one interaction.
func (g *Generator) ForInteraction(characterID, interactionID string) []Event {
	var out []Event
	for _, e := range g.events {
		if e.CharacterID == characterID && e.InteractionID == interactionID {
			out = append(out, e)
		}
	}
	return out
}

// Since returns events recorded at or after turn.
func (g *Generator) Since(turn int) []Event {
	var out []Event
	for _, e := range g.events {
		if e.Turn >= turn {
			out = append(out, e)
		}
	}
	return out
}

// Clear drops the whole log. Used when the simulation is reset.
func (g *Generator) Clear() {
	g.events = nil
}

// Trim drops the oldest events so at most max remain.
func (g *Generator) Trim(max int) {
	if max >= 0 && len(g.events) > max {
		g.events = append([]Event(nil), g.events[len(g.events)-max:]...)
	}
}

// Significance derives how notable an outcome is.
func Significance(o Outcome) float64 {
	switch o {
	case OutcomeCriticalSuccess, OutcomeCriticalFailure:
		return 0.9
	case OutcomeEncounter:
		return 0.7
	case OutcomeSuccess:
		return 0.5
	default:
		return 0.4
	}
}

// Narrate renders a one-line description of an event.
func Narrate(ev Event) string {
	who := ev.CharacterName
	if who == "" {
		who = ev.CharacterID
	}
	what := ev.InteractionName
	if what == "" {
		what = ev.InteractionID
	}

	switch ev.Outcome {
	case OutcomeCriticalSuccess:
		return fmt.Sprintf("%s triumphed at %s (rolled %d against %d)", who, what, ev.Roll, ev.DC)
	case OutcomeSuccess:
		return fmt.Sprintf("%s succeeded at %s (rolled %d against %d)", who, what, ev.Roll, ev.DC)
	case OutcomeFailure:
		return fmt.Sprintf("%s failed at %s (rolled %d against %d)", who, what, ev.Roll, ev.DC)
	case OutcomeCriticalFailure:
		return fmt.Sprintf("%s blundered badly at %s (rolled %d against %d)", who, what, ev.Roll, ev.DC)
	case OutcomeEncounter:
		if ev.BranchID != "" {
			return fmt.Sprintf("%s came to an end: %s", what, ev.BranchID)
		}
		return fmt.Sprintf("%s came to an end", what)
	default:
		return fmt.Sprintf("%s attempted %s", who, what)
	}
}

// Chronicle joins the narratives of the events recorded for a turn.
func (g *Generator) Chronicle(turn int) string {
	var lines []string
	for _, e := range g.events {
		if e.Turn == turn {
			lines = append(lines, e.Narrative)
		}
	}
	if len(lines) == 0 {
		return fmt.Sprintf("Turn %d passed quietly.", turn)
	}
	return strings.Join(lines, ". ") + "."
}
