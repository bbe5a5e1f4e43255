package history

import (
	"strings"
	"testing"
	"time"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestAppendStampsEvent(t *testing.T) {
	g := NewGenerator(fixedClock)
	ev := g.Append(Event{
		Turn:            1,
		CharacterID:     "c1",
		CharacterName:   "Aria",
		InteractionID:   "barter",
		InteractionName: "Barter",
		Outcome:         OutcomeSuccess,
		Roll:            14,
		DC:              10,
	})

	if ev.ID == "" {
		t.Fatal("expected generated id")
	}
	if !ev.Timestamp.Equal(fixedClock()) {
		t.Fatalf("expected fixed timestamp, got %v", ev.Timestamp)
	}
	if ev.Significance != 0.5 {
		t.Fatalf("expected significance 0.5, got %v", ev.Significance)
	}
	if !strings.Contains(ev.Narrative, "Aria succeeded at Barter") {
		t.Fatalf("unexpected narrative %q", ev.Narrative)
	}
	if g.Len() != 1 {
		t.Fatalf("expected 1 event, got %d", g.Len())
	}
}

func TestQueries(t *testing.T) {
	g := NewGenerator(fixedClock)
	g.Append(Event{Turn: 1, CharacterID: "a", InteractionID: "x", Outcome: OutcomeSuccess})
	g.Append(Event{Turn: 2, CharacterID: "a", InteractionID: "y", Outcome: OutcomeFailure})
	g.Append(Event{Turn: 2, CharacterID: "b", InteractionID: "x", Outcome: OutcomeFailure})

	if n := len(g.ForCharacter("a")); n != 2 {
		t.Fatalf("expected 2 events for a, got %d", n)
	}
	if n := len(g.ForInteraction("a", "x")); n != 1 {
		t.Fatalf("expected 1 event for a/x, got %d", n)
	}
	if n := len(g.Since(2)); n != 2 {
		t.Fatalf("expected 2 events since turn 2, got %d", n)
	}

	events := g.Events()
	events[0].CharacterID = "mutated"
	if g.Events()[0].CharacterID != "a" {
		t.Fatal("Events must return a copy")
	}

	g.Clear()
	if g.Len() != 0 {
		t.Fatal("expected empty log after clear")
	}
}

func TestChronicle(t *testing.T) {
	g := NewGenerator(fixedClock)
	if got := g.Chronicle(3); got != "Turn 3 passed quietly." {
		t.Fatalf("unexpected quiet chronicle %q", got)
	}
	g.Append(Event{Turn: 3, CharacterName: "Bo", InteractionName: "Duel", Outcome: OutcomeCriticalFailure, Roll: 1, DC: 12})
	if got := g.Chronicle(3); !strings.Contains(got, "Bo blundered badly at Duel") {
		t.Fatalf("unexpected chronicle %q", got)
	}
}

func TestOutcomeScore(t *testing.T) {
	if !OutcomeCriticalSuccess.Succeeded() || OutcomeFailure.Succeeded() {
		t.Fatal("unexpected success classification")
	}
	if OutcomeCriticalFailure.Score() >= OutcomeFailure.Score() {
		t.Fatal("critical failure should weigh below failure")
	}
}

func TestTrimKeepsNewest(t *testing.T) {
	g := NewGenerator(fixedClock)
	for turn := 1; turn <= 5; turn++ {
		g.Append(Event{Turn: turn, CharacterID: "aria", Outcome: OutcomeSuccess})
	}
	g.Trim(2)
	events := g.Events()
	if len(events) != 2 || events[0].Turn != 4 || events[1].Turn != 5 {
		t.Fatalf("trimmed events = %+v", events)
	}
	g.Trim(10)
	if g.Len() != 2 {
		t.Fatalf("trim above length changed the log: %d", g.Len())
	}
}
