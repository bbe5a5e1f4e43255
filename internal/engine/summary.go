package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/talgya/turnworld/internal/encounter"
	"github.com/talgya/turnworld/internal/history"
	"github.com/talgya/turnworld/internal/world"
)

// CharacterAction records what one character did during a turn.
type CharacterAction struct {
	CharacterID     string          `json:"characterId"`
	CharacterName   string          `json:"characterName"`
	NodeID          string          `json:"nodeId"`
	InteractionID   string          `json:"interactionId"`
	InteractionName string          `json:"interactionName"`
	BranchID        string          `json:"branchId"`
	BranchName      string          `json:"branchName"`
	Outcome         history.Outcome `json:"outcome"`
	Roll            int             `json:"roll"`
	DC              int             `json:"dc"`
	EventID         string          `json:"eventId"`
}

// Changes lists what a turn touched.
type Changes struct {
	CharactersChanged []string           `json:"charactersChanged"`
	ResourcesChanged  map[string]float64 `json:"resourcesChanged"` // Net requested delta per resource
	EncountersStarted int                `json:"encountersStarted"`
}

// TurnSummary is the immutable record of one processed turn.
type TurnSummary struct {
	Turn             int                `json:"turn"`
	Timestamp        time.Time          `json:"timestamp"`
	ProcessingTime   time.Duration      `json:"processingTime"`
	Events           []history.Event    `json:"events"`
	CharacterActions []CharacterAction  `json:"characterActions"`
	EncounterResults []encounter.Result `json:"encounterResults"`
	Changes          Changes            `json:"changes"`
	Summary          string             `json:"summary"`
}

// TurnResult is what ProcessTurn hands back to its caller.
type TurnResult struct {
	Success bool         `json:"success"`
	State   *world.State `json:"worldState"`
	Summary TurnSummary  `json:"turnSummary"`
}

type turnChanges struct {
	chars     map[string]bool
	deltas    map[string]float64
	encounter int
}

func newTurnChanges() *turnChanges {
	return &turnChanges{chars: make(map[string]bool), deltas: make(map[string]float64)}
}

func (tc *turnChanges) character(id string) {
	tc.chars[id] = true
}

func (tc *turnChanges) resources(deltas map[string]float64) {
	for k, v := range deltas {
		tc.deltas[k] += v
	}
}

func (tc *turnChanges) encounterStarted() {
	tc.encounter++
}

func (tc *turnChanges) changes() Changes {
	ids := make([]string, 0, len(tc.chars))
	for id := range tc.chars {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return Changes{CharactersChanged: ids, ResourcesChanged: tc.deltas, EncountersStarted: tc.encounter}
}

// summarize builds the human-readable line for a turn.
func summarize(ts TurnSummary, chronicle string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Turn %d: ", ts.Turn)
	switch n := len(ts.CharacterActions); n {
	case 0:
		b.WriteString("no one acted")
	case 1:
		b.WriteString("1 character acted")
	default:
		fmt.Fprintf(&b, "%d characters acted", n)
	}

	completed := 0
	for _, r := range ts.EncounterResults {
		if r.Type == encounter.ResultCompleted {
			completed++
		}
	}
	if ts.Changes.EncountersStarted > 0 {
		fmt.Fprintf(&b, ", %d encounter(s) began", ts.Changes.EncountersStarted)
	}
	if completed > 0 {
		fmt.Fprintf(&b, ", %d encounter(s) ended", completed)
	}
	b.WriteString(". ")
	b.WriteString(chronicle)
	return b.String()
}
