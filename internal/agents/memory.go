// Character memory stream — remembered outcomes of past interactions that
// bias future behavior selection.
package agents

import (
	"math"
	"sort"

	"github.com/talgya/turnworld/internal/history"
	"github.com/talgya/turnworld/internal/phi"
)

// MaxMemories caps each character's stream.
const MaxMemories = 50

// Memory records one remembered interaction outcome.
type Memory struct {
	Turn          int             `json:"turn"`
	InteractionID string          `json:"interaction_id"`
	Outcome       history.Outcome `json:"outcome"`
	Significance  float64         `json:"significance"` // 0.0–1.0
}

// MemoryService keeps a bounded memory stream per character and turns it into
// a selection-bias signal.
type MemoryService struct {
	streams map[string][]Memory
}

// NewMemoryService returns an empty memory service.
func NewMemoryService() *MemoryService {
	return &MemoryService{streams: make(map[string][]Memory)}
}

// Record appends a memory to a character's stream. When full, the memory
// with the lowest decayed significance is evicted to make room, the oldest
// losing ties.
func (s *MemoryService) Record(characterID string, m Memory) {
	stream := s.streams[characterID]
	if len(stream) < MaxMemories {
		s.streams[characterID] = append(stream, m)
		return
	}

	now := m.Turn
	for _, old := range stream {
		now = max(now, old.Turn)
	}
	evict := 0
	for i := 1; i < len(stream); i++ {
		ri, re := retention(stream[i], now), retention(stream[evict], now)
		if ri < re || (ri == re && stream[i].Turn < stream[evict].Turn) {
			evict = i
		}
	}
	stream[evict] = m
}

// retention is a memory's significance discounted by MemoryDecay per turn of
// age at turn now.
func retention(m Memory, now int) float64 {
	age := max(now-m.Turn, 0)
	return m.Significance * math.Pow(phi.MemoryDecay, float64(age))
}

// RecordEvent remembers a history event for its character.
func (s *MemoryService) RecordEvent(ev history.Event) {
	s.Record(ev.CharacterID, Memory{
		Turn:          ev.Turn,
		InteractionID: ev.InteractionID,
		Outcome:       ev.Outcome,
		Significance:  ev.Significance,
	})
}

// Influence returns the memory term of an interaction's selection weight for
// a character at turn now. Each remembered outcome with the interaction
// contributes its score discounted by MemoryDecay per turn of age; the sum is
// clamped to ±MemoryInfluenceCap.
func (s *MemoryService) Influence(characterID, interactionID string, now int) float64 {
	total := 0.0
	for _, m := range s.streams[characterID] {
		if m.InteractionID != interactionID {
			continue
		}
		age := now - m.Turn
		if age < 0 {
			age = 0
		}
		total += m.Outcome.Score() * math.Pow(phi.MemoryDecay, float64(age))
	}
	return math.Max(-phi.MemoryInfluenceCap, math.Min(phi.MemoryInfluenceCap, total))
}

// Recent returns the most recent N memories ordered by turn descending.
// count <= 0 returns the whole stream.
func (s *MemoryService) Recent(characterID string, count int) []Memory {
	return s.sorted(characterID, count, func(a, b Memory) bool { return a.Turn > b.Turn })
}

// Important returns the top N memories by significance.
func (s *MemoryService) Important(characterID string, count int) []Memory {
	return s.sorted(characterID, count, func(a, b Memory) bool { return a.Significance > b.Significance })
}

func (s *MemoryService) sorted(characterID string, count int, less func(a, b Memory) bool) []Memory {
	stream := s.streams[characterID]
	if len(stream) == 0 {
		return nil
	}

	sorted := make([]Memory, len(stream))
	copy(sorted, stream)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })

	if count <= 0 || count > len(sorted) {
		count = len(sorted)
	}
	return sorted[:count]
}

// Reset forgets every stream.
func (s *MemoryService) Reset() {
	s.streams = make(map[string][]Memory)
}
