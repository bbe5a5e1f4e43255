// Package templates stores reusable world fragments keyed by kind and id.
package templates

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/talgya/turnworld/internal/simerr"
)

// Kind groups templates.
type Kind string

const (
	KindWorld       Kind = "world"
	KindNode        Kind = "node"
	KindCharacter   Kind = "character"
	KindInteraction Kind = "interaction"
	KindEncounter   Kind = "encounter"
)

// Kinds lists every template kind.
var Kinds = []Kind{KindWorld, KindNode, KindCharacter, KindInteraction, KindEncounter}

// Template is a named, serialized fragment.
type Template struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Store is the template collaborator.
type Store interface {
	GetTemplate(ctx context.Context, kind Kind, id string) (Template, error)
	GetAllTemplates(ctx context.Context, kind Kind) ([]Template, error)
	AddTemplate(ctx context.Context, kind Kind, tmpl Template) error
}

func checkTemplate(op string, kind Kind, tmpl Template) error {
	if !knownKind(kind) {
		return simerr.InvalidInput(op, "unknown template kind "+string(kind))
	}
	if strings.TrimSpace(tmpl.ID) == "" {
		return simerr.InvalidInput(op, "template id is required")
	}
	if len(tmpl.Payload) == 0 || !json.Valid(tmpl.Payload) {
		return simerr.InvalidInput(op, "template "+tmpl.ID+": payload must be JSON")
	}
	return nil
}

func knownKind(kind Kind) bool {
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func sortTemplates(list []Template) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}

// MemoryStore keeps templates in process memory.
type MemoryStore struct {
	byKind map[Kind]map[string]Template
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byKind: make(map[Kind]map[string]Template)}
}

func (m *MemoryStore) GetTemplate(ctx context.Context, kind Kind, id string) (Template, error) {
	if err := ctx.Err(); err != nil {
		return Template{}, err
	}
	tmpl, ok := m.byKind[kind][id]
	if !ok {
		return Template{}, simerr.NotFound("getTemplate", string(kind)+" template", id)
	}
	tmpl.Payload = append(json.RawMessage(nil), tmpl.Payload...)
	return tmpl, nil
}

func (m *MemoryStore) GetAllTemplates(ctx context.Context, kind Kind) ([]Template, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Template, 0, len(m.byKind[kind]))
	for _, tmpl := range m.byKind[kind] {
		tmpl.Payload = append(json.RawMessage(nil), tmpl.Payload...)
		out = append(out, tmpl)
	}
	sortTemplates(out)
	return out, nil
}

func (m *MemoryStore) AddTemplate(ctx context.Context, kind Kind, tmpl Template) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkTemplate("addTemplate", kind, tmpl); err != nil {
		return err
	}
	tmpl.Kind = kind
	tmpl.Payload = append(json.RawMessage(nil), tmpl.Payload...)
	if m.byKind[kind] == nil {
		m.byKind[kind] = make(map[string]Template)
	}
	m.byKind[kind][tmpl.ID] = tmpl
	return nil
}
