package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/turnworld/internal/templates"
)

// SaveAsTemplate stores the config under construction as a world template.
func (b *WorldBuilder) SaveAsTemplate(ctx context.Context, store templates.Store, name string) (templates.Template, error) {
	cfg := b.cfg.Clone()
	cfg.IsValid, cfg.IsComplete = false, false
	payload, err := json.Marshal(cfg)
	if err != nil {
		return templates.Template{}, fmt.Errorf("marshal world config: %w", err)
	}
	if name == "" {
		name = cfg.Name
	}
	tmpl := templates.Template{
		ID:        uuid.New().String(),
		Kind:      templates.KindWorld,
		Name:      name,
		Payload:   payload,
		CreatedAt: b.now().UTC(),
	}
	if err := store.AddTemplate(ctx, templates.KindWorld, tmpl); err != nil {
		return templates.Template{}, fmt.Errorf("save world template: %w", err)
	}
	return tmpl, nil
}

// LoadFromTemplate replaces the config under construction with a stored
// world template. The builder is unchanged on error.
func (b *WorldBuilder) LoadFromTemplate(ctx context.Context, store templates.Store, id string) error {
	tmpl, err := store.GetTemplate(ctx, templates.KindWorld, id)
	if err != nil {
		return fmt.Errorf("load world template: %w", err)
	}
	var cfg WorldConfig
	if err := json.Unmarshal(tmpl.Payload, &cfg); err != nil {
		return fmt.Errorf("decode world template %s: %w", id, err)
	}
	cfg.ID = ""
	cfg.CreatedAt = time.Time{}
	b.cfg = cfg
	b.touch()
	return nil
}
