package builder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/talgya/turnworld/internal/simerr"
)

const worldSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "dimensions": {
      "type": "object",
      "properties": {
        "width": {"type": "integer", "minimum": 0},
        "height": {"type": "integer", "minimum": 0}
      }
    },
    "rules": {
      "type": "object",
      "properties": {
        "description": {"type": "string"},
        "maxTurns": {"type": "integer", "minimum": 0},
        "baselineFrequency": {"type": "number", "minimum": 0},
        "historyLimit": {"type": "integer", "minimum": 0}
      }
    },
    "initialConditions": {
      "type": "object",
      "properties": {
        "description": {"type": "string"},
        "resources": {"$ref": "#/$defs/amounts"},
        "seed": {"type": "integer"},
        "generateResources": {"type": "boolean"}
      }
    },
    "nodes": {"type": "array", "items": {"$ref": "#/$defs/node"}},
    "characters": {"type": "array", "items": {"$ref": "#/$defs/character"}},
    "interactions": {"type": "array", "items": {"$ref": "#/$defs/interaction"}},
    "events": {"type": "array", "items": {"$ref": "#/$defs/event"}},
    "groups": {"type": "array", "items": {"type": "object", "required": ["id"]}},
    "items": {"type": "array", "items": {"type": "object", "required": ["id"]}}
  },
  "$defs": {
    "amounts": {"type": "object", "additionalProperties": {"type": "number"}},
    "ids": {"type": "array", "items": {"type": "string"}},
    "node": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "name": {"type": "string"},
        "type": {"type": "string"},
        "position": {
          "type": "object",
          "properties": {"q": {"type": "integer"}, "r": {"type": "integer"}}
        },
        "connections": {"$ref": "#/$defs/ids"},
        "properties": {"type": "object", "additionalProperties": {"type": "string"}},
        "resources": {"$ref": "#/$defs/amounts"},
        "interactions": {"$ref": "#/$defs/ids"}
      }
    },
    "character": {
      "type": "object",
      "required": ["id", "name"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "name": {"type": "string"},
        "level": {"type": "integer", "minimum": 0},
        "attributes": {"$ref": "#/$defs/amounts"},
        "consciousness": {
          "type": "object",
          "properties": {
            "frequency": {"type": "number", "minimum": 0},
            "coherence": {"type": "number", "minimum": 0, "maximum": 1}
          }
        },
        "goals": {
          "type": "array",
          "items": {"type": "object", "required": ["id"]}
        },
        "assignedInteractions": {"$ref": "#/$defs/ids"},
        "currentNodeId": {"type": "string"}
      }
    },
    "effects": {
      "type": "object",
      "properties": {
        "attributes": {"$ref": "#/$defs/amounts"},
        "resources": {"$ref": "#/$defs/amounts"},
        "coherence": {"type": "number"},
        "frequency": {"type": "number"}
      }
    },
    "interaction": {
      "type": "object",
      "required": ["id", "branches"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "name": {"type": "string"},
        "type": {"enum": ["social", "combat", "economic", "exploration", "encounter"]},
        "cooldown": {"type": "integer", "minimum": 0},
        "once": {"type": "boolean"},
        "modifiers": {"$ref": "#/$defs/amounts"},
        "branches": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["id"],
            "properties": {
              "id": {"type": "string", "minLength": 1},
              "probability": {"type": "number", "minimum": 0},
              "requiredEnergy": {"type": "number", "minimum": 0},
              "dc": {"type": "integer", "minimum": 0},
              "effects": {"$ref": "#/$defs/effects"}
            }
          }
        }
      }
    },
    "event": {
      "type": "object",
      "required": ["id", "turnBased", "outcomes"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "name": {"type": "string"},
        "type": {"type": "string"},
        "cooldown": {"type": "integer", "minimum": 0},
        "turnBased": {
          "type": "object",
          "required": ["duration"],
          "properties": {"duration": {"type": "integer", "minimum": 1}}
        },
        "triggers": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["type"],
            "properties": {"type": {"enum": ["probability", "location", "attribute", "periodic", "proximity"]}}
          }
        },
        "outcomes": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["id", "probability"],
            "properties": {
              "id": {"type": "string", "minLength": 1},
              "probability": {"type": "number", "minimum": 0},
              "effects": {"$ref": "#/$defs/effects"}
            }
          }
        },
        "nodeRestrictions": {"$ref": "#/$defs/ids"}
      }
    }
  }
}`

// TemplateValidator checks raw world documents against the world schema
// before they are decoded into typed structs.
type TemplateValidator struct {
	schema *jsonschema.Schema
}

// NewTemplateValidator compiles the world schema.
func NewTemplateValidator() (*TemplateValidator, error) {
	s, err := jsonschema.CompileString("world.schema.json", worldSchema)
	if err != nil {
		return nil, fmt.Errorf("compile world schema: %w", err)
	}
	return &TemplateValidator{schema: s}, nil
}

// Validate checks a JSON document. Schema violations are returned as an
// invalid-input error listing each failing location.
func (v *TemplateValidator) Validate(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return simerr.InvalidInput("validateWorld", "not a JSON document: "+err.Error())
	}
	if err := v.schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return simerr.InvalidInput("validateWorld", violations(ve)...)
		}
		return fmt.Errorf("validate world: %w", err)
	}
	return nil
}

func violations(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{loc + ": " + ve.Message}
	}
	var out []string
	for _, c := range ve.Causes {
		out = append(out, violations(c)...)
	}
	return out
}

// DecodeJSON validates and decodes a JSON world document.
func (v *TemplateValidator) DecodeJSON(raw []byte) (WorldConfig, error) {
	if err := v.Validate(raw); err != nil {
		return WorldConfig{}, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	var cfg WorldConfig
	if err := dec.Decode(&cfg); err != nil {
		return WorldConfig{}, simerr.InvalidInput("decodeWorld", err.Error())
	}
	cfg.IsValid, cfg.IsComplete = false, false
	return cfg, nil
}

// DecodeYAML converts a YAML world document to JSON, then validates and
// decodes it like DecodeJSON.
func (v *TemplateValidator) DecodeYAML(raw []byte) (WorldConfig, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return WorldConfig{}, simerr.InvalidInput("decodeWorld", "not a YAML document: "+err.Error())
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return WorldConfig{}, simerr.InvalidInput("decodeWorld", err.Error())
	}
	return v.DecodeJSON(js)
}

// LoadFile reads a world document, choosing the decoder by extension.
func (v *TemplateValidator) LoadFile(path string) (WorldConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return WorldConfig{}, fmt.Errorf("read world file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return v.DecodeYAML(raw)
	case ".json":
		return v.DecodeJSON(raw)
	default:
		return WorldConfig{}, simerr.InvalidInput("loadWorld", "unsupported world file "+filepath.Base(path))
	}
}
