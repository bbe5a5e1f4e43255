package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/talgya/turnworld/internal/simerr"
)

// BoltStore keeps templates in a BoltDB file, one bucket per kind.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens (creating if needed) a template database at path.
func OpenBolt(path string) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("template store path is required")
	}
	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open template db: %w", err)
	}
	store := &BoltStore{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetTemplate fetches one template by kind and id.
func (s *BoltStore) GetTemplate(ctx context.Context, kind Kind, id string) (Template, error) {
	if err := ctx.Err(); err != nil {
		return Template{}, err
	}
	var tmpl Template
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(kind))
		if bucket == nil {
			return simerr.InvalidInput("getTemplate", "unknown template kind "+string(kind))
		}
		payload := bucket.Get([]byte(id))
		if payload == nil {
			return simerr.NotFound("getTemplate", string(kind)+" template", id)
		}
		if err := json.Unmarshal(payload, &tmpl); err != nil {
			return fmt.Errorf("unmarshal template %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return Template{}, err
	}
	return tmpl, nil
}

// GetAllTemplates lists the templates of one kind ordered by id.
func (s *BoltStore) GetAllTemplates(ctx context.Context, kind Kind) ([]Template, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Template
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(kind))
		if bucket == nil {
			return simerr.InvalidInput("getAllTemplates", "unknown template kind "+string(kind))
		}
		return bucket.ForEach(func(k, v []byte) error {
			var tmpl Template
			if err := json.Unmarshal(v, &tmpl); err != nil {
				return fmt.Errorf("unmarshal template %s: %w", k, err)
			}
			out = append(out, tmpl)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortTemplates(out)
	return out, nil
}

// AddTemplate stores tmpl under kind, replacing any template with the same id.
func (s *BoltStore) AddTemplate(ctx context.Context, kind Kind, tmpl Template) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkTemplate("addTemplate", kind, tmpl); err != nil {
		return err
	}
	tmpl.Kind = kind
	payload, err := json.Marshal(tmpl)
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(kind))
		if bucket == nil {
			return errors.New(string(kind) + " bucket is missing")
		}
		return bucket.Put([]byte(tmpl.ID), payload)
	})
}

func (s *BoltStore) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, kind := range Kinds {
			if _, err := tx.CreateBucketIfNotExists([]byte(kind)); err != nil {
				return fmt.Errorf("create %s bucket: %w", kind, err)
			}
		}
		return nil
	})
}
