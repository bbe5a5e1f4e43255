// Package persistence stores world state, history events, and encounter
// snapshots in SQLite.
package persistence

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/talgya/turnworld/internal/encounter"
	"github.com/talgya/turnworld/internal/history"
	"github.com/talgya/turnworld/internal/world"
)

const (
	blobInteractions = "interactions"
	blobEncounters   = "encounters"

	metaTime      = "time"
	metaWorldName = "world_name"
	metaResources = "resources"
)

// DB wraps a SQLite connection for world state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS characters (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		level INTEGER NOT NULL,
		node_id TEXT NOT NULL,
		frequency REAL NOT NULL,
		coherence REAL NOT NULL,
		position INTEGER NOT NULL,
		attributes_json TEXT NOT NULL,
		goals_json TEXT NOT NULL,
		assigned_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		pos_q INTEGER NOT NULL,
		pos_r INTEGER NOT NULL,
		position INTEGER NOT NULL,
		connections_json TEXT NOT NULL,
		properties_json TEXT NOT NULL,
		resources_json TEXT NOT NULL,
		interactions_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		turn INTEGER NOT NULL,
		timestamp_ns INTEGER NOT NULL,
		character_id TEXT NOT NULL,
		character_name TEXT NOT NULL,
		interaction_id TEXT NOT NULL,
		interaction_name TEXT NOT NULL,
		branch_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		roll INTEGER NOT NULL,
		dc INTEGER NOT NULL,
		significance REAL NOT NULL,
		narrative TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS blobs (
		name TEXT PRIMARY KEY,
		saved_at INTEGER NOT NULL,
		payload BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_turn ON events(turn);
	CREATE INDEX IF NOT EXISTS idx_events_character ON events(character_id);
	CREATE INDEX IF NOT EXISTS idx_characters_node ON characters(node_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Save writes the full world state (full replace). It satisfies the
// simulation's persistence collaborator.
func (db *DB) Save(s *world.State) error {
	if s == nil {
		return errors.New("save: nil state")
	}
	slog.Debug("saving world state", "turn", s.Time, "nodes", len(s.Nodes), "characters", len(s.NPCs))

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := saveNodes(tx, s.Nodes); err != nil {
		return fmt.Errorf("save nodes: %w", err)
	}
	if err := saveCharacters(tx, s.NPCs); err != nil {
		return fmt.Errorf("save characters: %w", err)
	}
	if err := putBlob(tx, blobInteractions, s.Interactions); err != nil {
		return fmt.Errorf("save interactions: %w", err)
	}
	resources, err := json.Marshal(s.Resources)
	if err != nil {
		return fmt.Errorf("marshal resources: %w", err)
	}
	meta := map[string]string{
		metaTime:      strconv.Itoa(s.Time),
		metaWorldName: s.WorldName,
		metaResources: string(resources),
	}
	for k, v := range meta {
		if _, err := tx.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	return tx.Commit()
}

func saveNodes(tx *sqlx.Tx, nodes []world.Node) error {
	if _, err := tx.Exec("DELETE FROM nodes"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO nodes
		(id, name, type, pos_q, pos_r, position,
		 connections_json, properties_json, resources_json, interactions_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, n := range nodes {
		cols, err := encodeColumns(n.Connections, n.Properties, n.Resources, n.Interactions)
		if err != nil {
			return fmt.Errorf("encode node %s: %w", n.ID, err)
		}
		args := append([]any{n.ID, n.Name, n.Type, n.Position.Q, n.Position.R, i}, cols...)
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("insert node %s: %w", n.ID, err)
		}
	}
	return nil
}

func saveCharacters(tx *sqlx.Tx, chars []world.Character) error {
	if _, err := tx.Exec("DELETE FROM characters"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO characters
		(id, name, level, node_id, frequency, coherence, position,
		 attributes_json, goals_json, assigned_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, c := range chars {
		cols, err := encodeColumns(c.Attributes, c.Goals, c.AssignedInteractions)
		if err != nil {
			return fmt.Errorf("encode character %s: %w", c.ID, err)
		}
		args := append([]any{c.ID, c.Name, c.Level, c.CurrentNodeID,
			c.Consciousness.Frequency, c.Consciousness.Coherence, i}, cols...)
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("insert character %s: %w", c.ID, err)
		}
	}
	return nil
}

// encodeColumns marshals each value to a JSON text column.
func encodeColumns(values ...any) ([]any, error) {
	cols := make([]any, len(values))
	for i, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		cols[i] = string(b)
	}
	return cols, nil
}

type nodeRow struct {
	ID           string `db:"id"`
	Name         string `db:"name"`
	Type         string `db:"type"`
	Q            int    `db:"pos_q"`
	R            int    `db:"pos_r"`
	Connections  string `db:"connections_json"`
	Properties   string `db:"properties_json"`
	Resources    string `db:"resources_json"`
	Interactions string `db:"interactions_json"`
}

type characterRow struct {
	ID        string  `db:"id"`
	Name      string  `db:"name"`
	Level     int     `db:"level"`
	NodeID    string  `db:"node_id"`
	Frequency float64 `db:"frequency"`
	Coherence float64 `db:"coherence"`
	Attrs     string  `db:"attributes_json"`
	Goals     string  `db:"goals_json"`
	Assigned  string  `db:"assigned_json"`
}

// Load reads the last saved world state. It returns nil, nil when nothing
// has been saved yet.
func (db *DB) Load() (*world.State, error) {
	turn, err := db.GetMeta(metaTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load time: %w", err)
	}

	s := &world.State{}
	if s.Time, err = strconv.Atoi(turn); err != nil {
		return nil, fmt.Errorf("parse time %q: %w", turn, err)
	}
	if s.WorldName, err = db.GetMeta(metaWorldName); err != nil {
		return nil, fmt.Errorf("load world name: %w", err)
	}
	res, err := db.GetMeta(metaResources)
	if err != nil {
		return nil, fmt.Errorf("load resources: %w", err)
	}
	if err := json.Unmarshal([]byte(res), &s.Resources); err != nil {
		return nil, fmt.Errorf("decode resources: %w", err)
	}

	var nodes []nodeRow
	if err := db.conn.Select(&nodes, `SELECT id, name, type, pos_q, pos_r,
		connections_json, properties_json, resources_json, interactions_json
		FROM nodes ORDER BY position`); err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	for _, r := range nodes {
		n := world.Node{ID: r.ID, Name: r.Name, Type: r.Type, Position: world.HexCoord{Q: r.Q, R: r.R}}
		if err := decodeColumns(
			r.Connections, &n.Connections,
			r.Properties, &n.Properties,
			r.Resources, &n.Resources,
			r.Interactions, &n.Interactions,
		); err != nil {
			return nil, fmt.Errorf("decode node %s: %w", r.ID, err)
		}
		s.Nodes = append(s.Nodes, n)
	}

	var chars []characterRow
	if err := db.conn.Select(&chars, `SELECT id, name, level, node_id, frequency, coherence,
		attributes_json, goals_json, assigned_json
		FROM characters ORDER BY position`); err != nil {
		return nil, fmt.Errorf("load characters: %w", err)
	}
	for _, r := range chars {
		c := world.Character{
			ID:            r.ID,
			Name:          r.Name,
			Level:         r.Level,
			CurrentNodeID: r.NodeID,
			Consciousness: world.Consciousness{Frequency: r.Frequency, Coherence: r.Coherence},
		}
		if err := json.Unmarshal([]byte(r.Attrs), &c.Attributes); err != nil {
			return nil, fmt.Errorf("decode character %s attributes: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(r.Goals), &c.Goals); err != nil {
			return nil, fmt.Errorf("decode character %s goals: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(r.Assigned), &c.AssignedInteractions); err != nil {
			return nil, fmt.Errorf("decode character %s interactions: %w", r.ID, err)
		}
		s.NPCs = append(s.NPCs, c)
	}

	if _, err := db.getBlob(blobInteractions, &s.Interactions); err != nil {
		return nil, fmt.Errorf("load interactions: %w", err)
	}
	return s, nil
}

// decodeColumns unmarshals (json, destination) pairs in order.
func decodeColumns(pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := json.Unmarshal([]byte(pairs[i].(string)), pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

type eventRow struct {
	ID              string  `db:"id"`
	Turn            int     `db:"turn"`
	TimestampNS     int64   `db:"timestamp_ns"`
	CharacterID     string  `db:"character_id"`
	CharacterName   string  `db:"character_name"`
	InteractionID   string  `db:"interaction_id"`
	InteractionName string  `db:"interaction_name"`
	BranchID        string  `db:"branch_id"`
	Outcome         string  `db:"outcome"`
	Roll            int     `db:"roll"`
	DC              int     `db:"dc"`
	Significance    float64 `db:"significance"`
	Narrative       string  `db:"narrative"`
}

func (r eventRow) event() history.Event {
	return history.Event{
		ID:              r.ID,
		Turn:            r.Turn,
		Timestamp:       time.Unix(0, r.TimestampNS).UTC(),
		CharacterID:     r.CharacterID,
		CharacterName:   r.CharacterName,
		InteractionID:   r.InteractionID,
		InteractionName: r.InteractionName,
		BranchID:        r.BranchID,
		Outcome:         history.Outcome(r.Outcome),
		Roll:            r.Roll,
		DC:              r.DC,
		Significance:    r.Significance,
		Narrative:       r.Narrative,
	}
}

// SaveEvents appends history events. Events already stored are skipped.
func (db *DB) SaveEvents(events []history.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.Exec(`INSERT OR IGNORE INTO events
			(id, turn, timestamp_ns, character_id, character_name, interaction_id,
			 interaction_name, branch_id, outcome, roll, dc, significance, narrative)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Turn, e.Timestamp.UnixNano(), e.CharacterID, e.CharacterName, e.InteractionID,
			e.InteractionName, e.BranchID, string(e.Outcome), e.Roll, e.DC, e.Significance, e.Narrative,
		)
		if err != nil {
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(limit int) ([]history.Event, error) {
	var rows []eventRow
	err := db.conn.Select(&rows,
		`SELECT id, turn, timestamp_ns, character_id, character_name, interaction_id,
			interaction_name, branch_id, outcome, roll, dc, significance, narrative
		FROM events ORDER BY seq DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	events := make([]history.Event, len(rows))
	for i, r := range rows {
		events[i] = r.event()
	}
	return events, nil
}

// EventsForCharacter returns every stored event for a character, oldest first.
func (db *DB) EventsForCharacter(characterID string) ([]history.Event, error) {
	var rows []eventRow
	err := db.conn.Select(&rows,
		`SELECT id, turn, timestamp_ns, character_id, character_name, interaction_id,
			interaction_name, branch_id, outcome, roll, dc, significance, narrative
		FROM events WHERE character_id = ? ORDER BY seq`,
		characterID,
	)
	if err != nil {
		return nil, err
	}
	events := make([]history.Event, len(rows))
	for i, r := range rows {
		events[i] = r.event()
	}
	return events, nil
}

// SaveEncounters stores the encounter registry snapshot.
func (db *DB) SaveEncounters(snap encounter.Snapshot) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := putBlob(tx, blobEncounters, snap); err != nil {
		return fmt.Errorf("save encounters: %w", err)
	}
	return tx.Commit()
}

// LoadEncounters reads the encounter registry snapshot, or nil when none was saved.
func (db *DB) LoadEncounters() (*encounter.Snapshot, error) {
	var snap encounter.Snapshot
	ok, err := db.getBlob(blobEncounters, &snap)
	if err != nil {
		return nil, fmt.Errorf("load encounters: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// putBlob stores v as zstd-compressed JSON.
func putBlob(tx *sqlx.Tx, name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err = tx.Exec("INSERT OR REPLACE INTO blobs (name, saved_at, payload) VALUES (?, ?, ?)",
		name, time.Now().Unix(), buf.Bytes())
	return err
}

// getBlob decodes a stored blob into v. It reports false when the blob is absent.
func (db *DB) getBlob(name string, v any) (bool, error) {
	var payload []byte
	err := db.conn.Get(&payload, "SELECT payload FROM blobs WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	dec, err := zstd.NewReader(bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	defer dec.Close()

	raw, err := io.ReadAll(dec)
	if err != nil {
		return false, fmt.Errorf("decompress %s: %w", name, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}
