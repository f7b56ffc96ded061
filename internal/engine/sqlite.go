package engine

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	persona_id TEXT NOT NULL,
	app_id     TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	PRIMARY KEY (persona_id, app_id, key)
);`

// SQLitePersistence stores persona snapshots as rows of a single kv table.
type SQLitePersistence struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path and applies the schema.
func OpenSQLite(path string) (*SQLitePersistence, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("engine: creating sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("engine: opening sqlite: %w", err)
	}
	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		sqliteSchema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("engine: preparing sqlite: %w", err)
		}
	}
	return &SQLitePersistence{db: db}, nil
}

// Close closes the database connection.
func (p *SQLitePersistence) Close() error {
	return p.db.Close()
}

// SavePersona replaces every row of the persona in one transaction.
func (p *SQLitePersistence) SavePersona(personaID string, data map[string]map[string]any) error {
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM kv WHERE persona_id = ?`, personaID); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO kv (persona_id, app_id, key, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for appID, app := range data {
		for key, val := range app {
			raw, err := json.Marshal(val)
			if err != nil {
				return fmt.Errorf("engine: encoding %s/%s/%s: %w", personaID, appID, key, err)
			}
			if _, err := stmt.Exec(personaID, appID, key, string(raw)); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// LoadAll reads every row back into the nested persona map.
func (p *SQLitePersistence) LoadAll() (map[string]map[string]map[string]any, error) {
	rows, err := p.db.Query(`SELECT persona_id, app_id, key, value FROM kv`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	all := make(map[string]map[string]map[string]any)
	for rows.Next() {
		var personaID, appID, key, raw string
		if err := rows.Scan(&personaID, &appID, &key, &raw); err != nil {
			return nil, err
		}
		var val any
		if err := json.Unmarshal([]byte(raw), &val); err != nil {
			return nil, fmt.Errorf("engine: decoding %s/%s/%s: %w", personaID, appID, key, err)
		}
		if all[personaID] == nil {
			all[personaID] = make(map[string]map[string]any)
		}
		if all[personaID][appID] == nil {
			all[personaID][appID] = make(map[string]any)
		}
		all[personaID][appID][key] = val
	}
	return all, rows.Err()
}
