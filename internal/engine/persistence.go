package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// FilePersistence stores one JSON document per persona in DataDir.
type FilePersistence struct {
	DataDir string
	logger  *zap.Logger
	mu      sync.Mutex // Protects concurrent writes to the filesystem
}

// NewPersistence initializes a JSON file persistence handler, creating dir if needed.
func NewPersistence(dir string, logger *zap.Logger) (*FilePersistence, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("engine: creating data dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilePersistence{DataDir: dir, logger: logger}, nil
}

// SavePersona writes a single persona's data atomically (temp file + rename).
// A nil snapshot removes the persona file.
func (p *FilePersistence) SavePersona(personaID string, data map[string]map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	filePath := filepath.Join(p.DataDir, personaID+".json")
	if data == nil {
		if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, bytes, 0o600); err != nil {
		return err
	}
	// Either the old file or the new one survives a crash, never a torn write.
	return os.Rename(tempPath, filePath)
}

// LoadAll returns all persona data found in the data directory.
// Unreadable or corrupt files are skipped with a warning.
func (p *FilePersistence) LoadAll() (map[string]map[string]map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	allData := make(map[string]map[string]map[string]any)

	files, err := os.ReadDir(p.DataDir)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		personaID := strings.TrimSuffix(file.Name(), ".json")

		content, err := os.ReadFile(filepath.Join(p.DataDir, file.Name()))
		if err != nil {
			p.logger.Warn("skipping unreadable persona file", zap.String("file", file.Name()), zap.Error(err))
			continue
		}

		var personaData map[string]map[string]any
		if err := json.Unmarshal(content, &personaData); err != nil {
			p.logger.Warn("skipping corrupt persona file", zap.String("file", file.Name()), zap.Error(err))
			continue
		}
		allData[personaID] = personaData
	}
	return allData, nil
}
