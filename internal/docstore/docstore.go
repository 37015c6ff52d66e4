// Package docstore persists document contents to disk as
// documents/<file_id>.fountain (spec §6), separate from the project/
// document/user metadata kept in pkg/database.
package docstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fountainhead/scriptsync/internal/block"
	"github.com/fountainhead/scriptsync/internal/fountain"
)

// Store roots a set of per-document .fountain files under dir.
type Store struct {
	dir string
}

// New returns a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("docstore: create dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(fileID string) string {
	return filepath.Join(s.dir, fileID+".fountain")
}

// Load reads the blocks for fileID, returning an empty (single-block)
// document if none has been saved yet.
func (s *Store) Load(fileID string) ([]*block.Block, error) {
	data, err := os.ReadFile(s.path(fileID))
	if errors.Is(err, os.ErrNotExist) {
		return []*block.Block{block.New(block.Action)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: read %s: %w", fileID, err)
	}
	blocks, err := fountain.Read(data)
	if err != nil {
		return nil, fmt.Errorf("docstore: decode %s: %w", fileID, err)
	}
	if len(blocks) == 0 {
		blocks = []*block.Block{block.New(block.Action)}
	}
	return blocks, nil
}

// Save writes blocks for fileID, overwriting any prior contents.
func (s *Store) Save(fileID string, blocks []*block.Block) error {
	data, err := fountain.Write(blocks)
	if err != nil {
		return fmt.Errorf("docstore: encode %s: %w", fileID, err)
	}
	return s.SaveRaw(fileID, data)
}

// SaveRaw writes already-encoded document bytes for fileID. Exposed so
// callers holding a document lock across encode+persist (internal/realtime's
// RealTimeDocument.Save) can supply fountain.Write as the encode step and
// this as the persist step without this package re-acquiring anything.
func (s *Store) SaveRaw(fileID string, data []byte) error {
	if err := os.WriteFile(s.path(fileID), data, 0o644); err != nil {
		return fmt.Errorf("docstore: write %s: %w", fileID, err)
	}
	return nil
}

// Delete removes the persisted file for fileID, if any.
func (s *Store) Delete(fileID string) error {
	err := os.Remove(s.path(fileID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("docstore: delete %s: %w", fileID, err)
	}
	return nil
}
