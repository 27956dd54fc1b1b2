// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package setup

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/entryprobe/entryprobe/tool/ex"
	"github.com/entryprobe/entryprobe/tool/internal/rule"
	"github.com/entryprobe/entryprobe/tool/util"
)

// Store is the transformer file read by the toolexec processes.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns the store at path, normally util.GetTransformerFile().
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Reset forgets the transformers of a previous build.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return ex.Wrapf(err, "failed to remove %s", s.path)
	}
	return nil
}

// Load returns the stored transformers, none if the file does not exist.
func (s *Store) Load() ([]*rule.Transformer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() ([]*rule.Transformer, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, ex.Wrapf(err, "failed to read %s", s.path)
	}
	var trs []*rule.Transformer
	if err = json.Unmarshal(data, &trs); err != nil {
		return nil, ex.Wrapf(err, "failed to decode %s", s.path)
	}
	return trs, nil
}

// Append assigns the next ID to tr and adds it to the file.
func (s *Store) Append(ctx context.Context, tr *rule.Transformer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trs, err := s.load()
	if err != nil {
		return err
	}
	tr.ID = len(trs) + 1
	trs = append(trs, tr)

	bs, err := json.MarshalIndent(trs, "", "  ")
	if err != nil {
		return ex.Wrapf(err, "failed to marshal transformers")
	}
	if err = os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return ex.Wrap(err)
	}
	if err = util.WriteFileAtomic(s.path, bs); err != nil {
		return err
	}
	util.LoggerFromContext(ctx).InfoContext(ctx, "stored transformer", "id", tr.ID, "transformer", tr.String())
	return nil
}
