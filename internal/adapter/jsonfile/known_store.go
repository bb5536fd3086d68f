package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/tomichandesu/research-tool-sub000/internal/repository"
)

type knownFile struct {
	ASINs []string `json:"asins"`
}

// KnownStore is the file-backed known-product registry.
type KnownStore struct {
	path string
	mu   sync.Mutex
}

var _ repository.KnownProductRepository = (*KnownStore)(nil)

func NewKnownStore(path string) *KnownStore {
	return &KnownStore{path: path}
}

func (s *KnownStore) read() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", s.path, err)
	}
	var f knownFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode registry %s: %w", s.path, err)
	}
	return f.ASINs, nil
}

func (s *KnownStore) Load(context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// Add merges ids with whatever is on disk now, so concurrent sessions never
// drop each other's entries.
func (s *KnownStore) Add(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.read()
	if err != nil {
		return err
	}
	return writeAtomic(s.path, knownFile{ASINs: normalizeIDs(append(current, ids...))})
}

// Compact rewrites the registry sorted, unique and without blank entries. It
// returns the number of entries removed.
func (s *KnownStore) Compact(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.read()
	if err != nil {
		return 0, err
	}
	clean := normalizeIDs(current)
	if err := writeAtomic(s.path, knownFile{ASINs: clean}); err != nil {
		return 0, err
	}
	return len(current) - len(clean), nil
}

func normalizeIDs(ids []string) []string {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
