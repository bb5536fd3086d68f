package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tomichandesu/research-tool-sub000/internal/entity"
	"github.com/tomichandesu/research-tool-sub000/internal/repository"
	"github.com/tomichandesu/research-tool-sub000/pkg/logger"
)

// StateStore keeps the exploration state in a single JSON file.
type StateStore struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

var _ repository.StateRepository = (*StateStore)(nil)

func NewStateStore(path string, l *zap.Logger) *StateStore {
	return &StateStore{path: path, logger: logger.OrNop(l).Named("state")}
}

// Load returns the stored state. A missing file yields a fresh state; a
// malformed one is reported and also yields a fresh state.
func (s *StateStore) Load(context.Context) (*entity.ExplorationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return entity.NewExplorationState(time.Time{}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", s.path, err)
	}

	st := &entity.ExplorationState{}
	if err := json.Unmarshal(data, st); err != nil {
		s.logger.Warn("discarding malformed state file", zap.String("path", s.path), zap.Error(err))
		return entity.NewExplorationState(time.Time{}), nil
	}
	return st, nil
}

func (s *StateStore) Save(_ context.Context, st *entity.ExplorationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(s.path, st)
}

func (s *StateStore) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove state %s: %w", s.path, err)
	}
	return nil
}
