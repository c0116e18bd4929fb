package mint

import (
	"context"
	"fmt"
	"sync"

	tokenmint "github.com/b402-foundation/tokenmint"
)

type refState int

const (
	stateReserved refState = iota
	stateCommitted
)

type refEntry struct {
	state      refState
	mintTxHash string
}

// MemoryStore is the in-memory replay guard: at-most-once consumption of
// payment references, scoped to a single process lifetime. For guarantees
// that survive restarts use PostgresStore.
type MemoryStore struct {
	mu   sync.Mutex
	refs map[string]refEntry
}

// NewMemoryStore creates an empty in-memory replay store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{refs: make(map[string]refEntry)}
}

// Reserve marks the reference as in use, rejecting references that are
// already reserved or committed.
func (s *MemoryStore) Reserve(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.refs[ref]; exists {
		return &tokenmint.Error{
			Code:    tokenmint.ErrCodeReplayRejected,
			Message: fmt.Sprintf("payment reference %s has already been used for minting", ref),
		}
	}
	s.refs[ref] = refEntry{state: stateReserved}
	return nil
}

// Commit records the successful mint for a reserved reference.
func (s *MemoryStore) Commit(ctx context.Context, ref string, mintTxHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refs[ref] = refEntry{state: stateCommitted, mintTxHash: mintTxHash}
	return nil
}

// Release undoes a reservation so a legitimate retry is not blocked.
// Committed references stay consumed.
func (s *MemoryStore) Release(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, exists := s.refs[ref]; exists && entry.state == stateReserved {
		delete(s.refs, ref)
	}
	return nil
}

// Compile-time interface check.
var _ tokenmint.ReplayStore = (*MemoryStore)(nil)
