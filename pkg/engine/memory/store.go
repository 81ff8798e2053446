// Package memory implements the append-only per-conversation Memory Store
// (M1), grounded on the teacher's atomic file-backed session store.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

// InMemoryStore is a process-local api.MemoryStore. Append is guarded by a
// mutex and copies on read so no caller can observe or mutate a
// partially-written slice (spec.md Invariant: no split reads during
// append).
type InMemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]api.Message
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{messages: make(map[string][]api.Message)}
}

// Append adds msg to conversationID's history.
func (s *InMemoryStore) Append(_ context.Context, conversationID string, msg api.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return nil
}

// History returns a defensive copy of conversationID's messages.
func (s *InMemoryStore) History(_ context.Context, conversationID string) ([]api.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.messages[conversationID]
	out := make([]api.Message, len(src))
	copy(out, src)
	return out, nil
}

// Replace atomically swaps the full history for conversationID, used by
// history compression to splice in a summary message. Equivalent to Set.
func (s *InMemoryStore) Replace(ctx context.Context, conversationID string, msgs []api.Message) error {
	return s.Set(ctx, conversationID, msgs)
}

// Set overwrites conversationID's full history, creating the conversation
// if it doesn't exist yet.
func (s *InMemoryStore) Set(_ context.Context, conversationID string, msgs []api.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]api.Message, len(msgs))
	copy(cp, msgs)
	s.messages[conversationID] = cp
	return nil
}

// Delete removes conversationID's history entirely.
func (s *InMemoryStore) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, conversationID)
	return nil
}

// Keys lists every conversation id currently held by the store.
func (s *InMemoryStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.messages))
	for k := range s.messages {
		keys = append(keys, k)
	}
	return keys, nil
}

// Clear removes every conversation's history.
func (s *InMemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make(map[string][]api.Message)
	return nil
}

// Snapshot exports the full durable state for a conversation.
func (s *InMemoryStore) Snapshot(ctx context.Context, conversationID string) (api.Snapshot, error) {
	msgs, err := s.History(ctx, conversationID)
	if err != nil {
		return api.Snapshot{}, err
	}
	return api.Snapshot{ConversationID: conversationID, Messages: msgs}, nil
}

// ImportSnapshot restores a conversation's full state from a value
// previously produced by Snapshot.
func (s *InMemoryStore) ImportSnapshot(ctx context.Context, snap api.Snapshot) error {
	return s.Set(ctx, snap.ConversationID, snap.Messages)
}

// ErrNotFound is not returned by either store in this package: a
// conversation with no history reads as an empty history, and FileStore's
// path-validation failures return ErrWorkspaceEscape.
var ErrNotFound = fmt.Errorf("memory: conversation not found")
