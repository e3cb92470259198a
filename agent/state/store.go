package state

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dealeros/carbot/agent/contract"
)

// Store keeps the committed Conversation per conversation id and serializes
// message processing: while one customer message is in flight the
// conversation's slot is held, and a second arrival fails fast with
// ErrConversationBusy instead of queueing.
type Store struct {
	mu    sync.Mutex
	convs map[string]*Conversation
	slots map[string]*semaphore.Weighted
}

func NewStore() *Store {
	return &Store{
		convs: make(map[string]*Conversation),
		slots: make(map[string]*semaphore.Weighted),
	}
}

func (s *Store) slot(conversationID string) *semaphore.Weighted {
	s.mu.Lock()
	defer s.mu.Unlock()
	sem, ok := s.slots[conversationID]
	if !ok {
		sem = semaphore.NewWeighted(1)
		s.slots[conversationID] = sem
	}
	return sem
}

// Acquire claims the conversation's processing slot. The returned release
// func must be called exactly once when the turn finishes.
func (s *Store) Acquire(conversationID string) (func(), error) {
	sem := s.slot(conversationID)
	if !sem.TryAcquire(1) {
		return nil, fmt.Errorf("%w: id=%s", contract.ErrConversationBusy, conversationID)
	}
	var once sync.Once
	return func() { once.Do(func() { sem.Release(1) }) }, nil
}

// Get returns the committed conversation, or nil if none exists yet.
func (s *Store) Get(conversationID string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convs[conversationID].Clone()
}

// GetOrCreate returns the committed conversation, creating an empty one on
// first contact.
func (s *Store) GetOrCreate(conversationID string, now time.Time) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[conversationID]; ok {
		return c.Clone()
	}
	c := NewConversation(conversationID, now)
	s.convs[conversationID] = c
	return c.Clone()
}

// Commit replaces the committed state with the turn's working copy.
func (s *Store) Commit(c *Conversation) {
	if c == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[c.ID] = c.Clone()
}

// Delete tears down the conversation and its processing slot.
func (s *Store) Delete(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, conversationID)
	delete(s.slots, conversationID)
}
