package profile

import (
	"sync"
)

// Well-known preference categories. Values are free-form by design; consumers
// treat a missing key as "unknown", never as a negative signal.
const (
	KeyBudgetMin      = "budget_min"
	KeyBudgetMax      = "budget_max"
	KeyPreferredMake  = "preferred_make"
	KeyPreferredColor = "preferred_color"
	KeyBodyStyle      = "body_style"
	KeyFuelType       = "fuel_type"
	KeyFamilySize     = "family_size"
	KeyPrimaryUse     = "primary_use"
	KeySafetyPriority = "safety_priority"
	KeyLuxury         = "luxury_preference"
	KeyEcoFriendly    = "eco_friendly"
	KeyNeeds          = "needs"
	KeyNotes          = "notes"
)

// Profile maps preference categories to elicited values.
type Profile map[string]any

func (p Profile) Clone() Profile {
	if p == nil {
		return Profile{}
	}
	out := make(Profile, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Completeness reports the fraction of well-known categories present, used by
// the conversation analytics snapshot.
func (p Profile) Completeness() float64 {
	known := []string{
		KeyBudgetMax, KeyPreferredMake, KeyPreferredColor, KeyBodyStyle,
		KeyFuelType, KeyFamilySize, KeyPrimaryUse, KeySafetyPriority,
		KeyNeeds, KeyNotes,
	}
	filled := 0
	for _, k := range known {
		if _, ok := p[k]; ok {
			filled++
		}
	}
	return float64(filled) / float64(len(known))
}

// Store holds one profile per conversation. Profiles grow monotonically by
// merge: a key present in the partial overwrites the stored key, absent keys
// are preserved. The profile-update tool handler is the single writer.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewStore() *Store {
	return &Store{profiles: make(map[string]Profile)}
}

// Merge applies partial onto the stored profile for conversationID and
// returns a copy of the updated profile.
func (s *Store) Merge(conversationID string, partial Profile) Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.profiles[conversationID]
	if !ok {
		current = Profile{}
		s.profiles[conversationID] = current
	}
	for k, v := range partial {
		current[k] = v
	}
	return current.Clone()
}

// Get returns the full current profile, never a partial view. Unknown
// conversations yield an empty profile.
func (s *Store) Get(conversationID string) Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profiles[conversationID].Clone()
}

// Delete tears down the profile at session end.
func (s *Store) Delete(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, conversationID)
}
