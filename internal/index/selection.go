package index

import (
	"github.com/nhle/mail-export/internal/model"
)

// Selection is an insertion-ordered set of message keys. It is not tied
// to a folder and survives folder switches.
type Selection struct {
	keys []model.MessageKey
	set  map[model.MessageKey]struct{}
}

// NewSelection returns an empty Selection.
func NewSelection() *Selection {
	return &Selection{set: make(map[model.MessageKey]struct{})}
}

// Add inserts key. It returns false if key was already selected.
func (s *Selection) Add(key model.MessageKey) bool {
	if _, ok := s.set[key]; ok {
		return false
	}
	s.set[key] = struct{}{}
	s.keys = append(s.keys, key)
	return true
}

// Remove deletes key. It returns false if key was not selected.
func (s *Selection) Remove(key model.MessageKey) bool {
	if _, ok := s.set[key]; !ok {
		return false
	}
	delete(s.set, key)
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
	return true
}

// Toggle flips key and reports whether it is now selected.
func (s *Selection) Toggle(key model.MessageKey) bool {
	if s.Remove(key) {
		return false
	}
	s.Add(key)
	return true
}

// Contains reports whether key is selected.
func (s *Selection) Contains(key model.MessageKey) bool {
	_, ok := s.set[key]
	return ok
}

// SelectAll adds every message in msgs.
func (s *Selection) SelectAll(msgs []model.EmailMessage) {
	for _, m := range msgs {
		s.Add(m.Key())
	}
}

// Clear empties the selection.
func (s *Selection) Clear() {
	s.keys = nil
	s.set = make(map[model.MessageKey]struct{})
}

// Keys returns the selected keys in insertion order.
func (s *Selection) Keys() []model.MessageKey {
	out := make([]model.MessageKey, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of selected keys.
func (s *Selection) Len() int {
	return len(s.keys)
}
