package index

import (
	"sync"

	"github.com/nhle/mail-export/internal/model"
)

// Index holds the message table of the current folder plus every message
// loaded during the session, so that selections spanning folders can be
// resolved after the table has been replaced.
type Index struct {
	mu      sync.RWMutex
	folder  string
	current []model.EmailMessage
	history map[model.MessageKey]model.EmailMessage
}

// New returns an empty Index.
func New() *Index {
	return &Index{history: make(map[model.MessageKey]model.EmailMessage)}
}

// Replace swaps the current table for msgs loaded from folder. Raw
// content already attached to a message is kept.
func (ix *Index) Replace(folder string, msgs []model.EmailMessage) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	current := make([]model.EmailMessage, len(msgs))
	for i, m := range msgs {
		if old, ok := ix.history[m.Key()]; ok && old.HasRaw() && !m.HasRaw() {
			m.RawContent = old.RawContent
		}
		current[i] = m
		ix.history[m.Key()] = m
	}

	ix.folder = folder
	ix.current = current
}

// Folder returns the folder of the current table.
func (ix *Index) Folder() string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.folder
}

// Current returns a copy of the current table.
func (ix *Index) Current() []model.EmailMessage {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]model.EmailMessage, len(ix.current))
	copy(out, ix.current)
	return out
}

// Len returns the number of messages in the current table.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.current)
}

// Lookup returns a message loaded at any point in the session.
func (ix *Index) Lookup(key model.MessageKey) (model.EmailMessage, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	m, ok := ix.history[key]
	return m, ok
}

// Resolve returns the selected messages in selection order. Keys that
// were never loaded are skipped.
func (ix *Index) Resolve(sel *Selection) []model.EmailMessage {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	keys := sel.Keys()
	out := make([]model.EmailMessage, 0, len(keys))
	for _, k := range keys {
		if m, ok := ix.history[k]; ok {
			out = append(out, m)
		}
	}
	return out
}

// AttachRaw stores the full message bytes for key.
func (ix *Index) AttachRaw(key model.MessageKey, raw []byte) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	m, ok := ix.history[key]
	if !ok {
		return
	}
	m.RawContent = raw
	ix.history[key] = m

	if key.Folder != ix.folder {
		return
	}
	for i := range ix.current {
		if ix.current[i].UID == key.UID {
			ix.current[i].RawContent = raw
			break
		}
	}
}
