package language

import "strings"

// Store exposes language profile lookup.
type Store interface {
	List() []Profile
	Find(code string) (Profile, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Profile
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied profiles.
func NewMemoryStore(items []Profile) *MemoryStore {
	return &MemoryStore{items: append([]Profile(nil), items...)}
}

// List returns the configured profiles.
func (s *MemoryStore) List() []Profile {
	return append([]Profile(nil), s.items...)
}

// Find looks up a profile by code. Locale forms like "hi-IN" or "en_US" match their base code.
func (s *MemoryStore) Find(code string) (Profile, bool) {
	base := Normalize(code)
	if base == "" {
		return Profile{}, false
	}
	for _, item := range s.items {
		if item.Code == base {
			return item, true
		}
	}
	return Profile{}, false
}

// Resolve returns the profile for code, falling back to DefaultCode.
func (s *MemoryStore) Resolve(code string) Profile {
	if p, ok := s.Find(code); ok {
		return p
	}
	p, _ := s.Find(DefaultCode)
	return p
}

// Normalize reduces locale strings to a lower-case base language code.
func Normalize(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if idx := strings.IndexAny(code, "-_"); idx > 0 {
		code = code[:idx]
	}
	return code
}
