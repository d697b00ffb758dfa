package generation

import (
	"sort"
	"sync"

	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

// TitleSet holds the normalized titles accepted in one generation batch.
// It must not be shared between concurrent batches.
type TitleSet struct {
	mu     sync.Mutex
	titles map[string]string
}

// NewTitleSet creates a set seeded with titles
func NewTitleSet(titles ...string) *TitleSet {
	s := &TitleSet{titles: make(map[string]string)}
	for _, t := range titles {
		s.Add(t)
	}
	return s
}

// Contains reports whether title collides with an accepted title
func (s *TitleSet) Contains(title string) bool {
	key := types.NormalizeTitle(title)
	if key == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.titles[key]
	return ok
}

// Add records title, returning false if it was already present
func (s *TitleSet) Add(title string) bool {
	key := types.NormalizeTitle(title)
	if key == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.titles[key]; ok {
		return false
	}
	s.titles[key] = title
	return true
}

// Titles returns the accepted titles as first written, sorted
func (s *TitleSet) Titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.titles))
	for _, t := range s.titles {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of accepted titles
func (s *TitleSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.titles)
}
