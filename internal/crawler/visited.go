package crawler

import "sync"

// VisitedSet records URLs seen during one crawl. It only grows.
type VisitedSet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

// NewVisitedSet creates an empty set
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{urls: make(map[string]struct{})}
}

// MarkIfNotVisited adds url and reports whether it was new
func (s *VisitedSet) MarkIfNotVisited(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.urls[url]; ok {
		return false
	}
	s.urls[url] = struct{}{}
	return true
}

// Contains reports whether url has been marked
func (s *VisitedSet) Contains(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.urls[url]
	return ok
}

// Len returns the number of marked URLs
func (s *VisitedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.urls)
}
