package markup

import "sync"

// Session holds the mutable state of one markup session: the document
// being marked up, the active field and page, and the publication the
// document belongs to. Safe for concurrent use.
type Session struct {
	mu sync.RWMutex

	document        string
	activeField     string
	activePage      int
	publicationKey  string
	publicationName string
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{}
}

// SetDocument switches the session to a new document and clears the
// page position.
func (s *Session) SetDocument(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.document = name
	s.activePage = 0
}

// Document returns the current document name, empty when none is open.
func (s *Session) Document() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.document
}

// SetActiveField selects the field new drags will be attributed to.
// An empty id deselects.
func (s *Session) SetActiveField(fieldID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeField = fieldID
}

// ActiveField returns the selected field id, empty when none.
func (s *Session) ActiveField() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeField
}

// SetActivePage records the page the viewer currently shows.
func (s *Session) SetActivePage(page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activePage = page
}

// ActivePage returns the page the viewer currently shows.
func (s *Session) ActivePage() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activePage
}

// SetPublication associates the session with a publication key (an
// ISSN-like identifier) and a human-readable name.
func (s *Session) SetPublication(key, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publicationKey = key
	s.publicationName = name
}

// Publication returns the publication key and name. The key is empty
// when template learning is not tied to a publication.
func (s *Session) Publication() (key, name string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publicationKey, s.publicationName
}
