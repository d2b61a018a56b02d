package pollchat

import (
	"slices"
	"sync"
)

// MembershipStore persists the group chats and direct peers the user has
// opened. Lists are append-only.
type MembershipStore interface {
	Memberships() (Memberships, error)
	// AddMembership records name under kind and reports whether it was new.
	AddMembership(kind Kind, name string) (bool, error)
}

// SessionStore persists the session across restarts.
type SessionStore interface {
	LoadSession() (*Session, error)
	SaveSession(s Session) error
	ClearSession() error
}

// ============================================================================
// MemoryStorage
// ============================================================================

// MemoryStorage is a goroutine-safe in-memory MembershipStore and
// SessionStore.
type MemoryStorage struct {
	mu      sync.RWMutex
	groups  []string
	peers   []string
	session *Session
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// ── Memberships ──────────────────────────────────────────

func (s *MemoryStorage) Memberships() (Memberships, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Memberships{
		Groups: slices.Clone(s.groups),
		Peers:  slices.Clone(s.peers),
	}, nil
}

func (s *MemoryStorage) AddMembership(kind Kind, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := &s.groups
	if kind == KindDirect {
		list = &s.peers
	}
	if slices.Contains(*list, name) {
		return false, nil
	}
	*list = append(*list, name)
	return true, nil
}

// ── Session ──────────────────────────────────────────────

func (s *MemoryStorage) LoadSession() (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, nil
	}
	sess := *s.session
	return &sess, nil
}

func (s *MemoryStorage) SaveSession(sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = &sess
	return nil
}

func (s *MemoryStorage) ClearSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}
