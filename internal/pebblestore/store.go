// Package pebblestore persists pollchat memberships and the session in a
// Pebble key-value store.
package pebblestore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble/v2"

	"github.com/gopota/pollchat"
)

// Key layout:
//
//	m/<kind>/<seq:8 bytes BE>  -> name     (insertion order)
//	n/<kind>/<name>            -> seq      (dedupe index)
//	session                    -> JSON Session
var (
	sessionKey = []byte("session")
	kinds      = []pollchat.Kind{pollchat.KindGroup, pollchat.KindDirect}
)

func entryPrefix(kind pollchat.Kind) []byte { return []byte("m/" + string(kind) + "/") }

func indexKey(kind pollchat.Kind, name string) []byte {
	return []byte("n/" + string(kind) + "/" + name)
}

func entryKey(kind pollchat.Kind, seq uint64) []byte {
	key := entryPrefix(kind)
	return binary.BigEndian.AppendUint64(key, seq)
}

// upperBound returns the smallest key greater than every key with prefix.
func upperBound(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	end[len(end)-1]++
	return end
}

// Store implements pollchat.MembershipStore and pollchat.SessionStore.
type Store struct {
	db *pebble.DB

	mu   sync.Mutex
	next map[pollchat.Kind]uint64
}

// Open opens or creates the store in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble: %w", err)
	}
	s := &Store{db: db, next: make(map[pollchat.Kind]uint64, len(kinds))}

	// Discover the next sequence per kind from the last entry key.
	for _, kind := range kinds {
		prefix := entryPrefix(kind)
		it, err := db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if it.Last() && len(it.Key()) == len(prefix)+8 {
			s.next[kind] = binary.BigEndian.Uint64(it.Key()[len(prefix):]) + 1
		}
		if err := it.Close(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ── Memberships ──────────────────────────────────────────

func (s *Store) Memberships() (pollchat.Memberships, error) {
	groups, err := s.list(pollchat.KindGroup)
	if err != nil {
		return pollchat.Memberships{}, err
	}
	peers, err := s.list(pollchat.KindDirect)
	if err != nil {
		return pollchat.Memberships{}, err
	}
	return pollchat.Memberships{Groups: groups, Peers: peers}, nil
}

func (s *Store) list(kind pollchat.Kind) ([]string, error) {
	prefix := entryPrefix(kind)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	var out []string
	for it.First(); it.Valid(); it.Next() {
		out = append(out, string(it.Value()))
	}
	return out, it.Error()
}

func (s *Store) AddMembership(kind pollchat.Kind, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexKey(kind, name)
	_, closer, err := s.db.Get(idx)
	switch {
	case err == nil:
		_ = closer.Close()
		return false, nil
	case !errors.Is(err, pebble.ErrNotFound):
		return false, err
	}

	seq := s.next[kind]
	b := s.db.NewBatch()
	defer func() { _ = b.Close() }()
	if err := b.Set(entryKey(kind, seq), []byte(name), nil); err != nil {
		return false, err
	}
	if err := b.Set(idx, binary.BigEndian.AppendUint64(nil, seq), nil); err != nil {
		return false, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return false, err
	}
	s.next[kind] = seq + 1
	return true, nil
}

// ── Session ──────────────────────────────────────────────

func (s *Store) LoadSession() (*pollchat.Session, error) {
	data, closer, err := s.db.Get(sessionKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = closer.Close() }()

	var sess pollchat.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}

func (s *Store) SaveSession(sess pollchat.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.db.Set(sessionKey, data, pebble.Sync)
}

func (s *Store) ClearSession() error {
	return s.db.Delete(sessionKey, pebble.Sync)
}
