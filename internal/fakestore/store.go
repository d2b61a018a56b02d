// Package fakestore is an in-memory implementation of the chat store
// protocol, used by tests and by the CLI's devserver command.
package fakestore

import (
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	MaxMessageLength = 1000
	PresenceWindow   = 60 * time.Second
)

// Error codes returned in the response envelope.
const (
	ErrUnauthorized       = "unauthorized"
	ErrInvalidCredentials = "invalid_credentials"
	ErrNicknameTaken      = "nickname_taken"
	ErrInvalidRequest     = "invalid_request"
	ErrInvalidChat        = "invalid_chat"
	ErrUserNotFound       = "user_not_found"
	ErrMessageTooLong     = "message_too_long"
	ErrUnknownAction      = "unknown_action"
)

var (
	nicknamePattern  = regexp.MustCompile(`^[a-zA-Z0-9_]{1,20}$`)
	groupNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{1,30}$`)
)

// Request mirrors the client's action body.
type Request struct {
	Action       string `json:"action"`
	Token        string `json:"token,omitempty"`
	Nickname     string `json:"nickname,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
	Chat         string `json:"chat,omitempty"`
	To           string `json:"to,omitempty"`
	With         string `json:"with,omitempty"`
	After        *int64 `json:"after,omitempty"`
	Text         string `json:"text,omitempty"`
}

// Response is the reply envelope. Messages and Users are only set by the
// actions that return them.
type Response struct {
	OK       bool      `json:"ok"`
	Error    string    `json:"error,omitempty"`
	Token    string    `json:"token,omitempty"`
	Messages []Message `json:"messages,omitempty"`
	Users    []string  `json:"users,omitempty"`
}

type Message struct {
	Nickname  string `json:"nickname"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

func fail(code string) Response { return Response{OK: false, Error: code} }

// ============================================================================
// Store
// ============================================================================

type Option func(*Store)

// WithClock replaces time.Now, e.g. to drive presence expiry in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Store holds users, tokens and message logs. It is safe for concurrent use.
type Store struct {
	now    func() time.Time
	logger zerolog.Logger

	mu       sync.Mutex
	users    map[string]string               // nickname -> password hash
	tokens   map[string]string               // token -> nickname
	groups   map[string][]Message            // chat -> log
	directs  map[string][]Message            // pairKey -> log
	seen     map[string]map[string]time.Time // chat -> nickname -> last poll
	lastTime int64
}

func New(opts ...Option) *Store {
	s := &Store{
		now:     time.Now,
		logger:  zerolog.Nop(),
		users:   make(map[string]string),
		tokens:  make(map[string]string),
		groups:  make(map[string][]Message),
		directs: make(map[string][]Message),
		seen:    make(map[string]map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Exec runs one action.
func (s *Store) Exec(req Request) Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	var resp Response
	switch req.Action {
	case "register":
		resp = s.register(req)
	case "login":
		resp = s.login(req)
	case "send":
		resp = s.withUser(req, s.send)
	case "messages":
		resp = s.withUser(req, s.messages)
	case "send_dm":
		resp = s.withUser(req, s.sendDirect)
	case "dm_messages":
		resp = s.withUser(req, s.directMessages)
	case "users_online":
		resp = s.withUser(req, s.usersOnline)
	default:
		resp = fail(ErrUnknownAction)
	}

	ev := s.logger.Debug()
	if !resp.OK {
		ev = s.logger.Info().Str("error", resp.Error)
	}
	ev.Str("action", req.Action).Msg("exec")
	return resp
}

// RevokeToken invalidates a session token, as an expiry would.
func (s *Store) RevokeToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// ── Accounts ─────────────────────────────────────────────

func (s *Store) register(req Request) Response {
	if !nicknamePattern.MatchString(req.Nickname) || req.PasswordHash == "" {
		return fail(ErrInvalidRequest)
	}
	if _, ok := s.users[req.Nickname]; ok {
		return fail(ErrNicknameTaken)
	}
	s.users[req.Nickname] = req.PasswordHash
	return Response{OK: true, Token: s.issue(req.Nickname)}
}

func (s *Store) login(req Request) Response {
	hash, ok := s.users[req.Nickname]
	if !ok || hash != req.PasswordHash {
		return fail(ErrInvalidCredentials)
	}
	return Response{OK: true, Token: s.issue(req.Nickname)}
}

func (s *Store) issue(nickname string) string {
	token := uuid.NewString()
	s.tokens[token] = nickname
	return token
}

func (s *Store) withUser(req Request, fn func(nick string, req Request) Response) Response {
	nick, ok := s.tokens[req.Token]
	if !ok {
		return fail(ErrUnauthorized)
	}
	return fn(nick, req)
}

// ── Messages ─────────────────────────────────────────────

func validGroup(name string) bool {
	return groupNamePattern.MatchString(name) &&
		!strings.HasPrefix(name, "_") && !strings.HasPrefix(name, "dm_")
}

func validText(text string) (string, string) {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return "", ErrInvalidRequest
	case utf8.RuneCountInString(text) > MaxMessageLength:
		return "", ErrMessageTooLong
	}
	return text, ""
}

// stamp returns a strictly increasing millisecond timestamp.
func (s *Store) stamp() int64 {
	ts := s.now().UnixMilli()
	if ts <= s.lastTime {
		ts = s.lastTime + 1
	}
	s.lastTime = ts
	return ts
}

func (s *Store) send(nick string, req Request) Response {
	if !validGroup(req.Chat) {
		return fail(ErrInvalidChat)
	}
	text, code := validText(req.Text)
	if code != "" {
		return fail(code)
	}
	s.groups[req.Chat] = append(s.groups[req.Chat], Message{Nickname: nick, Text: text, Timestamp: s.stamp()})
	s.touch(req.Chat, nick)
	return Response{OK: true}
}

func (s *Store) messages(nick string, req Request) Response {
	if !validGroup(req.Chat) {
		return fail(ErrInvalidChat)
	}
	s.touch(req.Chat, nick)
	return Response{OK: true, Messages: after(s.groups[req.Chat], req.After)}
}

func (s *Store) sendDirect(nick string, req Request) Response {
	if _, ok := s.users[req.To]; !ok {
		return fail(ErrUserNotFound)
	}
	text, code := validText(req.Text)
	if code != "" {
		return fail(code)
	}
	key := pairKey(nick, req.To)
	s.directs[key] = append(s.directs[key], Message{Nickname: nick, Text: text, Timestamp: s.stamp()})
	return Response{OK: true}
}

func (s *Store) directMessages(nick string, req Request) Response {
	if _, ok := s.users[req.With]; !ok {
		return fail(ErrUserNotFound)
	}
	return Response{OK: true, Messages: after(s.directs[pairKey(nick, req.With)], req.After)}
}

// after returns the messages strictly newer than ts, all of them if ts is nil.
func after(log []Message, ts *int64) []Message {
	i := 0
	if ts != nil {
		i, _ = slices.BinarySearchFunc(log, *ts+1, func(m Message, t int64) int {
			switch {
			case m.Timestamp < t:
				return -1
			case m.Timestamp > t:
				return 1
			}
			return 0
		})
	}
	out := make([]Message, len(log)-i)
	copy(out, log[i:])
	return out
}

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "\x00" + b
}

// ── Presence ─────────────────────────────────────────────

func (s *Store) touch(chat, nick string) {
	m := s.seen[chat]
	if m == nil {
		m = make(map[string]time.Time)
		s.seen[chat] = m
	}
	m[nick] = s.now()
}

func (s *Store) usersOnline(nick string, req Request) Response {
	if !validGroup(req.Chat) {
		return fail(ErrInvalidChat)
	}
	now := s.now()
	users := []string{}
	for n, at := range s.seen[req.Chat] {
		if now.Sub(at) <= PresenceWindow {
			users = append(users, n)
		}
	}
	slices.Sort(users)
	return Response{OK: true, Users: users}
}
