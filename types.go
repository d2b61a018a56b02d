package pollchat

import (
	"errors"
	"time"
)

// ============================================================================
// Shared Types
// ============================================================================

// Session is the authenticated identity of the local user.
type Session struct {
	Token    string `json:"token" toml:"token"`
	Nickname string `json:"nickname" toml:"nickname"`
}

// Valid reports whether the session carries a token and a nickname.
func (s Session) Valid() bool {
	return s.Token != "" && s.Nickname != ""
}

// Message is a single chat line as returned by the remote store.
type Message struct {
	Nickname  string `json:"nickname"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // milliseconds since epoch
}

// Time converts the store timestamp to a time.Time.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Own reports whether the message was written by the session's user.
func (m Message) Own(s Session) bool {
	return m.Nickname == s.Nickname
}

// Memberships lists the group chats and direct-message peers known locally,
// in the order they were added.
type Memberships struct {
	Groups []string `json:"groups"`
	Peers  []string `json:"peers"`
}

// ============================================================================
// Conversation Identity
// ============================================================================

// Kind distinguishes group chats from direct conversations.
type Kind string

const (
	KindGroup  Kind = "chat"
	KindDirect Kind = "dm"
)

// Conversation identifies the open chat. Two values are equal with == iff
// they denote the same conversation.
type Conversation struct {
	Kind Kind
	Name string
}

func Group(name string) Conversation  { return Conversation{Kind: KindGroup, Name: name} }
func Direct(peer string) Conversation { return Conversation{Kind: KindDirect, Name: peer} }

// IsZero reports whether c is the empty identity.
func (c Conversation) IsZero() bool {
	return c == Conversation{}
}

func (c Conversation) String() string {
	switch c.Kind {
	case KindGroup:
		return "#" + c.Name
	case KindDirect:
		return "@" + c.Name
	}
	return ""
}

func (c Conversation) validate() error {
	switch c.Kind {
	case KindGroup:
		return ValidateGroupName(c.Name)
	case KindDirect:
		return ValidateNickname(c.Name)
	}
	return ErrInvalidConversation
}

// ============================================================================
// Errors
// ============================================================================

// ErrorCode is a failure code reported by the remote store or synthesized
// by the gateway.
type ErrorCode string

const (
	CodeUnauthorized       ErrorCode = "unauthorized"
	CodeInvalidCredentials ErrorCode = "invalid_credentials"
	CodeNicknameTaken      ErrorCode = "nickname_taken"
	CodeNetworkError       ErrorCode = "network_error"
	CodeUnknown            ErrorCode = "unknown_error"
)

// APIError represents a failed gateway call. Err holds the transport cause
// for network errors.
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
	Err     error     `json:"-"`
}

func (e *APIError) Error() string {
	switch {
	case e.Err != nil:
		return string(e.Code) + ": " + e.Err.Error()
	case e.Message != "":
		return string(e.Code) + ": " + e.Message
	}
	return string(e.Code)
}

func (e *APIError) Unwrap() error { return e.Err }

// Is matches any *APIError carrying the same code, so the sentinels below
// work with errors.Is.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

var (
	ErrUnauthorized       = &APIError{Code: CodeUnauthorized}
	ErrInvalidCredentials = &APIError{Code: CodeInvalidCredentials}
	ErrNicknameTaken      = &APIError{Code: CodeNicknameTaken}
	ErrNetwork            = &APIError{Code: CodeNetworkError}
)

// CodeOf extracts the gateway error code from err, or "" if err is not an
// *APIError.
func CodeOf(err error) ErrorCode {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

var (
	ErrNoSession           = errors.New("pollchat: no stored session")
	ErrSessionClosed       = errors.New("pollchat: session closed")
	ErrNoConversation      = errors.New("pollchat: no conversation open")
	ErrEmptyMessage        = errors.New("pollchat: message is empty")
	ErrMessageTooLong      = errors.New("pollchat: message too long")
	ErrSendInProgress      = errors.New("pollchat: a send is already in progress")
	ErrInvalidConversation = errors.New("pollchat: invalid conversation")
	ErrInvalidNickname     = errors.New("pollchat: invalid nickname")
	ErrInvalidGroupName    = errors.New("pollchat: invalid group name")
	ErrInvalidTarget       = errors.New("pollchat: invalid target")
	ErrMissingCredentials  = errors.New("pollchat: nickname and password are required")
)
