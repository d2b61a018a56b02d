// Package pollchat is a client for a polling-based chat service.
//
// The service exposes a single action-tagged JSON endpoint and no push
// channel, so the client keeps the open conversation fresh by polling it.
// A Client logs in and hands back an Engine, which owns the open
// conversation, its message log and watermark, and the pollers feeding them.
//
// Example:
//
//	client := pollchat.NewClient("https://chat.example.com/exec")
//
//	engine, err := client.Login(ctx, "alice", "secret")
//	if err != nil {
//		fmt.Println(pollchat.AuthErrorMessage(err))
//		return
//	}
//	defer engine.Close()
//
//	engine.On(pollchat.EventMessages, func(_ string, payload any) {
//		for _, m := range engine.MessagesSince(payload.(int)) {
//			fmt.Printf("%s: %s\n", m.Nickname, m.Text)
//		}
//	})
//	engine.Open(pollchat.Group("general"))
//	engine.Submit(ctx, "hello")
package pollchat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// ============================================================================
// Configuration
// ============================================================================

const (
	DefaultPollInterval     = 3 * time.Second
	DefaultPresenceInterval = 10 * time.Second
	DefaultMaxMessageLength = 1000
	DefaultTimeout          = 30 * time.Second
)

// Config holds the client's tunables. Zero fields take the defaults.
type Config struct {
	PollInterval     time.Duration
	PresenceInterval time.Duration
	MaxMessageLength int
	Timeout          time.Duration
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PresenceInterval <= 0 {
		c.PresenceInterval = DefaultPresenceInterval
	}
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = DefaultMaxMessageLength
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	url         string
	cfg         Config
	transport   Transport
	logger      zerolog.Logger
	registerer  prometheus.Registerer
	memberships MembershipStore
	sessions    SessionStore

	gateway *Gateway
	metrics *metrics

	mu     sync.Mutex
	active *Engine
}

type ClientOption func(*Client)

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.cfg.Timeout = timeout }
}

func WithPollInterval(d time.Duration) ClientOption {
	return func(c *Client) { c.cfg.PollInterval = d }
}

func WithPresenceInterval(d time.Duration) ClientOption {
	return func(c *Client) { c.cfg.PresenceInterval = d }
}

func WithMaxMessageLength(n int) ClientOption {
	return func(c *Client) { c.cfg.MaxMessageLength = n }
}

// WithConfig replaces every tunable at once.
func WithConfig(cfg Config) ClientOption {
	return func(c *Client) { c.cfg = cfg }
}

// WithTransport replaces the HTTP transport, e.g. with an in-process store.
func WithTransport(t Transport) ClientOption {
	return func(c *Client) { c.transport = t }
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithRegisterer registers the client's metrics with reg.
func WithRegisterer(reg prometheus.Registerer) ClientOption {
	return func(c *Client) { c.registerer = reg }
}

func WithMembershipStore(s MembershipStore) ClientOption {
	return func(c *Client) { c.memberships = s }
}

func WithSessionStore(s SessionStore) ClientOption {
	return func(c *Client) { c.sessions = s }
}

// NewClient creates a client for the store at url.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:    strings.TrimSpace(url),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cfg.defaults()

	if c.transport == nil {
		c.transport = NewHTTPTransport(c.url, c.cfg.Timeout)
	}
	if c.memberships == nil || c.sessions == nil {
		mem := NewMemoryStorage()
		if c.memberships == nil {
			c.memberships = mem
		}
		if c.sessions == nil {
			c.sessions = mem
		}
	}

	c.metrics = newMetrics(c.registerer)
	c.gateway = newGateway(c.transport, c.logger, c.metrics)
	c.gateway.OnUnauthorized(c.unauthorized)
	return c
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// Gateway exposes the underlying store gateway.
func (c *Client) Gateway() *Gateway { return c.gateway }

// ── Session lifecycle ────────────────────────────────────

// Login authenticates and starts a new engine, replacing any active one.
func (c *Client) Login(ctx context.Context, nickname, password string) (*Engine, error) {
	return c.authenticate(ctx, nickname, password, c.gateway.Login)
}

// Register creates an account and starts a new engine for it.
func (c *Client) Register(ctx context.Context, nickname, password string) (*Engine, error) {
	return c.authenticate(ctx, nickname, password, c.gateway.Register)
}

func (c *Client) authenticate(
	ctx context.Context, nickname, password string,
	call func(ctx context.Context, nickname, passwordHash string) (string, error),
) (*Engine, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	token, err := call(ctx, nickname, HashPassword(password))
	if err != nil {
		return nil, err
	}

	s := Session{Token: token, Nickname: nickname}
	if err := c.sessions.SaveSession(s); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return c.start(s), nil
}

// Resume starts an engine from the stored session without contacting the
// store. A stale token surfaces as an unauthorized teardown on first use.
func (c *Client) Resume() (*Engine, error) {
	s, err := c.sessions.LoadSession()
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if s == nil || !s.Valid() {
		return nil, ErrNoSession
	}
	return c.start(*s), nil
}

// Logout closes the active engine, if any, and forgets the stored session.
func (c *Client) Logout() error {
	if e := c.Active(); e != nil {
		e.Close()
		return nil
	}
	return c.sessions.ClearSession()
}

// Active returns the running engine, or nil.
func (c *Client) Active() *Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Client) start(s Session) *Engine {
	e := newEngine(c, s)
	c.mu.Lock()
	prev := c.active
	c.active = e
	c.mu.Unlock()

	if prev != nil {
		prev.close(nil)
	}
	c.logger.Info().Str("nickname", s.Nickname).Msg("session started")
	return e
}

// release is called by an engine once it has closed.
func (c *Client) release(e *Engine) {
	c.mu.Lock()
	if c.active != e {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.mu.Unlock()

	if err := c.sessions.ClearSession(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to clear session")
	}
}

// unauthorized tears down the active engine if it holds the rejected token.
func (c *Client) unauthorized(token string) {
	if e := c.Active(); e != nil && e.session.Token == token {
		e.close(ErrUnauthorized)
	}
}

// ── Memberships ──────────────────────────────────────────

// Memberships returns the known group chats and direct peers.
func (c *Client) Memberships() (Memberships, error) {
	return c.memberships.Memberships()
}

// JoinGroup adds a group chat to the membership list without opening it and
// reports whether it was new.
func (c *Client) JoinGroup(name string) (bool, error) {
	if err := ValidateGroupName(name); err != nil {
		return false, err
	}
	return c.memberships.AddMembership(KindGroup, name)
}

// AddPeer adds a direct-message peer to the membership list.
func (c *Client) AddPeer(nickname string) (bool, error) {
	nickname = strings.TrimSpace(nickname)
	if err := ValidateNickname(nickname); err != nil {
		return false, err
	}
	return c.memberships.AddMembership(KindDirect, nickname)
}
