package pollchat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ============================================================================
// Wire format
// ============================================================================

// Action names a remote store operation.
type Action string

const (
	ActionRegister       Action = "register"
	ActionLogin          Action = "login"
	ActionSend           Action = "send"
	ActionMessages       Action = "messages"
	ActionSendDirect     Action = "send_dm"
	ActionDirectMessages Action = "dm_messages"
	ActionUsersOnline    Action = "users_online"
)

// Request is the body of every store call: the action tag plus its fields.
type Request struct {
	ID string `json:"-"`

	Action       Action `json:"action"`
	Token        string `json:"token,omitempty"`
	Nickname     string `json:"nickname,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
	Chat         string `json:"chat,omitempty"`
	To           string `json:"to,omitempty"`
	With         string `json:"with,omitempty"`
	After        *int64 `json:"after,omitempty"`
	Text         string `json:"text,omitempty"`
}

// Response is the store's reply envelope.
type Response struct {
	OK       bool      `json:"ok"`
	Error    ErrorCode `json:"error,omitempty"`
	Message  string    `json:"message,omitempty"`
	Token    string    `json:"token,omitempty"`
	Messages []Message `json:"messages,omitempty"`
	Users    []string  `json:"users,omitempty"`
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// ============================================================================
// Transport
// ============================================================================

// Transport carries one request to the store and returns the raw body.
type Transport interface {
	Do(ctx context.Context, req *Request) ([]byte, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) ([]byte, error)

func (f TransportFunc) Do(ctx context.Context, req *Request) ([]byte, error) { return f(ctx, req) }

// HTTPTransport posts requests as JSON to a single store URL.
type HTTPTransport struct {
	client *resty.Client
	url    string
}

func NewHTTPTransport(url string, timeout time.Duration) *HTTPTransport {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &HTTPTransport{client: client, url: url}
}

func (t *HTTPTransport) Do(ctx context.Context, req *Request) ([]byte, error) {
	r := t.client.R().SetContext(ctx).SetBody(req)
	if req.ID != "" {
		r.SetHeader("X-Request-ID", req.ID)
	}
	resp, err := r.Post(t.url)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() && !isFailureEnvelope(resp.Body()) {
		return nil, fmt.Errorf("unexpected status %s", resp.Status())
	}
	return resp.Body(), nil
}

// isFailureEnvelope reports whether an error status carries a store failure
// ({"ok":false,...}) that the gateway should decode like any other reply.
func isFailureEnvelope(body []byte) bool {
	env, err := decodeJSON[Response](body)
	return err == nil && !env.OK && env.Error != ""
}

// ============================================================================
// Gateway
// ============================================================================

// Gateway is the single entry point for remote store calls. It normalizes
// every failure into an *APIError and runs the unauthorized hooks before
// returning an unauthorized error to the caller.
type Gateway struct {
	transport Transport
	logger    zerolog.Logger
	metrics   *metrics

	mu             sync.RWMutex
	onUnauthorized []func(token string)
}

func newGateway(t Transport, logger zerolog.Logger, m *metrics) *Gateway {
	return &Gateway{
		transport: t,
		logger:    logger.With().Str("component", "gateway").Logger(),
		metrics:   m,
	}
}

// OnUnauthorized registers a hook run with the rejected token whenever the
// store answers unauthorized.
func (g *Gateway) OnUnauthorized(fn func(token string)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onUnauthorized = append(g.onUnauthorized, fn)
}

func (g *Gateway) call(ctx context.Context, req *Request) (*Response, error) {
	req.ID = uuid.NewString()
	log := g.logger.With().Str("action", string(req.Action)).Str("request_id", req.ID).Logger()

	data, err := g.transport.Do(ctx, req)
	if err != nil {
		return nil, g.fail(log, &APIError{Code: CodeNetworkError, Err: err})
	}
	resp, err := decodeJSON[Response](data)
	if err != nil {
		return nil, g.fail(log, &APIError{Code: CodeNetworkError, Err: err})
	}
	if !resp.OK {
		code := resp.Error
		if code == "" {
			code = CodeUnknown
		}
		if code == CodeUnauthorized {
			g.unauthorized(req.Token)
		}
		return nil, g.fail(log, &APIError{Code: code, Message: resp.Message})
	}

	log.Debug().Msg("store call ok")
	return resp, nil
}

func (g *Gateway) fail(log zerolog.Logger, err *APIError) error {
	g.metrics.gatewayErrors.WithLabelValues(string(err.Code)).Inc()
	ev := log.Warn()
	if err.Code != CodeNetworkError && err.Code != CodeUnauthorized {
		ev = log.Debug()
	}
	ev.Err(err).Msg("store call failed")
	return err
}

func (g *Gateway) unauthorized(token string) {
	g.mu.RLock()
	hooks := append([]func(string){}, g.onUnauthorized...)
	g.mu.RUnlock()
	for _, h := range hooks {
		h(token)
	}
}

// ── Operations ───────────────────────────────────────────

// Register creates an account and returns its session token.
func (g *Gateway) Register(ctx context.Context, nickname, passwordHash string) (string, error) {
	return g.authenticate(ctx, ActionRegister, nickname, passwordHash)
}

// Login exchanges credentials for a session token.
func (g *Gateway) Login(ctx context.Context, nickname, passwordHash string) (string, error) {
	return g.authenticate(ctx, ActionLogin, nickname, passwordHash)
}

func (g *Gateway) authenticate(ctx context.Context, action Action, nickname, passwordHash string) (string, error) {
	resp, err := g.call(ctx, &Request{Action: action, Nickname: nickname, PasswordHash: passwordHash})
	if err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", &APIError{Code: CodeUnknown, Message: "response carries no token"}
	}
	return resp.Token, nil
}

// Messages fetches group messages newer than after (all when after is nil).
func (g *Gateway) Messages(ctx context.Context, token, chat string, after *int64) ([]Message, error) {
	resp, err := g.call(ctx, &Request{Action: ActionMessages, Token: token, Chat: chat, After: after})
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// DirectMessages fetches direct messages with peer newer than after.
func (g *Gateway) DirectMessages(ctx context.Context, token, peer string, after *int64) ([]Message, error) {
	resp, err := g.call(ctx, &Request{Action: ActionDirectMessages, Token: token, With: peer, After: after})
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Send posts text to a group chat.
func (g *Gateway) Send(ctx context.Context, token, chat, text string) error {
	_, err := g.call(ctx, &Request{Action: ActionSend, Token: token, Chat: chat, Text: text})
	return err
}

// SendDirect posts text to a direct conversation.
func (g *Gateway) SendDirect(ctx context.Context, token, peer, text string) error {
	_, err := g.call(ctx, &Request{Action: ActionSendDirect, Token: token, To: peer, Text: text})
	return err
}

// UsersOnline lists the nicknames currently online in a group chat.
func (g *Gateway) UsersOnline(ctx context.Context, token, chat string) ([]string, error) {
	resp, err := g.call(ctx, &Request{Action: ActionUsersOnline, Token: token, Chat: chat})
	if err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// FetchMessages dispatches on the conversation kind.
func (g *Gateway) FetchMessages(ctx context.Context, token string, conv Conversation, after *int64) ([]Message, error) {
	if conv.Kind == KindDirect {
		return g.DirectMessages(ctx, token, conv.Name, after)
	}
	return g.Messages(ctx, token, conv.Name, after)
}

// SendMessage dispatches on the conversation kind.
func (g *Gateway) SendMessage(ctx context.Context, token string, conv Conversation, text string) error {
	if conv.Kind == KindDirect {
		return g.SendDirect(ctx, token, conv.Name, text)
	}
	return g.Send(ctx, token, conv.Name, text)
}
