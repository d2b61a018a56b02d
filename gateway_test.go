package pollchat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t TransportFunc) *Gateway {
	return newGateway(t, zerolog.Nop(), newMetrics(prometheus.NewRegistry()))
}

func replying(body string) TransportFunc {
	return func(context.Context, *Request) ([]byte, error) { return []byte(body), nil }
}

func TestGatewayNormalizesFailures(t *testing.T) {
	tests := []struct {
		name      string
		transport TransportFunc
		code      ErrorCode
	}{
		{
			name: "transport error",
			transport: func(context.Context, *Request) ([]byte, error) {
				return nil, errors.New("dial tcp: connection refused")
			},
			code: CodeNetworkError,
		},
		{name: "malformed body", transport: replying("<html>"), code: CodeNetworkError},
		{name: "missing code", transport: replying(`{"ok":false}`), code: CodeUnknown},
		{name: "store code", transport: replying(`{"ok":false,"error":"invalid_chat"}`), code: "invalid_chat"},
		{name: "unauthorized", transport: replying(`{"ok":false,"error":"unauthorized"}`), code: CodeUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(tt.transport)
			_, err := g.Messages(context.Background(), "tok", "general", nil)
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, 1.0, testutil.ToFloat64(g.metrics.gatewayErrors.WithLabelValues(string(tt.code))))
		})
	}
}

func TestGatewayUnauthorizedHook(t *testing.T) {
	g := newTestGateway(func(_ context.Context, req *Request) ([]byte, error) {
		if req.Action == ActionUsersOnline {
			return []byte(`{"ok":false,"error":"unauthorized"}`), nil
		}
		return []byte(`{"ok":false,"error":"invalid_chat"}`), nil
	})

	var rejected []string
	g.OnUnauthorized(func(token string) { rejected = append(rejected, token) })

	_, err := g.Messages(context.Background(), "tok-1", "general", nil)
	assert.Equal(t, ErrorCode("invalid_chat"), CodeOf(err))
	assert.Empty(t, rejected)

	_, err = g.UsersOnline(context.Background(), "tok-2", "general")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, []string{"tok-2"}, rejected)
}

func TestGatewayRequests(t *testing.T) {
	var got []Request
	g := newTestGateway(func(_ context.Context, req *Request) ([]byte, error) {
		assert.NotEmpty(t, req.ID)
		got = append(got, *req)
		return []byte(`{"ok":true,"token":"t","messages":[{"nickname":"a","text":"x","timestamp":5}],"users":["a"]}`), nil
	})
	ctx := context.Background()
	after := int64(42)

	token, err := g.Login(ctx, "alice", "hash")
	require.NoError(t, err)
	assert.Equal(t, "t", token)
	_, err = g.Register(ctx, "alice", "hash")
	require.NoError(t, err)
	msgs, err := g.FetchMessages(ctx, "t", Group("general"), &after)
	require.NoError(t, err)
	assert.Equal(t, []Message{{Nickname: "a", Text: "x", Timestamp: 5}}, msgs)
	_, err = g.FetchMessages(ctx, "t", Direct("bob"), nil)
	require.NoError(t, err)
	require.NoError(t, g.SendMessage(ctx, "t", Group("general"), "hi"))
	require.NoError(t, g.SendMessage(ctx, "t", Direct("bob"), "hi"))
	users, err := g.UsersOnline(ctx, "t", "general")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, users)

	for i := range got {
		got[i].ID = ""
	}
	assert.Equal(t, []Request{
		{Action: ActionLogin, Nickname: "alice", PasswordHash: "hash"},
		{Action: ActionRegister, Nickname: "alice", PasswordHash: "hash"},
		{Action: ActionMessages, Token: "t", Chat: "general", After: &after},
		{Action: ActionDirectMessages, Token: "t", With: "bob"},
		{Action: ActionSend, Token: "t", Chat: "general", Text: "hi"},
		{Action: ActionSendDirect, Token: "t", To: "bob", Text: "hi"},
		{Action: ActionUsersOnline, Token: "t", Chat: "general"},
	}, got)
}

func TestGatewayLoginWithoutToken(t *testing.T) {
	g := newTestGateway(replying(`{"ok":true}`))
	_, err := g.Login(context.Background(), "alice", "hash")
	assert.Equal(t, CodeUnknown, CodeOf(err))
}

func TestRequestEncoding(t *testing.T) {
	after := int64(0)
	data, err := json.Marshal(&Request{ID: "x", Action: ActionMessages, Token: "t", Chat: "general", After: &after})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"messages","token":"t","chat":"general","after":0}`, string(data))

	data, err = json.Marshal(&Request{Action: ActionLogin, Nickname: "a", PasswordHash: "h"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"login","nickname":"a","password_hash":"h"}`, string(data))
}

func TestHTTPTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		if !assert.NoError(t, json.Unmarshal(body, &req)) {
			return
		}
		if req["action"] == "users_online" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "messages", req["action"])
		assert.Equal(t, "general", req["chat"])
		_, _ = w.Write([]byte(`{"ok":true,"messages":[{"nickname":"bob","text":"hi","timestamp":7}]}`))
	}))
	defer srv.Close()

	g := newGateway(NewHTTPTransport(srv.URL, 5*time.Second), zerolog.Nop(), newMetrics(nil))

	msgs, err := g.Messages(context.Background(), "tok", "general", nil)
	require.NoError(t, err)
	assert.Equal(t, []Message{{Nickname: "bob", Text: "hi", Timestamp: 7}}, msgs)

	_, err = g.UsersOnline(context.Background(), "tok", "general")
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestHTTPTransportErrorStatusWithEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"error":"unauthorized"}`))
	}))
	defer srv.Close()

	g := newGateway(NewHTTPTransport(srv.URL, 5*time.Second), zerolog.Nop(), newMetrics(nil))
	var rejected []string
	g.OnUnauthorized(func(token string) { rejected = append(rejected, token) })

	_, err := g.Messages(context.Background(), "tok", "general", nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, CodeUnauthorized, CodeOf(err))
	assert.Equal(t, []string{"tok"}, rejected)
}

func TestHTTPTransportErrorStatusWithoutEnvelope(t *testing.T) {
	bodies := []string{"", "<html>bad gateway</html>", `{"ok":false}`, `{"ok":true}`}
	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			g := newGateway(NewHTTPTransport(srv.URL, 5*time.Second), zerolog.Nop(), newMetrics(nil))
			_, err := g.Messages(context.Background(), "tok", "general", nil)
			assert.ErrorIs(t, err, ErrNetwork)
		})
	}
}

func TestHTTPTransportUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g := newGateway(NewHTTPTransport(url, time.Second), zerolog.Nop(), newMetrics(nil))
	_, err := g.Messages(context.Background(), "tok", "general", nil)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, "No connection to the server", AuthErrorMessage(err))
}
