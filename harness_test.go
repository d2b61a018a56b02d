package pollchat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/gopota/pollchat/internal/fakestore"
)

// hook intercepts a request before the fake store sees it. Returning a nil
// body and nil error passes the request through.
type hook func(ctx context.Context, req *Request) ([]byte, error)

// harness wires a Client to an in-process fake store.
type harness struct {
	t      *testing.T
	store  *fakestore.Store
	client *Client

	mu    sync.Mutex
	hooks []hook
	calls map[Action]int
}

func newHarness(t *testing.T, opts ...ClientOption) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		store: fakestore.New(),
		calls: make(map[Action]int),
	}
	base := []ClientOption{
		WithTransport(TransportFunc(h.do)),
		WithRegisterer(prometheus.NewRegistry()),
		// Only the immediate fetch on open runs; tests drive the rest.
		WithPollInterval(time.Hour),
		WithPresenceInterval(time.Hour),
	}
	h.client = NewClient("", append(base, opts...)...)
	return h
}

func (h *harness) do(ctx context.Context, req *Request) ([]byte, error) {
	h.mu.Lock()
	h.calls[req.Action]++
	hooks := append([]hook{}, h.hooks...)
	h.mu.Unlock()

	for _, fn := range hooks {
		if body, err := fn(ctx, req); body != nil || err != nil {
			return body, err
		}
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var fr fakestore.Request
	if err := json.Unmarshal(data, &fr); err != nil {
		return nil, err
	}
	return json.Marshal(h.store.Exec(fr))
}

func (h *harness) intercept(fn hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, fn)
}

func (h *harness) count(a Action) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[a]
}

// login registers nick with the store and starts an engine for it.
func (h *harness) login(nick string) *Engine {
	h.t.Helper()
	e, err := h.client.Register(context.Background(), nick, "secret-"+nick)
	require.NoError(h.t, err)
	return e
}

// peer registers another user directly with the store and returns its token.
func (h *harness) peer(nick string) string {
	h.t.Helper()
	resp := h.store.Exec(fakestore.Request{Action: "register", Nickname: nick, PasswordHash: HashPassword("pw")})
	require.True(h.t, resp.OK, resp.Error)
	return resp.Token
}

func (h *harness) post(token, chat, text string) {
	h.t.Helper()
	resp := h.store.Exec(fakestore.Request{Action: "send", Token: token, Chat: chat, Text: text})
	require.True(h.t, resp.OK, resp.Error)
}

func (h *harness) postDirect(token, to, text string) {
	h.t.Helper()
	resp := h.store.Exec(fakestore.Request{Action: "send_dm", Token: token, To: to, Text: text})
	require.True(h.t, resp.OK, resp.Error)
}

// poll fetches chat as token straight from the store, which also marks that
// user online there.
func (h *harness) poll(token, chat string) []fakestore.Message {
	h.t.Helper()
	resp := h.store.Exec(fakestore.Request{Action: "messages", Token: token, Chat: chat})
	require.True(h.t, resp.OK, resp.Error)
	return resp.Messages
}

func (h *harness) syncCount(result string) int {
	return int(testutil.ToFloat64(h.client.metrics.syncFetches.WithLabelValues(result)))
}

func (h *harness) presenceCount(result string) int {
	return int(testutil.ToFloat64(h.client.metrics.presencePolls.WithLabelValues(result)))
}

// fetches is the number of completed message fetches, whatever their outcome.
func (h *harness) fetches() int {
	n := 0
	for _, r := range []string{resultAppended, resultEmpty, resultFailed, resultDiscarded} {
		n += h.syncCount(r)
	}
	return n
}

func (h *harness) waitFetches(n int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.fetches() >= n }, 2*time.Second, 5*time.Millisecond)
}

func texts(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

// gate blocks the first request matching match until released.
type gate struct {
	match   func(req *Request) bool
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGate(match func(req *Request) bool) *gate {
	return &gate{match: match, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) hook(_ context.Context, req *Request) ([]byte, error) {
	if !g.match(req) {
		return nil, nil
	}
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return nil, nil
}

func (g *gate) wait(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached the gate")
	}
}

func isFetch(chat string) func(req *Request) bool {
	return func(req *Request) bool { return req.Action == ActionMessages && req.Chat == chat }
}

func respond(v Response) []byte {
	data, _ := json.Marshal(v)
	return data
}
