package pollchat_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopota/pollchat"
	"github.com/gopota/pollchat/internal/fakestore"
)

func newServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(fakestore.New().Handler())
	t.Cleanup(srv.Close)
	return srv.URL + "/exec"
}

func newClient(url string, opts ...pollchat.ClientOption) *pollchat.Client {
	base := []pollchat.ClientOption{
		pollchat.WithTimeout(5 * time.Second),
		pollchat.WithPollInterval(20 * time.Millisecond),
		pollchat.WithPresenceInterval(20 * time.Millisecond),
	}
	return pollchat.NewClient(url, append(base, opts...)...)
}

func TestAuthentication(t *testing.T) {
	url := newServer(t)
	ctx := context.Background()
	c := newClient(url)

	_, err := c.Login(ctx, "alice", "")
	assert.ErrorIs(t, err, pollchat.ErrMissingCredentials)
	assert.Equal(t, "Fill in all fields", pollchat.AuthErrorMessage(err))

	_, err = c.Login(ctx, "alice", "secret")
	assert.ErrorIs(t, err, pollchat.ErrInvalidCredentials)
	assert.Equal(t, "Wrong nickname or password", pollchat.AuthErrorMessage(err))

	e, err := c.Register(ctx, " alice ", "secret")
	require.NoError(t, err)
	assert.Equal(t, "alice", e.Session().Nickname)
	assert.NotEmpty(t, e.Session().Token)

	_, err = c.Register(ctx, "alice", "other")
	assert.ErrorIs(t, err, pollchat.ErrNicknameTaken)
	assert.Equal(t, "Nickname is already taken", pollchat.AuthErrorMessage(err))
	assert.Same(t, e, c.Active(), "a failed register keeps the running session")

	e2, err := c.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	<-e.Done()
	assert.Same(t, e2, c.Active())
	e2.Close()
}

func TestResumeFromStoredSession(t *testing.T) {
	url := newServer(t)
	storage := pollchat.NewMemoryStorage()

	c := newClient(url, pollchat.WithSessionStore(storage))
	_, err := c.Resume()
	assert.ErrorIs(t, err, pollchat.ErrNoSession)

	e, err := c.Register(context.Background(), "alice", "secret")
	require.NoError(t, err)
	defer e.Close()
	token := e.Session().Token

	// A new process picks the session up without logging in again.
	restarted := newClient(url, pollchat.WithSessionStore(storage))
	resumed, err := restarted.Resume()
	require.NoError(t, err)
	assert.Equal(t, token, resumed.Session().Token)
	require.NoError(t, resumed.Open(pollchat.Group("general")))
	require.NoError(t, resumed.Submit(context.Background(), "back again"))
	assert.Equal(t, 1, resumed.Len())

	require.NoError(t, restarted.Logout())
	<-resumed.Done()
	_, err = restarted.Resume()
	assert.ErrorIs(t, err, pollchat.ErrNoSession)
}

func TestTwoUsersChat(t *testing.T) {
	url := newServer(t)
	ctx := context.Background()
	reg := prometheus.NewRegistry()

	alice, err := newClient(url, pollchat.WithRegisterer(reg)).Register(ctx, "alice", "a")
	require.NoError(t, err)
	defer alice.Close()
	bob, err := newClient(url).Register(ctx, "bob", "b")
	require.NoError(t, err)
	defer bob.Close()

	require.NoError(t, alice.Open(pollchat.Group("general")))
	require.NoError(t, bob.Navigate("#general"))

	require.NoError(t, bob.Submit(ctx, "hi alice"))
	require.NoError(t, alice.Submit(ctx, "hi bob"))

	// Both logs converge on the store's order through polling alone.
	want := []string{"hi alice", "hi bob"}
	for _, e := range []*pollchat.Engine{alice, bob} {
		require.Eventually(t, func() bool { return len(e.MessagesSince(0)) == 2 }, 2*time.Second, 10*time.Millisecond)
		got := e.MessagesSince(0)
		assert.Equal(t, want, []string{got[0].Text, got[1].Text})
		assert.Less(t, got[0].Timestamp, got[1].Timestamp)
		ts, ok := e.Watermark()
		assert.True(t, ok)
		assert.Equal(t, got[1].Timestamp, ts)
	}

	require.Eventually(t, func() bool { return len(alice.Online()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"alice", "bob"}, alice.Online())

	// Direct messages.
	require.NoError(t, alice.Open(pollchat.Direct("bob")))
	assert.False(t, alice.PresenceActive())
	require.NoError(t, alice.Submit(ctx, "private"))
	require.NoError(t, bob.Navigate("dm:alice"))
	require.Eventually(t, func() bool { return bob.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "private", bob.MessagesSince(0)[0].Text)

	n, err := testutil.GatherAndCount(reg, "pollchat_sync_fetches_total")
	require.NoError(t, err)
	assert.Positive(t, n)
}
