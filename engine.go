package pollchat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"
)

// generation captures the conversation a poller or send was started for.
// Every resumption after a store call compares it against the engine's
// current epoch before touching shared state.
type generation struct {
	epoch uint64
	conv  Conversation
}

// Engine is the state of one logged-in session: the open conversation, its
// message log and watermark, the online set, and the pollers keeping them
// fresh. A logout or a rejected token closes the engine for good; logging in
// again builds a new one.
type Engine struct {
	emitter
	client  *Client
	session Session
	logger  zerolog.Logger

	mu           sync.Mutex
	epoch        uint64
	current      Conversation
	log          []Message
	watermark    *int64
	online       []string
	sending      bool
	draft        string
	syncPoll     *poller
	presencePoll *poller
	closed       bool
	closeErr     error
	done         chan struct{}
}

func newEngine(c *Client, s Session) *Engine {
	return &Engine{
		client:  c,
		session: s,
		logger:  c.logger.With().Str("nickname", s.Nickname).Logger(),
		done:    make(chan struct{}),
	}
}

// Open makes conv the current conversation. Opening the conversation that
// is already current is a no-op. Otherwise the log, watermark and online set
// are reset, the sync poller restarts for conv, and the presence poller runs
// only if conv is a group chat.
func (e *Engine) Open(conv Conversation) error {
	if err := conv.validate(); err != nil {
		if errors.Is(err, ErrInvalidConversation) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrInvalidConversation, err)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrSessionClosed
	}
	if e.current == conv {
		e.mu.Unlock()
		return nil
	}

	e.epoch++
	gen := generation{epoch: e.epoch, conv: conv}
	e.current = conv
	e.log = nil
	e.watermark = nil
	e.online = nil
	e.stopPollersLocked()

	e.syncPoll = newPoller(e.client.cfg.PollInterval, func(ctx context.Context) { e.syncTick(ctx, gen) })
	e.syncPoll.start()
	if conv.Kind == KindGroup {
		e.presencePoll = newPoller(e.client.cfg.PresenceInterval, func(ctx context.Context) { e.presenceTick(ctx, gen) })
		e.presencePoll.start()
	}
	e.mu.Unlock()

	e.logger.Info().Stringer("conversation", conv).Msg("conversation opened")
	if _, err := e.client.memberships.AddMembership(conv.Kind, conv.Name); err != nil {
		e.logger.Warn().Err(err).Stringer("conversation", conv).Msg("failed to record membership")
	}
	e.emit(EventOpened, conv)
	return nil
}

// Navigate opens the conversation named by a deep-link target such as
// "general" or "dm:bob".
func (e *Engine) Navigate(target string) error {
	conv, err := ParseTarget(target)
	if err != nil {
		return err
	}
	return e.Open(conv)
}

// Close logs out: both pollers stop, the conversation state is dropped and
// the stored session is cleared. In-flight requests are not cancelled; their
// responses are discarded.
func (e *Engine) Close() {
	e.close(nil)
}

func (e *Engine) close(reason error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.closeErr = reason
	e.epoch++
	e.stopPollersLocked()
	e.current = Conversation{}
	e.log = nil
	e.watermark = nil
	e.online = nil
	e.draft = ""
	close(e.done)
	e.mu.Unlock()

	e.client.release(e)
	if reason != nil {
		e.logger.Warn().Err(reason).Msg("session torn down")
	} else {
		e.logger.Info().Msg("logged out")
	}
	e.emit(EventClosed, reason)
}

func (e *Engine) stopPollersLocked() {
	if e.syncPoll != nil {
		e.syncPoll.stop()
		e.syncPoll = nil
	}
	if e.presencePoll != nil {
		e.presencePoll.stop()
		e.presencePoll = nil
	}
}

// Done is closed when the engine is torn down.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Err reports why the engine was closed: nil while open or after a plain
// logout, ErrUnauthorized after the store rejected the token.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeErr
}

// Refresh runs one message fetch for the current conversation right away,
// serialized with the timer-driven fetches.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrSessionClosed
	}
	p := e.syncPoll
	e.mu.Unlock()
	if p == nil {
		return ErrNoConversation
	}
	p.runOnce(ctx)
	return nil
}

// ── Views ────────────────────────────────────────────────

func (e *Engine) Session() Session { return e.session }

// Current returns the open conversation, if any.
func (e *Engine) Current() (Conversation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current, !e.current.IsZero()
}

// MessagesSince returns a copy of the log from index n on.
func (e *Engine) MessagesSince(n int) []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n >= len(e.log) {
		return nil
	}
	return slices.Clone(e.log[n:])
}

// Len returns the number of messages in the log.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.log)
}

// Watermark returns the timestamp of the last appended message; ok is false
// until the first non-empty fetch.
func (e *Engine) Watermark() (ts int64, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.watermark == nil {
		return 0, false
	}
	return *e.watermark, true
}

// Online returns the last fetched online set of the open group chat.
func (e *Engine) Online() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.online)
}

// PresenceActive reports whether the presence poller is running.
func (e *Engine) PresenceActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.presencePoll != nil
}

// Sending reports whether a send is outstanding.
func (e *Engine) Sending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sending
}
