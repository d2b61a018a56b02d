package pollchat

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// SetDraft replaces the input buffer.
func (e *Engine) SetDraft(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.draft = text
}

// Draft returns the input buffer.
func (e *Engine) Draft() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft
}

// Submit sends text to the current conversation. Only one send may be
// outstanding. On success the draft is cleared and the conversation is
// fetched once more right away; on failure the draft is kept and the error
// returned. The send stays scoped to the conversation that was current when
// Submit was called.
func (e *Engine) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if limit := e.client.cfg.MaxMessageLength; utf8.RuneCountInString(text) > limit {
		return fmt.Errorf("%w: at most %d characters", ErrMessageTooLong, limit)
	}

	e.mu.Lock()
	switch {
	case e.closed:
		e.mu.Unlock()
		return ErrSessionClosed
	case e.current.IsZero():
		e.mu.Unlock()
		return ErrNoConversation
	case e.sending:
		e.mu.Unlock()
		return ErrSendInProgress
	}
	e.sending = true
	conv := e.current
	resync := e.syncPoll
	e.mu.Unlock()
	e.emit(EventSending, true)

	err := e.client.gateway.SendMessage(ctx, e.session.Token, conv, text)

	e.mu.Lock()
	e.sending = false
	if err == nil && !e.closed {
		e.draft = ""
	}
	e.mu.Unlock()
	e.emit(EventSending, false)

	if err != nil {
		e.client.metrics.sends.WithLabelValues(resultFailed).Inc()
		return err
	}
	e.client.metrics.sends.WithLabelValues(resultOK).Inc()
	e.logger.Debug().Stringer("conversation", conv).Msg("message sent")

	// The poller belongs to conv; if conv is no longer open it has been
	// stopped and this is a no-op.
	resync.runOnce(ctx)
	return nil
}
