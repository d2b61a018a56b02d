package pollchat

import (
	"context"
	"slices"
)

// presenceTick refreshes the online set of gen's group chat. A failed fetch
// keeps the previous set.
func (e *Engine) presenceTick(ctx context.Context, gen generation) {
	e.mu.Lock()
	if e.closed || e.epoch != gen.epoch {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	users, err := e.client.gateway.UsersOnline(ctx, e.session.Token, gen.conv.Name)

	e.mu.Lock()
	if e.closed || e.epoch != gen.epoch {
		e.mu.Unlock()
		e.client.metrics.presencePolls.WithLabelValues(resultDiscarded).Inc()
		return
	}
	if err != nil {
		e.mu.Unlock()
		e.client.metrics.presencePolls.WithLabelValues(resultFailed).Inc()
		return
	}
	if users == nil {
		users = []string{}
	}
	e.online = users
	e.mu.Unlock()

	e.client.metrics.presencePolls.WithLabelValues(resultOK).Inc()
	e.emit(EventPresence, slices.Clone(users))
}
