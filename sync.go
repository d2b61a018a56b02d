package pollchat

import "context"

// syncTick fetches messages newer than the watermark for gen's conversation
// and appends them, unless the conversation changed while the request was in
// flight. Failures leave the log untouched until the next tick.
func (e *Engine) syncTick(ctx context.Context, gen generation) {
	e.mu.Lock()
	if e.closed || e.epoch != gen.epoch {
		e.mu.Unlock()
		return
	}
	var after *int64
	if e.watermark != nil {
		ts := *e.watermark
		after = &ts
	}
	e.mu.Unlock()

	msgs, err := e.client.gateway.FetchMessages(ctx, e.session.Token, gen.conv, after)

	e.mu.Lock()
	if e.closed || e.epoch != gen.epoch {
		e.mu.Unlock()
		e.client.metrics.syncFetches.WithLabelValues(resultDiscarded).Inc()
		e.logger.Debug().Stringer("conversation", gen.conv).Int("messages", len(msgs)).Msg("discarded stale batch")
		return
	}
	if err != nil {
		e.mu.Unlock()
		e.client.metrics.syncFetches.WithLabelValues(resultFailed).Inc()
		return
	}
	if len(msgs) == 0 {
		e.mu.Unlock()
		e.client.metrics.syncFetches.WithLabelValues(resultEmpty).Inc()
		return
	}

	start := len(e.log)
	e.log = append(e.log, msgs...)
	last := msgs[len(msgs)-1].Timestamp
	regressed := e.watermark != nil && last < *e.watermark
	if !regressed {
		e.watermark = &last
	}
	e.mu.Unlock()

	if regressed {
		e.logger.Warn().Int64("timestamp", last).Msg("store returned a batch older than the watermark")
	}
	e.client.metrics.syncFetches.WithLabelValues(resultAppended).Inc()
	e.client.metrics.syncAppended.Add(float64(len(msgs)))
	e.logger.Debug().Stringer("conversation", gen.conv).Int("messages", len(msgs)).Int64("watermark", last).Msg("appended")
	e.emit(EventMessages, start)
}
