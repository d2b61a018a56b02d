package pollchat

import (
	"context"
	"sync"
	"time"
)

// poller runs tick once immediately and then on every interval until
// stopped. Ticks never overlap: a forced run waits for a timer run in
// progress and vice versa. Stopping cancels the timer only; a tick already
// in flight completes and must re-validate its own state.
type poller struct {
	interval time.Duration
	tick     func(ctx context.Context)

	serial   sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newPoller(interval time.Duration, tick func(ctx context.Context)) *poller {
	return &poller{
		interval: interval,
		tick:     tick,
		stopCh:   make(chan struct{}),
	}
}

func (p *poller) start() {
	go p.loop()
}

func (p *poller) loop() {
	p.runOnce(context.Background())

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.runOnce(context.Background())
		}
	}
}

// runOnce runs a single tick unless the poller has been stopped and reports
// whether it ran.
func (p *poller) runOnce(ctx context.Context) bool {
	p.serial.Lock()
	defer p.serial.Unlock()
	if p.stopped() {
		return false
	}
	p.tick(ctx)
	return true
}

func (p *poller) stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func (p *poller) stopped() bool {
	select {
	case <-p.stopCh:
		return true
	default:
		return false
	}
}
