package location

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultPromptDelay keeps the auto-prompt from interrupting the first paint.
const DefaultPromptDelay = 3 * time.Second

// PromptController decides when the location modal opens on its own and
// tracks whether it is visible. Visibility is independent of whether a
// resolution succeeded.
type PromptController struct {
	store  Store
	delay  time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	fired bool
	open  bool
	timer *time.Timer
}

func NewPromptController(store Store, delay time.Duration, logger *slog.Logger) *PromptController {
	if delay <= 0 {
		delay = DefaultPromptDelay
	}
	return &PromptController{store: store, delay: delay, logger: logger}
}

// Delay is how long after page load the auto-prompt fires.
func (p *PromptController) Delay() time.Duration {
	return p.delay
}

// ShouldAutoPrompt reports whether the modal should open on its own. It is
// true at most once per controller: a true return marks the controller as
// fired, whatever the shopper then does with the modal.
func (p *PromptController) ShouldAutoPrompt(hasLocation, isAuthenticated, hasPromptedBefore bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fired || hasLocation || isAuthenticated || hasPromptedBefore {
		return false
	}
	p.fired = true
	return true
}

// Fire consults the store for the location and prompted flag and, if the
// auto-prompt is due, persists the prompted flag and opens the modal.
func (p *PromptController) Fire(ctx context.Context, isAuthenticated bool) (bool, error) {
	rec, err := p.store.Load(ctx)
	if err != nil {
		return false, err
	}
	prompted, err := p.store.Prompted(ctx)
	if err != nil {
		return false, err
	}
	// A skipped record counts as having answered the prompt.
	hasLocation := !rec.IsEmpty() || rec.Source == SourceSkipped
	if !p.ShouldAutoPrompt(hasLocation, isAuthenticated, prompted) {
		return false, nil
	}
	if err := p.store.SetPrompted(ctx); err != nil {
		p.logger.Warn("could not persist prompt flag", "error", err)
	}
	p.Open()
	return true, nil
}

// ScheduleAutoPrompt arms a timer that calls Fire after the delay and then
// onDone with the outcome. A failed check is logged and reported as not
// fired. onDone is not called when ctx ends or the returned function
// disarms the timer first. Arming again replaces the previous timer.
func (p *PromptController) ScheduleAutoPrompt(ctx context.Context, isAuthenticated bool, onDone func(fired bool)) (cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
	}
	t := time.AfterFunc(p.delay, func() {
		if ctx.Err() != nil {
			return
		}
		fired, err := p.Fire(ctx, isAuthenticated)
		if err != nil {
			p.logger.Error("auto-prompt check failed", "error", err)
		}
		if onDone != nil {
			onDone(fired)
		}
	})
	p.timer = t
	return func() { t.Stop() }
}

func (p *PromptController) Open() {
	p.mu.Lock()
	p.open = true
	p.mu.Unlock()
}

func (p *PromptController) Close() {
	p.mu.Lock()
	p.open = false
	p.mu.Unlock()
}

func (p *PromptController) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}
