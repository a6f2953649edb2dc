package webhooks

import (
	"context"
	"strings"
	"sync"
	"time"
)

type BurstMode string

const (
	BurstModeNone     BurstMode = "none"
	BurstModeCoalesce BurstMode = "coalesce"
	BurstModeDebounce BurstMode = "debounce"
)

// BurstDecision reports whether an item may proceed, with diagnostic
// metadata when it was suppressed.
type BurstDecision struct {
	Allow    bool
	Metadata map[string]any
}

// BurstController rate-shapes floods of informational notifications. The
// processor only consults it for coalescable event codes, never for
// lifecycle-bearing ones.
type BurstController interface {
	Allow(ctx context.Context, key string) (BurstDecision, error)
}

type BurstOptions struct {
	Mode       BurstMode
	Window     time.Duration
	MaxEntries int
	Now        func() time.Time
}

// DefaultBurstController suppresses repeats of the same key inside a rolling
// window. Coalesce and debounce differ only in how the suppression is
// labelled; both acknowledge the duplicate without handling it.
type DefaultBurstController struct {
	mode   BurstMode
	window time.Duration
	limit  int
	now    func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

func NewBurstController(opts BurstOptions) *DefaultBurstController {
	controller := &DefaultBurstController{
		mode:     parseBurstMode(opts.Mode),
		window:   opts.Window,
		limit:    opts.MaxEntries,
		now:      opts.Now,
		lastSeen: make(map[string]time.Time),
	}
	if controller.window <= 0 {
		controller.window = 2 * time.Second
	}
	if controller.limit <= 0 {
		controller.limit = 4096
	}
	if controller.now == nil {
		controller.now = func() time.Time { return time.Now().UTC() }
	}
	return controller
}

func (c *DefaultBurstController) Allow(_ context.Context, key string) (BurstDecision, error) {
	key = strings.TrimSpace(key)
	if c == nil || c.mode == BurstModeNone || key == "" {
		return BurstDecision{Allow: true}, nil
	}

	now := c.now().UTC()
	c.mu.Lock()
	previous, seen := c.lastSeen[key]
	c.lastSeen[key] = now
	c.prune(now)
	c.mu.Unlock()

	if !seen || now.Sub(previous) >= c.window {
		return BurstDecision{Allow: true}, nil
	}

	label := "coalesced"
	if c.mode == BurstModeDebounce {
		label = "debounced"
	}
	return BurstDecision{
		Allow: false,
		Metadata: map[string]any{
			"burst_mode":      string(c.mode),
			"burst_key":       key,
			"burst_window_ms": c.window.Milliseconds(),
			label:             true,
		},
	}, nil
}

// prune drops stale keys; when the map outgrows the bound it also drops keys
// that are merely outside the window, oldest-ish first by map order.
func (c *DefaultBurstController) prune(now time.Time) {
	stale := c.window * 4
	if len(c.lastSeen) > c.limit {
		stale = c.window
	}
	for key, seenAt := range c.lastSeen {
		if now.Sub(seenAt) > stale {
			delete(c.lastSeen, key)
			if len(c.lastSeen) <= c.limit {
				stale = c.window * 4
			}
		}
	}
}

func parseBurstMode(mode BurstMode) BurstMode {
	switch BurstMode(strings.ToLower(strings.TrimSpace(string(mode)))) {
	case BurstModeCoalesce:
		return BurstModeCoalesce
	case BurstModeDebounce:
		return BurstModeDebounce
	default:
		return BurstModeNone
	}
}

var _ BurstController = (*DefaultBurstController)(nil)
