package mapview

import (
	"context"
	"sync"
	"time"

	"cat-map-backend/internal/models"
)

// BlinkInterval is how often the placement marker toggles while blinking
const BlinkInterval = 500 * time.Millisecond

// Placement is the candidate-location marker shown while an upload awaits confirmation
type Placement struct {
	mu       sync.Mutex
	position models.Location
	lit      bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewPlacement creates a placement marker at loc
func NewPlacement(loc models.Location) *Placement {
	return &Placement{position: loc, lit: true}
}

// Position returns the current candidate location
func (p *Placement) Position() models.Location {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// Move relocates the marker after a map click or drag
func (p *Placement) Move(loc models.Location) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = loc
}

// Lit reports the current icon state
func (p *Placement) Lit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lit
}

// Blink toggles the icon every interval, calling onToggle with the new state,
// until Stop is called or ctx ends. Calling Blink while blinking is a no-op.
func (p *Placement) Blink(ctx context.Context, interval time.Duration, onToggle func(lit bool)) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.mu.Lock()
				p.lit = !p.lit
				lit := p.lit
				p.mu.Unlock()
				if onToggle != nil {
					onToggle(lit)
				}
			}
		}
	}()
}

// Stop ends blinking and leaves the icon lit
func (p *Placement) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	p.mu.Lock()
	p.lit = true
	p.mu.Unlock()
}
