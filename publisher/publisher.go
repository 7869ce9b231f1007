// Package publisher implements the Result Publisher: at-most-once,
// at-least-once-retried delivery of each section's terminal result to a
// configured sink (spec.md §4.10).
package publisher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brunobiangulo/clinextract"
)

// Sink delivers one section publication to whatever external system the
// gateway configured (HTTP callback, message queue, ...). Implementations
// are provided by callers; Publisher only adds the idempotence and retry
// policy around them.
type Sink interface {
	Deliver(ctx context.Context, publication clinextract.SectionPublication) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, publication clinextract.SectionPublication) error

func (f SinkFunc) Deliver(ctx context.Context, publication clinextract.SectionPublication) error {
	return f(ctx, publication)
}

// Config tunes delivery retries.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	return c
}

// Publisher delivers each accepted or definitively-failed section exactly
// once, idempotent by section_id via a sent-set.
type Publisher struct {
	cfg  Config
	sink Sink

	mu   sync.Mutex
	sent map[string]bool
}

func New(cfg Config, sink Sink) *Publisher {
	return &Publisher{cfg: cfg.withDefaults(), sink: sink, sent: make(map[string]bool)}
}

// Publish delivers publication at-least-once with exponential backoff,
// short-circuiting if this section_id has already been delivered — the
// at-most-once guarantee Testable Property 5 requires. On permanent
// failure after MaxAttempts it returns an error; the caller (Orchestrator)
// marks the section DeliveryFailed and the job PartiallyFailed, per
// spec.md §4.10.
func (p *Publisher) Publish(ctx context.Context, publication clinextract.SectionPublication) error {
	p.mu.Lock()
	if p.sent[publication.SectionID] {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if err := p.sink.Deliver(ctx, publication); err != nil {
			lastErr = err
			if attempt < p.cfg.MaxAttempts {
				select {
				case <-time.After(p.cfg.BaseDelay * time.Duration(1<<(attempt-1))):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			continue
		}

		p.mu.Lock()
		p.sent[publication.SectionID] = true
		p.mu.Unlock()
		return nil
	}

	return fmt.Errorf("publisher: delivering section %q after %d attempts: %w", publication.SectionID, p.cfg.MaxAttempts, lastErr)
}

// Delivered reports whether sectionID has already been successfully
// delivered. The Orchestrator checks it after publishing an accepted
// section to record a DeliveryFailed result.
func (p *Publisher) Delivered(sectionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent[sectionID]
}
