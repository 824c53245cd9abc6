package streamhandler

import (
	"context"
	"strings"
	"time"
)

// wordPacer re-chunks arbitrary LLM stream deltas into whole words and
// enforces a minimum delay between word emissions, so narrative always
// reads at a steady pace regardless of how bursty the upstream deltas are.
type wordPacer struct {
	pending  strings.Builder
	lastSent time.Time
	floor    time.Duration
}

func newWordPacer(floor time.Duration) *wordPacer {
	return &wordPacer{floor: floor}
}

// feed appends delta and emits every complete word (including its trailing
// whitespace) it now contains, pacing each emission.
func (p *wordPacer) feed(ctx context.Context, delta string, emit func(string) error) error {
	p.pending.WriteString(delta)
	buffer := p.pending.String()

	lastBoundary := 0
	for i, r := range buffer {
		if r == ' ' || r == '\n' {
			word := buffer[lastBoundary : i+1]
			lastBoundary = i + 1
			if err := p.paceAndEmit(ctx, word, emit); err != nil {
				return err
			}
		}
	}
	p.pending.Reset()
	p.pending.WriteString(buffer[lastBoundary:])
	return nil
}

// flush emits any remaining partial word at end of stream.
func (p *wordPacer) flush(ctx context.Context, emit func(string) error) error {
	remaining := p.pending.String()
	p.pending.Reset()
	if remaining == "" {
		return nil
	}
	return p.paceAndEmit(ctx, remaining, emit)
}

func (p *wordPacer) paceAndEmit(ctx context.Context, chunk string, emit func(string) error) error {
	if !p.lastSent.IsZero() {
		if wait := p.floor - time.Since(p.lastSent); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	p.lastSent = time.Now()
	return emit(chunk)
}
