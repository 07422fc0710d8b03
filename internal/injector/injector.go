// Package injector hands finished replies to the page, pacing them like a
// human typist instead of posting instantly.
package injector

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"time"
)

const (
	defaultWordsPerMinute = 30
	minDelay              = 2 * time.Second
	maxDelay              = 30 * time.Second
)

// Poster is the external DOM collaborator that types the text into the page
// and activates the send control. A missing input or send control is a
// normal false result, not a failure.
type Poster interface {
	Post(ctx context.Context, text string) bool
}

type Injector struct {
	poster Poster
	wpm    int

	// injectable for tests
	randFloat func() float64
	wait      func(ctx context.Context, d time.Duration) bool
}

// New builds an Injector. wpm <= 0 selects the default 30 words per minute.
func New(poster Poster, wpm int) *Injector {
	if wpm <= 0 {
		wpm = defaultWordsPerMinute
	}
	return &Injector{
		poster:    poster,
		wpm:       wpm,
		randFloat: rand.Float64,
		wait:      sleepCtx,
	}
}

// Delay computes the typing-simulation delay for text: word count over the
// configured rate, randomized ±20%, clamped to [2s, 30s].
func (i *Injector) Delay(text string) time.Duration {
	words := len(strings.Fields(text))
	typing := time.Duration(float64(words) / float64(i.wpm) * float64(time.Minute))

	factor := 0.8 + i.randFloat()*0.4
	d := time.Duration(float64(typing) * factor)

	if d < minDelay {
		return minDelay
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// Post waits out the typing delay, then delegates to the poster. It reports
// whether a send control was successfully activated. A cancelled context
// counts as not posted.
func (i *Injector) Post(ctx context.Context, text string) bool {
	delay := i.Delay(text)
	log.Printf("[injector] typing delay %s for %d words", delay.Round(time.Second), len(strings.Fields(text)))

	if !i.wait(ctx, delay) {
		return false
	}
	return i.poster.Post(ctx, text)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
