package sender

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"campaignflow/internal/browser"
)

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the wall-clock Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Typist enters text one character at a time with a random pause between
// keystrokes. Newlines are sent as shift+Enter so they break the line
// instead of submitting the message.
type Typist struct {
	Min, Max time.Duration
	Rand     *rand.Rand
	Sleep    Sleeper
}

func (t *Typist) Type(ctx context.Context, page browser.Page, loc browser.Locator, text string) error {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	for _, r := range text {
		var err error
		if r == '\n' {
			err = page.ShiftEnter(ctx, loc)
		} else {
			err = page.SendKeys(ctx, loc, string(r))
		}
		if err != nil {
			return fmt.Errorf("failed to type message: %w", err)
		}
		if err := t.Sleep(ctx, t.delay()); err != nil {
			return err
		}
	}
	return nil
}

func (t *Typist) delay() time.Duration {
	if t.Max <= t.Min {
		return t.Min
	}
	return t.Min + time.Duration(t.Rand.Int64N(int64(t.Max-t.Min)+1))
}
