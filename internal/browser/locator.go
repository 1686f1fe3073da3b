package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// By selects how a Locator's selector is evaluated.
type By int

const (
	ByXPath By = iota
	ByCSS
)

func (b By) String() string {
	if b == ByCSS {
		return "css"
	}
	return "xpath"
}

// Locator is one strategy for finding a UI element.
type Locator struct {
	Selector string
	By       By
}

func XPath(sel string) Locator { return Locator{Selector: sel, By: ByXPath} }
func CSS(sel string) Locator   { return Locator{Selector: sel, By: ByCSS} }

func (l Locator) String() string { return l.By.String() + ":" + l.Selector }

func (l Locator) queryOptions() []chromedp.QueryOption {
	if l.By == ByCSS {
		return []chromedp.QueryOption{chromedp.ByQuery}
	}
	return []chromedp.QueryOption{chromedp.BySearch}
}

var ErrNoLocatorMatched = errors.New("no locator matched")

// LocatorError reports that every fallback for a logical element failed.
type LocatorError struct {
	Element string
	Tried   int
	Last    error
}

func (e *LocatorError) Error() string {
	return fmt.Sprintf("could not find %s (tried %d locators): %v", e.Element, e.Tried, e.Last)
}

func (e *LocatorError) Is(target error) bool { return target == ErrNoLocatorMatched }

func (e *LocatorError) Unwrap() error { return e.Last }

// WaitFunc waits up to timeout for loc. Page.WaitPresent and
// Page.WaitClickable both satisfy it.
type WaitFunc func(ctx context.Context, loc Locator, timeout time.Duration) error

// FirstMatch tries locs in order and returns the first one wait accepts. The
// first locator gets the full timeout since the page may still be loading;
// each fallback after it gets the shorter fallback timeout.
func FirstMatch(ctx context.Context, log logrus.FieldLogger, element string, locs []Locator,
	timeout, fallback time.Duration, wait WaitFunc) (Locator, error) {
	var lastErr error = ErrNoLocatorMatched
	for i, loc := range locs {
		if err := ctx.Err(); err != nil {
			return Locator{}, err
		}
		t := fallback
		if i == 0 {
			t = timeout
		}
		err := wait(ctx, loc, t)
		if err == nil {
			log.WithField("locator", loc.String()).Debugf("found %s", element)
			return loc, nil
		}
		lastErr = err
		log.WithField("locator", loc.String()).Debugf("%s locator %d/%d failed: %v", element, i+1, len(locs), err)
	}
	return Locator{}, &LocatorError{Element: element, Tried: len(locs), Last: lastErr}
}
