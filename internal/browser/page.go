// Package browser owns the single automation session a batch runs against.
// Sessions are backed by a persistent Chrome profile so the WhatsApp Web
// login survives between runs.
package browser

import (
	"context"
	"time"
)

// WebOrigin is the page every session opens first.
const WebOrigin = "https://web.whatsapp.com"

// Page is the set of browser primitives message delivery is written
// against. All element operations take a Locator rather than a node handle
// because WhatsApp Web re-renders nodes freely.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitPresent(ctx context.Context, loc Locator, timeout time.Duration) error
	WaitClickable(ctx context.Context, loc Locator, timeout time.Duration) error
	Click(ctx context.Context, loc Locator) error
	SendKeys(ctx context.Context, loc Locator, text string) error
	ShiftEnter(ctx context.Context, loc Locator) error
	PressEnter(ctx context.Context, loc Locator) error
	SetUploadFiles(ctx context.Context, loc Locator, path string) error
	ScrollIntoView(ctx context.Context, loc Locator) error
}

// Browser is a launched session. WaitForLogin must succeed before the Page
// is used, and Close must be called exactly when the batch ends.
type Browser interface {
	Page
	WaitForLogin(ctx context.Context) error
	Close() error
}
