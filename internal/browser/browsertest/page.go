// Package browsertest provides an in-memory browser.Browser for tests.
package browsertest

import (
	"context"
	"strings"
	"sync"
	"time"

	"campaignflow/internal/browser"
)

// Call records one primitive invoked on a Page.
type Call struct {
	Op  string
	Arg string
}

// Page is a scriptable browser.Browser. Every element is present unless its
// selector is listed in Missing. Fail makes the named operation ("navigate",
// "click", "sendkeys", "shiftenter", "enter", "upload", "scroll") return the
// given error; PanicOn makes it panic instead. LoginErr is returned by
// WaitForLogin.
type Page struct {
	Missing  map[string]bool
	Fail     map[string]error
	PanicOn  string
	LoginErr error

	mu     sync.Mutex
	calls  []Call
	closed int
}

var _ browser.Browser = (*Page)(nil)

func New() *Page {
	return &Page{Missing: map[string]bool{}, Fail: map[string]error{}}
}

func (p *Page) record(op, arg string) error {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Op: op, Arg: arg})
	p.mu.Unlock()

	if p.PanicOn == op {
		panic("browsertest: " + op)
	}
	return p.Fail[op]
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	return p.record("navigate", url)
}

func (p *Page) wait(op string, loc browser.Locator) error {
	if err := p.record(op, loc.Selector); err != nil {
		return err
	}
	if p.Missing[loc.Selector] {
		return context.DeadlineExceeded
	}
	return nil
}

func (p *Page) WaitPresent(ctx context.Context, loc browser.Locator, timeout time.Duration) error {
	return p.wait("waitpresent", loc)
}

func (p *Page) WaitClickable(ctx context.Context, loc browser.Locator, timeout time.Duration) error {
	return p.wait("waitclickable", loc)
}

func (p *Page) Click(ctx context.Context, loc browser.Locator) error {
	return p.record("click", loc.Selector)
}

func (p *Page) SendKeys(ctx context.Context, loc browser.Locator, text string) error {
	return p.record("sendkeys", text)
}

func (p *Page) ShiftEnter(ctx context.Context, loc browser.Locator) error {
	return p.record("shiftenter", loc.Selector)
}

func (p *Page) PressEnter(ctx context.Context, loc browser.Locator) error {
	return p.record("enter", loc.Selector)
}

func (p *Page) SetUploadFiles(ctx context.Context, loc browser.Locator, path string) error {
	return p.record("upload", path)
}

func (p *Page) ScrollIntoView(ctx context.Context, loc browser.Locator) error {
	return p.record("scroll", loc.Selector)
}

func (p *Page) WaitForLogin(ctx context.Context) error {
	if err := p.record("waitlogin", ""); err != nil {
		return err
	}
	return p.LoginErr
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

// Calls returns a copy of every recorded call.
func (p *Page) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// Ops returns the recorded operation names, collapsing consecutive
// keystrokes into a single "type" entry.
func (p *Page) Ops() []string {
	var ops []string
	for _, c := range p.Calls() {
		op := c.Op
		if op == "sendkeys" || op == "shiftenter" {
			op = "type"
		}
		if op == "type" && len(ops) > 0 && ops[len(ops)-1] == "type" {
			continue
		}
		ops = append(ops, op)
	}
	return ops
}

// Typed reassembles the text entered through SendKeys and ShiftEnter.
func (p *Page) Typed() string {
	var b strings.Builder
	for _, c := range p.Calls() {
		switch c.Op {
		case "sendkeys":
			b.WriteString(c.Arg)
		case "shiftenter":
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Count returns how many times op was called.
func (p *Page) Count(op string) int {
	n := 0
	for _, c := range p.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Closed reports how many times Close was called.
func (p *Page) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
