package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/sirupsen/logrus"

	"campaignflow/internal/config"
	"campaignflow/internal/paths"
)

// ErrLoginTimeout is returned by WaitForLogin when the composer never became
// editable, meaning the QR code was not scanned in time.
var ErrLoginTimeout = errors.New("login not completed")

// loginSignal appears once WhatsApp Web has an authenticated session.
var loginSignal = XPath(`//div[@contenteditable="true"]`)

const (
	progressInterval = 10 * time.Second
	qrPollInterval   = 2 * time.Second

	// startTimeout bounds launching the Chrome process itself.
	startTimeout = 45 * time.Second

	// actionTimeout bounds element actions issued without an explicit wait.
	actionTimeout = 30 * time.Second
)

// Session is a chromedp-driven Chrome instance bound to a persistent
// profile directory. It implements Browser.
type Session struct {
	cfg config.BrowserConfig
	log logrus.FieldLogger

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	closeOnce   sync.Once

	qrOut io.Writer
}

var _ Browser = (*Session)(nil)

// Launcher launches Sessions with a fixed configuration.
type Launcher struct {
	Config config.BrowserConfig
	Log    logrus.FieldLogger
}

func (l *Launcher) Launch(ctx context.Context) (Browser, error) {
	return Launch(ctx, l.Config, l.Log)
}

// Launch starts Chrome with the configured profile and opens WhatsApp Web.
// The caller must call WaitForLogin before sending and Close when done. On
// failure the browser is already closed.
func Launch(ctx context.Context, cfg config.BrowserConfig, log logrus.FieldLogger) (*Session, error) {
	log.Info("Initializing browser automation...")

	if !cfg.SkipNetworkCheck {
		if err := checkNetworkConnectivity(ctx); err != nil {
			log.Warnf("Network connectivity check failed: %v", err)
			log.Warn("Proceeding anyway, but you may experience connection issues")
		}
	}

	if cfg.ChromePath != "" {
		if _, err := os.Stat(cfg.ChromePath); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("chrome executable not found at %s", cfg.ChromePath)
			}
			return nil, fmt.Errorf("cannot access chrome executable at %s: %w", cfg.ChromePath, err)
		}
		log.Infof("Using Chrome at: %s", cfg.ChromePath)
	}

	if err := paths.EnsureWritableDir(cfg.ProfileDir); err != nil {
		return nil, fmt.Errorf("failed to prepare profile directory: %w", err)
	}
	log.Infof("Using profile directory: %s", cfg.ProfileDir)

	s := &Session{cfg: cfg, log: log, qrOut: os.Stdout}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	s.allocCancel = allocCancel
	s.ctx, s.cancel = chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Debugf))

	// The first Run allocates the browser and must not carry a deadline,
	// otherwise the deadline would tear the whole browser down. The start is
	// bounded from outside instead, and Close aborts it.
	log.Debug("Starting Chrome browser process...")
	if err := startWithin(ctx, startTimeout, func() error { return chromedp.Run(s.ctx) }, func() { s.Close() }); err != nil {
		s.Close()
		return nil, explainStartError(err)
	}

	log.Info("Opening WhatsApp Web...")
	if err := s.run(ctx, time.Minute, chromedp.Navigate(WebOrigin)); err != nil {
		s.Close()
		return nil, explainStartError(err)
	}
	return s, nil
}

// chromeFlag is one command-line switch passed to Chrome.
type chromeFlag struct {
	Name  string
	Value any
}

// profileFlags are the switches every session is launched with, on top of
// chromedp's defaults.
func profileFlags(cfg config.BrowserConfig) []chromeFlag {
	return []chromeFlag{
		{"headless", cfg.Headless},
		{"user-data-dir", cfg.ProfileDir},
		{"no-first-run", true},
		{"no-default-browser-check", true},
		{"disable-popup-blocking", true},
		{"start-maximized", true},
		{"disable-gpu", true},
		{"disable-extensions", true},
		{"disable-blink-features", "AutomationControlled"},
		{"remote-debugging-port", strconv.Itoa(cfg.DebugPort)},
	}
}

func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for _, f := range profileFlags(cfg) {
		opts = append(opts, chromedp.Flag(f.Name, f.Value))
	}
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}
	return opts
}

// startWithin runs start and gives up when ctx ends or timeout passes,
// calling abort so start can unwind.
func startWithin(ctx context.Context, timeout time.Duration, start func() error, abort func()) error {
	done := make(chan error, 1)
	go func() { done <- start() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		abort()
		return ctx.Err()
	case <-timer.C:
		abort()
		return fmt.Errorf("chrome failed to start within %v", timeout)
	}
}

// WaitForLogin blocks until WhatsApp Web shows an editable composer, which
// only happens once the QR code has been scanned or a saved login was
// restored. It returns ErrLoginTimeout after browser.login_timeout_seconds.
func (s *Session) WaitForLogin(ctx context.Context) error {
	s.log.Infof("If you see a QR code, please scan it within %d seconds", s.cfg.LoginTimeoutSeconds)

	w := loginWait{
		log:      s.log,
		timeout:  s.cfg.LoginTimeout(),
		progress: progressInterval,
		wait: func(ctx context.Context) error {
			return s.WaitPresent(ctx, loginSignal, s.cfg.LoginTimeout())
		},
	}
	if s.cfg.Headless && s.cfg.PrintQR {
		qr := &qrPrinter{out: s.qrOut}
		w.pollEvery = qrPollInterval
		w.poll = func(ctx context.Context) {
			if ref, ok := s.qrPayload(ctx); ok {
				qr.show(ref)
			}
		}
	}
	if err := w.run(ctx); err != nil {
		return err
	}
	s.log.Info("Logged into WhatsApp Web")
	return nil
}

// loginWait runs wait under the login deadline, logging progress and
// calling poll periodically while it is pending.
type loginWait struct {
	log       logrus.FieldLogger
	timeout   time.Duration
	progress  time.Duration
	wait      func(ctx context.Context) error
	poll      func(ctx context.Context)
	pollEvery time.Duration
}

func (w loginWait) run(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.wait(waitCtx) }()

	progress := time.NewTicker(w.progress)
	defer progress.Stop()

	var pollTick <-chan time.Time
	if w.poll != nil && w.pollEvery > 0 {
		t := time.NewTicker(w.pollEvery)
		defer t.Stop()
		pollTick = t.C
	}

	start := time.Now()
	for {
		select {
		case err := <-done:
			if err == nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// chromedp reports a cancelled action rather than the deadline
			// that cancelled it, so the wait context decides.
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w within %d seconds", ErrLoginTimeout, int(w.timeout.Seconds()))
			}
			return fmt.Errorf("failed to load WhatsApp Web: %w", err)
		case <-progress.C:
			if remaining := w.timeout - time.Since(start); remaining > 0 {
				w.log.Infof("Still waiting for WhatsApp Web login... (%.0f seconds remaining)", remaining.Seconds())
			}
		case <-pollTick:
			w.poll(waitCtx)
		}
	}
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.log.Info("Closing browser...")
		if s.cancel != nil {
			s.cancel()
		}
		if s.allocCancel != nil {
			s.allocCancel()
		}
	})
	return nil
}

// run executes actions on the session's tab. ctx only contributes
// cancellation; chromedp needs its own context to locate the tab.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = actionTimeout
	}
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, 0, chromedp.Navigate(url))
}

func (s *Session) WaitPresent(ctx context.Context, loc Locator, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.WaitReady(loc.Selector, loc.queryOptions()...))
}

func (s *Session) WaitClickable(ctx context.Context, loc Locator, timeout time.Duration) error {
	opts := loc.queryOptions()
	return s.run(ctx, timeout,
		chromedp.WaitVisible(loc.Selector, opts...),
		chromedp.WaitEnabled(loc.Selector, opts...),
	)
}

func (s *Session) Click(ctx context.Context, loc Locator) error {
	return s.run(ctx, 0, chromedp.Click(loc.Selector, loc.queryOptions()...))
}

func (s *Session) SendKeys(ctx context.Context, loc Locator, text string) error {
	return s.run(ctx, 0, chromedp.SendKeys(loc.Selector, text, loc.queryOptions()...))
}

func (s *Session) ShiftEnter(ctx context.Context, loc Locator) error {
	return s.run(ctx, 0,
		chromedp.Focus(loc.Selector, loc.queryOptions()...),
		chromedp.KeyEvent(kb.Enter, chromedp.KeyModifiers(input.ModifierShift)),
	)
}

func (s *Session) PressEnter(ctx context.Context, loc Locator) error {
	return s.run(ctx, 0, chromedp.SendKeys(loc.Selector, kb.Enter, loc.queryOptions()...))
}

func (s *Session) SetUploadFiles(ctx context.Context, loc Locator, path string) error {
	return s.run(ctx, 0, chromedp.SetUploadFiles(loc.Selector, []string{path}, loc.queryOptions()...))
}

func (s *Session) ScrollIntoView(ctx context.Context, loc Locator) error {
	return s.run(ctx, 0, chromedp.ScrollIntoView(loc.Selector, loc.queryOptions()...))
}

func explainStartError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "chrome failed to start"):
		return fmt.Errorf("chrome failed to start; close other Chrome windows using the same profile or clear the profile directory: %w", err)
	case strings.Contains(msg, "executable file not found"):
		return fmt.Errorf("chrome executable not found; set browser.chrome_path or install Chrome: %w", err)
	}
	return fmt.Errorf("failed to navigate to WhatsApp Web: %w", err)
}

// checkNetworkConnectivity verifies that WhatsApp Web is reachable.
func checkNetworkConnectivity(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, WebOrigin, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach WhatsApp Web: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("WhatsApp Web returned server error: %d", resp.StatusCode)
	}
	return nil
}

// ClearProfile deletes the persisted profile directory, logging the session
// out. It reports whether anything was removed.
func ClearProfile(dir string) (bool, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return false, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("failed to clear profile directory %s: %w", dir, err)
	}
	return true, nil
}
