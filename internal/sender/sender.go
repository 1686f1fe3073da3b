// Package sender delivers one personalized message to one contact through
// an open WhatsApp Web page.
package sender

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"campaignflow/internal/browser"
	"campaignflow/internal/config"
)

const (
	fallbackTimeout = 2 * time.Second
	scrollSettle    = 500 * time.Millisecond
)

// ChatURL is the deep link that opens a chat with phone and an empty draft.
func ChatURL(phone string) string {
	return fmt.Sprintf("%s/send?phone=%s&text&app_absent=0", browser.WebOrigin, phone)
}

// Target is the recipient of one delivery.
type Target struct {
	Phone string
	Name  string
}

// Result is the outcome of Deliver. Err is nil when the message was
// submitted. Degraded is set when a requested attachment could not be sent
// and the message went out as text only.
type Result struct {
	Err      error
	Degraded bool
}

func (r Result) OK() bool { return r.Err == nil }

type Deliverer struct {
	locators Locators
	typist   *Typist
	sleep    Sleeper
	log      logrus.FieldLogger

	composerTimeout   time.Duration
	attachTimeout     time.Duration
	fileInputTimeout  time.Duration
	sendButtonTimeout time.Duration
	attachMenuDelay   time.Duration
	uploadSettle      time.Duration
}

type Option func(*Deliverer)

func WithLocators(l Locators) Option { return func(d *Deliverer) { d.locators = l } }

// WithSleeper replaces every pause the deliverer takes, keystroke delays
// included.
func WithSleeper(s Sleeper) Option {
	return func(d *Deliverer) {
		d.sleep = s
		d.typist.Sleep = s
	}
}

func WithRand(r *rand.Rand) Option { return func(d *Deliverer) { d.typist.Rand = r } }

func New(cfg config.SendingConfig, log logrus.FieldLogger, opts ...Option) *Deliverer {
	d := &Deliverer{
		locators: DefaultLocators(),
		typist: &Typist{
			Min:   time.Duration(cfg.TypingMinMillis) * time.Millisecond,
			Max:   time.Duration(cfg.TypingMaxMillis) * time.Millisecond,
			Rand:  rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
			Sleep: Sleep,
		},
		sleep: Sleep,
		log:   log,

		composerTimeout:   time.Duration(cfg.ComposerTimeoutSeconds) * time.Second,
		attachTimeout:     time.Duration(cfg.AttachTimeoutSeconds) * time.Second,
		fileInputTimeout:  time.Duration(cfg.FileInputTimeoutSeconds) * time.Second,
		sendButtonTimeout: time.Duration(cfg.SendButtonTimeoutSeconds) * time.Second,
		attachMenuDelay:   time.Duration(cfg.AttachMenuDelayMillis) * time.Millisecond,
		uploadSettle:      time.Duration(cfg.UploadSettleMillis) * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver opens the chat for target, types message and submits it, with
// mediaPath attached when it names an existing file. It never panics and
// never returns an error directly: every failure is reported in the Result.
func (d *Deliverer) Deliver(ctx context.Context, page browser.Page, target Target, message, mediaPath string) (res Result) {
	log := d.log.WithFields(logrus.Fields{"phone": target.Phone, "name": target.Name})

	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("unexpected failure: %v", r)}
		}
		if res.Err != nil {
			log.Errorf("Error sending to %s: %v", target.Phone, res.Err)
		}
	}()

	degraded, err := d.deliver(ctx, page, log, target, message, mediaPath)
	return Result{Err: err, Degraded: degraded}
}

func (d *Deliverer) deliver(ctx context.Context, page browser.Page, log logrus.FieldLogger,
	target Target, message, mediaPath string) (bool, error) {
	log.Infof("Opening chat with %s (%s)...", target.Phone, target.Name)
	if err := page.Navigate(ctx, ChatURL(target.Phone)); err != nil {
		return false, fmt.Errorf("failed to open chat: %w", err)
	}

	composer, err := browser.FirstMatch(ctx, log, "message composer", d.locators.Composer,
		d.composerTimeout, fallbackTimeout, page.WaitPresent)
	if err != nil {
		return false, err
	}

	if err := d.typist.Type(ctx, page, composer, message); err != nil {
		return false, err
	}

	if mediaPath == "" {
		return false, d.submitText(ctx, page, log, composer, target)
	}

	info, err := os.Stat(mediaPath)
	if err != nil || info.IsDir() {
		log.Warnf("Media file %s not found, sending text only", mediaPath)
		return true, d.submitText(ctx, page, log, composer, target)
	}

	log.Infof("Attaching media: %s (%s)", mediaPath, humanize.Bytes(uint64(info.Size())))
	attach, err := browser.FirstMatch(ctx, log, "attach button", d.locators.Attach,
		d.attachTimeout, fallbackTimeout, page.WaitClickable)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		log.Warnf("Could not find attach button, sending message without media: %v", err)
		return true, d.submitText(ctx, page, log, composer, target)
	}

	if err := d.sendAttachment(ctx, page, log, attach, mediaPath); err != nil {
		return false, err
	}
	log.Infof("Message with media sent to %s (%s)", target.Name, target.Phone)
	return false, nil
}

func (d *Deliverer) submitText(ctx context.Context, page browser.Page, log logrus.FieldLogger,
	composer browser.Locator, target Target) error {
	if err := page.PressEnter(ctx, composer); err != nil {
		return fmt.Errorf("failed to submit message: %w", err)
	}
	log.Infof("Message sent to %s (%s)", target.Name, target.Phone)
	return nil
}

func (d *Deliverer) sendAttachment(ctx context.Context, page browser.Page, log logrus.FieldLogger,
	attach browser.Locator, mediaPath string) error {
	if err := page.Click(ctx, attach); err != nil {
		return fmt.Errorf("failed to open attach menu: %w", err)
	}
	if err := d.sleep(ctx, d.attachMenuDelay); err != nil {
		return err
	}

	kind := MediaKind(mediaPath)
	inputs := d.locators.DocumentInput
	if kind == KindMedia {
		inputs = d.locators.MediaInput
	}
	input, err := browser.FirstMatch(ctx, log, kind.String()+" file input", inputs,
		d.fileInputTimeout, fallbackTimeout, page.WaitPresent)
	if err != nil {
		return err
	}

	absPath, err := filepath.Abs(mediaPath)
	if err != nil {
		return fmt.Errorf("failed to resolve media path: %w", err)
	}
	if err := page.SetUploadFiles(ctx, input, absPath); err != nil {
		return fmt.Errorf("failed to upload media: %w", err)
	}
	if err := d.sleep(ctx, d.uploadSettle); err != nil {
		return err
	}

	send, err := browser.FirstMatch(ctx, log, "send button", d.locators.SendButton,
		d.sendButtonTimeout, fallbackTimeout, page.WaitClickable)
	if err != nil {
		return err
	}
	if err := page.ScrollIntoView(ctx, send); err != nil {
		return fmt.Errorf("failed to scroll to send button: %w", err)
	}
	if err := d.sleep(ctx, scrollSettle); err != nil {
		return err
	}
	if err := page.Click(ctx, send); err != nil {
		return fmt.Errorf("failed to click send button: %w", err)
	}
	return nil
}
