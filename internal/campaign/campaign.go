// Package campaign runs a batch: one browser session, every contact in table
// order, a randomized pause between sends.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"campaignflow/internal/browser"
	"campaignflow/internal/config"
	"campaignflow/internal/contacts"
	"campaignflow/internal/sender"
	"campaignflow/internal/template"
)

// Batch is one send request.
type Batch struct {
	Contacts  *contacts.Table
	Template  string
	Variables []string
	MediaPath string
}

// SessionFactory launches the browser a batch runs against.
type SessionFactory interface {
	Launch(ctx context.Context) (browser.Browser, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, page browser.Page, target sender.Target, message, mediaPath string) sender.Result
}

// SetupError means the batch never reached its first contact: the browser
// could not be launched or the login wait timed out.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string { return "session setup failed: " + e.Err.Error() }

func (e *SetupError) Unwrap() error { return e.Err }

// IsSetupFailure reports whether err aborted a batch before any contact.
func IsSetupFailure(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}

type Runner struct {
	sessions  SessionFactory
	deliverer Deliverer
	log       logrus.FieldLogger
	observer  Observer

	sleep     sender.Sleeper
	rnd       *rand.Rand
	now       func() time.Time
	pacingMin int
	pacingMax int
}

type Option func(*Runner)

func WithObserver(o Observer) Option { return func(r *Runner) { r.observer = o } }

// WithSleeper replaces the pause taken between contacts.
func WithSleeper(s sender.Sleeper) Option { return func(r *Runner) { r.sleep = s } }

func WithRand(rnd *rand.Rand) Option { return func(r *Runner) { r.rnd = rnd } }

func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

func NewRunner(sessions SessionFactory, deliverer Deliverer, cfg config.SendingConfig, log logrus.FieldLogger, opts ...Option) *Runner {
	r := &Runner{
		sessions:  sessions,
		deliverer: deliverer,
		log:       log,
		observer:  NopObserver{},
		sleep:     sender.Sleep,
		rnd:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:       time.Now,
		pacingMin: cfg.PacingMinSeconds,
		pacingMax: cfg.PacingMaxSeconds,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sends batch and returns its summary. The summary is non-nil whenever
// the batch started; it is returned together with a *SetupError when the
// session could not be established, or with ctx's error when the batch was
// canceled between contacts. Per-contact failures never end the batch.
func (r *Runner) Run(ctx context.Context, batch Batch) (summary *Summary, err error) {
	if batch.Contacts == nil {
		return nil, fmt.Errorf("batch has no contact table")
	}
	if err := batch.Contacts.RequireColumns(contacts.PhoneColumn); err != nil {
		return nil, err
	}

	rows := batch.Contacts.Rows
	summary = &Summary{
		BatchID:   uuid.NewString(),
		StartedAt: r.now(),
		Outcomes:  make([]Outcome, 0, len(rows)),
	}
	log := r.log.WithField("batch", summary.BatchID)

	r.observer.BatchStarted(summary.BatchID, len(rows))
	defer func() {
		summary.FinishedAt = r.now()
		r.observer.BatchFinished(*summary)
	}()

	session, err := r.sessions.Launch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("Batch canceled while starting the browser")
			return summary, ctx.Err()
		}
		log.Errorf("Could not start browser session: %v", err)
		return summary, &SetupError{Err: err}
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Warnf("Failed to close browser session: %v", cerr)
		}
	}()

	if err := session.WaitForLogin(ctx); err != nil {
		if ctx.Err() != nil {
			log.Warn("Batch canceled while waiting for WhatsApp Web login")
			return summary, ctx.Err()
		}
		log.Errorf("WhatsApp Web login did not complete: %v", err)
		return summary, &SetupError{Err: err}
	}

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			log.Warnf("Batch canceled after %d of %d contacts", i, len(rows))
			return summary, err
		}

		log.Infof("Processing contact %d/%d", i+1, len(rows))
		outcome := r.process(ctx, log, session, i, row, batch)
		summary.record(outcome)
		r.observer.ContactFinished(outcome)

		if outcome.Status == StatusSkipped || i == len(rows)-1 {
			continue
		}

		pause := r.pacing()
		log.Infof("Sleeping %v before next message...", pause)
		if err := r.sleep(ctx, pause); err != nil {
			log.Warnf("Batch canceled after %d of %d contacts", i+1, len(rows))
			return summary, err
		}
	}

	log.Infof("Batch finished: %d sent, %d skipped, %d failed", summary.Sent, summary.Skipped, summary.Failed)
	return summary, nil
}

func (r *Runner) process(ctx context.Context, log logrus.FieldLogger, page browser.Page, i int, row contacts.Row, batch Batch) Outcome {
	phone, ok := contacts.NormalizePhone(row[contacts.PhoneColumn])
	name := contacts.ResolveDisplayName(row)
	if !ok {
		log.Warnf("Skipping invalid phone number: %q", phone)
		return Outcome{Row: i, Phone: phone, Name: name, Status: StatusSkipped, Error: "invalid phone number"}
	}

	message := template.Render(batch.Template, row, batch.Variables)
	res := r.deliverer.Deliver(ctx, page, sender.Target{Phone: phone, Name: name}, message, batch.MediaPath)

	outcome := Outcome{Row: i, Phone: phone, Name: name, Status: StatusSent, Degraded: res.Degraded}
	if !res.OK() {
		outcome.Status = StatusFailed
		outcome.Error = res.Err.Error()
	}
	return outcome
}

// pacing draws a whole number of seconds uniformly from the configured range.
func (r *Runner) pacing() time.Duration {
	lo, hi := r.pacingMin, r.pacingMax
	if hi <= lo {
		return time.Duration(lo) * time.Second
	}
	return time.Duration(lo+r.rnd.IntN(hi-lo+1)) * time.Second
}
