package campaign

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaignflow/internal/browser"
	"campaignflow/internal/browser/browsertest"
	"campaignflow/internal/config"
	"campaignflow/internal/contacts"
	"campaignflow/internal/logging"
	"campaignflow/internal/sender"
)

var pacingConfig = config.SendingConfig{PacingMinSeconds: 5, PacingMaxSeconds: 15}

type fakeSessions struct {
	page *browsertest.Page
	err  error
}

func (f *fakeSessions) Launch(context.Context) (browser.Browser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

type delivery struct {
	Target  sender.Target
	Message string
	Media   string
}

type fakeDeliverer struct {
	mu      sync.Mutex
	calls   []delivery
	results map[string]sender.Result
	onCall  func(n int)
}

func (f *fakeDeliverer) Deliver(_ context.Context, _ browser.Page, target sender.Target, message, media string) sender.Result {
	f.mu.Lock()
	f.calls = append(f.calls, delivery{Target: target, Message: message, Media: media})
	n := len(f.calls)
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(n)
	}
	return f.results[target.Phone]
}

type sleepRecorder struct {
	durations []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.durations = append(s.durations, d)
	return ctx.Err()
}

type recordingObserver struct {
	started  string
	total    int
	outcomes []Outcome
	finished *Summary
}

func (o *recordingObserver) BatchStarted(id string, total int) { o.started, o.total = id, total }
func (o *recordingObserver) ContactFinished(out Outcome)       { o.outcomes = append(o.outcomes, out) }
func (o *recordingObserver) BatchFinished(s Summary)           { o.finished = &s }

func table(rows ...contacts.Row) *contacts.Table {
	return &contacts.Table{Columns: []string{"phone", "name"}, Rows: rows}
}

func newRunner(sessions SessionFactory, d Deliverer, opts ...Option) (*Runner, *sleepRecorder) {
	rec := &sleepRecorder{}
	opts = append([]Option{WithSleeper(rec.sleep), WithRand(rand.New(rand.NewPCG(7, 11)))}, opts...)
	return NewRunner(sessions, d, pacingConfig, logging.Discard(), opts...), rec
}

func TestRunSkipsInvalidPhoneAndKeepsOrder(t *testing.T) {
	page := browsertest.New()
	d := &fakeDeliverer{}
	obs := &recordingObserver{}
	r, sleeps := newRunner(&fakeSessions{page: page}, d, WithObserver(obs))

	summary, err := r.Run(context.Background(), Batch{
		Contacts: table(
			contacts.Row{"phone": "+1 555 0100", "name": "Ann"},
			contacts.Row{"phone": "12ab", "name": "Bob"},
			contacts.Row{"phone": "447700900123", "name": ""},
		),
		Template:  "Hi {name}!",
		Variables: []string{"name"},
		MediaPath: "/tmp/promo.jpg",
	})
	require.NoError(t, err)

	require.Len(t, d.calls, 2)
	assert.Equal(t, sender.Target{Phone: "15550100", Name: "Ann"}, d.calls[0].Target)
	assert.Equal(t, "Hi Ann!", d.calls[0].Message)
	assert.Equal(t, "/tmp/promo.jpg", d.calls[0].Media)
	assert.Equal(t, sender.Target{Phone: "447700900123", Name: contacts.FallbackName}, d.calls[1].Target)
	assert.Equal(t, "Hi !", d.calls[1].Message)

	assert.Equal(t, 2, summary.Sent)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 2, summary.Attempted())
	require.Len(t, summary.Outcomes, 3)
	assert.Equal(t, []Status{StatusSent, StatusSkipped, StatusSent},
		[]Status{summary.Outcomes[0].Status, summary.Outcomes[1].Status, summary.Outcomes[2].Status})
	assert.Equal(t, "12ab", summary.Outcomes[1].Phone)

	// One pause between the two attempts; none after a skip or the last row.
	assert.Len(t, sleeps.durations, 1)
	assert.Equal(t, 1, page.Closed())
	assert.Equal(t, 1, page.Count("waitlogin"))

	assert.Equal(t, summary.BatchID, obs.started)
	assert.Equal(t, 3, obs.total)
	assert.Len(t, obs.outcomes, 3)
	require.NotNil(t, obs.finished)
	assert.Equal(t, 2, obs.finished.Sent)
}

func TestRunLoginFailure(t *testing.T) {
	page := browsertest.New()
	page.LoginErr = browser.ErrLoginTimeout
	d := &fakeDeliverer{}
	obs := &recordingObserver{}
	r, _ := newRunner(&fakeSessions{page: page}, d, WithObserver(obs))

	summary, err := r.Run(context.Background(), Batch{
		Contacts: table(contacts.Row{"phone": "15550100"}),
		Template: "hello",
	})
	require.Error(t, err)
	assert.True(t, IsSetupFailure(err))
	assert.ErrorIs(t, err, browser.ErrLoginTimeout)
	assert.Empty(t, d.calls)
	assert.Equal(t, 1, page.Closed())
	require.NotNil(t, summary)
	assert.Empty(t, summary.Outcomes)
	assert.NotNil(t, obs.finished)
}

func TestRunLaunchFailure(t *testing.T) {
	d := &fakeDeliverer{}
	r, _ := newRunner(&fakeSessions{err: errors.New("chrome executable not found")}, d)

	_, err := r.Run(context.Background(), Batch{Contacts: table(contacts.Row{"phone": "1"}), Template: "x"})
	require.Error(t, err)
	assert.True(t, IsSetupFailure(err))
	assert.Contains(t, err.Error(), "chrome executable not found")
	assert.Empty(t, d.calls)
}

func TestRunCanceledDuringLogin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	page := browsertest.New()
	page.LoginErr = context.Canceled
	d := &fakeDeliverer{}
	r, _ := newRunner(&fakeSessions{page: page}, d)

	summary, err := r.Run(ctx, Batch{Contacts: table(contacts.Row{"phone": "15550100"}), Template: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsSetupFailure(err))
	assert.Empty(t, d.calls)
	assert.Equal(t, 1, page.Closed())
	require.NotNil(t, summary)
	assert.Empty(t, summary.Outcomes)
}

func TestRunCanceledDuringLaunch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, _ := newRunner(&fakeSessions{err: context.Canceled}, &fakeDeliverer{})

	_, err := r.Run(ctx, Batch{Contacts: table(contacts.Row{"phone": "1"}), Template: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsSetupFailure(err))
}

func TestRunRequiresPhoneColumn(t *testing.T) {
	page := browsertest.New()
	r, _ := newRunner(&fakeSessions{page: page}, &fakeDeliverer{})

	_, err := r.Run(context.Background(), Batch{
		Contacts: &contacts.Table{Columns: []string{"name"}, Rows: []contacts.Row{{"name": "Ann"}}},
	})
	assert.ErrorIs(t, err, contacts.ErrMissingColumn)
	assert.Zero(t, page.Closed())
}

func TestRunPacingWithinRange(t *testing.T) {
	rows := make([]contacts.Row, 40)
	for i := range rows {
		rows[i] = contacts.Row{"phone": "15550100"}
	}
	r, sleeps := newRunner(&fakeSessions{page: browsertest.New()}, &fakeDeliverer{})

	_, err := r.Run(context.Background(), Batch{Contacts: table(rows...), Template: "x"})
	require.NoError(t, err)

	require.Len(t, sleeps.durations, len(rows)-1)
	seen := map[time.Duration]bool{}
	for _, d := range sleeps.durations {
		assert.GreaterOrEqual(t, d, 5*time.Second)
		assert.LessOrEqual(t, d, 15*time.Second)
		assert.Zero(t, d%time.Second)
		seen[d] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestRunIsolatesFailures(t *testing.T) {
	d := &fakeDeliverer{results: map[string]sender.Result{
		"222": {Err: errors.New("composer not found")},
		"333": {Degraded: true},
	}}
	r, _ := newRunner(&fakeSessions{page: browsertest.New()}, d)

	summary, err := r.Run(context.Background(), Batch{
		Contacts: table(contacts.Row{"phone": "111"}, contacts.Row{"phone": "222"}, contacts.Row{"phone": "333"}),
		Template: "x",
	})
	require.NoError(t, err)
	assert.Len(t, d.calls, 3)
	assert.Equal(t, 2, summary.Sent)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, "composer not found", summary.Outcomes[1].Error)
	assert.True(t, summary.Outcomes[2].Degraded)
	assert.Equal(t, StatusSent, summary.Outcomes[2].Status)
}

func TestRunStopsWhenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	page := browsertest.New()
	d := &fakeDeliverer{onCall: func(n int) {
		if n == 1 {
			cancel()
		}
	}}
	r, _ := newRunner(&fakeSessions{page: page}, d)

	summary, err := r.Run(ctx, Batch{
		Contacts: table(contacts.Row{"phone": "111"}, contacts.Row{"phone": "222"}, contacts.Row{"phone": "333"}),
		Template: "x",
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsSetupFailure(err))
	assert.Len(t, d.calls, 1)
	require.NotNil(t, summary)
	assert.Len(t, summary.Outcomes, 1)
	assert.Equal(t, 1, page.Closed())
}

func TestStatusText(t *testing.T) {
	b, err := StatusFailed.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "failed", string(b))

	var s Status
	require.NoError(t, s.UnmarshalText([]byte("skipped")))
	assert.Equal(t, StatusSkipped, s)
	assert.Error(t, s.UnmarshalText([]byte("queued")))
}
