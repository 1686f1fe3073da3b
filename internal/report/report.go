// Package report appends batch outcomes to a CSV file as contacts finish, so
// a crashed or canceled batch still leaves a record of what went out.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"campaignflow/internal/campaign"
)

const timestampLayout = "2006-01-02 15:04:05"

var header = []string{"batch_id", "row", "name", "phone", "status", "degraded", "error", "timestamp"}

// Recorder is a campaign.Observer that writes one CSV line per finished
// contact. The file is created with a header on first use and appended to on
// later batches.
type Recorder struct {
	path string
	log  logrus.FieldLogger
	now  func() time.Time

	mu      sync.Mutex
	batchID string
	written int
}

var _ campaign.Observer = (*Recorder)(nil)

func NewRecorder(path string, log logrus.FieldLogger) *Recorder {
	return &Recorder{path: path, log: log, now: time.Now}
}

func (r *Recorder) BatchStarted(batchID string, total int) {
	r.mu.Lock()
	r.batchID = batchID
	r.written = 0
	r.mu.Unlock()
	r.log.Infof("Recording outcomes of %d contacts to %s", total, r.path)
}

func (r *Recorder) ContactFinished(o campaign.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.append(r.record(o)); err != nil {
		r.log.Warnf("Failed to record outcome for %s: %v", o.Phone, err)
		return
	}
	r.written++
}

func (r *Recorder) BatchFinished(s campaign.Summary) {
	r.mu.Lock()
	n := r.written
	r.mu.Unlock()
	r.log.Infof("Recorded %d of %d outcomes for batch %s", n, len(s.Outcomes), s.BatchID)
}

func (r *Recorder) record(o campaign.Outcome) []string {
	return []string{
		r.batchID,
		strconv.Itoa(o.Row + 1),
		o.Name,
		o.Phone,
		o.Status.String(),
		strconv.FormatBool(o.Degraded),
		o.Error,
		r.now().Format(timestampLayout),
	}
}

func (r *Recorder) append(record []string) error {
	fileExists := true
	if _, err := os.Stat(r.path); errors.Is(err, fs.ErrNotExist) {
		fileExists = false
	}

	file, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open report CSV: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if !fileExists {
		if err := writer.Write(header); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
	}
	if err := writer.Write(record); err != nil {
		return fmt.Errorf("failed to write CSV record: %w", err)
	}
	writer.Flush()
	return writer.Error()
}

// Fanout forwards every event to each observer in order.
type Fanout []campaign.Observer

func (f Fanout) BatchStarted(batchID string, total int) {
	for _, o := range f {
		o.BatchStarted(batchID, total)
	}
}

func (f Fanout) ContactFinished(out campaign.Outcome) {
	for _, o := range f {
		o.ContactFinished(out)
	}
}

func (f Fanout) BatchFinished(s campaign.Summary) {
	for _, o := range f {
		o.BatchFinished(s)
	}
}
