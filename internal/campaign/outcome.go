package campaign

import (
	"fmt"
	"time"
)

// Status is the fate of one contact in a batch.
type Status int

const (
	StatusSent Status = iota
	StatusSkipped
	StatusFailed
)

var statusNames = [...]string{"sent", "skipped", "failed"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	for i, name := range statusNames {
		if string(b) == name {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

// Outcome records what happened to one row of the contact table.
type Outcome struct {
	Row      int    `json:"row"`
	Phone    string `json:"phone"`
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
}

// Summary is returned once a batch ends, whatever the reason.
type Summary struct {
	BatchID    string    `json:"batch_id"`
	Sent       int       `json:"sent"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Outcomes   []Outcome `json:"outcomes"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (s *Summary) record(o Outcome) {
	switch o.Status {
	case StatusSent:
		s.Sent++
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
	s.Outcomes = append(s.Outcomes, o)
}

// Attempted counts contacts a delivery was tried for.
func (s *Summary) Attempted() int { return s.Sent + s.Failed }

func (s *Summary) Duration() time.Duration { return s.FinishedAt.Sub(s.StartedAt) }
