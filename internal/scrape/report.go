package scrape

import (
	"time"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/harvest"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/types"
)

// ContactReport summarises one contact of a run.
type ContactReport struct {
	Name      string
	Status    types.ContactStatus
	Messages  int
	RowErrors int
	Stalls    int
	Outcome   harvest.RevealOutcome
	Duration  time.Duration
	Err       string
}

// Report summarises a run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Contacts   []ContactReport
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed counts failed contacts.
func (r *Report) Failed() int {
	n := 0
	for _, c := range r.Contacts {
		if c.Status == types.ContactFailed {
			n++
		}
	}
	return n
}

// Messages counts the records of successful contacts.
func (r *Report) Messages() int {
	n := 0
	for _, c := range r.Contacts {
		n += c.Messages
	}
	return n
}
