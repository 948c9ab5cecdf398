package poller

import (
	"time"

	"github.com/hashicorp/go-multierror"
)

// CycleReport summarizes one poll cycle.
type CycleReport struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Tenants    int           `json:"tenants"`
	Entities   int           `json:"entities"`
	Notified   int           `json:"notified"`
	Suppressed int           `json:"suppressed"`
	Baselined  int           `json:"baselined"`
	Unchanged  int           `json:"unchanged"`
	Evicted    int           `json:"evicted"`
	Failed     int           `json:"failed"`
	Skipped    bool          `json:"skipped,omitempty"`
	SkipReason string        `json:"skip_reason,omitempty"`
	Errors     []string      `json:"errors,omitempty"`
	SaveError  string        `json:"save_error,omitempty"`

	err error
}

// Err returns the aggregated per-entity and persistence errors, nil if none.
func (r CycleReport) Err() error { return r.err }

func (r CycleReport) result() string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.err != nil:
		return "errors"
	default:
		return "ok"
	}
}

func (r *CycleReport) finish(merr *multierror.Error) {
	if err := merr.ErrorOrNil(); err != nil {
		r.err = err
		for _, e := range merr.Errors {
			r.Errors = append(r.Errors, e.Error())
		}
	}
}

// Snapshot is the poller view served on /status.
type Snapshot struct {
	State        string       `json:"state"`
	Detector     string       `json:"detector"`
	Cycles       uint64       `json:"cycles"`
	DroppedTicks uint64       `json:"dropped_ticks"`
	Last         *CycleReport `json:"last,omitempty"`
}
