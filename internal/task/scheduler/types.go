package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"matchwatch/internal/eventbus"
	logx "matchwatch/pkg/logx"
)

type Config struct {
	Enabled  bool
	Timezone string // IANA name, e.g. "Europe/Berlin"; empty means local
}

// Job is invoked from the cron goroutine with the service context.
type Job func(ctx context.Context)

type jobDef struct {
	name    string
	spec    string
	parsed  ParsedSpec
	job     Job
	entryID cron.EntryID
	spread  time.Duration
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	bus eventbus.Bus
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	ctx    context.Context
	defs   []*jobDef
	now    func() time.Time
}

// JobInfo describes one registered job for /status.
type JobInfo struct {
	Name   string        `json:"name"`
	Spec   string        `json:"spec"`
	Spread time.Duration `json:"startup_spread,omitempty"`
	Next   time.Time     `json:"next,omitempty"`
	Prev   time.Time     `json:"prev,omitempty"`
}

type Snapshot struct {
	Enabled  bool      `json:"enabled"`
	Running  bool      `json:"running"`
	Timezone string    `json:"timezone"`
	Jobs     []JobInfo `json:"jobs"`
}
