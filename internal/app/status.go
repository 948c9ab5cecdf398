package app

import (
	"context"
	"time"

	"matchwatch/internal/dispatch"
	"matchwatch/internal/observability/server"
	"matchwatch/internal/poller"
	"matchwatch/internal/storage"
	"matchwatch/internal/task/scheduler"
)

// Status is the /status document of the ops server.
type Status struct {
	Bot       string                 `json:"bot"`
	Tenants   int                    `json:"tenants"`
	Entities  int                    `json:"entities"`
	Champions ChampionStatus         `json:"champions"`
	Poller    poller.Snapshot        `json:"poller"`
	Scheduler scheduler.Snapshot     `json:"scheduler"`
	Recent    []dispatch.HistoryItem `json:"recent_notifications,omitempty"`
}

type ChampionStatus struct {
	Count   int    `json:"count"`
	Version string `json:"version,omitempty"`
}

const (
	recentNotifications = 10
	storagePingTimeout  = 2 * time.Second
)

func (a *App) status() any {
	tenants, entities := a.store.Counts()
	recent := a.disp.History()
	if len(recent) > recentNotifications {
		recent = recent[len(recent)-recentNotifications:]
	}
	return Status{
		Bot:       a.adapter.Username(),
		Tenants:   tenants,
		Entities:  entities,
		Champions: ChampionStatus{Count: a.names.Len(), Version: a.names.Version()},
		Poller:    a.poller.Snapshot(),
		Scheduler: a.sched.Snapshot(),
		Recent:    recent,
	}
}

// health reports problems an operator has to act on. Upstream hiccups are
// not problems; they heal on the next cycle.
func (a *App) health() server.Health {
	var problems []string
	if a.loadErr != nil {
		problems = append(problems, "tracking state unreadable at startup: "+a.loadErr.Error())
	}
	if p := storageProblem(context.Background(), a.backend); p != "" {
		problems = append(problems, p)
	}
	if a.sup != nil {
		if err := a.sup.Err(); err != nil {
			problems = append(problems, "supervisor: "+err.Error())
		}
	}
	if last := a.poller.Snapshot().Last; last != nil && last.SaveError != "" {
		problems = append(problems, "last cycle not persisted: "+last.SaveError)
	}
	return server.Health{OK: len(problems) == 0, Problems: problems}
}

// storageProblem pings server-backed storage; file and sqlite report nothing.
func storageProblem(ctx context.Context, b storage.Backend) string {
	p, ok := b.(storage.Pinger)
	if !ok {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, storagePingTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return "storage unreachable: " + err.Error()
	}
	return ""
}
