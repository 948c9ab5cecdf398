package poller

import (
	"context"
	"sync"

	"matchwatch/internal/riot"
	"matchwatch/internal/tracking"
)

const (
	DetectorLatestMatch = "latest_match"
	DetectorActiveGame  = "active_game"
)

// Detection is the candidate "latest" match for an entity. Found is false
// when there is nothing to compare against yet.
type Detection struct {
	MatchID string
	Found   bool
}

// Detector decides which match id, if any, the poller should compare with
// the entity's stored pointer.
type Detector interface {
	Name() string
	Detect(ctx context.Context, tenant string, e tracking.Entity) (Detection, error)
}

// LatestMatchDetector reports the newest id in the player's match history.
type LatestMatchDetector struct{ Matches MatchSource }

func (LatestMatchDetector) Name() string { return DetectorLatestMatch }

func (d LatestMatchDetector) Detect(ctx context.Context, _ string, e tracking.Entity) (Detection, error) {
	id, ok, err := d.Matches.LatestMatchID(ctx, e.InternalID)
	if err != nil {
		return Detection{}, err
	}
	return Detection{MatchID: id, Found: ok}, nil
}

// maxPendingPolls bounds how long a finished game waits for its match record.
const maxPendingPolls = 10

type gameState struct {
	gameID  int64
	pending bool
	waited  int
	emitted string
}

// ActiveGameDetector watches the spectator endpoint and only consults the
// match history once a game the player was in has ended, or was replaced by
// another game. A pending finish is kept until the pointer reaches the match
// that was reported for it, so a failed dispatch is retried on the next poll.
type ActiveGameDetector struct {
	Games   GameSource
	Matches MatchSource

	mu     sync.Mutex
	states map[string]*gameState
}

func NewActiveGameDetector(games GameSource, matches MatchSource) *ActiveGameDetector {
	return &ActiveGameDetector{Games: games, Matches: matches, states: map[string]*gameState{}}
}

func (*ActiveGameDetector) Name() string { return DetectorActiveGame }

func (d *ActiveGameDetector) Detect(ctx context.Context, tenant string, e tracking.Entity) (Detection, error) {
	g, inGame, err := d.Games.ActiveGame(ctx, e.InternalID)
	if err != nil {
		return Detection{}, err
	}

	key := tenant + "|" + e.DisplayID
	d.mu.Lock()
	st, ok := d.states[key]
	if !ok {
		st = &gameState{}
		d.states[key] = st
	}
	switch {
	case inGame && st.gameID != 0 && st.gameID != g.GameID:
		st.pending = true
		st.gameID = g.GameID
	case inGame:
		st.gameID = g.GameID
	case st.gameID != 0:
		st.pending = true
		st.gameID = 0
	}
	if st.pending && st.emitted != "" && st.emitted == e.LastMatchID {
		st.pending, st.waited, st.emitted = false, 0, ""
	}
	lookup := st.pending || e.LastMatchID == ""
	d.mu.Unlock()

	if !lookup {
		return Detection{}, nil
	}

	id, found, err := d.Matches.LatestMatchID(ctx, e.InternalID)
	if err != nil {
		return Detection{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if st.pending {
		if found && id != e.LastMatchID {
			st.emitted = id
		} else {
			st.waited++
			if st.waited >= maxPendingPolls {
				st.pending, st.waited, st.emitted = false, 0, ""
			}
		}
	}
	return Detection{MatchID: id, Found: found}, nil
}

// Forget drops the state kept for an entity that is no longer tracked.
func (d *ActiveGameDetector) Forget(tenant, displayID string) {
	d.mu.Lock()
	delete(d.states, tenant+"|"+displayID)
	d.mu.Unlock()
}

var (
	_ Detector    = LatestMatchDetector{}
	_ Detector    = (*ActiveGameDetector)(nil)
	_ GameSource  = (*riot.Client)(nil)
	_ MatchSource = (*riot.Client)(nil)
)
