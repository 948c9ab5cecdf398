// Package summary turns a finished match into the payload of a notification.
package summary

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"matchwatch/internal/riot"
)

const DefaultMinDuration = 300 * time.Second

var ErrParticipantMissing = errors.New("participant missing from match")

// Summary is a rendered-agnostic description of one player's finished match.
type Summary struct {
	MatchID   string
	DisplayID string

	Result            string // "Won" or "Lost"
	Champion          string
	Kills             int
	Deaths            int
	Assists           int
	KDARatio          string // "9.00" or "Perfect KDA"
	KillParticipation string // "55%"
	Multikill         string // "-" or "Double Kill" ...
	Mode              string
	Duration          string // "m:ss"

	DurationSeconds int64
	CreepScore      int
	Gold            int
	Damage          int
	QueueID         int
	EndedAt         time.Time
}

func (s Summary) Won() bool { return s.Result == "Won" }

type Builder struct {
	MinDuration time.Duration
	Names       *NameTable
}

func NewBuilder(minDuration time.Duration, names *NameTable) *Builder {
	if minDuration <= 0 {
		minDuration = DefaultMinDuration
	}
	return &Builder{MinDuration: minDuration, Names: names}
}

// Build returns ok=false when the match is too short to report.
func (b *Builder) Build(detail *riot.MatchDetail, puuid string) (Summary, bool, error) {
	if detail == nil {
		return Summary{}, false, fmt.Errorf("%w: empty match detail", ErrParticipantMissing)
	}
	p, ok := detail.FindParticipant(puuid)
	if !ok {
		return Summary{}, false, fmt.Errorf("%w: match %s", ErrParticipantMissing, detail.Metadata.MatchID)
	}

	secs := durationSeconds(detail.Info)
	if time.Duration(secs)*time.Second < b.MinDuration {
		return Summary{}, false, nil
	}

	s := Summary{
		MatchID:           detail.Metadata.MatchID,
		Result:            resultLabel(p.Win),
		Champion:          b.Names.Name(p.ChampionID, p.ChampionName),
		Kills:             p.Kills,
		Deaths:            p.Deaths,
		Assists:           p.Assists,
		KDARatio:          KDALabel(p.Kills, p.Deaths, p.Assists),
		KillParticipation: strconv.Itoa(int(math.Round(killParticipation(detail, p)*100))) + "%",
		Multikill:         MultikillLabel(p.LargestMultiKill),
		Mode:              ModeLabel(detail.Info.GameMode),
		Duration:          DurationLabel(secs),
		DurationSeconds:   secs,
		CreepScore:        p.TotalMinionsKilled + p.NeutralMinionsKilled,
		Gold:              p.GoldEarned,
		Damage:            p.TotalDamageDealtToChampions,
		QueueID:           detail.Info.QueueID,
	}
	if detail.Info.GameEndTimestamp > 0 {
		s.EndedAt = time.UnixMilli(detail.Info.GameEndTimestamp)
	}
	return s, true, nil
}

// durationSeconds handles matches older than patch 11.20, which report
// gameDuration in milliseconds and no end timestamp.
func durationSeconds(info riot.MatchInfo) int64 {
	if info.GameEndTimestamp == 0 && info.GameDuration > 100_000 {
		return info.GameDuration / 1000
	}
	return info.GameDuration
}

func killParticipation(d *riot.MatchDetail, p *riot.Participant) float64 {
	if p.Challenges != nil {
		return p.Challenges.KillParticipation
	}
	team := d.TeamKills(p.TeamID)
	if team == 0 {
		return 0
	}
	return float64(p.Kills+p.Assists) / float64(team)
}

func resultLabel(win bool) string {
	if win {
		return "Won"
	}
	return "Lost"
}

func KDALabel(kills, deaths, assists int) string {
	if deaths == 0 {
		return "Perfect KDA"
	}
	r := float64(kills+assists) / float64(deaths)
	return strconv.FormatFloat(math.Round(r*100)/100, 'f', 2, 64)
}

func MultikillLabel(largest int) string {
	switch {
	case largest >= 5:
		return "Penta Kill"
	case largest == 4:
		return "Quadra Kill"
	case largest == 3:
		return "Triple Kill"
	case largest == 2:
		return "Double Kill"
	default:
		return "-"
	}
}

var modeLabels = map[string]string{
	"CLASSIC": "Summoner's Rift",
	"ARAM":    "ARAM",
	"URF":     "Ultra Rapid Fire",
	"CHERRY":  "Arena",
}

// ModeLabel maps known game mode codes; others pass through unchanged.
func ModeLabel(code string) string {
	if l, ok := modeLabels[code]; ok {
		return l
	}
	return code
}

func DurationLabel(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
