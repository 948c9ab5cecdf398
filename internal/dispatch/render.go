package dispatch

import (
	"strconv"

	"matchwatch/internal/summary"
	"matchwatch/pkg/tgui"
)

// Render formats a summary as Telegram HTML.
func Render(s summary.Summary) tgui.H {
	result := s.Result
	if s.Won() {
		result = "🏆 " + result
	} else {
		result = "💀 " + result
	}
	card := tgui.NewCard(tgui.B(s.DisplayID)+" has finished their game!").
		KV("Result", result).
		KV("Champion", s.Champion).
		KV("K/D/A", strconv.Itoa(s.Kills)+" / "+strconv.Itoa(s.Deaths)+" / "+strconv.Itoa(s.Assists)).
		KV("KDA", s.KDARatio).
		KV("Kill participation", s.KillParticipation).
		KV("Multikill", s.Multikill).
		KV("CS", itoaNonZero(s.CreepScore)).
		KV("Gold", itoaNonZero(s.Gold)).
		KV("Mode", s.Mode).
		KV("Duration", s.Duration)
	if s.MatchID != "" {
		card.Footer(tgui.I(s.MatchID))
	}
	return card.HTML()
}

func itoaNonZero(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// RenderNotFound is posted when a tracked player no longer resolves upstream.
func RenderNotFound(displayID string) tgui.H {
	return "Summoner " + tgui.B(displayID) + " doesn't exist."
}
