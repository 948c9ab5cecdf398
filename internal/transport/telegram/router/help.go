package router

import (
	"sort"
	"strings"

	"matchwatch/pkg/tgui"
)

// helpText renders help in Telegram HTML: the command list, or the details of
// one command when args names it.
func (m *CommandManager) helpText(args []string) tgui.H {
	m.mu.RLock()
	cmds := m.cmds
	alias := m.alias
	m.mu.RUnlock()

	if len(args) > 0 {
		name, _ := splitCommandWord(args[0])
		c, ok := cmds[name]
		if !ok {
			c, ok = alias[name]
		}
		if !ok {
			return tgui.JoinH("\n",
				tgui.B("Unknown command"),
				"Type "+tgui.Code("/help")+" to see the command list.",
			)
		}
		return commandHelp(c)
	}

	names := make([]string, 0, len(cmds))
	for n := range cmds {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := cmds[names[i]], cmds[names[j]]
		if a.Access != b.Access {
			return a.Access < b.Access
		}
		return names[i] < names[j]
	})

	lines := []tgui.H{tgui.B("Commands"), "Type " + tgui.Code("/help <cmd>") + " for details."}
	for _, n := range names {
		c := cmds[n]
		line := "• " + tgui.Code("/"+n)
		if d := strings.TrimSpace(c.Description); d != "" {
			line += " - " + tgui.Esc(d)
		}
		if c.Access == AccessOwnerOnly {
			line += " 🔒"
		}
		lines = append(lines, line)
	}
	return tgui.JoinH("\n", lines...)
}

func commandHelp(c Command) tgui.H {
	lines := []tgui.H{tgui.B("/" + c.Name)}
	if d := strings.TrimSpace(c.Description); d != "" {
		lines = append(lines, tgui.Esc(d))
	}
	if c.Access == AccessOwnerOnly {
		lines = append(lines, tgui.I("Owner only"))
	}
	if u := strings.TrimSpace(c.Usage); u != "" {
		lines = append(lines, tgui.B("Usage"), tgui.Code(u))
	}
	if len(c.Aliases) > 0 {
		al := make([]tgui.H, 0, len(c.Aliases))
		for _, a := range c.Aliases {
			al = append(al, tgui.Code("/"+a))
		}
		lines = append(lines, tgui.B("Aliases")+" "+tgui.JoinH(", ", al...))
	}
	return tgui.JoinH("\n", lines...)
}
