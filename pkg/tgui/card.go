package tgui

import "strings"

// Card renders a title line followed by "label: value" rows.
//
//	<b>Ava#EUW</b> has finished their game!
//	Result: <b>Won</b>
type Card struct {
	title  H
	rows   []H
	footer H
}

func NewCard(title H) *Card { return &Card{title: title} }

// KV adds a row; rows with an empty value are skipped.
func (c *Card) KV(label, value string) *Card {
	if strings.TrimSpace(value) == "" {
		return c
	}
	c.rows = append(c.rows, Esc(label)+": "+B(value))
	return c
}

// Line adds a free-form row.
func (c *Card) Line(h H) *Card {
	if h != "" {
		c.rows = append(c.rows, h)
	}
	return c
}

func (c *Card) Footer(h H) *Card {
	c.footer = h
	return c
}

func (c *Card) HTML() H {
	parts := make([]H, 0, len(c.rows)+2)
	parts = append(parts, c.title)
	parts = append(parts, c.rows...)
	parts = append(parts, c.footer)
	return JoinH("\n", parts...)
}

// List renders items as "• item" lines under a title, or empty when there are none.
func List(title H, items []string, empty string) H {
	if len(items) == 0 {
		return JoinH("\n", title, I(empty))
	}
	lines := make([]H, 0, len(items)+1)
	lines = append(lines, title)
	for _, it := range items {
		lines = append(lines, "• "+Code(it))
	}
	return JoinH("\n", lines...)
}
