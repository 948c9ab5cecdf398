package tgui

import "testing"

func TestEscapingHelpers(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		got  H
		want H
	}{
		{name: "bold", got: B("a<b"), want: "<b>a&lt;b</b>"},
		{name: "code", got: Code("x&y"), want: "<code>x&amp;y</code>"},
		{name: "link", got: Link(`"q"`, "https://e.x/?a=1&b=2"), want: `<a href="https://e.x/?a=1&amp;b=2">&#34;q&#34;</a>`},
		{name: "join skips blanks", got: JoinH(" | ", "a", " ", "b"), want: "a | b"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.got != tt.want {
				t.Fatalf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestCard(t *testing.T) {
	t.Parallel()
	got := NewCard(B("Ava#EUW")+" has finished their game!").
		KV("Result", "Won").
		KV("Skipped", "").
		Footer(I("M101")).
		HTML()
	want := H("<b>Ava#EUW</b> has finished their game!\nResult: <b>Won</b>\n<i>M101</i>")
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestList(t *testing.T) {
	t.Parallel()
	if got := List(B("Tracked"), nil, "nobody"); got != "<b>Tracked</b>\n<i>nobody</i>" {
		t.Fatalf("empty list = %q", got)
	}
	if got := List(B("Tracked"), []string{"A#1", "B#2"}, ""); got != "<b>Tracked</b>\n• <code>A#1</code>\n• <code>B#2</code>" {
		t.Fatalf("list = %q", got)
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	if got := TruncRunes("héllo", 3); got != "hél…" {
		t.Fatalf("TruncRunes = %q", got)
	}
	if got := TruncRunes("hi", 3); got != "hi" {
		t.Fatalf("TruncRunes = %q", got)
	}
}
