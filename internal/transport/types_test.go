package transport

import (
	"errors"
	"testing"
)

func TestParseChatTarget(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		ref  string
		want ChatTarget
		err  bool
	}{
		{name: "chat only", ref: "-100123", want: ChatTarget{ChatID: -100123}},
		{name: "chat and thread", ref: "-100123:7", want: ChatTarget{ChatID: -100123, ThreadID: 7}},
		{name: "spaces", ref: "  42 : 3 ", want: ChatTarget{ChatID: 42, ThreadID: 3}},
		{name: "empty", ref: "", err: true},
		{name: "zero chat", ref: "0", err: true},
		{name: "garbage", ref: "general", err: true},
		{name: "bad thread", ref: "42:x", err: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseChatTarget(tt.ref)
			if tt.err {
				if !errors.Is(err, ErrBadTarget) {
					t.Fatalf("ParseChatTarget(%q) err = %v, want ErrBadTarget", tt.ref, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseChatTarget(%q) error: %v", tt.ref, err)
			}
			if got != tt.want {
				t.Fatalf("ParseChatTarget(%q) = %+v, want %+v", tt.ref, got, tt.want)
			}
		})
	}
}

func TestChatTargetStringRoundTrip(t *testing.T) {
	t.Parallel()
	for _, in := range []ChatTarget{{ChatID: 5}, {ChatID: -100999, ThreadID: 12}} {
		got, err := ParseChatTarget(in.String())
		if err != nil || got != in {
			t.Fatalf("round trip %+v -> %q -> %+v (%v)", in, in.String(), got, err)
		}
	}
}
