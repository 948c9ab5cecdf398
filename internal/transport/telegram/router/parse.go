package router

import (
	"strings"

	"github.com/google/uuid"
)

func newReqID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:12]
}

// tokenizeCommandLine splits command text into tokens. Quotes group words and
// a backslash escapes the next byte:
//
//	/track "Big Ava#EUW"
func tokenizeCommandLine(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var (
		out   []string
		buf   strings.Builder
		inQ   bool
		qChar byte
		esc   bool
	)
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, buf.String())
			buf.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case esc:
			buf.WriteByte(ch)
			esc = false
		case ch == '\\':
			esc = true
		case inQ:
			if ch == qChar {
				inQ = false
				continue
			}
			buf.WriteByte(ch)
		case ch == '"' || ch == '\'':
			inQ = true
			qChar = ch
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			flush()
		default:
			buf.WriteByte(ch)
		}
	}
	flush()
	return out
}

// splitCommandWord strips the leading slash and a "@botname" suffix from the
// first token: "/track@matchwatch_bot" yields ("track", "matchwatch_bot").
func splitCommandWord(tok string) (word, bot string) {
	word = strings.TrimPrefix(tok, "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word, bot = word[:i], word[i+1:]
	}
	return strings.ToLower(word), bot
}
