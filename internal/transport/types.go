package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

// ChatTarget addresses a chat and, optionally, a forum thread inside it.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

func (t ChatTarget) IsZero() bool { return t.ChatID == 0 }

// String renders the target as a destination reference: "<chat>" or "<chat>:<thread>".
func (t ChatTarget) String() string {
	if t.ThreadID != 0 {
		return strconv.FormatInt(t.ChatID, 10) + ":" + strconv.Itoa(t.ThreadID)
	}
	return strconv.FormatInt(t.ChatID, 10)
}

var (
	ErrBadTarget = errors.New("invalid chat target")
	// ErrChatUnreachable is returned by adapters when the chat does not exist
	// or the bot cannot post there. Retrying does not help.
	ErrChatUnreachable = errors.New("chat unreachable")
)

// ParseChatTarget parses a destination reference produced by ChatTarget.String.
func ParseChatTarget(ref string) (ChatTarget, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ChatTarget{}, ErrBadTarget
	}
	chatPart, threadPart, hasThread := strings.Cut(ref, ":")
	chatID, err := strconv.ParseInt(strings.TrimSpace(chatPart), 10, 64)
	if err != nil || chatID == 0 {
		return ChatTarget{}, fmt.Errorf("%w: %q", ErrBadTarget, ref)
	}
	t := ChatTarget{ChatID: chatID}
	if hasThread {
		thread, err := strconv.Atoi(strings.TrimSpace(threadPart))
		if err != nil || thread < 0 {
			return ChatTarget{}, fmt.Errorf("%w: %q", ErrBadTarget, ref)
		}
		t.ThreadID = thread
	}
	return t, nil
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// ChatResolver is implemented by adapters that can check a chat is reachable
// before it is stored as a destination.
type ChatResolver interface {
	ResolveChat(ctx context.Context, to ChatTarget) error
}

// BotCommand is a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters with a platform command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
