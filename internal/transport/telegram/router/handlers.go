package router

import (
	"context"
	"strconv"
	"strings"
	"time"

	"matchwatch/internal/poller"
	"matchwatch/internal/tracking"
	logx "matchwatch/pkg/logx"
	"matchwatch/pkg/tgui"
)

// StatusSource reports the poller state for /status.
type StatusSource interface {
	Snapshot() poller.Snapshot
}

// Handlers binds the chat commands to the tracking command surface.
type Handlers struct {
	Commands *tracking.Commands
	Status   StatusSource // optional
	Timeout  time.Duration
}

// Registry returns the matchwatch command set for CommandManager.SetRegistry.
func (h Handlers) Registry() []Command {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cmds := []Command{
		{
			Name:        "track",
			Description: "track a summoner and post their finished games",
			Usage:       "/track Name#Tag",
			Timeout:     timeout,
			Handle:      h.track,
		},
		{
			Name:        "untrack",
			Description: "stop tracking a summoner",
			Usage:       "/untrack Name#Tag",
			Timeout:     timeout,
			Handle:      h.untrack,
		},
		{
			Name:        "list",
			Aliases:     []string{"tracked"},
			Description: "list tracked summoners",
			Usage:       "/list",
			Handle:      h.list,
		},
		{
			Name:        "setchannel",
			Description: "choose where game results are posted",
			Usage:       "/setchannel [chat_id[:thread_id]]",
			Access:      AccessOwnerOnly,
			Timeout:     timeout,
			Handle:      h.setChannel,
		},
	}
	if h.Status != nil {
		cmds = append(cmds, Command{
			Name:        "status",
			Description: "poller state and last cycle",
			Usage:       "/status",
			Handle:      h.status,
		})
	}
	return cmds
}

// displayArg joins the arguments back together; Riot names may contain spaces.
func displayArg(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func (h Handlers) track(ctx context.Context, req *Request) error {
	id := displayArg(req.Args)
	if id == "" {
		return req.ReplyHTML(ctx, "Usage: "+tgui.Code("/track Name#Tag"))
	}
	res, err := h.Commands.Track(ctx, req.Tenant, id)
	switch res {
	case tracking.TrackOK:
		msg := "Tracking " + tgui.B(id) + " for game status."
		if err != nil {
			req.Logger.Error("tracking state not persisted", logx.Err(err))
			msg += "\n" + tgui.I("Warning: the change could not be saved and may be lost on restart.")
		}
		if h.Commands.Destination(req.Tenant) == "" {
			msg += "\nNo channel is set yet. An owner can pick one with " + tgui.Code("/setchannel") + "."
		}
		return req.ReplyHTML(ctx, msg)
	case tracking.TrackAlready:
		return req.ReplyHTML(ctx, tgui.B(id)+" is already tracked.")
	case tracking.TrackNotFound:
		return req.ReplyHTML(ctx, "Summoner "+tgui.B(id)+" doesn't exist.")
	}
	if err != nil {
		_ = req.Reply(ctx, "Could not reach the game service. Try again later.")
		return err
	}
	return req.Reply(ctx, "You need a tagline to track a user.")
}

func (h Handlers) untrack(ctx context.Context, req *Request) error {
	id := displayArg(req.Args)
	if id == "" {
		return req.ReplyHTML(ctx, "Usage: "+tgui.Code("/untrack Name#Tag"))
	}
	res, err := h.Commands.Untrack(ctx, req.Tenant, id)
	if res == tracking.UntrackNotTracked {
		return req.ReplyHTML(ctx, tgui.B(id)+" is not tracked.")
	}
	msg := "Stopped tracking " + tgui.B(id) + "."
	if err != nil {
		req.Logger.Error("tracking state not persisted", logx.Err(err))
		msg += "\n" + tgui.I("Warning: the change could not be saved and may be lost on restart.")
	}
	return req.ReplyHTML(ctx, msg)
}

func (h Handlers) list(ctx context.Context, req *Request) error {
	ids := h.Commands.List(req.Tenant)
	title := tgui.B("Tracked summoners (" + strconv.Itoa(len(ids)) + ")")
	return req.ReplyHTML(ctx, tgui.List(title, ids, "Nothing tracked yet. Use /track Name#Tag."))
}

func (h Handlers) setChannel(ctx context.Context, req *Request) error {
	ref := req.Chat.String()
	if len(req.Args) > 0 {
		ref = strings.TrimSpace(req.Args[0])
	}
	res, err := h.Commands.SetDestination(ctx, req.Tenant, ref)
	if res == tracking.DestinationInvalid {
		return req.ReplyHTML(ctx, "Cannot post to "+tgui.Code(ref)+". Check the chat id and that the bot is a member there.")
	}
	msg := "Game results will be posted to " + tgui.Code(h.Commands.Destination(req.Tenant)) + "."
	if err != nil {
		req.Logger.Error("tracking state not persisted", logx.Err(err))
		msg += "\n" + tgui.I("Warning: the change could not be saved and may be lost on restart.")
	}
	return req.ReplyHTML(ctx, msg)
}

func (h Handlers) status(ctx context.Context, req *Request) error {
	snap := h.Status.Snapshot()
	dest := h.Commands.Destination(req.Tenant)
	if dest == "" {
		dest = "not set"
	}
	card := tgui.NewCard(tgui.B("matchwatch status")).
		KV("Poller", snap.State).
		KV("Detector", snap.Detector).
		KV("Cycles", strconv.FormatUint(snap.Cycles, 10)).
		KV("Dropped ticks", strconv.FormatUint(snap.DroppedTicks, 10)).
		KV("Tracked here", strconv.Itoa(len(h.Commands.List(req.Tenant)))).
		KV("Channel", dest)
	if last := snap.Last; last != nil {
		if last.Skipped {
			card.Line(tgui.I("Last cycle skipped: " + last.SkipReason))
		} else {
			card.KV("Last cycle", last.StartedAt.UTC().Format(time.RFC3339)+" ("+last.Duration.Round(time.Millisecond).String()+")")
			card.Line(tgui.Esc("notified " + strconv.Itoa(last.Notified) +
				", baselined " + strconv.Itoa(last.Baselined) +
				", suppressed " + strconv.Itoa(last.Suppressed) +
				", evicted " + strconv.Itoa(last.Evicted) +
				", failed " + strconv.Itoa(last.Failed)))
		}
	}
	return req.ReplyHTML(ctx, card.HTML())
}
