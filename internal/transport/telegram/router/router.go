package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"matchwatch/internal/runtime/supervisor"
	kit "matchwatch/internal/transport"
	logx "matchwatch/pkg/logx"
	"matchwatch/pkg/tgui"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

// Request is one routed command invocation.
type Request struct {
	Chat    kit.ChatTarget
	FromID  int64
	IsGroup bool
	Tenant  string
	Command string
	Args    []string
	ReqID   string
	Logger  logx.Logger

	adapter kit.Adapter
}

func (r *Request) logger(fallback logx.Logger) logx.Logger {
	if r == nil || r.Logger.IsZero() {
		return fallback
	}
	return r.Logger
}

// Reply sends plain text back to the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

func (r *Request) ReplyHTML(ctx context.Context, h tgui.H) error {
	_, err := r.adapter.SendText(ctx, r.Chat, h.String(), &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
	return err
}

// CommandManager routes chat messages to registered commands and runs them
// on a bounded worker pool.
type CommandManager struct {
	mu       sync.RWMutex
	cmds     map[string]Command
	alias    map[string]Command
	owners   []int64
	tenantID string
	botName  string

	log     logx.Logger
	adapter kit.Adapter

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor

	workers int
	jobs    chan func()

	limiter  *tenantLimiter
	observer CommandObserver
}

// DefaultCommandsPerMinute bounds how many commands one tenant may run per minute.
const DefaultCommandsPerMinute = 20

func NewCommandManager(log logx.Logger, adapter kit.Adapter, owners []int64) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	return &CommandManager{
		cmds:    map[string]Command{},
		alias:   map[string]Command{},
		owners:  append([]int64(nil), owners...),
		log:     log,
		adapter: adapter,
		workers: workers,
		jobs:    make(chan func(), 256),
		limiter: newTenantLimiter(DefaultCommandsPerMinute),
	}
}

// SetRateLimit replaces the per-tenant command budget. Zero disables limiting.
func (m *CommandManager) SetRateLimit(perMinute int) {
	m.mu.Lock()
	m.limiter = newTenantLimiter(perMinute)
	m.mu.Unlock()
}

// SetObserver installs a CommandObserver, typically the metrics collector.
func (m *CommandManager) SetObserver(obs CommandObserver) {
	m.mu.Lock()
	m.observer = obs
	m.mu.Unlock()
}

// SetOwners updates the owner list used for AccessOwnerOnly checks.
// Safe to call during hot-reload.
func (m *CommandManager) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owners = cp
	m.mu.Unlock()
}

// SetTenantID pins every chat to one tenant. Empty makes each chat its own tenant.
func (m *CommandManager) SetTenantID(id string) {
	m.mu.Lock()
	m.tenantID = strings.TrimSpace(id)
	m.mu.Unlock()
}

// SetBotUsername makes the router ignore "/cmd@otherbot" in groups.
func (m *CommandManager) SetBotUsername(name string) {
	m.mu.Lock()
	m.botName = strings.TrimPrefix(strings.TrimSpace(name), "@")
	m.mu.Unlock()
}

// TenantFor returns the tenant a chat belongs to.
func (m *CommandManager) TenantFor(chatID int64) string {
	m.mu.RLock()
	pinned := m.tenantID
	m.mu.RUnlock()
	if pinned != "" {
		return pinned
	}
	return strconv.FormatInt(chatID, 10)
}

func (m *CommandManager) isOwner(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.owners {
		if o == id {
			return true
		}
	}
	return false
}

// SetRegistry replaces the command set. /help is always added. The command
// menu is refreshed in the background when the adapter supports it.
func (m *CommandManager) SetRegistry(cmds []Command) {
	cmds = append(cmds, Command{
		Name:        "help",
		Aliases:     []string{"start"},
		Description: "show this help",
		Usage:       "/help [cmd]",
		Handle: func(ctx context.Context, req *Request) error {
			return req.ReplyHTML(ctx, m.helpText(req.Args))
		},
	})

	byName := map[string]Command{}
	alias := map[string]Command{}
	menu := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := sanitizeCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		byName[name] = c
		menu = append(menu, c)
	}
	for _, c := range byName {
		for _, a := range c.Aliases {
			a = sanitizeCommand(a)
			if a == "" {
				continue
			}
			if _, taken := byName[a]; taken {
				continue
			}
			alias[a] = c
		}
	}

	m.mu.Lock()
	m.cmds = byName
	m.alias = alias
	m.mu.Unlock()

	up, ok := m.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	items := buildMenuCommands(menu)
	run := func(parent context.Context) {
		ctx, cancel := context.WithTimeout(parent, 5*time.Second)
		defer cancel()
		if err := up.UpdateMenuCommands(ctx, items); err != nil {
			m.log.Warn("command menu update failed", logx.Err(err))
		}
	}
	if sup := m.Supervisor(); sup != nil {
		sup.Go0("telegram.menu.update", run)
		return
	}
	go run(context.Background())
}

// Supervisor returns the worker-pool supervisor, nil when not running.
func (m *CommandManager) Supervisor() *supervisor.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

func (m *CommandManager) setSupervisor(sup *supervisor.Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// tryEnqueue is a non-blocking enqueue that tolerates a closed jobs channel.
func (m *CommandManager) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := supervisor.New(ctx,
		supervisor.WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		supervisor.WithCancelOnError(false),
	)
	m.setSupervisor(sup, true)
	m.log.Info("command dispatcher started", logx.Int("workers", m.workers), logx.Int("job_queue_cap", cap(m.jobs)))

	for i := 0; i < m.workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			return m.worker(c, idx)
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithPublishFirstError(true),
		)
	}

	defer func() {
		m.setSupervisor(sup, false)
		close(m.jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		sup.Cancel()
		m.setSupervisor(nil, false)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.routeUpdate(ctx, up)
		}
	}
}

func (m *CommandManager) worker(ctx context.Context, idx int) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job, ok := <-m.jobs:
			if !ok {
				return nil
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						m.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
					}
				}()
				job()
			}()
		}
	}
}

func (m *CommandManager) routeUpdate(ctx context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return
	}
	word, bot := splitCommandWord(parts[0])

	m.mu.RLock()
	me := m.botName
	cmd, ok := m.cmds[word]
	if !ok {
		cmd, ok = m.alias[word]
	}
	m.mu.RUnlock()

	if bot != "" && me != "" && !strings.EqualFold(bot, me) {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if !ok {
		// In groups other bots' commands are common; stay quiet there.
		if !msg.IsGroup {
			_, _ = m.adapter.SendText(ctx, chat, "Unknown command. Try /help", nil)
		}
		return
	}
	if cmd.Access == AccessOwnerOnly && !m.isOwner(msg.FromID) {
		_, _ = m.adapter.SendText(ctx, chat, "This command is restricted to the bot owner.", nil)
		return
	}

	rid := newReqID()
	req := &Request{
		Chat:    chat,
		FromID:  msg.FromID,
		IsGroup: msg.IsGroup,
		Tenant:  m.TenantFor(msg.ChatID),
		Command: cmd.Name,
		Args:    parts[1:],
		ReqID:   rid,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int("thread_id", msg.ThreadID),
			logx.String("cmd", cmd.Name),
		),
		adapter: m.adapter,
	}
	m.mu.RLock()
	limiter, obs := m.limiter, m.observer
	m.mu.RUnlock()
	final := Chain(
		cmd.Handle,
		MWPanicRecover(m.log),
		MWObserve(obs),
		MWRequestLog(m.log),
		MWTenantLimit(limiter),
		MWTimeout(cmd.Timeout),
	)
	if !m.tryEnqueue(func() { _ = final(ctx, req) }) {
		_, _ = m.adapter.SendText(ctx, chat, "Busy, try again in a moment.", nil)
	}
}
