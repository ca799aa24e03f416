// Package bot is the Telegram front-end. It turns commands, links and inline
// button presses into market lifecycle calls and renders the results. All
// conversation state lives in memory and is lost on restart.
package bot

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/alanyoungcy/polyalert/internal/domain"
	"github.com/alanyoungcy/polyalert/internal/metrics"
	"github.com/alanyoungcy/polyalert/internal/service"
)

// Client is the part of *tb.Bot the front-end uses.
type Client interface {
	Send(to tb.Recipient, what interface{}, options ...interface{}) (*tb.Message, error)
	Edit(msg tb.Editable, what interface{}, options ...interface{}) (*tb.Message, error)
	EditReplyMarkup(msg tb.Editable, markup *tb.ReplyMarkup) (*tb.Message, error)
	Respond(c *tb.Callback, resp ...*tb.CallbackResponse) error
	Handle(endpoint interface{}, handler interface{})
	Start()
	Stop()
}

// commandSetter is implemented by *tb.Bot.
type commandSetter interface {
	SetCommands(cmds []tb.Command) error
}

// Config holds front-end limits.
type Config struct {
	// CommandLimit interactions per CommandWindow are allowed per user when
	// a rate limiter is configured.
	CommandLimit   int
	CommandWindow  time.Duration
	RequestTimeout time.Duration
}

type inputKind int

const (
	inputNone inputKind = iota
	inputAdd
	inputEdit
)

// draft is a user's in-progress add or edit flow.
type draft struct {
	URL       string
	MarketID  string
	Input     inputKind
	TrackedID int64
}

// Bot handles Telegram updates.
type Bot struct {
	client  Client
	markets *service.MarketService
	users   *service.UserService
	limiter domain.RateLimiter
	cfg     Config
	logger  *slog.Logger

	ctx context.Context

	mu     sync.Mutex
	drafts map[int64]draft
}

// New creates a Bot. limiter may be nil to disable rate limiting.
func New(
	client Client,
	markets *service.MarketService,
	users *service.UserService,
	limiter domain.RateLimiter,
	cfg Config,
	logger *slog.Logger,
) *Bot {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	return &Bot{
		client:  client,
		markets: markets,
		users:   users,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "bot")),
		ctx:     context.Background(),
		drafts:  make(map[int64]draft),
	}
}

// Register wires every command and button handler into the client.
func (b *Bot) Register() {
	b.client.Handle("/start", b.message("start", b.onStart))
	b.client.Handle("/help", b.message("help", b.onHelp))
	b.client.Handle("/add", b.message("add", b.onAdd))
	b.client.Handle("/markets", b.message("markets", b.onMarkets))
	b.client.Handle(tb.OnText, b.message("text", b.onText))

	b.client.Handle(&tb.InlineButton{Unique: pickUnique}, b.callback("pick", b.onPick))
	b.client.Handle(&tb.InlineButton{Unique: priceUnique}, b.callback("price", b.onPrice))
	b.client.Handle(&tb.InlineButton{Unique: viewUnique}, b.callback("view", b.onView))
	b.client.Handle(&tb.InlineButton{Unique: editUnique}, b.callback("edit", b.onEdit))
	b.client.Handle(&tb.InlineButton{Unique: setPriceUnique}, b.callback("set_price", b.onSetPrice))
	b.client.Handle(&tb.InlineButton{Unique: toggleUnique}, b.callback("toggle", b.onToggle))
	b.client.Handle(&tb.InlineButton{Unique: deleteUnique}, b.callback("delete", b.onDelete))
	b.client.Handle(&tb.InlineButton{Unique: listUnique}, b.callback("list", b.onList))
	b.client.Handle(&tb.InlineButton{Unique: cancelUnique}, b.callback("cancel", b.onCancel))
	b.client.Handle(&tb.InlineButton{Unique: enableUnique}, b.callback("enable_monitoring", b.onEnableMonitoring))
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx
	if setter, ok := b.client.(commandSetter); ok {
		if err := setter.SetCommands(commands); err != nil {
			b.logger.WarnContext(ctx, "set bot commands failed", slog.String("error", err.Error()))
		}
	}

	go b.client.Start()
	b.logger.InfoContext(ctx, "bot polling started")
	<-ctx.Done()
	b.client.Stop()
	b.logger.Info("bot stopped")
	return nil
}

var commands = []tb.Command{
	{Text: "start", Description: "Register with the bot"},
	{Text: "add", Description: "Track a Polymarket market"},
	{Text: "markets", Description: "List your tracked markets"},
	{Text: "help", Description: "Show help"},
}

// message adapts a message handler: it applies the rate limit, records the
// user, maps errors to a reply and counts the outcome.
func (b *Bot) message(command string, fn func(context.Context, *tb.Message) error) func(*tb.Message) {
	return func(m *tb.Message) {
		if m.Sender == nil {
			return
		}
		ctx, cancel := context.WithTimeout(b.ctx, b.cfg.RequestTimeout)
		defer cancel()

		if !b.allow(ctx, m.Sender.ID, command) {
			b.reply(ctx, m.Sender, "Too many requests, please slow down.")
			return
		}
		if command != "start" {
			b.touch(ctx, m.Sender)
		}

		if err := fn(ctx, m); err != nil {
			metrics.BotCommandsTotal.WithLabelValues(command, "error").Inc()
			b.logError(ctx, command, m.Sender.ID, err)
			b.reply(ctx, m.Sender, userMessage(err))
			return
		}
		metrics.BotCommandsTotal.WithLabelValues(command, "ok").Inc()
	}
}

// callback is the button counterpart of message. Errors are shown as an
// alert on the pressed button.
func (b *Bot) callback(command string, fn func(context.Context, *tb.Callback) error) func(*tb.Callback) {
	return func(c *tb.Callback) {
		if c.Sender == nil {
			return
		}
		ctx, cancel := context.WithTimeout(b.ctx, b.cfg.RequestTimeout)
		defer cancel()

		if !b.allow(ctx, c.Sender.ID, command) {
			b.respond(ctx, c, "Too many requests, please slow down.", true)
			return
		}
		b.touch(ctx, c.Sender)

		if err := fn(ctx, c); err != nil {
			metrics.BotCommandsTotal.WithLabelValues(command, "error").Inc()
			b.logError(ctx, command, c.Sender.ID, err)
			b.respond(ctx, c, userMessage(err), true)
			return
		}
		metrics.BotCommandsTotal.WithLabelValues(command, "ok").Inc()
	}
}

// allow applies the per-user rate limit. Limiter failures let the request
// through.
func (b *Bot) allow(ctx context.Context, userID int64, command string) bool {
	if b.limiter == nil || b.cfg.CommandLimit < 1 {
		return true
	}
	ok, err := b.limiter.Allow(ctx, "bot:"+strconv.FormatInt(userID, 10), b.cfg.CommandLimit, b.cfg.CommandWindow)
	if err != nil {
		b.logger.WarnContext(ctx, "rate limiter unavailable", slog.String("error", err.Error()))
		return true
	}
	if !ok {
		metrics.BotCommandsTotal.WithLabelValues(command, "limited").Inc()
	}
	return ok
}

// touch refreshes the user record; failures only log.
func (b *Bot) touch(ctx context.Context, u *tb.User) {
	if _, err := b.users.Register(ctx, u.ID, u.Username, u.FirstName, u.LastName); err != nil {
		b.logger.WarnContext(ctx, "user upsert failed",
			slog.Int64("user_id", u.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (b *Bot) logError(ctx context.Context, command string, userID int64, err error) {
	level := slog.LevelWarn
	if isUnexpected(err) {
		level = slog.LevelError
	}
	b.logger.Log(ctx, level, "handler failed",
		slog.String("command", command),
		slog.Int64("user_id", userID),
		slog.String("error", err.Error()),
	)
}

func (b *Bot) reply(ctx context.Context, to tb.Recipient, text string, opts ...interface{}) {
	if _, err := b.client.Send(to, text, withHTML(opts)...); err != nil {
		b.logger.WarnContext(ctx, "send failed", slog.String("error", err.Error()))
	}
}

// show replaces msg with the given content, or sends a new message when
// msg is nil or cannot be edited.
func (b *Bot) show(ctx context.Context, to tb.Recipient, msg *tb.Message, text string, markup *tb.ReplyMarkup) {
	opts := []interface{}{}
	if markup != nil {
		opts = append(opts, markup)
	}
	if msg != nil {
		if _, err := b.client.Edit(msg, text, withHTML(opts)...); err == nil {
			return
		}
	}
	b.reply(ctx, to, text, opts...)
}

func (b *Bot) respond(ctx context.Context, c *tb.Callback, text string, alert bool) {
	if err := b.client.Respond(c, &tb.CallbackResponse{Text: text, ShowAlert: alert}); err != nil {
		b.logger.WarnContext(ctx, "callback answer failed", slog.String("error", err.Error()))
	}
}

func withHTML(opts []interface{}) []interface{} {
	return append([]interface{}{tb.ModeHTML, tb.NoPreview}, opts...)
}

func (b *Bot) draft(userID int64) (draft, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.drafts[userID]
	return d, ok
}

func (b *Bot) setDraft(userID int64, d draft) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drafts[userID] = d
}

func (b *Bot) clearDraft(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.drafts, userID)
}
