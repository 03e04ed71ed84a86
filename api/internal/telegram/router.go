// Package telegram is the chat front-end: each chat gets its own solve
// controller, photos (and albums) become the problem image and captions or
// plain messages become the problem text.
package telegram

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mathsnap/api/internal/llm"
	"mathsnap/api/internal/locale"
	"mathsnap/api/internal/logging"
	"mathsnap/api/internal/solver"
)

// Bot is the part of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Router struct {
	Bot           Bot
	Engines       *llm.Engines
	EngManager    *llm.Manager
	Catalog       *locale.Catalog
	SolverOptions []solver.Option

	// Optional; zero values fall back to package defaults.
	HTTPClient   *http.Client
	Debounce     time.Duration
	SolveTimeout time.Duration

	chats   sync.Map // chatID -> *solver.Controller
	batches sync.Map // key -> *photoBatch

	logOnce sync.Once
	log     *slog.Logger
}

func (r *Router) logger() *slog.Logger {
	r.logOnce.Do(func() { r.log = logging.With("component", "telegram") })
	return r.log
}

// controller returns the chat's solve controller, creating it on first use
// with the chat's current engine.
func (r *Router) controller(chatID int64) *solver.Controller {
	if v, ok := r.chats.Load(chatID); ok {
		return v.(*solver.Controller)
	}
	c := solver.New(r.EngManager.Get(chatID), r.SolverOptions...)
	v, _ := r.chats.LoadOrStore(chatID, c)
	return v.(*solver.Controller)
}

func (r *Router) localizer(lang string) *locale.Localizer {
	return r.Catalog.Localizer(lang)
}

// HandleUpdate dispatches one update. It blocks while a solve runs.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(ctx, *upd.CallbackQuery)
		return
	}
	msg := upd.Message
	if msg == nil {
		return
	}
	lang := langOf(msg.From)

	switch {
	case msg.IsCommand():
		r.HandleCommand(ctx, msg, lang)
	case len(msg.Photo) > 0:
		r.acceptPhoto(msg, lang)
	case msg.Document != nil:
		r.acceptDocument(msg, lang)
	case strings.TrimSpace(msg.Text) != "":
		ctrl := r.controller(msg.Chat.ID)
		ctrl.SetText(msg.Text)
		r.solve(ctx, msg.Chat.ID, lang)
	}
}

func (r *Router) HandleCommand(ctx context.Context, msg *tgbotapi.Message, lang string) {
	cid := msg.Chat.ID
	loc := r.localizer(lang)

	switch msg.Command() {
	case "start", "help":
		r.send(cid, loc.Text(locale.MsgWelcome, nil))
	case "mode":
		arg := strings.TrimSpace(msg.CommandArguments())
		if arg == "" {
			r.sendWithMarkup(cid, loc.Text(locale.MsgModeUsage, nil), modeKeyboard())
			return
		}
		r.setMode(cid, arg, loc)
	case "engine":
		name, model, ok := parseEngineArgs(msg.CommandArguments())
		if !ok {
			r.send(cid, loc.Text(locale.MsgEngineUsage, nil))
			return
		}
		r.setEngine(cid, name, model, loc)
	case "clear":
		ctrl := r.controller(cid)
		ctrl.Clear()
		ctrl.SetText("")
		r.send(cid, loc.Text(locale.MsgCleared, nil))
	case "solve":
		r.solve(ctx, cid, lang)
	default:
		r.send(cid, loc.Text(locale.MsgUnknownCmd, nil))
	}
}

func (r *Router) setMode(chatID int64, arg string, loc *locale.Localizer) {
	m, err := solver.ParseMode(arg)
	if err != nil {
		r.send(chatID, loc.Text(locale.MsgModeUsage, nil))
		return
	}
	r.controller(chatID).SetMode(m)
	r.send(chatID, loc.Text(locale.MsgModeSet, map[string]any{"Mode": string(m)}))
}

func (r *Router) setEngine(chatID int64, name, model string, loc *locale.Localizer) {
	e, err := r.Engines.GetEngine(name)
	if err != nil {
		r.send(chatID, loc.Text(locale.MsgEngineUsage, nil))
		return
	}
	e = llm.WithModel(e, model)
	r.EngManager.Set(chatID, e)
	r.controller(chatID).SetEngine(e)
	r.send(chatID, loc.Text(locale.MsgEngineSet, map[string]any{"Engine": e.Name(), "Model": e.GetModel()}))
}

func (r *Router) send(chatID int64, text string) {
	if _, err := r.Bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		r.logger().Warn("send failed", "chat", chatID, "err", err)
	}
}

func (r *Router) sendWithMarkup(chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup
	if _, err := r.Bot.Send(msg); err != nil {
		r.logger().Warn("send failed", "chat", chatID, "err", err)
	}
}

func langOf(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	return u.LanguageCode
}
