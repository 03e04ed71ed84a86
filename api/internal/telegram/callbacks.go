package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cbModePrefix = "mode:"
	cbSolve      = "solve"
)

func (r *Router) handleCallback(ctx context.Context, cb tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	_, _ = r.Bot.Request(tgbotapi.NewCallback(cb.ID, "")) // ack

	cid := cb.Message.Chat.ID
	lang := langOf(cb.From)
	switch {
	case strings.HasPrefix(cb.Data, cbModePrefix):
		r.setMode(cid, strings.TrimPrefix(cb.Data, cbModePrefix), r.localizer(lang))
	case cb.Data == cbSolve:
		r.solve(ctx, cid, lang)
	}
}
