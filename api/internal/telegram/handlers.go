package telegram

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mathsnap/api/internal/latex"
	"mathsnap/api/internal/locale"
	"mathsnap/api/internal/solver"
)

// solve runs the chat's controller and posts the answer or the localized
// error.
func (r *Router) solve(ctx context.Context, chatID int64, lang string) {
	loc := r.localizer(lang)
	ctrl := r.controller(chatID)

	timeout := r.SolveTimeout
	if timeout <= 0 {
		timeout = defaultSolveTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.send(chatID, loc.Text(locale.MsgAnalyzing, nil))
	_, _ = r.Bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))

	out, err := ctrl.Solve(ctx)
	switch {
	case errors.Is(err, solver.ErrStale):
		// a newer input arrived, its own solve answers
		return
	case err != nil:
		r.send(chatID, loc.Error(err))
		return
	case out.Status != solver.StatusSuccess:
		r.send(chatID, loc.Error(out.Err))
		return
	}
	r.sendAnswer(chatID, latex.Normalize(out.Content))
}

func (r *Router) sendAnswer(chatID int64, text string) {
	for _, part := range chunkText(text, maxMessageLen) {
		r.send(chatID, part)
	}
}

func (r *Router) sendError(chatID int64, lang string, err error) {
	r.logger().Warn("chat error", "chat", chatID, "err", err)
	r.send(chatID, r.localizer(lang).Error(err))
}
