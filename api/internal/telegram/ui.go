package telegram

import (
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mathsnap/api/internal/solver"
)

func modeKeyboard() tgbotapi.InlineKeyboardMarkup {
	verbose := tgbotapi.NewInlineKeyboardButtonData("Verbose", cbModePrefix+string(solver.ModeVerbose))
	concise := tgbotapi.NewInlineKeyboardButtonData("Concise", cbModePrefix+string(solver.ModeConcise))
	again := tgbotapi.NewInlineKeyboardButtonData("↻", cbSolve)
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(verbose, concise, again))
}

// parseEngineArgs reads "<name> [model]" from the /engine arguments.
func parseEngineArgs(args string) (name, model string, ok bool) {
	f := strings.Fields(args)
	if len(f) == 0 {
		return "", "", false
	}
	name = strings.ToLower(f[0])
	if len(f) > 1 {
		model = f[1]
	}
	return name, model, true
}

// chunkText splits s into messages of at most limit runes, preferring to cut
// at a blank line, then at a newline, then at a space.
func chunkText(s string, limit int) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []string
	for utf8.RuneCountInString(s) > limit {
		head := prefixRunes(s, limit)
		cut := strings.LastIndex(head, "\n\n")
		if cut <= 0 {
			cut = strings.LastIndex(head, "\n")
		}
		if cut <= 0 {
			cut = strings.LastIndex(head, " ")
		}
		if cut <= 0 {
			cut = len(head)
		}
		out = append(out, strings.TrimSpace(s[:cut]))
		s = strings.TrimSpace(s[cut:])
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

func prefixRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
