// Package locale turns error kinds and a few fixed UI strings into
// human-readable text. Indonesian is the default language, English is
// available for clients that ask for it.
package locale

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"

	"mathsnap/api/internal/errs"
)

// Non-error message IDs used by the presentation layers.
const (
	MsgWelcome     = "welcome"
	MsgAnalyzing   = "analyzing"
	MsgPhotoTaken  = "photo_taken"
	MsgCleared     = "cleared"
	MsgModeSet     = "mode_set"
	MsgEngineSet   = "engine_set"
	MsgUnknownCmd  = "unknown_command"
	MsgEngineUsage = "engine_usage"
	MsgModeUsage   = "mode_usage"

	msgTransportPlain = "transport_unknown_plain"
	msgCameraPlain    = "camera_unknown_plain"
)

type Catalog struct {
	bundle *i18n.Bundle
	def    string
}

// New builds the catalog. def is the fallback language tag ("id", "en").
func New(def string) *Catalog {
	b := i18n.NewBundle(language.Indonesian)
	_ = b.AddMessages(language.Indonesian, indonesian...)
	_ = b.AddMessages(language.English, english...)
	if def == "" {
		def = "id"
	}
	return &Catalog{bundle: b, def: def}
}

// Localizer picks the best match for the given Accept-Language style values.
func (c *Catalog) Localizer(langs ...string) *Localizer {
	langs = append(langs, c.def)
	return &Localizer{l: i18n.NewLocalizer(c.bundle, langs...)}
}

type Localizer struct {
	l *i18n.Localizer
}

// Error renders err. Non-classified errors render as TRANSPORT_UNKNOWN with
// their own text as the detail.
func (l *Localizer) Error(err error) string {
	if err == nil {
		return ""
	}
	var e *errs.Error
	if !errors.As(err, &e) {
		e = errs.Wrap(errs.TransportUnknown, err)
	}
	return l.Kind(e.Kind, e.Detail)
}

// Kind renders a kind with an optional detail. The *_UNKNOWN kinds have a
// detail-free wording for when there is nothing to show.
func (l *Localizer) Kind(kind errs.Kind, detail string) string {
	if strings.TrimSpace(detail) == "" {
		switch kind {
		case errs.TransportUnknown:
			return l.Text(msgTransportPlain, nil)
		case errs.CameraUnknown:
			return l.Text(msgCameraPlain, nil)
		}
	}
	return l.Text(string(kind), map[string]any{"Detail": detail})
}

// Text renders any message ID; unknown IDs come back as the ID itself.
func (l *Localizer) Text(id string, data map[string]any) string {
	s, err := l.l.Localize(&i18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil {
		slog.Debug("locale: missing message", "id", id, "error", err)
		return id
	}
	return s
}
