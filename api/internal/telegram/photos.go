package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mathsnap/api/internal/errs"
	"mathsnap/api/internal/locale"
	"mathsnap/api/internal/solver"
	"mathsnap/api/internal/util"
)

const photoName = "telegram-photo.jpg"

func (r *Router) acceptPhoto(msg *tgbotapi.Message, lang string) {
	cid := msg.Chat.ID
	// the last size is the largest
	ph := msg.Photo[len(msg.Photo)-1]
	if int64(ph.FileSize) > solver.MaxImageSize {
		r.send(cid, r.localizer(lang).Kind(errs.FileTooLarge, ""))
		return
	}
	data, err := r.download(ph.FileID)
	if err != nil {
		r.sendError(cid, lang, err)
		return
	}
	r.enqueue(msg, data, "image/jpeg", lang)
}

// acceptDocument takes images sent "as file", which keeps the original
// resolution.
func (r *Router) acceptDocument(msg *tgbotapi.Message, lang string) {
	cid := msg.Chat.ID
	doc := msg.Document
	loc := r.localizer(lang)
	if !strings.HasPrefix(strings.ToLower(doc.MimeType), "image/") {
		r.send(cid, loc.Kind(errs.InvalidFileType, ""))
		return
	}
	if int64(doc.FileSize) > solver.MaxImageSize {
		r.send(cid, loc.Kind(errs.FileTooLarge, ""))
		return
	}
	data, err := r.download(doc.FileID)
	if err != nil {
		r.sendError(cid, lang, err)
		return
	}
	r.enqueue(msg, data, doc.MimeType, lang)
}

func (r *Router) enqueue(msg *tgbotapi.Message, data []byte, mime, lang string) {
	key := batchKey(msg.Chat.ID, msg.MediaGroupID)
	wait := r.Debounce
	if wait <= 0 {
		wait = debounce
	}
	p := page{msgID: msg.MessageID, data: data, mime: mime}
	caption := strings.TrimSpace(msg.Caption)

	var n int
	for {
		bi, _ := r.batches.LoadOrStore(key, &photoBatch{ChatID: msg.Chat.ID, Key: key, Lang: lang})
		b := bi.(*photoBatch)
		var ok bool
		if n, ok = b.add(p, caption, wait, func() { r.processBatch(b) }); ok {
			break
		}
		// taken between LoadOrStore and add; start a fresh batch
		r.batches.CompareAndDelete(key, b)
	}

	if n == 1 {
		r.send(msg.Chat.ID, r.localizer(lang).Text(locale.MsgPhotoTaken, nil))
	}
}

// processBatch turns the collected pages into one image and solves it
// together with the caption.
func (r *Router) processBatch(b *photoBatch) {
	r.batches.CompareAndDelete(b.Key, b)
	pages, caption := b.take()
	if len(pages) == 0 {
		return
	}

	f := solver.File{Name: photoName, MediaType: pages[0].mime, Data: pages[0].data}
	if len(pages) > 1 {
		images := make([][]byte, len(pages))
		for i, p := range pages {
			images[i] = p.data
		}
		merged, err := util.CombineVertical(images, maxPixels)
		if err != nil {
			r.sendError(b.ChatID, b.Lang, fmt.Errorf("combine pages: %w", err))
			return
		}
		f = solver.File{Name: photoName, MediaType: "image/jpeg", Data: merged}
		r.logger().Debug("album combined", "chat", b.ChatID, "pages", len(pages), "bytes", len(merged))
	}
	f.Size = int64(len(f.Data))

	ctrl := r.controller(b.ChatID)
	ctrl.SetText(caption)
	if err := ctrl.SetImage(f); err != nil {
		r.sendError(b.ChatID, b.Lang, err)
		return
	}
	r.solve(context.Background(), b.ChatID, b.Lang)
}

func (r *Router) download(fileID string) ([]byte, error) {
	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}
	c := r.HTTPClient
	if c == nil {
		c = &http.Client{Timeout: 60 * time.Second}
	}
	resp, err := c.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, solver.MaxImageSize+1))
}
