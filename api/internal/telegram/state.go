package telegram

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	debounce            = 1200 * time.Millisecond
	maxPixels           = 18_000_000
	defaultSolveTimeout = 180 * time.Second
	maxMessageLen       = 3900
)

type page struct {
	msgID int
	data  []byte
	mime  string
}

// photoBatch collects the pages of one album (or photos sent in quick
// succession) until no new page has arrived for the debounce interval.
type photoBatch struct {
	ChatID int64
	Key    string // "grp:<mediaGroupID>" | "chat:<chatID>"
	Lang   string

	mu      sync.Mutex
	pages   []page
	caption string
	timer   *time.Timer
	closed  bool
}

// add appends a page and re-arms the debounce timer. It reports false once
// the batch has been taken for processing.
func (b *photoBatch) add(p page, caption string, wait time.Duration, fire func()) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, false
	}
	b.pages = append(b.pages, p)
	if caption != "" {
		b.caption = caption
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(wait, fire)
	return len(b.pages), true
}

// take closes the batch and returns its pages in message order. Downloads
// finish in any order, so arrival order is not page order.
func (b *photoBatch) take() ([]page, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	pages := append([]page(nil), b.pages...)
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].msgID < pages[j].msgID })
	return pages, b.caption
}

func batchKey(chatID int64, mediaGroupID string) string {
	if mediaGroupID != "" {
		return "grp:" + mediaGroupID
	}
	return "chat:" + fmt.Sprint(chatID)
}
