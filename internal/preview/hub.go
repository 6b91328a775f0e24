package preview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"sort"
	"sync"
	"time"

	xdraw "golang.org/x/image/draw"

	"tileview/internal/tile"
)

// SlotFeed はHubが保持するスロットの情報
type SlotFeed struct {
	Slot        tile.SlotID `json:"slot"`
	Window      tile.Rect   `json:"window"`
	Size        int         `json:"size"` // 最新JPEGのバイト数
	Updated     time.Time   `json:"updated"`
	Subscribers int         `json:"subscribers"`
}

type feed struct {
	window      tile.Rect
	latest      []byte
	updated     time.Time
	subscribers map[chan []byte]struct{}
}

// Hub はスロット毎の最新JPEGを保持し、購読者に配信する Sink
type Hub struct {
	mu       sync.RWMutex
	quality  int
	maxWidth int
	feeds    map[tile.SlotID]*feed
}

// NewHub は新しいHubを作成する
// maxWidth が0より大きい場合、それより広いタイルは縮小してから配信する。
func NewHub(quality, maxWidth int) *Hub {
	return &Hub{
		quality:  quality,
		maxWidth: maxWidth,
		feeds:    make(map[tile.SlotID]*feed),
	}
}

// Open はスロットの配信口を作成する
func (h *Hub) Open(_ context.Context, slot tile.SlotID, window tile.Rect) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if f, ok := h.feeds[slot]; ok {
		f.window = window
		return nil
	}
	h.feeds[slot] = &feed{
		window:      window,
		subscribers: make(map[chan []byte]struct{}),
	}
	return nil
}

// Present はタイルをJPEGにエンコードして購読者に配信する
func (h *Hub) Present(_ context.Context, slot tile.SlotID, img image.Image) error {
	data, err := h.encode(img)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	f, ok := h.feeds[slot]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSlot, slot)
	}
	f.latest = data
	f.updated = time.Now()

	for ch := range f.subscribers {
		select {
		case ch <- data:
		default:
			// 受け手が遅い場合はこのフレームを捨てる
		}
	}
	return nil
}

// encode はタイルを必要に応じて縮小し、JPEGに変換する
func (h *Hub) encode(img image.Image) ([]byte, error) {
	b := img.Bounds()
	if h.maxWidth > 0 && b.Dx() > h.maxWidth {
		height := max(b.Dy()*h.maxWidth/b.Dx(), 1)
		dst := image.NewRGBA(image.Rect(0, 0, h.maxWidth, height))
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: h.quality}); err != nil {
		return nil, fmt.Errorf("JPEG エンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}

// Subscribe はスロットの新しいJPEGを受け取るチャンネルを返す
// 戻り値の関数で購読を解除する。
func (h *Hub) Subscribe(slot tile.SlotID) (<-chan []byte, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, ok := h.feeds[slot]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownSlot, slot)
	}

	ch := make(chan []byte, 1)
	f.subscribers[ch] = struct{}{}

	// 最新フレームがあればすぐに送る
	if f.latest != nil {
		ch <- f.latest
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := f.subscribers[ch]; ok {
				delete(f.subscribers, ch)
				close(ch)
			}
		})
	}
	return ch, cancel, nil
}

// Latest はスロットの最新JPEGを返す
func (h *Hub) Latest(slot tile.SlotID) ([]byte, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	f, ok := h.feeds[slot]
	if !ok || f.latest == nil {
		return nil, false
	}
	return f.latest, true
}

// Feeds はスロットID順の配信情報を返す
func (h *Hub) Feeds() []SlotFeed {
	h.mu.RLock()
	defer h.mu.RUnlock()

	feeds := make([]SlotFeed, 0, len(h.feeds))
	for slot, f := range h.feeds {
		feeds = append(feeds, SlotFeed{
			Slot:        slot,
			Window:      f.window,
			Size:        len(f.latest),
			Updated:     f.updated,
			Subscribers: len(f.subscribers),
		})
	}
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].Slot < feeds[j].Slot })
	return feeds
}

// Close は全ての購読を終了し、配信口を破棄する
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, f := range h.feeds {
		for ch := range f.subscribers {
			delete(f.subscribers, ch)
			close(ch)
		}
	}
	h.feeds = make(map[tile.SlotID]*feed)
	return nil
}
