package preview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"sync"

	xdraw "golang.org/x/image/draw"

	"tileview/internal/tile"
)

var (
	mosaicBackground = color.RGBA{24, 24, 24, 255}
	mosaicFrame      = color.RGBA{72, 72, 72, 255}
)

// Mosaic はウィンドウ配置どおりに全タイルを1枚の画像に合成する Sink
//
// 実際のウィンドウを作らずに、画面上でどう並ぶかを確認するために使う。
type Mosaic struct {
	mu      sync.Mutex
	quality int
	windows map[tile.SlotID]tile.Rect
	canvas  *image.RGBA
}

// NewMosaic は新しいMosaicを作成する
func NewMosaic(quality int) *Mosaic {
	return &Mosaic{
		quality: quality,
		windows: make(map[tile.SlotID]tile.Rect),
		canvas:  image.NewRGBA(image.Rectangle{}),
	}
}

// Open はウィンドウ領域をキャンバスに確保する
func (m *Mosaic) Open(_ context.Context, slot tile.SlotID, window tile.Rect) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.windows[slot] = window
	r := toRectangle(window)
	m.grow(r)
	draw.Draw(m.canvas, r, image.NewUniform(mosaicFrame), image.Point{}, draw.Src)
	return nil
}

// grow はキャンバスを r が収まる大きさに広げる
func (m *Mosaic) grow(r image.Rectangle) {
	bounds := m.canvas.Bounds()
	if r.In(bounds) {
		return
	}

	next := image.NewRGBA(image.Rect(0, 0, max(bounds.Max.X, r.Max.X), max(bounds.Max.Y, r.Max.Y)))
	draw.Draw(next, next.Bounds(), image.NewUniform(mosaicBackground), image.Point{}, draw.Src)
	draw.Draw(next, bounds, m.canvas, bounds.Min, draw.Src)
	m.canvas = next
}

// Present はタイルをウィンドウの左上に描画する
// タイルがウィンドウより大きい場合は縮小する。
func (m *Mosaic) Present(_ context.Context, slot tile.SlotID, img image.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	window, ok := m.windows[slot]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSlot, slot)
	}

	src := img.Bounds()
	dst := image.Rect(0, 0, min(src.Dx(), window.Width), min(src.Dy(), window.Height)).
		Add(image.Pt(window.X, window.Y))

	if dst.Dx() == src.Dx() && dst.Dy() == src.Dy() {
		draw.Draw(m.canvas, dst, img, src.Min, draw.Src)
	} else {
		xdraw.NearestNeighbor.Scale(m.canvas, dst, img, src, xdraw.Src, nil)
	}
	return nil
}

// Snapshot は合成画像をJPEGで返す
func (m *Mosaic) Snapshot() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.canvas.Bounds().Empty() {
		return nil, fmt.Errorf("まだタイルが配置されていません")
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, m.canvas, &jpeg.Options{Quality: m.quality}); err != nil {
		return nil, fmt.Errorf("JPEG エンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}

// Image は合成画像のコピーを返す
func (m *Mosaic) Image() *image.RGBA {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := image.NewRGBA(m.canvas.Bounds())
	draw.Draw(out, out.Bounds(), m.canvas, m.canvas.Bounds().Min, draw.Src)
	return out
}

// Close はキャンバスを破棄する
func (m *Mosaic) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.windows = make(map[tile.SlotID]tile.Rect)
	m.canvas = image.NewRGBA(image.Rectangle{})
	return nil
}

func toRectangle(r tile.Rect) image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}
