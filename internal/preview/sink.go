package preview

import (
	"context"
	"errors"
	"image"

	"tileview/internal/tile"
)

// ErrUnknownSlot は開かれていないスロットへの操作で返すエラー
var ErrUnknownSlot = errors.New("未知のスロット")

// Sink はタイルの出力先（ウィンドウ、動画ライター等）
type Sink interface {
	// Open はスロットの出力先を作成する。スロット毎に一度だけ呼ばれる。
	Open(ctx context.Context, slot tile.SlotID, window tile.Rect) error

	// Present はスロットにタイル画像を渡す
	Present(ctx context.Context, slot tile.SlotID, img image.Image) error

	// Close は全ての出力先を閉じる
	Close() error
}

// MultiSink は複数の Sink へ順に配信する
type MultiSink []Sink

// Open は全ての Sink でスロットを開く
func (m MultiSink) Open(ctx context.Context, slot tile.SlotID, window tile.Rect) error {
	for _, s := range m {
		if err := s.Open(ctx, slot, window); err != nil {
			return err
		}
	}
	return nil
}

// Present は全ての Sink にタイルを渡す
func (m MultiSink) Present(ctx context.Context, slot tile.SlotID, img image.Image) error {
	for _, s := range m {
		if err := s.Present(ctx, slot, img); err != nil {
			return err
		}
	}
	return nil
}

// Close は全ての Sink を閉じる
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
