package preview

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"tileview/internal/camera"
	"tileview/internal/tile"
)

// Stats はタイル処理の統計
type Stats struct {
	Frames  uint64 `json:"frames"`  // 配信したフレーム数
	Skipped uint64 `json:"skipped"` // タイル分割できずにスキップしたフレーム数
	LastSeq uint64 `json:"last_seq"`
}

// Tiler はフレームをタイルに分割して Sink に配信する
//
// アロケーターは Tiler が所有し、外部からの読み取りは mu で直列化する。
type Tiler struct {
	mu        sync.Mutex
	alloc     *tile.Allocator
	sink      Sink
	placement tile.Placement
	logger    *log.Logger

	tiles []tile.Tile // レイアウト計算用の再利用バッファ
	stats Stats
}

// NewTiler は新しいTilerを作成する
func NewTiler(alloc *tile.Allocator, sink Sink, placement tile.Placement, logger *log.Logger) *Tiler {
	return &Tiler{
		alloc:     alloc,
		sink:      sink,
		placement: placement,
		logger:    logger,
		tiles:     make([]tile.Tile, 0, alloc.Len()),
	}
}

// Process は1フレームをタイルに分割して配信する
func (t *Tiler) Process(ctx context.Context, frame camera.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tiles, err := t.alloc.AppendLayout(t.tiles[:0], frame.Descriptor())
	if err != nil {
		t.stats.Skipped++
		return fmt.Errorf("フレーム %d のタイル分割に失敗: %w", frame.Seq, err)
	}
	t.tiles = tiles

	for _, tl := range tiles {
		if !t.alloc.Initialized(tl.Slot) {
			window := t.placement.Window(tl)
			if err := t.sink.Open(ctx, tl.Slot, window); err != nil {
				return fmt.Errorf("スロット %d の出力先作成に失敗: %w", tl.Slot, err)
			}
			t.alloc.MarkInitialized(tl.Slot)
			t.logger.Debug("スロットを作成しました", "slot", tl.Slot, "cell", tl.Cell, "window", window)
		}

		if err := t.sink.Present(ctx, tl.Slot, crop(frame.Image, tl.Rect)); err != nil {
			return fmt.Errorf("スロット %d への配信に失敗: %w", tl.Slot, err)
		}
	}

	t.stats.Frames++
	t.stats.LastSeq = frame.Seq
	return nil
}

// Run はソースのフレームを処理し続ける
// ctx の終了、ソースのクローズ、または maxFrames 枚の処理（0で無制限）で戻る。
func (t *Tiler) Run(ctx context.Context, src camera.Source, maxFrames int) error {
	processed := 0

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-src.Errors():
			t.logger.Warn("ソースでエラーが発生しました", "source", src.Info().Name, "err", err)

		case frame, ok := <-src.Frames():
			if !ok {
				return nil
			}

			if err := t.Process(ctx, frame); err != nil {
				if errors.Is(err, tile.ErrInvalidTileGeometry) {
					t.logger.Warn("フレームをスキップします", "seq", frame.Seq, "err", err)
					continue
				}
				return err
			}

			processed++
			if maxFrames > 0 && processed >= maxFrames {
				t.logger.Info("指定フレーム数の処理が完了しました", "frames", processed)
				return nil
			}
		}
	}
}

// Bindings はスロットの状態を返す
func (t *Tiler) Bindings() []tile.SlotBinding {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.alloc.Bindings()
}

// Layout は直近のレイアウトのコピーを返す
func (t *Tiler) Layout() []tile.Tile {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]tile.Tile, len(t.tiles))
	copy(out, t.tiles)
	return out
}

// Stats は統計を返す
func (t *Tiler) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Close は Sink を閉じる
// 外部リソースの所有者は Sink であり、アロケーターは状態をリセットするだけ。
func (t *Tiler) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, b := range t.alloc.Bindings() {
		t.alloc.Reset(b.Slot)
	}
	return t.sink.Close()
}
