package tile

import (
	"fmt"
	"math"
)

// Allocator はフレームをタイルに分割し、セル毎のスロットを管理する
//
// 内部で排他制御はしないため、複数のゴルーチンから使う場合は呼び出し側で直列化すること。
type Allocator struct {
	grid     GridSpec
	policy   SlotPolicy
	bindings []SlotBinding  // セル番号順
	index    map[SlotID]int // スロットID -> セル番号
}

// NewAllocator は新しいAllocatorを作成する
func NewAllocator(cfg Config) (*Allocator, error) {
	if err := cfg.Grid.Validate(); err != nil {
		return nil, err
	}
	if cfg.Policy.Offset < 0 {
		return nil, fmt.Errorf("%w: スロットオフセットが負の値です (%d)", ErrInvalidGridSpec, cfg.Policy.Offset)
	}
	if cfg.Policy.Offset > math.MaxInt-cfg.Grid.Cells() {
		return nil, fmt.Errorf("%w: スロットオフセットが大きすぎます (%d)", ErrInvalidGridSpec, cfg.Policy.Offset)
	}

	n := cfg.Grid.Cells()
	a := &Allocator{
		grid:     cfg.Grid,
		policy:   cfg.Policy,
		bindings: make([]SlotBinding, n),
		index:    make(map[SlotID]int, n),
	}

	// スロットIDはここで一度だけ割り当てる
	for cell := 0; cell < n; cell++ {
		slot := a.slotOf(cell)
		a.bindings[cell] = SlotBinding{Slot: slot, Cell: cell}
		a.index[slot] = cell
	}

	return a, nil
}

// slotOf はポリシーに従ってセル番号をスロットIDに変換する
func (a *Allocator) slotOf(cell int) SlotID {
	i := cell
	if a.policy.Reverse {
		i = a.grid.Cells() - 1 - cell
	}
	return SlotID(a.policy.Offset + i)
}

// Grid はグリッド設定を返す
func (a *Allocator) Grid() GridSpec {
	return a.grid
}

// Len はセル数を返す
func (a *Allocator) Len() int {
	return len(a.bindings)
}

// ComputeLayout はフレームのタイルレイアウトを計算する
func (a *Allocator) ComputeLayout(frame FrameDescriptor) ([]Tile, error) {
	return a.AppendLayout(make([]Tile, 0, len(a.bindings)), frame)
}

// AppendLayout はフレームのタイルレイアウトを dst に追加して返す
//
// エラー時は dst をそのまま返し、スロットの状態も変更しない。
func (a *Allocator) AppendLayout(dst []Tile, frame FrameDescriptor) ([]Tile, error) {
	tileW, tileH, err := a.tileSize(frame)
	if err != nil {
		return dst, err
	}

	for ty := 0; ty < a.grid.TilesY; ty++ {
		for tx := 0; tx < a.grid.TilesX; tx++ {
			cell := ty*a.grid.TilesX + tx
			rect := Rect{
				X:      tx * tileW,
				Y:      ty * tileH,
				Width:  tileW,
				Height: tileH,
			}
			a.bindings[cell].Rect = rect
			dst = append(dst, Tile{
				Cell: cell,
				Col:  tx,
				Row:  ty,
				Slot: a.bindings[cell].Slot,
				Rect: rect,
			})
		}
	}

	return dst, nil
}

// tileSize はアライメント済みのタイル幅と高さを計算する
func (a *Allocator) tileSize(frame FrameDescriptor) (int, int, error) {
	if frame.Width <= 0 || frame.Height <= 0 {
		return 0, 0, fmt.Errorf("%w: フレームサイズが不正です (%dx%d)", ErrInvalidTileGeometry, frame.Width, frame.Height)
	}
	alignX, alignY := frame.alignment()
	if alignX < 0 || alignY < 0 {
		return 0, 0, fmt.Errorf("%w: アライメント単位が負の値です (%dx%d)", ErrInvalidTileGeometry, alignX, alignY)
	}

	effW := frame.Width
	if a.grid.MaxTileWidth > 0 {
		effW = min(effW, a.grid.MaxTileWidth*a.grid.TilesX)
	}
	effH := frame.Height
	if a.grid.MaxTileHeight > 0 {
		effH = min(effH, a.grid.MaxTileHeight*a.grid.TilesY)
	}

	tileW := effW / a.grid.TilesX
	tileH := effH / a.grid.TilesY

	// 軸毎に独立して切り捨てる
	tileW -= tileW % alignX
	tileH -= tileH % alignY

	if tileW == 0 || tileH == 0 {
		return 0, 0, fmt.Errorf("%w: %dx%d のフレームを %dx%d (アライメント %dx%d) に分割できません",
			ErrInvalidTileGeometry, frame.Width, frame.Height, a.grid.TilesX, a.grid.TilesY, alignX, alignY)
	}

	return tileW, tileH, nil
}

// SlotFor はセル番号に対応するスロットIDを返す
func (a *Allocator) SlotFor(cell int) (SlotID, bool) {
	if cell < 0 || cell >= len(a.bindings) {
		return 0, false
	}
	return a.bindings[cell].Slot, true
}

// MarkInitialized はスロットの外部リソースが作成済みであることを記録する
//
// 初回呼び出しの場合のみ true を返す。未知のスロットは false。
func (a *Allocator) MarkInitialized(slot SlotID) bool {
	cell, ok := a.index[slot]
	if !ok {
		return false
	}
	if a.bindings[cell].Initialized {
		return false
	}
	a.bindings[cell].Initialized = true
	return true
}

// Initialized はスロットが作成済みかどうかを返す
func (a *Allocator) Initialized(slot SlotID) bool {
	cell, ok := a.index[slot]
	return ok && a.bindings[cell].Initialized
}

// Reset はスロットの作成済みフラグを解除する
// 呼び出し側が外部リソースを破棄した場合に使う。
func (a *Allocator) Reset(slot SlotID) {
	if cell, ok := a.index[slot]; ok {
		a.bindings[cell].Initialized = false
	}
}

// Bindings は全スロットの状態をセル番号順のコピーで返す
func (a *Allocator) Bindings() []SlotBinding {
	out := make([]SlotBinding, len(a.bindings))
	copy(out, a.bindings)
	return out
}
