package tile

import (
	"errors"
	"fmt"
	"math"
)

// MaxCells はグリッドに作れるセル数の上限
const MaxCells = 1 << 16

var (
	// ErrInvalidGridSpec はグリッド設定が不正な場合のエラー（構築時）
	ErrInvalidGridSpec = errors.New("無効なグリッド設定")

	// ErrInvalidTileGeometry はアライメント後のタイルサイズが0になる場合のエラー
	ErrInvalidTileGeometry = errors.New("無効なタイル形状")
)

// FrameDescriptor は1フレームの寸法とアライメント要件を表す
type FrameDescriptor struct {
	Width  int // フレーム幅
	Height int // フレーム高さ
	AlignX int // X方向のアライメント単位（0は1として扱う）
	AlignY int // Y方向のアライメント単位（0は1として扱う）
}

// alignment は0を1に読み替えたアライメント単位を返す
func (f FrameDescriptor) alignment() (int, int) {
	ax, ay := f.AlignX, f.AlignY
	if ax == 0 {
		ax = 1
	}
	if ay == 0 {
		ay = 1
	}
	return ax, ay
}

// GridSpec はタイルグリッドの設定
type GridSpec struct {
	TilesX        int // 横方向のタイル数
	TilesY        int // 縦方向のタイル数
	MaxTileWidth  int // タイル幅の上限（0で無制限）
	MaxTileHeight int // タイル高さの上限（0で無制限）
}

// Cells はグリッドのセル数を返す
func (g GridSpec) Cells() int {
	return g.TilesX * g.TilesY
}

// Validate はグリッド設定の妥当性を検証する
func (g GridSpec) Validate() error {
	if g.TilesX < 1 || g.TilesY < 1 {
		return fmt.Errorf("%w: タイル数は1以上が必要です (%dx%d)", ErrInvalidGridSpec, g.TilesX, g.TilesY)
	}
	if g.TilesX > MaxCells || g.TilesY > MaxCells || g.TilesX*g.TilesY > MaxCells {
		return fmt.Errorf("%w: セル数が上限 %d を超えています (%dx%d)", ErrInvalidGridSpec, MaxCells, g.TilesX, g.TilesY)
	}
	if g.MaxTileWidth < 0 || g.MaxTileHeight < 0 {
		return fmt.Errorf("%w: タイル上限が負の値です (%dx%d)", ErrInvalidGridSpec, g.MaxTileWidth, g.MaxTileHeight)
	}
	// 有効領域はタイル上限×タイル数で求めるため、int に収まる必要がある
	if g.MaxTileWidth > math.MaxInt/g.TilesX || g.MaxTileHeight > math.MaxInt/g.TilesY {
		return fmt.Errorf("%w: タイル上限が大きすぎます (%dx%d)", ErrInvalidGridSpec, g.MaxTileWidth, g.MaxTileHeight)
	}
	return nil
}

// SlotPolicy はセル番号からスロットIDへの変換方法
//
// SlotID = Offset + (Reverse ? セル数-1-セル番号 : セル番号)
type SlotPolicy struct {
	Reverse bool // 末尾から割り当てる
	Offset  int  // 外部で予約済みのスロットを避けるためのオフセット
}

// Config はアロケーターの構築設定
type Config struct {
	Grid   GridSpec
	Policy SlotPolicy
}

// SlotID はグリッドセルに結び付く安定した識別子
type SlotID int

// Rect はフレーム内のタイル矩形
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area は矩形の面積を返す
func (r Rect) Area() int {
	return r.Width * r.Height
}

// Overlaps は2つの矩形が重なるかどうかを返す
func (r Rect) Overlaps(o Rect) bool {
	return r.X < o.X+o.Width && o.X < r.X+r.Width &&
		r.Y < o.Y+o.Height && o.Y < r.Y+r.Height
}

// Tile はレイアウトの1要素
type Tile struct {
	Cell int    `json:"cell"` // セル番号 (Row*TilesX+Col)
	Col  int    `json:"col"`
	Row  int    `json:"row"`
	Slot SlotID `json:"slot"`
	Rect Rect   `json:"rect"`
}

// SlotBinding はスロットの現在の状態
type SlotBinding struct {
	Slot        SlotID `json:"slot"`
	Cell        int    `json:"cell"`
	Rect        Rect   `json:"rect"`        // 直近のレイアウトでの矩形
	Initialized bool   `json:"initialized"` // 外部リソースが作成済みか
}
