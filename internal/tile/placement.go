package tile

// Placement は画面上にタイルウィンドウを並べるための設定
type Placement struct {
	StartX  int // 画面上の開始位置X
	StartY  int // 画面上の開始位置Y
	BorderX int // ウィンドウ枠の幅
	BorderY int // ウィンドウ枠の高さ（タイトルバー含む）
}

// DefaultPlacement はデフォルトのウィンドウ配置設定を返す
func DefaultPlacement() Placement {
	return Placement{
		StartX:  40,
		StartY:  40,
		BorderX: 25,
		BorderY: 125,
	}
}

// Window はタイルを表示するウィンドウの画面上の矩形を返す
func (p Placement) Window(t Tile) Rect {
	w := t.Rect.Width + p.BorderX
	h := t.Rect.Height + p.BorderY
	return Rect{
		X:      p.StartX + t.Col*w,
		Y:      p.StartY + t.Row*h,
		Width:  w,
		Height: h,
	}
}
