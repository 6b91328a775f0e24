package preview

import (
	"image"
	"image/draw"

	"tileview/internal/tile"
)

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// crop はタイル矩形の領域を切り出す
// SubImage を持つ画像ではピクセルをコピーしない。
func crop(img image.Image, r tile.Rect) image.Image {
	b := img.Bounds()
	rect := image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height).Add(b.Min)

	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}

	dst := image.NewRGBA(rect)
	draw.Draw(dst, rect, img, rect.Min, draw.Src)
	return dst
}
