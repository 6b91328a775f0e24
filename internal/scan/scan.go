// Package scan は画像から明るい（白に近い）画素を探す
package scan

import (
	"image"
	"image/color"
)

// DefaultThreshold はデフォルトの閾値
const DefaultThreshold uint8 = 200

// FindBright はR,G,B全てが threshold を超える画素の座標を行優先で返す
func FindBright(img image.Image, threshold uint8) []image.Point {
	var points []image.Point
	walk(img, threshold, func(p image.Point) bool {
		points = append(points, p)
		return true
	})
	return points
}

// FirstBright は最初に見つかった明るい画素を返す
func FirstBright(img image.Image, threshold uint8) (image.Point, bool) {
	var found image.Point
	ok := false
	walk(img, threshold, func(p image.Point) bool {
		found, ok = p, true
		return false
	})
	return found, ok
}

// walk は明るい画素毎に fn を呼ぶ。fn が false を返したら終了する。
func walk(img image.Image, threshold uint8, fn func(image.Point) bool) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if isBright(img.At(x, y), threshold) && !fn(image.Pt(x, y)) {
				return
			}
		}
	}
}

func isBright(c color.Color, threshold uint8) bool {
	rgba := color.RGBAModel.Convert(c).(color.RGBA)
	return rgba.R > threshold && rgba.G > threshold && rgba.B > threshold
}
