package tile

import (
	"image"
	"strings"
)

// PixelFormat はカメラが出力する画素フォーマット
type PixelFormat string

// PixelFormat の定数定義
const (
	Mono8        PixelFormat = "Mono8"
	Mono10       PixelFormat = "Mono10"
	Mono12       PixelFormat = "Mono12"
	Mono16       PixelFormat = "Mono16"
	BayerGR8     PixelFormat = "BayerGR8"
	BayerRG8     PixelFormat = "BayerRG8"
	BayerGB8     PixelFormat = "BayerGB8"
	BayerBG8     PixelFormat = "BayerBG8"
	BayerGR12    PixelFormat = "BayerGR12"
	BayerRG12    PixelFormat = "BayerRG12"
	BayerGB12    PixelFormat = "BayerGB12"
	BayerBG12    PixelFormat = "BayerBG12"
	RGB8         PixelFormat = "RGB8"
	BGR8         PixelFormat = "BGR8"
	RGBA8        PixelFormat = "RGBA8"
	YUV422Packed PixelFormat = "YUV422Packed"
	YUV422YUYV   PixelFormat = "YUV422_YUYV"
	YUV420       PixelFormat = "YUV420"
)

// Increment は画素フォーマットの最小アドレス単位（X, Y）を返す
//
// Bayerはカラーフィルタの2x2ブロック、YUV422は水平2画素でクロマを共有する。
// 未知のフォーマットは1x1とみなす。
func Increment(f PixelFormat) (int, int) {
	switch {
	case strings.HasPrefix(string(f), "Bayer"):
		return 2, 2
	case f == YUV422Packed || f == YUV422YUYV:
		return 2, 1
	case f == YUV420:
		return 2, 2
	default:
		return 1, 1
	}
}

// DescribeImage は画像と画素フォーマットから FrameDescriptor を作成する
//
// サブサンプリングされた *image.YCbCr の場合はクロマブロックに合わせて
// アライメントを引き上げる。
func DescribeImage(img image.Image, f PixelFormat) FrameDescriptor {
	b := img.Bounds()
	ax, ay := Increment(f)

	if ycc, ok := img.(*image.YCbCr); ok {
		cx, cy := chromaBlock(ycc.SubsampleRatio)
		ax = max(ax, cx)
		ay = max(ay, cy)
	}

	return FrameDescriptor{
		Width:  b.Dx(),
		Height: b.Dy(),
		AlignX: ax,
		AlignY: ay,
	}
}

// chromaBlock はYCbCrのサブサンプリング比に対応するブロックサイズを返す
func chromaBlock(r image.YCbCrSubsampleRatio) (int, int) {
	switch r {
	case image.YCbCrSubsampleRatio422:
		return 2, 1
	case image.YCbCrSubsampleRatio420:
		return 2, 2
	case image.YCbCrSubsampleRatio440:
		return 1, 2
	case image.YCbCrSubsampleRatio411:
		return 4, 1
	case image.YCbCrSubsampleRatio410:
		return 4, 2
	default:
		return 1, 1
	}
}
