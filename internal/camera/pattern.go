package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"tileview/internal/tile"
)

// SMPTE カラーバー: 7本の縦縞
var barColors = [7]color.RGBA{
	{192, 192, 192, 255}, // Gray
	{192, 192, 0, 255},   // Yellow
	{0, 192, 192, 255},   // Cyan
	{0, 192, 0, 255},     // Green
	{192, 0, 192, 255},   // Magenta
	{192, 0, 0, 255},     // Red
	{0, 0, 192, 255},     // Blue
}

// PatternSource はカメラ無しで動作確認するための合成ソース
type PatternSource struct {
	baseSource

	format tile.PixelFormat

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPatternSource は新しいPatternSourceを作成する
func NewPatternSource(info SourceInfo, format tile.PixelFormat) *PatternSource {
	info.Type = SourceTypePattern
	if info.Name == "" {
		info.Name = fmt.Sprintf("テストパターン %dx%d", info.Width, info.Height)
	}
	return &PatternSource{
		baseSource: newBaseSource(info),
		format:     format,
	}
}

// Start はフレーム生成を開始する
func (s *PatternSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusActive {
		return nil
	}
	if s.info.Width <= 0 || s.info.Height <= 0 || s.info.FPS <= 0 {
		s.status = StatusError
		return fmt.Errorf("無効なテストパターン設定: %dx%d@%d", s.info.Width, s.info.Height, s.info.FPS)
	}

	s.reopenFrames()
	genCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.generate(genCtx)

	s.status = StatusActive
	return nil
}

// Stop はフレーム生成を停止する
func (s *PatternSource) Stop(_ context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.setStatus(StatusInactive)
	return nil
}

func (s *PatternSource) generate(ctx context.Context) {
	defer s.wg.Done()
	defer s.closeFrames(StatusInactive)

	ticker := time.NewTicker(time.Second / time.Duration(s.info.FPS))
	defer ticker.Stop()

	phase := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publish(ColorBars(s.info.Width, s.info.Height, phase), s.format)
			phase++
		}
	}
}

// ColorBars はカラーバー画像を生成する
// phase を進めると縞が1本ずつ横に流れる。
func ColorBars(width, height, phase int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	barWidth := max(width/len(barColors), 1)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			barIdx := min(x/barWidth, len(barColors)-1)
			img.SetRGBA(x, y, barColors[(barIdx+phase)%len(barColors)])
		}
	}

	return img
}
