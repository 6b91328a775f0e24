package camera

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"sync"

	"github.com/charmbracelet/log"

	"tileview/internal/tile"
)

// USBSource はUSBカメラの Source 実装
type USBSource struct {
	baseSource

	capturer *V4L2Capturer
	format   tile.PixelFormat
	logger   *log.Logger

	// 制御用
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewUSBSource は新しいUSBSourceを作成する
func NewUSBSource(info SourceInfo, format tile.PixelFormat, logger *log.Logger) *USBSource {
	info.Type = SourceTypeUSB
	return &USBSource{
		baseSource: newBaseSource(info),
		capturer:   NewV4L2Capturer(info.Device, info.Width, info.Height, info.FPS, logger),
		format:     format,
		logger:     logger,
	}
}

// Start はカメラを開始する
func (s *USBSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusActive {
		return nil // 既に開始済み
	}

	// デバイステストを実行
	if err := s.capturer.TestCapture(ctx); err != nil {
		s.status = StatusError
		return fmt.Errorf("カメラ %s のテストキャプチャに失敗: %w", s.info.Device, err)
	}

	if s.cancel != nil {
		s.cancel() // 入力の終端で終了した前回のストリーム
	}
	s.reopenFrames()
	streamCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.stream(streamCtx)

	s.status = StatusActive
	s.logger.Info("カメラを開始しました", "device", s.info.Device, "width", s.info.Width, "height", s.info.Height, "fps", s.info.FPS)
	return nil
}

// Stop はカメラを停止する
func (s *USBSource) Stop(_ context.Context) error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return nil // 既に停止済み
	}
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

// stream はffmpegからのJPEGをデコードして配信する
func (s *USBSource) stream(ctx context.Context) {
	defer s.wg.Done()

	err := s.capturer.Stream(ctx, func(data []byte) {
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			s.report(fmt.Errorf("JPEGデコードエラー: %w", err))
			return
		}
		s.publish(img, s.format)
	})
	switch {
	case err != nil:
		s.logger.Error("ストリームが終了しました", "device", s.info.Device, "err", err)
		s.report(err)
		s.closeFrames(StatusError)
	case ctx.Err() == nil:
		s.logger.Warn("ストリームが入力の終端に達しました", "device", s.info.Device)
		s.closeFrames(StatusInactive)
	default:
		s.closeFrames(StatusInactive)
	}
}
