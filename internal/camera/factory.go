package camera

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"tileview/internal/config"
)

// NewSource は設定からフレームソースを作成する
func NewSource(cfg config.SourceConfig, logger *log.Logger) (Source, error) {
	info := SourceInfo{
		ID:     uuid.New().String(),
		Device: cfg.Device,
		Width:  cfg.Width,
		Height: cfg.Height,
		FPS:    cfg.FPS,
	}

	switch SourceType(cfg.Type) {
	case SourceTypeUSB:
		if cfg.Device == "" {
			return nil, fmt.Errorf("USBカメラの作成にはデバイスパスが必要です")
		}
		info.Name = fmt.Sprintf("USB Camera (%s)", cfg.Device)
		return NewUSBSource(info, cfg.PixelFormat, logger), nil
	case SourceTypePattern:
		return NewPatternSource(info, cfg.PixelFormat), nil
	default:
		return nil, fmt.Errorf("サポートされていないソースタイプ: %s", cfg.Type)
	}
}
