package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"tileview/internal/camera"
	"tileview/internal/config"
	"tileview/internal/preview"
	"tileview/internal/tile"
)

// pipeline はソースからタイル配信までをまとめたもの
type pipeline struct {
	source camera.Source
	tiler  *preview.Tiler
	logger *log.Logger
}

// newPipeline は設定からソースとTilerを作成する
func newPipeline(cfg *config.Config, sink preview.Sink, logger *log.Logger) (*pipeline, error) {
	alloc, err := tile.NewAllocator(cfg.Grid.TileConfig())
	if err != nil {
		return nil, err
	}

	src, err := camera.NewSource(cfg.Source, logger)
	if err != nil {
		return nil, fmt.Errorf("ソースの作成に失敗: %w", err)
	}

	return &pipeline{
		source: src,
		tiler:  preview.NewTiler(alloc, sink, cfg.Window.Placement(), logger),
		logger: logger,
	}, nil
}

// run はソースを開始し、maxFrames 枚処理するか ctx が終了するまでタイルを配信する
// 戻る前にソースを止めて Sink を閉じる。
func (p *pipeline) run(ctx context.Context, maxFrames int) error {
	if err := p.source.Start(ctx); err != nil {
		return fmt.Errorf("ソースの開始に失敗: %w", err)
	}
	info := p.source.Info()
	p.logger.Info("ソースを開始しました", "name", info.Name, "size", fmt.Sprintf("%dx%d", info.Width, info.Height), "fps", info.FPS)

	runErr := p.tiler.Run(ctx, p.source, maxFrames)

	// 停止処理は ctx がキャンセル済みでも行う
	stopErr := p.source.Stop(context.WithoutCancel(ctx))
	closeErr := p.tiler.Close()

	return errors.Join(runErr, stopErr, closeErr)
}
