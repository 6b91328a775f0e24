package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"tileview/internal/recorder"
)

// recordCommand はスロット毎の動画記録コマンドを作成する
func (c *CLI) recordCommand() *cobra.Command {
	var (
		frames int
		output string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "スロット毎のタイルを AVI ファイルに記録する",
		Long: `スロット毎のタイルを AVI ファイルに記録する。

各スロットは slot_<スロットID>_<セッションID>.avi に書き出される。
--frames を省略した場合は Ctrl+C で停止するまで記録する。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runRecord(cmd.Context(), frames, output)
		},
	}

	cmd.Flags().IntVarP(&frames, "frames", "n", 0, "記録するフレーム数 (0で無制限)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "出力ディレクトリ (デフォルト: 設定値)")

	return cmd
}

func (c *CLI) runRecord(ctx context.Context, frames int, output string) error {
	logger := loggerFromContext(ctx)

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if output != "" {
		cfg.Record.OutputDir = output
	}
	if frames == 0 {
		frames = cfg.Source.MaxFrames
	}

	if err := recorder.ValidateFFmpeg(ctx); err != nil {
		return err
	}
	rec, err := recorder.New(cfg.Record.OutputDir, cfg.Record.FPS, cfg.Record.Quality, logger)
	if err != nil {
		return err
	}

	p, err := newPipeline(cfg, rec, logger)
	if err != nil {
		return err
	}

	prog := newProgress(logger)
	if err := p.run(ctx, frames); err != nil {
		return fmt.Errorf("記録に失敗: %w", err)
	}
	prog.done("記録が完了しました")

	recs := rec.Recordings()
	if len(recs) == 0 {
		printWarning(c.out, "記録されたスロットがありません")
		return nil
	}
	for _, r := range recs {
		printSuccess(c.out, "slot %d: %s (%d フレーム)", r.Slot, r.FilePath, r.Frames)
	}
	return nil
}
