package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"tileview/internal/preview"
	"tileview/internal/recorder"
	"tileview/internal/server"
)

// serveCommand はプレビューサーバーコマンドを作成する
func (c *CLI) serveCommand() *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "タイルプレビューをHTTPで配信する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runServe(cmd.Context(), host, port)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "サーバーのホスト (デフォルト: 設定値)")
	cmd.Flags().IntVar(&port, "port", 0, "サーバーのポート (デフォルト: 設定値)")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, host string, port int) error {
	logger := loggerFromContext(ctx)

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	// コマンドラインオプションで設定を上書き
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	hub := preview.NewHub(cfg.Preview.Quality, cfg.Preview.MaxWidth)
	mosaic := preview.NewMosaic(cfg.Preview.Quality)
	sinks := preview.MultiSink{hub, mosaic}

	var rec *recorder.Recorder
	if cfg.Record.Enabled {
		if err := recorder.ValidateFFmpeg(ctx); err != nil {
			return err
		}
		rec, err = recorder.New(cfg.Record.OutputDir, cfg.Record.FPS, cfg.Record.Quality, logger)
		if err != nil {
			return err
		}
		sinks = append(sinks, rec)
	}

	p, err := newPipeline(cfg, sinks, logger)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, server.Deps{
		Tiler:    p.tiler,
		Hub:      hub,
		Mosaic:   mosaic,
		Recorder: rec,
		Source:   p.source,
	}, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- p.run(ctx, cfg.Source.MaxFrames)
	}()
	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start(ctx)
	}()

	// どちらかが終了したらもう一方も止める
	var pipeErr, httpErr error
	select {
	case pipeErr = <-runErr:
		if pipeErr == nil {
			logger.Info("ソースが終了したためサーバーを停止します")
		}
		cancel()
		httpErr = <-srvErr
	case httpErr = <-srvErr:
		cancel()
		pipeErr = <-runErr
	}

	if pipeErr != nil {
		return fmt.Errorf("タイル配信でエラーが発生しました: %w", pipeErr)
	}
	return httpErr
}
