package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"tileview/internal/camera"
	"tileview/internal/config"
	"tileview/internal/preview"
	"tileview/internal/recorder"
)

// Deps はサーバーが配信する対象
// Recorder と Source は nil でもよい。
type Deps struct {
	Tiler    *preview.Tiler
	Hub      *preview.Hub
	Mosaic   *preview.Mosaic
	Recorder *recorder.Recorder
	Source   camera.Source
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	logger     *log.Logger
	httpServer *http.Server
	router     *gin.Engine
	addr       chan net.Addr
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, deps Deps, logger *log.Logger) (*Server, error) {
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	doc, err := loadOpenAPI(context.Background(), openapiYAML)
	if err != nil {
		return nil, err
	}
	validator, err := newRequestValidator(doc)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), validator.middleware())

	h := &Handler{
		config:    cfg,
		deps:      deps,
		placement: cfg.Window.Placement(),
		started:   time.Now(),
	}
	h.register(router)

	return &Server{
		config: cfg,
		logger: logger,
		router: router,
		addr:   make(chan net.Addr, 1),
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout.Duration,
			WriteTimeout: cfg.Server.WriteTimeout.Duration,
		},
	}, nil
}

// Handler はHTTPハンドラを返す
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr はリッスン開始後のアドレスを返す
func (s *Server) Addr() <-chan net.Addr {
	return s.addr
}

// requestLogger はリクエストをデバッグログに出力するミドルウェア
func requestLogger(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("リクエスト",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

// Start はサーバーを起動し、ctx が終了するまでブロックする
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("サーバーの起動に失敗: %w", err)
	}
	s.addr <- ln.Addr()

	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.logger.Info("HTTPサーバーを起動しています", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("コンテキストがキャンセルされました")
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	s.logger.Info("サーバーをシャットダウンしています...")

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.logger.Info("サーバーが正常にシャットダウンされました")
	return nil
}
