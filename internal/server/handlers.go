package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oapi-codegen/runtime"

	"tileview/internal/camera"
	"tileview/internal/config"
	"tileview/internal/preview"
	"tileview/internal/recorder"
	"tileview/internal/tile"
)

// ErrorResponse はエラー応答
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse はヘルスチェック応答
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// SourceStatus はソースの状態
type SourceStatus struct {
	Name   string        `json:"name"`
	Type   string        `json:"type"`
	Device string        `json:"device,omitempty"`
	Width  int           `json:"width"`
	Height int           `json:"height"`
	FPS    int           `json:"fps"`
	Status camera.Status `json:"status"`
}

// StatusResponse はシステム状態応答
type StatusResponse struct {
	Status    string        `json:"status"`
	Uptime    string        `json:"uptime"`
	Grid      tile.GridSpec `json:"grid"`
	Source    *SourceStatus `json:"source,omitempty"`
	Stats     preview.Stats `json:"stats"`
	Recording bool          `json:"recording"`
	Timestamp time.Time     `json:"timestamp"`
}

// LayoutQuery は /api/layout のクエリ
// 省略したパラメータは0（pixel_format は空）になる。
type LayoutQuery struct {
	Width       int
	Height      int
	AlignX      int
	AlignY      int
	PixelFormat tile.PixelFormat
}

// LayoutTile はレイアウト計算結果の1タイル
type LayoutTile struct {
	tile.Tile
	Window tile.Rect `json:"window"`
}

// LayoutResponse はレイアウト計算結果
type LayoutResponse struct {
	Frame tile.FrameDescriptor `json:"frame"`
	Tiles []LayoutTile         `json:"tiles"`
}

// SlotInfo はスロットの状態とウィンドウ
type SlotInfo struct {
	tile.SlotBinding
	Window tile.Rect         `json:"window"`
	Feed   *preview.SlotFeed `json:"feed,omitempty"`
}

// SlotsResponse はスロット一覧応答
type SlotsResponse struct {
	Slots []SlotInfo `json:"slots"`
}

// Handler はAPIエンドポイントを実装する
type Handler struct {
	config    *config.Config
	deps      Deps
	placement tile.Placement
	started   time.Time
}

func (h *Handler) register(r *gin.Engine) {
	r.GET("/", h.Index)
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	api.GET("/openapi.yaml", h.GetOpenAPI)
	api.GET("/status", h.GetStatus)
	api.GET("/layout", h.GetLayout)
	api.GET("/slots", h.GetSlots)
	api.GET("/slots/:slot/stream", h.GetSlotStream)
	api.GET("/slots/:slot/snapshot", h.GetSlotSnapshot)
	api.GET("/mosaic", h.GetMosaic)
	api.GET("/recordings", h.GetRecordings)
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// Index は確認用ページを返す
func (h *Handler) Index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

// GetOpenAPI はAPI定義を返す
func (h *Handler) GetOpenAPI(c *gin.Context) {
	c.Data(http.StatusOK, "application/yaml", openapiYAML)
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// GetStatus はシステム状態取得エンドポイントの実装
func (h *Handler) GetStatus(c *gin.Context) {
	resp := StatusResponse{
		Status:    "running",
		Uptime:    time.Since(h.started).Truncate(time.Second).String(),
		Grid:      h.config.Grid.TileConfig().Grid,
		Recording: h.deps.Recorder != nil,
		Timestamp: time.Now(),
	}
	if h.deps.Tiler != nil {
		resp.Stats = h.deps.Tiler.Stats()
	}
	if src := h.deps.Source; src != nil {
		info := src.Info()
		resp.Source = &SourceStatus{
			Name:   info.Name,
			Type:   string(info.Type),
			Device: info.Device,
			Width:  info.Width,
			Height: info.Height,
			FPS:    info.FPS,
			Status: src.Status(),
		}
	}

	c.JSON(http.StatusOK, resp)
}

// GetLayout は指定フレームサイズでのレイアウトを計算する
// 実行中のスロット状態には影響しない。
func (h *Handler) GetLayout(c *gin.Context) {
	q, err := bindLayoutQuery(c)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_query", err.Error())
		return
	}

	frame := tile.FrameDescriptor{Width: q.Width, Height: q.Height, AlignX: q.AlignX, AlignY: q.AlignY}
	if q.PixelFormat != "" {
		frame.AlignX, frame.AlignY = tile.Increment(q.PixelFormat)
	}

	alloc, err := tile.NewAllocator(h.config.Grid.TileConfig())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "invalid_grid", err.Error())
		return
	}

	tiles, err := alloc.ComputeLayout(frame)
	if err != nil {
		if errors.Is(err, tile.ErrInvalidTileGeometry) {
			abortWithError(c, http.StatusUnprocessableEntity, "invalid_tile_geometry", err.Error())
			return
		}
		abortWithError(c, http.StatusInternalServerError, "layout_failed", err.Error())
		return
	}

	resp := LayoutResponse{Frame: frame, Tiles: make([]LayoutTile, 0, len(tiles))}
	for _, t := range tiles {
		resp.Tiles = append(resp.Tiles, LayoutTile{Tile: t, Window: h.placement.Window(t)})
	}
	c.JSON(http.StatusOK, resp)
}

// bindLayoutQuery はクエリを form スタイルで LayoutQuery に読み込む
func bindLayoutQuery(c *gin.Context) (LayoutQuery, error) {
	var q LayoutQuery
	query := c.Request.URL.Query()

	for _, p := range []struct {
		name string
		dest any
	}{
		{"width", &q.Width},
		{"height", &q.Height},
		{"align_x", &q.AlignX},
		{"align_y", &q.AlignY},
		{"pixel_format", &q.PixelFormat},
	} {
		if err := runtime.BindQueryParameter("form", true, false, p.name, query, p.dest); err != nil {
			return LayoutQuery{}, fmt.Errorf("パラメータ %s の形式が不正です: %w", p.name, err)
		}
	}
	return q, nil
}

// GetSlots はスロット一覧取得エンドポイントの実装
func (h *Handler) GetSlots(c *gin.Context) {
	if h.deps.Tiler == nil {
		c.JSON(http.StatusOK, SlotsResponse{Slots: []SlotInfo{}})
		return
	}

	feeds := make(map[tile.SlotID]preview.SlotFeed)
	if h.deps.Hub != nil {
		for _, f := range h.deps.Hub.Feeds() {
			feeds[f.Slot] = f
		}
	}

	tilesX := h.config.Grid.TilesX
	bindings := h.deps.Tiler.Bindings()
	slots := make([]SlotInfo, 0, len(bindings))
	for _, b := range bindings {
		info := SlotInfo{
			SlotBinding: b,
			Window: h.placement.Window(tile.Tile{
				Cell: b.Cell,
				Col:  b.Cell % tilesX,
				Row:  b.Cell / tilesX,
				Slot: b.Slot,
				Rect: b.Rect,
			}),
		}
		if f, ok := feeds[b.Slot]; ok {
			info.Feed = &f
		}
		slots = append(slots, info)
	}

	c.JSON(http.StatusOK, SlotsResponse{Slots: slots})
}

func slotParam(c *gin.Context) (tile.SlotID, bool) {
	var slot tile.SlotID
	err := runtime.BindStyledParameterWithOptions("simple", "slot", c.Param("slot"), &slot, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Required:      true,
	})
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_slot", "スロットIDが不正です")
		return 0, false
	}
	return slot, true
}

// GetSlotSnapshot はスロットの最新JPEGを返す
func (h *Handler) GetSlotSnapshot(c *gin.Context) {
	slot, ok := slotParam(c)
	if !ok {
		return
	}
	if h.deps.Hub == nil {
		abortWithError(c, http.StatusServiceUnavailable, "preview_disabled", "プレビューが無効です")
		return
	}

	data, ok := h.deps.Hub.Latest(slot)
	if !ok {
		abortWithError(c, http.StatusNotFound, "slot_not_found", "指定されたスロットのフレームがありません")
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

// GetSlotStream はMJPEGストリーミングエンドポイントの実装
func (h *Handler) GetSlotStream(c *gin.Context) {
	slot, ok := slotParam(c)
	if !ok {
		return
	}
	if h.deps.Hub == nil {
		abortWithError(c, http.StatusServiceUnavailable, "preview_disabled", "プレビューが無効です")
		return
	}

	frames, cancel, err := h.deps.Hub.Subscribe(slot)
	if err != nil {
		if errors.Is(err, preview.ErrUnknownSlot) {
			abortWithError(c, http.StatusNotFound, "slot_not_found", "指定されたスロットが見つかりません")
			return
		}
		abortWithError(c, http.StatusInternalServerError, "subscribe_failed", err.Error())
		return
	}
	defer cancel()

	streamMJPEG(c, frames)
}

// streamMJPEG はMJPEGストリームを配信する
func streamMJPEG(c *gin.Context, frames <-chan []byte) {
	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Status(http.StatusOK)

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			return

		case frame, ok := <-frames:
			if !ok {
				// Hubが閉じられた
				return
			}

			if _, err := c.Writer.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\nContent-Length: " +
				strconv.Itoa(len(frame)) + "\r\n\r\n")); err != nil {
				return
			}
			if _, err := c.Writer.Write(frame); err != nil {
				return
			}
			if _, err := c.Writer.Write([]byte("\r\n")); err != nil {
				return
			}

			c.Writer.Flush()
		}
	}
}

// GetMosaic はウィンドウ配置どおりの合成画像を返す
func (h *Handler) GetMosaic(c *gin.Context) {
	if h.deps.Mosaic == nil {
		abortWithError(c, http.StatusServiceUnavailable, "mosaic_disabled", "合成画像が無効です")
		return
	}

	data, err := h.deps.Mosaic.Snapshot()
	if err != nil {
		abortWithError(c, http.StatusNotFound, "mosaic_empty", err.Error())
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

// GetRecordings は記録中および記録済みの動画一覧を返す
func (h *Handler) GetRecordings(c *gin.Context) {
	recs := []recorder.Recording{}
	if h.deps.Recorder != nil {
		recs = h.deps.Recorder.Recordings()
	}
	c.JSON(http.StatusOK, gin.H{"recordings": recs})
}
