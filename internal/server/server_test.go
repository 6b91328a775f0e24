package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"tileview/internal/camera"
	"tileview/internal/config"
	"tileview/internal/preview"
	"tileview/internal/tile"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0 // ランダムポートを使用
	return cfg
}

// newTestServer は1フレーム処理済みのサーバーを作成する
func newTestServer(t *testing.T) (*Server, *preview.Hub) {
	t.Helper()
	cfg := testConfig()
	logger := log.New(io.Discard)

	alloc, err := tile.NewAllocator(cfg.Grid.TileConfig())
	if err != nil {
		t.Fatalf("アロケーターの作成に失敗しました: %v", err)
	}
	hub := preview.NewHub(cfg.Preview.Quality, 0)
	mosaic := preview.NewMosaic(cfg.Preview.Quality)
	tiler := preview.NewTiler(alloc, preview.MultiSink{hub, mosaic}, cfg.Window.Placement(), logger)

	frame := camera.Frame{Seq: 1, Timestamp: time.Now(), Image: camera.ColorBars(96, 48, 0), Format: tile.Mono8}
	if err := tiler.Process(context.Background(), frame); err != nil {
		t.Fatalf("フレームの処理に失敗しました: %v", err)
	}

	src := camera.NewPatternSource(camera.SourceInfo{Width: 96, Height: 48, FPS: 5}, tile.Mono8)
	srv, err := New(cfg, Deps{Tiler: tiler, Hub: hub, Mosaic: mosaic, Source: src}, logger)
	if err != nil {
		t.Fatalf("サーバーの作成に失敗しました: %v", err)
	}
	t.Cleanup(func() { tiler.Close() })
	return srv, hub
}

// TestServerStartAndShutdown はサーバーの起動とシャットダウンをテストする
func TestServerStartAndShutdown(t *testing.T) {
	srv, err := New(testConfig(), Deps{}, log.New(io.Discard))
	if err != nil {
		t.Fatalf("サーバーの作成に失敗しました: %v", err)
	}

	// テスト用のコンテキスト（タイムアウト付き）
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// サーバーを別ゴルーチンで起動
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// リッスン開始を待つ
	var addr string
	select {
	case a := <-srv.Addr():
		addr = a.String()
	case err := <-errCh:
		t.Fatalf("サーバーの起動に失敗しました: %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/health", addr))
	if err != nil {
		t.Fatalf("HTTPリクエストでエラーが発生しました: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("予期しないステータスコード: %d", resp.StatusCode)
	}

	// コンテキストをキャンセルしてサーバーを停止
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("サーバーの起動/停止でエラーが発生しました: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("サーバーの停止がタイムアウトしました")
	}
}

// TestServerEndpoints はサーバーのエンドポイントをテストする
func TestServerEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	testCases := []struct {
		name           string
		endpoint       string
		expectedStatus int
		contentType    string
	}{
		{"ルートエンドポイント", "/", http.StatusOK, "text/html"},
		{"ヘルスチェックエンドポイント", "/health", http.StatusOK, "application/json"},
		{"ステータスエンドポイント", "/api/status", http.StatusOK, "application/json"},
		{"スロット一覧", "/api/slots", http.StatusOK, "application/json"},
		{"スナップショット", "/api/slots/0/snapshot", http.StatusOK, "image/jpeg"},
		{"未知のスロットのスナップショット", "/api/slots/42/snapshot", http.StatusNotFound, "application/json"},
		{"不正なスロットID", "/api/slots/abc/snapshot", http.StatusBadRequest, "application/json"},
		{"未知のスロットのストリーム", "/api/slots/42/stream", http.StatusNotFound, "application/json"},
		{"合成画像", "/api/mosaic", http.StatusOK, "image/jpeg"},
		{"記録一覧", "/api/recordings", http.StatusOK, "application/json"},
		{"API定義", "/api/openapi.yaml", http.StatusOK, "application/yaml"},
		{"負のスロットID", "/api/slots/-1/stream", http.StatusBadRequest, "application/json"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.endpoint, nil)
			srv.Handler().ServeHTTP(w, req)

			if w.Code != tc.expectedStatus {
				t.Errorf("予期しないステータスコード: got %d, want %d", w.Code, tc.expectedStatus)
			}
			if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, tc.contentType) {
				t.Errorf("Content-Type が一致しません: got %s, want %s", ct, tc.contentType)
			}
		})
	}
}

// TestGetSlots はスロット一覧の内容をテストする
func TestGetSlots(t *testing.T) {
	srv, _ := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/slots", nil))

	var resp SlotsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗しました: %v", err)
	}
	if len(resp.Slots) != 6 {
		t.Fatalf("スロット数が一致しません: got %d, want 6", len(resp.Slots))
	}

	s := resp.Slots[4]
	if s.Slot != 4 || s.Cell != 4 || !s.Initialized {
		t.Errorf("スロット4の状態が一致しません: %+v", s.SlotBinding)
	}
	if s.Rect != (tile.Rect{X: 32, Y: 24, Width: 32, Height: 24}) {
		t.Errorf("スロット4の矩形が一致しません: %+v", s.Rect)
	}
	// 2列目2行目: 40 + 1*(32+25), 40 + 1*(24+125)
	if s.Window != (tile.Rect{X: 97, Y: 189, Width: 57, Height: 149}) {
		t.Errorf("スロット4のウィンドウが一致しません: %+v", s.Window)
	}
	if s.Feed == nil || s.Feed.Size == 0 {
		t.Error("配信情報がありません")
	}
}

// TestGetLayout はレイアウト計算エンドポイントをテストする
func TestGetLayout(t *testing.T) {
	srv, _ := newTestServer(t)

	testCases := []struct {
		name           string
		query          string
		expectedStatus int
		tileWidth      int
		tileHeight     int
	}{
		{"上限で切り詰め", "width=1920&height=1200", http.StatusOK, 640, 480},
		{"アライメント指定", "width=212&height=240&align_x=4&align_y=4", http.StatusOK, 68, 120},
		{"画素フォーマットからアライメント", "width=215&height=241&pixel_format=BayerRG8", http.StatusOK, 70, 120},
		{"タイルが0になる", "width=8&height=8&align_x=4&align_y=4", http.StatusUnprocessableEntity, 0, 0},
		{"サイズ未指定", "", http.StatusUnprocessableEntity, 0, 0},
		{"数値でない", "width=abc&height=10", http.StatusBadRequest, 0, 0},
		{"負のアライメント", "width=100&height=100&align_x=-2", http.StatusBadRequest, 0, 0},
		{"未知の画素フォーマット", "width=100&height=100&pixel_format=Mono9", http.StatusBadRequest, 0, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/layout?"+tc.query, nil))

			if w.Code != tc.expectedStatus {
				t.Fatalf("予期しないステータスコード: got %d, want %d (%s)", w.Code, tc.expectedStatus, w.Body.String())
			}
			if w.Code != http.StatusOK {
				return
			}

			var resp LayoutResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("レスポンスのデコードに失敗しました: %v", err)
			}
			if len(resp.Tiles) != 6 {
				t.Fatalf("タイル数が一致しません: %d", len(resp.Tiles))
			}
			last := resp.Tiles[5]
			if last.Rect.Width != tc.tileWidth || last.Rect.Height != tc.tileHeight {
				t.Errorf("タイルサイズが一致しません: got %dx%d, want %dx%d",
					last.Rect.Width, last.Rect.Height, tc.tileWidth, tc.tileHeight)
			}
			if last.Rect.X != 2*tc.tileWidth || last.Rect.Y != tc.tileHeight {
				t.Errorf("最後のタイルの位置が一致しません: %+v", last.Rect)
			}
		})
	}
}

// TestGetSlotStream はMJPEGストリームの配信をテストする
func TestGetSlotStream(t *testing.T) {
	srv, hub := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/slots/1/stream", nil)
	if err != nil {
		t.Fatalf("リクエストの作成に失敗しました: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("HTTPリクエストでエラーが発生しました: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Fatalf("Content-Type が一致しません: %s", ct)
	}

	// 購読直後に最新フレームが届く
	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("ストリームの読み込みに失敗しました: %v", err)
	}
	if strings.TrimSpace(line) != "--frame" {
		t.Errorf("境界文字列が一致しません: %q", line)
	}

	// 新しいフレームも届く
	if err := hub.Present(ctx, 1, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("Present に失敗しました: %v", err)
	}
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("ストリームの読み込みに失敗しました: %v", err)
		}
		if strings.TrimSpace(line) == "--frame" {
			break
		}
	}
}

// TestOpenAPIDocument は埋め込みのAPI定義が全ルートを含むことをテストする
func TestOpenAPIDocument(t *testing.T) {
	doc, err := loadOpenAPI(context.Background(), openapiYAML)
	if err != nil {
		t.Fatalf("API定義の読み込みに失敗しました: %v", err)
	}

	srv, _ := newTestServer(t)
	for _, r := range srv.router.Routes() {
		if r.Path == "/" {
			continue
		}
		path := strings.ReplaceAll(r.Path, ":slot", "{slot}")
		item := doc.Paths.Find(path)
		if item == nil || item.GetOperation(r.Method) == nil {
			t.Errorf("API定義に %s %s がありません", r.Method, path)
		}
	}
}

// TestLoadOpenAPI_Invalid は不正な定義がエラーになることをテストする
func TestLoadOpenAPI_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		data string
	}{
		{name: "YAMLでない", data: "openapi: [3"},
		{name: "info がない", data: "openapi: 3.0.3\npaths: {}\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadOpenAPI(context.Background(), []byte(tc.data)); err == nil {
				t.Error("エラーが期待されましたが、エラーが発生しませんでした")
			}
		})
	}
}

// TestValidationError は検証エラーの応答内容をテストする
func TestValidationError(t *testing.T) {
	srv, _ := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/layout?width=abc", nil))

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗しました: %v", err)
	}
	if resp.Error != "invalid_width" {
		t.Errorf("エラーコードが一致しません: %s", resp.Error)
	}
	if !strings.Contains(resp.Message, "width") {
		t.Errorf("メッセージにパラメータ名が含まれていません: %s", resp.Message)
	}
}

// TestBindLayoutQuery はクエリの読み込みをテストする
func TestBindLayoutQuery(t *testing.T) {
	testCases := []struct {
		name      string
		query     string
		want      LayoutQuery
		expectErr bool
	}{
		{name: "全て指定", query: "width=640&height=480&align_x=2&align_y=1&pixel_format=RGB8",
			want: LayoutQuery{Width: 640, Height: 480, AlignX: 2, AlignY: 1, PixelFormat: tile.RGB8}},
		{name: "省略は0", query: "width=10", want: LayoutQuery{Width: 10}},
		{name: "数値でない", query: "height=x", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/api/layout?"+tc.query, nil)

			got, err := bindLayoutQuery(c)
			if tc.expectErr {
				if err == nil {
					t.Error("エラーが期待されましたが、エラーが発生しませんでした")
				}
				return
			}
			if err != nil {
				t.Fatalf("予期しないエラーが発生しました: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}
