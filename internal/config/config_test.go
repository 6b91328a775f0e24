package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tileview/internal/tile"
)

// TestConfigLoad は設定の読み込みをテストする
func TestConfigLoad(t *testing.T) {
	// 設定を読み込む
	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// サーバー設定の検証
	if cfg.Server.Host == "" {
		t.Error("サーバーホストが設定されていません")
	}
	if cfg.Server.ReadTimeout.Duration <= 0 {
		t.Error("読み込みタイムアウトが設定されていません")
	}

	// グリッド設定の検証
	if cfg.Grid.TilesX != 3 || cfg.Grid.TilesY != 2 {
		t.Errorf("デフォルトのグリッドが一致しません: %dx%d", cfg.Grid.TilesX, cfg.Grid.TilesY)
	}
	if cfg.Window.Placement() != tile.DefaultPlacement() {
		t.Errorf("デフォルトのウィンドウ配置が一致しません: %+v", cfg.Window)
	}
	if cfg.Scan.Threshold != 200 {
		t.Errorf("デフォルトの閾値が一致しません: %d", cfg.Scan.Threshold)
	}
}

// TestLoadFile はTOMLファイルの読み込みをテストする
func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tileview.toml")

	content := `
[server]
port = 9090
read_timeout = "3s"

[source]
type = "usb"
device = "/dev/video2"
width = 1920
height = 1200
pixel_format = "BayerRG8"

[grid]
tiles_x = 4
tiles_y = 3
reverse_slots = true
slot_offset = 20

[record]
enabled = true
output_dir = "out"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("設定ファイルの書き込みに失敗しました: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("ポートが反映されていません: %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout.Duration != 3*time.Second {
		t.Errorf("タイムアウトが反映されていません: %v", cfg.Server.ReadTimeout)
	}
	if cfg.Source.PixelFormat != tile.BayerRG8 {
		t.Errorf("画素フォーマットが反映されていません: %s", cfg.Source.PixelFormat)
	}

	tc := cfg.Grid.TileConfig()
	want := tile.Config{
		Grid:   tile.GridSpec{TilesX: 4, TilesY: 3, MaxTileWidth: 640, MaxTileHeight: 480},
		Policy: tile.SlotPolicy{Reverse: true, Offset: 20},
	}
	if tc != want {
		t.Errorf("グリッド設定が一致しません: got %+v, want %+v", tc, want)
	}

	// ファイルに無い項目はデフォルトのまま
	if cfg.Record.FPS != 10 {
		t.Errorf("記録FPSのデフォルト値が失われました: %d", cfg.Record.FPS)
	}
}

// TestLoadFile_UnknownKey は未知のキーを拒否することをテストする
func TestLoadFile_UnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[grid]\ntiles_z = 3\n"), 0644); err != nil {
		t.Fatalf("設定ファイルの書き込みに失敗しました: %v", err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Error("未知のキーでエラーが期待されました")
	}
}

// TestConfigValidation は設定の検証をテストする
func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name      string
		modify    func(c *Config)
		expectErr bool
		gridErr   bool
	}{
		{
			name:   "正常な設定",
			modify: func(c *Config) {},
		},
		{
			name:      "無効なポート番号",
			modify:    func(c *Config) { c.Server.Port = 99999 },
			expectErr: true,
		},
		{
			name:      "未知のソースタイプ",
			modify:    func(c *Config) { c.Source.Type = "gige" },
			expectErr: true,
		},
		{
			name: "USBソースでデバイスパスなし",
			modify: func(c *Config) {
				c.Source.Type = "usb"
				c.Source.Device = ""
			},
			expectErr: true,
		},
		{
			name:      "タイル数が0",
			modify:    func(c *Config) { c.Grid.TilesX = 0 },
			expectErr: true,
			gridErr:   true,
		},
		{
			name:      "スロットオフセットが負",
			modify:    func(c *Config) { c.Grid.SlotOffset = -1 },
			expectErr: true,
			gridErr:   true,
		},
		{
			name: "記録の品質が範囲外",
			modify: func(c *Config) {
				c.Record.Enabled = true
				c.Record.Quality = 9
			},
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(cfg)

			err := cfg.Validate()
			if tc.expectErr && err == nil {
				t.Error("エラーが期待されましたが、エラーが発生しませんでした")
			}
			if !tc.expectErr && err != nil {
				t.Errorf("予期しないエラーが発生しました: %v", err)
			}
			if tc.gridErr && !errors.Is(err, tile.ErrInvalidGridSpec) {
				t.Errorf("ErrInvalidGridSpec が期待されましたが %v でした", err)
			}
		})
	}
}

// TestServerAddress はサーバーアドレスの生成をテストする
func TestServerAddress(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "192.168.1.100",
			Port: 9090,
		},
	}

	expected := "192.168.1.100:9090"
	actual := cfg.ServerAddress()

	if actual != expected {
		t.Errorf("サーバーアドレスが一致しません: got %s, want %s", actual, expected)
	}
}

// TestEnvironmentVariables は環境変数の処理をテストする
func TestEnvironmentVariables(t *testing.T) {
	t.Setenv("SERVER_HOST", "test.example.com")
	t.Setenv("PORT", "9999")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Server.Host != "test.example.com" {
		t.Errorf("環境変数のホストが反映されていません: got %s, want test.example.com", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("環境変数のポートが反映されていません: got %d, want 9999", cfg.Server.Port)
	}
}
