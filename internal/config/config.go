package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"tileview/internal/tile"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Source  SourceConfig  `toml:"source"`
	Grid    GridConfig    `toml:"grid"`
	Window  WindowConfig  `toml:"window"`
	Preview PreviewConfig `toml:"preview"`
	Record  RecordConfig  `toml:"record"`
	Scan    ScanConfig    `toml:"scan"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `toml:"host"` // リッスンするホスト
	Port int    `toml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  Duration `toml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout Duration `toml:"write_timeout"` // 書き込みタイムアウト
}

// SourceConfig はフレームソースの設定
type SourceConfig struct {
	Type        string           `toml:"type"`         // "usb" または "pattern"
	Device      string           `toml:"device"`       // デバイスパス (例: /dev/video0)
	Width       int              `toml:"width"`        // 画像幅
	Height      int              `toml:"height"`       // 画像高さ
	FPS         int              `toml:"fps"`          // フレームレート
	PixelFormat tile.PixelFormat `toml:"pixel_format"` // アライメント決定に使う画素フォーマット
	MaxFrames   int              `toml:"max_frames"`   // 取得するフレーム数（0で無制限）
}

// GridConfig はタイルグリッドとスロット割り当ての設定
type GridConfig struct {
	TilesX        int  `toml:"tiles_x"`         // 横方向のタイル数
	TilesY        int  `toml:"tiles_y"`         // 縦方向のタイル数
	MaxTileWidth  int  `toml:"max_tile_width"`  // タイル幅の上限（0で無制限）
	MaxTileHeight int  `toml:"max_tile_height"` // タイル高さの上限（0で無制限）
	ReverseSlots  bool `toml:"reverse_slots"`   // スロットを末尾から割り当てる
	SlotOffset    int  `toml:"slot_offset"`     // 外部で予約済みのスロットを避けるオフセット
}

// TileConfig はアロケーター用の設定に変換する
func (g GridConfig) TileConfig() tile.Config {
	return tile.Config{
		Grid: tile.GridSpec{
			TilesX:        g.TilesX,
			TilesY:        g.TilesY,
			MaxTileWidth:  g.MaxTileWidth,
			MaxTileHeight: g.MaxTileHeight,
		},
		Policy: tile.SlotPolicy{
			Reverse: g.ReverseSlots,
			Offset:  g.SlotOffset,
		},
	}
}

// WindowConfig はタイルウィンドウの画面配置設定
type WindowConfig struct {
	StartX  int `toml:"start_x"`  // 画面上の開始位置X
	StartY  int `toml:"start_y"`  // 画面上の開始位置Y
	BorderX int `toml:"border_x"` // ウィンドウ枠の幅
	BorderY int `toml:"border_y"` // ウィンドウ枠の高さ
}

// Placement は tile.Placement に変換する
func (w WindowConfig) Placement() tile.Placement {
	return tile.Placement{
		StartX:  w.StartX,
		StartY:  w.StartY,
		BorderX: w.BorderX,
		BorderY: w.BorderY,
	}
}

// PreviewConfig はプレビュー配信の設定
type PreviewConfig struct {
	Quality  int `toml:"quality"`   // JPEG品質 (1-100)
	MaxWidth int `toml:"max_width"` // 配信時の最大幅（0で縮小しない）
}

// RecordConfig はスロット毎の動画記録の設定
type RecordConfig struct {
	Enabled   bool   `toml:"enabled"`    // 有効/無効
	OutputDir string `toml:"output_dir"` // 動画出力先
	FPS       int    `toml:"fps"`        // 出力フレームレート
	Quality   int    `toml:"quality"`    // 動画品質 (1-5)
}

// ScanConfig は明るい画素の検出設定
type ScanConfig struct {
	Threshold uint8 `toml:"threshold"` // R,G,B全てがこの値を超える画素を検出する
}

// Duration はTOMLで "10s" のように書ける time.Duration
type Duration struct {
	time.Duration
}

// UnmarshalText は文字列から Duration を読み込む
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("無効な時間指定 %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

// MarshalText は Duration を文字列に変換する
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default はデフォルト設定を返す
func Default() *Config {
	placement := tile.DefaultPlacement()

	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  Duration{10 * time.Second},
			WriteTimeout: Duration{0}, // ストリーミング用にタイムアウト無効化
		},
		Source: SourceConfig{
			Type:        "pattern",
			Device:      "/dev/video0",
			Width:       1280,
			Height:      720,
			FPS:         15,
			PixelFormat: tile.Mono8,
		},
		Grid: GridConfig{
			TilesX:        3,
			TilesY:        2,
			MaxTileWidth:  640,
			MaxTileHeight: 480,
		},
		Window: WindowConfig{
			StartX:  placement.StartX,
			StartY:  placement.StartY,
			BorderX: placement.BorderX,
			BorderY: placement.BorderY,
		},
		Preview: PreviewConfig{
			Quality: 80,
		},
		Record: RecordConfig{
			Enabled:   false,
			OutputDir: "recordings",
			FPS:       10,
			Quality:   3,
		},
		Scan: ScanConfig{
			Threshold: 200,
		},
	}
}

// Load はデフォルト設定に環境変数を反映して返す
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile はTOMLファイルを読み込み、デフォルト設定に上書きする
// path が空の場合はファイルを読まない。
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("設定ファイル %s の読み込みに失敗: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("設定ファイル %s に未知のキーがあります: %v", path, undecoded)
		}
	}

	// 環境変数で上書き
	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvAsIntOrDefault("PORT", cfg.Server.Port)
	cfg.Source.Device = getEnvOrDefault("TILEVIEW_DEVICE", cfg.Source.Device)

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	var errs []error

	// サーバー設定の検証
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("無効なポート番号: %d", c.Server.Port))
	}

	// ソース設定の検証
	switch c.Source.Type {
	case "usb":
		if c.Source.Device == "" {
			errs = append(errs, errors.New("USBソースにはデバイスパスが必要です"))
		}
	case "pattern":
	default:
		errs = append(errs, fmt.Errorf("サポートされていないソースタイプ: %q", c.Source.Type))
	}
	if c.Source.Width <= 0 || c.Source.Height <= 0 {
		errs = append(errs, fmt.Errorf("無効な解像度: %dx%d", c.Source.Width, c.Source.Height))
	}
	if c.Source.FPS <= 0 || c.Source.FPS > 120 {
		errs = append(errs, fmt.Errorf("無効なFPS値: %d", c.Source.FPS))
	}

	// グリッド設定の検証
	if err := c.Grid.TileConfig().Grid.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Grid.SlotOffset < 0 {
		errs = append(errs, fmt.Errorf("%w: スロットオフセットが負の値です (%d)", tile.ErrInvalidGridSpec, c.Grid.SlotOffset))
	}

	if c.Preview.Quality < 1 || c.Preview.Quality > 100 {
		errs = append(errs, fmt.Errorf("無効なJPEG品質: %d", c.Preview.Quality))
	}
	if c.Record.Enabled {
		if c.Record.OutputDir == "" {
			errs = append(errs, errors.New("記録先ディレクトリが設定されていません"))
		}
		if c.Record.Quality < 1 || c.Record.Quality > 5 {
			errs = append(errs, fmt.Errorf("無効な動画品質: %d", c.Record.Quality))
		}
		if c.Record.FPS <= 0 {
			errs = append(errs, fmt.Errorf("無効な記録FPS: %d", c.Record.FPS))
		}
	}

	return errors.Join(errs...)
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
