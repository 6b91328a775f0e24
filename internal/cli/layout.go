package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"tileview/internal/config"
	"tileview/internal/tile"
)

var styleCell = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorDim).
	Padding(0, 1).
	Align(lipgloss.Center)

type layoutOptions struct {
	width       int
	height      int
	alignX      int
	alignY      int
	pixelFormat string
	asJSON      bool
}

// layoutResult は layout --json の出力
type layoutResult struct {
	Grid  tile.GridSpec        `json:"grid"`
	Frame tile.FrameDescriptor `json:"frame"`
	Tiles []layoutTile         `json:"tiles"`
}

type layoutTile struct {
	tile.Tile
	Window tile.Rect `json:"window"`
}

// layoutCommand はレイアウト計算コマンドを作成する
func (c *CLI) layoutCommand() *cobra.Command {
	var opts layoutOptions

	cmd := &cobra.Command{
		Use:   "layout",
		Short: "フレームサイズからタイルとスロットを計算して表示する",
		Long: `フレームサイズからタイルとスロットを計算して表示する。

幅と高さを省略した場合は設定ファイルのソース解像度を使う。
--pixel-format を指定すると、その画素フォーマットの最小単位でアライメントする。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			return runLayout(c.out, cfg, opts)
		},
	}

	cmd.Flags().IntVar(&opts.width, "width", 0, "フレーム幅 (デフォルト: ソース解像度)")
	cmd.Flags().IntVar(&opts.height, "height", 0, "フレーム高さ (デフォルト: ソース解像度)")
	cmd.Flags().IntVar(&opts.alignX, "align-x", 1, "X方向のアライメント単位")
	cmd.Flags().IntVar(&opts.alignY, "align-y", 1, "Y方向のアライメント単位")
	cmd.Flags().StringVar(&opts.pixelFormat, "pixel-format", "", "画素フォーマット (例: BayerRG8)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "JSON で出力する")

	return cmd
}

func runLayout(w io.Writer, cfg *config.Config, opts layoutOptions) error {
	frame := tile.FrameDescriptor{
		Width:  opts.width,
		Height: opts.height,
		AlignX: opts.alignX,
		AlignY: opts.alignY,
	}
	if frame.Width == 0 {
		frame.Width = cfg.Source.Width
	}
	if frame.Height == 0 {
		frame.Height = cfg.Source.Height
	}
	if opts.pixelFormat != "" {
		frame.AlignX, frame.AlignY = tile.Increment(tile.PixelFormat(opts.pixelFormat))
	}

	alloc, err := tile.NewAllocator(cfg.Grid.TileConfig())
	if err != nil {
		return err
	}
	tiles, err := alloc.ComputeLayout(frame)
	if err != nil {
		return fmt.Errorf("%dx%d のレイアウト計算に失敗: %w", frame.Width, frame.Height, err)
	}

	placement := cfg.Window.Placement()
	result := layoutResult{Grid: alloc.Grid(), Frame: frame, Tiles: make([]layoutTile, 0, len(tiles))}
	for _, t := range tiles {
		result.Tiles = append(result.Tiles, layoutTile{Tile: t, Window: placement.Window(t)})
	}

	if opts.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	printLayout(w, result)
	return nil
}

// printLayout はグリッドをセル毎の枠で表示する
func printLayout(w io.Writer, r layoutResult) {
	printTitle(w, "グリッド %dx%d  フレーム %dx%d", r.Grid.TilesX, r.Grid.TilesY, r.Frame.Width, r.Frame.Height)

	rows := make([]string, 0, r.Grid.TilesY)
	for row := 0; row < r.Grid.TilesY; row++ {
		cells := make([]string, 0, r.Grid.TilesX)
		for col := 0; col < r.Grid.TilesX; col++ {
			t := r.Tiles[row*r.Grid.TilesX+col]
			cells = append(cells, styleCell.Render(
				"slot "+styleNumber.Render(fmt.Sprint(t.Slot))+"\n"+
					styleValue.Render(fmt.Sprintf("%dx%d", t.Rect.Width, t.Rect.Height))+"\n"+
					styleDim.Render(fmt.Sprintf("@%d,%d", t.Rect.X, t.Rect.Y)),
			))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, rows...))

	for _, t := range r.Tiles {
		printDetail(w, "slot %d: cell %d (%d,%d) window %dx%d @%d,%d",
			t.Slot, t.Cell, t.Col, t.Row, t.Window.Width, t.Window.Height, t.Window.X, t.Window.Y)
	}
}
