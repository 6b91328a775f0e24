package cli

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/spf13/cobra"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"tileview/internal/scan"
)

// scanCommand は明るい画素の検出コマンドを作成する
func (c *CLI) scanCommand() *cobra.Command {
	var (
		threshold int
		all       bool
	)

	cmd := &cobra.Command{
		Use:   "scan <image>",
		Short: "画像から R,G,B 全てが閾値を超える画素を探す",
		Long: `画像から R,G,B 全てが閾値を超える画素を探す。

PNG, JPEG, BMP, TIFF を読み込める。通常は最初に見つかった画素のみを表示する。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = int(cfg.Scan.Threshold)
			}
			if threshold < 0 || threshold > 255 {
				return fmt.Errorf("閾値は0から255で指定してください: %d", threshold)
			}
			return runScan(c.out, args[0], uint8(threshold), all)
		},
	}

	cmd.Flags().IntVarP(&threshold, "threshold", "t", int(scan.DefaultThreshold), "明るさの閾値 (0-255)")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "全ての画素を表示する")

	return cmd
}

func runScan(w io.Writer, path string, threshold uint8, all bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("画像を開けません: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("画像 %s のデコードに失敗: %w", path, err)
	}
	b := img.Bounds()
	printInfo(w, "%s (%s %dx%d) 閾値 %d", path, format, b.Dx(), b.Dy(), threshold)

	if !all {
		p, ok := scan.FirstBright(img, threshold)
		if !ok {
			printWarning(w, "明るい画素は見つかりませんでした")
			return nil
		}
		printSuccess(w, "x=%d y=%d", p.X, p.Y)
		return nil
	}

	points := scan.FindBright(img, threshold)
	if len(points) == 0 {
		printWarning(w, "明るい画素は見つかりませんでした")
		return nil
	}
	printSuccess(w, "%d 画素見つかりました", len(points))
	for _, p := range points {
		printDetail(w, "x=%d y=%d", p.X, p.Y)
	}
	return nil
}
