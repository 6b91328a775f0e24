// Package cli は tileview のコマンドラインインターフェースを実装する。
//
// コマンド:
//   - serve: フレームをタイルに分割し、HTTPでプレビューを配信する
//   - layout: 指定フレームサイズでのタイルとスロットを表示する
//   - record: スロット毎のタイルを動画ファイルに記録する
//   - scan: 画像から明るい画素を探す
//   - devices: 接続されているカメラデバイスを一覧する
//
// 全てのコマンドは --config で TOML 設定ファイルを、--verbose でデバッグログを指定できる。
package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"tileview/internal/config"
)

// main.go から使うログレベル
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI は全コマンドで共有する状態
type CLI struct {
	Logger *log.Logger

	out        io.Writer // コマンド結果の出力先
	configPath string
}

// New は新しいCLIを作成する
// ログは logw に、コマンド結果は out に出力する。
func New(out, logw io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(logw, level),
		out:    out,
	}
}

// SetLogLevel はログレベルを変更する
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand は全サブコマンドを登録したルートコマンドを作成する
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "tileview",
		Short:        "フレームをタイルに分割してスロット毎に表示・記録する",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		},
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "TOML 設定ファイル")

	root.AddCommand(c.serveCommand())
	root.AddCommand(c.layoutCommand())
	root.AddCommand(c.recordCommand())
	root.AddCommand(c.scanCommand())
	root.AddCommand(c.devicesCommand())

	return root
}

// loadConfig は --config の設定を読み込む
func (c *CLI) loadConfig() (*config.Config, error) {
	return config.LoadFile(c.configPath)
}
