package cli

import (
	"context"

	"github.com/spf13/cobra"

	"tileview/internal/camera"
)

// devicesCommand はカメラデバイス一覧コマンドを作成する
func (c *CLI) devicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "接続されているカラーカメラを一覧する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runDevices(cmd.Context(), camera.NewLinuxDiscovery())
		},
	}
}

func (c *CLI) runDevices(ctx context.Context, d camera.Discovery) error {
	devices, err := d.ScanDevices(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		printWarning(c.out, "カメラが見つかりませんでした")
		return nil
	}

	printTitle(c.out, "%d 台のカメラ", len(devices))
	for _, dev := range devices {
		info, err := d.GetDeviceInfo(ctx, dev)
		if err != nil {
			loggerFromContext(ctx).Warn("デバイス情報を取得できません", "device", dev, "err", err)
			continue
		}
		printSuccess(c.out, "%s  %s", info.Device, styleValue.Render(info.Name))
		printDetail(c.out, "driver: %s", info.Driver)
	}
	return nil
}
