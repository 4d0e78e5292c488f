package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"shashin/internal/camera"
	"shashin/internal/vision"
)

func newDevicesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "接続されているカメラを表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			fmt.Fprintln(w, headerStyle.Render("Raspberry Pi カメラ"))
			if info, err := camera.NewPiDiscovery("").Detect(ctx); err != nil {
				fmt.Fprintln(w, dimStyle.Render("  見つかりません"))
			} else {
				fmt.Fprintf(w, "  %d: %s\n", info.Index, info.Model)
			}

			fmt.Fprintln(w, headerStyle.Render("USB カメラ"))
			devices, err := camera.ListVideoDevices()
			if err != nil {
				return err
			}
			found := false
			for _, device := range devices {
				info, err := camera.NewUSBDiscovery(vision.ProbeDevice, camera.DeviceIndex(device)).Detect(ctx)
				if err != nil {
					a.logger.Debug().Err(err).Str("device", device).Msg("デバイスを開けません")
					continue
				}
				found = true
				fmt.Fprintf(w, "  %d: %s (%s)\n", info.Index, info.Model, info.Device)
			}
			if !found {
				fmt.Fprintln(w, dimStyle.Render("  見つかりません"))
			}
			return nil
		},
	}
}
