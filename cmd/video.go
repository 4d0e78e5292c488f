package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"shashin/internal/camera"
)

func newVideoCmd(a *app) *cobra.Command {
	var preview bool

	cmd := &cobra.Command{
		Use:   "video",
		Short: "動画を録画する",
		Long: `動画を録画して MP4 で保存します。

--duration 0 の場合は q キーか Ctrl+C で停止するまで録画します。
停止した場合もそこまでの録画を保存します。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			svc, _, closeFn, err := a.newService(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			req := a.videoRequest()
			req.Preview = preview && camera.HasDisplay()

			if req.Duration == 0 {
				var stop func()
				ctx, stop = stopOnQuitKey(ctx, cmd.ErrOrStderr(), a.stdin, "q キーまたは Ctrl+C で録画を停止します", a.logger)
				defer stop()
			}

			result, err := svc.Video(ctx, req)
			if err != nil {
				if isTranscodeError(err) {
					// 変換に失敗しても H.264 は保存されている
					printPath(cmd.OutOrStdout(), result.Path)
				}
				return err
			}
			printPath(cmd.OutOrStdout(), result.Path)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Int("width", 1280, "動画幅")
	flags.Int("height", 720, "動画高さ")
	flags.Int("fps", 30, "フレームレート")
	flags.Duration("duration", 10*time.Second, "録画時間 (例: 10s, 1m)。0 で停止するまで録画")
	flags.Int("bitrate", 10000000, "H.264 のビットレート (Raspberry Pi カメラのみ)")
	flags.Bool("keep-raw", false, "MP4 への変換後も .h264 を残す")
	flags.BoolVar(&preview, "preview", false, "録画中にプレビューを表示する (Raspberry Pi カメラのみ)")

	a.bind(cmd, map[string]string{
		"video.width":    "width",
		"video.height":   "height",
		"video.fps":      "fps",
		"video.duration": "duration",
		"video.bitrate":  "bitrate",
		"video.keep_raw": "keep-raw",
	}, false)
	return cmd
}
