package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"shashin/internal/camera"
	"shashin/internal/preview"
)

// errNoDisplay は表示環境が無い場合のエラー
var errNoDisplay = errors.New("表示環境がありません (DISPLAY が設定されていません)")

func newPreviewCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "カメラ映像をウィンドウに表示する",
		Long: `カメラ映像をウィンドウに表示します。
q キー、ウィンドウを閉じる、Ctrl+C のいずれかで終了します。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !camera.HasDisplay() {
				return errNoDisplay
			}
			ctx := cmd.Context()
			pc := a.cfg.Preview

			src, err := a.newSource(ctx, camera.Settings{Width: pc.Width, Height: pc.Height, FPS: a.cfg.Video.FPS})
			if err != nil {
				return err
			}

			p := preview.New(src, preview.Options{
				WindowWidth:  pc.WindowWidth,
				WindowHeight: pc.WindowHeight,
				FPSInterval:  pc.FPSInterval,
				ShowFPS:      pc.ShowFPS,
				ShowClock:    pc.ShowClock,
				Orientation:  a.orientation(),
			}, a.logger)

			reason, err := p.Run(ctx)
			if err != nil {
				return fmt.Errorf("プレビューを終了しました: %w", err)
			}
			a.logger.Debug().Str("reason", string(reason)).Msg("プレビューを終了しました")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Int("width", 1920, "キャプチャ幅")
	flags.Int("height", 1080, "キャプチャ高さ")
	flags.Bool("show-fps", true, "FPS を表示する")
	flags.Bool("show-clock", true, "日時を表示する")

	a.bind(cmd, map[string]string{
		"preview.width":      "width",
		"preview.height":     "height",
		"preview.show_fps":   "show-fps",
		"preview.show_clock": "show-clock",
	}, false)
	return cmd
}
