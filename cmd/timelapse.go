package cmd

import (
	"github.com/spf13/cobra"

	"shashin/internal/timelapse"
)

func newTimelapseCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timelapse",
		Short: "一定間隔で写真を撮影する",
		Long: `スケジュール (cron 形式または @every) に従って写真を撮影します。
--count 枚撮影するか q キーまたは Ctrl+C で終了します。--assemble を指定すると
終了時に撮影した写真を MP4 にまとめます。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			tc := a.cfg.Timelapse

			svc, _, closeFn, err := a.newService(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			var assembler timelapse.Assembler
			if tc.Assemble {
				t := a.newTranscoder()
				if err := t.Validate(ctx); err != nil {
					return err
				}
				assembler = t
			}

			photo := a.photoRequest()
			m := timelapse.NewManager(svc, assembler, timelapse.Options{
				Schedule:     tc.Schedule,
				Count:        tc.Count,
				Assemble:     tc.Assemble,
				FPS:          tc.FPS,
				VideoQuality: tc.Quality,
				OutputDir:    a.cfg.OutputDir,
				Width:        photo.Width,
				Height:       photo.Height,
				Format:       photo.Format,
				PhotoQuality: photo.Quality,
				Warmup:       photo.Warmup,
			}, a.logger)

			ctx, stop := stopOnQuitKey(ctx, cmd.ErrOrStderr(), a.stdin, "q キーまたは Ctrl+C で撮影を終了します", a.logger)
			defer stop()

			session, err := m.Run(ctx)
			if err != nil {
				return err
			}
			if session.Video != "" {
				printPath(cmd.OutOrStdout(), session.Video)
			} else {
				printPath(cmd.OutOrStdout(), session.Dir)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("schedule", "@every 10s", "撮影間隔 (例: \"@every 10s\", \"*/5 * * * *\")")
	flags.Int("count", 0, "撮影枚数 (0 で停止するまで撮影)")
	flags.Bool("assemble", false, "終了時に MP4 にまとめる")
	flags.Int("fps", 10, "まとめた動画のフレームレート")

	a.bind(cmd, map[string]string{
		"timelapse.schedule": "schedule",
		"timelapse.count":    "count",
		"timelapse.assemble": "assemble",
		"timelapse.fps":      "fps",
	}, false)
	return cmd
}
