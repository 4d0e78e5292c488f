package cmd

import (
	"github.com/spf13/cobra"

	"shashin/internal/transcode"
)

func newConvertCmd(a *app) *cobra.Command {
	var (
		keepSource bool
		fps        int
	)

	cmd := &cobra.Command{
		Use:   "convert <src.h264> [dst.mp4]",
		Short: "H.264 の動画を MP4 に変換する",
		Long: `録画した H.264 の動画を ffmpeg で MP4 に変換します。
dst を省略した場合は拡張子を .mp4 に変えたパスに保存します。`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src := args[0]
			dst := transcode.MP4Path(src)
			if len(args) == 2 {
				dst = args[1]
			}

			t := a.newTranscoder()
			if err := t.Validate(ctx); err != nil {
				return err
			}
			if err := t.ToMP4(ctx, src, dst, fps, keepSource); err != nil {
				return err
			}
			printPath(cmd.OutOrStdout(), dst)
			return nil
		},
	}

	cmd.Flags().BoolVar(&keepSource, "keep-source", false, "変換後も元のファイルを残す")
	cmd.Flags().IntVar(&fps, "fps", 30, "元の動画のフレームレート")
	return cmd
}
