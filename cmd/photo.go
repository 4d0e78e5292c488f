package cmd

import (
	"github.com/spf13/cobra"

	"shashin/internal/camera"
)

func newPhotoCmd(a *app) *cobra.Command {
	var preview bool

	cmd := &cobra.Command{
		Use:   "photo",
		Short: "写真を1枚撮影する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			svc, _, closeFn, err := a.newService(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			req := a.photoRequest()
			req.Preview = preview && camera.HasDisplay()

			result, err := svc.Photo(ctx, req)
			if err != nil {
				return err
			}
			printPath(cmd.OutOrStdout(), result.Path)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Int("width", 1920, "画像幅")
	flags.Int("height", 1080, "画像高さ")
	flags.String("format", "jpg", "画像フォーマット (jpg, png)")
	flags.Int("quality", 95, "JPEG品質 (1-100)")
	flags.BoolVar(&preview, "preview", false, "撮影前にプレビューを表示する (Raspberry Pi カメラのみ)")

	a.bind(cmd, map[string]string{
		"photo.width":   "width",
		"photo.height":  "height",
		"photo.format":  "format",
		"photo.quality": "quality",
	}, false)
	return cmd
}
