package cmd

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"shashin/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "リモートシャッターの HTTP サーバーを起動する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sc := a.cfg.Server

			svc, cat, closeFn, err := a.newService(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			// nil のポインタをインターフェースに入れない
			var history server.History
			if cat != nil {
				history = cat
			}

			gin.SetMode(gin.ReleaseMode)
			srv := server.New(svc, history, server.Options{
				Addr:          a.cfg.ServerAddress(),
				ReadTimeout:   sc.ReadTimeout,
				WriteTimeout:  sc.WriteTimeout,
				SnapshotCache: sc.SnapshotCache,
				Photo:         a.photoRequest(),
				Video:         a.videoRequest(),
			}, a.logger)

			return srv.Start(ctx)
		},
	}

	flags := cmd.Flags()
	flags.String("host", "0.0.0.0", "リッスンするホスト")
	flags.Int("port", 8080, "リッスンするポート番号")

	a.bind(cmd, map[string]string{
		"server.host": "host",
		"server.port": "port",
	}, false)
	return cmd
}
