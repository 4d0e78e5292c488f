// Package cmd は shashin のコマンドラインを実装する
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"shashin/internal/config"
	"shashin/internal/logging"
)

// version はビルド時に設定する
var version = "dev"

// errNoMode はサブコマンドが指定されなかった場合のエラー
var errNoMode = errors.New("モードを指定してください")

// app はコマンド間で共有する設定とロガー
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  zerolog.Logger
	stdin   *os.File
}

// Execute はコマンドを実行し、失敗した場合は終了コード1で終了する
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "エラー: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), logger: zerolog.Nop(), stdin: os.Stdin}

	root := &cobra.Command{
		Use:     "shashin",
		Short:   "Raspberry Pi カメラ / USB カメラで写真と動画を撮影する",
		Version: version,
		Long: `Raspberry Pi カメラ (rpicam-apps) または USB カメラ (OpenCV) で
写真・動画を撮影し、指定したディレクトリに保存します。

Raspberry Pi カメラを優先し、見つからない場合は USB カメラを使います。`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return errNoMode
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "設定ファイルのパス (デフォルト: ./shashin.yaml, ~/.config/shashin/shashin.yaml)")
	flags.StringP("output", "o", "./", "保存先ディレクトリ")
	flags.Bool("use-opencv", false, "Raspberry Pi カメラではなく OpenCV (USB カメラ) を使う")
	flags.Int("device", -1, "OpenCV のデバイス番号 (-1 で自動検出)")
	flags.Bool("hflip", false, "左右反転")
	flags.Bool("vflip", false, "上下反転")
	flags.Int("rotation", 0, "回転角度 (0, 90, 180, 270)")
	flags.String("log-level", "info", "ログレベル (debug, info, warn, error)")
	flags.String("log-format", "console", "ログ形式 (console, json)")

	a.bind(root, map[string]string{
		"output_dir":        "output",
		"camera.use_opencv": "use-opencv",
		"camera.device":     "device",
		"camera.hflip":      "hflip",
		"camera.vflip":      "vflip",
		"camera.rotation":   "rotation",
		"log.level":         "log-level",
		"log.format":        "log-format",
	}, true)

	root.AddCommand(
		newPhotoCmd(a),
		newVideoCmd(a),
		newPreviewCmd(a),
		newConvertCmd(a),
		newTimelapseCmd(a),
		newHistoryCmd(a),
		newServeCmd(a),
		newDevicesCmd(a),
	)
	return root
}

// bind はフラグを設定のキーに束縛する
func (a *app) bind(cmd *cobra.Command, keys map[string]string, persistent bool) {
	flags := cmd.Flags()
	if persistent {
		flags = cmd.PersistentFlags()
	}
	for key, name := range keys {
		if err := a.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("フラグ %s の束縛に失敗: %v", name, err))
		}
	}
}

// setup は設定を読み込んでロガーを作成する
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.logger.Debug().Str("command", cmd.Name()).Str("output", cfg.OutputDir).Msg("設定を読み込みました")
	return nil
}

// printPath は保存したファイルのパスを標準出力に表示する
func printPath(w io.Writer, path string) {
	fmt.Fprintln(w, path)
}
