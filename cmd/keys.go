package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// ctrlC は raw モードで Ctrl+C を押した時の入力
const ctrlC = 0x03

// stopOnQuitKey は hint を表示し、端末で q (または Ctrl+C) が押されるとキャンセルされる ctx を返す
// 戻り値の関数で端末の状態を戻して ctx を解放する
func stopOnQuitKey(ctx context.Context, w io.Writer, in *os.File, hint string, logger zerolog.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	fmt.Fprintln(w, hint)
	restore := watchQuitKey(ctx, in, cancel, logger)
	return ctx, func() {
		restore()
		cancel()
	}
}

// watchQuitKey は端末で q (または Ctrl+C) が押されると cancel を呼ぶ
// 端末でない場合は何もしない。戻り値の関数で端末の状態を戻す
func watchQuitKey(ctx context.Context, in *os.File, cancel context.CancelFunc, logger zerolog.Logger) (restore func()) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return func() {}
	}

	// raw モードでは Ctrl+C がシグナルにならないため自分で読む
	state, err := term.MakeRaw(fd)
	if err != nil {
		logger.Warn().Err(err).Msg("端末を raw モードにできません。Ctrl+C で停止してください")
		return func() {}
	}

	// 読み込み中の Read は中断できないため、restore 後も次の入力かプロセス終了まで残る
	go func() {
		if readQuitKey(ctx, in) {
			cancel()
		}
	}()

	return func() {
		_ = term.Restore(fd, state)
	}
}

// readQuitKey は q / Q / Ctrl+C を読むまで待ち、読めた場合は true を返す
func readQuitKey(ctx context.Context, r io.Reader) bool {
	buf := make([]byte, 1)
	for {
		if ctx.Err() != nil {
			return false
		}
		n, err := r.Read(buf)
		if err != nil {
			return false
		}
		if n == 0 {
			continue
		}
		switch buf[0] {
		case 'q', 'Q', ctrlC:
			return true
		}
	}
}
