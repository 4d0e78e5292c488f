// Package logging は zerolog を使ったログ出力の初期化を担う
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Format はログの出力形式
type Format string

const (
	FormatConsole Format = "console" // 人が読む形式
	FormatJSON    Format = "json"    // 構造化形式
)

// New はログレベルと形式から Logger を作成する
// 出力先は標準エラー出力（標準出力は保存したファイルパスの表示に使う）
func New(level, format string) (zerolog.Logger, error) {
	return NewWithWriter(os.Stderr, level, format)
}

// NewWithWriter は出力先を指定して Logger を作成する
func NewWithWriter(out io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}

	var w io.Writer
	switch Format(strings.ToLower(format)) {
	case FormatConsole, "":
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	case FormatJSON:
		w = out
	default:
		return zerolog.Nop(), fmt.Errorf("サポートされていないログ形式: %q", format)
	}

	zerolog.SetGlobalLevel(lvl)

	return zerolog.New(w).With().
		Timestamp().
		Str("app", "shashin").
		Logger(), nil
}

// parseLevel はログレベル文字列を変換する
func parseLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("無効なログレベル: %q: %w", level, err)
	}
	return lvl, nil
}
