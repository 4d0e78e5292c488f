package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoInput は変換する入力ファイルが無い場合のエラー
var ErrNoInput = errors.New("入力ファイルがありません")

// ExitError は ffmpeg が失敗した場合のエラー
type ExitError struct {
	Code   int    // 終了コード (起動できなかった場合は -1)
	Output string // ffmpeg の出力
	Err    error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("ffmpegの実行に失敗 (終了コード %d): %v\n%s", e.Code, e.Err, e.Output)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Transcoder は ffmpeg を使って動画を変換する
type Transcoder struct {
	FFmpegPath string
	Timeout    time.Duration
	logger     zerolog.Logger
}

// New は新しいTranscoderを作成する
func New(ffmpegPath string, timeout time.Duration, logger zerolog.Logger) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Transcoder{
		FFmpegPath: ffmpegPath,
		Timeout:    timeout,
		logger:     logger.With().Str("component", "transcode").Logger(),
	}
}

// Validate は ffmpeg が利用可能かチェックする
func (t *Transcoder) Validate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := exec.CommandContext(ctx, t.FFmpegPath, "-version").Run(); err != nil {
		return fmt.Errorf("FFmpegが見つかりません。インストールしてください (sudo apt install ffmpeg): %w", err)
	}
	return nil
}

// ToMP4 は H.264 の生ストリームを再エンコードせずに MP4 コンテナへ格納する
// 変換に成功し出力ファイルが存在する場合のみ、keepSource が false なら src を削除する
func (t *Transcoder) ToMP4(ctx context.Context, src, dst string, fps int, keepSource bool) error {
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("%w: %s", ErrNoInput, src)
	}
	if dst == "" {
		dst = MP4Path(src)
	}

	// 生の H.264 にはタイムスタンプが無いため入力側でフレームレートを指定する
	args := []string{"-hide_banner", "-loglevel", "error", "-y"}
	if fps > 0 {
		args = append(args, "-framerate", strconv.Itoa(fps))
	}
	args = append(args, "-i", src, "-c:v", "copy", dst)

	if err := t.run(ctx, args); err != nil {
		return err
	}

	if _, err := os.Stat(dst); err != nil {
		return fmt.Errorf("変換後のファイルが見つかりません: %w", err)
	}

	if !keepSource {
		if err := os.Remove(src); err != nil {
			t.logger.Warn().Err(err).Str("path", src).Msg("変換元ファイルの削除に失敗しました")
		}
	}

	t.logger.Info().Str("src", src).Str("dst", dst).Msg("MP4に変換しました")
	return nil
}

// Concat は静止画を並べて動画を作成する
func (t *Transcoder) Concat(ctx context.Context, images []string, dst string, fps, quality int) error {
	if len(images) == 0 {
		return fmt.Errorf("%w: 画像ファイルがありません", ErrNoInput)
	}
	if fps <= 0 {
		fps = 10
	}

	listFile := filepath.Join(filepath.Dir(dst), fmt.Sprintf(".concat_%d.txt", time.Now().UnixNano()))
	if err := writeImageList(listFile, images, fps); err != nil {
		return fmt.Errorf("画像リストの作成に失敗: %w", err)
	}
	defer func() {
		_ = os.Remove(listFile) // cleanup中のエラーは無視
	}()

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-r", strconv.Itoa(fps),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", QualityToCRF(quality),
		"-pix_fmt", "yuv420p",
		"-y", // 上書き許可
		dst,
	}

	if err := t.run(ctx, args); err != nil {
		return err
	}

	t.logger.Info().Int("frames", len(images)).Str("dst", dst).Msg("タイムラプス動画を作成しました")
	return nil
}

// run は ffmpeg を実行する
func (t *Transcoder) run(ctx context.Context, args []string) error {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	t.logger.Debug().Strs("args", args).Msg("ffmpeg を実行します")
	output, err := exec.CommandContext(ctx, t.FFmpegPath, args...).CombinedOutput()
	if err == nil {
		return nil
	}

	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	return &ExitError{Code: code, Output: strings.TrimSpace(string(output)), Err: err}
}

// writeImageList は concat デマルチプレクサ用の画像リストを作成する
func writeImageList(listFile string, images []string, fps int) error {
	duration := strconv.FormatFloat(1/float64(fps), 'f', 4, 64)

	var b strings.Builder
	for _, image := range images {
		abs, err := filepath.Abs(image)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "file '%s'\nduration %s\n", escapeQuote(abs), duration)
	}
	// 最後のフレームは追加の表示時間なし
	abs, err := filepath.Abs(images[len(images)-1])
	if err != nil {
		return err
	}
	fmt.Fprintf(&b, "file '%s'\n", escapeQuote(abs))

	return os.WriteFile(listFile, []byte(b.String()), 0644)
}

// escapeQuote は concat リスト内の単一引用符をエスケープする
func escapeQuote(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}

// QualityToCRF は品質設定をFFmpegのCRF値に変換する
func QualityToCRF(quality int) string {
	// 品質1(低) -> CRF28, 品質5(高) -> CRF18
	crf := 28.0 - float64(quality-1)*2.5
	if crf < 18 {
		crf = 18
	}
	if crf > 28 {
		crf = 28
	}
	return strconv.FormatFloat(crf, 'f', 1, 64)
}

// MP4Path は拡張子を .mp4 に置き換えたパスを返す
func MP4Path(src string) string {
	return strings.TrimSuffix(src, filepath.Ext(src)) + ".mp4"
}
