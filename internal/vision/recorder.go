package vision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"shashin/internal/camera"
)

// ErrWrite は画像や動画を書き出せなかった場合のエラー
var ErrWrite = errors.New("ファイルの書き込みに失敗")

// PhotoOptions は OpenCV での静止画撮影のオプション
type PhotoOptions struct {
	Format     string        // jpg または png
	Quality    int           // JPEG品質
	Attempts   int           // フレーム取得の試行回数
	RetryDelay time.Duration // 試行の間隔
}

// DefaultPhotoOptions はデフォルトの撮影オプションを返す
func DefaultPhotoOptions() PhotoOptions {
	return PhotoOptions{
		Format:     "jpg",
		Quality:    95,
		Attempts:   5,
		RetryDelay: 500 * time.Millisecond,
	}
}

// VideoStats は録画結果の統計
type VideoStats struct {
	Frames      int
	Width       int
	Height      int
	Interrupted bool
}

// Recorder は開かれた FrameSource から静止画と動画を書き出す
type Recorder struct {
	settings camera.Settings
	logger   zerolog.Logger
}

// NewRecorder は新しいRecorderを作成する
func NewRecorder(s camera.Settings, logger zerolog.Logger) *Recorder {
	return &Recorder{
		settings: s,
		logger:   logger.With().Str("component", "recorder").Logger(),
	}
}

// Photo はフレームを取得できるまで試行し、反転・回転して path に保存する
func (r *Recorder) Photo(ctx context.Context, src FrameSource, path string, opts PhotoOptions) error {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}

	frame := gocv.NewMat()
	defer frame.Close()

	var lastErr error
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		lastErr = src.Read(&frame)
		if lastErr == nil {
			break
		}
		r.logger.Warn().Err(lastErr).Int("attempt", attempt).Msg("フレーム取得に失敗しました。再試行します")
		if attempt == opts.Attempts {
			return fmt.Errorf("%d回試行しましたがフレームを取得できません: %w", opts.Attempts, lastErr)
		}
		if err := sleepContext(ctx, opts.RetryDelay); err != nil {
			return err
		}
	}

	if err := Transform(&frame, r.settings); err != nil {
		return err
	}

	return WriteImage(path, frame, opts.Format, opts.Quality)
}

// Video は duration が経過するまでフレームを mp4v で path に書き出す
// duration が 0 の場合は ctx がキャンセルされるまで録画する
// 途中でキャンセルされた場合も書き出したファイルは正しく閉じる
func (r *Recorder) Video(ctx context.Context, src FrameSource, path string, fps int, duration time.Duration) (VideoStats, error) {
	var stats VideoStats

	frame := gocv.NewMat()
	defer frame.Close()

	// 出力サイズは回転後の最初のフレームで決める
	if err := src.Read(&frame); err != nil {
		return stats, err
	}
	if err := Transform(&frame, r.settings); err != nil {
		return stats, err
	}
	stats.Width, stats.Height = frame.Cols(), frame.Rows()

	writer, err := gocv.VideoWriterFile(path, "mp4v", float64(fps), stats.Width, stats.Height, true)
	if err != nil {
		return stats, fmt.Errorf("%w: 動画ファイルを作成できません: %v", ErrWrite, err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("動画ファイルのクローズに失敗しました")
		}
	}()

	var deadline <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		if err := writer.Write(frame); err != nil {
			return stats, fmt.Errorf("%w: %v", ErrWrite, err)
		}
		stats.Frames++

		select {
		case <-ctx.Done():
			stats.Interrupted = true
			r.logger.Info().Int("frames", stats.Frames).Msg("録画を中断しました")
			return stats, nil
		case <-deadline:
			return stats, nil
		default:
		}

		if err := src.Read(&frame); err != nil {
			// 途中までの録画は残す
			r.logger.Error().Err(err).Int("frames", stats.Frames).Msg("フレーム取得エラー")
			return stats, err
		}
		if err := Transform(&frame, r.settings); err != nil {
			return stats, err
		}
	}
}

// WriteImage は画像を jpg または png で保存する
func WriteImage(path string, img gocv.Mat, format string, quality int) error {
	var ok bool
	switch format {
	case "jpg":
		if quality < 1 || quality > 100 {
			quality = 95
		}
		ok = gocv.IMWriteWithParams(path, img, []int{int(gocv.IMWriteJpegQuality), quality})
	case "png":
		ok = gocv.IMWrite(path, img)
	default:
		return fmt.Errorf("サポートされていない画像フォーマット: %q", format)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrWrite, path)
	}
	return nil
}

// ProbeDevice は OpenCV でデバイスを開き、フレームを1枚読めるかを返す
func ProbeDevice(index int) bool {
	capture, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return false
	}
	defer capture.Close()

	if !capture.IsOpened() {
		return false
	}

	frame := gocv.NewMat()
	defer frame.Close()
	return capture.Read(&frame) && !frame.Empty()
}
